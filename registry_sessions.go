package mdsession

import (
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// sessionRegistry is the process-wide session map + cleanup lock named
// by spec §9's design note: "a shared map with a dedicated teardown
// lock prevents races between the exit handler and destructors. In a
// rewrite, model it as a single owner holding weak back-references,
// with a ticket-based cleanup barrier."
//
// Grounded on eventloop/registry.go's counter-plus-map shape, but this
// package's equivalent "weak back-reference" is a plain pointer held
// only as long as the Session is registered -- Go's GC makes the
// teacher's weak-pointer tracking unnecessary; the cleanupMu barrier is
// what actually matters for the race the note describes (an in-flight
// Uninitialize racing a second Uninitialize, or a process-exit hook).
type sessionRegistry struct {
	nextID   atomic.Uint64
	sessions sync.Map // uint64 instance id -> *Session

	cleanupMu sync.Mutex

	transportRefCount atomic.Int64
}

var globalSessionRegistry sessionRegistry

// register assigns a unique numeric id and correlation id to s, and adds
// it to the process-wide map (spec §4.5 step 1). The instance name is
// configuredName + "_" + id.
func (r *sessionRegistry) register(s *Session, configuredName string) (instanceID uint64, instanceName string, correlationID string) {
	instanceID = r.nextID.Add(1)
	instanceName = configuredName + "_" + strconv.FormatUint(instanceID, 10)
	correlationID = uuid.NewString()
	r.sessions.Store(instanceID, s)
	return instanceID, instanceName, correlationID
}

// unregister removes a session from the process-wide map (first step of
// teardown, spec §4.5). Safe to call more than once.
func (r *sessionRegistry) unregister(instanceID uint64) {
	r.sessions.Delete(instanceID)
}

// withCleanupLock serializes teardowns against each other -- the
// "process-wide cleanup lock" that both the step 1-15 error path and
// Uninitialize hold while calling uninitializeLocked. register and
// unregister do not take it.
func (r *sessionRegistry) withCleanupLock(fn func()) {
	r.cleanupMu.Lock()
	defer r.cleanupMu.Unlock()
	fn()
}

// acquireTransport increments the transport-library reference count,
// initializing the transport library on the 0->1 transition (spec §4.5
// step 5: "Initialize the transport library with global+channel
// locking"). initFn is invoked at most once per 0->1 transition.
func (r *sessionRegistry) acquireTransport(initFn func() error) error {
	if r.transportRefCount.Add(1) == 1 {
		if err := initFn(); err != nil {
			r.transportRefCount.Add(-1)
			return err
		}
	}
	return nil
}

// releaseTransport decrements the transport-library reference count,
// uninitializing on the 1->0 transition (teardown's "Uninitialize the
// transport library" step).
func (r *sessionRegistry) releaseTransport(uninitFn func()) {
	if r.transportRefCount.Add(-1) == 0 {
		uninitFn()
	}
}
