package mdsession

import "sync"

// ItemKind tags which HandlerRegistry callback a registered stream
// routes to (spec §3: "Maps in the Handler Registry to an (stream-id,
// handler-kind) pair").
type ItemKind int

const (
	ItemKindLogin ItemKind = iota
	ItemKindDirectory
	ItemKindDictionary
	ItemKindItem
)

// itemRequest is the per-Handle bookkeeping RegisterClient creates and
// Unregister/Reissue/Submit consult: the user's closure, the stream
// kind, and the parent handle for a batch request (spec §6.3
// "register_client(request, client, closure, parent_handle)").
type itemRequest struct {
	handle       Handle
	kind         ItemKind
	closure      any
	parentHandle Handle
}

// itemRegistry tracks live Handle -> *itemRequest mappings.
//
// eventloop/registry.go's weak-pointer promise registry scavenges
// entries whose backing struct has already been collected, because
// there a Promise can settle (and its last strong reference drop out of
// scope) without the holder ever calling back in. That doesn't hold
// here: the public API only ever hands a caller an opaque Handle, never
// the backing *itemRequest, so nothing outside this registry can hold a
// strong reference -- a Handle must stay valid for exactly as long as
// the spec's Handle-validity invariant requires: from register() until
// an explicit unregister() (or a Session-wide closeAll() at teardown),
// never earlier. A weak-pointer scheme would make validity depend on
// GC timing instead, so this registry just holds the strong reference
// itself and retires the weak/ring/scavenge machinery entirely.
type itemRegistry struct {
	mu   sync.RWMutex
	data map[Handle]*itemRequest
}

func newItemRegistry() *itemRegistry {
	return &itemRegistry{data: make(map[Handle]*itemRequest)}
}

// register allocates a new process-wide Handle and retains req under
// it until Unregister or closeAll.
func (r *itemRegistry) register(kind ItemKind, closure any, parentHandle Handle) (Handle, *itemRequest) {
	req := &itemRequest{kind: kind, closure: closure, parentHandle: parentHandle}
	h := nextHandle()
	req.handle = h

	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[h] = req

	return h, req
}

// lookup returns the live itemRequest for h, or ok=false if h is
// unknown (spec's InvalidHandleException path).
func (r *itemRegistry) lookup(h Handle) (*itemRequest, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	req, ok := r.data[h]
	return req, ok
}

// unregister removes h immediately (spec's unregister(handle) API).
func (r *itemRegistry) unregister(h Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.data, h)
}

// closeAll drops every tracked handle, used during Uninitialize.
func (r *itemRegistry) closeAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data = make(map[Handle]*itemRequest)
}
