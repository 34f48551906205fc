package mdsession

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// fakeReactorChannel is the deterministic ReactorChannel this package's
// own tests drive Session/dispatch logic against, since the real
// transport reactor is an external collaborator with no in-pack
// implementation (spec §6.2).
type fakeReactorChannel struct {
	id int
}

func (c *fakeReactorChannel) SocketID() int { return c.id }

// fakeReactor is a deterministic, in-memory Reactor: Dispatch consumes
// from an internal queue of pending callback thunks rather than talking
// to any real transport, so tests can script exact callback sequences
// and assert on dispatch-loop behavior without a real socket or the
// transport library.
type fakeReactor struct {
	mu      sync.Mutex
	pending []func()
	eventFD int

	createErr  error
	createOpts ReactorCreateOptions

	dispatchErr      error
	dispatchCalls    atomic.Int64
	destroyed        atomic.Bool
	ioctlCalls       []struct{ Code int; Value int64 }
	oauthHandler     func(ReactorChannel)
	openChannelErr   error
	nextChannelID    int
	closedChannels   []ReactorChannel
	jsonConverterSet bool

	submitErr   error
	submitCalls []struct {
		Handle Handle
		Msg    any
	}

	// forcedDispatchResult, if set, is returned by every Dispatch call
	// verbatim instead of consuming the pending queue -- used to script
	// a reactor that reports more work pending without ever actually
	// dispatching anything, to exercise the bounded-retry exhaustion
	// path.
	forcedDispatchResult *ReactorDispatchResult

	loginHandler      func(LoginEvent)
	directoryHandler  func(DirectoryEvent)
	dictionaryHandler func(DictionaryEvent)
	itemHandler       func(ItemEvent)
	channelHandler    func(ChannelEvent)
}

func newFakeReactor(eventFD int) *fakeReactor {
	return &fakeReactor{eventFD: eventFD}
}

func (r *fakeReactor) Create(opts ReactorCreateOptions) error {
	r.createOpts = opts
	return r.createErr
}

func (r *fakeReactor) Destroy() error {
	r.destroyed.Store(true)
	return nil
}

// enqueue schedules fn to run on a future Dispatch call, in FIFO order.
func (r *fakeReactor) enqueue(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = append(r.pending, fn)
}

func (r *fakeReactor) Dispatch(ctx context.Context, opts ReactorDispatchOptions) ReactorDispatchResult {
	r.dispatchCalls.Add(1)
	if r.dispatchErr != nil {
		return ReactorDispatchResult{Err: r.dispatchErr}
	}
	if r.forcedDispatchResult != nil {
		return *r.forcedDispatchResult
	}

	r.mu.Lock()
	n := opts.MaxMessages
	if n <= 0 || n > len(r.pending) {
		n = len(r.pending)
	}
	batch := r.pending[:n]
	r.pending = r.pending[n:]
	more := len(r.pending) > 0
	r.mu.Unlock()

	for _, fn := range batch {
		fn()
	}

	return ReactorDispatchResult{Dispatched: len(batch), MorePending: more, Done: !more}
}

func (r *fakeReactor) EventFD() int { return r.eventFD }

func (r *fakeReactor) OpenChannel(cfg ChannelConfig) (ReactorChannel, error) {
	if r.openChannelErr != nil {
		return nil, r.openChannelErr
	}
	r.mu.Lock()
	r.nextChannelID++
	id := r.nextChannelID
	r.mu.Unlock()
	return &fakeReactorChannel{id: id}, nil
}

func (r *fakeReactor) CloseChannel(ch ReactorChannel) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closedChannels = append(r.closedChannels, ch)
	return nil
}

func (r *fakeReactor) InitJSONConverter(opts JSONConverterOptions) error {
	r.jsonConverterSet = true
	return nil
}

func (r *fakeReactor) IOCtl(code int, value int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ioctlCalls = append(r.ioctlCalls, struct {
		Code  int
		Value int64
	}{code, value})
	return nil
}

func (r *fakeReactor) Submit(ch ReactorChannel, handle Handle, msg any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.submitErr != nil {
		return r.submitErr
	}
	r.submitCalls = append(r.submitCalls, struct {
		Handle Handle
		Msg    any
	}{handle, msg})
	return nil
}

func (r *fakeReactor) SetOAuthCredentialRenewalHandler(fn func(channel ReactorChannel)) {
	r.oauthHandler = fn
}

func (r *fakeReactor) SetLoginEventHandler(fn func(LoginEvent))           { r.loginHandler = fn }
func (r *fakeReactor) SetDirectoryEventHandler(fn func(DirectoryEvent))   { r.directoryHandler = fn }
func (r *fakeReactor) SetDictionaryEventHandler(fn func(DictionaryEvent)) { r.dictionaryHandler = fn }
func (r *fakeReactor) SetItemEventHandler(fn func(ItemEvent))             { r.itemHandler = fn }
func (r *fakeReactor) SetChannelEventHandler(fn func(ChannelEvent))       { r.channelHandler = fn }

// fakePoller is a scripted readinessPoller: wait returns the next canned
// result in sequence, and returns false/false/nil once exhausted,
// letting dispatch_test.go and session_test.go assert exact iteration
// counts without real file descriptors.
type fakePoller struct {
	mu      sync.Mutex
	results []fakePollerResult
	closed  bool
}

type fakePollerResult struct {
	pipeReady, reactorReady bool
	err                     error
}

func newFakePoller(results ...fakePollerResult) *fakePoller {
	return &fakePoller{results: results}
}

func (p *fakePoller) wait(time.Duration) (pipeReady, reactorReady bool, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.results) == 0 {
		return false, false, nil
	}
	r := p.results[0]
	p.results = p.results[1:]
	return r.pipeReady, r.reactorReady, r.err
}

func (p *fakePoller) close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}
