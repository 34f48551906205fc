package mdsession

import (
	"context"
	"os"
	"sync/atomic"
	"testing"
	"time"
)

type stubLoginHandler struct{}

func (stubLoginHandler) OnLoginRefresh(Handle, any) {}
func (stubLoginHandler) OnLoginStatus(Handle, any)  {}

type stubDictionaryHandler struct{}

func (stubDictionaryHandler) OnDictionaryRefresh(Handle, any) {}
func (stubDictionaryHandler) OnDictionaryUpdate(Handle, any)  {}

type stubItemHandler struct{}

func (stubItemHandler) OnItemRefresh(Handle, any) {}
func (stubItemHandler) OnItemUpdate(Handle, any)  {}
func (stubItemHandler) OnItemStatus(Handle, any)  {}
func (stubItemHandler) OnAllMsg(Handle, any)      {}

type stubChannelHandler struct{}

func (stubChannelHandler) OnChannelOpened(ReactorChannel)      {}
func (stubChannelHandler) OnChannelDown(ReactorChannel, string) {}
func (stubChannelHandler) OnChannelReady(ReactorChannel)       {}

// newTestSession wires a Session against a fakeReactor whose EventFD is
// a real, otherwise-idle pipe read end -- real enough for this
// platform's readinessPoller to epoll/kqueue-register successfully,
// idle enough that it never reports ready, so bring-up's login wait
// loop runs purely off the watchdog timer and the wakeup pipe unless a
// test explicitly writes a wake byte to w to make the reactor fd
// observably readable.
func newTestSession(t *testing.T, configOpts ...ConfigOption) (s *Session, reactor *fakeReactor, w *os.File, cleanup func()) {
	t.Helper()
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}
	reactor = newFakeReactor(int(r.Fd()))

	s = NewSession(SessionOptions{
		ConfiguredName: "TestSession",
		ConfigOptions:  configOpts,
		NewReactor:     func() Reactor { return reactor },
	})
	s.Handlers().SetLoginHandler(stubLoginHandler{})
	s.Handlers().SetDirectoryHandler(stubDirectoryHandler{})
	s.Handlers().SetDictionaryHandler(stubDictionaryHandler{})
	s.Handlers().SetItemHandler(stubItemHandler{})
	s.Handlers().SetChannelHandler(stubChannelHandler{})

	cleanup = func() {
		r.Close()
		w.Close()
	}
	return s, reactor, w, cleanup
}

// wakeReactorFD writes one byte to w so the real platform poller
// observes the test's fakeReactor EventFD as readable, driving the next
// dispatch iteration's reactor branch exactly as a live reactor would.
func wakeReactorFD(t *testing.T, w *os.File) {
	t.Helper()
	if _, err := w.Write([]byte{1}); err != nil {
		t.Fatalf("wakeReactorFD: %v", err)
	}
}

func TestSessionInitializeLoginTimeout(t *testing.T) {
	s, _, _, cleanup := newTestSession(t, WithLoginRequestTimeoutMs(50))
	defer cleanup()

	start := time.Now()
	err := s.Initialize(context.Background())
	elapsed := time.Since(start)

	if err == nil {
		t.Fatal("want Initialize to fail with a login timeout")
	}
	if _, ok := err.(*LoginRequestTimeOutException); !ok {
		t.Fatalf("err = %T(%v), want *LoginRequestTimeOutException", err, err)
	}
	if elapsed > 2*time.Second {
		t.Fatalf("took %v, want well under the bounded test window", elapsed)
	}
	if got := s.State(); got != StateNotInitialized {
		t.Fatalf("State() = %v, want NotInitialized after failed bring-up (P3/teardown)", got)
	}
}

func TestSessionUninitializeIdempotent(t *testing.T) {
	s, _, _, cleanup := newTestSession(t, WithLoginRequestTimeoutMs(50))
	defer cleanup()

	_ = s.Initialize(context.Background())
	if got := s.State(); got != StateNotInitialized {
		t.Fatalf("State() = %v, want NotInitialized", got)
	}

	// A second Uninitialize call, on a Session that already tore itself
	// down via the failed-bring-up path, must be a safe no-op (P3).
	s.Uninitialize()
	s.Uninitialize()
	if got := s.State(); got != StateNotInitialized {
		t.Fatalf("State() = %v, want NotInitialized after redundant Uninitialize calls", got)
	}
}

func TestSessionInitializeFailsFastWithoutRequiredHandlers(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}
	defer r.Close()
	defer w.Close()

	reactor := newFakeReactor(int(r.Fd()))
	s := NewSession(SessionOptions{
		ConfiguredName: "NoHandlers",
		NewReactor:     func() Reactor { return reactor },
	})

	err = s.Initialize(context.Background())
	if err == nil {
		t.Fatal("want Initialize to fail when no handlers are registered")
	}
	if _, ok := err.(*InvalidUsageException); !ok {
		t.Fatalf("err = %T(%v), want *InvalidUsageException", err, err)
	}
}

// TestSessionInitializeCompletesOnLoginOpenOk exercises the Handler
// Fan-out Contract's happy path (spec §4.6): a reactor-fired
// login-stream-open-ok event must reach the login handler and unblock
// bring-up's login wait loop without the watchdog ever firing.
func TestSessionInitializeCompletesOnLoginOpenOk(t *testing.T) {
	s, reactor, w, cleanup := newTestSession(t)
	defer cleanup()

	var gotStatus atomic.Bool
	s.Handlers().SetLoginHandler(loginStatusRecorder{onStatus: func(Handle, any) { gotStatus.Store(true) }})

	reactor.enqueue(func() {
		reactor.loginHandler(LoginEvent{Kind: LoginEventStatusOpenOk, Handle: 1})
	})

	done := make(chan error, 1)
	go func() { done <- s.Initialize(context.Background()) }()

	time.Sleep(20 * time.Millisecond)
	wakeReactorFD(t, w)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Initialize() = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Initialize did not return after a login-open-ok event")
	}
	defer s.Uninitialize()

	if got := s.State(); got != StateOperational {
		t.Fatalf("State() = %v, want Operational", got)
	}
	if !gotStatus.Load() {
		t.Fatal("want the login handler's OnLoginStatus to have been invoked")
	}
	if !s.eventReceived.Load() {
		t.Fatal("want event_received latched true")
	}
}

// TestSessionInitializeFailsOnLoginRejected exercises the rejection
// path of the same contract: a login-stream-rejected event must fail
// Initialize with *LoginRequestRejectedException rather than hanging
// until the watchdog fires.
func TestSessionInitializeFailsOnLoginRejected(t *testing.T) {
	s, reactor, w, cleanup := newTestSession(t)
	defer cleanup()

	reactor.enqueue(func() {
		reactor.loginHandler(LoginEvent{Kind: LoginEventStatusRejected, Handle: 1})
	})

	done := make(chan error, 1)
	go func() { done <- s.Initialize(context.Background()) }()

	time.Sleep(20 * time.Millisecond)
	wakeReactorFD(t, w)

	select {
	case err := <-done:
		if _, ok := err.(*LoginRequestRejectedException); !ok {
			t.Fatalf("err = %T(%v), want *LoginRequestRejectedException", err, err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Initialize did not return after a login-rejected event")
	}
	if got := s.State(); got != StateNotInitialized {
		t.Fatalf("State() = %v, want NotInitialized after failed bring-up", got)
	}
}

// loginStatusRecorder is a LoginHandler whose OnLoginStatus calls back
// into a test-supplied closure, used to observe that a routed event
// actually reached the handler rather than only flipping state.
type loginStatusRecorder struct {
	onStatus func(Handle, any)
}

func (h loginStatusRecorder) OnLoginRefresh(Handle, any) {}
func (h loginStatusRecorder) OnLoginStatus(handle Handle, closure any) {
	if h.onStatus != nil {
		h.onStatus(handle, closure)
	}
}

// TestSessionRegisterClientSubmitsToReactorAndWakesPipe exercises the
// RegisterClient/Reissue/Submit wiring: each must hand its message to
// the reactor against the primary channel and notify the wakeup pipe.
func TestSessionRegisterClientSubmitsToReactorAndWakesPipe(t *testing.T) {
	s, reactor, w, cleanup := newTestSession(t)
	defer cleanup()

	reactor.enqueue(func() {
		reactor.loginHandler(LoginEvent{Kind: LoginEventStatusOpenOk, Handle: 1})
	})
	done := make(chan error, 1)
	go func() { done <- s.Initialize(context.Background()) }()
	time.Sleep(20 * time.Millisecond)
	wakeReactorFD(t, w)
	if err := <-done; err != nil {
		t.Fatalf("Initialize() = %v, want nil", err)
	}
	defer s.Uninitialize()

	handle, err := s.RegisterClient(ItemKindItem, "closure-1", 0)
	if err != nil {
		t.Fatalf("RegisterClient: %v", err)
	}
	if !s.pipe.Pending() {
		t.Fatal("want RegisterClient to notify the wakeup pipe")
	}
	_ = s.pipe.Drain()

	if err := s.Reissue(handle); err != nil {
		t.Fatalf("Reissue: %v", err)
	}
	if err := s.Submit(handle, "generic-msg"); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	reactor.mu.Lock()
	calls := len(reactor.submitCalls)
	reactor.mu.Unlock()
	if calls != 3 {
		t.Fatalf("reactor.submitCalls = %d, want 3 (register + reissue + submit)", calls)
	}
	for s.pipe.Pending() {
		_ = s.pipe.Drain()
	}

	if _, err := s.RegisterClient(ItemKindItem, "closure-2", 0); err != nil {
		t.Fatalf("RegisterClient: %v", err)
	}
	if !s.pipe.Pending() {
		t.Fatal("want a second submit to notify the wakeup pipe again")
	}
}

// TestSessionSubmitRejectsUnknownHandle proves the existing
// InvalidHandleException guard survives the reactor-wiring change.
func TestSessionSubmitRejectsUnknownHandle(t *testing.T) {
	s, reactor, w, cleanup := newTestSession(t)
	defer cleanup()
	_ = reactor
	_ = w

	if err := s.Submit(Handle(999999), "msg"); err == nil {
		t.Fatal("want Submit to reject an unknown handle")
	} else if _, ok := err.(*InvalidHandleException); !ok {
		t.Fatalf("err = %T(%v), want *InvalidHandleException", err, err)
	}
}
