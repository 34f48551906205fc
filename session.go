package mdsession

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// LoginRequestTimeOutException is thrown when bring-up's login watchdog
// fires before an open-ok or rejection response is observed (spec §4.5
// step 13, P8).
type LoginRequestTimeOutException struct {
	Host, Port string
}

func (e *LoginRequestTimeOutException) Error() string {
	return fmt.Sprintf("mdsession: login request timed out against %s:%s", e.Host, e.Port)
}

// LoginRequestRejectedException is thrown when the login handler reports
// a rejected login response during bring-up.
type LoginRequestRejectedException struct {
	Text string
}

func (e *LoginRequestRejectedException) Error() string {
	return "mdsession: login request rejected: " + e.Text
}

// InvalidOperationException is thrown when Initialize observes the
// at-exit latch set mid bring-up, and by Dispatch and RegisterClient once
// the latch is set. Reissue, Unregister, Submit, ModifyIOCtl and the
// channel accessors do not check the latch.
type InvalidOperationException struct {
	Text string
}

func (e *InvalidOperationException) Error() string {
	return "mdsession: invalid operation: " + e.Text
}

// AdminLoginRequest is the optional pre-registered login request a
// caller supplies before Initialize (spec §4.5 step 10: "If a
// user-supplied admin client is set, pre-register a login request
// against it").
type AdminLoginRequest struct {
	Client  LoginHandler
	Closure any
}

// ChannelInformation is the snapshot Session.GetChannelInformation
// returns for every currently open channel (spec §6.3).
type ChannelInformation struct {
	Channel ReactorChannel
	SrcName string
}

// ChannelStatistics is the snapshot Session.GetChannelStatistics returns
// (spec §6.3). The Reactor interface has no statistics call, so
// GetChannelStatistics always returns it zero-valued.
type ChannelStatistics struct {
	BytesRead     uint64
	BytesWritten  uint64
	PingsSent     uint64
	PingsReceived uint64
}

// Session is the long-lived object described by spec §1/§3: it owns a
// transport Reactor, drives channel bring-up through the lifecycle in
// §4.5, fans out protocol callbacks (§4.6), and multiplexes user
// requests with reactor I/O on one dispatch loop (§4.4).
//
// At most two goroutines ever touch a Session concurrently: the calling
// (user) goroutine and, in ApiThread dispatch mode, one internal
// dispatch goroutine started by Initialize. Every exported method
// except State and Handlers acquires the User Lock; the reactor itself holds the User Lock for
// the duration of each callback it invokes (spec §5), so handler
// implementations must never call back into a Session method that
// itself acquires the User Lock.
type Session struct {
	newReactor  func() Reactor
	sessionOpts SessionOptions

	userMu sync.Mutex // User Lock (spec §5)

	state *sessionState

	instanceID     uint64
	instanceName   string
	correlationID  string
	configuredName string

	config     *ActiveConfig
	logger     Logger
	ownsLogger bool

	errRouter *errorRouter
	handlers  *HandlerRegistry
	items     *itemRegistry

	pipe    *wakeupPipe
	poller  readinessPoller
	timers  *timerWheel
	reactor Reactor

	channels []ReactorChannel

	adminLogin *AdminLoginRequest

	// eventReceived latches true the first time any of the five reactor
	// callback kinds fires (spec §4.6 "mark event_received = true").
	eventReceived atomic.Bool

	uninitInvoked bool

	atExit          atomic.Bool
	dispatchRunning atomic.Bool
	dispatchStop    chan struct{}
	dispatchDoneWg  sync.WaitGroup
	dispatchMu      sync.Mutex // Dispatch Lock (spec §5)
}

// SessionOptions groups the constructor-time collaborators Initialize
// needs but that have no place on ActiveConfig: the config source, the
// programmatic override layer, the per-call overrides, an optional
// pre-injected Logger/ErrorClientHandler/admin login, and the Reactor
// factory (spec §6.2 -- genuinely external, so Session only ever holds
// a constructor function for it).
type SessionOptions struct {
	ConfiguredName string

	Source        ConfigSource
	ConfigOptions []ConfigOption
	CallOverrides CallOverrides

	Logger      Logger
	ErrorClient ErrorClientHandler
	AdminLogin  *AdminLoginRequest

	// NewReactor constructs the transport reactor this Session will
	// drive. Required -- this package ships no production Reactor.
	NewReactor func() Reactor
}

// NewSession constructs a Session in StateNotInitialized. Call
// Initialize to bring it up.
func NewSession(opts SessionOptions) *Session {
	return &Session{
		newReactor:     opts.NewReactor,
		state:          newSessionState(),
		configuredName: opts.ConfiguredName,
		logger:         opts.Logger,
		adminLogin:     opts.AdminLogin,
		handlers:       NewHandlerRegistry(),
		items:          newItemRegistry(),
		timers:         newTimerWheel(),
		dispatchStop:   make(chan struct{}),
		sessionOpts:    opts,
	}
}

// State returns the current lifecycle state (P2).
func (s *Session) State() SessionState {
	return s.state.Load()
}

// Handlers returns the handler registry, for callers that want to set
// handlers before calling Initialize.
func (s *Session) Handlers() *HandlerRegistry {
	return s.handlers
}

// pipePortNotice makes the PipePort notice a one-time, process-wide log
// line rather than one per Session.
var pipePortNotice sync.Once

// Initialize runs the bring-up sequence of spec §4.5. On any failure,
// bring-up tears itself fully down (via the process-wide cleanup lock)
// before returning the error.
func (s *Session) Initialize(ctx context.Context) (err error) {
	s.userMu.Lock()
	defer s.userMu.Unlock()

	calledFromInit := true
	defer func() {
		if err != nil {
			globalSessionRegistry.withCleanupLock(func() {
				s.uninitializeLocked(true, calledFromInit)
			})
			if s.errRouter != nil {
				if routed := s.routeBringUpFailure(err); routed {
					err = nil
				}
			}
		}
	}()

	// Step 1: register in the process-wide session map.
	s.instanceID, s.instanceName, s.correlationID = globalSessionRegistry.register(s, s.configuredName)

	// Step 2: resolve configuration.
	resolver := newConfigResolver(s.sessionOpts.Source, s.instanceName, s.sessionOpts.ConfigOptions, s.sessionOpts.CallOverrides)
	cfg, cerr := resolver.resolve()
	if cerr != nil {
		return cerr
	}
	s.config = cfg

	// Step 3: create the internal logger if none was injected.
	if s.logger == nil {
		l, lerr := s.buildDefaultLogger(cfg)
		if lerr != nil {
			return lerr
		}
		s.logger = l
		s.ownsLogger = true
	}
	s.errRouter = newErrorRouter(s.logger)
	s.errRouter.setHandler(s.sessionOpts.ErrorClient)
	s.flushConfigWarnings(cfg)
	if cfg.PipePort != 0 {
		pipePortNotice.Do(func() {
			logAt(s.logger, LogLevelInfo, "PipePort has no effect: the wakeup pipe is an anonymous pipe or eventfd", map[string]any{"PipePort": cfg.PipePort})
		})
	}

	// Step 4: create the wakeup pipe.
	pipe, perr := newWakeupPipe()
	if perr != nil {
		return perr
	}
	s.pipe = pipe

	// Step 5: initialize the transport library (ref-counted, process-wide).
	if terr := globalSessionRegistry.acquireTransport(func() error { return nil }); terr != nil {
		return terr
	}
	s.state.advance(StateNotInitialized, StateTransportInitialized)

	// Step 6: create the reactor.
	if s.newReactor == nil {
		return &InvalidUsageException{Text: "no reactor factory supplied", Code: 0}
	}
	s.reactor = s.newReactor()
	if rerr := s.reactor.Create(ReactorCreateOptions{Config: cfg}); rerr != nil {
		return rerr
	}
	s.state.advance(StateTransportInitialized, StateReactorInitialized)

	// Step 7: add the pipe and reactor fds to the readiness set.
	poller, perr2 := newReadinessPoller(s.pipe.ReadFD(), s.reactor.EventFD())
	if perr2 != nil {
		return perr2
	}
	s.poller = poller

	// Step 8: handlers are created by the caller via SessionOptions /
	// HandlerRegistry before Initialize; this step validates the
	// required ones are present.
	if verr := s.validateRequiredHandlers(); verr != nil {
		return verr
	}

	// Step 9: consumer JSON<->RWF converter init.
	if jerr := s.reactor.InitJSONConverter(JSONConverterOptions{
		ServiceNameToID:    s.handlers.DirectoryHandler().ServiceNameToID,
		DefaultServiceID:   cfg.DefaultServiceID,
		CatchUnknownFids:   cfg.CatchUnknownJSONFids,
		CatchUnknownKeys:   cfg.CatchUnknownJSONKeys,
		ExpandedEnumFields: cfg.JSONExpandedEnumFields,
		OutputBufferSize:   cfg.OutputBufferSize,
	}); jerr != nil {
		return jerr
	}

	s.reactor.SetOAuthCredentialRenewalHandler(s.onOAuthCredentialRenewal)
	s.reactor.SetLoginEventHandler(s.onLoginEvent)
	s.reactor.SetDirectoryEventHandler(s.onDirectoryEvent)
	s.reactor.SetDictionaryEventHandler(s.onDictionaryEvent)
	s.reactor.SetItemEventHandler(s.onItemEvent)
	s.reactor.SetChannelEventHandler(s.onChannelEvent)

	// Step 10: pre-register an admin-client login request, if set.
	if s.adminLogin != nil {
		s.handlers.SetLoginHandler(s.adminLogin.Client)
	}

	// Step 11: open channels.
	for _, ch := range cfg.ConfigChannelSet {
		rc, oerr := s.reactor.OpenChannel(ch)
		if oerr != nil {
			return oerr
		}
		s.channels = append(s.channels, rc)
	}

	// Step 12: schedule the login watchdog and spin the dispatch loop.
	var watchdogFired atomic.Bool
	var watchdogHandle TimerHandle
	if d, enabled := cfg.loginWatchdogDuration(); enabled {
		watchdogHandle = s.timers.schedule(d, func() { watchdogFired.Store(true) })
	}
	s.state.advance(StateReactorInitialized, StateLoginStreamOpenPending)

	for {
		st := s.state.Load()
		if st >= StateLoginStreamOpenOk || st == StateLoginStreamRejected {
			break
		}
		if watchdogFired.Load() {
			break
		}
		if s.atExit.Load() {
			break
		}
		outcome := runDispatchOnce(ctx, s.poller, s.pipe, s.reactor, s.timers, s.atExit.Load)
		if outcome.Err != nil {
			return outcome.Err
		}
	}

	// Step 13.
	switch {
	case watchdogFired.Load():
		host, port := s.primaryChannelAddress()
		return &LoginRequestTimeOutException{Host: host, Port: port}
	case s.state.Load() == StateLoginStreamRejected:
		return &LoginRequestRejectedException{Text: "login stream rejected"}
	case s.atExit.Load():
		return &InvalidOperationException{Text: "at-exit latch set during bring-up"}
	default:
		s.timers.cancel(watchdogHandle)
	}

	// Step 14: load directory, then dictionary. The reactor's own
	// dispatch already fans the refresh callbacks out to the directory
	// and dictionary handlers (spec §4.6); no extra request is issued
	// here beyond what channel open already triggers.
	s.state.advance(StateLoginStreamOpenOk, StateOperational)

	// Step 15: start the internal dispatch goroutine, if configured.
	if cfg.DispatchModel == DispatchModeAPIThread {
		s.startDispatchGoroutine(ctx)
	}

	return nil
}

// routeBringUpFailure routes a bring-up failure through the error
// client handler if one is registered, following the same
// exactly-one-path policy as any other error (spec §4.5: "either route
// through the error-client handler or re-throw"). Returns true if the
// error was routed (and should not also be returned to the caller).
func (s *Session) routeBringUpFailure(err error) bool {
	h := s.errRouter.handler
	if h == nil {
		return false
	}
	switch e := err.(type) {
	case *LoginRequestTimeOutException:
		h.OnSystemError(0, e.Host+":"+e.Port, e.Error())
	case *LoginRequestRejectedException:
		h.OnSystemError(0, "", e.Error())
	case *InvalidOperationException:
		h.OnInvalidUsage(e.Text, 0)
	case *InvalidUsageException:
		h.OnInvalidUsage(e.Text, e.Code)
	case *SystemException:
		h.OnSystemError(e.Code, e.Address, e.Text)
	default:
		return false
	}
	return true
}

func (s *Session) primaryChannelAddress() (host, port string) {
	if s.config == nil || len(s.config.ConfigChannelSet) == 0 {
		return "", ""
	}
	ch := s.config.ConfigChannelSet[0]
	return ch.Host, ch.Service
}

func (s *Session) validateRequiredHandlers() error {
	switch {
	case s.handlers.LoginHandler() == nil:
		return &InvalidUsageException{Text: "no login handler registered", Code: 1}
	case s.handlers.DirectoryHandler() == nil:
		return &InvalidUsageException{Text: "no directory handler registered", Code: 2}
	case s.handlers.DictionaryHandler() == nil:
		return &InvalidUsageException{Text: "no dictionary handler registered", Code: 3}
	case s.handlers.ItemHandler() == nil:
		return &InvalidUsageException{Text: "no item handler registered", Code: 4}
	case s.handlers.ChannelHandler() == nil:
		return &InvalidUsageException{Text: "no channel handler registered", Code: 5}
	}
	return nil
}

func (s *Session) buildDefaultLogger(cfg *ActiveConfig) (Logger, error) {
	switch cfg.LoggerType {
	case LoggerTypeFile:
		return NewFileLogger(cfg.LoggerFileName, cfg.LoggerSeverity, cfg.IncludeDateInLoggerOutput, cfg.MaxLogFileSize, cfg.NumberOfLogFiles)
	default:
		return NewStdoutLogger(cfg.LoggerSeverity, cfg.IncludeDateInLoggerOutput), nil
	}
}

func (s *Session) flushConfigWarnings(cfg *ActiveConfig) {
	for _, ce := range cfg.ConfigErrors {
		logAt(s.logger, LogLevelWarn, ce.Message, map[string]any{"path": ce.Path})
	}
}

// onOAuthCredentialRenewal is installed on the Reactor during bring-up
// and invoked with the User Lock held (spec §4.6, scenario 5).
func (s *Session) onOAuthCredentialRenewal(channel ReactorChannel) {
	h := s.handlers.OAuthCredentialHandler()
	if h == nil {
		return
	}
	s.handlers.RunOAuthCallback(channel, func() {
		if _, err := h.OnCredentialRenewal(channel); err != nil {
			s.router().routeSystemError(0, "", err.Error())
		}
	})
}

// onLoginEvent routes a login-stream callback to the login handler and,
// for the two status kinds that settle bring-up, advances state off the
// login watchdog's wait loop (spec §4.5 steps 12/13, §4.6). Called by
// the reactor with the User Lock held, so it uses the forced set rather
// than advance -- this fires from the reactor's own callback dispatch,
// not Session's linear bring-up code path.
func (s *Session) onLoginEvent(ev LoginEvent) {
	s.eventReceived.Store(true)
	if h := s.handlers.LoginHandler(); h != nil {
		switch ev.Kind {
		case LoginEventRefresh:
			h.OnLoginRefresh(ev.Handle, ev.Closure)
		default:
			h.OnLoginStatus(ev.Handle, ev.Closure)
		}
	}
	switch ev.Kind {
	case LoginEventStatusOpenOk:
		s.state.set(StateLoginStreamOpenOk)
	case LoginEventStatusRejected:
		s.state.set(StateLoginStreamRejected)
	}
}

// onDirectoryEvent routes a directory-stream callback to the directory
// handler (spec §4.6).
func (s *Session) onDirectoryEvent(ev DirectoryEvent) {
	s.eventReceived.Store(true)
	h := s.handlers.DirectoryHandler()
	if h == nil {
		return
	}
	if ev.Kind == DirectoryEventUpdate {
		h.OnDirectoryUpdate(ev.Handle, ev.Closure)
		return
	}
	h.OnDirectoryRefresh(ev.Handle, ev.Closure)
}

// onDictionaryEvent routes a dictionary-stream callback to the
// dictionary handler (spec §4.6).
func (s *Session) onDictionaryEvent(ev DictionaryEvent) {
	s.eventReceived.Store(true)
	h := s.handlers.DictionaryHandler()
	if h == nil {
		return
	}
	if ev.Kind == DictionaryEventUpdate {
		h.OnDictionaryUpdate(ev.Handle, ev.Closure)
		return
	}
	h.OnDictionaryRefresh(ev.Handle, ev.Closure)
}

// onItemEvent routes an item-stream callback to the item handler (spec
// §4.6).
func (s *Session) onItemEvent(ev ItemEvent) {
	s.eventReceived.Store(true)
	h := s.handlers.ItemHandler()
	if h == nil {
		return
	}
	switch ev.Kind {
	case ItemEventUpdate:
		h.OnItemUpdate(ev.Handle, ev.Closure)
	case ItemEventStatus:
		h.OnItemStatus(ev.Handle, ev.Closure)
	case ItemEventAllMsg:
		h.OnAllMsg(ev.Handle, ev.Closure)
	default:
		h.OnItemRefresh(ev.Handle, ev.Closure)
	}
}

// onChannelEvent routes a channel lifecycle callback to the channel
// handler (spec §4.6).
func (s *Session) onChannelEvent(ev ChannelEvent) {
	s.eventReceived.Store(true)
	h := s.handlers.ChannelHandler()
	if h == nil {
		return
	}
	switch ev.Kind {
	case ChannelEventDown:
		h.OnChannelDown(ev.Channel, ev.Text)
	case ChannelEventReady:
		h.OnChannelReady(ev.Channel)
	default:
		h.OnChannelOpened(ev.Channel)
	}
}

// startDispatchGoroutine starts and owns the internal ApiThread
// dispatch goroutine (spec §4.5 step 15), busy-waiting on its
// started-flag in 100ms increments until it reports running.
func (s *Session) startDispatchGoroutine(ctx context.Context) {
	started := make(chan struct{})
	s.dispatchDoneWg.Add(1)
	go func() {
		defer s.dispatchDoneWg.Done()
		s.dispatchMu.Lock()
		defer s.dispatchMu.Unlock()
		s.dispatchRunning.Store(true)
		close(started)
		for {
			select {
			case <-s.dispatchStop:
				s.dispatchRunning.Store(false)
				return
			default:
			}
			outcome := runDispatchOnce(ctx, s.poller, s.pipe, s.reactor, s.timers, s.atExit.Load)
			if outcome.Err != nil || outcome.AtExit {
				s.dispatchRunning.Store(false)
				return
			}
		}
	}()
	for !s.dispatchRunning.Load() {
		select {
		case <-started:
		case <-time.After(100 * time.Millisecond):
		}
		if s.dispatchRunning.Load() {
			break
		}
	}
}

// Dispatch drives one pass of the dispatch loop in UserDispatch mode
// (spec §6.3 dispatch(timeout)). Calling it in ApiDispatch mode is a
// usage error, since the internal goroutine already owns the loop.
func (s *Session) Dispatch(ctx context.Context) error {
	s.userMu.Lock()
	defer s.userMu.Unlock()

	if s.atExit.Load() {
		return &InvalidOperationException{Text: "session is being torn down"}
	}
	if s.config != nil && s.config.DispatchModel == DispatchModeAPIThread {
		return s.router().routeInvalidUsage("Dispatch called while ApiThread dispatch mode owns the loop", 0)
	}
	outcome := runDispatchOnce(ctx, s.poller, s.pipe, s.reactor, s.timers, s.atExit.Load)
	if outcome.Err != nil {
		return s.router().routeSystemError(0, "", outcome.Err.Error())
	}
	return nil
}

// router returns the error router, falling back to a noop-logger router
// for calls made before Initialize has run (errRouter is only wired up
// in bring-up step 3).
func (s *Session) router() *errorRouter {
	if s.errRouter == nil {
		return newErrorRouter(noopLogger{})
	}
	return s.errRouter
}

// RegisterClient registers closure against kind, returning a process-
// wide unique Handle, and submits the implied initial request to the
// reactor (spec §6.3 register_client; §2's user-thread submit path).
func (s *Session) RegisterClient(kind ItemKind, closure any, parentHandle Handle) (Handle, error) {
	s.userMu.Lock()
	defer s.userMu.Unlock()
	if s.atExit.Load() {
		return 0, &InvalidOperationException{Text: "session is being torn down"}
	}
	h, req := s.items.register(kind, closure, parentHandle)
	if err := s.submitToReactor(h, req.closure); err != nil {
		return h, err
	}
	return h, nil
}

// Reissue re-submits a previously registered request (spec §6.3
// reissue(request, handle)).
func (s *Session) Reissue(handle Handle) error {
	s.userMu.Lock()
	defer s.userMu.Unlock()
	req, ok := s.items.lookup(handle)
	if !ok {
		return s.router().routeInvalidHandle(handle, "reissue: unknown or expired handle")
	}
	return s.submitToReactor(handle, req.closure)
}

// Unregister releases handle (spec §6.3 unregister(handle)).
func (s *Session) Unregister(handle Handle) {
	s.userMu.Lock()
	defer s.userMu.Unlock()
	s.items.unregister(handle)
}

// Submit sends a generic or post message against handle (spec §6.3
// submit(generic_or_post_msg, handle)).
func (s *Session) Submit(handle Handle, msg any) error {
	s.userMu.Lock()
	defer s.userMu.Unlock()
	if _, ok := s.items.lookup(handle); !ok {
		return s.router().routeInvalidHandle(handle, "submit: unknown or expired handle")
	}
	return s.submitToReactor(handle, msg)
}

// primaryChannel returns the first open channel, the one RegisterClient,
// Reissue and Submit address until this package grows per-handle
// channel affinity.
func (s *Session) primaryChannel() (ReactorChannel, bool) {
	if len(s.channels) == 0 {
		return nil, false
	}
	return s.channels[0], true
}

// submitToReactor is the shared tail of RegisterClient, Reissue and
// Submit: hand msg to the reactor against the primary channel, then
// notify the wakeup pipe so the dispatch loop observes the reactor work
// the submit produced even if nothing else wakes it first (spec §2).
func (s *Session) submitToReactor(handle Handle, msg any) error {
	if s.reactor == nil {
		return nil
	}
	ch, ok := s.primaryChannel()
	if !ok {
		return s.router().routeInvalidUsage("no open channel to submit against", 0)
	}
	if err := s.reactor.Submit(ch, handle, msg); err != nil {
		return s.router().routeSystemError(0, "", err.Error())
	}
	if s.pipe != nil {
		_ = s.pipe.Notify()
	}
	return nil
}

// ModifyIOCtl performs runtime tuning against the reactor (spec §6.3
// modify_ioctl(code, value)).
func (s *Session) ModifyIOCtl(code int, value int64) error {
	s.userMu.Lock()
	defer s.userMu.Unlock()
	if s.reactor == nil {
		return s.router().routeInvalidUsage("modify_ioctl called before Initialize", 0)
	}
	if err := s.reactor.IOCtl(code, value); err != nil {
		return s.router().routeSystemError(0, "", err.Error())
	}
	return nil
}

// GetChannelInformation reports every currently open channel (spec
// §6.3).
func (s *Session) GetChannelInformation() []ChannelInformation {
	s.userMu.Lock()
	defer s.userMu.Unlock()
	out := make([]ChannelInformation, len(s.channels))
	for i, ch := range s.channels {
		out[i] = ChannelInformation{Channel: ch}
	}
	return out
}

// GetChannelStatistics reports aggregate channel counters (spec §6.3).
// The transport reactor is the authority on the underlying counters,
// which this package does not implement; callers needing real numbers
// supply a Reactor that tracks them and surfaces them through their own
// extension to the ReactorChannel they return from OpenChannel.
func (s *Session) GetChannelStatistics() ChannelStatistics {
	s.userMu.Lock()
	defer s.userMu.Unlock()
	return ChannelStatistics{}
}

// Uninitialize tears the session down (spec §4.5 teardown), returning
// it to StateNotInitialized. Idempotent (P3): a second call finds
// uninitInvoked already set and returns immediately.
func (s *Session) Uninitialize() {
	s.userMu.Lock()
	defer s.userMu.Unlock()
	globalSessionRegistry.withCleanupLock(func() {
		s.uninitializeLocked(false, false)
	})
}

// uninitInvoked (on the Session struct) is the idempotence guard kept
// separate from sessionState, which is reset to NotInitialized on every
// teardown including the first -- a second Uninitialize call needs to
// tell "already torn down" apart from "never initialized".
func (s *Session) uninitializeLocked(caughtException, calledFromInit bool) {
	globalSessionRegistry.unregister(s.instanceID)

	if s.uninitInvoked {
		return
	}
	s.uninitInvoked = true

	s.atExit.Store(true)
	if s.pipe != nil {
		_ = s.pipe.Notify()
	}

	if s.dispatchRunning.Load() && !caughtException {
		close(s.dispatchStop)
		if !calledFromInit {
			s.dispatchMu.Lock()
			s.dispatchDoneWg.Wait()
			s.dispatchMu.Unlock()
		} else {
			s.dispatchDoneWg.Wait()
		}
	}

	if s.state.Load() == StateNotInitialized {
		return
	}

	if s.reactor != nil {
		if s.handlers.LoginHandler() != nil && !caughtException {
			s.flushLoginClose()
		}
		for _, ch := range s.channels {
			_ = s.reactor.CloseChannel(ch)
		}
		s.channels = nil
		_ = s.reactor.Destroy()
	}

	s.items.closeAll()

	globalSessionRegistry.releaseTransport(func() {})

	if s.poller != nil {
		_ = s.poller.close()
	}
	if s.pipe != nil {
		_ = s.pipe.Close()
	}

	if s.ownsLogger {
		if tl, ok := s.logger.(*textLogger); ok {
			_ = tl.close()
		}
	}

	s.state.reset()
}

// flushLoginClose gives the login handler a bounded window (10ms
// budget) to flush an orderly login-close message before channels are
// closed (spec §4.5 teardown: "dispatch a bounded loop (10 ms budget...)
// to let an orderly login-close flush").
func (s *Session) flushLoginClose() {
	deadline := time.Now().Add(10 * time.Millisecond)
	for i := 0; i < maxReactorMessagesPerDispatch && time.Now().Before(deadline); i++ {
		result := s.reactor.Dispatch(context.Background(), ReactorDispatchOptions{MaxMessages: 1})
		if result.Err != nil || result.Done || !result.MorePending {
			return
		}
	}
}
