package mdsession

import "context"

// ReactorChannel is a connected (or connecting) transport endpoint
// owned by a Reactor. The Session only ever holds the identifier the
// reactor itself hands back from OpenChannel; it never constructs one.
type ReactorChannel interface {
	// SocketID is the pollable descriptor the Reactor adds to its own
	// readiness set on connect and removes on disconnect (spec §6.2).
	SocketID() int
}

// ReactorCreateOptions carries what a Reactor needs to create itself:
// the resolved ActiveConfig (dispatch model, channel sets and the rest).
type ReactorCreateOptions struct {
	Config *ActiveConfig

	// JSONConverter is not dereferenced by this package. Session.Initialize
	// leaves it zero and passes the converter parameters separately to
	// Reactor.InitJSONConverter once the reactor exists (spec §6.2's "JSON
	// converter init" bullet).
	JSONConverter JSONConverterOptions
}

// JSONConverterOptions groups the reactor-library JSON converter
// initialization parameters named by spec §6.2.
type JSONConverterOptions struct {
	DictionaryHandle     Handle
	ServiceNameToID      func(name string) (id uint16, ok bool)
	DefaultServiceID     uint16
	CatchUnknownFids     bool
	CatchUnknownKeys     bool
	ExpandedEnumFields   bool
	OutputBufferSize     uint32
}

// ReactorDispatchOptions bounds a single Reactor.Dispatch call (spec
// §6.2: "dispatch(reactor, opts{max_messages})").
type ReactorDispatchOptions struct {
	MaxMessages int
}

// ReactorDispatchResult reports the outcome of one Reactor.Dispatch
// call.
type ReactorDispatchResult struct {
	// Dispatched counts the handler callbacks actually invoked by this
	// call. The dispatch loop's bounded inner retry (spec §4.4 step 4)
	// stops as soon as this is greater than zero -- a Dispatch call that
	// reports MorePending without having dispatched anything yet (e.g. a
	// reactor still draining its own internal I/O) must still be retried
	// up to the bound rather than treated as "a message was dispatched".
	Dispatched int
	// MorePending is true if the reactor has additional queued messages
	// beyond the MaxMessages bound just processed.
	MorePending bool
	// Done is true if the reactor has no more work until the next
	// readiness signal.
	Done bool
	// Err is non-nil on a fatal dispatch failure (scenario 6); the
	// dispatch loop stops and routes it via the error router.
	Err error
}

// Reactor is the external transport-library collaborator the Session
// drives (spec §6.2). It is a black box by design -- this package ships
// no implementation, only the contract and a deterministic fake used by
// this package's own tests (reactor_fake_test.go).
type Reactor interface {
	// Create brings the reactor into existence from the resolved
	// config. Called once during Session.Initialize.
	Create(opts ReactorCreateOptions) error
	// Destroy tears the reactor down. Called once during
	// Session.Uninitialize; must be safe to call after a failed Create.
	Destroy() error

	// Dispatch synchronously invokes at most opts.MaxMessages handler
	// callbacks, returning once that bound is reached or no more work is
	// queued. The reactor holds the User Lock for the duration of each
	// individual callback invocation (spec §5) -- the Session does not
	// acquire it again around this call.
	Dispatch(ctx context.Context, opts ReactorDispatchOptions) ReactorDispatchResult

	// EventFD returns the pollable descriptor that becomes readable when
	// reactor work is pending. Stable for the reactor's lifetime.
	EventFD() int

	// OpenChannel establishes a connection described by cfg, returning
	// the reactor-owned channel handle.
	OpenChannel(cfg ChannelConfig) (ReactorChannel, error)
	// CloseChannel tears a previously opened channel down.
	CloseChannel(ch ReactorChannel) error

	// InitJSONConverter wires the dictionary/service-lookup/policy
	// parameters the reactor needs before any item request can be
	// processed (spec §6.2).
	InitJSONConverter(opts JSONConverterOptions) error

	// IOCtl performs runtime tuning (spec §6.2 "ioctl(code, value)").
	IOCtl(code int, value int64) error

	// Submit hands msg to the reactor's outbound queue against ch on
	// behalf of handle, returning once the reactor has accepted it --
	// not necessarily sent it. RegisterClient's implied initial request
	// and every subsequent Reissue/Submit call route through here (spec
	// §6.3, §2's user-thread submit path).
	Submit(ch ReactorChannel, handle Handle, msg any) error

	// SetOAuthCredentialRenewalHandler installs the callback hook the
	// reactor invokes when an access token needs renewal. fn is called
	// with the User Lock held, exactly like every other reactor
	// callback (spec §4.6).
	SetOAuthCredentialRenewalHandler(fn func(channel ReactorChannel))

	// SetLoginEventHandler, SetDirectoryEventHandler,
	// SetDictionaryEventHandler, SetItemEventHandler and
	// SetChannelEventHandler install the five callback-kind hooks the
	// reactor's Dispatch invokes synchronously, with the User Lock held,
	// as it processes queued protocol events (spec §4.6: "the reactor
	// library invokes one of five callback kinds").
	SetLoginEventHandler(fn func(LoginEvent))
	SetDirectoryEventHandler(fn func(DirectoryEvent))
	SetDictionaryEventHandler(fn func(DictionaryEvent))
	SetItemEventHandler(fn func(ItemEvent))
	SetChannelEventHandler(fn func(ChannelEvent))
}
