package mdsession

import (
	"sync"
	"sync/atomic"
)

// Handle is the opaque identifier returned to the user on registration
// (spec §3). Process-wide unique and monotonically increasing -- never
// recycled, even across Session instances, so a stale Handle from a
// torn-down Session is always reported as invalid rather than
// accidentally colliding with a live one.
type Handle uint64

// handleAllocator hands out process-wide unique, monotonically
// increasing Handle values.
//
// Grounded on eventloop/registry.go's id-allocation pattern: a bare
// atomic counter, no reuse, no free list -- handles must be process-wide
// unique and monotonically increasing, and eventloop's own registry
// already allocates ids the same way for its handle-like identifiers.
var handleAllocator atomic.Uint64

func nextHandle() Handle {
	return Handle(handleAllocator.Add(1))
}

// LoginHandler receives login-stream protocol events.
type LoginHandler interface {
	OnLoginRefresh(handle Handle, closure any)
	OnLoginStatus(handle Handle, closure any)
}

// DirectoryHandler receives directory-stream protocol events and
// answers the synchronous service-name-to-id lookup (spec §4.6).
type DirectoryHandler interface {
	OnDirectoryRefresh(handle Handle, closure any)
	OnDirectoryUpdate(handle Handle, closure any)
	// ServiceNameToID is a synchronous lookup used by the reactor's JSON
	// converter wiring (spec §6.2, §9 "serviceNameToIdCallback"). Returns
	// ok=false if the name is unknown.
	ServiceNameToID(name string) (id uint16, ok bool)
}

// DictionaryHandler receives dictionary-stream protocol events.
type DictionaryHandler interface {
	OnDictionaryRefresh(handle Handle, closure any)
	OnDictionaryUpdate(handle Handle, closure any)
}

// ItemHandler receives item-stream protocol events: refresh, update,
// status, and generic/post-message acknowledgement.
type ItemHandler interface {
	OnItemRefresh(handle Handle, closure any)
	OnItemUpdate(handle Handle, closure any)
	OnItemStatus(handle Handle, closure any)
	OnAllMsg(handle Handle, closure any)
}

// ChannelHandler receives channel lifecycle events (opened, down,
// ready).
type ChannelHandler interface {
	OnChannelOpened(channel ReactorChannel)
	OnChannelDown(channel ReactorChannel, text string)
	OnChannelReady(channel ReactorChannel)
}

// RestLoggingHandler is the optional REST request/response logging
// hook (spec §4.5 "Rest-logging handler (...) restored as an optional
// RestLoggingHandler"), wired to the reactor's REST-request logging
// facility when ActiveConfig.RestEnableLog is set.
type RestLoggingHandler interface {
	OnRestRequest(url string, headers map[string]string)
	OnRestResponse(url string, statusCode int, body []byte)
}

// OAuthCredentialHandler renews OAuth access tokens on demand. Called
// from the reactor's dispatch with the channel's in-oauth-callback
// marker set for the duration (spec §4.6, scenario 5); the marker is
// readable through HandlerRegistry.InOAuthCallback. Session has no
// credential-submission method, and a call from OnCredentialRenewal into
// a Session method that takes the User Lock blocks when the callback
// runs under Session.Dispatch, which holds that lock.
type OAuthCredentialHandler interface {
	OnCredentialRenewal(channel ReactorChannel) (token string, err error)
}

// HandlerRegistry holds exactly one of each required handler kind, plus
// the three optional ones (REST logging, OAuth credential, error client),
// for the lifetime of a Session (spec §3's
// "HandlerRegistry" row). It also owns the per-channel OAuth
// re-entrancy markers, since that state is naturally scoped alongside
// the OAuth handler itself.
//
// Grounded on eventloop/registry.go's pattern of holding optional
// collaborators behind mutex-guarded fields, generalized from "one
// registry of weak-tracked handles" to "one slot per handler kind".
// Handle bookkeeping lives in itemRegistry (itemregistry.go), not here,
// since this package's Handle concept (spec §3) has no teacher analogue
// to borrow directly.
type HandlerRegistry struct {
	mu sync.RWMutex

	login      LoginHandler
	directory  DirectoryHandler
	dictionary DictionaryHandler
	item       ItemHandler
	channel    ChannelHandler

	restLogging RestLoggingHandler
	oauth       OAuthCredentialHandler
	errorClient ErrorClientHandler

	oauthInFlight sync.Map // ReactorChannel -> *atomic.Bool
}

// NewHandlerRegistry constructs an empty registry; the required handler
// kinds (login/directory/dictionary/item/channel) must be set via
// SetLoginHandler etc. before Session.Initialize completes bring-up.
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{}
}

func (r *HandlerRegistry) SetLoginHandler(h LoginHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.login = h
}

func (r *HandlerRegistry) LoginHandler() LoginHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.login
}

func (r *HandlerRegistry) SetDirectoryHandler(h DirectoryHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.directory = h
}

func (r *HandlerRegistry) DirectoryHandler() DirectoryHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.directory
}

func (r *HandlerRegistry) SetDictionaryHandler(h DictionaryHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dictionary = h
}

func (r *HandlerRegistry) DictionaryHandler() DictionaryHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.dictionary
}

func (r *HandlerRegistry) SetItemHandler(h ItemHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.item = h
}

func (r *HandlerRegistry) ItemHandler() ItemHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.item
}

func (r *HandlerRegistry) SetChannelHandler(h ChannelHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.channel = h
}

func (r *HandlerRegistry) ChannelHandler() ChannelHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.channel
}

func (r *HandlerRegistry) SetRestLoggingHandler(h RestLoggingHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.restLogging = h
}

func (r *HandlerRegistry) RestLoggingHandler() RestLoggingHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.restLogging
}

func (r *HandlerRegistry) SetOAuthCredentialHandler(h OAuthCredentialHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.oauth = h
}

func (r *HandlerRegistry) OAuthCredentialHandler() OAuthCredentialHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.oauth
}

func (r *HandlerRegistry) SetErrorClientHandler(h ErrorClientHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errorClient = h
}

func (r *HandlerRegistry) ErrorClientHandler() ErrorClientHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.errorClient
}

// inOAuthCallbackFlag returns the per-channel re-entrancy marker,
// allocating it on first use.
func (r *HandlerRegistry) inOAuthCallbackFlag(ch ReactorChannel) *atomic.Bool {
	if v, ok := r.oauthInFlight.Load(ch); ok {
		return v.(*atomic.Bool)
	}
	v, _ := r.oauthInFlight.LoadOrStore(ch, new(atomic.Bool))
	return v.(*atomic.Bool)
}

// InOAuthCallback reports whether ch is currently inside an OAuth
// credential renewal callback (spec §4.6, scenario 5).
func (r *HandlerRegistry) InOAuthCallback(ch ReactorChannel) bool {
	return r.inOAuthCallbackFlag(ch).Load()
}

// RunOAuthCallback sets ch's in-oauth-callback marker, invokes fn, and
// clears the marker on return (including on panic) -- the
// dispatch-loop's handler-fan-out contract for the OAuth callback kind
// (spec §4.6).
func (r *HandlerRegistry) RunOAuthCallback(ch ReactorChannel, fn func()) {
	flag := r.inOAuthCallbackFlag(ch)
	flag.Store(true)
	defer flag.Store(false)
	fn()
}
