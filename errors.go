package mdsession

import "fmt"

// The six typed exceptions below are grounded on eventloop/errors.go's
// TypeError/RangeError/TimeoutError idiom: small structs carrying
// structured fields, each satisfying error and Unwrap() error where a
// cause exists. They are never panicked with -- Go functions return
// errors -- so "thrown" in the error-routing table (§4.7) means
// "returned as the function's error result" rather than invoked on the
// error-client handler.

// InvalidUsageException reports a programming error on the caller's
// part (e.g. an operation attempted in the wrong session state).
type InvalidUsageException struct {
	Text string
	Code int
}

func (e *InvalidUsageException) Error() string {
	return fmt.Sprintf("mdsession: invalid usage (code %d): %s", e.Code, e.Text)
}

// InvalidHandleException reports an operation against a Handle the
// caller no longer owns, or never did.
type InvalidHandleException struct {
	Handle Handle
	Text   string
}

func (e *InvalidHandleException) Error() string {
	return fmt.Sprintf("mdsession: invalid handle %d: %s", e.Handle, e.Text)
}

// MemoryExhaustionException reports an allocation failure in a path that
// cannot retry (e.g. growing an internal registry).
type MemoryExhaustionException struct {
	Text string
}

func (e *MemoryExhaustionException) Error() string {
	return "mdsession: memory exhaustion: " + e.Text
}

// JSONConverterException reports a failure translating between wire and
// JSON representations on a given channel/provider.
type JSONConverterException struct {
	Text     string
	Code     int
	Channel  string
	Provider string
}

func (e *JSONConverterException) Error() string {
	return fmt.Sprintf("mdsession: json converter error (code %d) on channel %q provider %q: %s",
		e.Code, e.Channel, e.Provider, e.Text)
}

// SystemException reports a failure surfaced by the underlying
// transport/reactor library itself.
type SystemException struct {
	Code    int
	Address string
	Text    string
}

func (e *SystemException) Error() string {
	return fmt.Sprintf("mdsession: system error (code %d) at %s: %s", e.Code, e.Address, e.Text)
}

// InaccessibleLogFileException reports that a configured log file could
// not be opened or written to.
type InaccessibleLogFileException struct {
	Filename string
	Text     string
}

func (e *InaccessibleLogFileException) Error() string {
	return fmt.Sprintf("mdsession: inaccessible log file %q: %s", e.Filename, e.Text)
}

// ErrorClientHandler receives asynchronous typed error callbacks when a
// Session has one registered, in place of the matching exception being
// returned synchronously (spec §4.7, P6: exactly one of the two occurs
// per error). Optional -- a Session with no error-client handler
// registered returns every routed error instead.
type ErrorClientHandler interface {
	OnInvalidUsage(text string, code int)
	OnInvalidHandle(handle Handle, text string)
	OnMemoryExhaustion(text string)
	OnJSONConverter(text string, code int, channel, provider string)
	OnSystemError(code int, address, text string)
	OnInaccessibleLogFile(filename, text string)
}

// errorRouter implements the error-to-client routing policy of §4.7: log
// at error severity (if the logger's configured level permits error
// output), then either invoke the matching typed callback on the
// registered handler, or hand the typed exception back to the caller.
//
// Grounded on the routing table in spec.md §4.7; there is no teacher
// analogue for the dual callback-or-return policy itself, since
// eventloop's errors.go only ever returns errors. The optional handler
// sits in a plain field with no lock of its own; Session.Initialize sets
// it once during bring-up.
type errorRouter struct {
	logger  Logger
	handler ErrorClientHandler
}

func newErrorRouter(logger Logger) *errorRouter {
	return &errorRouter{logger: logger}
}

// setHandler installs (or clears, with nil) the error-client handler.
func (r *errorRouter) setHandler(h ErrorClientHandler) {
	r.handler = h
}

// routeInvalidUsage logs and then either calls OnInvalidUsage or returns
// the equivalent exception, never both.
func (r *errorRouter) routeInvalidUsage(text string, code int) error {
	r.logError("invalid usage", text)
	if r.handler != nil {
		r.handler.OnInvalidUsage(text, code)
		return nil
	}
	return &InvalidUsageException{Text: text, Code: code}
}

func (r *errorRouter) routeInvalidHandle(handle Handle, text string) error {
	r.logError("invalid handle", text)
	if r.handler != nil {
		r.handler.OnInvalidHandle(handle, text)
		return nil
	}
	return &InvalidHandleException{Handle: handle, Text: text}
}

func (r *errorRouter) routeMemoryExhaustion(text string) error {
	r.logError("memory exhaustion", text)
	if r.handler != nil {
		r.handler.OnMemoryExhaustion(text)
		return nil
	}
	return &MemoryExhaustionException{Text: text}
}

func (r *errorRouter) routeJSONConverter(text string, code int, channel, provider string) error {
	r.logError("json converter", text)
	if r.handler != nil {
		r.handler.OnJSONConverter(text, code, channel, provider)
		return nil
	}
	return &JSONConverterException{Text: text, Code: code, Channel: channel, Provider: provider}
}

func (r *errorRouter) routeSystemError(code int, address, text string) error {
	r.logError("system error", text)
	if r.handler != nil {
		r.handler.OnSystemError(code, address, text)
		return nil
	}
	return &SystemException{Code: code, Address: address, Text: text}
}

func (r *errorRouter) routeInaccessibleLogFile(filename, text string) error {
	r.logError("inaccessible log file", text)
	if r.handler != nil {
		r.handler.OnInaccessibleLogFile(filename, text)
		return nil
	}
	return &InaccessibleLogFileException{Filename: filename, Text: text}
}

func (r *errorRouter) logError(family, text string) {
	logAt(r.logger, LogLevelError, text, map[string]any{"family": family})
}
