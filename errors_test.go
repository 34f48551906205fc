package mdsession

import (
	"errors"
	"testing"
)

type recordingErrorHandler struct {
	calls []string
}

func (h *recordingErrorHandler) OnInvalidUsage(text string, code int) {
	h.calls = append(h.calls, "invalid_usage")
}
func (h *recordingErrorHandler) OnInvalidHandle(handle Handle, text string) {
	h.calls = append(h.calls, "invalid_handle")
}
func (h *recordingErrorHandler) OnMemoryExhaustion(text string) {
	h.calls = append(h.calls, "memory_exhaustion")
}
func (h *recordingErrorHandler) OnJSONConverter(text string, code int, channel, provider string) {
	h.calls = append(h.calls, "json_converter")
}
func (h *recordingErrorHandler) OnSystemError(code int, address, text string) {
	h.calls = append(h.calls, "system_error")
}
func (h *recordingErrorHandler) OnInaccessibleLogFile(filename, text string) {
	h.calls = append(h.calls, "inaccessible_log_file")
}

func TestErrorRouterThrowsWhenNoHandlerRegistered(t *testing.T) {
	r := newErrorRouter(noopLogger{})

	err := r.routeInvalidUsage("bad call", 42)
	if err == nil {
		t.Fatal("expected a returned exception with no handler registered")
	}
	var iu *InvalidUsageException
	if !errors.As(err, &iu) {
		t.Fatalf("expected *InvalidUsageException, got %T", err)
	}
	if iu.Code != 42 || iu.Text != "bad call" {
		t.Fatalf("unexpected exception contents: %+v", iu)
	}
}

func TestErrorRouterRoutesToHandlerExclusively(t *testing.T) {
	h := &recordingErrorHandler{}
	r := newErrorRouter(noopLogger{})
	r.setHandler(h)

	if err := r.routeInvalidUsage("x", 1); err != nil {
		t.Fatalf("expected nil error when a handler is registered, got %v", err)
	}
	if err := r.routeSystemError(7, "addr", "boom"); err != nil {
		t.Fatalf("expected nil error when a handler is registered, got %v", err)
	}

	if len(h.calls) != 2 {
		t.Fatalf("expected exactly 2 callback invocations, got %v", h.calls)
	}
}

func TestExceptionTypesUnwrapNothingWhenNoCause(t *testing.T) {
	e := &SystemException{Code: 1, Address: "a", Text: "b"}
	if e.Error() == "" {
		t.Fatal("expected a non-empty error string")
	}
	if errors.Unwrap(e) != nil {
		t.Fatalf("expected no wrapped cause, got %v", errors.Unwrap(e))
	}
}
