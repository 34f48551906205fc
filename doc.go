// Package mdsession implements the session runtime core of a market-data
// access library: the long-lived object that owns a transport reactor,
// drives one or more connections to upstream data systems, routes
// asynchronous protocol events to domain-specific handlers, multiplexes
// user-initiated requests with reactor I/O on a single event loop, and
// enforces lifecycle, timeout, and warm-standby policies for the whole
// session.
//
// # Architecture
//
// A [Session] owns a [Reactor] handle (an external collaborator, see the
// [Reactor] documentation), a wakeup pipe, a timer wheel, a handler
// registry, and an [ActiveConfig]. Bring-up proceeds through a strictly
// ordered state machine (see [SessionState]); steady-state operation runs
// a single dispatch loop that waits for readiness on the wakeup pipe and
// the reactor's event descriptor, drains whichever is ready, invokes the
// reactor's dispatch (firing zero or more handler callbacks), and then
// executes any due timers.
//
// # Platform support
//
// The wakeup pipe and readiness multiplexer are implemented using
// platform-native mechanisms:
//   - Linux: eventfd + epoll
//   - Darwin: pipe + kqueue
//   - Windows: anonymous pipe, polled with PeekNamedPipe
//
// # Concurrency
//
// At most two goroutines ever touch a Session: the calling goroutine(s)
// and, optionally, one internal dispatch goroutine (see
// [DispatchModeAPIThread]). User API entry points and reactor callback
// invocations are always serialized by the session's user lock; the
// internal dispatch goroutine, when running, holds a separate dispatch
// lock for its whole lifetime. The wakeup pipe and timer wheel each
// guard their own state with a private mutex that never calls back into
// Session code, so they can never block on (or deadlock against) either
// of the two session-level locks.
//
// # Usage
//
//	sess := mdsession.NewSession(mdsession.SessionOptions{
//	    NewReactor: myReactorFactory,
//	})
//	sess.Handlers().SetLoginHandler(myLoginHandler)
//	sess.Handlers().SetDirectoryHandler(myDirectoryHandler)
//	sess.Handlers().SetDictionaryHandler(myDictionaryHandler)
//	sess.Handlers().SetItemHandler(myItemHandler)
//	sess.Handlers().SetChannelHandler(myChannelHandler)
//
//	if err := sess.Initialize(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer sess.Uninitialize()
//
//	handle, err := sess.RegisterClient(mdsession.ItemKindItem, myClosure, 0)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	for {
//	    if err := sess.Dispatch(ctx); err != nil {
//	        break
//	    }
//	}
//
// # Error handling
//
// Errors reach the caller either as a synchronous typed error (default) or
// as an asynchronous callback on a registered [ErrorClientHandler] -- never
// both, never neither.
package mdsession
