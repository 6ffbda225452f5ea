// Package inspector implements the per-page inspector session: the
// instrumentation hooks the engine calls, and the Controller that turns them
// into frontend events and frontend commands into engine actions.
//
// # Sessions
//
// A Controller moves through Detached, Attaching, Attached and Detaching. An
// independent Enabled flag decides whether hooks do any work at all. Console
// messages and resources are buffered while enabled even when no frontend is
// attached, and are replayed when one attaches.
//
// # Cookies
//
// Paired hooks return a Cookie from the will* call. The did* call checks the
// cookie's epoch against the current session and timeline before acting, so
// a detach and reattach between the two calls turns the did* call into a
// no-op.
//
// # Pauses
//
// DOM and XHR breakpoints break immediately through ScriptDebugger.BreakProgram,
// before the mutation or request happens. Event listener and timer
// breakpoints schedule a pause at the next statement, which DidDispatchEvent
// and DidFireTimer cancel if no script ran.
//
// # Threading
//
// Nothing in this package locks. All methods must run on the engine
// goroutine; transports post inbound commands there.
package inspector
