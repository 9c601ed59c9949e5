package metrics

import "time"

// Outcome labels for ScriptInvocation.
const (
	OutcomeOK      = "ok"
	OutcomeFault   = "fault"
	OutcomeUnknown = "unknown_handle"
)

// ScriptInvocation counts one call into the interpreter.
func ScriptInvocation(kind, outcome string) {
	scriptInvocations.WithLabelValues(kind, outcome).Inc()
}

// ObserveGuardWait records how long a caller waited for the interpreter guard.
func ObserveGuardWait(d time.Duration) { guardWait.Observe(d.Seconds()) }

func SessionOpened() { websocketSessions.Inc() }
func SessionClosed() { websocketSessions.Dec() }
