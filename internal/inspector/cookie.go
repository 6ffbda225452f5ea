package inspector

// Cookie pairs a will* hook with its did* hook.
//
// It records whether a session was active when the will* hook ran and the
// epoch of the agent it consulted: the running timeline's epoch when a
// timeline was recording, the session epoch otherwise. Epochs are issued by
// the Controller from a counter that only grows, so an agent created after
// the will* hook always carries a larger epoch than the cookie.
//
// The zero Cookie is inert: its did* hook does nothing.
type Cookie struct {
	sessionWasActive bool
	agentEpoch       uint64
}

// Inert reports whether the paired did* hook will do nothing.
func (c Cookie) Inert() bool {
	return !c.sessionWasActive || c.agentEpoch == 0
}

// Epoch returns the agent epoch the cookie was issued for.
func (c Cookie) Epoch() uint64 { return c.agentEpoch }
