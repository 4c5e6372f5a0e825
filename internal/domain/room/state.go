package room

// allowedTransition lists the only legal lifecycle moves: a poll starts
// waiting, opens once, and may then be closed and reopened by the host.
// Requesting the current state again is not a no-op, it is a rejected request.
func allowedTransition(from, to PollState) bool {
	switch from {
	case StateWaiting:
		return to == StateOpen
	case StateOpen:
		return to == StateClosed
	case StateClosed:
		return to == StateOpen
	default:
		return false
	}
}
