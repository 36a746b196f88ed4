package session

// AllReady reports whether synchronized playback may start: there is at least
// one session and every session has buffered enough. An empty registry is
// never ready.
func AllReady(sessions []*Session) bool {
	if len(sessions) == 0 {
		return false
	}
	for _, s := range sessions {
		if !s.HasSufficientBuffer {
			return false
		}
	}
	return true
}

// ResetBuffers clears buffer readiness on every session. Called after a
// discontinuous position change.
func ResetBuffers(sessions []*Session) {
	for _, s := range sessions {
		s.HasSufficientBuffer = false
	}
}
