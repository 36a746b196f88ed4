package session

import "testing"

func TestAllReady(t *testing.T) {
	tests := []struct {
		name  string
		ready []bool
		want  bool
	}{
		{"empty registry", nil, false},
		{"single not ready", []bool{false}, false},
		{"single ready", []bool{true}, true},
		{"one lagging", []bool{true, false, true}, false},
		{"all ready", []bool{true, true, true}, true},
		{"none ready", []bool{false, false}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var sessions []*Session
			for _, r := range tt.ready {
				sessions = append(sessions, &Session{HasSufficientBuffer: r})
			}
			if got := AllReady(sessions); got != tt.want {
				t.Errorf("AllReady(%v) = %v, want %v", tt.ready, got, tt.want)
			}
		})
	}
}

func TestResetBuffers(t *testing.T) {
	sessions := []*Session{
		{ID: "a", HasSufficientBuffer: true},
		{ID: "b", HasSufficientBuffer: false},
		{ID: "c", HasSufficientBuffer: true},
	}

	ResetBuffers(sessions)

	for _, s := range sessions {
		if s.HasSufficientBuffer {
			t.Errorf("session %s still has sufficient buffer", s.ID)
		}
	}
	if AllReady(sessions) {
		t.Error("AllReady should be false after reset")
	}
}
