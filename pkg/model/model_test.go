package model

import "testing"

func TestEncode(t *testing.T) {
	tests := []struct {
		name string
		msg  Outbound
		want string
	}{
		{"init is always paused", NewInit(PlaybackState{Time: 12.5, Playing: true}), `{"type":"init","time":12.5,"playing":false}`},
		{"play", NewPlay(), `{"type":"play"}`},
		{"pause", NewPause(), `{"type":"pause"}`},
		{"seek", NewSeek(42), `{"type":"seek","time":42}`},
		{"client count", NewClientCount(3), `{"type":"clientCount","count":3}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Encode(tt.msg)
			if err != nil {
				t.Fatalf("Encode failed: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}
