package model

import (
	"errors"
	"testing"
)

func TestParseIntent(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		wantType string
		wantErr  error
	}{
		{"play", `{"type":"play"}`, MessageTypePlay, nil},
		{"pause", `{"type":"pause"}`, MessageTypePause, nil},
		{"buffer ready", `{"type":"bufferReady"}`, MessageTypeBufferReady, nil},
		{"ping", `{"type":"ping"}`, MessageTypePing, nil},
		{"seek", `{"type":"seek","time":42.5}`, MessageTypeSeek, nil},
		{"seek to zero", `{"type":"seek","time":0}`, MessageTypeSeek, nil},
		{"extra fields ignored", `{"type":"play","time":3}`, MessageTypePlay, nil},
		{"play ignores non-numeric time", `{"type":"play","time":"soon"}`, MessageTypePlay, nil},
		{"pause ignores object time", `{"type":"pause","time":{"at":1}}`, MessageTypePause, nil},
		{"ping ignores null time", `{"type":"ping","time":null}`, MessageTypePing, nil},
		{"seek without time", `{"type":"seek"}`, "", ErrMalformed},
		{"seek with null time", `{"type":"seek","time":null}`, "", ErrMalformed},
		{"seek with string time", `{"type":"seek","time":"10"}`, "", ErrMalformed},
		{"seek with negative time", `{"type":"seek","time":-1}`, "", ErrMalformed},
		{"not json", `play`, "", ErrMalformed},
		{"json array", `["play"]`, "", ErrMalformed},
		{"json null", `null`, "", ErrMalformed},
		{"missing type", `{"time":1}`, "", ErrMalformed},
		{"type not a string", `{"type":1}`, "", ErrMalformed},
		{"unknown type", `{"type":"rewind"}`, "", ErrUnknownType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			intent, err := ParseIntent([]byte(tt.raw))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ParseIntent(%s) error = %v, want %v", tt.raw, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseIntent(%s) failed: %v", tt.raw, err)
			}
			if intent.Type() != tt.wantType {
				t.Errorf("expected type %q, got %q", tt.wantType, intent.Type())
			}
		})
	}
}

func TestParseIntent_SeekTime(t *testing.T) {
	intent, err := ParseIntent([]byte(`{"type":"seek","time":42}`))
	if err != nil {
		t.Fatalf("ParseIntent failed: %v", err)
	}
	seek, ok := intent.(Seek)
	if !ok {
		t.Fatalf("expected Seek, got %T", intent)
	}
	if seek.Time != 42 {
		t.Errorf("expected time 42, got %v", seek.Time)
	}
}

type recordingHandler struct {
	calls []string
}

func (r *recordingHandler) Play(Play)               { r.calls = append(r.calls, "play") }
func (r *recordingHandler) Pause(Pause)             { r.calls = append(r.calls, "pause") }
func (r *recordingHandler) Seek(Seek)               { r.calls = append(r.calls, "seek") }
func (r *recordingHandler) BufferReady(BufferReady) { r.calls = append(r.calls, "bufferReady") }
func (r *recordingHandler) Ping(Ping)               { r.calls = append(r.calls, "ping") }

func TestIntent_Dispatch(t *testing.T) {
	h := &recordingHandler{}
	for _, intent := range []Intent{Play{}, Pause{}, Seek{Time: 1}, BufferReady{}, Ping{}} {
		intent.Dispatch(h)
	}

	want := []string{"play", "pause", "seek", "bufferReady", "ping"}
	if len(h.calls) != len(want) {
		t.Fatalf("expected %d calls, got %d", len(want), len(h.calls))
	}
	for i := range want {
		if h.calls[i] != want[i] {
			t.Errorf("call %d: expected %s, got %s", i, want[i], h.calls[i])
		}
	}
}
