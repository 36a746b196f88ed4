package model

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrMalformed is returned for payloads that are not valid JSON objects or
	// lack a field their type requires.
	ErrMalformed = errors.New("malformed message")
	// ErrUnknownType is returned for well-formed payloads with an unrecognised type.
	ErrUnknownType = errors.New("unknown message type")
)

// IntentHandler receives one call per decoded intent. Adding an intent type
// means adding a method here, so every handler must be updated before it builds.
type IntentHandler interface {
	Play(Play)
	Pause(Pause)
	Seek(Seek)
	BufferReady(BufferReady)
	Ping(Ping)
}

// Intent is an inbound state-change request from a single viewer.
type Intent interface {
	Type() string
	Dispatch(h IntentHandler)
}

type (
	Play        struct{}
	Pause       struct{}
	BufferReady struct{}
	Ping        struct{}
	Seek        struct {
		Time float64
	}
)

func (Play) Type() string        { return MessageTypePlay }
func (Pause) Type() string       { return MessageTypePause }
func (Seek) Type() string        { return MessageTypeSeek }
func (BufferReady) Type() string { return MessageTypeBufferReady }
func (Ping) Type() string        { return MessageTypePing }

func (i Play) Dispatch(h IntentHandler)        { h.Play(i) }
func (i Pause) Dispatch(h IntentHandler)       { h.Pause(i) }
func (i Seek) Dispatch(h IntentHandler)        { h.Seek(i) }
func (i BufferReady) Dispatch(h IntentHandler) { h.BufferReady(i) }
func (i Ping) Dispatch(h IntentHandler)        { h.Ping(i) }

// envelope leaves time raw so only seek validates it.
type envelope struct {
	Type string          `json:"type"`
	Time json.RawMessage `json:"time"`
}

// ParseIntent decodes a text frame into an Intent.
func ParseIntent(raw []byte) (Intent, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch env.Type {
	case "":
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)
	case MessageTypePlay:
		return Play{}, nil
	case MessageTypePause:
		return Pause{}, nil
	case MessageTypeBufferReady:
		return BufferReady{}, nil
	case MessageTypePing:
		return Ping{}, nil
	case MessageTypeSeek:
		t, err := parseSeekTime(env.Time)
		if err != nil {
			return nil, err
		}
		return Seek{Time: t}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
}

func parseSeekTime(raw json.RawMessage) (float64, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, fmt.Errorf("%w: seek requires time", ErrMalformed)
	}
	var t float64
	if err := json.Unmarshal(raw, &t); err != nil {
		return 0, fmt.Errorf("%w: seek time: %v", ErrMalformed, err)
	}
	if t < 0 {
		return 0, fmt.Errorf("%w: seek time must not be negative", ErrMalformed)
	}
	return t, nil
}
