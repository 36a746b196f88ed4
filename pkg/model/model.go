package model

import (
	"encoding/json"
	"fmt"
)

const (
	MessageTypeInit        = "init"
	MessageTypePlay        = "play"
	MessageTypePause       = "pause"
	MessageTypeSeek        = "seek"
	MessageTypeBufferReady = "bufferReady"
	MessageTypePing        = "ping"
	MessageTypeClientCount = "clientCount"
)

// PlaybackState is the shared position every buffer-ready viewer converges to.
// It is only written on explicit play, pause and seek; nothing ticks it forward.
type PlaybackState struct {
	Time    float64 `json:"time"`
	Playing bool    `json:"playing"`
}

// Outbound is a message the server sends to viewers.
type Outbound interface {
	MessageType() string
}

type InitMessage struct {
	Type    string  `json:"type"`
	Time    float64 `json:"time"`
	Playing bool    `json:"playing"`
}

type PlayMessage struct {
	Type string `json:"type"`
}

type PauseMessage struct {
	Type string `json:"type"`
}

type SeekMessage struct {
	Type string  `json:"type"`
	Time float64 `json:"time"`
}

type ClientCountMessage struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

func (m InitMessage) MessageType() string        { return m.Type }
func (m PlayMessage) MessageType() string        { return m.Type }
func (m PauseMessage) MessageType() string       { return m.Type }
func (m SeekMessage) MessageType() string        { return m.Type }
func (m ClientCountMessage) MessageType() string { return m.Type }

// NewInit builds the greeting for a joining viewer. Joiners always start
// paused so they go through the buffering handshake.
func NewInit(state PlaybackState) InitMessage {
	return InitMessage{Type: MessageTypeInit, Time: state.Time, Playing: false}
}

func NewPlay() PlayMessage {
	return PlayMessage{Type: MessageTypePlay}
}

func NewPause() PauseMessage {
	return PauseMessage{Type: MessageTypePause}
}

func NewSeek(t float64) SeekMessage {
	return SeekMessage{Type: MessageTypeSeek, Time: t}
}

func NewClientCount(count int) ClientCountMessage {
	return ClientCountMessage{Type: MessageTypeClientCount, Count: count}
}

// Encode marshals an outbound message into its JSON text frame.
func Encode(msg Outbound) ([]byte, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal %s message: %w", msg.MessageType(), err)
	}
	return payload, nil
}
