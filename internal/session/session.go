// Package session keeps per-viewer playback bookkeeping and the registry of
// live viewers.
package session

import (
	"time"

	"github.com/vmorsell/global-playback/pkg/model"
)

// Conn is the outbound side of a viewer's transport.
type Conn interface {
	ID() string
	// Send enqueues a text frame. It must not block; an error means the
	// connection can no longer be written to.
	Send(payload []byte) error
	Close() error
}

// Session is one viewer's last-known playback state.
type Session struct {
	ID                  string
	Conn                Conn
	Time                float64
	Playing             bool
	LastUpdate          time.Time
	HasSufficientBuffer bool
}

// Touch records liveness at now.
func (s *Session) Touch(now time.Time) {
	s.LastUpdate = now
}

// Registry maps connection IDs to sessions. It is not safe for concurrent
// use; the coordinator serializes access.
type Registry struct {
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
	}
}

// Register inserts a session seeded from the global state. A second register
// with the same ID replaces the earlier session.
func (r *Registry) Register(id string, conn Conn, seed model.PlaybackState, now time.Time) *Session {
	s := &Session{
		ID:                  id,
		Conn:                conn,
		Time:                seed.Time,
		Playing:             seed.Playing,
		LastUpdate:          now,
		HasSufficientBuffer: false,
	}
	r.sessions[id] = s
	return s
}

func (r *Registry) Get(id string) (*Session, bool) {
	s, ok := r.sessions[id]
	return s, ok
}

func (r *Registry) Remove(id string) (*Session, bool) {
	s, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	delete(r.sessions, id)
	return s, true
}

func (r *Registry) Len() int {
	return len(r.sessions)
}

// Snapshot returns the current sessions in no particular order. The slice is
// built on every call.
func (r *Registry) Snapshot() []*Session {
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// Stale returns the IDs of sessions silent for longer than threshold.
func (r *Registry) Stale(now time.Time, threshold time.Duration) []string {
	var ids []string
	for id, s := range r.sessions {
		if now.Sub(s.LastUpdate) > threshold {
			ids = append(ids, id)
		}
	}
	return ids
}

// Clear drops every session without closing connections.
func (r *Registry) Clear() {
	r.sessions = make(map[string]*Session)
}
