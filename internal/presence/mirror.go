// Package presence mirrors the set of connected viewers into DynamoDB so
// dashboards outside the process can see who is watching. Playback state is
// never written.
package presence

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

const DefaultQueueSize = 256

// Writer persists presence changes. *Store implements it.
type Writer interface {
	AddViewer(ctx context.Context, id string, viewers int, at time.Time) error
	RemoveViewer(ctx context.Context, id string, viewers int, at time.Time) error
	Clear(ctx context.Context, at time.Time) error
}

type eventKind int

const (
	eventJoined eventKind = iota
	eventLeft
)

type event struct {
	kind    eventKind
	id      string
	viewers int
	at      time.Time
}

// Mirror receives membership changes from the coordinator and writes them
// from its own goroutine so the coordinator never waits on the network.
type Mirror struct {
	logger *zap.Logger
	writer Writer
	clock  clockwork.Clock
	events chan event
}

func NewMirror(logger *zap.Logger, writer Writer, clock clockwork.Clock, queueSize int) *Mirror {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Mirror{
		logger: logger,
		writer: writer,
		clock:  clock,
		events: make(chan event, queueSize),
	}
}

func (m *Mirror) ViewerJoined(id string, viewers int) {
	m.enqueue(event{kind: eventJoined, id: id, viewers: viewers, at: m.clock.Now()})
}

func (m *Mirror) ViewerLeft(id string, viewers int, reason string) {
	m.enqueue(event{kind: eventLeft, id: id, viewers: viewers, at: m.clock.Now()})
}

func (m *Mirror) enqueue(e event) {
	select {
	case m.events <- e:
	default:
		m.logger.Warn("presence queue full, dropping event", zap.String("viewerID", e.id))
	}
}

// Run clears any stale document and then applies queued events until ctx is
// cancelled. Write failures are logged and skipped.
func (m *Mirror) Run(ctx context.Context) error {
	if err := m.writer.Clear(ctx, m.clock.Now()); err != nil {
		m.logger.Error("failed to clear presence document", zap.Error(err))
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e := <-m.events:
			m.apply(ctx, e)
		}
	}
}

func (m *Mirror) apply(ctx context.Context, e event) {
	var err error
	switch e.kind {
	case eventJoined:
		err = m.writer.AddViewer(ctx, e.id, e.viewers, e.at)
	case eventLeft:
		err = m.writer.RemoveViewer(ctx, e.id, e.viewers, e.at)
	}
	if err != nil {
		m.logger.Error("failed to mirror presence",
			zap.String("viewerID", e.id),
			zap.Int("viewers", e.viewers),
			zap.Error(err))
	}
}
