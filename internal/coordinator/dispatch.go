package coordinator

import (
	"github.com/vmorsell/global-playback/internal/session"
	"github.com/vmorsell/global-playback/pkg/model"
	"go.uber.org/zap"
)

// dispatcher applies one intent from session s. It runs with c.mu held.
type dispatcher struct {
	c *Coordinator
	s *session.Session
}

var _ model.IntentHandler = (*dispatcher)(nil)

func (d *dispatcher) Play(model.Play) {
	d.s.Playing = true

	if !session.AllReady(d.c.registry.Snapshot()) {
		d.c.pendingPlay = true
		d.c.logger.Debug("play held until every viewer is buffered", zap.String("connectionID", d.s.ID))
		return
	}
	d.c.startLocked()
}

// Pause is never gated.
func (d *dispatcher) Pause(model.Pause) {
	d.s.Playing = false
	d.c.state.Playing = false
	d.c.pendingPlay = false
	d.c.broadcastLocked(model.NewPause())
}

func (d *dispatcher) Seek(i model.Seek) {
	c := d.c
	c.broadcastLocked(model.NewPause())
	if c.registry.Len() == 0 {
		return
	}

	d.s.Time = i.Time
	c.holdLocked()
	c.state.Time = i.Time
	session.ResetBuffers(c.registry.Snapshot())

	c.logger.Info("seek",
		zap.String("connectionID", d.s.ID),
		zap.Float64("time", i.Time),
		zap.Bool("resumePending", c.pendingPlay))
	c.broadcastLocked(model.NewSeek(i.Time))
}

func (d *dispatcher) BufferReady(model.BufferReady) {
	d.s.HasSufficientBuffer = true

	c := d.c
	if !c.state.Playing && !c.pendingPlay {
		return
	}
	if session.AllReady(c.registry.Snapshot()) {
		c.startLocked()
	}
}

// Ping only refreshes liveness, which Handle already did.
func (d *dispatcher) Ping(model.Ping) {}
