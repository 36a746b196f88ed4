// Package sweeper runs the periodic liveness sweep that evicts viewers whose
// transport died without a clean close.
package sweeper

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

const DefaultInterval = 5 * time.Second

// Target is the state the sweeper works on.
type Target interface {
	EvictStale() int
	LatestUpdate() time.Time
}

// ResyncFunc is called on every resync tick with the most recent viewer
// activity time. The zero time means nobody is connected.
type ResyncFunc func(latest time.Time)

type Config struct {
	Interval time.Duration
	// ResyncInterval enables the resync tick when positive.
	ResyncInterval time.Duration
	Resync         ResyncFunc
	Clock          clockwork.Clock
}

type Sweeper struct {
	logger         *zap.Logger
	target         Target
	clock          clockwork.Clock
	interval       time.Duration
	resyncInterval time.Duration
	resync         ResyncFunc
}

func New(logger *zap.Logger, target Target, cfg Config) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	s := &Sweeper{
		logger:         logger,
		target:         target,
		clock:          cfg.Clock,
		interval:       cfg.Interval,
		resyncInterval: cfg.ResyncInterval,
		resync:         cfg.Resync,
	}
	if s.resync == nil {
		s.resync = s.logLatest
	}
	return s
}

// Run sweeps until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	sweep := s.clock.NewTicker(s.interval)
	defer sweep.Stop()

	var resyncC <-chan time.Time
	if s.resyncInterval > 0 {
		resync := s.clock.NewTicker(s.resyncInterval)
		defer resync.Stop()
		resyncC = resync.Chan()
	}

	s.logger.Info("liveness sweeper started",
		zap.Duration("interval", s.interval),
		zap.Duration("resyncInterval", s.resyncInterval))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("liveness sweeper stopped")
			return
		case <-sweep.Chan():
			s.Sweep()
		case <-resyncC:
			s.Resync()
		}
	}
}

func (s *Sweeper) Sweep() int {
	evicted := s.target.EvictStale()
	if evicted > 0 {
		s.logger.Debug("sweep evicted viewers", zap.Int("evicted", evicted))
	}
	return evicted
}

func (s *Sweeper) Resync() {
	s.resync(s.target.LatestUpdate())
}

// logLatest is the default resync hook. It only reports; nothing is sent to
// viewers until a resync message format exists.
func (s *Sweeper) logLatest(latest time.Time) {
	if latest.IsZero() {
		return
	}
	s.logger.Debug("resync tick", zap.Time("latestUpdate", latest), zap.Duration("age", s.clock.Since(latest)))
}
