package coordinator

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/vmorsell/global-playback/internal/session"
	"github.com/vmorsell/global-playback/pkg/model"
	"go.uber.org/zap"
)

const (
	DefaultStaleAfter = 30 * time.Second

	ReasonDisconnect = "disconnect"
	ReasonSendFailed = "send failed"
	ReasonStale      = "stale"
	ReasonShutdown   = "shutdown"
)

// ErrUnknownSession is returned when a message arrives for a connection that
// is not (or no longer) registered.
var ErrUnknownSession = errors.New("unknown session")

// Observer is notified of registry membership changes. Calls happen while the
// coordinator lock is held and must not block.
type Observer interface {
	ViewerJoined(id string, viewers int)
	ViewerLeft(id string, viewers int, reason string)
}

type nopObserver struct{}

func (nopObserver) ViewerJoined(string, int)       {}
func (nopObserver) ViewerLeft(string, int, string) {}

type Config struct {
	// StaleAfter is how long a session may stay silent before EvictStale
	// removes it.
	StaleAfter time.Duration
	Clock      clockwork.Clock
	Observer   Observer
}

// Coordinator owns the session registry and the global playback state. All
// mutations of either go through a single lock.
type Coordinator struct {
	logger     *zap.Logger
	clock      clockwork.Clock
	staleAfter time.Duration
	observer   Observer

	mu          sync.Mutex
	registry    *session.Registry
	state       model.PlaybackState
	pendingPlay bool
}

type Stats struct {
	Viewers     int                 `json:"viewers"`
	Ready       int                 `json:"ready"`
	State       model.PlaybackState `json:"state"`
	PendingPlay bool                `json:"pendingPlay"`
}

func New(logger *zap.Logger, cfg Config) *Coordinator {
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = DefaultStaleAfter
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Observer == nil {
		cfg.Observer = nopObserver{}
	}
	return &Coordinator{
		logger:     logger,
		clock:      cfg.Clock,
		staleAfter: cfg.StaleAfter,
		observer:   cfg.Observer,
		registry:   session.NewRegistry(),
	}
}

// Join registers a new viewer. Existing viewers are paused first so the
// newcomer can buffer, then the joiner gets its init message and everyone
// gets the new viewer count.
func (c *Coordinator) Join(conn session.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := conn.ID()
	if _, exists := c.registry.Get(id); exists {
		c.logger.Warn("duplicate connection id, replacing session", zap.String("connectionID", id))
		c.dropLocked(id, ReasonDisconnect)
	}

	if c.registry.Len() > 0 {
		c.holdLocked()
		c.broadcastLocked(model.NewPause())
	}

	s := c.registry.Register(id, conn, c.state, c.clock.Now())
	viewers := c.registry.Len()
	c.observer.ViewerJoined(id, viewers)
	c.logger.Info("viewer joined",
		zap.String("connectionID", id),
		zap.Int("viewers", viewers),
		zap.Float64("time", c.state.Time))

	if err := c.sendLocked(s, model.NewInit(c.state)); err != nil {
		c.logger.Warn("failed to send init", zap.String("connectionID", id), zap.Error(err))
		c.dropLocked(id, ReasonSendFailed)
		c.resumeIfReadyLocked()
		return
	}

	c.broadcastLocked(model.NewClientCount(viewers))
	c.resumeIfReadyLocked()
}

// Leave removes a viewer whose transport closed or failed. It is a no-op for
// unknown IDs.
func (c *Coordinator) Leave(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dropLocked(id, ReasonDisconnect)
	c.resumeIfReadyLocked()
}

// Handle decodes and applies one inbound text frame from connection id.
// Malformed and unknown messages are logged and dropped; the returned error
// is informational only.
func (c *Coordinator) Handle(id string, raw []byte) error {
	intent, err := model.ParseIntent(raw)
	if err != nil {
		if errors.Is(err, model.ErrUnknownType) {
			c.logger.Debug("dropping message of unknown type", zap.String("connectionID", id), zap.Error(err))
		} else {
			c.logger.Warn("dropping malformed message", zap.String("connectionID", id), zap.Error(err))
		}
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.registry.Get(id)
	if !ok {
		c.logger.Debug("message for unknown session", zap.String("connectionID", id), zap.String("type", intent.Type()))
		return fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}

	s.Touch(c.clock.Now())
	intent.Dispatch(&dispatcher{c: c, s: s})
	c.resumeIfReadyLocked()
	return nil
}

// EvictStale force-disconnects every session that has been silent for longer
// than the staleness threshold and returns how many were removed.
func (c *Coordinator) EvictStale() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	ids := c.registry.Stale(c.clock.Now(), c.staleAfter)
	removed := 0
	for _, id := range ids {
		if c.removeLocked(id, ReasonStale) {
			removed++
		}
	}
	if removed > 0 {
		c.logger.Info("evicted stale viewers", zap.Int("evicted", removed), zap.Int("viewers", c.registry.Len()))
		c.afterRemovalLocked()
		c.resumeIfReadyLocked()
	}
	return removed
}

// Shutdown closes every connection and resets the shared state.
func (c *Coordinator) Shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, s := range c.registry.Snapshot() {
		c.removeLocked(s.ID, ReasonShutdown)
	}
	c.resetStateLocked()
}

func (c *Coordinator) State() model.PlaybackState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Coordinator) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.registry.Len()
}

func (c *Coordinator) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	ready := 0
	for _, s := range c.registry.Snapshot() {
		if s.HasSufficientBuffer {
			ready++
		}
	}
	return Stats{
		Viewers:     c.registry.Len(),
		Ready:       ready,
		State:       c.state,
		PendingPlay: c.pendingPlay,
	}
}

// LatestUpdate returns the most recent activity time across all sessions, or
// the zero time when nobody is connected.
func (c *Coordinator) LatestUpdate() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	var latest time.Time
	for _, s := range c.registry.Snapshot() {
		if s.LastUpdate.After(latest) {
			latest = s.LastUpdate
		}
	}
	return latest
}

// holdLocked stops a playing group while remembering that it should resume
// once everyone is buffered again.
func (c *Coordinator) holdLocked() {
	if c.state.Playing {
		c.pendingPlay = true
	}
	c.state.Playing = false
}

func (c *Coordinator) startLocked() {
	c.state.Playing = true
	c.pendingPlay = false
	c.broadcastLocked(model.NewPlay())
}

// resumeIfReadyLocked starts a held play once the viewers still connected are
// all buffered. Removing the last unready viewer opens the gate without any
// bufferReady arriving, so every operation that may remove sessions ends here.
func (c *Coordinator) resumeIfReadyLocked() {
	if !c.pendingPlay || c.state.Playing {
		return
	}
	if !session.AllReady(c.registry.Snapshot()) {
		return
	}
	c.logger.Debug("resuming held play", zap.Int("viewers", c.registry.Len()))
	c.startLocked()
}

func (c *Coordinator) resetStateLocked() {
	c.state = model.PlaybackState{}
	c.pendingPlay = false
	c.registry.Clear()
	c.logger.Info("no viewers left, playback state reset")
}

// removeLocked deletes a session and closes its connection without telling
// the remaining viewers. Callers follow up with afterRemovalLocked.
func (c *Coordinator) removeLocked(id, reason string) bool {
	s, ok := c.registry.Remove(id)
	if !ok {
		return false
	}
	if err := s.Conn.Close(); err != nil {
		c.logger.Debug("close connection", zap.String("connectionID", id), zap.Error(err))
	}
	viewers := c.registry.Len()
	c.observer.ViewerLeft(id, viewers, reason)
	c.logger.Info("viewer left",
		zap.String("connectionID", id),
		zap.String("reason", reason),
		zap.Int("viewers", viewers))
	return true
}

func (c *Coordinator) afterRemovalLocked() {
	if c.registry.Len() == 0 {
		c.resetStateLocked()
		return
	}
	c.broadcastLocked(model.NewClientCount(c.registry.Len()))
}

func (c *Coordinator) dropLocked(id, reason string) {
	if c.removeLocked(id, reason) {
		c.afterRemovalLocked()
	}
}

func (c *Coordinator) sendLocked(s *session.Session, msg model.Outbound) error {
	payload, err := model.Encode(msg)
	if err != nil {
		return err
	}
	if err := s.Conn.Send(payload); err != nil {
		return fmt.Errorf("send %s to %s: %w", msg.MessageType(), s.ID, err)
	}
	return nil
}

// broadcastLocked sends msg to every registered session. Sessions whose send
// fails are removed after the fan-out, as if they had disconnected.
func (c *Coordinator) broadcastLocked(msg model.Outbound) {
	payload, err := model.Encode(msg)
	if err != nil {
		c.logger.Error("failed to encode broadcast", zap.Error(err))
		return
	}

	sessions := c.registry.Snapshot()
	var failed []string
	for _, s := range sessions {
		if err := s.Conn.Send(payload); err != nil {
			c.logger.Warn("failed to send",
				zap.String("connectionID", s.ID),
				zap.String("type", msg.MessageType()),
				zap.Error(err))
			failed = append(failed, s.ID)
		}
	}

	c.logger.Debug("broadcast",
		zap.String("type", msg.MessageType()),
		zap.Int("recipients", len(sessions)-len(failed)))

	if len(failed) == 0 {
		return
	}
	removed := false
	for _, id := range failed {
		if c.removeLocked(id, ReasonSendFailed) {
			removed = true
		}
	}
	if removed {
		c.afterRemovalLocked()
	}
}
