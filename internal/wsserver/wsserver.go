// Package wsserver adapts websocket connections to the playback coordinator.
// Each connection gets a read pump feeding the coordinator and a write pump
// draining a bounded send buffer.
package wsserver

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/vmorsell/global-playback/internal/ratelimit"
	"github.com/vmorsell/global-playback/internal/session"
	"go.uber.org/zap"
)

const (
	defaultWriteWait      = 10 * time.Second
	defaultPongWait       = 60 * time.Second
	defaultMaxMessageSize = 1024
	defaultSendBufferSize = 256
	defaultBufferSize     = 1024
)

var (
	ErrSendBufferFull   = errors.New("send buffer full")
	ErrConnectionClosed = errors.New("connection closed")
)

// Coordinator is the part of the coordinator the transport drives.
type Coordinator interface {
	Join(conn session.Conn)
	Leave(id string)
	Handle(id string, raw []byte) error
}

type Config struct {
	WriteWait       time.Duration
	PongWait        time.Duration
	MaxMessageSize  int64
	SendBufferSize  int
	ReadBufferSize  int
	WriteBufferSize int
	// AllowedOrigins lists accepted Origin headers. Empty or "*" accepts all.
	AllowedOrigins []string
}

func DefaultConfig() Config {
	return Config{
		WriteWait:       defaultWriteWait,
		PongWait:        defaultPongWait,
		MaxMessageSize:  defaultMaxMessageSize,
		SendBufferSize:  defaultSendBufferSize,
		ReadBufferSize:  defaultBufferSize,
		WriteBufferSize: defaultBufferSize,
		AllowedOrigins:  []string{"*"},
	}
}

type Server struct {
	logger   *zap.Logger
	coord    Coordinator
	limiter  *ratelimit.RateLimiter
	cfg      Config
	upgrader websocket.Upgrader
}

// New returns a websocket handler. limiter may be nil to accept every message.
func New(logger *zap.Logger, coord Coordinator, limiter *ratelimit.RateLimiter, cfg Config) *Server {
	defaults := DefaultConfig()
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = defaults.WriteWait
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = defaults.PongWait
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaults.MaxMessageSize
	}
	if cfg.SendBufferSize <= 0 {
		cfg.SendBufferSize = defaults.SendBufferSize
	}
	if cfg.ReadBufferSize <= 0 {
		cfg.ReadBufferSize = defaults.ReadBufferSize
	}
	if cfg.WriteBufferSize <= 0 {
		cfg.WriteBufferSize = defaults.WriteBufferSize
	}

	s := &Server{
		logger:  logger,
		coord:   coord,
		limiter: limiter,
		cfg:     cfg,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  cfg.ReadBufferSize,
		WriteBufferSize: cfg.WriteBufferSize,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("failed to upgrade connection", zap.String("remoteAddr", r.RemoteAddr), zap.Error(err))
		return
	}

	c := &client{
		id:     uuid.NewString(),
		conn:   conn,
		server: s,
		send:   make(chan []byte, s.cfg.SendBufferSize),
	}
	s.logger.Debug("connection upgraded", zap.String("connectionID", c.id), zap.String("remoteAddr", r.RemoteAddr))

	s.coord.Join(c)

	go c.writePump()
	go c.readPump()
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(s.cfg.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range s.cfg.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	s.logger.Warn("rejected origin", zap.String("origin", origin))
	return false
}

// client implements session.Conn for one websocket.
type client struct {
	id     string
	conn   *websocket.Conn
	server *Server

	mu     sync.Mutex
	closed bool
	send   chan []byte
}

func (c *client) ID() string {
	return c.id
}

// Send enqueues payload without blocking.
func (c *client) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrConnectionClosed
	}
	select {
	case c.send <- payload:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Close stops the write pump, which sends a close frame and closes the socket.
func (c *client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	close(c.send)
	return nil
}

func (c *client) readPump() {
	logger := c.server.logger.With(zap.String("connectionID", c.id))
	defer func() {
		if c.server.limiter != nil {
			c.server.limiter.Forget(c.id)
		}
		c.server.coord.Leave(c.id)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.server.cfg.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.server.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.server.cfg.PongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("websocket error", zap.Error(err))
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(c.server.cfg.PongWait))

		if messageType != websocket.TextMessage {
			logger.Debug("dropping non-text frame", zap.Int("messageType", messageType))
			continue
		}
		if c.server.limiter != nil && !c.server.limiter.Allow(c.id) {
			logger.Warn("rate limit exceeded, dropping message")
			continue
		}

		// The coordinator logs and drops bad messages itself.
		_ = c.server.coord.Handle(c.id, message)
	}
}

func (c *client) writePump() {
	pingPeriod := (c.server.cfg.PongWait * 9) / 10
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.server.cfg.WriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.server.logger.Debug("write failed", zap.String("connectionID", c.id), zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.server.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
