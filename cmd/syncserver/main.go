package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/jonboulle/clockwork"
	"github.com/rs/cors"
	"github.com/vmorsell/global-playback/internal/config"
	"github.com/vmorsell/global-playback/internal/coordinator"
	"github.com/vmorsell/global-playback/internal/media"
	"github.com/vmorsell/global-playback/internal/presence"
	"github.com/vmorsell/global-playback/internal/ratelimit"
	"github.com/vmorsell/global-playback/internal/sweeper"
	"github.com/vmorsell/global-playback/internal/wsserver"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func main() {
	os.Exit(start(os.Args[1:]))
}

// start returns the process exit code. Exiting only after it returns lets the
// deferred logger flush and signal cleanup run on every path.
func start(args []string) int {
	fs := flag.NewFlagSet("syncserver", flag.ContinueOnError)
	configPath := fs.String("config", "", "optional YAML config file")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return 1
	}

	logger, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		return 1
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, cfg); err != nil {
		logger.Error("server failed", zap.Error(err))
		return 1
	}
	return 0
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.LogFormat == "development" {
		zcfg = zap.NewDevelopmentConfig()
	}
	level, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}
	zcfg.Level = level
	return zcfg.Build()
}

func run(ctx context.Context, logger *zap.Logger, cfg config.Config) error {
	clock := clockwork.NewRealClock()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	coordCfg := coordinator.Config{
		StaleAfter: cfg.StaleAfter,
		Clock:      clock,
	}

	var mirrored presenceReader
	mirrorDone := make(chan struct{})
	if cfg.PresenceTable != "" {
		store, mirror, err := newPresence(ctx, logger, cfg, clock)
		if err != nil {
			return err
		}
		mirrored = store
		coordCfg.Observer = mirror
		go func() {
			defer close(mirrorDone)
			if err := mirror.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("presence mirror stopped", zap.Error(err))
			}
		}()
	} else {
		close(mirrorDone)
	}

	coord := coordinator.New(logger, coordCfg)

	sw := sweeper.New(logger, coord, sweeper.Config{
		Interval:       cfg.SweepInterval,
		ResyncInterval: cfg.ResyncInterval,
		Clock:          clock,
	})
	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		sw.Run(ctx)
	}()

	limiter := ratelimit.NewRateLimiter(cfg.MessageRateLimit, cfg.RateWindow, clock)
	ws := wsserver.New(logger, coord, limiter, wsserver.Config{
		WriteWait:      cfg.WriteWait,
		PongWait:       cfg.PongWait,
		MaxMessageSize: cfg.MaxMessageSize,
		SendBufferSize: cfg.SendBufferSize,
		AllowedOrigins: cfg.AllowedOrigins,
	})

	mux := http.NewServeMux()
	mux.Handle("/ws", ws)
	mux.HandleFunc("/health", healthHandler)
	mux.HandleFunc("/stats", statsHandler(logger, coord, mirrored))
	if cfg.MediaDir != "" {
		mux.Handle("/", media.NewHandler(logger, cfg.MediaDir))
	}

	server := &http.Server{
		Addr: cfg.Addr(),
		Handler: cors.New(cors.Options{
			AllowedOrigins: cfg.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodHead},
		}).Handler(mux),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("playback sync server started",
			zap.String("addr", server.Addr),
			zap.Duration("staleAfter", cfg.StaleAfter),
			zap.String("mediaDir", cfg.MediaDir),
			zap.Bool("presence", cfg.PresenceTable != ""),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	}

	logger.Info("shutting down server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown incomplete", zap.Error(err))
	}

	coord.Shutdown()
	cancel()
	<-sweepDone
	<-mirrorDone

	logger.Info("server exited")
	return nil
}

func newPresence(ctx context.Context, logger *zap.Logger, cfg config.Config, clock clockwork.Clock) (*presence.Store, *presence.Mirror, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("load AWS config: %w", err)
	}
	store := presence.NewStore(logger, dynamodb.NewFromConfig(awsCfg), cfg.PresenceTable)
	return store, presence.NewMirror(logger, store, clock, cfg.PresenceQueueSize), nil
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// presenceReader is the read side of the presence mirror. *presence.Store
// implements it.
type presenceReader interface {
	Get(ctx context.Context) (presence.Document, error)
}

type statsResponse struct {
	coordinator.Stats
	// MirroredViewers is the count last written to the presence table. It
	// lags the live count while mirror writes are queued.
	MirroredViewers *int `json:"mirroredViewers,omitempty"`
}

// statsHandler reports coordinator stats. mirrored may be nil when presence
// mirroring is off; read failures are logged and the field is omitted.
func statsHandler(logger *zap.Logger, coord *coordinator.Coordinator, mirrored presenceReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := statsResponse{Stats: coord.Stats()}
		if mirrored != nil {
			doc, err := mirrored.Get(r.Context())
			if err != nil {
				logger.Warn("failed to read presence document", zap.Error(err))
			} else {
				resp.MirroredViewers = &doc.ViewerCount
			}
		}

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			logger.Warn("failed to encode stats", zap.Error(err))
		}
	}
}
