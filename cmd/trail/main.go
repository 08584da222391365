package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	slacklib "github.com/slack-go/slack"

	"github.com/opencampus/trail/internal/capture"
	"github.com/opencampus/trail/internal/config"
	"github.com/opencampus/trail/internal/domain"
	"github.com/opencampus/trail/internal/notify"
	"github.com/opencampus/trail/internal/query"
	"github.com/opencampus/trail/internal/retention"
	"github.com/opencampus/trail/internal/server"
	"github.com/opencampus/trail/internal/store/memory"
	"github.com/opencampus/trail/internal/store/postgres"
	redisstore "github.com/opencampus/trail/internal/store/redis"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}
}

func run() error {
	// Initialize structured logging from environment.
	logLevel := os.Getenv("TRAIL_LOG_LEVEL")
	level, parseErr := zerolog.ParseLevel(logLevel)
	if parseErr != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	logFormat := os.Getenv("TRAIL_LOG_FORMAT")
	if logFormat == "text" {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	} else {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}

	ctx := context.Background()

	// Load configuration from environment.
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Event storage: PostgreSQL in production, in-memory for local runs.
	var repo domain.EventRepository
	switch cfg.Store {
	case config.StoreMemory:
		repo = memory.NewEventRepo()
		log.Warn().Msg("using in-memory event store; the trail will not survive a restart")
	default:
		if cfg.Database.MaxConns < 0 || cfg.Database.MaxConns > math.MaxInt32 {
			return fmt.Errorf("database max_conns %d out of int32 range", cfg.Database.MaxConns)
		}
		store, storeErr := postgres.New(ctx, cfg.Database.DSN(), int32(cfg.Database.MaxConns)) //nolint:gosec // bounds checked above
		if storeErr != nil {
			return storeErr
		}
		defer store.Close()

		if schemaErr := store.EnsureSchema(ctx); schemaErr != nil {
			return schemaErr
		}
		repo = store.Events()
	}

	// Optional Redis live feed.
	var pubsub *redisstore.PubSub
	if cfg.Redis.Addr != "" {
		pubsub, err = redisstore.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return err
		}
		defer pubsub.Close()
	}

	// Capture pipeline.
	opts := capture.Options{
		QueueSize:        cfg.Capture.QueueSize,
		MetadataMaxBytes: cfg.Capture.MetadataMaxBytes,
	}
	if pubsub != nil {
		opts.Publisher = pubsub
	}
	if cfg.Slack.BotToken != "" {
		opts.Alerts = notify.NewSlackAlerter(slacklib.New(cfg.Slack.BotToken), cfg.Slack.AlertChannel)
		log.Info().Str("channel", cfg.Slack.AlertChannel).Msg("Slack security alerts enabled")
	}
	recorder := capture.NewRecorder(repo, opts)

	// Read side.
	engine := query.NewEngine(repo)

	// Graceful shutdown on SIGINT / SIGTERM.
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Retention: exposed as an operation; optionally driven in-process when
	// no external scheduler is available.
	retentionSvc := retention.NewService(repo, recorder)
	if cfg.Retention.Interval > 0 {
		go retentionSvc.RunEvery(ctx, cfg.Retention.Interval, cfg.Retention.Days)
		log.Info().Dur("interval", cfg.Retention.Interval).Int("days", cfg.Retention.Days).Msg("in-process retention enabled")
	}

	// Create HTTP server with all routes wired.
	srv := server.New(ctx, cfg, engine, pubsub)

	// Start server in background goroutine.
	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Msg("starting server")
		if startErr := srv.Start(ctx); startErr != nil {
			log.Error().Err(startErr).Msg("server error")
		}
	}()

	// Block until shutdown signal.
	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
		return shutdownErr
	}

	// Drain any queued audit writes before exit.
	if closeErr := recorder.Close(shutdownCtx); closeErr != nil {
		log.Warn().Err(closeErr).Msg("capture queue not fully drained")
	}

	log.Info().Msg("stopped")
	return nil
}
