package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/time/rate"

	"github.com/example/meeting-coordinator/internal/assignment"
	"github.com/example/meeting-coordinator/internal/chat"
	"github.com/example/meeting-coordinator/internal/config"
	httptransport "github.com/example/meeting-coordinator/internal/http"
	"github.com/example/meeting-coordinator/internal/logging"
	"github.com/example/meeting-coordinator/internal/meeting"
	"github.com/example/meeting-coordinator/internal/metrics"
	"github.com/example/meeting-coordinator/internal/persistence"
	"github.com/example/meeting-coordinator/internal/persistence/redis"
	"github.com/example/meeting-coordinator/internal/persistence/sqlite"
	"github.com/example/meeting-coordinator/internal/roster"
	"github.com/example/meeting-coordinator/internal/session"
)

func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		slog.Error("failed to read .env", "error", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("coordinator stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	users, err := loadRoster(cfg.RosterFile)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(registry)

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := closeStore(); cerr != nil {
			logger.Error("failed to close storage", "error", cerr)
		}
	}()

	a, err := newApp(ctx, cfg, users, persistence.Instrument(store, collector), collector, registry, logger)
	if err != nil {
		return err
	}
	defer a.stop()

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to shutdown server", "error", err)
		}
	}()

	logger.Info("coordinator API listening", "addr", server.Addr, "mode", string(cfg.Mode()))
	if warning := cfg.Warning(); warning != "" {
		logger.Warn(warning)
	}
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

func loadRoster(path string) (*roster.Roster, error) {
	if path == "" {
		return roster.Default(), nil
	}
	return roster.LoadFile(path)
}

// openStore selects the remote store when it is fully configured and falls
// back to the local SQLite file otherwise.
func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (persistence.Store, func() error, error) {
	if cfg.Mode() == config.ModeRemote {
		store, err := redis.New(ctx, redis.Config{
			URL:        cfg.RedisURL,
			DatabaseID: cfg.DatabaseID,
			Collections: map[string]string{
				persistence.CollectionMeetings: cfg.MeetingsCollectionID,
				persistence.CollectionMessages: cfg.MessagesCollectionID,
			},
			Indexes: redis.DefaultIndexes(),
		}, redis.WithLogger(logger))
		if err != nil {
			return nil, nil, fmt.Errorf("open remote store: %w", err)
		}
		return store, store.Close, nil
	}

	pool, err := sqlite.Open(ctx, sqlite.DefaultConfig(cfg.SQLiteDSN))
	if err != nil {
		return nil, nil, fmt.Errorf("open local store: %w", err)
	}
	if err := pool.Migrate(ctx); err != nil {
		_ = pool.Close()
		return nil, nil, fmt.Errorf("apply migrations: %w", err)
	}

	store := sqlite.NewStore(sqlite.NewKV(pool), sqlite.WithLogger(logger))
	seeded, err := store.SeedIfEmpty(ctx, persistence.CollectionMeetings, localSeed())
	if err != nil {
		_ = pool.Close()
		return nil, nil, fmt.Errorf("seed local store: %w", err)
	}
	if seeded {
		logger.Info("local store seeded with sample meetings")
	}
	return store, pool.Close, nil
}

// localSeed is written to an empty local store so the first run has data.
func localSeed() []persistence.Fields {
	return []persistence.Fields{
		{"date": "2026-01-20", "type": string(meeting.TypeWednesday), "status": string(meeting.StatusScheduled), "assignments": assignment.EmptyEncoded},
		{"date": "2026-01-24", "type": string(meeting.TypeSaturday), "status": string(meeting.StatusScheduled), "assignments": assignment.EmptyEncoded},
	}
}

type app struct {
	handler http.Handler
	stops   []func()
}

func (a *app) stop() {
	for i := len(a.stops) - 1; i >= 0; i-- {
		a.stops[i]()
	}
}

// newApp builds the services on store, loads the meetings and subscribes to
// remote changes.
func newApp(ctx context.Context, cfg config.Config, users *roster.Roster, store persistence.Store, recorder metrics.Recorder, gatherer prometheus.Gatherer, logger *slog.Logger) (*app, error) {
	meetings := meeting.NewCollection()
	lifecycle := meeting.NewLifecycleServiceWithLogger(store, meetings, recorder, time.Now, logger)
	assignments := meeting.NewAssignmentServiceWithLogger(store, meetings, users, recorder, logger)
	chatService := chat.NewServiceWithLogger(store, meetings, chat.Options{
		Recorder:  recorder,
		SendRate:  rate.Limit(cfg.ChatRate),
		SendBurst: cfg.ChatBurst,
	}, logger)
	sessions := session.NewServiceWithLogger(users, session.NewMemoryRepository(), nil, time.Now, cfg.SessionTTL, logger)

	if err := lifecycle.Refresh(ctx); err != nil {
		return nil, fmt.Errorf("load meetings: %w", err)
	}

	a := &app{}
	stopMeetings, err := lifecycle.Watch(ctx)
	if err != nil {
		return nil, fmt.Errorf("watch meetings: %w", err)
	}
	a.stops = append(a.stops, stopMeetings)
	stopRelay, err := chatService.Relay(ctx)
	if err != nil {
		a.stop()
		return nil, fmt.Errorf("relay chat: %w", err)
	}
	a.stops = append(a.stops, stopRelay)

	a.handler = httptransport.NewRouter(httptransport.RouterConfig{
		Sessions: httptransport.NewSessionHandler(sessions, users, httptransport.ClientConfig{
			Mode:    string(cfg.Mode()),
			Warning: cfg.Warning(),
		}, logger),
		Meetings:    httptransport.NewMeetingHandler(lifecycle, logger),
		Assignments: httptransport.NewAssignmentHandler(assignments, logger),
		Chat:        httptransport.NewChatHandler(chatService, logger),
		Events:      httptransport.NewEventsHandler(meetings, chatService, 0, logger),
		Metrics:     metrics.Handler(gatherer),
		Validator:   sessions,
		Observer:    recorder,
		Logger:      logger,
	})
	return a, nil
}
