package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/snekkenull/AISight-sub001/internal/alert"
	"github.com/snekkenull/AISight-sub001/internal/broadcast"
	"github.com/snekkenull/AISight-sub001/internal/config"
	"github.com/snekkenull/AISight-sub001/internal/domain/event"
	"github.com/snekkenull/AISight-sub001/internal/domain/model"
	"github.com/snekkenull/AISight-sub001/internal/feed"
	"github.com/snekkenull/AISight-sub001/internal/pipeline"
	"github.com/snekkenull/AISight-sub001/internal/scheduler"
	"github.com/snekkenull/AISight-sub001/internal/store/postgres"
	redispkg "github.com/snekkenull/AISight-sub001/internal/store/redis"
	"github.com/snekkenull/AISight-sub001/internal/tracing"
)

const defaultMigrationsDir = "internal/store/postgres/migrations"

func main() {
	logLevel := slog.LevelInfo
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	switch cfg.Log.Level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	logger.Info("starting aisightd",
		"feed_url", cfg.Feed.URL,
		"batch_size", cfg.Pipeline.BatchSize,
		"flush_interval", cfg.Pipeline.FlushInterval.String(),
		"rotation_interval", cfg.Scheduler.RotationInterval.String(),
		"auto_rotate", cfg.Scheduler.AutoRotate,
	)

	shutdownTracing, err := tracing.Init(context.Background(), "aisightd", cfg.Tracing.OTLPEndpoint, cfg.Tracing.Insecure)
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("tracing shutdown error", "error", err)
		}
	}()

	db, err := postgres.New(postgres.Config{
		URL:             cfg.DB.URL,
		MaxOpenConns:    cfg.DB.MaxOpenConns,
		MaxIdleConns:    cfg.DB.MaxIdleConns,
		ConnMaxLifetime: cfg.DB.ConnMaxLifetime,
	})
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	logger.Info("connected to database")

	migrationsDir := os.Getenv("MIGRATIONS_DIR")
	if migrationsDir == "" {
		migrationsDir = defaultMigrationsDir
	}
	if err := db.RunMigrations(migrationsDir); err != nil {
		logger.Error("failed to run migrations", "error", err, "dir", migrationsDir)
		os.Exit(1)
	}

	cache, err := redispkg.NewCache(cfg.Redis.URL)
	if err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer cache.Close()
	logger.Info("connected to redis")

	regions, err := cfg.Regions()
	if err != nil {
		logger.Error("failed to load regions", "error", err)
		os.Exit(1)
	}

	alerter := alert.FromConfig(
		cfg.Alert.SlackWebhookURL,
		cfg.Alert.WebhookURL,
		time.Duration(cfg.Alert.CooldownSec)*time.Second,
		logger,
	)

	hub := broadcast.NewHub(logger)
	defer hub.Close()

	pipe := pipeline.New(
		cfg.Pipeline,
		logger,
		postgres.NewVesselRepo(db),
		postgres.NewPositionRepo(db),
		postgres.NewLatestPositionRepo(db),
		cache,
		hub,
	)

	conn := feed.New(cfg.Feed, logger, feed.Handlers{
		Position: func(e event.PositionEvent) {
			pipe.ProcessPosition(context.Background(), e)
		},
		StaticData: func(e event.StaticDataEvent) {
			pipe.ProcessStaticData(context.Background(), e)
		},
		Diagnostic: func(d event.Diagnostic) {
			hub.BroadcastAll(string(d.Kind), d)
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched, err := scheduler.New(regions, cfg.Scheduler.RotationInterval, cfg.Scheduler.AutoRotate, logger, scheduler.Handlers{
		RegionChange: func(region model.Region) {
			conn.UpdateSubscription(region.Bounds, cfg.Feed.MessageTypes)
			conn.Disconnect()
			if err := conn.Connect(ctx); err != nil {
				logger.Error("feed reconnect after region change failed", "region", region.Name, "error", err)
			}
		},
		CycleComplete: func(cycles int) {
			logger.Info("region rotation cycle complete", "cycles", cycles)
		},
	})
	if err != nil {
		logger.Error("failed to build scheduler", "error", err)
		os.Exit(1)
	}

	pipe.Start(ctx)
	defer pipe.Stop()

	// The initial region change connects the feed; skipInitialEmit stays
	// false so startup and rotation share one code path.
	sched.Start(ctx, false)
	defer sched.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return runHealthServer(gCtx, cfg.Server.HealthPort, logger, pipe, conn, cache, hub, sched)
	})

	// A fatal feed error means the reconnect budget is spent or the
	// upstream rejected us outright; alert and shut down.
	g.Go(func() error {
		select {
		case err := <-conn.Errors():
			logger.Error("feed terminated", "error", err)
			alertCtx, alertCancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer alertCancel()
			_ = alerter.Send(alertCtx, alert.Alert{
				Type:      alert.AlertTypeFeedDown,
				Component: "feed",
				Region:    sched.Current().Name,
				Title:     "Feed connection lost",
				Message:   err.Error(),
				Fields: map[string]string{
					"url":          cfg.Feed.URL,
					"max_attempts": strconv.Itoa(cfg.Feed.MaxReconnectAttempts),
				},
			})
			return fmt.Errorf("feed: %w", err)
		case <-gCtx.Done():
			return nil
		}
	})

	g.Go(func() error {
		watchIngestHealth(gCtx, pipe, cache, alerter, logger)
		return nil
	})

	g.Go(func() error {
		select {
		case sig := <-sigCh:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
			return nil
		case <-gCtx.Done():
			return nil
		}
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		logger.Error("aisightd exited with error", "error", err)
		os.Exit(1)
	}

	logger.Info("aisightd shut down gracefully")
}

// watchIngestHealth polls the flush health tracker and the cache and
// alerts on transitions: flush unhealthiness, cache unreachability, and
// the matching recoveries.
func watchIngestHealth(ctx context.Context, pipe *pipeline.Pipeline, cache *redispkg.Cache, alerter alert.Alerter, logger *slog.Logger) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	wasUnhealthy := false
	cacheWasDown := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snapshot := pipe.Health()
			unhealthy := snapshot.Status == string(pipeline.HealthStatusUnhealthy)
			if unhealthy != wasUnhealthy {
				wasUnhealthy = unhealthy

				a := alert.Alert{
					Type:      alert.AlertTypeRecovery,
					Component: "pipeline",
					Title:     "Batch flushes recovered",
					Message:   "Flush health returned to " + snapshot.Status,
				}
				if unhealthy {
					a = alert.Alert{
						Type:      alert.AlertTypeUnhealthy,
						Component: "pipeline",
						Title:     "Batch flushes failing",
						Message:   "Consecutive flush failures crossed the unhealthy threshold",
						Fields: map[string]string{
							"consecutive_failures": strconv.Itoa(snapshot.ConsecutiveFailures),
						},
					}
				}
				if err := alerter.Send(ctx, a); err != nil {
					logger.Warn("pipeline health alert failed", "error", err)
				}
			}

			probeCtx, probeCancel := context.WithTimeout(ctx, 2*time.Second)
			_, probeErr := cache.ActiveCount(probeCtx)
			probeCancel()
			cacheDown := probeErr != nil
			if cacheDown != cacheWasDown {
				cacheWasDown = cacheDown

				a := alert.Alert{
					Type:      alert.AlertTypeRecovery,
					Component: "cache",
					Title:     "Cache reachable again",
					Message:   "Live-view writes resumed",
				}
				if cacheDown {
					a = alert.Alert{
						Type:      alert.AlertTypeCacheFailure,
						Component: "cache",
						Title:     "Cache unreachable",
						Message:   "Live view is stale; durable ingestion continues",
						Fields:    map[string]string{"error": probeErr.Error()},
					}
				}
				if err := alerter.Send(ctx, a); err != nil {
					logger.Warn("cache health alert failed", "error", err)
				}
			}
		}
	}
}

type healthResponse struct {
	Status      string                  `json:"status"`
	Pipeline    pipeline.HealthSnapshot `json:"pipeline"`
	Feed        map[string]any          `json:"feed"`
	Cache       map[string]any          `json:"cache"`
	Subscribers int                     `json:"subscribers"`
	Scheduler   scheduler.Status        `json:"scheduler"`
}

func runHealthServer(
	ctx context.Context,
	port int,
	logger *slog.Logger,
	pipe *pipeline.Pipeline,
	conn *feed.Conn,
	cache *redispkg.Cache,
	hub *broadcast.Hub,
	sched *scheduler.Scheduler,
) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		snapshot := pipe.Health()
		stats := conn.Stats()

		cacheStats := map[string]any{"healthy": true}
		countCtx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if count, err := cache.ActiveCount(countCtx); err != nil {
			cacheStats["healthy"] = false
			cacheStats["error"] = err.Error()
		} else {
			cacheStats["active_vessels"] = count
		}

		resp := healthResponse{
			Status:   snapshot.Status,
			Pipeline: snapshot,
			Feed: map[string]any{
				"state":     string(stats.State),
				"connected": stats.State == feed.StateConnected,
				"received":  stats.Received,
				"processed": stats.Processed,
				"errored":   stats.Errored,
			},
			Cache:       cacheStats,
			Subscribers: hub.SubscriberCount(),
			Scheduler:   sched.Status(),
		}
		if !stats.LastMessage.IsZero() {
			resp.Feed["last_message"] = stats.LastMessage.UTC().Format(time.RFC3339)
		}

		code := http.StatusOK
		if resp.Status == string(pipeline.HealthStatusUnhealthy) {
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			logger.Warn("failed to write health response", "error", err)
		}
	})
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && err != http.ErrServerClosed {
			logger.Warn("health server shutdown error", "error", err)
		}
	}()

	logger.Info("health server started", "port", port)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("health server: %w", err)
	}
	return nil
}
