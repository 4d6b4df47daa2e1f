package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"

	"github.com/jacobwinther/auctionsite/internal/api"
	"github.com/jacobwinther/auctionsite/internal/bidding"
	"github.com/jacobwinther/auctionsite/internal/clock"
	"github.com/jacobwinther/auctionsite/internal/config"
	"github.com/jacobwinther/auctionsite/internal/health"
	"github.com/jacobwinther/auctionsite/internal/leader"
	"github.com/jacobwinther/auctionsite/internal/live"
	"github.com/jacobwinther/auctionsite/internal/notify"
	"github.com/jacobwinther/auctionsite/internal/store"
	"github.com/jacobwinther/auctionsite/internal/telemetry"

	// Register store drivers so they are available via store.Open.
	_ "github.com/jacobwinther/auctionsite/internal/store/entstore"
	_ "github.com/jacobwinther/auctionsite/internal/store/postgres"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	if err := run(*configPath); err != nil {
		slog.Error("fatal error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(configPath string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Load configuration.
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Setup telemetry.
	tp, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		slog.Warn("telemetry setup failed, continuing without OTEL export", slog.Any("error", err))
		tp = telemetry.NewNopProvider()
	}
	defer func() {
		if shutdownErr := tp.Shutdown(context.Background()); shutdownErr != nil {
			slog.Error("telemetry shutdown error", slog.Any("error", shutdownErr))
		}
	}()

	logger := tp.Logger
	clk := clock.Real{}

	// Open store using the configured driver (sqlx or ent).
	repos, err := store.Open(ctx, cfg.Database, clk)
	if err != nil {
		return fmt.Errorf("opening store (driver=%s): %w", cfg.Database.Driver, err)
	}
	defer repos.Closer.Close()

	logger.InfoContext(ctx, "connected to database", slog.String("driver", cfg.Database.Driver))

	// Live update hub runs on every replica.
	hub := live.NewHub(logger)
	go hub.Run(ctx)

	// With Redis configured, updates fan out across replicas through
	// pub/sub; the bridge feeds the local hub. Without it, updates are
	// broadcast in-process only.
	var publisher live.Publisher = live.NewHubPublisher(hub)
	if cfg.Redis.Addr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr: cfg.Redis.Addr,
			DB:   cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("pinging redis: %w", err)
		}
		defer redisClient.Close()

		publisher = live.NewRedisPublisher(redisClient, cfg.Redis.ChannelPrefix)
		bridge := live.NewBridge(redisClient, hub, cfg.Redis.ChannelPrefix, logger)
		go func() {
			if bridgeErr := bridge.Run(ctx); bridgeErr != nil && ctx.Err() == nil {
				logger.ErrorContext(ctx, "redis bridge stopped", slog.Any("error", bridgeErr))
			}
		}()
		logger.InfoContext(ctx, "redis live updates enabled", slog.String("addr", cfg.Redis.Addr))
	}

	// Initialize services.
	bids := bidding.NewService(repos.Ledger, repos.Advertisements, logger, tp.TracerProvider, clk)
	notifications := notify.NewService(repos.Notifications, logger, clk)
	cleaner := notify.NewCleaner(repos.Notifications,
		cfg.Notifications.Retention, cfg.Notifications.CleanupInterval, logger, clk)

	// Setup health checks.
	healthHandler := health.NewHandler(clk,
		health.Checker{
			Name:  "database",
			Check: repos.Ping,
		},
	)

	// HTTP surface: API plus health endpoints, served on all replicas.
	router := mux.NewRouter()
	apiHandler := api.NewHandler(bids, repos.Advertisements, notifications,
		repos.Notifications, publisher, hub, logger)
	apiHandler.Register(router)
	router.HandleFunc("/healthz", healthHandler.LivenessHandler()).Methods(http.MethodGet)
	router.HandleFunc("/readyz", healthHandler.ReadinessHandler()).Methods(http.MethodGet)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.InfoContext(ctx, "starting http server", slog.Int("port", cfg.Server.Port))
		if listenErr := httpServer.ListenAndServe(); listenErr != nil && listenErr != http.ErrServerClosed {
			logger.ErrorContext(ctx, "http server error", slog.Any("error", listenErr))
		}
	}()

	// The notification cleaner is a singleton job: with leader election
	// enabled only the leader runs it, otherwise this replica does.
	if cfg.LeaderElection.Enabled {
		go func() {
			if leaderErr := leader.Run(ctx, cfg.LeaderElection, logger,
				cleaner.Run,
				func() { logger.Info("lost leadership, notification cleaner stopped") },
			); leaderErr != nil {
				logger.ErrorContext(ctx, "leader election failed", slog.Any("error", leaderErr))
			}
		}()
	} else {
		go cleaner.Run(ctx)
	}

	healthHandler.SetReady(true)
	logger.InfoContext(ctx, "auctionsite is running", slog.String("version", version))

	// Wait for shutdown signal.
	<-ctx.Done()
	logger.Info("shutting down...")

	healthHandler.SetReady(false)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", slog.Any("error", err))
	}

	logger.Info("shutdown complete")
	return nil
}
