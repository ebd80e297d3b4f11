// chitragupt is a chat moderation bot: every command is gated through a
// role-based permission engine backed by flat JSON documents, newcomers
// go through a SuperAdmin approval workflow, and moderators get bulk
// message deletion with automatic boundary discovery.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/chitragupt/chitragupt/pkg/async"
	"github.com/chitragupt/chitragupt/pkg/bot"
	"github.com/chitragupt/chitragupt/pkg/config"
	"github.com/chitragupt/chitragupt/pkg/observability"
	"github.com/chitragupt/chitragupt/pkg/purge"
	"github.com/chitragupt/chitragupt/pkg/rbac"
	"github.com/chitragupt/chitragupt/pkg/telegram"
)

const version = "1.0.0"

// updateTimeout bounds a single update's handling; purges with many
// batches are the slowest path
const updateTimeout = 5 * time.Minute

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "chitragupt: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	logger.WithField("version", version).Info("chitragupt starting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, logger)
	if err != nil {
		return fmt.Errorf("initializing OpenTelemetry: %w", err)
	}

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	store := rbac.NewStore(cfg.Store.DataDir, cfg.Store.RulesFile, cfg.Store.UsersFile,
		cfg.Store.RequestsFile, logger, metrics)
	if err := store.Load(); err != nil {
		return fmt.Errorf("loading permission store: %w", err)
	}
	engine := rbac.NewEngine(store, cfg.Store.PermissionCacheSize, cfg.Store.PermissionCacheTTL, logger, metrics)

	// the configured operators must hold SuperAdmin before any update
	// is processed, or nobody can approve the first newcomer
	for _, id := range cfg.Bot.SuperAdmins {
		if err := store.SyncSuperAdmin(id, "operator"); err != nil {
			return fmt.Errorf("seeding SuperAdmin %d: %w", id, err)
		}
	}

	client := telegram.NewClient(cfg.Bot.APIBaseURL, cfg.Bot.Token,
		cfg.Bot.CallTimeout, cfg.Bot.PollTimeout, logger, metrics)

	var botUsername string
	if me, err := client.GetMe(ctx); err != nil {
		logger.WithError(err).Warn("could not fetch bot identity, group mentions will not be filtered")
	} else {
		botUsername = me.Username
		logger.WithField("username", botUsername).Info("connected to the Bot API")
	}

	workflow := bot.NewWorkflow(store, engine, client, logger, metrics)
	planner := purge.NewPlanner(client, logger, metrics)
	b := bot.NewBot(client, store, engine, workflow, planner, logger)

	cmdRegistry := bot.NewRegistry()
	if err := b.RegisterCommands(cmdRegistry); err != nil {
		return fmt.Errorf("registering commands: %w", err)
	}

	dispatcher := bot.NewDispatcher(cmdRegistry, engine, workflow, client, logger, metrics,
		cfg.Bot.ReplyUnknownCommand, botUsername)

	pool := async.NewWorkerPool(ctx, cfg.Bot.Workers, "update handling", updateTimeout)
	async.SafeGo(ctx, 0, "worker error drain", func(ctx context.Context) error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case err := <-pool.Errors():
				logger.WithError(err).Error("update handling failed")
			}
		}
	})

	poller := telegram.NewPoller(client, func(u telegram.Update) {
		if err := pool.Submit(func(ctx context.Context) error {
			dispatcher.ProcessUpdate(ctx, u)
			return nil
		}); err != nil {
			metrics.UpdatesDropped.WithLabelValues("pool_closed").Inc()
		}
	}, logger)

	var sweeper *bot.Sweeper
	if cfg.Bot.ApprovalTTL > 0 {
		sweeper = bot.NewSweeper(store, client, cfg.Bot.ApprovalTTL, logger, metrics)
		if err := sweeper.Start(); err != nil {
			return fmt.Errorf("starting approval sweeper: %w", err)
		}
	}

	health := observability.NewHealthChecker(version)
	health.AddDependency("store", store)

	router := mux.NewRouter()
	router.HandleFunc("/healthz", health.Liveness).Methods(http.MethodGet)
	router.HandleFunc("/readyz", health.Readiness).Methods(http.MethodGet)
	if cfg.Server.MetricsEnabled {
		router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	server := &http.Server{
		Addr:         ":" + cfg.Server.HealthPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return poller.Run(gctx)
	})
	if cfg.Store.WatchRules {
		watcher := rbac.NewRulesWatcher(store, engine, logger)
		g.Go(func() error {
			return watcher.Run(gctx)
		})
	}
	g.Go(func() error {
		logger.WithField("port", cfg.Server.HealthPort).Info("health server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	shutdown := observability.NewShutdownManager(logger, server, cfg.Server.ShutdownTimeout)
	shutdown.RegisterShutdownFunc(func(sctx context.Context) error {
		cancel()
		return pool.Shutdown(cfg.Server.ShutdownTimeout / 2)
	})
	if sweeper != nil {
		shutdown.RegisterShutdownFunc(func(context.Context) error {
			sweeper.Stop()
			return nil
		})
	}
	if providers != nil {
		shutdown.RegisterShutdownFunc(func(sctx context.Context) error {
			return observability.ShutdownOTel(sctx, providers, logger)
		})
	}

	if err := shutdown.WaitForShutdown(); err != nil {
		return err
	}

	if err := g.Wait(); err != nil && err != context.Canceled {
		return err
	}
	logger.Info("chitragupt stopped")
	return nil
}
