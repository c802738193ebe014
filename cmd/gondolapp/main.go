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

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/gondolapp/gondolapp/cmd/gondolapp/cli"
	"github.com/gondolapp/gondolapp/internal/app"
	"github.com/gondolapp/gondolapp/internal/catalog"
	"github.com/gondolapp/gondolapp/internal/catalog/normalize"
	"github.com/gondolapp/gondolapp/internal/expiration"
	"github.com/gondolapp/gondolapp/internal/integrity"
	"github.com/gondolapp/gondolapp/internal/localstore"
	"github.com/gondolapp/gondolapp/internal/observability"
	"github.com/gondolapp/gondolapp/internal/platform/cache"
	"github.com/gondolapp/gondolapp/internal/restock"
	"github.com/gondolapp/gondolapp/jobs"
)

func main() {
	if len(os.Args) > 1 {
		os.Exit(runCommand(os.Args[1:]))
	}
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)
	metrics := observability.NewMetrics()

	store, closeStore, err := localstore.Open(ctx, localstore.Options{
		Driver:   cfg.StoreDriver,
		DSN:      cfg.PGDSN,
		MaxConns: cfg.PGMaxConns,
		Dir:      cfg.BadgerDir,
		Logger:   logger,
	})
	if err != nil {
		logger.Error("open local store", slog.String("driver", cfg.StoreDriver), slog.Any("error", err))
		os.Exit(1)
	}
	defer closeStore()

	var redisClient *redis.Client
	if client, err := cache.New(ctx, cfg.Redis()); err != nil {
		logger.Warn("redis unavailable, probe memoisation disabled", slog.Any("error", err))
	} else {
		redisClient = client
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	manager := catalog.NewSourceManager(logger, metrics)
	manager.Register(catalog.NewLocalSource(store))
	if cfg.RemoteAPIURL != "" {
		manager.Register(catalog.NewRemoteSource(catalog.RemoteConfig{
			BaseURL:      cfg.RemoteAPIURL,
			ProbeTimeout: cfg.RemoteProbeTimeout,
			FetchTimeout: cfg.RemoteFetchTimeout,
			ProbeCache:   cache.NewProbeCache(redisClient, cfg.RemoteProbeTTL, logger),
			Logger:       logger,
		}, store))
	}
	chain := normalize.NewChain(logger,
		normalize.NewAINormalizer(normalize.AIConfig{
			APIKey:   cfg.AIAPIKey,
			Endpoint: cfg.AIEndpoint,
			Model:    cfg.AIModel,
			Timeout:  cfg.AITimeout,
		}),
		normalize.NewManualNormalizer(),
	)
	productService := catalog.NewProductService(manager, chain, store, logger)

	var jobHandler *jobs.Handler
	if redisClient != nil {
		inspector := asynq.NewInspector(cfg.AsynqRedis())
		defer func() {
			if err := inspector.Close(); err != nil {
				logger.Warn("inspector close", slog.Any("error", err))
			}
		}()
		jobHandler = jobs.NewHandler(inspector, logger)
	} else {
		jobHandler = jobs.NewHandler(nil, logger)
	}

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		CatalogHandler:    catalog.NewHandler(logger, productService, store),
		RestockHandler:    restock.NewHandler(logger, restock.NewService(store, store, logger)),
		ExpirationHandler: expiration.NewHandler(logger, expiration.NewService(store, store, logger)),
		IntegrityHandler:  integrity.NewHandler(logger, integrity.NewService(store, logger), cfg.AdminTokenHash),
		JobHandler:        jobHandler,
		Metrics:           metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server",
			slog.String("addr", cfg.AppAddr),
			slog.String("store", cfg.StoreDriver),
			slog.String("upstream", cfg.RemoteAPIURL),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}

// runCommand handles the operational subcommands:
//
//	gondolapp hash-token <token>
//	gondolapp jobs trigger <task>
//	gondolapp jobs stats
func runCommand(args []string) int {
	switch args[0] {
	case "hash-token":
		if len(args) != 2 {
			fmt.Fprintln(os.Stderr, "usage: gondolapp hash-token <token>")
			return 2
		}
		hash, err := cli.HashAdminToken(args[1])
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		fmt.Println(hash)
		return 0
	case "jobs":
		return runJobsCommand(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", args[0])
		return 2
	}
}

func runJobsCommand(args []string) int {
	cfg, err := app.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	jobsCLI := cli.NewJobsCLI(cfg.AsynqRedis())
	defer func() {
		_ = jobsCLI.Close()
	}()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch {
	case len(args) == 2 && args[0] == "trigger":
		info, err := jobsCLI.Trigger(ctx, args[1])
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		fmt.Printf("enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
		return 0
	case len(args) == 1 && args[0] == "stats":
		stats, err := jobsCLI.InspectQueue(ctx)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		fmt.Printf("queue=%s pending=%d active=%d scheduled=%d retry=%d\n",
			stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry)
		return 0
	default:
		fmt.Fprintln(os.Stderr, "usage: gondolapp jobs trigger <task> | gondolapp jobs stats")
		return 2
	}
}
