package main

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/storelink/lotterysync/internal/audit"
	"github.com/storelink/lotterysync/internal/config"
	"github.com/storelink/lotterysync/internal/logging"
	"github.com/storelink/lotterysync/internal/lotteryimport"
	"github.com/storelink/lotterysync/internal/possync"
	"github.com/storelink/lotterysync/internal/store"
	"github.com/storelink/lotterysync/internal/upc"
	"github.com/storelink/lotterysync/internal/upccache"
	"github.com/storelink/lotterysync/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	// Load and validate configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging based on config
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"db_max_conns", cfg.Database.MaxConns,
		"redis_addr", cfg.Redis.Addr,
		"upc_window", cfg.Redis.UPCWindow,
	)

	// Parse and configure connection pool
	poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		slog.Error("failed to parse database URL", "error", err)
		os.Exit(1)
	}

	// Apply pool configuration from config
	poolConfig.MaxConns = int32(cfg.Database.MaxConns)
	poolConfig.MinConns = int32(cfg.Database.MinConns)
	poolConfig.MaxConnLifetime = cfg.Database.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.Database.MaxConnIdleTime

	// Connect to database
	ctx := context.Background()
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		slog.Error("failed to ping database", "error", err)
		os.Exit(1)
	}

	// Log which database we connected to
	if u, err := url.Parse(cfg.Database.URL); err == nil {
		dbName := strings.TrimPrefix(u.Path, "/")
		slog.Info("connected to database", "name", dbName)
	} else {
		slog.Info("connected to database")
	}

	// Connect to Redis for the UPC cache. A Redis outage does not stop
	// startup: cache writes are best-effort and report failures inline.
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		slog.Warn("redis unreachable at startup, UPC caching degraded", "addr", cfg.Redis.Addr, "error", err)
	} else {
		slog.Info("connected to redis", "addr", cfg.Redis.Addr)
	}

	// Wire services
	st := store.New(pool)
	auditor := audit.NewService(pool)
	cache := upccache.New(rdb, cfg.Redis.UPCWindow)
	generator := upc.NewGenerator(upc.DefaultMaxTickets)

	syncer := possync.NewSyncer(generator, cache, st, auditor, possync.Config{
		DepartmentCode: cfg.Pos.DepartmentCode,
		TaxRateCode:    cfg.Pos.TaxRateCode,
	})

	imports := lotteryimport.NewService(st, auditor, lotteryimport.Config{
		TokenTTL:    cfg.Import.TokenTTL,
		MaxFileSize: cfg.Import.MaxFileSize,
		MaxRows:     cfg.Import.MaxRows,
	})

	server := web.NewServer(imports, syncer, st, cfg.Server)

	// Create cancellable context for background jobs
	jobCtx, cancelJobs := context.WithCancel(context.Background())

	// Purge expired pending imports in the background
	go imports.StartSweeper(jobCtx, cfg.Import.SweepInterval)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		// Stop background jobs
		cancelJobs()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	// Start server (uses addr from config internally)
	if err := server.Start(); err != nil {
		slog.Info("server stopped", "error", err)
	}
}
