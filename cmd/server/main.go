package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/JonMunkholm/vitibrasil/internal/auth"
	"github.com/JonMunkholm/vitibrasil/internal/config"
	"github.com/JonMunkholm/vitibrasil/internal/core"
	_ "github.com/JonMunkholm/vitibrasil/internal/core/datasets" // Register all datasets
	"github.com/JonMunkholm/vitibrasil/internal/history"
	"github.com/JonMunkholm/vitibrasil/internal/logging"
	"github.com/JonMunkholm/vitibrasil/internal/source"
	"github.com/JonMunkholm/vitibrasil/internal/web"
)

func main() {
	var envFile string
	var check bool

	flagSet := pflag.NewFlagSet("vitibrasil", pflag.ContinueOnError)
	flagSet.StringVar(&envFile, "env-file", ".env", "environment file to load before reading configuration")
	flagSet.BoolVar(&check, "check", false, "load every dataset once, print the result and exit")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printHelp(flagSet)
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return
	}

	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(envFile); err != nil {
		slog.Info("no .env file found, using environment variables", "file", envFile)
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)", "file", envFile)
	}

	// Load and validate configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging based on config
	logger := logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"source_mode", cfg.Source.Mode,
		"auth_enabled", cfg.Auth.Enabled,
		"history", historyBackend(cfg),
		"rate_limit_enabled", cfg.Rate.Enabled,
	)
	slog.Debug("configuration", "config", cfg.String())

	ctx := context.Background()

	// Dataset sources
	provider, err := newProvider(cfg, logger)
	if err != nil {
		slog.Error("failed to create source provider", "error", err)
		os.Exit(1)
	}

	// Load history: Postgres when configured, memory otherwise
	store, pool, err := newHistoryStore(ctx, cfg)
	if err != nil {
		slog.Error("failed to set up load history", "error", err)
		os.Exit(1)
	}
	if pool != nil {
		defer pool.Close()
	}

	encoding, err := core.ParseEncoding(cfg.Source.Encoding)
	if err != nil {
		slog.Error("unsupported source encoding", "error", err)
		os.Exit(1)
	}

	defs := core.All()
	cache := core.NewCache(provider, defs, core.CacheOptions{
		Encoding:         encoding,
		ParseConcurrency: cfg.Cache.ParseConcurrency,
		Logger:           logger,
		Observers:        []core.LoadObserver{store},
	})
	service := core.NewService(cache)

	slog.Info("datasets registered", "count", len(defs))
	for _, kind := range []core.DatasetKind{core.KindProduction, core.KindProcessing, core.KindCommercialization, core.KindImport, core.KindExport} {
		slog.Debug("dataset kind", "kind", kind.String(), "datasets", len(core.ByKind(kind)))
	}

	if check {
		os.Exit(runCheck(ctx, service))
	}

	if cfg.Cache.LoadOnStartup {
		loadCtx, cancel := context.WithTimeout(ctx, cfg.Cache.LoadTimeout)
		if _, err := service.Load(loadCtx); err != nil {
			// Queries retry the load on demand, so the server still starts.
			slog.Error("startup load failed", "dataset", core.DatasetOf(err), "error", err)
		}
		cancel()
	}

	// Token issuer
	var issuer *auth.Issuer
	if cfg.Auth.Enabled {
		issuer, err = auth.NewIssuer(auth.Config{
			Secret:   cfg.Auth.JWTSecret,
			TTL:      cfg.Auth.TokenTTL,
			Issuer:   cfg.Auth.Issuer,
			Username: cfg.Auth.Username,
			Password: cfg.Auth.Password,
		})
		if err != nil {
			slog.Error("failed to create token issuer", "error", err)
			os.Exit(1)
		}
	} else {
		slog.Warn("authentication disabled; the dataset API is public")
	}

	// Create server with config
	server := web.NewServer(service, web.Options{
		Auth:           issuer,
		History:        store,
		RateLimit:      cfg.Rate,
		Security:       cfg.Security,
		RequestTimeout: cfg.Server.RequestTimeout,
	})

	// Create cancellable context for background jobs
	jobCtx, cancelJobs := context.WithCancel(context.Background())

	// Start refresh scheduler with config values
	go func() {
		err := service.StartRefreshScheduler(jobCtx, core.RefreshConfig{
			Interval:         cfg.Cache.RefreshInterval,
			Cron:             cfg.Cache.RefreshCron,
			HistoryRetention: cfg.History.Retention,
			Purger:           store,
			Timeout:          cfg.Cache.LoadTimeout,
		})
		if err != nil {
			slog.Error("refresh scheduler failed", "error", err)
		}
	}()

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

	if err := server.Start(&cfg.Server); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

// newProvider builds the dataset source selected by SOURCE_MODE.
func newProvider(cfg *config.Config, logger *slog.Logger) (core.SourceProvider, error) {
	switch strings.ToLower(cfg.Source.Mode) {
	case "http":
		slog.Info("reading datasets over http", "base_url", cfg.Source.BaseURL)
		p, err := source.NewHTTP(source.HTTPOptions{
			BaseURL:    cfg.Source.BaseURL,
			Timeout:    cfg.Source.Timeout,
			MaxRetries: cfg.Source.MaxRetries,
			Logger:     logger,
		}, core.Get)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		p := source.NewDir(cfg.Source.Dir, core.Get)
		if err := p.Check(core.All()); err != nil {
			// Not fatal: the files may be mounted after startup.
			slog.Warn("dataset directory incomplete", "dir", cfg.Source.Dir, "error", err)
		} else {
			slog.Info("reading datasets from directory", "dir", cfg.Source.Dir)
		}
		return p, nil
	}
}

// newHistoryStore connects to Postgres when DATABASE_URL is set.
func newHistoryStore(ctx context.Context, cfg *config.Config) (history.Store, *pgxpool.Pool, error) {
	if cfg.Database.URL == "" {
		return history.NewMemoryStore(cfg.History.MemorySize), nil, nil
	}

	// Parse and configure connection pool
	poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse database URL: %w", err)
	}

	// Apply pool configuration from config
	poolConfig.MaxConns = int32(cfg.Database.MaxConns)
	poolConfig.MinConns = int32(cfg.Database.MinConns)
	poolConfig.MaxConnLifetime = cfg.Database.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.Database.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("ping database: %w", err)
	}

	// Log which database we connected to
	if u, err := url.Parse(cfg.Database.URL); err == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	} else {
		slog.Info("connected to database")
	}

	store := history.NewPGStore(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return store, pool, nil
}

func historyBackend(cfg *config.Config) string {
	if cfg.Database.URL != "" {
		return "postgres"
	}
	return "memory"
}

// runCheck loads every dataset once and prints the per-dataset counts.
func runCheck(ctx context.Context, service *core.Service) int {
	status, err := service.Load(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load failed: %s\n  %v\n", core.FormatUserError(err), err)
		return 1
	}
	for _, def := range service.Cache().Datasets() {
		fmt.Printf("%-40s %8d\n", def.ID, status.Facts[def.ID])
	}
	fmt.Printf("generation %s: %d categories, %d products, %d cultivars, %d countries\n",
		status.GenerationID, status.Categories, status.Products, status.Cultivars, status.Countries)
	return 0
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `VitiBrasil server: serves the Embrapa grape datasets over HTTP.

Configuration is read from the environment, after loading --env-file.
See internal/config for the variables.

Usage:
  vitibrasil [flags]

Flags:
%s`, flagSet.FlagUsages())
}
