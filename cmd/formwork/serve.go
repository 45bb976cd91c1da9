package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/formwork-ui/formwork/internal/config"
	"github.com/formwork-ui/formwork/internal/draft"
	"github.com/formwork-ui/formwork/internal/lookup"
	"github.com/formwork-ui/formwork/internal/mutation"
	"github.com/formwork-ui/formwork/internal/readcache"
	"github.com/formwork-ui/formwork/internal/remote"
	"github.com/formwork-ui/formwork/internal/schema"
	"github.com/formwork-ui/formwork/internal/store"
	"github.com/formwork-ui/formwork/internal/web"
)

var servePort int

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Override the configured server port")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the formwork engine server",
	Long:  "Load configuration, connect the durable store and upstream backend, and serve the engine API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if servePort != 0 {
			cfg.Server.Port = servePort
		}

		logger, err := newLogger(cfg.Logging)
		if err != nil {
			return fmt.Errorf("failed to build logger: %w", err)
		}
		defer logger.Sync()

		st, err := newStore(cfg.Store)
		if err != nil {
			return fmt.Errorf("failed to open %s store: %w", cfg.Store.Driver, err)
		}
		defer st.Close()

		upstream := remote.NewClient(cfg.Upstream.BaseURL, cfg.Upstream.Timeout, logger)

		schemas := schema.NewLoader(upstream, cfg.Contexts, logger)
		drafts := draft.NewEngine(st, logger)
		cache := readcache.New()
		coord := mutation.NewCoordinator(upstream, cache, drafts, logger)
		lookups := lookup.New(upstream, st, lookup.Config{
			DefaultTTL: cfg.Lookup.DefaultTTL,
			Logger:     logger,
		})

		// Serve stale-but-present options immediately after a restart
		hydrateCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := lookups.Hydrate(hydrateCtx); err != nil {
			logger.Warn("lookup hydration failed", zap.Error(err))
		}
		cancel()

		srv := web.NewServer(schemas, drafts, coord, lookups, cache, logger)
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		httpServer := &http.Server{
			Addr:              addr,
			Handler:           srv.Router(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			logger.Info("formwork listening",
				zap.String("addr", addr),
				zap.String("upstream", cfg.Upstream.BaseURL),
				zap.String("store", cfg.Store.Driver))
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- err
			}
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		select {
		case err := <-errCh:
			return err
		case sig := <-sigCh:
			logger.Info("shutting down", zap.String("signal", sig.String()))
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown failed: %w", err)
		}
		return nil
	},
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	var zc zap.Config
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

func newStore(cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Driver {
	case "memory":
		return store.NewMemoryStore(), nil

	case "sqlite":
		db, err := sql.Open("sqlite3", cfg.DSN)
		if err != nil {
			return nil, err
		}
		return store.NewDatabaseStore(store.DefaultDatabaseConfig(db))

	case "postgres":
		db, err := sql.Open("postgres", cfg.DSN)
		if err != nil {
			return nil, err
		}
		dbCfg := store.DefaultDatabaseConfig(db)
		dbCfg.PostgresPlaceholders = true
		return store.NewDatabaseStore(dbCfg)

	case "redis":
		rc := store.DefaultRedisConfig(cfg.RedisAddr)
		rc.Password = cfg.RedisPassword
		rc.DB = cfg.RedisDB
		return store.NewRedisStore(rc)

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
