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

	"github.com/spf13/cobra"

	"flowdesk/internal/config"
	"flowdesk/internal/database"
	"flowdesk/internal/database/memory"
	"flowdesk/internal/logging"
	"flowdesk/internal/server"
	"flowdesk/internal/storage"
)

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			return serve(cmd.Context(), cfg)
		},
	}
	cmd.Flags().Int("port", 0, "listen port")
	cmd.Flags().String("store", "", "persistence gateway: postgres or memory")
	_ = a.v.BindPFlag("port", cmd.Flags().Lookup("port"))
	_ = a.v.BindPFlag("store", cmd.Flags().Lookup("store"))
	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()
	logger.Info("store ready", "store", cfg.Store)

	blobs, err := openBlobStore(ctx, cfg)
	if err != nil {
		return err
	}
	logger.Info("blob store ready", "backend", cfg.Storage.Backend)

	srv := server.New(cfg, store, blobs, logger).HTTPServer()

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("server starting", "address", srv.Addr, "environment", cfg.Environment)
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(shutdown)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", "error", err)
			if err := srv.Close(); err != nil {
				logger.Error("server close error", "error", err)
			}
		}
		logger.Info("server stopped gracefully")
	}
	return nil
}

func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (database.Store, error) {
	if cfg.Store == "memory" {
		logger.Warn("using the in-memory store; data is lost on exit")
		return memory.New(), nil
	}

	if cfg.DB.MigrateOnStart {
		if err := migrateUp(cfg.DB.URL); err != nil {
			return nil, err
		}
		logger.Info("migrations applied")
	}

	pg, err := database.Open(ctx, database.Config{
		URL:          cfg.DB.URL,
		MaxOpenConns: cfg.DB.MaxOpenConns,
		LogQueries:   cfg.DB.LogQueries,
	})
	if err != nil {
		return nil, err
	}
	return pg, nil
}

func openBlobStore(ctx context.Context, cfg *config.Config) (storage.BlobStore, error) {
	var sealer *storage.Sealer
	if cfg.Storage.EncryptionKey != "" || cfg.Storage.Backend == "s3" {
		key, err := cfg.EncryptionKey()
		if err != nil {
			return nil, err
		}
		if sealer, err = storage.NewSealer(key); err != nil {
			return nil, err
		}
	}

	if cfg.Storage.Backend == "memory" {
		return storage.NewMemoryStore(sealer), nil
	}

	s3Store, err := storage.NewS3Store(ctx, storage.S3Config{
		Bucket:      cfg.Storage.Bucket,
		Region:      cfg.Storage.Region,
		EndpointURL: cfg.Storage.EndpointURL,
	}, sealer)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize S3 store: %w", err)
	}
	if err := s3Store.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	return s3Store, nil
}
