package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/garnizeh/staffdir/api"
	dbfs "github.com/garnizeh/staffdir/db"
	"github.com/garnizeh/staffdir/internal/config"
	"github.com/garnizeh/staffdir/internal/db"
	"github.com/garnizeh/staffdir/internal/jobs"
	"github.com/garnizeh/staffdir/internal/logging"
	"github.com/garnizeh/staffdir/internal/ordering"
	"github.com/garnizeh/staffdir/internal/repository/guard"
	"github.com/garnizeh/staffdir/internal/repository/objectstore"
	"github.com/garnizeh/staffdir/internal/repository/workbook"
	"github.com/garnizeh/staffdir/internal/roster"
	"github.com/garnizeh/staffdir/pkg/repository"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

// assetBackend is what the server needs from an object store.
type assetBackend interface {
	repository.AssetStore
	repository.AssetReader
}

func main() {
	var configPath = flag.String("config", "", "Path to config YAML file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "err", err)
		os.Exit(1)
	}

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		slog.Warn("falling back to info logging", "err", err)
	}
	color := os.Getenv("NO_COLOR") == "" && isatty.IsTerminal(os.Stdout.Fd())
	logger := logging.New(os.Stdout, level, cfg.IsDevelopment(), color)
	slog.SetDefault(logger)
	api.SetLogger(logger)
	roster.SetLogger(logger)
	guard.SetLogger(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", "err", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	logger.Info("starting staffdir", "version", version, "build_time", buildTime, "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	book := workbook.New(cfg.Workbook.Path)
	if err := book.Init(ctx); err != nil {
		return err
	}
	store := guard.New(book, cfg.Guard)

	assets, err := openAssets(ctx, cfg.Assets)
	if err != nil {
		return err
	}

	database, err := db.New(ctx, cfg.Jobs.DatabasePath)
	if err != nil {
		return err
	}
	defer func() {
		if err := database.Close(); err != nil {
			logger.Error("close jobs database", "err", err)
		}
	}()
	if err := db.Migrate(ctx, database, dbfs.Migrations); err != nil {
		return err
	}

	jobLogger := logger.With("component", "jobs")
	pool := jobs.NewWorkerPool(jobs.NewRepository(database), map[string]jobs.Handler{
		jobs.TypeAssetArchive: jobs.NewArchiveHandler(assets, jobLogger),
	}, jobLogger, cfg.Jobs.Workers)
	pool.Start(ctx)
	defer pool.Stop()

	dir, err := roster.NewDirectory(store, assets, roster.Options{
		URLPrefix:      cfg.Assets.URLPrefix,
		LabelTTL:       cfg.Labels.CacheTTL,
		MaxUploadBytes: int(cfg.Assets.MaxUploadBytes),
		Archive:        pool,
	})
	if err != nil {
		return err
	}

	deps := api.Deps{
		Directory: dir,
		Reorder:   ordering.NewManager(store, cfg.Reorder.SessionTTL, cfg.Reorder.MaxSessions),
		Auth: api.AuthConfig{
			Username:      cfg.Admin.Username,
			Password:      cfg.Admin.Password,
			PasswordHash:  cfg.Admin.PasswordHash,
			JWTSecret:     cfg.JWTSecret,
			TokenDuration: cfg.TokenDuration,
			LoginRate:     cfg.Login.Rate,
			LoginBurst:    cfg.Login.Burst,
		},
		MaxUploadBytes: cfg.Assets.MaxUploadBytes,
		Timeout:        cfg.APITimeout,
		Version:        version,
		BuildTime:      buildTime,
		Assets:         assets,
	}
	handler, err := api.SetupRoutes(deps)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.APITimeout,
		WriteTimeout: cfg.APITimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down server")

	// outstanding requests get 30 seconds
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info("server exited")
	return nil
}

func openAssets(ctx context.Context, cfg config.AssetsConfig) (assetBackend, error) {
	if cfg.Driver == "s3" {
		s, err := objectstore.NewS3Store(objectstore.S3Config{
			Endpoint:        cfg.Endpoint,
			AccessKeyID:     cfg.AccessKeyID,
			SecretAccessKey: cfg.SecretAccessKey,
			Bucket:          cfg.Bucket,
			Region:          cfg.Region,
			Prefix:          cfg.Prefix,
			UseSSL:          cfg.UseSSL,
		})
		if err != nil {
			return nil, err
		}
		if err := s.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return s, nil
	}
	return objectstore.NewLocalStore(cfg.Root)
}
