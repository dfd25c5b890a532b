package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/IlyasAtabaev731/shopper/internal/api"
	"github.com/IlyasAtabaev731/shopper/internal/config"
	"github.com/IlyasAtabaev731/shopper/internal/lib/jwt"
	"github.com/IlyasAtabaev731/shopper/internal/services/auth"
	"github.com/IlyasAtabaev731/shopper/internal/services/cart"
	"github.com/IlyasAtabaev731/shopper/internal/services/catalog"
	"github.com/IlyasAtabaev731/shopper/internal/storage/images"
	"github.com/IlyasAtabaev731/shopper/internal/storage/mongo"
	"github.com/IlyasAtabaev731/shopper/internal/storage/postgres"
	"github.com/IlyasAtabaev731/shopper/internal/storage/sqlite"
)

type store interface {
	auth.UserStorage
	cart.Storage
	catalog.Storage
}

func main() {
	cfg := config.MustLoad()

	log := setupLogger(cfg.Env)

	log.Info("Starting application",
		slog.String("env", cfg.Env),
		slog.String("host", cfg.ApiHost),
		slog.Int("port", cfg.ApiPort),
		slog.String("storage", cfg.Storage.Driver),
		slog.String("cart_mode", cfg.Cart.Mode),
	)

	ctx := context.Background()

	storage, closeStorage, err := setupStorage(ctx, cfg, log)
	if err != nil {
		log.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer closeStorage()

	imageStorage, imagesDir, err := setupImages(ctx, cfg)
	if err != nil {
		log.Error("Failed to set up image storage", "error", err)
		os.Exit(1)
	}

	cartMode, err := cart.ParseMode(cfg.Cart.Mode)
	if err != nil {
		log.Error("Invalid cart mode", "error", err)
		os.Exit(1)
	}

	tokens := jwt.New([]byte(cfg.JWT.Secret), cfg.JWT.TTL)

	apiServer := api.New(cfg, log, api.Services{
		Auth:      auth.New(storage, tokens, log),
		Cart:      cart.New(storage, cartMode, log),
		Catalog:   catalog.New(storage, log),
		Images:    imageStorage,
		Tokens:    tokens,
		ImagesDir: imagesDir,
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		apiServer.MustStart()
	}()

	<-sigChan
	log.Info("Got signal to shutdown server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Stop(shutdownCtx); err != nil {
		log.Error("Stopping server error", "error", err)
	}
}

func setupStorage(ctx context.Context, cfg *config.Config, log *slog.Logger) (store, func(), error) {
	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		s, err := postgres.New(cfg.Storage.Postgres.URL(), log)
		if err != nil {
			return nil, nil, err
		}
		if cfg.Storage.Postgres.AutoMigrate {
			if err := s.Migrate(cfg.Storage.Postgres.MigrationsTable); err != nil {
				_ = s.Stop()
				return nil, nil, err
			}
		}
		return s, func() { closeWithLog(log, s.Stop()) }, nil

	case config.DriverSQLite:
		s, err := sqlite.New(cfg.Storage.SQLite.Path, log)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { closeWithLog(log, s.Stop()) }, nil

	case config.DriverMongo:
		s, err := mongo.New(ctx, cfg.Storage.Mongo.URI, cfg.Storage.Mongo.Database, log)
		if err != nil {
			return nil, nil, err
		}
		return s, func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			closeWithLog(log, s.Stop(stopCtx))
		}, nil
	}

	return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
}

func closeWithLog(log *slog.Logger, err error) {
	if err != nil {
		log.Error("Failed to close storage", "error", err)
	}
}

// setupImages returns the upload backend and, for the disk backend, the
// directory the API should serve.
func setupImages(ctx context.Context, cfg *config.Config) (api.ImageStorage, string, error) {
	if cfg.Images.Backend == config.ImagesS3 {
		s, err := images.NewS3(ctx, images.S3Config{
			Bucket:    cfg.Images.S3.Bucket,
			Region:    cfg.Images.S3.Region,
			Endpoint:  cfg.Images.S3.Endpoint,
			AccessKey: cfg.Images.S3.AccessKey,
			SecretKey: cfg.Images.S3.SecretKey,
			PublicURL: cfg.Images.S3.PublicURL,
		})
		return s, "", err
	}

	d, err := images.NewDisk(cfg.Images.Dir, cfg.Images.URLPrefix)
	if err != nil {
		return nil, "", err
	}
	return d, d.Dir(), nil
}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger
	switch env {
	case config.EnvLocal:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case config.EnvDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case config.EnvProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	}
	return log
}
