package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"fluxboom/internal/adapter/repo"
	httpapi "fluxboom/internal/http"
	"fluxboom/internal/http/handlers"
	"fluxboom/internal/infra"
	"fluxboom/internal/orchestrator"
	"fluxboom/internal/replicate"
	"fluxboom/internal/secrets"
	"fluxboom/internal/session"
	"fluxboom/internal/storage"
	"fluxboom/internal/upload"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx := context.Background()
	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer dbpool.Close()

	store, err := storage.NewFileStore(cfg.StoragePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize file store")
	}

	images := repo.NewImageRepository(dbpool)
	prompts := repo.NewPromptHistoryRepository(dbpool)
	secretStore := &secrets.EnvFallback{
		Store: secrets.NewStore(dbpool),
		Values: map[string]string{
			secrets.KeyReplicate: cfg.ReplicateAPIToken,
			secrets.KeyImgbb:     cfg.ImgbbAPIKey,
		},
	}

	uploader := upload.NewUploader(upload.Options{
		Endpoint: cfg.ImgbbUploadURL,
		Secrets:  secretStore,
		Logger:   &logger,
	})
	client := replicate.NewClient(replicate.Options{
		BaseURL: cfg.ReplicateBaseURL,
		Secrets: secretStore,
		Logger:  &logger,
	})

	sessions := session.NewManager(func() *orchestrator.Orchestrator {
		return orchestrator.New(orchestrator.Options{
			Uploader:     uploader,
			Client:       client,
			Images:       images,
			Prompts:      prompts,
			Secrets:      secretStore,
			Store:        store,
			Logger:       &logger,
			PollInterval: cfg.PollInterval,
		})
	}, &logger)

	app := &handlers.App{
		Images:   images,
		Prompts:  prompts,
		Secrets:  secretStore,
		Sessions: sessions,
		Store:    store,
		Logger:   logger,
	}
	router := httpapi.NewRouter(app, cfg.AllowedOrigins)
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
