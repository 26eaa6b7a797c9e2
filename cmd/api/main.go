package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"dreamwright/internal/genai"
	"dreamwright/internal/http/handlers"
	"dreamwright/internal/http/httpapi"
	"dreamwright/internal/infra"
	"dreamwright/internal/jobs"
)

func main() {
	// Load .env (optional)
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	if err := os.MkdirAll(cfg.ProjectsDir, 0o755); err != nil {
		logger.Fatal().Err(err).Str("dir", cfg.ProjectsDir).Msg("failed to create projects dir")
	}

	client, err := genai.NewClient(genai.Options{
		APIKey:     cfg.GeminiAPIKey,
		BaseURL:    cfg.GeminiBaseURL,
		Model:      cfg.GeminiModel,
		ImageModel: cfg.GeminiImageModel,
		Logger:     &logger,
		CacheDir:   cfg.CacheDir,
		CacheSize:  cfg.CacheSize,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init generation client")
	}

	manager := jobs.NewManager(logger)

	app := handlers.NewApp(cfg.ProjectsDir, manager, client, client, client, logger)
	router := httpapi.NewRouter(app)
	server := infra.NewHTTPServer(cfg, router)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		return server.Start()
	})

	// Drop finished jobs older than the retention window.
	g.Go(func() error {
		ticker := time.NewTicker(cfg.JobRetention / 4)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if n := manager.Cleanup(cfg.JobRetention); n > 0 {
					logger.Debug().Int("removed", n).Msg("cleaned up old jobs")
				}
			}
		}
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Fatal().Err(err).Msg("server failed")
	}
	logger.Info().Msg("server stopped")
}
