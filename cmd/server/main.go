package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/vokivo/backend/internal/config"
	"github.com/vokivo/backend/internal/conversation"
	"github.com/vokivo/backend/internal/db"
	httpapi "github.com/vokivo/backend/internal/http"
	"github.com/vokivo/backend/internal/http/handlers"
	"github.com/vokivo/backend/internal/http/middleware"
	"github.com/vokivo/backend/internal/recordings"
	"github.com/vokivo/backend/internal/sample"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	zerolog.TimeFieldFormat = time.RFC3339
	level, _ := zerolog.ParseLevel(cfg.LogLevel)
	logger := log.Level(level).With().Str("service", "conversations-backend").Logger()

	ctx := context.Background()

	var (
		store    *db.Store
		source   conversation.RecordSource
		resolver middleware.SessionResolver
	)
	switch {
	case cfg.DatabaseURL != "":
		store, err = db.New(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect db")
		}
		defer store.Close()
		source = store
		resolver = store
		if cfg.SampleData {
			source = sample.FallbackSource{Primary: store, Fallback: sample.Source{}}
			logger.Info().Msg("sample data fallback enabled")
		}
	case cfg.SampleData:
		source = sample.Source{}
		resolver = middleware.StaticResolver{
			Token:        cfg.SampleToken,
			UserID:       "demo-user",
			AssistantIDs: []string{"demo-assistant"},
		}
		logger.Info().Msg("running on sample data only")
	default:
		logger.Fatal().Msg("DATABASE_URL is required unless SAMPLE_DATA is enabled")
	}
	source = conversation.NewRetryingSource(source, cfg.QueryTimeout, cfg.QueryRetries, logger)

	var lookup recordings.Lookup
	if cfg.RecordingProxyURL == "" {
		lookup = recordings.MockLookup{}
		logger.Info().Msg("using mock recording lookup")
	} else {
		lookup = recordings.HTTPLookup{BaseURL: cfg.RecordingProxyURL}
	}
	cached, err := recordings.NewCachedLookup(lookup, cfg.RecordingCacheSize, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build recording cache")
	}

	h := &handlers.Handler{
		Source:       source,
		Store:        store,
		Recordings:   cached,
		Validator:    validator.New(),
		Logger:       logger,
		PollInterval: cfg.PollInterval,
	}

	router := httpapi.Router(cfg, h, resolver, logger)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logger.Info().Str("port", cfg.Port).Msg("server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	h.Close()
	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctxShutdown)
	logger.Info().Msg("server stopped")
}
