package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/scanbridge/relay-server-go/internal/config"
	"github.com/scanbridge/relay-server-go/internal/database"
	"github.com/scanbridge/relay-server-go/internal/handler"
	"github.com/scanbridge/relay-server-go/internal/jobs"
	"github.com/scanbridge/relay-server-go/internal/middleware"
	"github.com/scanbridge/relay-server-go/internal/redis"
	"github.com/scanbridge/relay-server-go/internal/relay"
	"github.com/scanbridge/relay-server-go/internal/repository"
	"github.com/scanbridge/relay-server-go/internal/service"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	setLogLevel(cfg.LogLevel)

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
	if err := db.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}
	cancel()
	log.Info().Msg("database connected")

	redisClient, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()
	log.Info().Msg("redis connected")

	sessionRepo := repository.NewSessionRepository(db.DB)
	policyRepo := repository.NewAccessPolicyRepository(db.DB)
	scanRepo := repository.NewScanRepository(db.DB)

	hub := relay.NewHub(redisClient)
	defer hub.Close()

	sessionService := service.NewSessionService(db, sessionRepo, policyRepo, scanRepo)
	policyService := service.NewAccessPolicyService(policyRepo, sessionRepo)
	scanService := service.NewScanService(scanRepo, sessionRepo, hub)
	exportService := service.NewExportService(scanService)

	sweeper := jobs.NewRetentionSweeper(
		db, sessionRepo, policyRepo, scanRepo,
		cfg.RetentionWindow(), cfg.SweepInterval(),
	)

	identityMiddleware := middleware.NewIdentityMiddleware()
	bodyLimitMiddleware := middleware.NewBodyLimitMiddleware(0)

	sessionHandler := handler.NewSessionHandler(sessionService, exportService, sweeper)
	policyHandler := handler.NewPolicyHandler(policyService)
	scanHandler := handler.NewScanHandler(scanService)
	relayHandler := handler.NewRelayHandler(hub, sessionService, scanService, policyService, cfg.AllowedOrigin)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"status":    "ok",
			"clients":   hub.TotalClients(),
			"timestamp": time.Now().UnixMilli(),
		})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Use(identityMiddleware.Handler)

		// Websocket upgrade outlives the request timeout; everything else is
		// bounded.
		r.Get("/relay", relayHandler.ServeHTTP)

		r.Group(func(r chi.Router) {
			r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
			r.Use(bodyLimitMiddleware.Handler)

			r.Mount("/sessions", sessionHandler.Routes())
			r.Mount("/policies", policyHandler.Routes())
			r.Mount("/scans", scanHandler.Routes())
			r.Post("/cleanup", sessionHandler.Cleanup)
		})
	})

	sweeper.Start()
	defer sweeper.Stop()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: 0,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
