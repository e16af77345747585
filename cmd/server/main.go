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

	"github.com/cloudnine/checkin-server-go/internal/audit"
	"github.com/cloudnine/checkin-server-go/internal/cache"
	"github.com/cloudnine/checkin-server-go/internal/checkin"
	"github.com/cloudnine/checkin-server-go/internal/config"
	"github.com/cloudnine/checkin-server-go/internal/database"
	"github.com/cloudnine/checkin-server-go/internal/handler"
	"github.com/cloudnine/checkin-server-go/internal/jobs"
	"github.com/cloudnine/checkin-server-go/internal/metrics"
	"github.com/cloudnine/checkin-server-go/internal/middleware"
	"github.com/cloudnine/checkin-server-go/internal/notify"
	"github.com/cloudnine/checkin-server-go/internal/redis"
	"github.com/cloudnine/checkin-server-go/internal/repository"
	"github.com/cloudnine/checkin-server-go/internal/sse"
	"github.com/cloudnine/checkin-server-go/internal/token"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setLogLevel(cfg.LogLevel)

	isProduction := os.Getenv("ENV") == "production"
	if err := cfg.Validate(isProduction); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

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

	tokenRepo := repository.NewTokenRepository(db.DB)
	bookingRepo := repository.NewBookingRepository(db.DB)
	roomRepo := repository.NewRoomRepository(db.DB)
	staffRepo := repository.NewStaffRepository(db.DB)

	sessionCache := cache.NewRedisCache(redisClient)
	notifier := notify.NewRedisNotifier(redisClient)
	metricsRecorder := metrics.NewRecorder(redisClient)
	auditor := audit.NewRecorder(redisClient, notifier)

	broker := sse.NewBroker(redisClient)
	defer broker.Close()

	signer := token.NewSigner(cfg.TokenSigningSecret)
	issuer := token.NewIssuer(tokenRepo, sessionCache, signer, auditor, notifier, metricsRecorder)
	validator := token.NewValidator(signer, tokenRepo, sessionCache, auditor, metricsRecorder, notifier, token.Policy{
		EarlyWindow:     cfg.EarlyCheckInWindow(),
		LateGrace:       cfg.LateCheckInGrace(),
		LateCheckIn:     cfg.LateCheckInPolicy,
		CrossHotelStaff: cfg.CrossHotelPolicy,
		CacheTTL:        cfg.ValidationCacheTTL(),
	})

	orchestrator := checkin.NewOrchestrator(
		db, bookingRepo, roomRepo, issuer, validator, signer,
		sessionCache, notifier, auditor, metricsRecorder,
		checkin.Options{
			ProcessTTL:         cfg.ProcessTTL(),
			CompletedRetention: config.CompletedProcessRetention,
			CallTimeout:        config.ExternalCallTimeout,
		},
	)

	authMiddleware := middleware.NewAuthMiddleware(staffRepo)
	rateLimiter := middleware.NewRedisRateLimiter(redisClient.Client)
	redeemLimit := middleware.NewRateLimitMiddleware(rateLimiter, cfg.RedeemRateLimitPerMin, "redeem")
	validateLimit := middleware.NewRateLimitMiddleware(rateLimiter, cfg.ValidateRateLimitPerMin, "validate")
	bodyLimitMiddleware := middleware.NewBodyLimitMiddleware(0)

	tokenHandler := handler.NewTokenHandler(issuer, validator)
	checkinHandler := handler.NewCheckInHandler(orchestrator)
	eventsHandler := handler.NewEventsHandler(broker)
	adminHandler := handler.NewAdminHandler(metricsRecorder, auditor, broker)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
	r.Use(bodyLimitMiddleware.Handler)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"status":    "ok",
			"timestamp": time.Now().UnixMilli(),
		})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Use(authMiddleware.Handler)

		r.Route("/tokens", func(r chi.Router) {
			r.Use(validateLimit.Handler)
			r.Mount("/", tokenHandler.Routes())
		})

		r.Route("/checkin", func(r chi.Router) {
			r.Use(redeemLimit.Handler)
			r.Mount("/", checkinHandler.Routes())
		})

		r.Get("/events", eventsHandler.ServeHTTP)

		r.Route("/admin", func(r chi.Router) {
			r.Mount("/", adminHandler.Routes())
		})
	})

	sweeper := jobs.NewSweeper(sessionCache, tokenRepo, metricsRecorder, cfg.ProcessTTL(), config.SweeperInterval)
	sweeper.Start()
	defer sweeper.Stop()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: 0, // SSE connections stay open
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
