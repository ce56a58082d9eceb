// Package main is the entry point for the classroom API server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/trungducnguyen4/classroom-service/internal/api"
	"github.com/trungducnguyen4/classroom-service/internal/chat"
	"github.com/trungducnguyen4/classroom-service/internal/config"
	"github.com/trungducnguyen4/classroom-service/internal/db"
	"github.com/trungducnguyen4/classroom-service/internal/health"
	"github.com/trungducnguyen4/classroom-service/internal/livekit"
	"github.com/trungducnguyen4/classroom-service/internal/middleware"
	"github.com/trungducnguyen4/classroom-service/internal/room"
	"github.com/trungducnguyen4/classroom-service/internal/token"
	"github.com/trungducnguyen4/classroom-service/internal/tracing"
	"github.com/trungducnguyen4/classroom-service/internal/transcript"
	"github.com/trungducnguyen4/classroom-service/internal/userdir"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (optional)")
	help := flag.Bool("help", false, "display help message")
	flag.Parse()

	if *help {
		fmt.Println("Classroom API Server")
		fmt.Println()
		fmt.Println("Usage: api [options]")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	cfg, errs := config.Load(*configPath)
	if len(errs) > 0 {
		for _, err := range errs {
			fmt.Fprintln(os.Stderr, "config error:", err)
		}
		os.Exit(1)
	}

	logger := middleware.NewLogger(cfg.Env)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Tracing
	tracerProvider, err := tracing.NewProvider(tracing.Config{
		ServiceName:  "classroom-service",
		Enabled:      cfg.TracingEnabled,
		Environment:  cfg.Env,
		OTLPEndpoint: cfg.TracingEndpoint,
		SamplingRate: 1.0,
		InsecureMode: cfg.Env != "production",
	})
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shut down tracer provider", "error", err)
		}
	}()

	// Database
	dbConn, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbConn.Close()

	store := room.NewPostgresStore(dbConn, logger)
	messages := chat.NewPostgresRepository(dbConn)
	transcripts := transcript.NewPostgresRepository(dbConn)

	// Redis is optional. With it, rate limits are shared across instances
	// and directory lookups are cached; without it, both degrade to
	// per-instance in-memory behavior.
	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Error("invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		rdb = redis.NewClient(opts)
		defer rdb.Close()
	}

	// LiveKit
	tokenService, err := livekit.NewTokenService(cfg.LiveKitAPIKey, cfg.LiveKitAPISecret)
	if err != nil {
		logger.Error("failed to create livekit token service", "error", err)
		os.Exit(1)
	}
	roomService := livekit.NewRoomService(cfg.LiveKitURL, cfg.LiveKitAPIKey, cfg.LiveKitAPISecret)

	// User directory
	dirOpts := []userdir.Option{userdir.WithTimeout(cfg.UserLookupTimeout)}
	if rdb != nil {
		dirOpts = append(dirOpts, userdir.WithCache(rdb))
	}
	directory := userdir.NewClient(cfg.UserServiceURL, logger, dirOpts...)

	// Metrics
	registry := prometheus.NewRegistry()
	roomMetrics := room.NewMetrics()
	if err := roomMetrics.Register(registry); err != nil {
		logger.Error("failed to register room metrics", "error", err)
		os.Exit(1)
	}
	httpMetrics := middleware.NewMetrics()
	if err := httpMetrics.Register(registry); err != nil {
		logger.Error("failed to register http metrics", "error", err)
		os.Exit(1)
	}

	// Domain wiring
	coordinator := room.NewCoordinator(store, logger,
		room.WithMediaController(roomService),
		room.WithMessagePurger(messages),
		room.WithTranscriptPurger(transcripts),
		room.WithMetrics(roomMetrics),
	)
	issuer := token.NewIssuer(tokenService, directory, store, roomMetrics, logger)
	broadcaster := room.NewEventBroadcaster()

	sweeper := room.NewSweeper(coordinator, logger, room.SweeperConfig{
		MaxRoomAge: cfg.RoomMaxAge,
		Retention:  cfg.RoomRetention,
		Interval:   cfg.SweepInterval,
	})
	sweeper.Start(ctx)
	defer sweeper.Stop()

	// Rate limiting
	var rateLimitStore middleware.RateLimitStore
	if rdb != nil {
		rateLimitStore = middleware.NewRedisRateLimitStore(rdb)
	} else {
		memStore := middleware.NewInMemoryRateLimitStore()
		go func() {
			ticker := time.NewTicker(5 * time.Minute)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					memStore.Cleanup()
				}
			}
		}()
		rateLimitStore = memStore
	}
	tokenLimiter := middleware.RateLimiter(rateLimitStore, middleware.DefaultTokenLimit(), middleware.IPKeyFunc())
	adminLimiter := middleware.RateLimiter(rateLimitStore, middleware.DefaultAdminLimit(), middleware.IPKeyFunc())

	// Handlers
	meeting := api.NewMeetingHandlers(api.MeetingHandlersConfig{
		Store:       store,
		Issuer:      issuer,
		Coordinator: coordinator,
		Broadcaster: broadcaster,
		Metrics:     roomMetrics,
		Logger:      logger,
	})
	admin := api.NewAdminHandlers(store, coordinator, messages, transcripts, logger)
	events := api.NewEventWebSocketHandlers(store, broadcaster, cfg.CORSAllowedOrigins, logger)

	healthCfg := api.HealthHandlersConfig{
		DBChecker:      health.NewDBChecker(dbConn),
		LiveKitChecker: health.NewLiveKitChecker(cfg.LiveKitURL),
		MetricsEnabled: true,
	}
	if rdb != nil {
		healthCfg.RedisChecker = health.NewRedisChecker(rdb)
	}
	healthHandlers := api.NewHealthHandlers(healthCfg)

	// Routes with a {roomCode} wildcard keep it in the last segment so no
	// two registered patterns overlap.
	mux := http.NewServeMux()
	mux.Handle("POST /meeting/token", tokenLimiter(http.HandlerFunc(meeting.IssueToken)))
	mux.HandleFunc("POST /meeting/create", meeting.CreateRoom)
	mux.HandleFunc("GET /meeting/rooms", meeting.ListRooms)
	mux.HandleFunc("GET /meeting/check/{roomCode}", meeting.CheckRoom)
	mux.HandleFunc("DELETE /meeting/room/{roomCode}", meeting.DeleteRoom)
	mux.HandleFunc("POST /meeting/end/{roomCode}", meeting.End)
	mux.HandleFunc("POST /meeting/kick-participant", meeting.KickParticipant)
	mux.HandleFunc("POST /meeting/participant-left", meeting.ParticipantLeft)
	mux.HandleFunc("GET /meeting/participants/{roomCode}", meeting.ListParticipants)
	mux.HandleFunc("GET /meeting/events/{roomCode}", events.Subscribe)
	mux.HandleFunc("GET /meeting/{roomCode}", meeting.GetRoom)

	mux.Handle("GET /admin/stats", adminLimiter(http.HandlerFunc(admin.Stats)))
	mux.Handle("POST /admin/cleanup/messages", adminLimiter(http.HandlerFunc(admin.CleanupMessages)))
	mux.Handle("POST /admin/cleanup/transcripts", adminLimiter(http.HandlerFunc(admin.CleanupTranscripts)))
	mux.Handle("POST /admin/cleanup/events", adminLimiter(http.HandlerFunc(admin.CleanupEvents)))
	mux.Handle("POST /admin/cleanup/rooms", adminLimiter(http.HandlerFunc(admin.CleanupRooms)))
	mux.Handle("POST /admin/cleanup/all", adminLimiter(http.HandlerFunc(admin.CleanupAll)))
	mux.Handle("GET /admin/rooms/{roomCode}/events", adminLimiter(http.HandlerFunc(admin.RoomEvents)))

	mux.HandleFunc("GET /health", healthHandlers.Health)
	mux.HandleFunc("GET /ready", healthHandlers.Ready)
	mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	// Middleware chain, outermost first: request id, tracing, logging,
	// metrics, CORS, global rate limit.
	var handler http.Handler = mux
	handler = middleware.RateLimiter(rateLimitStore, middleware.DefaultGlobalLimit(), middleware.IPKeyFunc())(handler)
	handler = middleware.CORS(middleware.CORSConfig{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowCredentials: true,
		MaxAge:           300,
	})(handler)
	handler = middleware.HTTPMetrics(httpMetrics)(handler)
	handler = middleware.Logging(logger)(handler)
	if cfg.TracingEnabled {
		handler = middleware.Tracing("classroom-service")(handler)
	}
	handler = middleware.RequestID(handler)

	if cfg.Env == "development" || cfg.Env == "dev" {
		handler = middleware.Profiling(middleware.ProfilingConfig{
			Enabled:     true,
			Environment: cfg.Env,
		})(handler)
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting server", "port", cfg.Port, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}
