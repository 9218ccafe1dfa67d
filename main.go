package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	clerk "github.com/clerk/clerk-sdk-go/v2"
	gorilllaHandlers "github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"habitPulseAPI/handlers"
	"habitPulseAPI/internal/config"
	"habitPulseAPI/internal/logger"
	"habitPulseAPI/internal/store"
	"habitPulseAPI/internal/vitality"
	"habitPulseAPI/middleware"
	"habitPulseAPI/services"

	_ "net/http/pprof"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		logger.Info("No .env file found")
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Invalid configuration", "error", err)
	}
	if err := logger.Init(logger.Config{Level: cfg.Logging.Level, File: cfg.Logging.File}); err != nil {
		logger.Fatal("Failed to initialize logger", "error", err)
	}

	if !cfg.Auth.Disabled {
		clerk.SetKey(cfg.Auth.ClerkSecretKey)
		logger.Info("Clerk initialized successfully")
	} else {
		logger.Warn("Authentication disabled, all requests act as the dev owner", "owner", cfg.Auth.DevOwnerID)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	st, err := store.Open(ctx, cfg.Database)
	cancel()
	if err != nil {
		logger.Fatal("Failed to open database", "driver", cfg.Database.Driver, "error", err)
	}
	defer func() {
		logger.Info("Closing database connection...")
		st.Close()
	}()
	logger.Info("Database connected", "driver", cfg.Database.Driver)

	model, err := vitality.NewModel(cfg.Engine.HealthRecovery, cfg.Engine.HealthDecay)
	if err != nil {
		logger.Fatal("Invalid health model", "error", err)
	}

	habitService := services.NewHabitService(st, model)
	analyticsService := services.NewAnalyticsService(st, cfg.Engine.HeatmapDays)

	middleware.InitPrometheus()

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	limiter := middleware.NewRateLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst)
	go limiter.Cleanup(rootCtx)

	r := newRouter(cfg, st, limiter,
		handlers.NewHabitHandler(habitService),
		handlers.NewAnalyticsHandler(analyticsService),
	)

	corsHandler := gorilllaHandlers.CORS(
		gorilllaHandlers.AllowedOrigins([]string{"*"}),
		gorilllaHandlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		gorilllaHandlers.AllowedHeaders([]string{"Content-Type", "Authorization", "X-Pprof-Secret", middleware.TimezoneHeader}),
		gorilllaHandlers.ExposedHeaders([]string{"Content-Length"}),
		gorilllaHandlers.AllowCredentials(),
	)

	port := ":" + cfg.Server.Port
	server := http.Server{
		Addr:         port,
		Handler:      corsHandler(r),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("Starting server", "port", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Error starting server", "error", err)
		}
	}()

	<-rootCtx.Done()
	logger.Info("Shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}

	logger.Info("Server shutdown complete")
}

func newRouter(cfg *config.Config, st store.Store, limiter *middleware.RateLimiter, habitHandler *handlers.HabitHandler, analyticsHandler *handlers.AnalyticsHandler) *mux.Router {
	r := mux.NewRouter()
	r.Use(limiter.Middleware)
	r.Use(middleware.MonitorMiddleware)

	r.Handle("/metrics", middleware.BasicAuthMiddleware(cfg.Server.MetricsUser, cfg.Server.MetricsPass)(promhttp.Handler()))
	r.PathPrefix("/debug/pprof/").Handler(middleware.PprofSecurityMiddleware(cfg.Server.PprofSecret)(http.DefaultServeMux))

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		w.Header().Set("Content-Type", "application/json")
		if err := st.Ping(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status": "unhealthy", "error": "database connection failed"}`))
			return
		}

		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status": "healthy", "service": "habitpulse-api"}`))
	}).Methods("GET")

	protected := r.PathPrefix("/api/v1").Subrouter()
	if cfg.Auth.Disabled {
		protected.Use(middleware.StaticOwnerMiddleware(cfg.Auth.DevOwnerID))
	} else {
		protected.Use(middleware.ClerkAuthMiddleware)
	}
	protected.Use(middleware.TimezoneMiddleware(cfg.Engine.DefaultTimezone))

	protected.HandleFunc("/habits", habitHandler.CreateHabit).Methods("POST")
	protected.HandleFunc("/habits", habitHandler.ListHabits).Methods("GET")
	protected.HandleFunc("/habits/{id}", habitHandler.GetHabit).Methods("GET")
	protected.HandleFunc("/habits/{id}/archive", habitHandler.ArchiveHabit).Methods("PUT")
	protected.HandleFunc("/habits/{id}/completions/increment", habitHandler.IncrementCompletion).Methods("POST")
	protected.HandleFunc("/habits/{id}/completions/decrement", habitHandler.DecrementCompletion).Methods("POST")
	protected.HandleFunc("/habits/{id}/streak", habitHandler.GetStreak).Methods("GET")
	protected.HandleFunc("/habits/{id}/calendar", habitHandler.GetCalendar).Methods("GET")

	protected.HandleFunc("/analytics/heatmap", analyticsHandler.GetHeatmap).Methods("GET")

	return r
}
