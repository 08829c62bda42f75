package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"encore-realtime/internal/auth"
	"encore-realtime/internal/cache"
	"encore-realtime/internal/config"
	"encore-realtime/internal/database"
	"encore-realtime/internal/handlers"
	"encore-realtime/internal/notify"
	"encore-realtime/internal/services"
	"encore-realtime/internal/websocket"
	"encore-realtime/pkg/logger"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// Load configuration
	cfg := config.Load()
	logger.Init(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize database
	db, err := database.NewPostgresDB(ctx, cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// User cache is optional; without Redis every lookup hits Postgres.
	var userCache cache.JSONCache = cache.Noop{}
	if cfg.Redis.URL != "" {
		redisCache, err := cache.NewRedisCache(ctx, cfg.Redis.URL)
		if err != nil {
			logger.Fatal("Failed to connect to redis: %v", err)
		}
		defer redisCache.Close()
		userCache = redisCache
	}

	// Real-time core: one registry per room kind, one notification fanout.
	groupRegistry := websocket.NewRegistry("group")
	dmRegistry := websocket.NewRegistry("dm")
	fanout := notify.NewFanout(cfg.SSE.QueueLimit)

	// Initialize services
	authService := auth.NewService(db, userCache, cfg.JWT.Secret, cfg.Redis.UserCacheTTL)
	chatService := services.NewChatService(db)
	notificationService := services.NewNotificationService(db, fanout)

	// Initialize handlers
	clientOpts := websocket.ClientOptions{
		SendBuffer:     cfg.WebSocket.SendBuffer,
		WriteWait:      cfg.WebSocket.WriteWait,
		PongWait:       cfg.WebSocket.PongWait,
		MaxMessageSize: cfg.WebSocket.MaxMessageSize,
		FrameRate:      cfg.WebSocket.FrameRate,
		FrameBurst:     cfg.WebSocket.FrameBurst,
	}
	groupHandlers := handlers.NewGroupChatHandlers(authService, chatService, groupRegistry, clientOpts, cfg.Server.CORSAllowedOrigins)
	dmHandlers := handlers.NewDMChatHandlers(authService, chatService, dmRegistry, clientOpts, cfg.Server.CORSAllowedOrigins)
	notificationHandlers := handlers.NewNotificationHandlers(authService, fanout, notificationService, cfg.SSE.Keepalive)

	router := setupRoutes(cfg, db, authService, groupHandlers, dmHandlers, notificationHandlers)

	// Create server
	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("Server started on %s", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server error: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("Server shutting down...")

	// Hijacked sockets are invisible to Shutdown, so close them here; open
	// notification streams return once their subscriptions close.
	closed := groupRegistry.CloseAll() + dmRegistry.CloseAll()
	fanout.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed: %v", err)
	}
	logger.Info("Server stopped (%d chat connections closed)", closed)
}

func setupRoutes(
	cfg *config.Config,
	db database.Database,
	authService *auth.Service,
	groupHandlers *handlers.GroupChatHandlers,
	dmHandlers *handlers.DMChatHandlers,
	notificationHandlers *handlers.NotificationHandlers,
) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.Server.CORSAllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := db.Ping(ctx); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	// WebSocket routes
	r.Get("/ws/group/{id}", groupHandlers.HandleWebSocket)
	r.Get("/ws/dm/{id}", dmHandlers.HandleWebSocket)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/feed/notifications/stream", notificationHandlers.Stream)

		r.Group(func(r chi.Router) {
			r.Use(handlers.RequireUser(authService))

			r.Get("/groups/{id}/online", groupHandlers.OnlineMembers)
			r.Get("/groups/{id}/members", groupHandlers.Members)

			r.Group(func(r chi.Router) {
				r.Use(httprate.LimitByIP(cfg.Server.APIRateLimit, time.Minute))

				r.Post("/groups/{id}/messages", groupHandlers.PostMessage)
				r.Post("/conversations/{id}/messages", dmHandlers.PostMessage)
				r.Post("/notifications", notificationHandlers.Create)
			})
		})
	})

	logger.Info("Routes: /ws/group/{id}, /ws/dm/{id}, /api/v1/feed/notifications/stream, /api/v1/groups/{id}/online, /api/v1/groups/{id}/members, /api/v1/groups/{id}/messages, /api/v1/conversations/{id}/messages, /api/v1/notifications")
	return r
}
