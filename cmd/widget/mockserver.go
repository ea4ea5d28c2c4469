package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/htetarkarhlaing/wecare-chat-widget/internal/config"
	"github.com/htetarkarhlaing/wecare-chat-widget/internal/handler"
	"github.com/htetarkarhlaing/wecare-chat-widget/internal/hub"
	"github.com/htetarkarhlaing/wecare-chat-widget/internal/jobs"
	"github.com/htetarkarhlaing/wecare-chat-widget/internal/middleware"
	"github.com/htetarkarhlaing/wecare-chat-widget/internal/redis"
	"github.com/htetarkarhlaing/wecare-chat-widget/internal/service"
)

func newMockServerCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mock-server",
		Short: "Run an in-memory chat backend for local widget development",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadServer()
			if err != nil {
				return err
			}
			root.setLogLevel(cfg.LogLevel)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runMockServer(ctx, cfg)
		},
	}
}

func runMockServer(ctx context.Context, cfg *config.ServerConfig) error {
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		pingCtx, cancel := context.WithTimeout(ctx, config.StoragePingTimeout)
		client, err := redis.NewClient(pingCtx, cfg.RedisURL)
		cancel()
		if err != nil {
			return err
		}
		defer client.Close()
		redisClient = client
		log.Info().Msg("redis connected")
	}

	h := hub.New(redisClient)
	defer h.Close()

	chat := service.NewChatService(h, nil)

	cleanupJob := jobs.NewCleanupJob(config.CleanupJobInterval, jobs.ExpiredConversations(chat, cfg.ConversationTTL()))
	cleanupJob.Start()
	defer cleanupJob.Stop()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      newMockRouter(cfg, chat, h, redisClient),
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: 0,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		log.Info().Str("addr", cfg.Addr()).Int("api_keys", len(cfg.APIKeys)).Msg("starting mock chat backend")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	eg.Go(func() error {
		<-ctx.Done()
		log.Info().Msg("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("server forced to shutdown")
			return err
		}
		return nil
	})

	err := eg.Wait()
	log.Info().Msg("server stopped")
	return err
}

func newMockRouter(cfg *config.ServerConfig, chat *service.ChatService, h *hub.Hub, redisClient *redis.Client) http.Handler {
	apiKeyMiddleware := middleware.NewAPIKeyMiddleware(cfg.APIKeys)
	bodyLimit := middleware.BodyLimit(cfg.MaxBodyBytes)

	var limiter middleware.Limiter = middleware.NewMemoryLimiter(cfg.RateLimitPerMin)
	if redisClient != nil {
		limiter = middleware.NewRedisLimiter(redisClient, cfg.RateLimitPerMin)
	}

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.SecurityHeaders)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"status":    "ok",
			"timestamp": time.Now().UnixMilli(),
		})
	})

	r.Route("/widget", func(r chi.Router) {
		r.Use(apiKeyMiddleware.Handler)
		r.Use(middleware.RateLimit(limiter))

		// The socket is long lived; request timeouts apply to REST only.
		r.Handle("/socket", handler.NewSocketHandler(chat, h, cfg.AllowedOrigins))

		r.Route("/chat", func(r chi.Router) {
			r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
			r.Use(bodyLimit)
			r.Mount("/", handler.NewChatHandler(chat).Routes())
		})
	})

	r.Route("/dev", func(r chi.Router) {
		r.Use(apiKeyMiddleware.Handler)
		r.Get("/conversations/{sessionId}/events", handler.NewEventsHandler(chat, h).ServeHTTP)
		r.With(chimiddleware.Timeout(config.ServerRequestTimeout), bodyLimit).
			Mount("/", handler.NewDevHandler(chat).Routes())
	})

	return r
}
