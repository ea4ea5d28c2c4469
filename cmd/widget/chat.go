package main

import (
	"context"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/htetarkarhlaing/wecare-chat-widget/internal/api"
	"github.com/htetarkarhlaing/wecare-chat-widget/internal/config"
	"github.com/htetarkarhlaing/wecare-chat-widget/internal/conversation"
	"github.com/htetarkarhlaing/wecare-chat-widget/internal/jobs"
	"github.com/htetarkarhlaing/wecare-chat-widget/internal/persistence"
	"github.com/htetarkarhlaing/wecare-chat-widget/internal/realtime"
	"github.com/htetarkarhlaing/wecare-chat-widget/internal/session"
)

func newChatCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Open an interactive support conversation in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			root.setLogLevel(cfg.LogLevel)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runChat(ctx, cfg, os.Stdin, os.Stdout)
		},
	}
}

func runChat(ctx context.Context, cfg *config.Config, in io.Reader, out io.Writer) error {
	store, closer, err := persistence.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer closer.Close()

	if expirer, ok := store.(persistence.Expirer); ok && cfg.SessionTTL() > 0 {
		cleanupJob := jobs.NewCleanupJob(config.CleanupJobInterval, jobs.ExpiredSessions(expirer, cfg.SessionTTL()))
		cleanupJob.Start()
		defer cleanupJob.Stop()
	}

	client := api.NewClient(cfg.APIBaseURL, cfg.APIKey,
		api.WithLocale(string(cfg.ResolvedLocale())),
		api.WithTimeout(cfg.RequestTimeout()),
	)
	manager := session.NewManager(client, store)

	var dialer realtime.Dialer
	if cfg.SocketURL != "" {
		dialer = &realtime.WebsocketDialer{
			Header:            http.Header{api.HeaderAPIKey: []string{cfg.APIKey}},
			ReconnectDelay:    cfg.ReconnectDelay(),
			MaxReconnectDelay: cfg.ReconnectMaxDelay(),
		}
	}

	ctrl := conversation.NewController(conversation.Options{
		Sessions:  manager,
		Dialer:    dialer,
		SocketURL: cfg.SocketURL,
		Labels:    cfg.Labels,
	})
	defer ctrl.Close()

	log.Debug().
		Str("api", cfg.APIBaseURL).
		Str("socket", cfg.SocketURL).
		Str("locale", string(cfg.ResolvedLocale())).
		Str("storage", cfg.StorageBackend).
		Msg("widget configured")

	term := newTerminal(ctrl, in, out, cfg.Labels)
	return term.Run(ctx)
}
