package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/quailyquaily/morphbridge/internal/bridge"
	"github.com/quailyquaily/morphbridge/internal/ingest"
	"github.com/quailyquaily/morphbridge/internal/logutil"
	"github.com/quailyquaily/morphbridge/internal/mcpserver"
	"github.com/quailyquaily/morphbridge/internal/queue"
	"github.com/quailyquaily/morphbridge/internal/registry"
	"github.com/quailyquaily/morphbridge/internal/statepaths"
	"github.com/quailyquaily/morphbridge/internal/telegram"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the bridge: Telegram ingestion loop plus the agent tool server on stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := logutil.LoggerFromViper()
			if err != nil {
				return err
			}
			slog.SetDefault(logger)

			cfg := configFromViper()
			if err := cfg.Validate(); err != nil {
				return err
			}

			client := telegram.NewClient(telegram.Config{
				BaseURL: cfg.BaseURL,
				Token:   cfg.BotToken,
				ChatID:  cfg.ChatID,
				TopicID: cfg.TopicID,
			}, nil, logger)

			ownQueue := queue.Open(statepaths.QueuePath(cfg.SessionID), cfg.HistoryCap, logger)
			reg := registry.Open(statepaths.RegistryPath(), statepaths.RegistryLockPath(), cfg.LivenessWindow, logger)

			openQueue := func(sessionID string) *queue.Queue {
				return queue.Open(statepaths.QueuePath(sessionID), cfg.HistoryCap, logger)
			}
			loop := ingest.New(client, ownQueue, reg, openQueue, ingest.Options{
				SessionID:        cfg.SessionID,
				MachineLabel:     cfg.MachineLabel,
				AgentLabel:       cfg.AgentLabel,
				AuthorizedChatID: cfg.ChatID,
				TopicID:          cfg.TopicID,
				PollInterval:     cfg.PollInterval,
				PollTimeout:      cfg.PollTimeout,
			}, logger)

			facade := bridge.NewFacade(client, ownQueue, reg, cfg, logger)
			server := mcpserver.New(facade, "morphbridge", version, logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			loopDone := make(chan error, 1)
			go func() { loopDone <- loop.Run(ctx) }()

			logger.Info("bridge_serving",
				"session_id", cfg.SessionID,
				"machine", cfg.MachineLabel,
				"agent", cfg.AgentLabel,
				"state_dir", cfg.StateDir,
			)
			serveErr := server.Serve(ctx, os.Stdin, os.Stdout)

			// Unwind the ingestion loop so the session is deactivated in the
			// registry before we exit.
			stop()
			<-loopDone
			return serveErr
		},
	}

	cmd.Flags().String("session-id", "", "Stable session identifier (random per run when empty).")
	cmd.Flags().String("machine-label", "", "Machine label shown to the operator (defaults to hostname).")
	cmd.Flags().String("agent-label", "", "Agent label shown to the operator.")
	_ = viper.BindPFlag("bridge.session_id", cmd.Flags().Lookup("session-id"))
	_ = viper.BindPFlag("bridge.machine_label", cmd.Flags().Lookup("machine-label"))
	_ = viper.BindPFlag("bridge.agent_label", cmd.Flags().Lookup("agent-label"))

	return cmd
}
