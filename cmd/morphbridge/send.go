package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/quailyquaily/morphbridge/internal/logutil"
	"github.com/quailyquaily/morphbridge/internal/telegram"
)

func newSendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send <text>",
		Short: "Send a one-shot labeled message to the operator chat",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := logutil.LoggerFromViper()
			if err != nil {
				return err
			}
			slog.SetDefault(logger)

			cfg := configFromViper()
			if strings.TrimSpace(cfg.BotToken) == "" || cfg.ChatID == 0 {
				return fmt.Errorf("telegram.bot_token and telegram.chat_id are required")
			}

			text := strings.TrimSpace(strings.Join(args, " "))
			if text == "" {
				return fmt.Errorf("message text is required")
			}

			client := telegram.NewClient(telegram.Config{
				BaseURL: cfg.BaseURL,
				Token:   cfg.BotToken,
				ChatID:  cfg.ChatID,
				TopicID: cfg.TopicID,
			}, nil, logger)

			if ok := client.SendMessage(cmd.Context(), "["+cfg.Label()+"] "+text); !ok {
				return fmt.Errorf("send failed")
			}
			fmt.Println("sent")
			return nil
		},
	}
	return cmd
}
