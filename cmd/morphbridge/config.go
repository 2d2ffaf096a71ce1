package main

import (
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/viper"

	"github.com/quailyquaily/morphbridge/internal/bridge"
	"github.com/quailyquaily/morphbridge/internal/statepaths"
)

// configFromViper materializes the bridge configuration once. A session ID
// from config/env stays stable across restarts; otherwise each process run
// gets a fresh random one.
func configFromViper() *bridge.Config {
	sessionID := strings.TrimSpace(viper.GetString("bridge.session_id"))
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	machine := strings.TrimSpace(viper.GetString("bridge.machine_label"))
	if machine == "" {
		if host, err := os.Hostname(); err == nil {
			machine = host
		}
	}
	agent := strings.TrimSpace(viper.GetString("bridge.agent_label"))
	if agent == "" {
		agent = "agent"
	}

	cfg := &bridge.Config{
		BotToken: strings.TrimSpace(viper.GetString("telegram.bot_token")),
		ChatID:   viper.GetInt64("telegram.chat_id"),
		TopicID:  viper.GetInt64("telegram.topic_id"),
		BaseURL:  strings.TrimSpace(viper.GetString("telegram.base_url")),

		SessionID:    sessionID,
		MachineLabel: machine,
		AgentLabel:   agent,

		PollInterval:   viper.GetDuration("bridge.poll_interval"),
		PollTimeout:    viper.GetDuration("bridge.poll_timeout"),
		HistoryCap:     viper.GetInt("bridge.history_cap"),
		LivenessWindow: viper.GetDuration("bridge.liveness_window"),

		StateDir: statepaths.StateDir(),
	}
	cfg.Normalize()
	return cfg
}
