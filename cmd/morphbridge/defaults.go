package main

import (
	"time"

	"github.com/spf13/viper"
)

func initViperDefaults() {
	// Global
	viper.SetDefault("file_state_dir", "~/.morphbridge")

	// Telegram transport
	viper.SetDefault("telegram.base_url", "https://api.telegram.org")
	viper.SetDefault("telegram.bot_token", "")
	viper.SetDefault("telegram.chat_id", int64(0))
	viper.SetDefault("telegram.topic_id", int64(0))

	// Bridge core
	viper.SetDefault("bridge.session_id", "")
	viper.SetDefault("bridge.machine_label", "")
	viper.SetDefault("bridge.agent_label", "")
	viper.SetDefault("bridge.poll_interval", 2*time.Second)
	viper.SetDefault("bridge.poll_timeout", 25*time.Second)
	viper.SetDefault("bridge.history_cap", 200)
	viper.SetDefault("bridge.liveness_window", 600*time.Second)

	// Logging
	viper.SetDefault("logging.format", "text")
	viper.SetDefault("logging.add_source", false)
	viper.SetDefault("trace", false)
}
