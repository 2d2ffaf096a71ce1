// Package bridge exposes the request-response facade an agent session calls,
// plus the bridge-wide configuration struct. Config is materialized once at
// process entry and injected everywhere; the core packages never read viper
// or the environment themselves.
package bridge

import (
	"fmt"
	"strings"
	"time"
)

const (
	DefaultPollInterval   = 2 * time.Second
	DefaultPollTimeout    = 25 * time.Second
	DefaultLivenessWindow = 600 * time.Second
	DefaultHistoryCap     = 200

	// MaxWaitSeconds bounds the facade's blocking wait.
	MaxWaitSeconds = 300
)

type Config struct {
	BotToken string
	ChatID   int64
	TopicID  int64
	BaseURL  string

	SessionID    string
	MachineLabel string
	AgentLabel   string

	PollInterval   time.Duration
	PollTimeout    time.Duration
	HistoryCap     int
	LivenessWindow time.Duration

	StateDir string
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.BotToken) == "" {
		return fmt.Errorf("telegram.bot_token is required")
	}
	if c.ChatID == 0 {
		return fmt.Errorf("telegram.chat_id is required")
	}
	if strings.TrimSpace(c.SessionID) == "" {
		return fmt.Errorf("bridge.session_id is required")
	}
	return nil
}

// Normalize fills zero-valued tunables with defaults.
func (c *Config) Normalize() {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = DefaultPollTimeout
	}
	if c.HistoryCap <= 0 {
		c.HistoryCap = DefaultHistoryCap
	}
	if c.LivenessWindow <= 0 {
		c.LivenessWindow = DefaultLivenessWindow
	}
}

// Label renders the session tag prepended to outbound messages so a human
// sharing one chat with several sessions can tell them apart.
func (c *Config) Label() string {
	machine := strings.TrimSpace(c.MachineLabel)
	agent := strings.TrimSpace(c.AgentLabel)
	switch {
	case machine != "" && agent != "":
		return machine + "/" + agent
	case machine != "":
		return machine
	case agent != "":
		return agent
	default:
		return strings.TrimSpace(c.SessionID)
	}
}
