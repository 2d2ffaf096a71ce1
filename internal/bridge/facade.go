package bridge

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/quailyquaily/morphbridge/internal/queue"
	"github.com/quailyquaily/morphbridge/internal/registry"
)

// waitPollStep is the busy-wait granularity for the facade's blocking mode.
const waitPollStep = 500 * time.Millisecond

// Transport is the outbound half of the messaging provider the facade needs.
type Transport interface {
	SendMessage(ctx context.Context, text string) bool
}

// InteractRequest is the facade's input. Message and SinceTS are optional
// (empty / zero means absent); WaitSeconds is clamped to [0, MaxWaitSeconds].
type InteractRequest struct {
	Message     string
	WaitSeconds int
	SinceTS     int64
}

// InboundMessage is the trimmed view of a queued message returned to agents.
// Internal id/sender fields stay internal to keep the payload minimal.
type InboundMessage struct {
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

// InteractResult is the facade's entire response contract. Now is a server
// timestamp the caller should pass back as the next call's SinceTS.
type InteractResult struct {
	OK       bool             `json:"ok"`
	Sent     bool             `json:"sent,omitempty"`
	Messages []InboundMessage `json:"messages"`
	Pending  int              `json:"pending"`
	Now      int64            `json:"now"`
	Error    string           `json:"error,omitempty"`
}

// Facade is the single operation surface an agent session uses to send and
// receive. It shares the session's queue file with the ingestion loop.
type Facade struct {
	transport Transport
	queue     *queue.Queue
	registry  *registry.Registry
	label     string
	sessionID string
	machine   string
	agent     string
	logger    *slog.Logger

	now      func() time.Time
	waitStep time.Duration
}

func NewFacade(transport Transport, q *queue.Queue, reg *registry.Registry, cfg *Config, logger *slog.Logger) *Facade {
	if logger == nil {
		logger = slog.Default()
	}
	return &Facade{
		transport: transport,
		queue:     q,
		registry:  reg,
		label:     cfg.Label(),
		sessionID: cfg.SessionID,
		machine:   cfg.MachineLabel,
		agent:     cfg.AgentLabel,
		logger:    logger,
		now:       time.Now,
		waitStep:  waitPollStep,
	}
}

// Interact optionally sends an outbound message, optionally blocks for new
// inbound messages, then drains and returns them. A failed send returns an
// error result immediately without waiting or draining.
func (f *Facade) Interact(ctx context.Context, req InteractRequest) InteractResult {
	sent := false
	if msg := strings.TrimSpace(req.Message); msg != "" {
		if !f.transport.SendMessage(ctx, "["+f.label+"] "+msg) {
			f.logger.Warn("interact_send_failed", "session_id", f.sessionID)
			return InteractResult{
				OK:       false,
				Messages: []InboundMessage{},
				Pending:  f.queue.PendingCount(),
				Now:      f.now().Unix(),
				Error:    "failed to deliver message to telegram",
			}
		}
		sent = true
	}

	if req.WaitSeconds > 0 {
		f.waitForPending(ctx, req)
	}

	var drained []queue.Message
	if req.SinceTS > 0 {
		drained = f.queue.PollSince(req.SinceTS)
	} else {
		drained = f.queue.Poll()
	}

	messages := make([]InboundMessage, 0, len(drained))
	for _, m := range drained {
		messages = append(messages, InboundMessage{Text: m.Text, Timestamp: m.Timestamp})
	}
	return InteractResult{
		OK:       true,
		Sent:     sent,
		Messages: messages,
		Pending:  f.queue.PendingCount(),
		Now:      f.now().Unix(),
	}
}

// waitForPending polls the queue in small steps until a qualifying message
// arrives, the wait budget runs out, or ctx is cancelled. Expiry is not an
// error; the caller just drains whatever is there.
func (f *Facade) waitForPending(ctx context.Context, req InteractRequest) {
	waitSeconds := req.WaitSeconds
	if waitSeconds > MaxWaitSeconds {
		waitSeconds = MaxWaitSeconds
	}
	deadline := f.now().Add(time.Duration(waitSeconds) * time.Second)
	for {
		if f.pendingCount(req.SinceTS) > 0 {
			return
		}
		// The last step is truncated so the full wait budget is honored
		// without overshooting it.
		step := f.waitStep
		if remaining := deadline.Sub(f.now()); remaining <= 0 {
			return
		} else if remaining < step {
			step = remaining
		}
		timer := time.NewTimer(step)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (f *Facade) pendingCount(sinceTS int64) int {
	if sinceTS > 0 {
		return f.queue.PendingCountSince(sinceTS)
	}
	return f.queue.PendingCount()
}
