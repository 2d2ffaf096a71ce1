// Package ingest runs the background long-poll loop: it pulls updates from
// Telegram, filters and deduplicates them, answers control commands, and
// broadcasts human replies into every live session's queue.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/quailyquaily/morphbridge/internal/outputfmt"
	"github.com/quailyquaily/morphbridge/internal/queue"
	"github.com/quailyquaily/morphbridge/internal/registry"
	"github.com/quailyquaily/morphbridge/internal/telegram"
)

// Transport is the inbound+outbound provider surface the loop drives.
type Transport interface {
	GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]telegram.Update, int64, error)
	SendMessage(ctx context.Context, text string) bool
}

// QueueOpener resolves another session's queue by ID so inbound messages can
// be fanned out across processes through their mailbox files.
type QueueOpener func(sessionID string) *queue.Queue

type Options struct {
	SessionID        string
	MachineLabel     string
	AgentLabel       string
	AuthorizedChatID int64
	TopicID          int64
	PollInterval     time.Duration
	PollTimeout      time.Duration
	DedupCap         int
}

type Loop struct {
	transport Transport
	ownQueue  *queue.Queue
	registry  *registry.Registry
	openQueue QueueOpener
	opts      Options
	logger    *slog.Logger

	offset int64
	seen   *dedupSet
}

func New(transport Transport, ownQueue *queue.Queue, reg *registry.Registry, openQueue QueueOpener, opts Options, logger *slog.Logger) *Loop {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = 25 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		transport: transport,
		ownQueue:  ownQueue,
		registry:  reg,
		openQueue: openQueue,
		opts:      opts,
		logger:    logger,
		seen:      newDedupSet(opts.DedupCap),
	}
}

// Run drives the loop until ctx is cancelled. On the way out the session is
// deactivated in the registry; shutdown latency is bounded by at most one
// outstanding long poll.
func (l *Loop) Run(ctx context.Context) error {
	l.flushBacklog(ctx)
	l.registry.Register(l.opts.SessionID, l.opts.MachineLabel, l.opts.AgentLabel, l.opts.TopicID)
	l.logger.Info("bridge_session_registered",
		"session_id", l.opts.SessionID,
		"machine", l.opts.MachineLabel,
		"agent", l.opts.AgentLabel,
	)
	defer func() {
		l.registry.Deactivate(l.opts.SessionID)
		l.logger.Info("bridge_session_deactivated", "session_id", l.opts.SessionID)
	}()

	for {
		if ctx.Err() != nil {
			return nil
		}
		// Heartbeat first so a Telegram outage longer than the liveness
		// window does not make a still-running session look dead.
		l.registry.Heartbeat(l.opts.SessionID)
		updates, next, err := l.transport.GetUpdates(ctx, l.offset, l.opts.PollTimeout)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return nil
			}
			if telegram.IsPollTimeout(err) {
				l.logger.Debug("bridge_get_updates_timeout", "error", err.Error())
			} else {
				l.logger.Warn("bridge_get_updates_error", "error", outputfmt.FormatErrorForDisplay(err))
			}
			if !sleepCtx(ctx, time.Second) {
				return nil
			}
			continue
		}
		l.offset = next

		for _, u := range updates {
			l.handleUpdate(ctx, u)
		}

		if !sleepCtx(ctx, l.opts.PollInterval) {
			return nil
		}
	}
}

// flushBacklog discards updates queued before this process existed so a
// freshly started session never replays ancient history.
func (l *Loop) flushBacklog(ctx context.Context) {
	updates, next, err := l.transport.GetUpdates(ctx, l.offset, 0)
	if err != nil {
		l.logger.Warn("bridge_flush_error", "error", outputfmt.FormatErrorForDisplay(err))
		return
	}
	l.offset = next
	if len(updates) > 0 {
		l.logger.Info("bridge_flushed_stale_updates", "count", len(updates))
	}
	for _, u := range updates {
		l.seen.add(u.UpdateID)
	}
}

func (l *Loop) handleUpdate(ctx context.Context, u telegram.Update) {
	// The offset cursor already moved past this update in Run; everything
	// below only decides whether its payload is acted on.
	if !l.seen.add(u.UpdateID) {
		l.logger.Debug("bridge_update_deduped", "update_id", u.UpdateID)
		return
	}
	msg := u.Message
	if msg == nil || msg.Chat == nil {
		return
	}
	if msg.Chat.ID != l.opts.AuthorizedChatID {
		l.logger.Warn("bridge_unauthorized_chat", "chat_id", msg.Chat.ID, "update_id", u.UpdateID)
		return
	}
	if msg.From != nil && msg.From.IsBot {
		return
	}
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}

	if l.handleControlCommand(ctx, text) {
		return
	}
	l.broadcast(text)
}

// handleControlCommand answers status/sessions queries directly through the
// transport. Control traffic never reaches any agent queue.
func (l *Loop) handleControlCommand(ctx context.Context, text string) bool {
	switch strings.ToLower(text) {
	case "/status", "status":
		l.transport.SendMessage(ctx, l.statusReply())
		return true
	case "/sessions", "sessions", "list sessions":
		l.transport.SendMessage(ctx, l.sessionsReply())
		return true
	}
	return false
}

func (l *Loop) statusReply() string {
	live := l.registry.GetActive()
	var b strings.Builder
	fmt.Fprintf(&b, "bridge %s (%s/%s) is up\n", l.opts.SessionID, l.opts.MachineLabel, l.opts.AgentLabel)
	fmt.Fprintf(&b, "live sessions: %d\n", len(live))
	for _, line := range SessionLines(live, nil) {
		b.WriteString(line)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (l *Loop) sessionsReply() string {
	all := l.registry.GetAll()
	live := l.registry.GetActive()
	var b strings.Builder
	fmt.Fprintf(&b, "known sessions: %d\n", len(all))
	for _, line := range SessionLines(all, live) {
		b.WriteString(line)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// SessionLines renders one line per session, sorted by ID. When live is nil
// every listed session is assumed live.
func SessionLines(sessions map[string]registry.Session, live map[string]registry.Session) []string {
	ids := make([]string, 0, len(sessions))
	for id := range sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	lines := make([]string, 0, len(ids))
	for _, id := range ids {
		s := sessions[id]
		state := "live"
		if live != nil {
			if _, ok := live[id]; !ok {
				state = "down"
			}
		}
		lines = append(lines, fmt.Sprintf("- %s (%s/%s) %s, last seen %s",
			id, s.Machine, s.Agent, state,
			time.Unix(s.LastSeen, 0).UTC().Format(time.RFC3339)))
	}
	return lines
}

// broadcast fans a human reply out to every live session's queue, always
// including this process's own queue so the message is never dropped. When
// the only live-looking entry is a stale registration about to heartbeat,
// that session can still miss the message; known limitation.
func (l *Loop) broadcast(text string) {
	delivered := 0
	for id := range l.registry.GetActive() {
		if id == l.opts.SessionID {
			continue
		}
		q := l.openQueue(id)
		if q == nil {
			continue
		}
		q.Enqueue(text, queue.SenderHuman)
		delivered++
	}
	l.ownQueue.Enqueue(text, queue.SenderHuman)
	delivered++
	l.logger.Info("bridge_message_broadcast", "sessions", delivered, "text_len", len(text))
}

// sleepCtx sleeps for d or until ctx is done; it reports false on cancel.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
