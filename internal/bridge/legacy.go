package bridge

import (
	"context"
	"sort"
	"strings"
)

// Legacy split operations kept for older deployments. Each is a thin adapter
// over Interact (or, for status, over the non-draining primitives) so the
// queue-draining logic lives in exactly one place.

// SendMessage sends an outbound message without draining the queue's view of
// history for the caller. Empty text is a synchronous validation error.
func (f *Facade) SendMessage(ctx context.Context, text string) InteractResult {
	if strings.TrimSpace(text) == "" {
		return InteractResult{
			OK:       false,
			Messages: []InboundMessage{},
			Pending:  f.queue.PendingCount(),
			Now:      f.now().Unix(),
			Error:    "message text is required",
		}
	}
	return f.Interact(ctx, InteractRequest{Message: text})
}

// PollMessages drains and returns inbound messages, optionally filtered by a
// previously returned timestamp.
func (f *Facade) PollMessages(ctx context.Context, sinceTS int64) InteractResult {
	return f.Interact(ctx, InteractRequest{SinceTS: sinceTS})
}

// WaitForReply blocks up to timeoutSeconds for an inbound message, then
// drains. Zero means the legacy default of 60 seconds.
func (f *Facade) WaitForReply(ctx context.Context, timeoutSeconds int, sinceTS int64) InteractResult {
	if timeoutSeconds <= 0 {
		timeoutSeconds = 60
	}
	return f.Interact(ctx, InteractRequest{WaitSeconds: timeoutSeconds, SinceTS: sinceTS})
}

// SessionStatus is one row of the status listing.
type SessionStatus struct {
	SessionID string `json:"session_id"`
	Machine   string `json:"machine"`
	Agent     string `json:"agent"`
	LastSeen  int64  `json:"last_seen"`
	Live      bool   `json:"live"`
}

// StatusResult is the non-draining health view of this bridge session.
type StatusResult struct {
	OK        bool            `json:"ok"`
	SessionID string          `json:"session_id"`
	Machine   string          `json:"machine"`
	Agent     string          `json:"agent"`
	Pending   int             `json:"pending"`
	Now       int64           `json:"now"`
	Sessions  []SessionStatus `json:"sessions"`
}

// CheckStatus reports pending count and known sessions without touching the
// pending set.
func (f *Facade) CheckStatus(ctx context.Context) StatusResult {
	now := f.now()
	active := f.registry.GetActive()
	sessions := make([]SessionStatus, 0)
	for id, s := range f.registry.GetAll() {
		_, live := active[id]
		sessions = append(sessions, SessionStatus{
			SessionID: id,
			Machine:   s.Machine,
			Agent:     s.Agent,
			LastSeen:  s.LastSeen,
			Live:      live,
		})
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].SessionID < sessions[j].SessionID })

	return StatusResult{
		OK:        true,
		SessionID: f.sessionID,
		Machine:   f.machine,
		Agent:     f.agent,
		Pending:   f.queue.PendingCount(),
		Now:       now.Unix(),
		Sessions:  sessions,
	}
}
