package ingest

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/quailyquaily/morphbridge/internal/queue"
	"github.com/quailyquaily/morphbridge/internal/registry"
	"github.com/quailyquaily/morphbridge/internal/telegram"
)

type fakeTransport struct {
	mu      sync.Mutex
	batches [][]telegram.Update
	sent    []string
}

func (t *fakeTransport) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]telegram.Update, int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.batches) == 0 {
		return nil, offset, nil
	}
	batch := t.batches[0]
	t.batches = t.batches[1:]
	next := offset
	for _, u := range batch {
		if u.UpdateID >= next {
			next = u.UpdateID + 1
		}
	}
	return batch, next, nil
}

func (t *fakeTransport) SendMessage(ctx context.Context, text string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent = append(t.sent, text)
	return true
}

func (t *fakeTransport) sentMessages() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.sent...)
}

const authorizedChat = int64(42)

func humanUpdate(updateID int64, chatID int64, text string) telegram.Update {
	return telegram.Update{
		UpdateID: updateID,
		Message: &telegram.Message{
			MessageID: updateID,
			Chat:      &telegram.Chat{ID: chatID, Type: "private"},
			From:      &telegram.User{ID: 7, IsBot: false},
			Text:      text,
		},
	}
}

type testHarness struct {
	loop      *Loop
	transport *fakeTransport
	ownQueue  *queue.Queue
	registry  *registry.Registry
	queues    map[string]*queue.Queue
	dir       string
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()
	dir := t.TempDir()
	reg := registry.Open(filepath.Join(dir, "registry.json"), filepath.Join(dir, "registry.lck"), 0, nil)
	own := queue.Open(filepath.Join(dir, "self.json"), 0, nil)
	transport := &fakeTransport{}

	h := &testHarness{
		transport: transport,
		ownQueue:  own,
		registry:  reg,
		queues:    map[string]*queue.Queue{"self": own},
		dir:       dir,
	}
	opener := func(sessionID string) *queue.Queue {
		q, ok := h.queues[sessionID]
		if !ok {
			q = queue.Open(filepath.Join(dir, sessionID+".json"), 0, nil)
			h.queues[sessionID] = q
		}
		return q
	}
	h.loop = New(transport, own, reg, opener, Options{
		SessionID:        "self",
		MachineLabel:     "laptop",
		AgentLabel:       "coder",
		AuthorizedChatID: authorizedChat,
		PollInterval:     time.Millisecond,
		PollTimeout:      time.Millisecond,
	}, nil)
	return h
}

func TestHandleUpdateDeduplicates(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t)
	u := humanUpdate(100, authorizedChat, "hello")
	h.loop.handleUpdate(context.Background(), u)
	h.loop.handleUpdate(context.Background(), u)

	if n := h.ownQueue.PendingCount(); n != 1 {
		t.Fatalf("PendingCount() = %d, want 1 (duplicate update enqueued)", n)
	}
}

func TestHandleUpdateRejectsUnauthorizedChat(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t)
	h.loop.handleUpdate(context.Background(), humanUpdate(1, 999, "intruder"))

	if n := h.ownQueue.PendingCount(); n != 0 {
		t.Fatalf("PendingCount() = %d, want 0 for unauthorized chat", n)
	}
}

func TestHandleUpdateSkipsBotMessages(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t)
	u := humanUpdate(1, authorizedChat, "echo")
	u.Message.From.IsBot = true
	h.loop.handleUpdate(context.Background(), u)

	if n := h.ownQueue.PendingCount(); n != 0 {
		t.Fatalf("PendingCount() = %d, want 0 for bot-authored message", n)
	}
}

func TestBroadcastReachesAllLiveSessions(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t)
	h.registry.Register("self", "laptop", "coder", 0)
	h.registry.Register("other", "server", "ops", 0)

	h.loop.handleUpdate(context.Background(), humanUpdate(1, authorizedChat, "to everyone"))

	own := h.ownQueue.Poll()
	other := h.queues["other"].Poll()
	if len(own) != 1 || len(other) != 1 {
		t.Fatalf("broadcast delivered own=%d other=%d, want 1 and 1", len(own), len(other))
	}
	if own[0].Text != "to everyone" || other[0].Text != "to everyone" {
		t.Fatalf("broadcast texts = %q / %q, want identical", own[0].Text, other[0].Text)
	}
	if own[0].ID == other[0].ID {
		t.Fatalf("broadcast copies share message id %q, want independent ids", own[0].ID)
	}
}

func TestBroadcastFallsBackToOwnQueue(t *testing.T) {
	t.Parallel()

	// Degenerate bootstrap race: nothing registered yet. The message must
	// still land in this process's own queue.
	h := newTestHarness(t)
	h.loop.handleUpdate(context.Background(), humanUpdate(1, authorizedChat, "early bird"))

	if n := h.ownQueue.PendingCount(); n != 1 {
		t.Fatalf("PendingCount() = %d, want 1 (own-queue fallback)", n)
	}
}

func TestControlCommandsBypassQueues(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t)
	h.registry.Register("self", "laptop", "coder", 0)

	h.loop.handleUpdate(context.Background(), humanUpdate(1, authorizedChat, "/status"))
	h.loop.handleUpdate(context.Background(), humanUpdate(2, authorizedChat, "list sessions"))

	if n := h.ownQueue.PendingCount(); n != 0 {
		t.Fatalf("PendingCount() = %d, want 0 (control commands never enqueue)", n)
	}
	sent := h.transport.sentMessages()
	if len(sent) != 2 {
		t.Fatalf("transport sent %d replies, want 2", len(sent))
	}
	if !strings.Contains(sent[0], "bridge self") || !strings.Contains(sent[0], "live sessions: 1") {
		t.Fatalf("status reply = %q, want bridge identity and live count", sent[0])
	}
	if !strings.Contains(sent[1], "known sessions: 1") || !strings.Contains(sent[1], "self") {
		t.Fatalf("sessions reply = %q, want session listing", sent[1])
	}
}

func TestRunFlushesBacklogAndRegisters(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t)
	// Backlog from before this process existed; must be discarded.
	h.transport.batches = [][]telegram.Update{
		{humanUpdate(10, authorizedChat, "ancient history")},
		{humanUpdate(11, authorizedChat, "fresh message")},
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.loop.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for h.ownQueue.PendingCount() == 0 {
		select {
		case <-deadline:
			t.Fatalf("fresh message never enqueued")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	msgs := h.ownQueue.Poll()
	if len(msgs) != 1 || msgs[0].Text != "fresh message" {
		t.Fatalf("queued = %+v, want only the post-flush message", msgs)
	}
	s, ok := h.registry.GetAll()["self"]
	if !ok {
		t.Fatalf("session never registered")
	}
	if s.Active {
		t.Fatalf("session still active after Run returned, want deactivated")
	}
}

// outageTransport succeeds on the initial backlog flush, then fails every
// long poll, simulating a Telegram outage.
type outageTransport struct {
	mu    sync.Mutex
	calls int
}

func (t *outageTransport) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]telegram.Update, int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls++
	if t.calls == 1 {
		return nil, offset, nil
	}
	return nil, offset, errors.New("telegram unreachable")
}

func (t *outageTransport) SendMessage(ctx context.Context, text string) bool { return true }

func TestRunHeartbeatsThroughTransportOutage(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	reg := registry.Open(filepath.Join(dir, "registry.json"), filepath.Join(dir, "registry.lck"), 0, nil)
	own := queue.Open(filepath.Join(dir, "self.json"), 0, nil)
	loop := New(&outageTransport{}, own, reg, func(string) *queue.Queue { return nil }, Options{
		SessionID:        "self",
		AuthorizedChatID: authorizedChat,
		PollInterval:     time.Millisecond,
		PollTimeout:      time.Millisecond,
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	// LastSeen must keep advancing while every poll fails, so the session
	// never ages out of the liveness window during an outage.
	deadline := time.After(5 * time.Second)
	for {
		s, ok := reg.GetAll()["self"]
		if ok && s.LastSeen > s.StartedAt {
			break
		}
		select {
		case <-deadline:
			cancel()
			t.Fatalf("LastSeen never advanced past StartedAt during outage")
		case <-time.After(20 * time.Millisecond):
		}
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run() error = %v", err)
	}
}

func TestDedupSetEvictsOldest(t *testing.T) {
	t.Parallel()

	d := newDedupSet(3)
	for id := int64(1); id <= 4; id++ {
		if !d.add(id) {
			t.Fatalf("add(%d) = false, want true for first sight", id)
		}
	}
	// 1 was evicted by 4, so it reads as new again; 4 is still remembered.
	if !d.add(1) {
		t.Fatalf("add(1) = false after eviction, want true")
	}
	if d.add(4) {
		t.Fatalf("add(4) = true, want false while retained")
	}
}
