package bridge

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/quailyquaily/morphbridge/internal/queue"
	"github.com/quailyquaily/morphbridge/internal/registry"
)

type fakeTransport struct {
	mu   sync.Mutex
	sent []string
	fail bool
}

func (t *fakeTransport) SendMessage(ctx context.Context, text string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.fail {
		return false
	}
	t.sent = append(t.sent, text)
	return true
}

func (t *fakeTransport) sentMessages() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.sent...)
}

func newTestFacade(t *testing.T, transport *fakeTransport) (*Facade, *queue.Queue, *registry.Registry) {
	t.Helper()
	dir := t.TempDir()
	q := queue.Open(filepath.Join(dir, "queue.json"), 0, nil)
	reg := registry.Open(filepath.Join(dir, "registry.json"), filepath.Join(dir, "registry.lck"), 0, nil)
	cfg := &Config{
		SessionID:    "sess-1",
		MachineLabel: "laptop",
		AgentLabel:   "coder",
	}
	f := NewFacade(transport, q, reg, cfg, nil)
	f.waitStep = 5 * time.Millisecond
	return f, q, reg
}

func TestInteractSendOnly(t *testing.T) {
	t.Parallel()

	transport := &fakeTransport{}
	f, _, _ := newTestFacade(t, transport)

	res := f.Interact(context.Background(), InteractRequest{Message: "start"})
	if !res.OK || !res.Sent {
		t.Fatalf("Interact() = %+v, want ok=true sent=true", res)
	}
	if len(res.Messages) != 0 || res.Pending != 0 {
		t.Fatalf("Interact() = %+v, want no messages and pending=0", res)
	}
	if res.Now == 0 {
		t.Fatalf("Interact() Now = 0, want a server timestamp")
	}
	sent := transport.sentMessages()
	if len(sent) != 1 || sent[0] != "[laptop/coder] start" {
		t.Fatalf("sent = %v, want one message tagged with the session label", sent)
	}
}

func TestInteractSendFailureShortCircuits(t *testing.T) {
	t.Parallel()

	transport := &fakeTransport{fail: true}
	f, q, _ := newTestFacade(t, transport)
	q.Enqueue("queued before failure", queue.SenderHuman)

	res := f.Interact(context.Background(), InteractRequest{Message: "doomed"})
	if res.OK {
		t.Fatalf("Interact() ok = true, want false on failed send")
	}
	if res.Error == "" {
		t.Fatalf("Interact() Error empty, want failure description")
	}
	// The failed send must not drain: the pending message stays pending.
	if n := q.PendingCount(); n != 1 {
		t.Fatalf("PendingCount() = %d, want 1 (no drain on failed send)", n)
	}
}

func TestInteractEndToEndSinceFlow(t *testing.T) {
	t.Parallel()

	transport := &fakeTransport{}
	f, q, _ := newTestFacade(t, transport)

	// Step 1: agent announces itself; Now is in the past relative to the
	// reply that arrives next, mirroring real call spacing.
	f.now = func() time.Time { return time.Now().Add(-2 * time.Second) }
	first := f.Interact(context.Background(), InteractRequest{Message: "start"})
	if !first.OK || !first.Sent || len(first.Messages) != 0 {
		t.Fatalf("first Interact() = %+v, want sent with no messages", first)
	}
	f.now = time.Now

	// Step 2: a human reply is broadcast into the session queue.
	q.Enqueue("go ahead", queue.SenderHuman)

	// Step 3: polling with the previous Now returns the reply.
	second := f.Interact(context.Background(), InteractRequest{SinceTS: first.Now})
	if len(second.Messages) != 1 || second.Messages[0].Text != "go ahead" {
		t.Fatalf("second Interact() = %+v, want the human reply", second)
	}
	if second.Now <= first.Now {
		t.Fatalf("Now did not advance: first=%d second=%d", first.Now, second.Now)
	}

	// Step 4: the same SinceTS immediately again returns nothing.
	third := f.Interact(context.Background(), InteractRequest{SinceTS: first.Now})
	if len(third.Messages) != 0 {
		t.Fatalf("third Interact() = %+v, want already-drained queue", third)
	}
}

func TestInteractWaitReturnsOnArrival(t *testing.T) {
	t.Parallel()

	transport := &fakeTransport{}
	f, q, _ := newTestFacade(t, transport)

	go func() {
		time.Sleep(30 * time.Millisecond)
		q.Enqueue("late reply", queue.SenderHuman)
	}()

	start := time.Now()
	res := f.Interact(context.Background(), InteractRequest{WaitSeconds: 5})
	if len(res.Messages) != 1 || res.Messages[0].Text != "late reply" {
		t.Fatalf("Interact() = %+v, want the late reply", res)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("Interact() blocked %v, want early return on arrival", elapsed)
	}
}

func TestInteractWaitHonorsFullBudget(t *testing.T) {
	t.Parallel()

	transport := &fakeTransport{}
	f, _, _ := newTestFacade(t, transport)
	// A step that does not divide the budget: the final sleep must be
	// truncated so the wait ends at the deadline, not one full step past it.
	f.waitStep = 700 * time.Millisecond

	start := time.Now()
	res := f.Interact(context.Background(), InteractRequest{WaitSeconds: 1})
	elapsed := time.Since(start)

	if !res.OK || len(res.Messages) != 0 {
		t.Fatalf("Interact() = %+v, want ok with no messages on expiry", res)
	}
	if elapsed < time.Second {
		t.Fatalf("Interact() returned after %v, want the full 1s budget", elapsed)
	}
	if elapsed >= 1350*time.Millisecond {
		t.Fatalf("Interact() blocked %v, want expiry at the deadline, not a step past it", elapsed)
	}
}

func TestInteractWaitCancelledReturnsEmpty(t *testing.T) {
	t.Parallel()

	transport := &fakeTransport{}
	f, _, _ := newTestFacade(t, transport)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	res := f.Interact(ctx, InteractRequest{WaitSeconds: 300})
	if !res.OK {
		t.Fatalf("Interact() ok = false, want true (wait expiry is soft)")
	}
	if len(res.Messages) != 0 {
		t.Fatalf("Interact() = %+v, want no messages", res)
	}
}

func TestLegacySendMessageRejectsEmptyText(t *testing.T) {
	t.Parallel()

	transport := &fakeTransport{}
	f, _, _ := newTestFacade(t, transport)

	res := f.SendMessage(context.Background(), "   ")
	if res.OK {
		t.Fatalf("SendMessage() ok = true, want validation failure")
	}
	if !strings.Contains(res.Error, "required") {
		t.Fatalf("SendMessage() Error = %q, want validation message", res.Error)
	}
	if len(transport.sentMessages()) != 0 {
		t.Fatalf("empty message must not reach the transport")
	}
}

func TestCheckStatusDoesNotDrain(t *testing.T) {
	t.Parallel()

	transport := &fakeTransport{}
	f, q, reg := newTestFacade(t, transport)
	reg.Register("sess-1", "laptop", "coder", 0)
	reg.Register("sess-2", "server", "ops", 0)
	reg.Deactivate("sess-2")
	q.Enqueue("still pending", queue.SenderHuman)

	status := f.CheckStatus(context.Background())
	if !status.OK || status.Pending != 1 {
		t.Fatalf("CheckStatus() = %+v, want ok with pending=1", status)
	}
	if len(status.Sessions) != 2 {
		t.Fatalf("CheckStatus() sessions = %d, want 2", len(status.Sessions))
	}
	if !status.Sessions[0].Live || status.Sessions[1].Live {
		t.Fatalf("CheckStatus() liveness = %+v, want sess-1 live and sess-2 not", status.Sessions)
	}
	if n := q.PendingCount(); n != 1 {
		t.Fatalf("PendingCount() = %d, want 1 (status must not drain)", n)
	}
}
