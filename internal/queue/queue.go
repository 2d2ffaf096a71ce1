// Package queue implements the durable per-session message queue. Each queue
// is one JSON file holding pending and delivered messages; every operation
// re-reads the file and every mutation rewrites it whole, so the ingestion
// loop of another process can append into this session's mailbox between
// calls without its messages being lost.
package queue

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quailyquaily/morphbridge/internal/fsstore"
)

const DefaultHistoryCap = 200

type Sender string

const (
	SenderHuman Sender = "human"
	SenderAgent Sender = "agent"
)

// Message is one unit of conversation. Timestamp is assigned at enqueue time
// by this process, not by the original sender's clock.
type Message struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Sender    Sender `json:"sender"`
	Timestamp int64  `json:"timestamp"`
}

type queueState struct {
	Pending   []Message `json:"pending"`
	Delivered []Message `json:"delivered"`
}

// Queue is the durable mailbox for one session. The mutex serializes the
// read-modify-write cycles within one process; cross-process writers landing
// inside the same cycle race last-write-wins, which the append-like usage
// pattern tolerates.
type Queue struct {
	path       string
	historyCap int
	logger     *slog.Logger

	mu  sync.Mutex
	now func() time.Time
}

// Open binds a queue to its backing file at path. A missing or corrupt file
// reads as an empty queue.
func Open(path string, historyCap int, logger *slog.Logger) *Queue {
	if historyCap <= 0 {
		historyCap = DefaultHistoryCap
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		path:       path,
		historyCap: historyCap,
		logger:     logger,
		now:        time.Now,
	}
}

// Path returns the backing file path.
func (q *Queue) Path() string {
	return q.path
}

func (q *Queue) load() queueState {
	var st queueState
	if _, err := fsstore.ReadJSON(q.path, &st); err != nil {
		q.logger.Warn("queue_load_failed", "path", q.path, "error", err.Error())
		return queueState{}
	}
	return st
}

// persist rewrites the backing file. A failed save is logged; the mutation is
// then only at risk of being lost, never half-written.
func (q *Queue) persist(st queueState) {
	if err := fsstore.WriteJSONAtomic(q.path, st); err != nil {
		q.logger.Warn("queue_persist_failed", "path", q.path, "error", err.Error())
	}
}

// Enqueue appends a message to pending and persists. The constructed message
// is returned with its assigned id and timestamp.
func (q *Queue) Enqueue(text string, sender Sender) Message {
	q.mu.Lock()
	defer q.mu.Unlock()

	msg := Message{
		ID:        uuid.NewString(),
		Text:      text,
		Sender:    sender,
		Timestamp: q.now().Unix(),
	}
	st := q.load()
	st.Pending = append(st.Pending, msg)
	q.persist(st)
	return msg
}

// Poll atomically drains all pending messages into delivered history and
// returns them in insertion order. Never blocks.
func (q *Queue) Poll() []Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.drainLocked(func(Message) bool { return true })
}

// PollSince drains all pending messages like Poll, but returns only those
// newer than sinceTS. Stale messages still move to delivered history; a
// second call never sees them again.
func (q *Queue) PollSince(sinceTS int64) []Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.drainLocked(func(m Message) bool { return m.Timestamp > sinceTS })
}

func (q *Queue) drainLocked(fresh func(Message) bool) []Message {
	st := q.load()
	if len(st.Pending) == 0 {
		return nil
	}
	drained := st.Pending
	st.Pending = nil
	st.Delivered = append(st.Delivered, drained...)
	if over := len(st.Delivered) - q.historyCap; over > 0 {
		st.Delivered = append([]Message(nil), st.Delivered[over:]...)
	}
	q.persist(st)

	out := make([]Message, 0, len(drained))
	for _, m := range drained {
		if fresh(m) {
			out = append(out, m)
		}
	}
	return out
}

// PendingCount reports the number of pending messages without draining.
func (q *Queue) PendingCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.load().Pending)
}

// PendingCountSince counts pending messages with a timestamp strictly newer
// than sinceTS.
func (q *Queue) PendingCountSince(sinceTS int64) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, m := range q.load().Pending {
		if m.Timestamp > sinceTS {
			n++
		}
	}
	return n
}

// Clear empties both pending and delivered and persists.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.persist(queueState{})
}
