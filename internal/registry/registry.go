// Package registry tracks every known bridge session in one shared JSON file.
// All mutations are whole-file read-modify-writes guarded by a lock file, so
// concurrent bridge processes on the same machine do not clobber each other.
package registry

import (
	"context"
	"log/slog"
	"time"

	"github.com/quailyquaily/morphbridge/internal/fsstore"
)

const DefaultLivenessWindow = 600 * time.Second

// Session describes one running bridge process. A session is live iff Active
// is set and LastSeen falls within the liveness window; an ungracefully
// killed process simply ages out without ever being marked inactive.
type Session struct {
	ID        string `json:"-"`
	Machine   string `json:"machine"`
	Agent     string `json:"agent"`
	StartedAt int64  `json:"startedAt"`
	LastSeen  int64  `json:"lastSeen"`
	Active    bool   `json:"active"`
	TopicID   int64  `json:"topicId,omitempty"`
}

// Live reports whether the session counts as live at time now.
func (s Session) Live(now time.Time, window time.Duration) bool {
	return s.Active && now.Unix()-s.LastSeen < int64(window.Seconds())
}

type Registry struct {
	path     string
	lockPath string
	window   time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// Open binds a registry to its shared backing file. The file is re-read on
// every operation; other processes mutate it between calls.
func Open(path, lockPath string, window time.Duration, logger *slog.Logger) *Registry {
	if window <= 0 {
		window = DefaultLivenessWindow
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		path:     path,
		lockPath: lockPath,
		window:   window,
		logger:   logger,
		now:      time.Now,
	}
}

func (r *Registry) load() map[string]Session {
	sessions := map[string]Session{}
	if _, err := fsstore.ReadJSON(r.path, &sessions); err != nil {
		r.logger.Warn("registry_load_failed", "path", r.path, "error", err.Error())
		return map[string]Session{}
	}
	for id, s := range sessions {
		s.ID = id
		sessions[id] = s
	}
	return sessions
}

func (r *Registry) mutate(fn func(sessions map[string]Session)) {
	op := func() error {
		sessions := r.load()
		fn(sessions)
		return fsstore.WriteJSONAtomic(r.path, sessions)
	}
	var err error
	if r.lockPath != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err = fsstore.WithLock(ctx, r.lockPath, op)
	} else {
		err = op()
	}
	if err != nil {
		r.logger.Warn("registry_persist_failed", "path", r.path, "error", err.Error())
	}
}

// Register upserts the session entry, overwriting any prior registration with
// the same ID.
func (r *Registry) Register(sessionID, machine, agent string, topicID int64) {
	now := r.now().Unix()
	r.mutate(func(sessions map[string]Session) {
		sessions[sessionID] = Session{
			ID:        sessionID,
			Machine:   machine,
			Agent:     agent,
			StartedAt: now,
			LastSeen:  now,
			Active:    true,
			TopicID:   topicID,
		}
	})
}

// Heartbeat refreshes LastSeen for a known session; unknown IDs are a no-op.
func (r *Registry) Heartbeat(sessionID string) {
	now := r.now().Unix()
	r.mutate(func(sessions map[string]Session) {
		s, ok := sessions[sessionID]
		if !ok {
			return
		}
		s.LastSeen = now
		sessions[sessionID] = s
	})
}

// Deactivate marks a known session inactive; unknown IDs are a no-op.
func (r *Registry) Deactivate(sessionID string) {
	r.mutate(func(sessions map[string]Session) {
		s, ok := sessions[sessionID]
		if !ok {
			return
		}
		s.Active = false
		sessions[sessionID] = s
	})
}

// GetActive returns only sessions live at the time of the call.
func (r *Registry) GetActive() map[string]Session {
	now := r.now()
	out := map[string]Session{}
	for id, s := range r.load() {
		if s.Live(now, r.window) {
			out[id] = s
		}
	}
	return out
}

// GetAll returns an unfiltered snapshot for diagnostics and listing.
func (r *Registry) GetAll() map[string]Session {
	return r.load()
}

// Window returns the configured liveness window.
func (r *Registry) Window() time.Duration {
	return r.window
}
