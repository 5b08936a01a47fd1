package gateway

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cordum/stageflow/core/editor"
	"github.com/cordum/stageflow/core/infra/logging"
	"github.com/cordum/stageflow/core/infra/metrics"
)

const defaultSessionIdle = 2 * time.Hour

// sessionManager holds the live editor sessions.
type sessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*editor.Editor
	idle     time.Duration
	metrics  metrics.Metrics
	build    func(opts ...editor.Option) *editor.Editor
	now      func() time.Time
}

func newSessionManager(idle time.Duration, m metrics.Metrics, build func(opts ...editor.Option) *editor.Editor) *sessionManager {
	if idle <= 0 {
		idle = defaultSessionIdle
	}
	if m == nil {
		m = metrics.Noop{}
	}
	return &sessionManager{
		sessions: make(map[string]*editor.Editor),
		idle:     idle,
		metrics:  m,
		build:    build,
		now:      time.Now,
	}
}

func (m *sessionManager) create(opts ...editor.Option) *editor.Editor {
	ed := m.build(opts...)
	m.mu.Lock()
	m.sessions[ed.ID()] = ed
	n := len(m.sessions)
	m.mu.Unlock()
	m.metrics.SetActiveSessions(n)
	logging.Info("sessions", "created", "session", ed.ID())
	return ed
}

func (m *sessionManager) get(id string) (*editor.Editor, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ed, ok := m.sessions[id]
	return ed, ok
}

func (m *sessionManager) remove(id string) bool {
	m.mu.Lock()
	_, ok := m.sessions[id]
	delete(m.sessions, id)
	n := len(m.sessions)
	m.mu.Unlock()
	if ok {
		m.metrics.SetActiveSessions(n)
	}
	return ok
}

func (m *sessionManager) count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// list returns session states ordered by most recent use.
func (m *sessionManager) list() []editor.State {
	m.mu.RLock()
	eds := make([]*editor.Editor, 0, len(m.sessions))
	for _, ed := range m.sessions {
		eds = append(eds, ed)
	}
	m.mu.RUnlock()
	out := make([]editor.State, 0, len(eds))
	for _, ed := range eds {
		st := ed.State()
		st.Config = nil
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastUsed.After(out[j].LastUsed) })
	return out
}

// sweep drops sessions idle for longer than the configured window.
func (m *sessionManager) sweep() int {
	cutoff := m.now().Add(-m.idle)
	m.mu.Lock()
	removed := 0
	for id, ed := range m.sessions {
		if ed.LastUsed().Before(cutoff) {
			delete(m.sessions, id)
			removed++
		}
	}
	n := len(m.sessions)
	m.mu.Unlock()
	if removed > 0 {
		m.metrics.SetActiveSessions(n)
		logging.Info("sessions", "expired idle sessions", "removed", removed, "active", n)
	}
	return removed
}

func (m *sessionManager) janitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}
