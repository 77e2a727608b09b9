package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/ason/internal/logging"
	"github.com/aretw0/ason/pkg/adapters/memory"
	"github.com/aretw0/ason/pkg/adapters/process"
	"github.com/aretw0/ason/pkg/domain"
	"github.com/aretw0/ason/pkg/executor"
	"github.com/aretw0/ason/pkg/ports"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

// DefaultIdleTimeout disposes sessions without traffic for this long.
const DefaultIdleTimeout = 5 * time.Minute

// Manager owns the live sessions of a hub.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session

	idle      time.Duration
	directory ports.SessionDirectory
	metrics   *Metrics
	process   process.Config
	node      string
	logger    *slog.Logger
	now       func() time.Time
}

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	IdleTimeout time.Duration
	Directory   ports.SessionDirectory
	Metrics     *Metrics
	// Process is the template for process and container sessions.
	Process process.Config
	Node    string
	Logger  *slog.Logger
	Clock   func() time.Time
}

// NewManager creates a Manager. Missing dependencies get in-memory defaults.
func NewManager(cfg ManagerConfig) *Manager {
	m := &Manager{
		sessions:  make(map[string]*Session),
		idle:      cfg.IdleTimeout,
		directory: cfg.Directory,
		metrics:   cfg.Metrics,
		process:   cfg.Process,
		node:      cfg.Node,
		logger:    cfg.Logger,
		now:       cfg.Clock,
	}
	if m.idle <= 0 {
		m.idle = DefaultIdleTimeout
	}
	if m.directory == nil {
		m.directory = memory.NewDirectory()
	}
	if m.metrics == nil {
		m.metrics = NewMetrics(prometheus.NewRegistry())
	}
	if m.logger == nil {
		m.logger = logging.NewNop()
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m
}

// Create opens a session for a connection that sent start.
func (m *Manager) Create(ctx context.Context, w FrameWriter, start Frame) (*Session, error) {
	if start.Type != FrameStart {
		return nil, fmt.Errorf("expected %s frame, got %q", FrameStart, start.Type)
	}
	mode, err := domain.ParseExecutionMode(start.Mode)
	if err != nil {
		return nil, err
	}

	now := m.now()
	s := &Session{
		ID:        strings.ReplaceAll(uuid.NewString(), "-", ""),
		Mode:      mode,
		Image:     start.Image,
		StartedAt: now,
		writer:    w,
		manager:   m,
	}
	s.touch(now)

	switch mode {
	case domain.ModeInProcess:
		s.backend = &inProcessBackend{
			server: executor.NewServer(s.send, executor.WithLogger(m.logger)),
		}
	default:
		cfg := m.process
		cfg.Mode = mode
		if start.Image != "" {
			cfg.Image = start.Image
		}
		t := process.New(cfg, process.WithLogger(m.logger))
		if err := t.Start(ctx); err != nil {
			return nil, fmt.Errorf("start %s executor: %w", mode, err)
		}
		b := &relayBackend{transport: t, relayed: make(chan struct{})}
		s.backend = b
		go m.relay(s, b)
	}

	info := ports.SessionInfo{
		ID:           s.ID,
		Mode:         mode.String(),
		Image:        s.Image,
		Node:         m.node,
		StartedAt:    now,
		LastActivity: now,
	}
	if err := m.directory.Register(ctx, info); err != nil {
		s.backend.Close(ctx)
		return nil, fmt.Errorf("register session: %w", err)
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	m.metrics.Active.Inc()
	m.metrics.Created.WithLabelValues(mode.String()).Inc()
	m.logger.Info("remote session created", "session", s.ID, "mode", mode)
	return s, nil
}

// relay pumps executor output to the client until the child goes away.
func (m *Manager) relay(s *Session, b *relayBackend) {
	defer close(b.relayed)
	for line := range b.transport.Lines() {
		if err := s.send([]byte(line)); err != nil {
			m.logger.Debug("relay to client failed", "session", s.ID, "error", err)
		}
	}
	reason := b.transport.CloseReason()
	// Remove waits on relayed, so dispose from another goroutine.
	go m.Remove(context.Background(), s.ID, reason)
}

// Get returns a live session.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Metrics returns the collectors updated by the manager.
func (m *Manager) Metrics() *Metrics { return m.metrics }

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// IDs returns the ids of live sessions, sorted.
func (m *Manager) IDs() []string {
	m.mu.Lock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	sort.Strings(ids)
	return ids
}

// Remove disposes a session. It reports whether the session was live.
func (m *Manager) Remove(ctx context.Context, id, reason string) bool {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return false
	}

	s.backend.Close(ctx)
	if err := s.writer.WriteFrame(Frame{Type: FrameClosed, Reason: reason}); err != nil {
		m.logger.Debug("closed frame not delivered", "session", id, "error", err)
	}
	if err := s.writer.Close(); err != nil {
		m.logger.Debug("closing connection", "session", id, "error", err)
	}
	if err := m.directory.Remove(ctx, id); err != nil {
		m.logger.Warn("failed to remove session from directory", "session", id, "error", err)
	}

	m.metrics.Active.Dec()
	m.logger.Info("remote session closed", "session", id, "reason", reason)
	return true
}

// Sweep disposes sessions idle at now and records activity of the others in
// the directory. It returns the ids it disposed.
func (m *Manager) Sweep(ctx context.Context, now time.Time) []string {
	var idle, alive []*Session
	m.mu.Lock()
	for _, s := range m.sessions {
		if now.Sub(s.LastActivity()) > m.idle {
			idle = append(idle, s)
		} else {
			alive = append(alive, s)
		}
	}
	m.mu.Unlock()

	var removed []string
	for _, s := range idle {
		if m.Remove(ctx, s.ID, "idle timeout") {
			m.metrics.Evicted.Inc()
			removed = append(removed, s.ID)
		}
	}
	for _, s := range alive {
		err := m.directory.Touch(ctx, s.ID, s.LastActivity())
		if err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
			m.logger.Warn("failed to touch session", "session", s.ID, "error", err)
		}
	}
	sort.Strings(removed)
	return removed
}

// CloseAll disposes every session.
func (m *Manager) CloseAll(ctx context.Context, reason string) {
	for _, id := range m.IDs() {
		m.Remove(ctx, id, reason)
	}
}
