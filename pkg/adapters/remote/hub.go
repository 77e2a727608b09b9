package remote

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/aretw0/ason/internal/logging"
	"github.com/aretw0/ason/pkg/adapters/process"
	"github.com/aretw0/ason/pkg/ports"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"
)

// DefaultSweepSchedule runs the idle sweeper once a minute.
const DefaultSweepSchedule = "@every 1m"

// Option configures the Hub.
type Option func(*Hub)

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Hub) {
		h.cfg.Logger = logger
	}
}

// WithIdleTimeout overrides DefaultIdleTimeout.
func WithIdleTimeout(d time.Duration) Option {
	return func(h *Hub) {
		h.cfg.IdleTimeout = d
	}
}

// WithDirectory records sessions in dir (for instance a shared redis directory).
func WithDirectory(dir ports.SessionDirectory) Option {
	return func(h *Hub) {
		h.cfg.Directory = dir
	}
}

// WithProcessConfig is the template for process and container sessions.
func WithProcessConfig(cfg process.Config) Option {
	return func(h *Hub) {
		h.cfg.Process = cfg
	}
}

// WithNode names this hub replica in the directory.
func WithNode(node string) Option {
	return func(h *Hub) {
		h.cfg.Node = node
	}
}

// WithSweepSchedule overrides DefaultSweepSchedule (any robfig/cron spec).
func WithSweepSchedule(spec string) Option {
	return func(h *Hub) {
		h.sweepSpec = spec
	}
}

// WithRegistry exposes metrics from reg instead of a private registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(h *Hub) {
		h.registry = reg
	}
}

// Hub accepts remote sessions over websocket.
type Hub struct {
	cfg       ManagerConfig
	sweepSpec string
	registry  *prometheus.Registry
	logger    *slog.Logger

	manager  *Manager
	upgrader websocket.Upgrader
	cron     *cron.Cron
}

// NewHub creates a hub. Call Start to enable the sweeper.
func NewHub(opts ...Option) *Hub {
	h := &Hub{sweepSpec: DefaultSweepSchedule}
	for _, opt := range opts {
		opt(h)
	}
	if h.registry == nil {
		h.registry = prometheus.NewRegistry()
	}
	if h.cfg.Logger == nil {
		h.cfg.Logger = logging.NewNop()
	}
	h.logger = h.cfg.Logger
	h.cfg.Metrics = NewMetrics(h.registry)
	h.manager = NewManager(h.cfg)
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     func(r *http.Request) bool { return true },
	}
	h.cron = cron.New()
	return h
}

// Manager returns the session manager.
func (h *Hub) Manager() *Manager { return h.manager }

// Handler returns the HTTP routes of the hub.
func (h *Hub) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/runner", h.serveRunner)
	r.Handle("/metrics", promhttp.HandlerFor(h.registry, promhttp.HandlerOpts{}))
	r.Get("/sessions", h.listSessions)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return r
}

// Start schedules the idle sweeper.
func (h *Hub) Start() error {
	_, err := h.cron.AddFunc(h.sweepSpec, func() {
		if removed := h.manager.Sweep(context.Background(), time.Now()); len(removed) > 0 {
			h.logger.Info("idle sessions disposed", "count", len(removed))
		}
	})
	if err != nil {
		return err
	}
	h.cron.Start()
	return nil
}

// Close stops the sweeper and disposes every session.
func (h *Hub) Close(ctx context.Context) {
	stopped := h.cron.Stop()
	select {
	case <-stopped.Done():
	case <-ctx.Done():
	}
	h.manager.CloseAll(ctx, "hub shutting down")
}

// ListenAndServe serves the hub on addr until ctx is done.
func (h *Hub) ListenAndServe(ctx context.Context, addr string) error {
	if err := h.Start(); err != nil {
		return err
	}
	srv := &http.Server{Addr: addr, Handler: h.Handler()}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		h.logger.Info("hub listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		h.Close(shutdownCtx)
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (h *Hub) serveRunner(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	conn.SetReadLimit(MaxFrameSize)
	ws := &wsConn{conn: conn}

	var start Frame
	if err := conn.ReadJSON(&start); err != nil {
		conn.Close()
		return
	}
	s, err := h.manager.Create(r.Context(), ws, start)
	if err != nil {
		h.logger.Warn("rejecting remote session", "error", err)
		ws.WriteFrame(Frame{Type: FrameClosed, Reason: err.Error()})
		conn.Close()
		return
	}

	ctx := context.Background()
	for {
		var f Frame
		if err := conn.ReadJSON(&f); err != nil {
			h.manager.Remove(ctx, s.ID, "client disconnected")
			return
		}
		switch f.Type {
		case FrameLine:
			if err := s.Deliver(ctx, f.Line); err != nil {
				h.logger.Warn("delivering line failed", "session", s.ID, "error", err)
			}
		case FrameClosed:
			h.manager.Remove(ctx, s.ID, "client closed")
			return
		default:
			h.logger.Warn("unexpected frame from client", "session", s.ID, "type", f.Type)
		}
	}
}

func (h *Hub) listSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.manager.directory.List(r.Context())
	if err != nil {
		http.Error(w, "failed to list sessions", http.StatusInternalServerError)
		h.logger.Error("listing sessions failed", "error", err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sessions)
}
