package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/ason/internal/logging"
	"github.com/aretw0/ason/pkg/domain"
	"github.com/gorilla/websocket"
)

// MaxFrameSize bounds a single websocket message.
const MaxFrameSize = 2 << 20

// closeGrace is how long Stop waits for the hub to acknowledge the close.
const closeGrace = 2 * time.Second

var timeZero time.Time

// TransportOption configures the client Transport.
type TransportOption func(*Transport)

// WithImage selects the container image for container sessions.
func WithImage(image string) TransportOption {
	return func(t *Transport) {
		t.image = image
	}
}

// WithDialer overrides websocket.DefaultDialer.
func WithDialer(d *websocket.Dialer) TransportOption {
	return func(t *Transport) {
		t.dialer = d
	}
}

// WithHeader adds headers to the upgrade request.
func WithHeader(h http.Header) TransportOption {
	return func(t *Transport) {
		t.header = h
	}
}

// WithTransportLogger configures the structured logger.
func WithTransportLogger(logger *slog.Logger) TransportOption {
	return func(t *Transport) {
		t.logger = logger
	}
}

// Transport implements ports.Transport against a Hub.
type Transport struct {
	endpoint string
	mode     domain.ExecutionMode
	image    string
	dialer   *websocket.Dialer
	header   http.Header
	logger   *slog.Logger

	mu       sync.Mutex
	conn     *websocket.Conn
	lines    chan string
	done     chan struct{}
	reason   string
	stopping bool

	wmu sync.Mutex
}

// NewTransport creates a client for the hub at endpoint. mode is requested in
// the start frame.
func NewTransport(endpoint string, mode domain.ExecutionMode, opts ...TransportOption) *Transport {
	t := &Transport{
		endpoint: endpoint,
		mode:     mode,
		dialer:   websocket.DefaultDialer,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// RunnerURL turns a hub endpoint into the websocket URL of its /runner route.
func RunnerURL(endpoint string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid hub endpoint %q: %w", endpoint, err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("invalid hub endpoint %q: unsupported scheme %q", endpoint, u.Scheme)
	}
	if !strings.HasSuffix(u.Path, "/runner") {
		u.Path = strings.TrimSuffix(u.Path, "/") + "/runner"
	}
	return u.String(), nil
}

func (t *Transport) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn != nil && !isDone(t.done) {
		return nil
	}

	target, err := RunnerURL(t.endpoint)
	if err != nil {
		return err
	}
	conn, _, err := t.dialer.DialContext(ctx, target, t.header)
	if err != nil {
		return fmt.Errorf("failed to connect to hub: %w", err)
	}
	conn.SetReadLimit(MaxFrameSize)

	start := Frame{Type: FrameStart, Mode: t.mode.String(), Image: t.image}
	if err := conn.WriteJSON(start); err != nil {
		conn.Close()
		return fmt.Errorf("failed to open session: %w", err)
	}
	t.logger.Debug("remote session opened", "url", target, "mode", t.mode)

	t.conn = conn
	t.lines = make(chan string, 16)
	t.done = make(chan struct{})
	t.reason = ""
	t.stopping = false
	go t.readLoop(conn, t.lines, t.done)
	return nil
}

func (t *Transport) readLoop(conn *websocket.Conn, lines chan string, done chan struct{}) {
	defer close(done)
	defer close(lines)
	for {
		var f Frame
		if err := conn.ReadJSON(&f); err != nil {
			t.mu.Lock()
			if t.reason == "" {
				if t.stopping {
					t.reason = "transport stopped"
				} else {
					t.reason = fmt.Sprintf("connection lost: %v", err)
				}
			}
			t.mu.Unlock()
			return
		}
		switch f.Type {
		case FrameLine:
			lines <- f.Line
		case FrameClosed:
			t.mu.Lock()
			t.reason = f.Reason
			t.mu.Unlock()
		default:
			t.logger.Warn("unexpected frame from hub", "type", f.Type)
		}
	}
}

func (t *Transport) Send(ctx context.Context, line string) error {
	t.mu.Lock()
	conn, done := t.conn, t.done
	t.mu.Unlock()
	if conn == nil {
		return domain.ErrTransportNotStarted
	}
	if isDone(done) {
		return domain.ErrTransportClosed
	}

	t.wmu.Lock()
	defer t.wmu.Unlock()
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetWriteDeadline(deadline)
		defer conn.SetWriteDeadline(timeZero)
	}
	if err := conn.WriteJSON(Frame{Type: FrameLine, Line: line}); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrTransportClosed, err)
	}
	return nil
}

func (t *Transport) Lines() <-chan string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lines
}

func (t *Transport) CloseReason() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reason
}

// Stop sends a close message and waits for the read loop to finish.
func (t *Transport) Stop(ctx context.Context) error {
	t.mu.Lock()
	conn, done := t.conn, t.done
	if conn == nil {
		t.mu.Unlock()
		return nil
	}
	t.stopping = true
	t.mu.Unlock()

	t.wmu.Lock()
	err := conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	t.wmu.Unlock()
	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		t.logger.Debug("sending close frame", "error", err)
	}

	timer := time.NewTimer(closeGrace)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
	case <-ctx.Done():
	}
	conn.Close()
	<-done
	return nil
}

func isDone(ch chan struct{}) bool {
	if ch == nil {
		return true
	}
	select {
	case <-ch:
		return true
	default:
		return false
	}
}
