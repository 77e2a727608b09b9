package remote

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aretw0/ason/pkg/adapters/process"
	"github.com/aretw0/ason/pkg/domain"
	"github.com/aretw0/ason/pkg/executor"
	"github.com/gorilla/websocket"
)

// FrameWriter is the hub's end of a client connection.
type FrameWriter interface {
	WriteFrame(f Frame) error
	Close() error
}

// wsConn serializes writes to a websocket connection.
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsConn) WriteFrame(f Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(f)
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}

// backend executes the lines delivered to a session.
type backend interface {
	Deliver(ctx context.Context, line string) error
	Close(ctx context.Context)
}

// Session is one client connection and the executor serving it.
type Session struct {
	ID        string
	Mode      domain.ExecutionMode
	Image     string
	StartedAt time.Time

	writer  FrameWriter
	backend backend
	manager *Manager

	// unix nanoseconds
	lastActivity atomic.Int64
}

// LastActivity returns the time of the last relayed line.
func (s *Session) LastActivity() time.Time {
	return time.Unix(0, s.lastActivity.Load())
}

func (s *Session) touch(at time.Time) {
	s.lastActivity.Store(at.UnixNano())
}

// Deliver hands a line from the client to the executor.
func (s *Session) Deliver(ctx context.Context, line string) error {
	s.touch(s.manager.now())
	s.manager.metrics.Lines.WithLabelValues("inbound").Inc()
	return s.backend.Deliver(ctx, line)
}

// send writes a line from the executor to the client.
func (s *Session) send(line []byte) error {
	s.touch(s.manager.now())
	s.manager.metrics.Lines.WithLabelValues("outbound").Inc()
	return s.writer.WriteFrame(Frame{Type: FrameLine, Line: string(line)})
}

// inProcessBackend interprets scripts inside the hub. Invocations travel back
// to the client over the socket.
type inProcessBackend struct {
	server *executor.Server
}

func (b *inProcessBackend) Deliver(_ context.Context, line string) error {
	b.server.Handle(line)
	return nil
}

func (b *inProcessBackend) Close(context.Context) {
	b.server.Close()
}

// relayBackend forwards lines to an executor child or container.
type relayBackend struct {
	transport *process.Transport
	relayed   chan struct{}
}

func (b *relayBackend) Deliver(ctx context.Context, line string) error {
	return b.transport.Send(ctx, line)
}

func (b *relayBackend) Close(ctx context.Context) {
	b.transport.Stop(ctx)
	<-b.relayed
}
