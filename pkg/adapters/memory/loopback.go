package memory

import (
	"context"
	"sync"

	"github.com/aretw0/ason/pkg/domain"
	"github.com/aretw0/ason/pkg/executor"
)

// Loopback implements ports.Transport against an executor.Server running in
// this process. Every message still goes through the wire encoding, which
// makes it a cheap stand-in for a child process in tests and embedded hosts.
type Loopback struct {
	opts []executor.Option

	mu       sync.Mutex
	server   *executor.Server
	lines    chan string
	done     chan struct{}
	reason   string
	stopOnce sync.Once
}

// NewLoopback creates a transport. opts configure the executor side.
func NewLoopback(opts ...executor.Option) *Loopback {
	return &Loopback{opts: opts}
}

func (l *Loopback) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.server != nil {
		return nil
	}
	l.lines = make(chan string, 16)
	l.done = make(chan struct{})
	l.stopOnce = sync.Once{}
	l.reason = ""
	lines, done := l.lines, l.done
	l.server = executor.NewServer(func(line []byte) error {
		select {
		case <-done:
			return domain.ErrTransportClosed
		default:
		}
		select {
		case lines <- string(line):
			return nil
		case <-done:
			return domain.ErrTransportClosed
		}
	}, l.opts...)
	return nil
}

func (l *Loopback) Send(ctx context.Context, line string) error {
	l.mu.Lock()
	server, done := l.server, l.done
	l.mu.Unlock()
	if server == nil {
		return domain.ErrTransportNotStarted
	}
	select {
	case <-done:
		return domain.ErrTransportClosed
	default:
	}
	server.Handle(line)
	return nil
}

func (l *Loopback) Lines() <-chan string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lines
}

func (l *Loopback) CloseReason() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.reason
}

func (l *Loopback) Stop(ctx context.Context) error {
	l.shutdown("transport stopped")
	return nil
}

// Fail closes the transport as if the executor had died.
func (l *Loopback) Fail(reason string) {
	l.shutdown(reason)
}

func (l *Loopback) shutdown(reason string) {
	l.mu.Lock()
	server, lines, done := l.server, l.lines, l.done
	l.mu.Unlock()
	if server == nil {
		return
	}
	l.stopOnce.Do(func() {
		close(done)
		server.Close()
		l.mu.Lock()
		l.reason = reason
		l.server = nil
		l.mu.Unlock()
		close(lines)
	})
}
