package executor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/aretw0/ason/internal/logging"
	"github.com/aretw0/ason/pkg/dispatch"
	"github.com/aretw0/ason/pkg/domain"
	"github.com/aretw0/ason/pkg/protocol"
	"github.com/aretw0/ason/pkg/sandbox"
	"github.com/google/uuid"
)

// MaxLineSize bounds a single protocol line.
const MaxLineSize = 1 << 20

// WriteFunc sends one encoded message. The Server never calls it concurrently.
type WriteFunc func(line []byte) error

// LineWriter adapts w to a WriteFunc that terminates every message with '\n'.
func LineWriter(w io.Writer) WriteFunc {
	return func(line []byte) error {
		buf := make([]byte, 0, len(line)+1)
		buf = append(buf, line...)
		buf = append(buf, '\n')
		_, err := w.Write(buf)
		return err
	}
}

// Option configures the Server.
type Option func(*Server)

// WithSandbox overrides the interpreter used for exec requests.
func WithSandbox(e *sandbox.Executor) Option {
	return func(s *Server) {
		s.sandbox = e
	}
}

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// Server executes scripts on behalf of a remote host.
type Server struct {
	write   WriteFunc
	sandbox *sandbox.Executor
	logger  *slog.Logger

	wmu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan protocol.InvokeResult

	base   context.Context
	cancel context.CancelFunc
	execs  sync.WaitGroup
}

// NewServer creates a Server answering through write.
func NewServer(write WriteFunc, opts ...Option) *Server {
	base, cancel := context.WithCancel(context.Background())
	s := &Server{
		write:   write,
		logger:  logging.NewNop(),
		pending: make(map[string]chan protocol.InvokeResult),
		base:    base,
		cancel:  cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.sandbox == nil {
		s.sandbox = sandbox.New(sandbox.WithLogger(s.logger))
	}
	return s
}

// Serve handles lines from r until EOF or ctx is done, then waits for running
// scripts to finish.
func (s *Server) Serve(ctx context.Context, r io.Reader) error {
	stop := context.AfterFunc(ctx, s.cancel)
	defer stop()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), MaxLineSize)

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-s.base.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	var err error
loop:
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				err = <-scanErr
				break loop
			}
			s.Handle(line)
		case <-s.base.Done():
			break loop
		}
	}

	s.Close()
	return err
}

// Handle processes one received line.
func (s *Server) Handle(line string) {
	if strings.TrimSpace(line) == "" {
		return
	}
	msg, err := protocol.Decode([]byte(line))
	if err != nil {
		s.logger.Warn("ignoring malformed message", "error", err)
		return
	}

	switch m := msg.(type) {
	case protocol.Exec:
		s.execs.Add(1)
		go func() {
			defer s.execs.Done()
			s.exec(m)
		}()
	case protocol.InvokeResult:
		s.mu.Lock()
		slot, ok := s.pending[m.ID]
		delete(s.pending, m.ID)
		s.mu.Unlock()
		if !ok {
			s.logger.Debug("invoke result for unknown id", "id", m.ID)
			return
		}
		slot <- m
	default:
		s.logger.Warn("unexpected message from host", "type", msg.Type(), "id", msg.CorrelationID())
	}
}

// Close cancels running scripts and waits for them.
func (s *Server) Close() {
	s.cancel()
	s.execs.Wait()
}

func (s *Server) exec(m protocol.Exec) {
	bridge := &remoteBridge{s: s, execID: m.ID}
	text, err := s.sandbox.Run(s.base, m.Code, bridge)

	reply := protocol.ExecResult{ID: m.ID}
	if err != nil {
		s.logger.Debug("script failed", "id", m.ID, "error", err)
		reply.Error = err.Error()
	} else {
		v := protocol.String(text)
		reply.Result = &v
	}
	if err := s.send(reply); err != nil {
		s.logger.Warn("failed to send exec result", "id", m.ID, "error", err)
	}
}

func (s *Server) send(msg protocol.Message) error {
	line, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	s.wmu.Lock()
	defer s.wmu.Unlock()
	return s.write(line)
}

// request sends msg and waits for the invoke result with the same id.
func (s *Server) request(ctx context.Context, id string, msg protocol.Message) (any, error) {
	slot := make(chan protocol.InvokeResult, 1)
	s.mu.Lock()
	s.pending[id] = slot
	s.mu.Unlock()

	drop := func() {
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
	}

	if err := s.send(msg); err != nil {
		drop()
		return nil, fmt.Errorf("%w: %v", domain.ErrTransportClosed, err)
	}

	select {
	case res := <-slot:
		if res.Error != "" {
			if res.Error == domain.ErrInvocationCancelled.Error() {
				return nil, domain.ErrInvocationCancelled
			}
			return nil, errors.New(res.Error)
		}
		if res.Result == nil {
			return nil, nil
		}
		return *res.Result, nil
	case <-ctx.Done():
		drop()
		return nil, ctx.Err()
	}
}

func newID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// remoteBridge forwards host calls of one script over the protocol.
type remoteBridge struct {
	s      *Server
	execID string
}

func (b *remoteBridge) Invoke(ctx context.Context, call dispatch.Call) (any, error) {
	args := make([]protocol.Value, len(call.Args))
	for i, a := range call.Args {
		v, err := protocol.FromAny(a)
		if err != nil {
			return nil, fmt.Errorf("argument %d of %s.%s: %w", i, call.Target, call.Method, err)
		}
		args[i] = v
	}
	id := newID()
	return b.s.request(ctx, id, protocol.Invoke{
		ID:       id,
		Target:   call.Target,
		Method:   call.Method,
		Args:     args,
		HandleID: call.Handle,
		ExecID:   b.execID,
	})
}

func (b *remoteBridge) InvokeTool(ctx context.Context, server, tool string, args map[string]any) (any, error) {
	wire := make(map[string]protocol.Value, len(args))
	for k, a := range args {
		v, err := protocol.FromAny(a)
		if err != nil {
			return nil, fmt.Errorf("argument %q of %s/%s: %w", k, server, tool, err)
		}
		wire[k] = v
	}
	id := newID()
	res, err := b.s.request(ctx, id, protocol.InvokeMcp{ID: id, Server: server, Tool: tool, Arguments: wire, ExecID: b.execID})
	if v, ok := res.(protocol.Value); ok {
		return v.Interface(), err
	}
	return res, err
}

func (b *remoteBridge) Log(_ context.Context, level, message string) {
	err := b.s.send(protocol.Log{ID: b.execID, Level: level, Message: message, Source: "script"})
	if err != nil {
		b.s.logger.Debug("failed to forward log", "error", err)
	}
}
