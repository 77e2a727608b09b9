package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/aretw0/ason/internal/logging"
	"github.com/aretw0/ason/pkg/dispatch"
	"github.com/aretw0/ason/pkg/domain"
	"github.com/aretw0/ason/pkg/ports"
	"github.com/aretw0/ason/pkg/protocol"
	"github.com/aretw0/ason/pkg/sandbox"
	"github.com/google/uuid"
)

// Invoker executes operator and tool calls on the host. *dispatch.Dispatcher satisfies it.
type Invoker interface {
	Invoke(ctx context.Context, call dispatch.Call) (any, error)
	InvokeTool(ctx context.Context, server, tool string, args map[string]any) (any, error)
}

// InvokeHook is consulted before each invocation. A non-nil error vetoes the
// call, which then fails with domain.ErrInvocationCancelled.
type InvokeHook func(ctx context.Context, call dispatch.Call) error

type execReply struct {
	msg protocol.ExecResult
	err error
}

// Client executes scripts and serves invocations coming back from them.
type Client struct {
	invoker   Invoker
	transport ports.Transport
	sandbox   *sandbox.Executor
	hook      InvokeHook
	logger    *slog.Logger

	startMu sync.Mutex
	running bool

	mu      sync.Mutex
	pending map[string]chan execReply
	// scopes holds the context of each remote execution; invocations
	// carrying its id are cancelled with it.
	scopes map[string]context.Context

	// base is cancelled on Close; inbound invocations derive from it.
	base     context.Context
	shutdown context.CancelFunc
	handlers sync.WaitGroup
	reader   sync.WaitGroup
}

// New creates a Client. Without WithTransport scripts run in-process.
func New(invoker Invoker, opts ...Option) *Client {
	base, cancel := context.WithCancel(context.Background())
	c := &Client{
		invoker:  invoker,
		logger:   logging.NewNop(),
		pending:  make(map[string]chan execReply),
		scopes:   make(map[string]context.Context),
		base:     base,
		shutdown: cancel,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.sandbox == nil {
		c.sandbox = sandbox.New(sandbox.WithLogger(c.logger))
	}
	return c
}

// NewID returns a correlation id: a random UUID without dashes.
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Execute runs code and returns its raw result text.
func (c *Client) Execute(ctx context.Context, code string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if c.transport == nil {
		return c.sandbox.Run(ctx, code, &localBridge{c: c})
	}
	if err := c.ensureStarted(ctx); err != nil {
		return "", err
	}

	scope, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(c.base, cancel)
	defer stop()

	id := NewID()
	slot := make(chan execReply, 1)
	c.mu.Lock()
	c.pending[id] = slot
	c.scopes[id] = scope
	c.mu.Unlock()
	defer c.dropScope(id)

	if err := c.send(ctx, protocol.Exec{ID: id, Code: code}); err != nil {
		c.take(id)
		return "", err
	}

	select {
	case reply := <-slot:
		if reply.err != nil {
			return "", reply.err
		}
		if reply.msg.Error != "" {
			return "", fmt.Errorf("%w: %s", domain.ErrExecution, reply.msg.Error)
		}
		if reply.msg.Result == nil {
			return "", nil
		}
		return reply.msg.Result.Text(), nil
	case <-ctx.Done():
		c.take(id)
		return "", ctx.Err()
	}
}

// Pending returns the number of executions waiting for a result.
func (c *Client) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// take removes and returns the slot for id. Each slot is taken exactly once.
func (c *Client) take(id string) (chan execReply, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	slot, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	return slot, ok
}

func (c *Client) dropScope(id string) {
	c.mu.Lock()
	delete(c.scopes, id)
	c.mu.Unlock()
}

// scopeFor returns the context an invocation from execution execID runs
// under. Unknown executions fall back to the client lifetime.
func (c *Client) scopeFor(execID string) context.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ctx, ok := c.scopes[execID]; ok {
		return ctx
	}
	return c.base
}

func (c *Client) failPending(err error) {
	c.mu.Lock()
	slots := c.pending
	c.pending = make(map[string]chan execReply)
	c.mu.Unlock()
	for _, slot := range slots {
		slot <- execReply{err: err}
	}
}

func (c *Client) ensureStarted(ctx context.Context) error {
	c.startMu.Lock()
	defer c.startMu.Unlock()
	if c.running {
		return nil
	}
	if err := c.transport.Start(ctx); err != nil {
		return fmt.Errorf("start transport: %w", err)
	}
	c.running = true
	lines := c.transport.Lines()
	c.reader.Add(1)
	go c.readLoop(lines)
	return nil
}

func (c *Client) readLoop(lines <-chan string) {
	defer c.reader.Done()
	for line := range lines {
		c.handleLine(line)
	}

	c.startMu.Lock()
	c.running = false
	c.startMu.Unlock()

	reason := c.transport.CloseReason()
	c.logger.Debug("transport closed", "reason", reason)
	c.failPending(fmt.Errorf("%w: %s", domain.ErrTransportClosed, reason))
}

func (c *Client) handleLine(line string) {
	if strings.TrimSpace(line) == "" {
		return
	}
	msg, err := protocol.Decode([]byte(line))
	if err != nil {
		c.logger.Warn("ignoring malformed message", "error", err)
		return
	}

	switch m := msg.(type) {
	case protocol.ExecResult:
		slot, ok := c.take(m.ID)
		if !ok {
			c.logger.Debug("exec result for unknown id", "id", m.ID)
			return
		}
		slot <- execReply{msg: m}
	case protocol.Invoke:
		c.handlers.Add(1)
		go func() {
			defer c.handlers.Done()
			c.serveInvoke(m)
		}()
	case protocol.InvokeMcp:
		c.handlers.Add(1)
		go func() {
			defer c.handlers.Done()
			c.serveInvokeMcp(m)
		}()
	case protocol.Log:
		c.emitLog(m.Level, m.Message, "source", m.Source, "exception", m.Exception)
	default:
		c.logger.Warn("unexpected message from executor", "type", msg.Type(), "id", msg.CorrelationID())
	}
}

func (c *Client) serveInvoke(m protocol.Invoke) {
	args := make([]any, len(m.Args))
	for i, a := range m.Args {
		args[i] = a
	}
	bridge := &localBridge{c: c}
	result, err := bridge.Invoke(c.scopeFor(m.ExecID), dispatch.Call{Target: m.Target, Method: m.Method, Handle: m.HandleID, Args: args})
	c.reply(m.ID, result, err)
}

func (c *Client) serveInvokeMcp(m protocol.InvokeMcp) {
	args := make(map[string]any, len(m.Arguments))
	for k, v := range m.Arguments {
		args[k] = v.Interface()
	}
	bridge := &localBridge{c: c}
	result, err := bridge.InvokeTool(c.scopeFor(m.ExecID), m.Server, m.Tool, args)
	c.reply(m.ID, result, err)
}

func (c *Client) reply(id string, result any, err error) {
	resp := protocol.InvokeResult{ID: id}
	if err != nil {
		resp.Error = err.Error()
	} else if v, convErr := protocol.ResultOf(result); convErr != nil {
		resp.Error = convErr.Error()
	} else {
		resp.Result = v
	}
	if sendErr := c.send(c.base, resp); sendErr != nil {
		c.logger.Warn("failed to answer invocation", "id", id, "error", sendErr)
	}
}

func (c *Client) send(ctx context.Context, msg protocol.Message) error {
	line, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	return c.transport.Send(ctx, string(line))
}

// emitLog re-emits a log line received from the executor on the host logger.
func (c *Client) emitLog(level, message string, attrs ...any) {
	filtered := attrs[:0:0]
	for i := 0; i+1 < len(attrs); i += 2 {
		if s, ok := attrs[i+1].(string); ok && s == "" {
			continue
		}
		filtered = append(filtered, attrs[i], attrs[i+1])
	}
	c.logger.Log(c.base, logging.ParseLevel(level), message, filtered...)
}

// Close stops the transport and fails executions still waiting.
func (c *Client) Close(ctx context.Context) error {
	c.shutdown()
	var err error
	if c.transport != nil {
		c.startMu.Lock()
		running := c.running
		c.startMu.Unlock()
		if running {
			err = c.transport.Stop(ctx)
		}
		c.reader.Wait()
	}
	c.handlers.Wait()
	c.failPending(errors.New("runner client closed"))
	return err
}

// localBridge answers script calls on this host, applying the invoke hook.
type localBridge struct {
	c *Client
}

func (b *localBridge) allow(ctx context.Context, call dispatch.Call) error {
	if b.c.hook == nil {
		return nil
	}
	if err := b.c.hook(ctx, call); err != nil {
		b.c.logger.Info("invocation vetoed", "target", call.Target, "method", call.Method, "reason", err)
		return domain.ErrInvocationCancelled
	}
	return nil
}

func (b *localBridge) Invoke(ctx context.Context, call dispatch.Call) (any, error) {
	if err := b.allow(ctx, call); err != nil {
		return nil, err
	}
	return b.c.invoker.Invoke(ctx, call)
}

func (b *localBridge) InvokeTool(ctx context.Context, server, tool string, args map[string]any) (any, error) {
	if err := b.allow(ctx, dispatch.Call{Target: server, Method: tool}); err != nil {
		return nil, err
	}
	return b.c.invoker.InvokeTool(ctx, server, tool, args)
}

func (b *localBridge) Log(ctx context.Context, level, message string) {
	b.c.emitLog(level, message, "source", "script")
}
