package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"

	"github.com/aretw0/ason/internal/logging"
	"github.com/aretw0/ason/pkg/capability"
	"github.com/aretw0/ason/pkg/domain"
	"github.com/aretw0/ason/pkg/operator"
	"github.com/aretw0/ason/pkg/ports"
)

// Call is one operator invocation requested by a script.
type Call struct {
	Target string
	Method string
	Handle string
	Args   []any
}

// Dispatcher resolves handles and methods, coerces arguments and runs the
// call on the host's execution context.
type Dispatcher struct {
	tree      *operator.Tree
	registry  *capability.Registry
	scheduler ports.Scheduler
	tools     *ToolInvoker
	logger    *slog.Logger
}

// Option configures the Dispatcher.
type Option func(*Dispatcher)

// WithScheduler sets the execution context for operator calls (default Passthrough).
func WithScheduler(s ports.Scheduler) Option {
	return func(d *Dispatcher) {
		d.scheduler = s
	}
}

// WithToolInvoker enables external tool calls.
func WithToolInvoker(t *ToolInvoker) Option {
	return func(d *Dispatcher) {
		d.tools = t
	}
}

// WithLogger configures a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// New creates a dispatcher over tree and registry.
func New(tree *operator.Tree, registry *capability.Registry, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		tree:      tree,
		registry:  registry,
		scheduler: Passthrough{},
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.tools == nil {
		d.tools = NewToolInvoker(d.logger)
	}
	return d
}

// Tools returns the tool invoker.
func (d *Dispatcher) Tools() *ToolInvoker { return d.tools }

// Invoke runs call and returns the normalized result: awaited values are
// resolved and operator nodes are replaced by their handle.
func (d *Dispatcher) Invoke(ctx context.Context, call Call) (any, error) {
	if call.Handle == "" {
		return nil, fmt.Errorf("%w: empty handle for %s.%s", domain.ErrDisposed, call.Target, call.Method)
	}
	node, ok := d.tree.Lookup(call.Handle)
	if !ok {
		d.tree.Remove(call.Handle)
		return nil, fmt.Errorf("%w: %s", domain.ErrDisposed, call.Handle)
	}
	if call.Target != "" && call.Target != node.Kind() {
		d.logger.Debug("invoke target differs from node kind", "target", call.Target, "kind", node.Kind())
	}

	method, err := d.registry.Lookup(node.Kind(), call.Method, len(call.Args))
	if err != nil {
		return nil, err
	}

	params := method.ParamTypes()
	args := make([]reflect.Value, len(call.Args))
	for i, a := range call.Args {
		v, err := Coerce(a, params[i])
		if err != nil {
			// keep the original; the call reports the mismatch
			d.logger.Debug("argument not coerced", "method", call.Method, "index", i, "error", err)
			v = reflect.ValueOf(a)
		}
		args[i] = v
	}

	if err := node.Reload(ctx); err != nil {
		return nil, err
	}

	result, err := d.scheduler.Run(ctx, func() (result any, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%w: %s.%s panicked: %v", domain.ErrExecution, node.Kind(), call.Method, r)
			}
		}()
		return method.Call(ctx, node, args)
	})
	if err != nil {
		return nil, err
	}
	return normalize(ctx, result)
}

func normalize(ctx context.Context, result any) (any, error) {
	if aw, ok := result.(capability.Awaitable); ok {
		v, err := aw.Await(ctx)
		if err != nil {
			return nil, err
		}
		result = v
	}
	if n, ok := result.(*operator.Node); ok {
		if n == nil {
			return nil, nil
		}
		return n.Handle(), nil
	}
	return result, nil
}

// InvokeTool routes a tool call to the registered tool server.
func (d *Dispatcher) InvokeTool(ctx context.Context, server, tool string, args map[string]any) (any, error) {
	if d.tools == nil {
		return nil, errors.New("tool invocation is not configured")
	}
	return d.tools.Call(ctx, server, tool, args)
}
