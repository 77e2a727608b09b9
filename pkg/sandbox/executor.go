package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"reflect"
	"strings"

	"github.com/aretw0/ason/internal/logging"
	"github.com/aretw0/ason/pkg/dispatch"
	"github.com/aretw0/ason/pkg/domain"
	"github.com/aretw0/ason/pkg/protocol"
	"github.com/aretw0/ason/pkg/script"
	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
)

// Bridge connects the bridge package seen by scripts to the host: directly
// (in-process) or through protocol messages (child process, remote).
type Bridge interface {
	Invoke(ctx context.Context, call dispatch.Call) (any, error)
	InvokeTool(ctx context.Context, server, tool string, args map[string]any) (any, error)
	Log(ctx context.Context, level, message string)
}

// DefaultPackages are the standard library packages scripts may import.
var DefaultPackages = []string{
	"bytes",
	"encoding/base64",
	"encoding/json",
	"errors",
	"fmt",
	"math",
	"regexp",
	"sort",
	"strconv",
	"strings",
	"time",
	"unicode",
	"unicode/utf8",
}

// Executor evaluates scripts. It is safe for concurrent use; every Run gets
// a fresh interpreter.
type Executor struct {
	packages []string
	logger   *slog.Logger
}

// Option configures the Executor.
type Option func(*Executor)

// WithPackages replaces DefaultPackages.
func WithPackages(pkgs ...string) Option {
	return func(e *Executor) {
		e.packages = pkgs
	}
}

// WithLogger configures a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		e.logger = logger
	}
}

// New creates an Executor.
func New(opts ...Option) *Executor {
	e := &Executor{
		packages: DefaultPackages,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// noSources hides the local GOPATH so that only bound symbols can be imported.
type noSources struct{}

func (noSources) Open(name string) (fs.File, error) {
	return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
}

// Run evaluates code (prelude, marker and body, or a bare body) and returns
// the raw result text of run().
func (e *Executor) Run(ctx context.Context, code string, bridge Bridge) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	prelude, body := script.Split(code)
	src := script.Assemble(prelude, body)

	var stdout bytes.Buffer
	i := interp.New(interp.Options{
		Stdout:               &stdout,
		Stderr:               &stdout,
		SourcecodeFilesystem: noSources{},
	})
	if err := i.Use(e.exports(ctx, bridge)); err != nil {
		return "", fmt.Errorf("load symbols: %w", err)
	}

	if _, err := i.EvalWithContext(ctx, src); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", fmt.Errorf("%w: %v", domain.ErrExecution, err)
	}
	v, err := i.Eval("main.run")
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrExecution, err)
	}
	run, ok := v.Interface().(func() any)
	if !ok {
		return "", fmt.Errorf("%w: run has signature %s", domain.ErrExecution, v.Type())
	}

	type outcome struct {
		value any
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: panicError(r)}
			}
		}()
		done <- outcome{value: run()}
	}()

	// yaegi cannot preempt compiled code. A script that loops without
	// calling into host or context-aware code keeps its goroutine after
	// cancellation; only the caller is released here. Out-of-process
	// executors are the way to bound such scripts.
	var res outcome
	select {
	case res = <-done:
	case <-ctx.Done():
		return "", ctx.Err()
	}

	if out := strings.TrimSpace(stdout.String()); out != "" {
		e.logger.Debug("script output", "output", out)
		bridge.Log(ctx, "Information", out)
	}
	if res.err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", res.err
	}

	val, err := protocol.FromAny(res.value)
	if err != nil {
		return "", fmt.Errorf("%w: result: %v", domain.ErrExecution, err)
	}
	return val.Text(), nil
}

// bridgePanic carries a bridge error through the interpreted stack.
type bridgePanic struct{ err error }

func panicError(r any) error {
	switch p := r.(type) {
	case bridgePanic:
		if errors.Is(p.err, context.Canceled) || errors.Is(p.err, context.DeadlineExceeded) {
			return p.err
		}
		return fmt.Errorf("%w: %w", domain.ErrExecution, p.err)
	case interp.Panic:
		return panicError(p.Value)
	case *interp.Panic:
		return panicError(p.Value)
	case error:
		var bp bridgePanic
		if errors.As(p, &bp) {
			return panicError(bp)
		}
		return fmt.Errorf("%w: panic: %v", domain.ErrExecution, p)
	default:
		return fmt.Errorf("%w: panic: %v", domain.ErrExecution, p)
	}
}

func (b bridgePanic) Error() string { return b.err.Error() }
func (b bridgePanic) Unwrap() error { return b.err }

func (e *Executor) exports(ctx context.Context, bridge Bridge) interp.Exports {
	exports := interp.Exports{}
	for _, pkg := range e.packages {
		key := pkg + "/" + pkg[strings.LastIndex(pkg, "/")+1:]
		if syms, ok := stdlib.Symbols[key]; ok {
			exports[key] = syms
		} else {
			e.logger.Warn("unknown sandbox package", "package", pkg)
		}
	}
	exports[script.HostImport+"/host"] = hostSymbols(ctx, bridge)
	return exports
}

func hostSymbols(ctx context.Context, bridge Bridge) map[string]reflect.Value {
	invoke := func(target, method, handle string, out any, args ...any) {
		result, err := bridge.Invoke(ctx, dispatch.Call{Target: target, Method: method, Handle: handle, Args: args})
		if err != nil {
			panic(bridgePanic{err: err})
		}
		if out == nil || result == nil {
			return
		}
		v, err := protocol.FromAny(result)
		if err != nil {
			panic(bridgePanic{err: err})
		}
		if err := v.Decode(out); err != nil {
			panic(bridgePanic{err: fmt.Errorf("decode result of %s.%s: %w", target, method, err)})
		}
	}

	invokeTool := func(server, tool string, args map[string]any) any {
		result, err := bridge.InvokeTool(ctx, server, tool, args)
		if err != nil {
			panic(bridgePanic{err: err})
		}
		return result
	}

	optional := func(args map[string]any, key string, v any) {
		if v == nil {
			return
		}
		if rv := reflect.ValueOf(v); rv.IsZero() {
			return
		}
		args[key] = v
	}

	logf := func(level, message string) {
		bridge.Log(ctx, level, message)
	}

	return map[string]reflect.Value{
		"Invoke":     reflect.ValueOf(invoke),
		"InvokeTool": reflect.ValueOf(invokeTool),
		"Optional":   reflect.ValueOf(optional),
		"Log":        reflect.ValueOf(logf),
	}
}
