package ason

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aretw0/ason/internal/logging"
	"github.com/aretw0/ason/pkg/adapters/process"
	"github.com/aretw0/ason/pkg/adapters/remote"
	"github.com/aretw0/ason/pkg/capability"
	"github.com/aretw0/ason/pkg/dispatch"
	"github.com/aretw0/ason/pkg/domain"
	"github.com/aretw0/ason/pkg/operator"
	"github.com/aretw0/ason/pkg/ports"
	"github.com/aretw0/ason/pkg/repair"
	"github.com/aretw0/ason/pkg/runner"
	"go.opentelemetry.io/otel/trace"
)

// ImageRepository is where the executor container image is published.
const ImageRepository = "ghcr.io/aretw0/ason-executor"

// RootVar is the script variable bound to the root operator.
const RootVar = "Root"

// DefaultImage returns the executor image matching this release.
func DefaultImage() string {
	return ImageRepository + ":" + strings.TrimSpace(Version)
}

type toolSet struct {
	server string
	tools  []domain.ToolDescriptor
}

// Client is the high-level entry point: it turns natural-language tasks into
// scripts, runs them against the operator tree and reports the result.
type Client struct {
	tree       *operator.Tree
	registry   *capability.Registry
	tools      *dispatch.ToolInvoker
	dispatcher *dispatch.Dispatcher
	runner     *runner.Client
	loop       *repair.Loop
	validator  ports.Validator
	explainer  *repair.Explainer
	logger     *slog.Logger

	mode         domain.ExecutionMode
	remoteURL    string
	image        string
	runtime      string
	executorPath string
	transport    ports.Transport
	maxAttempts  int
	denylist     []string
	explainGen   ports.Generator
	scheduler    ports.Scheduler
	types        []*capability.Type
	toolSets     []toolSet
	hook         runner.InvokeHook
	tracer       trace.Tracer
}

// Option defines a functional option for configuring the Client.
type Option func(*Client)

// WithMode selects where scripts run. Defaults to domain.ModeInProcess.
func WithMode(mode domain.ExecutionMode) Option {
	return func(c *Client) {
		c.mode = mode
	}
}

// WithRemote runs scripts through the hub at url; the mode is then chosen by
// the hub session.
func WithRemote(url string) Option {
	return func(c *Client) {
		c.remoteURL = url
	}
}

// WithContainerImage overrides the executor image used by ModeContainer.
func WithContainerImage(image string) Option {
	return func(c *Client) {
		c.image = image
	}
}

// WithContainerRuntime overrides the container CLI (default docker).
func WithContainerRuntime(runtime string) Option {
	return func(c *Client) {
		c.runtime = runtime
	}
}

// WithExecutorPath points ModeProcess at a specific executor binary.
func WithExecutorPath(path string) Option {
	return func(c *Client) {
		c.executorPath = path
	}
}

// WithTransport bypasses mode selection and uses t for every script.
func WithTransport(t ports.Transport) Option {
	return func(c *Client) {
		c.transport = t
	}
}

// WithMaxAttempts sets the number of repairs after the first attempt.
func WithMaxAttempts(n int) Option {
	return func(c *Client) {
		c.maxAttempts = n
	}
}

// WithDenylist replaces the default forbidden patterns.
func WithDenylist(patterns ...string) Option {
	return func(c *Client) {
		c.denylist = patterns
	}
}

// WithExplainer summarizes raw results with gen before returning them.
func WithExplainer(gen ports.Generator) Option {
	return func(c *Client) {
		c.explainGen = gen
	}
}

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithScheduler runs operator methods on a captured execution context.
func WithScheduler(s ports.Scheduler) Option {
	return func(c *Client) {
		c.scheduler = s
	}
}

// WithCapabilities registers operator types.
func WithCapabilities(types ...*capability.Type) Option {
	return func(c *Client) {
		c.types = append(c.types, types...)
	}
}

// WithToolSet declares the tools of an external server up front. The server
// still needs a client, see Client.RegisterToolClient.
func WithToolSet(server string, tools []domain.ToolDescriptor) Option {
	return func(c *Client) {
		c.toolSets = append(c.toolSets, toolSet{server: server, tools: tools})
	}
}

// WithInvokeHook lets the host inspect or veto every operator call.
func WithInvokeHook(h runner.InvokeHook) Option {
	return func(c *Client) {
		c.hook = h
	}
}

// WithTracer records repair attempts as spans.
func WithTracer(t trace.Tracer) Option {
	return func(c *Client) {
		c.tracer = t
	}
}

// New wires a Client around the live operator tree and a script generator.
func New(tree *operator.Tree, gen ports.Generator, opts ...Option) (*Client, error) {
	if tree == nil {
		return nil, errors.New("operator tree is required")
	}
	if gen == nil {
		return nil, errors.New("generator is required")
	}

	c := &Client{
		tree:        tree,
		logger:      logging.NewNop(),
		maxAttempts: repair.DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.maxAttempts < 0 {
		return nil, fmt.Errorf("max attempts must not be negative, got %d", c.maxAttempts)
	}

	c.registry = capability.NewRegistry(capability.WithLogger(c.logger))
	if err := c.registry.Register(c.types...); err != nil {
		return nil, err
	}
	for _, ts := range c.toolSets {
		if err := c.registry.RegisterToolSet(ts.server, ts.tools); err != nil {
			return nil, err
		}
	}

	c.tools = dispatch.NewToolInvoker(c.logger)
	dispatchOpts := []dispatch.Option{dispatch.WithToolInvoker(c.tools), dispatch.WithLogger(c.logger)}
	if c.scheduler != nil {
		dispatchOpts = append(dispatchOpts, dispatch.WithScheduler(c.scheduler))
	}
	c.dispatcher = dispatch.New(tree, c.registry, dispatchOpts...)

	transport, err := c.newTransport()
	if err != nil {
		return nil, err
	}
	runnerOpts := []runner.Option{runner.WithLogger(c.logger)}
	if transport != nil {
		runnerOpts = append(runnerOpts, runner.WithTransport(transport))
	}
	if c.hook != nil {
		runnerOpts = append(runnerOpts, runner.WithInvokeHook(c.hook))
	}
	c.runner = runner.New(c.dispatcher, runnerOpts...)

	c.validator = repair.NewKeywordValidator(c.denylist)
	loopOpts := []repair.Option{repair.WithValidator(c.validator), repair.WithLogger(c.logger)}
	if c.tracer != nil {
		loopOpts = append(loopOpts, repair.WithTracer(c.tracer))
	}
	c.loop = repair.New(gen, c.runner, loopOpts...)

	if c.explainGen != nil {
		c.explainer = repair.NewExplainer(c.explainGen, c.logger)
	}
	return c, nil
}

func (c *Client) newTransport() (ports.Transport, error) {
	if c.transport != nil {
		return c.transport, nil
	}

	image := c.image
	if c.mode == domain.ModeContainer && image == "" {
		image = DefaultImage()
	}

	if c.remoteURL != "" {
		return remote.NewTransport(c.remoteURL, c.mode,
			remote.WithImage(image),
			remote.WithTransportLogger(c.logger),
		), nil
	}

	switch c.mode {
	case domain.ModeInProcess:
		return nil, nil
	case domain.ModeProcess, domain.ModeContainer:
		cfg := process.Config{
			Mode:         c.mode,
			ExecutorPath: c.executorPath,
			Runtime:      c.runtime,
			Image:        image,
		}
		if _, _, err := cfg.Command(); err != nil {
			return nil, err
		}
		return process.New(cfg, process.WithLogger(c.logger)), nil
	default:
		return nil, fmt.Errorf("unsupported execution mode %s", c.mode)
	}
}

// surface regenerates the artifacts when a capability source changed.
func (c *Client) surface() capability.Artifacts {
	extra := ""
	root := c.tree.Root()
	if _, ok := c.registry.Type(root.Kind()); ok {
		extra = fmt.Sprintf("var %s = %s{handle: %q}", RootVar, root.Kind(), root.Handle())
	}
	return c.registry.RebuildIfDirty(extra)
}

// Signatures returns the listing handed to the generator.
func (c *Client) Signatures() string { return c.surface().Signatures }

// Prelude returns the declarations prepended to every script.
func (c *Client) Prelude() string { return c.surface().Prelude }

// Registry exposes the capability registry, e.g. to add types after New.
func (c *Client) Registry() *capability.Registry { return c.registry }

// Send performs task: a script is generated, validated, executed and repaired
// until it succeeds or the attempts run out. A failed run is not an error; its
// message is returned as the reply.
func (c *Client) Send(ctx context.Context, task string) (string, error) {
	art := c.surface()
	c.loop.SetInstructions(ScriptInstructions(art.Signatures))

	outcome, err := c.loop.Run(ctx, task, c.maxAttempts, art.Prelude)
	if err != nil {
		return "", err
	}
	if !outcome.Success {
		c.logger.Warn("task failed", "attempts", outcome.Attempts, "error", outcome.Error)
		return outcome.Error, nil
	}
	if c.explainer == nil {
		return outcome.ResultText(), nil
	}
	return c.explainer.Explain(ctx, task, outcome.ResultText())
}

// ExecuteScript runs a script body directly, without the generator.
func (c *Client) ExecuteScript(ctx context.Context, script string, validate bool) (string, error) {
	if validate {
		if err := c.validator.Validate(script); err != nil {
			return "", err
		}
	}
	art := c.surface()
	if art.Prelude == "" {
		return "", domain.ErrProxiesNotInitialized
	}
	out, err := c.runner.Execute(ctx, art.Prelude+"\n"+script)
	if err != nil {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			c.logger.Error("Direct script execution error", "error", err)
		}
		return "", err
	}
	return out, nil
}

// RegisterToolClient binds an MCP client to server, lists its tools and makes
// them available to scripts.
func (c *Client) RegisterToolClient(ctx context.Context, server string, tc dispatch.ToolClient) error {
	c.tools.Register(server, tc)
	tools, err := c.tools.Describe(ctx, server)
	if err != nil {
		return err
	}
	return c.registry.RegisterToolSet(server, tools)
}

// Close stops the transport and waits for in-flight invocations.
func (c *Client) Close(ctx context.Context) error {
	return c.runner.Close(ctx)
}
