package ason_test

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/ason"
	"github.com/aretw0/ason/internal/logging"
	"github.com/aretw0/ason/pkg/adapters/memory"
	"github.com/aretw0/ason/pkg/capability"
	"github.com/aretw0/ason/pkg/dispatch"
	"github.com/aretw0/ason/pkg/domain"
	"github.com/aretw0/ason/pkg/operator"
	"github.com/aretw0/ason/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// replies answers prompts in order and records them.
type replies struct {
	mu      sync.Mutex
	answers []string
	prompts []ports.Prompt
}

func newReplies(answers ...string) *replies { return &replies{answers: answers} }

func (r *replies) Generate(ctx context.Context, p ports.Prompt) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prompts = append(r.prompts, p)
	if len(r.answers) == 0 {
		return "", errors.New("no more answers")
	}
	a := r.answers[0]
	r.answers = r.answers[1:]
	return a, nil
}

func (r *replies) Prompts() []ports.Prompt {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ports.Prompt(nil), r.prompts...)
}

type salesView struct {
	totals map[string]float64
}

func salesApp(tree *operator.Tree) []*capability.Type {
	return []*capability.Type{
		capability.Declare("MainWindow", "Main application window").
			Method("OpenSales", func(ctx context.Context, n *operator.Node) (*operator.Node, error) {
				return n.Open(ctx, "SalesView", "", func(ctx context.Context) error {
					tree.Attach(n, "SalesView", "", &salesView{totals: map[string]float64{"north": 12.5, "south": 3}})
					return nil
				})
			}, capability.Opens("SalesView"), capability.Describe("Shows the sales view")),
		capability.Declare("SalesView", "Sales figures per region").
			Method("Total", func(n *operator.Node, region string) float64 {
				return n.Object().(*salesView).totals[region]
			}, capability.Params("region")),
	}
}

func newClient(t *testing.T, gen ports.Generator, opts ...ason.Option) (*ason.Client, *logging.Trail) {
	t.Helper()
	trail := logging.NewTrail(slog.LevelDebug)
	tree := operator.NewTree("MainWindow", struct{}{}, operator.WithReloadTimeout(time.Second))
	opts = append([]ason.Option{
		ason.WithCapabilities(salesApp(tree)...),
		ason.WithLogger(slog.New(trail)),
	}, opts...)
	c, err := ason.New(tree, gen, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close(context.Background()) })
	return c, trail
}

func TestClient_ComputeAndExplain(t *testing.T) {
	explainer := newReplies("The answer is 5.")
	c, _ := newClient(t, newReplies("```go\nreturn 2 + 3\n```"), ason.WithExplainer(explainer))

	out, err := c.Send(context.Background(), "Compute 2+3")
	require.NoError(t, err)
	assert.Contains(t, out, "5")

	prompts := explainer.Prompts()
	require.Len(t, prompts, 1)
	assert.Contains(t, prompts[0].Input, "<task>\nCompute 2+3\n</task>")
	assert.Contains(t, prompts[0].Input, "<result>\n5\n</result>")
}

func TestClient_ValidationFailureIsRepaired(t *testing.T) {
	gen := newReplies(`exec.Command("rm", "-rf", "/")`, "return 2")
	c, trail := newClient(t, gen)

	out, err := c.Send(context.Background(), "Do something")
	require.NoError(t, err)
	assert.Contains(t, out, "2")
	assert.True(t, trail.Contains("Validation failed"), trail.String())

	prompts := gen.Prompts()
	require.Len(t, prompts, 2)
	assert.Contains(t, prompts[1].Input, "Forbidden usage detected")
}

func TestClient_ExecutionErrorIsRepaired(t *testing.T) {
	gen := newReplies(`panic("kaput")`, "return 7")
	c, trail := newClient(t, gen)

	out, err := c.Send(context.Background(), "Seven")
	require.NoError(t, err)
	assert.Contains(t, out, "7")
	assert.True(t, trail.Contains("Execution error"), trail.String())
}

func TestClient_BlankExplanationFallsBackToRaw(t *testing.T) {
	c, _ := newClient(t, newReplies("return 41 + 1"), ason.WithExplainer(newReplies("   ")))

	out, err := c.Send(context.Background(), "Forty-two")
	require.NoError(t, err)
	assert.Equal(t, "42", out)
}

func TestClient_DrivesOperators(t *testing.T) {
	gen := newReplies(`return Root.OpenSales().Total("north")`)
	c, _ := newClient(t, gen)

	out, err := c.Send(context.Background(), "North total")
	require.NoError(t, err)
	assert.Equal(t, "12.5", out)

	prompts := gen.Prompts()
	require.Len(t, prompts, 1)
	assert.Contains(t, prompts[0].Instructions, "func (SalesView) Total(region string) float64")
	assert.Contains(t, prompts[0].Instructions, "<api>")
}

func TestClient_ImpossibleTask(t *testing.T) {
	c, _ := newClient(t, newReplies("Cannot open the printer dialog."))

	out, err := c.Send(context.Background(), "Print it")
	require.NoError(t, err)
	assert.Equal(t, "Cannot open the printer dialog.", out)
}

func TestClient_CancelledContext(t *testing.T) {
	gen := newReplies("return 1")
	c, _ := newClient(t, gen)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Send(ctx, "One")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, gen.Prompts())
}

func TestClient_InvokeHookVeto(t *testing.T) {
	hook := func(ctx context.Context, call dispatch.Call) error {
		if call.Method == "OpenSales" {
			return errors.New("not now")
		}
		return nil
	}
	gen := newReplies(`return Root.OpenSales().Total("north")`)
	c, _ := newClient(t, gen, ason.WithInvokeHook(hook))

	out, err := c.Send(context.Background(), "North total")
	require.NoError(t, err)
	assert.Equal(t, domain.ErrInvocationCancelled.Error(), out)
	assert.Len(t, gen.Prompts(), 1)
}

func TestClient_ExecuteScriptOverTransport(t *testing.T) {
	c, trail := newClient(t, newReplies(), ason.WithTransport(memory.NewLoopback()))

	out, err := c.ExecuteScript(context.Background(), `return Root.OpenSales().Total("south")`, true)
	require.NoError(t, err)
	assert.Equal(t, "3", out)

	_, err = c.ExecuteScript(context.Background(), `os.Exit(1)`, true)
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = c.ExecuteScript(context.Background(), `panic("nope")`, false)
	assert.ErrorIs(t, err, domain.ErrExecution)
	assert.True(t, trail.Contains("Direct script execution error"))
}

func TestClient_SurfaceBindsRoot(t *testing.T) {
	c, _ := newClient(t, newReplies())

	assert.Contains(t, c.Prelude(), `var Root = MainWindow{handle: "MainWindow"}`)
	assert.True(t, strings.HasSuffix(strings.TrimSpace(c.Prelude()), "//ason:body"))
	assert.Contains(t, c.Signatures(), "type SalesView")
	assert.Contains(t, ason.ScriptInstructions(c.Signatures()), "The root object is the variable Root")
}

func TestNew_Validation(t *testing.T) {
	tree := operator.NewTree("MainWindow", nil)
	gen := newReplies()

	_, err := ason.New(nil, gen)
	assert.Error(t, err)
	_, err = ason.New(tree, nil)
	assert.Error(t, err)
	_, err = ason.New(tree, gen, ason.WithMaxAttempts(-1))
	assert.Error(t, err)
	_, err = ason.New(tree, gen, ason.WithMode(domain.ExecutionMode(9)))
	assert.Error(t, err)
}

func TestDefaultImage(t *testing.T) {
	assert.True(t, strings.HasPrefix(ason.DefaultImage(), ason.ImageRepository+":"))
	assert.NotContains(t, ason.DefaultImage(), "\n")
}
