package dispatch_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aretw0/ason/pkg/capability"
	"github.com/aretw0/ason/pkg/dispatch"
	"github.com/aretw0/ason/pkg/domain"
	"github.com/aretw0/ason/pkg/operator"
	"github.com/aretw0/ason/pkg/protocol"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type salesView struct {
	mu     sync.Mutex
	totals map[string]float64
}

func setup(t *testing.T, opts ...dispatch.Option) (*operator.Tree, *dispatch.Dispatcher) {
	t.Helper()
	tree := operator.NewTree("MainWindow", nil, operator.WithReloadTimeout(time.Second))
	reg := capability.NewRegistry()
	require.NoError(t, reg.Register(
		capability.Declare("MainWindow", "").
			Method("OpenSales", func(ctx context.Context, n *operator.Node) (*operator.Node, error) {
				return n.Open(ctx, "SalesView", "", func(ctx context.Context) error {
					tree.Attach(n, "SalesView", "", &salesView{totals: map[string]float64{"north": 10}})
					return nil
				})
			}, capability.Opens("SalesView")),
		capability.Declare("SalesView", "").
			Method("Total", func(n *operator.Node, region string) float64 {
				v := n.Object().(*salesView)
				v.mu.Lock()
				defer v.mu.Unlock()
				return v.totals[region]
			}).
			Method("Set", func(n *operator.Node, region string, amount float64) {
				v := n.Object().(*salesView)
				v.mu.Lock()
				defer v.mu.Unlock()
				v.totals[region] = amount
			}).
			Method("Later", func(n *operator.Node, s string) capability.Deferred[string] {
				return func(ctx context.Context) (string, error) { return "later:" + s, nil }
			}).
			Method("Take", func(n *operator.Node, qty uint8) int { return int(qty) }).
			Method("Boom", func(n *operator.Node) int { panic("kaput") }),
	))
	return tree, dispatch.New(tree, reg, opts...)
}

func TestDispatcher_InvokeNavigationReturnsHandle(t *testing.T) {
	_, d := setup(t)
	ctx := context.Background()

	handle, err := d.Invoke(ctx, dispatch.Call{Target: "MainWindow", Method: "OpenSales", Handle: "MainWindow"})
	require.NoError(t, err)
	assert.Equal(t, "SalesView", handle)

	total, err := d.Invoke(ctx, dispatch.Call{Target: "SalesView", Method: "Total", Handle: "SalesView", Args: []any{protocol.String("north")}})
	require.NoError(t, err)
	assert.Equal(t, 10.0, total)

	_, err = d.Invoke(ctx, dispatch.Call{Method: "Set", Handle: "SalesView", Args: []any{"south", "4.5"}})
	require.NoError(t, err)
	total, err = d.Invoke(ctx, dispatch.Call{Method: "Total", Handle: "SalesView", Args: []any{"south"}})
	require.NoError(t, err)
	assert.Equal(t, 4.5, total)

	later, err := d.Invoke(ctx, dispatch.Call{Method: "Later", Handle: "SalesView", Args: []any{"x"}})
	require.NoError(t, err)
	assert.Equal(t, "later:x", later)
}

func TestDispatcher_Errors(t *testing.T) {
	tree, d := setup(t)
	ctx := context.Background()

	_, err := d.Invoke(ctx, dispatch.Call{Method: "Total"})
	assert.ErrorIs(t, err, domain.ErrDisposed)

	_, err = d.Invoke(ctx, dispatch.Call{Method: "Total", Handle: "Ghost"})
	assert.ErrorIs(t, err, domain.ErrDisposed)

	tree.Attach(nil, "SalesView", "", &salesView{totals: map[string]float64{}})
	_, err = d.Invoke(ctx, dispatch.Call{Method: "Total", Handle: "SalesView"})
	assert.ErrorIs(t, err, domain.ErrMissingMethod)

	_, err = d.Invoke(ctx, dispatch.Call{Method: "Total", Handle: "SalesView", Args: []any{[]any{"a"}}})
	assert.ErrorIs(t, err, domain.ErrExecution)

	_, err = d.Invoke(ctx, dispatch.Call{Method: "Boom", Handle: "SalesView"})
	assert.ErrorIs(t, err, domain.ErrExecution)
	assert.Contains(t, err.Error(), "kaput")
}

func TestDispatcher_UncoercibleArgumentFailsTheCall(t *testing.T) {
	tree, d := setup(t)
	ctx := context.Background()

	var reopened int32
	tree.Resolve(tree.Root(), "SalesView", "", func(ctx context.Context) error {
		atomic.AddInt32(&reopened, 1)
		tree.Attach(tree.Root(), "SalesView", "", &salesView{totals: map[string]float64{}})
		return nil
	})

	tests := []struct {
		name string
		arg  any
		want int
		err  bool
	}{
		{"whole float", 3.0, 3, false},
		{"wire number", protocol.Float(200), 200, false},
		{"fraction", 3.7, 0, true},
		{"overflow", int64(300), 0, true},
		{"negative", -1, 0, true},
		{"not a number", "many", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := d.Invoke(ctx, dispatch.Call{Method: "Take", Handle: "SalesView", Args: []any{tt.arg}})
			if tt.err {
				assert.ErrorIs(t, err, domain.ErrExecution)
				assert.Contains(t, err.Error(), "as uint8")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}
	// the node is reloaded before the mismatch is reported
	assert.Equal(t, int32(len(tests)), atomic.LoadInt32(&reopened))
}

func TestDispatcher_DetachedNodeTimesOut(t *testing.T) {
	tree, d := setup(t)
	tree.Attach(nil, "SalesView", "", &salesView{totals: map[string]float64{}})
	tree.Detach("SalesView", "")

	_, err := d.Invoke(context.Background(), dispatch.Call{Method: "Total", Handle: "SalesView", Args: []any{"x"}})
	assert.ErrorIs(t, err, domain.ErrReloadTimeout)
}

func TestDispatcher_ContextSchedulerSerializesCalls(t *testing.T) {
	sched := dispatch.NewContextScheduler()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sched.Serve(ctx)

	tree := operator.NewTree("Counter", nil)
	var active, maxActive int32
	reg := capability.NewRegistry()
	require.NoError(t, reg.Register(capability.Declare("Counter", "").
		Method("Tick", func(n *operator.Node) int {
			cur := atomic.AddInt32(&active, 1)
			for {
				prev := atomic.LoadInt32(&maxActive)
				if cur <= prev || atomic.CompareAndSwapInt32(&maxActive, prev, cur) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&active, -1)
			return 1
		})))
	d := dispatch.New(tree, reg, dispatch.WithScheduler(sched))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := d.Invoke(ctx, dispatch.Call{Method: "Tick", Handle: "Counter"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), atomic.LoadInt32(&maxActive))

	sched.Close()
	_, err := sched.Run(context.Background(), func() (any, error) { return nil, nil })
	assert.ErrorIs(t, err, dispatch.ErrSchedulerClosed)
}

type fakeToolClient struct {
	result *mcp.CallToolResult
	last   mcp.CallToolRequest
}

func (f *fakeToolClient) ListTools(ctx context.Context, _ mcp.ListToolsRequest) (*mcp.ListToolsResult, error) {
	return &mcp.ListToolsResult{Tools: []mcp.Tool{
		mcp.NewTool("get_orders", mcp.WithDescription("List orders"), mcp.WithNumber("limit", mcp.Required())),
	}}, nil
}

func (f *fakeToolClient) CallTool(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	f.last = req
	return f.result, nil
}

func TestToolInvoker(t *testing.T) {
	ctx := context.Background()
	fake := &fakeToolClient{}
	_, d := setup(t)
	d.Tools().Register("sales-api", fake)

	_, err := d.InvokeTool(ctx, "unknown", "x", nil)
	assert.ErrorIs(t, err, domain.ErrToolServerNotFound)

	fake.result = &mcp.CallToolResult{StructuredContent: map[string]any{"count": 3}, Content: []mcp.Content{mcp.NewTextContent("ignored")}}
	out, err := d.InvokeTool(ctx, "sales-api", "get_orders", map[string]any{"limit": 2})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"count": 3}, out)
	assert.Equal(t, "get_orders", fake.last.Params.Name)

	fake.result = mcp.NewToolResultText("three orders")
	out, err = d.InvokeTool(ctx, "sales-api", "get_orders", nil)
	require.NoError(t, err)
	assert.Equal(t, "three orders", out)

	fake.result = &mcp.CallToolResult{Content: []mcp.Content{mcp.NewImageContent("AAAA", "image/png")}}
	out, err = d.InvokeTool(ctx, "sales-api", "get_orders", nil)
	require.NoError(t, err)
	assert.Equal(t, []any{map[string]any{"type": "image", "value": "AAAA"}}, out)

	fake.result = mcp.NewToolResultError("bad input")
	_, err = d.InvokeTool(ctx, "sales-api", "get_orders", nil)
	assert.ErrorContains(t, err, "bad input")

	tools, err := d.Tools().Describe(ctx, "sales-api")
	require.NoError(t, err)
	require.Len(t, tools, 1)
	assert.Equal(t, "get_orders", tools[0].Name)
	assert.Equal(t, "object", tools[0].InputSchema["type"])
	assert.Equal(t, []string{"sales-api"}, d.Tools().Servers())
}
