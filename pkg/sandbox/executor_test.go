package sandbox_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/ason/pkg/dispatch"
	"github.com/aretw0/ason/pkg/domain"
	"github.com/aretw0/ason/pkg/sandbox"
	"github.com/aretw0/ason/pkg/script"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBridge struct {
	mu     sync.Mutex
	calls  []dispatch.Call
	tools  []string
	logs   []string
	result any
	err    error
	block  bool
}

func (b *fakeBridge) Invoke(ctx context.Context, call dispatch.Call) (any, error) {
	b.mu.Lock()
	b.calls = append(b.calls, call)
	block := b.block
	b.mu.Unlock()
	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return b.result, b.err
}

func (b *fakeBridge) InvokeTool(ctx context.Context, server, tool string, args map[string]any) (any, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tools = append(b.tools, server+"/"+tool)
	return map[string]any{"args": args}, b.err
}

func (b *fakeBridge) Log(ctx context.Context, level, message string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.logs = append(b.logs, level+": "+message)
}

const prelude = `type SalesView struct{ handle string }

func (o SalesView) Total(region string) float64 {
	var out float64
	host.Invoke("SalesView", "Total", o.handle, &out, region)
	return out
}

type Point struct {
	X int ` + "`json:\"x\"`" + `
	Y int ` + "`json:\"y\"`" + `
}

func (o SalesView) Move(p Point) Point {
	var out Point
	host.Invoke("SalesView", "Move", o.handle, &out, p)
	return out
}

type CrmMcp struct{}

var Crm CrmMcp

func (CrmMcp) Find(name string, limit int) any {
	args := map[string]any{}
	args["name"] = name
	host.Optional(args, "limit", limit)
	return host.InvokeTool("crm", "find", args)
}

var Root = SalesView{handle: "SalesView"}
` + script.Marker + "\n"

func run(t *testing.T, code string, b *fakeBridge) (string, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return sandbox.New().Run(ctx, code, b)
}

func TestRun_Results(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"int", "return 5;", "5"},
		{"arith", "return 2 + 3", "5"},
		{"string", `return "hello"`, "hello"},
		{"nil", "x := 1\n_ = x", ""},
		{"slice", "return []int{1, 2}", "[1,2]"},
		{"map", `return map[string]any{"a": 1}`, `{"a":1}`},
		{"strings", `return strings.ToUpper("abc")`, "ABC"},
		{"imports", "import \"unicode\"\nreturn unicode.IsUpper('A')", "true"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := run(t, tc.body, &fakeBridge{})
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestRun_Failures(t *testing.T) {
	_, err := run(t, `panic("boom")`, &fakeBridge{})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrExecution)
	assert.Contains(t, err.Error(), "boom")

	_, err = run(t, "return undefinedThing", &fakeBridge{})
	assert.ErrorIs(t, err, domain.ErrExecution)

	_, err = run(t, "import \"os\"\nreturn os.Getpid()", &fakeBridge{})
	assert.Error(t, err)
}

func TestRun_HostInvoke(t *testing.T) {
	b := &fakeBridge{result: 12.5}
	got, err := run(t, prelude+`return Root.Total("north")`, b)
	require.NoError(t, err)
	assert.Equal(t, "12.5", got)

	require.Len(t, b.calls, 1)
	call := b.calls[0]
	assert.Equal(t, "SalesView", call.Target)
	assert.Equal(t, "Total", call.Method)
	assert.Equal(t, "SalesView", call.Handle)
	assert.Equal(t, []any{"north"}, call.Args)
}

func TestRun_HostInvokeStructRoundTrip(t *testing.T) {
	b := &fakeBridge{result: map[string]any{"x": 3, "y": 4}}
	got, err := run(t, prelude+`p := Root.Move(Point{X: 1, Y: 2})
return p.X + p.Y`, b)
	require.NoError(t, err)
	assert.Equal(t, "7", got)
}

func TestRun_HostInvokeError(t *testing.T) {
	b := &fakeBridge{err: domain.ErrInvocationCancelled}
	_, err := run(t, prelude+`return Root.Total("north")`, b)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrExecution)
	assert.Contains(t, err.Error(), "Task was cancelled")
}

func TestRun_ToolsAndLogs(t *testing.T) {
	b := &fakeBridge{}
	got, err := run(t, prelude+`host.Log("Warning", "about to call")
fmt.Println("printed")
return Crm.Find("ada", 0)`, b)
	require.NoError(t, err)
	assert.JSONEq(t, `{"args":{"name":"ada"}}`, got)
	assert.Equal(t, []string{"crm/find"}, b.tools)
	assert.Contains(t, b.logs, "Warning: about to call")
	assert.Contains(t, b.logs, "Information: printed")
}

func TestRun_Cancellation(t *testing.T) {
	b := &fakeBridge{block: true}
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	_, err := sandbox.New().Run(ctx, prelude+`return Root.Total("north")`, b)
	assert.True(t, errors.Is(err, context.Canceled), "got %v", err)

	_, err = sandbox.New().Run(ctx, "return 1", b)
	assert.ErrorIs(t, err, context.Canceled)
}
