package runner_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/ason/internal/logging"
	"github.com/aretw0/ason/pkg/adapters/memory"
	"github.com/aretw0/ason/pkg/dispatch"
	"github.com/aretw0/ason/pkg/domain"
	"github.com/aretw0/ason/pkg/protocol"
	"github.com/aretw0/ason/pkg/runner"
	"github.com/aretw0/ason/pkg/script"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

const prelude = `type SalesView struct{ handle string }

func (o SalesView) Total(region string) float64 {
	var out float64
	host.Invoke("SalesView", "Total", o.handle, &out, region)
	return out
}

type CrmMcp struct{}

var Crm CrmMcp

func (CrmMcp) Find(name string) any {
	args := map[string]any{}
	args["name"] = name
	return host.InvokeTool("crm", "find", args)
}

var Root = SalesView{handle: "SalesView"}
` + script.Marker + "\n"

type fakeInvoker struct {
	mu      sync.Mutex
	calls   []dispatch.Call
	release chan struct{}
	aborted chan error
}

func (f *fakeInvoker) Invoke(ctx context.Context, call dispatch.Call) (any, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	release := f.release
	f.mu.Unlock()
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			if f.aborted != nil {
				f.aborted <- ctx.Err()
			}
			return nil, ctx.Err()
		}
	}
	return 12.5, nil
}

func (f *fakeInvoker) InvokeTool(ctx context.Context, server, tool string, args map[string]any) (any, error) {
	return map[string]any{"server": server, "tool": tool, "name": args["name"]}, nil
}

func (f *fakeInvoker) recorded() []dispatch.Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]dispatch.Call(nil), f.calls...)
}

func loopbackClient(t *testing.T, inv runner.Invoker, opts ...runner.Option) (*runner.Client, *memory.Loopback) {
	t.Helper()
	l := memory.NewLoopback()
	c := runner.New(inv, append([]runner.Option{runner.WithTransport(l)}, opts...)...)
	return c, l
}

func TestClient_InProcess(t *testing.T) {
	defer goleak.VerifyNone(t)
	inv := &fakeInvoker{}
	c := runner.New(inv)

	got, err := c.Execute(context.Background(), prelude+`return Root.Total("north")`)
	require.NoError(t, err)
	assert.Equal(t, "12.5", got)

	calls := inv.recorded()
	require.Len(t, calls, 1)
	assert.Equal(t, []any{"north"}, calls[0].Args)
	require.NoError(t, c.Close(context.Background()))
}

func TestClient_InvokeHookVeto(t *testing.T) {
	inv := &fakeInvoker{}
	hook := func(ctx context.Context, call dispatch.Call) error {
		if call.Method == "Total" {
			return errors.New("user declined")
		}
		return nil
	}

	for _, mode := range []string{"inProcess", "loopback"} {
		t.Run(mode, func(t *testing.T) {
			var c *runner.Client
			if mode == "inProcess" {
				c = runner.New(inv, runner.WithInvokeHook(hook))
			} else {
				c, _ = loopbackClient(t, inv, runner.WithInvokeHook(hook))
			}
			defer c.Close(context.Background())

			_, err := c.Execute(context.Background(), prelude+`return Root.Total("north")`)
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrExecution)
			assert.Contains(t, err.Error(), domain.ErrInvocationCancelled.Error())

			got, err := c.Execute(context.Background(), prelude+`return Crm.Find("ada")`)
			require.NoError(t, err)
			assert.JSONEq(t, `{"server":"crm","tool":"find","name":"ada"}`, got)
		})
	}
	assert.Empty(t, inv.recorded())
}

func TestClient_LoopbackInvoke(t *testing.T) {
	defer goleak.VerifyNone(t)
	inv := &fakeInvoker{}
	c, _ := loopbackClient(t, inv)

	got, err := c.Execute(context.Background(), prelude+`return Root.Total("north")`)
	require.NoError(t, err)
	assert.Equal(t, "12.5", got)

	calls := inv.recorded()
	require.Len(t, calls, 1)
	assert.Equal(t, "SalesView", calls[0].Target)
	assert.Equal(t, "SalesView", calls[0].Handle)
	require.Len(t, calls[0].Args, 1)
	assert.Equal(t, protocol.String("north"), calls[0].Args[0])

	require.NoError(t, c.Close(context.Background()))
	assert.Zero(t, c.Pending())
}

func TestClient_ConcurrentExecutions(t *testing.T) {
	defer goleak.VerifyNone(t)
	c, _ := loopbackClient(t, &fakeInvoker{})

	var wg sync.WaitGroup
	results := make([]string, 20)
	errs := make([]error, 20)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.Execute(context.Background(), fmt.Sprintf("return %d * 2", i))
		}(i)
	}
	wg.Wait()

	for i := range results {
		require.NoError(t, errs[i])
		assert.Equal(t, fmt.Sprint(i*2), results[i])
	}
	require.NoError(t, c.Close(context.Background()))
}

func TestClient_TransportFailureFailsPending(t *testing.T) {
	defer goleak.VerifyNone(t)
	inv := &fakeInvoker{release: make(chan struct{})}
	c, l := loopbackClient(t, inv)

	errCh := make(chan error, 1)
	go func() {
		_, err := c.Execute(context.Background(), prelude+`return Root.Total("north")`)
		errCh <- err
	}()

	require.Eventually(t, func() bool { return len(inv.recorded()) == 1 }, 5*time.Second, 5*time.Millisecond)
	l.Fail("executor crashed")

	err := <-errCh
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrTransportClosed)
	assert.Contains(t, err.Error(), "executor crashed")
	assert.Zero(t, c.Pending())

	close(inv.release)
	require.NoError(t, c.Close(context.Background()))
}

func TestClient_ExecuteCancelled(t *testing.T) {
	defer goleak.VerifyNone(t)
	inv := &fakeInvoker{release: make(chan struct{})}
	c, _ := loopbackClient(t, inv)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.Execute(ctx, prelude+`return Root.Total("north")`)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, c.Pending())

	close(inv.release)
	require.NoError(t, c.Close(context.Background()))
}

func TestClient_ExecuteCancelStopsHostCall(t *testing.T) {
	defer goleak.VerifyNone(t)
	inv := &fakeInvoker{release: make(chan struct{}), aborted: make(chan error, 1)}
	c, _ := loopbackClient(t, inv)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := c.Execute(ctx, prelude+`return Root.Total("north")`)
		errCh <- err
	}()

	require.Eventually(t, func() bool { return len(inv.recorded()) == 1 }, 5*time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)

	select {
	case err := <-inv.aborted:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("host call kept running after its execution was cancelled")
	}

	close(inv.release)
	require.NoError(t, c.Close(context.Background()))
}

func TestClient_ForwardsScriptLogs(t *testing.T) {
	trail := logging.NewTrail(slog.LevelDebug)
	logger := slog.New(trail)
	c, _ := loopbackClient(t, &fakeInvoker{}, runner.WithLogger(logger))
	defer c.Close(context.Background())

	_, err := c.Execute(context.Background(), `host.Log("Warning", "disk almost full")
fmt.Println("hello from script")
return 1`)
	require.NoError(t, err)
	assert.True(t, trail.Contains("disk almost full"), trail.String())
	assert.True(t, trail.Contains("hello from script"), trail.String())
}

func TestNewID(t *testing.T) {
	id := runner.NewID()
	assert.Len(t, id, 32)
	assert.NotContains(t, id, "-")
	assert.NotEqual(t, id, runner.NewID())
}
