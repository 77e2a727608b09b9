package process_test

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/aretw0/ason/pkg/adapters/process"
	"github.com/aretw0/ason/pkg/dispatch"
	"github.com/aretw0/ason/pkg/domain"
	"github.com/aretw0/ason/pkg/executor"
	"github.com/aretw0/ason/pkg/runner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const helperEnv = "ASON_HELPER_PROCESS"

// TestHelperProcess is not a real test: it is the executor spawned by the
// tests below, running inside the test binary.
func TestHelperProcess(t *testing.T) {
	switch os.Getenv(helperEnv) {
	case "":
		return
	case "executor":
		err := executor.NewServer(executor.LineWriter(os.Stdout)).Serve(context.Background(), os.Stdin)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		os.Exit(0)
	case "crash":
		bufio.NewReader(os.Stdin).ReadString('\n')
		fmt.Fprintln(os.Stderr, "going down")
		os.Exit(3)
	case "stubborn":
		// ignores stdin EOF
		time.Sleep(time.Minute)
		os.Exit(0)
	}
}

func helperConfig(t *testing.T, mode string) process.Config {
	t.Helper()
	self, err := os.Executable()
	require.NoError(t, err)
	return process.Config{
		Mode:         domain.ModeProcess,
		ExecutorPath: self,
		Args:         []string{"-test.run=^TestHelperProcess$"},
		Env:          []string{helperEnv + "=" + mode},
		StopGrace:    200 * time.Millisecond,
	}
}

type echoInvoker struct{}

func (echoInvoker) Invoke(ctx context.Context, call dispatch.Call) (any, error) {
	return call.Method + "!", nil
}

func (echoInvoker) InvokeTool(ctx context.Context, server, tool string, args map[string]any) (any, error) {
	return nil, nil
}

func TestTransport_ExecutesThroughChild(t *testing.T) {
	tr := process.New(helperConfig(t, "executor"))
	c := runner.New(echoInvoker{}, runner.WithTransport(tr))
	defer c.Close(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	got, err := c.Execute(ctx, `return strings.Repeat("ab", 2)`)
	require.NoError(t, err)
	assert.Equal(t, "abab", got)

	got, err = c.Execute(ctx, `var out string
host.Invoke("Root", "Ping", "Root", &out)
return out`)
	require.NoError(t, err)
	assert.Equal(t, "Ping!", got)

	_, err = c.Execute(ctx, `panic("nope")`)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrExecution)
	assert.Contains(t, err.Error(), "nope")
}

func TestTransport_ChildCrashFailsPending(t *testing.T) {
	tr := process.New(helperConfig(t, "crash"))
	c := runner.New(echoInvoker{}, runner.WithTransport(tr))
	defer c.Close(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, err := c.Execute(ctx, "return 1")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrTransportClosed)
	assert.Contains(t, err.Error(), "exit status 3")
	assert.Zero(t, c.Pending())
}

func TestTransport_StopKillsStubbornChild(t *testing.T) {
	tr := process.New(helperConfig(t, "stubborn"))
	require.NoError(t, tr.Start(context.Background()))

	start := time.Now()
	require.NoError(t, tr.Stop(context.Background()))
	assert.Less(t, time.Since(start), 10*time.Second)
	assert.Equal(t, "transport stopped", tr.CloseReason())

	_, open := <-tr.Lines()
	assert.False(t, open)
	assert.ErrorIs(t, tr.Send(context.Background(), "{}"), domain.ErrTransportClosed)
}

func TestTransport_SendBeforeStart(t *testing.T) {
	tr := process.New(helperConfig(t, "executor"))
	assert.ErrorIs(t, tr.Send(context.Background(), "{}"), domain.ErrTransportNotStarted)
	require.NoError(t, tr.Stop(context.Background()))
}

func TestConfig_Command(t *testing.T) {
	name, args, err := process.Config{Mode: domain.ModeContainer, Image: "ason/executor:1", Args: []string{"--network=none"}}.Command()
	require.NoError(t, err)
	assert.Equal(t, "docker", name)
	assert.Equal(t, []string{"run", "--rm", "-i", "--network=none", "ason/executor:1"}, args)

	name, _, err = process.Config{Mode: domain.ModeContainer, Runtime: "podman", Image: "x"}.Command()
	require.NoError(t, err)
	assert.Equal(t, "podman", name)

	_, _, err = process.Config{Mode: domain.ModeContainer}.Command()
	assert.Error(t, err)

	_, _, err = process.Config{Mode: domain.ModeInProcess}.Command()
	assert.Error(t, err)
}

func TestResolveExecutor(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses shell-script stand-ins")
	}
	dir := t.TempDir()
	bin := filepath.Join(dir, "custom-executor")
	require.NoError(t, os.WriteFile(bin, []byte("#!/bin/sh\n"), 0o755))

	got, err := process.ResolveExecutor(bin)
	require.NoError(t, err)
	assert.Equal(t, bin, got)

	_, err = process.ResolveExecutor(filepath.Join(dir, "missing"))
	assert.Error(t, err)

	t.Setenv("PATH", dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, process.ExecutorName), []byte("#!/bin/sh\n"), 0o755))
	got, err = process.ResolveExecutor("")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, process.ExecutorName), got)
}
