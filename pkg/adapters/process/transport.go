package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/aretw0/ason/internal/logging"
	"github.com/aretw0/ason/pkg/domain"
)

// MaxLineSize bounds a single line read from the executor.
const MaxLineSize = 1 << 20

// Option configures the Transport.
type Option func(*Transport)

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Transport) {
		t.logger = logger
	}
}

// Transport implements ports.Transport over the stdio of a child process,
// either the executor binary or a container running it.
type Transport struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	cmd      *exec.Cmd
	stdin    io.WriteCloser
	lines    chan string
	exited   chan struct{}
	reason   string
	stopping bool

	wmu sync.Mutex
}

// New creates a Transport. Nothing is spawned until Start.
func New(cfg Config, opts ...Option) *Transport {
	if cfg.StopGrace <= 0 {
		cfg.StopGrace = DefaultStopGrace
	}
	t := &Transport{cfg: cfg, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start spawns the child. Calling it while the child runs is a no-op; calling
// it after the child exited spawns a new one.
func (t *Transport) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cmd != nil && !isClosed(t.exited) {
		return nil
	}

	name, args, err := t.cfg.Command()
	if err != nil {
		return err
	}
	cmd := exec.Command(name, args...)
	cmd.Env = append(os.Environ(), t.cfg.Env...)
	setProcessGroup(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("spawn %s: %w", name, err)
	}
	t.logger.Debug("executor started", "command", name, "pid", cmd.Process.Pid, "mode", t.cfg.Mode)

	t.cmd = cmd
	t.stdin = stdin
	t.lines = make(chan string, 16)
	t.exited = make(chan struct{})
	t.reason = ""
	t.stopping = false

	var readers sync.WaitGroup
	readers.Add(2)
	var scanErr error
	go func() {
		defer readers.Done()
		scanErr = t.readStdout(stdout, t.lines)
		if scanErr != nil {
			// the child can no longer be heard; make sure it dies
			_ = killTree(cmd)
		}
	}()
	go func() {
		defer readers.Done()
		t.readStderr(stderr)
	}()
	go t.wait(cmd, &readers, &scanErr, t.lines, t.exited)
	return nil
}

func (t *Transport) readStdout(r io.Reader, lines chan<- string) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), MaxLineSize)
	for scanner.Scan() {
		lines <- scanner.Text()
	}
	return scanner.Err()
}

func (t *Transport) readStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), MaxLineSize)
	for scanner.Scan() {
		t.logger.Debug("executor stderr", "line", scanner.Text())
	}
}

func (t *Transport) wait(cmd *exec.Cmd, readers *sync.WaitGroup, scanErr *error, lines chan string, exited chan struct{}) {
	readers.Wait()
	waitErr := cmd.Wait()

	t.mu.Lock()
	switch {
	case t.stopping:
		t.reason = "transport stopped"
	case *scanErr != nil:
		t.reason = fmt.Sprintf("executor output unreadable: %v", *scanErr)
	case waitErr != nil:
		t.reason = fmt.Sprintf("executor exited: %v", waitErr)
	default:
		t.reason = "executor exited"
	}
	reason := t.reason
	t.mu.Unlock()

	t.logger.Debug("executor gone", "reason", reason)
	close(lines)
	close(exited)
}

func (t *Transport) Send(ctx context.Context, line string) error {
	t.mu.Lock()
	stdin, exited := t.stdin, t.exited
	t.mu.Unlock()
	if stdin == nil {
		return domain.ErrTransportNotStarted
	}
	if isClosed(exited) {
		return domain.ErrTransportClosed
	}

	t.wmu.Lock()
	defer t.wmu.Unlock()
	if _, err := io.WriteString(stdin, line+"\n"); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrTransportClosed, err)
	}
	return nil
}

func (t *Transport) Lines() <-chan string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lines
}

func (t *Transport) CloseReason() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reason
}

// Stop closes the child's stdin and waits for it to exit. After the grace
// period, or when ctx is done, the whole process tree is killed.
func (t *Transport) Stop(ctx context.Context) error {
	t.mu.Lock()
	cmd, stdin, exited := t.cmd, t.stdin, t.exited
	if cmd == nil {
		t.mu.Unlock()
		return nil
	}
	t.stopping = true
	t.mu.Unlock()

	if err := stdin.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		t.logger.Debug("closing executor stdin", "error", err)
	}

	timer := time.NewTimer(t.cfg.StopGrace)
	defer timer.Stop()
	select {
	case <-exited:
		return nil
	case <-timer.C:
	case <-ctx.Done():
	}

	t.logger.Warn("executor did not exit, killing process tree", "pid", cmd.Process.Pid)
	if err := killTree(cmd); err != nil {
		t.logger.Warn("kill executor", "error", err)
	}
	<-exited
	return nil
}

func isClosed(ch chan struct{}) bool {
	if ch == nil {
		return true
	}
	select {
	case <-ch:
		return true
	default:
		return false
	}
}
