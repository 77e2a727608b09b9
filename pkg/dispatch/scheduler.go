package dispatch

import (
	"context"
	"errors"
	"sync"
)

// Passthrough runs calls inline on the calling goroutine.
type Passthrough struct{}

func (Passthrough) Run(ctx context.Context, fn func() (any, error)) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return fn()
}

// ErrSchedulerClosed is returned by ContextScheduler.Run after Close.
var ErrSchedulerClosed = errors.New("scheduler closed")

type job struct {
	fn   func() (any, error)
	done chan jobResult
}

type jobResult struct {
	value any
	err   error
}

// ContextScheduler posts calls onto a single execution context: the goroutine
// running Serve. Hosts whose objects are bound to one thread (a UI loop) call
// Serve from that thread; everyone else can call Start.
type ContextScheduler struct {
	jobs      chan job
	closeOnce sync.Once
	closed    chan struct{}
}

// NewContextScheduler creates a scheduler. Nothing runs until Serve or Start.
func NewContextScheduler() *ContextScheduler {
	return &ContextScheduler{
		jobs:   make(chan job),
		closed: make(chan struct{}),
	}
}

// Start runs Serve on a dedicated goroutine.
func (s *ContextScheduler) Start() {
	go s.Serve(context.Background())
}

// Serve drains posted calls on the current goroutine until ctx is done or
// Close is called.
func (s *ContextScheduler) Serve(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.closed:
			return
		case j := <-s.jobs:
			value, err := j.fn()
			j.done <- jobResult{value: value, err: err}
		}
	}
}

// Run posts fn and waits for its result.
func (s *ContextScheduler) Run(ctx context.Context, fn func() (any, error)) (any, error) {
	select {
	case <-s.closed:
		return nil, ErrSchedulerClosed
	default:
	}

	j := job{fn: fn, done: make(chan jobResult, 1)}
	select {
	case s.jobs <- j:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.closed:
		return nil, ErrSchedulerClosed
	}
	select {
	case r := <-j.done:
		return r.value, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops Serve. Calls already posted complete; new ones fail.
func (s *ContextScheduler) Close() {
	s.closeOnce.Do(func() { close(s.closed) })
}
