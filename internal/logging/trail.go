package logging

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// Trail is a slog.Handler that keeps every record in memory.
// Hosts use it to surface an execution log next to the answer; tests use it
// to assert on what was logged.
type Trail struct {
	mu      *sync.Mutex
	entries *[]string
	level   slog.Leveler
	attrs   []slog.Attr
}

// NewTrail creates an empty trail recording records at or above level.
func NewTrail(level slog.Leveler) *Trail {
	if level == nil {
		level = slog.LevelDebug
	}
	return &Trail{mu: &sync.Mutex{}, entries: &[]string{}, level: level}
}

func (t *Trail) Enabled(_ context.Context, l slog.Level) bool {
	return l >= t.level.Level()
}

func (t *Trail) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", r.Level, r.Message)
	write := func(a slog.Attr) bool {
		fmt.Fprintf(&b, " %s=%v", a.Key, a.Value)
		return true
	}
	for _, a := range t.attrs {
		write(a)
	}
	r.Attrs(write)

	t.mu.Lock()
	*t.entries = append(*t.entries, b.String())
	t.mu.Unlock()
	return nil
}

func (t *Trail) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(t.attrs)+len(attrs))
	merged = append(merged, t.attrs...)
	merged = append(merged, attrs...)
	return &Trail{mu: t.mu, entries: t.entries, level: t.level, attrs: merged}
}

// WithGroup is accepted but flattened; the trail is a human-readable log.
func (t *Trail) WithGroup(string) slog.Handler { return t }

// Entries returns a snapshot of the recorded lines.
func (t *Trail) Entries() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(*t.entries))
	copy(out, *t.entries)
	return out
}

// String joins all entries, one per line.
func (t *Trail) String() string {
	return strings.Join(t.Entries(), "\n")
}

// Contains reports whether any entry contains substr.
func (t *Trail) Contains(substr string) bool {
	for _, e := range t.Entries() {
		if strings.Contains(e, substr) {
			return true
		}
	}
	return false
}
