package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	slogmulti "github.com/samber/slog-multi"
)

// Format selects the stderr handler encoding.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// New creates a configured application logger.
// It writes to Stderr (stdout is reserved for protocol lines and MCP JSON-RPC).
// It standardizes common keys (e.g., "error" -> "err").
// Extra handlers (e.g. a Trail) receive every record as well.
func New(level slog.Level, extra ...slog.Handler) *slog.Logger {
	return NewWithFormat(os.Stderr, FormatText, level, extra...)
}

// NewWithFormat is New with an explicit destination and encoding.
func NewWithFormat(w io.Writer, format Format, level slog.Level, extra ...slog.Handler) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == "error" {
				a.Key = "err"
			}
			return a
		},
	}

	var primary slog.Handler
	if format == FormatJSON {
		primary = slog.NewJSONHandler(w, opts)
	} else {
		primary = slog.NewTextHandler(w, opts)
	}
	if len(extra) == 0 {
		return slog.New(primary)
	}
	handlers := append([]slog.Handler{primary}, extra...)
	return slog.New(slogmulti.Fanout(handlers...))
}

// NewNop returns a no-op logger.
func NewNop() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ParseLevel maps configuration strings to slog levels. Unknown values fall back to Info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug", "trace":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "critical":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
