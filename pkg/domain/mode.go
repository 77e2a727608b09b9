package domain

import (
	"fmt"
	"strings"
)

// ExecutionMode selects where scripts are interpreted.
type ExecutionMode int

const (
	// ModeInProcess interprets scripts inside the host process.
	ModeInProcess ExecutionMode = iota
	// ModeProcess runs the executor as a child process speaking the stdio protocol.
	ModeProcess
	// ModeContainer runs the executor inside a container with the same protocol.
	ModeContainer
)

func (m ExecutionMode) String() string {
	switch m {
	case ModeInProcess:
		return "inProcess"
	case ModeProcess:
		return "process"
	case ModeContainer:
		return "container"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseExecutionMode accepts the names produced by String, case-insensitively,
// plus a few aliases used on the command line.
func ParseExecutionMode(s string) (ExecutionMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "inprocess", "in-process", "local":
		return ModeInProcess, nil
	case "process", "externalprocess", "external":
		return ModeProcess, nil
	case "container", "docker":
		return ModeContainer, nil
	default:
		return 0, fmt.Errorf("unknown execution mode %q", s)
	}
}

func (m ExecutionMode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (m *ExecutionMode) UnmarshalText(text []byte) error {
	parsed, err := ParseExecutionMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
