package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Type is the wire discriminator of a Message.
type Type string

const (
	TypeExec         Type = "exec"
	TypeExecResult   Type = "execResult"
	TypeInvoke       Type = "invoke"
	TypeInvokeResult Type = "invokeResult"
	TypeInvokeMcp    Type = "invokeMcp"
	TypeLog          Type = "log"
)

// DefaultLogLevel is used when a log message does not carry a level.
const DefaultLogLevel = "Information"

// ErrUnknownType is returned by Decode for an unrecognized discriminator.
var ErrUnknownType = errors.New("unknown message type")

// Message is one of Exec, ExecResult, Invoke, InvokeResult, InvokeMcp or Log.
type Message interface {
	Type() Type
	CorrelationID() string
}

// Exec asks the executor to run a script.
type Exec struct {
	ID   string
	Code string
}

// ExecResult answers an Exec. Error is empty on success.
type ExecResult struct {
	ID     string
	Result *Value
	Error  string
}

// Invoke asks the host to call a method on the operator identified by HandleID.
// ExecID names the script execution the call belongs to, when known.
type Invoke struct {
	ID       string
	Target   string
	Method   string
	Args     []Value
	HandleID string
	ExecID   string
}

// InvokeResult answers an Invoke or InvokeMcp. Error is empty on success.
type InvokeResult struct {
	ID     string
	Result *Value
	Error  string
}

// InvokeMcp asks the host to call a tool on an external tool server.
type InvokeMcp struct {
	ID        string
	Server    string
	Tool      string
	Arguments map[string]Value
	ExecID    string
}

// Log forwards a diagnostic line from the executor to the host.
type Log struct {
	ID        string
	Level     string
	Message   string
	Source    string
	Exception string
}

func (Exec) Type() Type         { return TypeExec }
func (ExecResult) Type() Type   { return TypeExecResult }
func (Invoke) Type() Type       { return TypeInvoke }
func (InvokeResult) Type() Type { return TypeInvokeResult }
func (InvokeMcp) Type() Type    { return TypeInvokeMcp }
func (Log) Type() Type          { return TypeLog }

func (m Exec) CorrelationID() string         { return m.ID }
func (m ExecResult) CorrelationID() string   { return m.ID }
func (m Invoke) CorrelationID() string       { return m.ID }
func (m InvokeResult) CorrelationID() string { return m.ID }
func (m InvokeMcp) CorrelationID() string    { return m.ID }
func (m Log) CorrelationID() string          { return m.ID }

// envelope is the flat JSON shape shared by every message kind.
type envelope struct {
	Type      Type             `json:"type"`
	ID        string           `json:"id"`
	Code      string           `json:"code,omitempty"`
	Result    *Value           `json:"result,omitempty"`
	Error     string           `json:"error,omitempty"`
	Target    string           `json:"target,omitempty"`
	Method    string           `json:"method,omitempty"`
	Args      []Value          `json:"args,omitempty"`
	HandleID  string           `json:"handleId,omitempty"`
	ExecID    string           `json:"execId,omitempty"`
	Server    string           `json:"server,omitempty"`
	Tool      string           `json:"tool,omitempty"`
	Arguments map[string]Value `json:"arguments,omitempty"`
	Level     string           `json:"level,omitempty"`
	Message   string           `json:"message,omitempty"`
	Source    string           `json:"source,omitempty"`
	Exception string           `json:"exception,omitempty"`
}

// Encode serializes m as a single JSON line (without the trailing newline).
func Encode(m Message) ([]byte, error) {
	var env envelope
	switch t := m.(type) {
	case Exec:
		env = envelope{Type: TypeExec, ID: t.ID, Code: t.Code}
	case ExecResult:
		env = envelope{Type: TypeExecResult, ID: t.ID, Result: t.Result, Error: t.Error}
	case Invoke:
		env = envelope{Type: TypeInvoke, ID: t.ID, Target: t.Target, Method: t.Method, Args: t.Args, HandleID: t.HandleID, ExecID: t.ExecID}
	case InvokeResult:
		env = envelope{Type: TypeInvokeResult, ID: t.ID, Result: t.Result, Error: t.Error}
	case InvokeMcp:
		env = envelope{Type: TypeInvokeMcp, ID: t.ID, Server: t.Server, Tool: t.Tool, Arguments: t.Arguments, ExecID: t.ExecID}
	case Log:
		level := t.Level
		if level == "" {
			level = DefaultLogLevel
		}
		env = envelope{Type: TypeLog, ID: t.ID, Level: level, Message: t.Message, Source: t.Source, Exception: t.Exception}
	case nil:
		return nil, errors.New("cannot encode nil message")
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownType, m)
	}
	return json.Marshal(env)
}

// Decode parses one JSON line into its concrete message type.
func Decode(line []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(line, &env); err != nil {
		return nil, fmt.Errorf("malformed message: %w", err)
	}
	switch env.Type {
	case TypeExec:
		return Exec{ID: env.ID, Code: env.Code}, nil
	case TypeExecResult:
		return ExecResult{ID: env.ID, Result: env.Result, Error: env.Error}, nil
	case TypeInvoke:
		return Invoke{ID: env.ID, Target: env.Target, Method: env.Method, Args: env.Args, HandleID: env.HandleID, ExecID: env.ExecID}, nil
	case TypeInvokeResult:
		return InvokeResult{ID: env.ID, Result: env.Result, Error: env.Error}, nil
	case TypeInvokeMcp:
		return InvokeMcp{ID: env.ID, Server: env.Server, Tool: env.Tool, Arguments: env.Arguments, ExecID: env.ExecID}, nil
	case TypeLog:
		level := env.Level
		if level == "" {
			level = DefaultLogLevel
		}
		return Log{ID: env.ID, Level: level, Message: env.Message, Source: env.Source, Exception: env.Exception}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
}

// ResultOf wraps a Go value as an optional result payload. A nil input
// yields a nil pointer.
func ResultOf(x any) (*Value, error) {
	if x == nil {
		return nil, nil
	}
	v, err := FromAny(x)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
