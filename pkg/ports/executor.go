package ports

import "context"

// Executor runs a complete script (prelude plus body) and returns the raw
// result text. An empty string means the script produced no value.
type Executor interface {
	Execute(ctx context.Context, code string) (string, error)
}

// Validator rejects scripts before they are executed.
type Validator interface {
	Validate(script string) error
}
