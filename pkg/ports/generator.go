package ports

import "context"

// Prompt is a single request to a Generator.
type Prompt struct {
	// Instructions is the system-level guidance (e.g. the capability surface).
	Instructions string
	// Input is the user-level message.
	Input string
}

// Generator produces a text completion for a prompt.
type Generator interface {
	Generate(ctx context.Context, p Prompt) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, p Prompt) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, p Prompt) (string, error) { return f(ctx, p) }
