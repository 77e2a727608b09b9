package runner

import (
	"log/slog"

	"github.com/aretw0/ason/pkg/ports"
	"github.com/aretw0/ason/pkg/sandbox"
)

// Option defines a functional option for configuring the Client.
type Option func(*Client)

// WithTransport routes execution through t instead of the in-process sandbox.
func WithTransport(t ports.Transport) Option {
	return func(c *Client) {
		c.transport = t
	}
}

// WithSandbox overrides the in-process interpreter.
func WithSandbox(s *sandbox.Executor) Option {
	return func(c *Client) {
		c.sandbox = s
	}
}

// WithInvokeHook installs a hook consulted before every invocation.
func WithInvokeHook(h InvokeHook) Option {
	return func(c *Client) {
		c.hook = h
	}
}

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}
