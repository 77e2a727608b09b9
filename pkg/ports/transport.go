package ports

import "context"

// Transport carries newline-delimited protocol lines between the host and an executor.
type Transport interface {
	// Start establishes the channel. It must be called before Send.
	Start(ctx context.Context) error
	// Send writes one line. Writes are serialized by the transport.
	Send(ctx context.Context, line string) error
	// Lines delivers received lines. It is closed when the transport shuts down.
	Lines() <-chan string
	// CloseReason describes why Lines was closed. Empty while open.
	CloseReason() string
	// Stop tears the channel down. Teardown faults are logged, not returned.
	Stop(ctx context.Context) error
}
