package ports

import "context"

// Scheduler runs a call on the execution context that owns the live
// application objects (e.g. a UI thread).
type Scheduler interface {
	Run(ctx context.Context, fn func() (any, error)) (any, error)
}
