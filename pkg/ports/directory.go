package ports

import (
	"context"
	"time"
)

// SessionInfo describes a live remote execution session.
type SessionInfo struct {
	ID           string    `json:"id"`
	Mode         string    `json:"mode"`
	Image        string    `json:"image,omitempty"`
	Node         string    `json:"node,omitempty"`
	StartedAt    time.Time `json:"started_at"`
	LastActivity time.Time `json:"last_activity"`
}

// SessionDirectory records live sessions so that operators (and other hub
// replicas) can observe them.
type SessionDirectory interface {
	// Register records a new session. Returns domain.ErrSessionExists on conflict.
	Register(ctx context.Context, info SessionInfo) error
	// Touch updates the last activity timestamp.
	Touch(ctx context.Context, id string, at time.Time) error
	// Get returns domain.ErrSessionNotFound if the session does not exist.
	Get(ctx context.Context, id string) (SessionInfo, error)
	Remove(ctx context.Context, id string) error
	List(ctx context.Context) ([]SessionInfo, error)
}
