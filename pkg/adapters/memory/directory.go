package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/aretw0/ason/pkg/domain"
	"github.com/aretw0/ason/pkg/ports"
)

// Directory implements ports.SessionDirectory in memory.
// Safe for concurrent use.
type Directory struct {
	data map[string]ports.SessionInfo
	mu   sync.RWMutex
}

// NewDirectory creates an empty directory.
func NewDirectory() *Directory {
	return &Directory{
		data: make(map[string]ports.SessionInfo),
	}
}

func (d *Directory) Register(ctx context.Context, info ports.SessionInfo) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.data[info.ID]; ok {
		return domain.ErrSessionExists
	}
	d.data[info.ID] = info
	return nil
}

func (d *Directory) Touch(ctx context.Context, id string, at time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	info, ok := d.data[id]
	if !ok {
		return domain.ErrSessionNotFound
	}
	info.LastActivity = at
	d.data[id] = info
	return nil
}

func (d *Directory) Get(ctx context.Context, id string) (ports.SessionInfo, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	info, ok := d.data[id]
	if !ok {
		return ports.SessionInfo{}, domain.ErrSessionNotFound
	}
	return info, nil
}

func (d *Directory) Remove(ctx context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.data, id)
	return nil
}

// List returns sessions ordered by start time.
func (d *Directory) List(ctx context.Context) ([]ports.SessionInfo, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	sessions := make([]ports.SessionInfo, 0, len(d.data))
	for _, info := range d.data {
		sessions = append(sessions, info)
	}
	sort.Slice(sessions, func(i, j int) bool {
		if sessions[i].StartedAt.Equal(sessions[j].StartedAt) {
			return sessions[i].ID < sessions[j].ID
		}
		return sessions[i].StartedAt.Before(sessions[j].StartedAt)
	})
	return sessions, nil
}
