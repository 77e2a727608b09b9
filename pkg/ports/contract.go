package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/ason/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunSessionDirectoryContract verifies that a SessionDirectory implementation
// adheres to the interface contract.
func RunSessionDirectoryContract(t *testing.T, dir SessionDirectory) {
	ctx := context.Background()
	prefix := "contract-" + time.Now().Format("20060102150405")
	started := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	t.Run("Register and Get", func(t *testing.T) {
		id := prefix + "-get"
		err := dir.Register(ctx, SessionInfo{ID: id, Mode: "process", StartedAt: started, LastActivity: started})
		require.NoError(t, err)

		info, err := dir.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, id, info.ID)
		assert.Equal(t, "process", info.Mode)
		assert.True(t, started.Equal(info.StartedAt))
	})

	t.Run("Register twice", func(t *testing.T) {
		id := prefix + "-dup"
		require.NoError(t, dir.Register(ctx, SessionInfo{ID: id, Mode: "inProcess"}))
		err := dir.Register(ctx, SessionInfo{ID: id, Mode: "inProcess"})
		assert.ErrorIs(t, err, domain.ErrSessionExists)
	})

	t.Run("Get Non-Existent", func(t *testing.T) {
		_, err := dir.Get(ctx, prefix+"-missing")
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("Touch", func(t *testing.T) {
		id := prefix + "-touch"
		require.NoError(t, dir.Register(ctx, SessionInfo{ID: id, StartedAt: started, LastActivity: started}))

		later := started.Add(time.Minute)
		require.NoError(t, dir.Touch(ctx, id, later))

		info, err := dir.Get(ctx, id)
		require.NoError(t, err)
		assert.True(t, later.Equal(info.LastActivity))

		assert.ErrorIs(t, dir.Touch(ctx, prefix+"-nobody", later), domain.ErrSessionNotFound)
	})

	t.Run("Remove and List", func(t *testing.T) {
		id1 := prefix + "-l1"
		id2 := prefix + "-l2"
		require.NoError(t, dir.Register(ctx, SessionInfo{ID: id1}))
		require.NoError(t, dir.Register(ctx, SessionInfo{ID: id2}))

		sessions, err := dir.List(ctx)
		require.NoError(t, err)
		ids := make([]string, 0, len(sessions))
		for _, s := range sessions {
			ids = append(ids, s.ID)
		}
		assert.Contains(t, ids, id1)
		assert.Contains(t, ids, id2)

		require.NoError(t, dir.Remove(ctx, id1))
		_, err = dir.Get(ctx, id1)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)

		require.NoError(t, dir.Remove(ctx, id1), "Remove is idempotent")
	})
}
