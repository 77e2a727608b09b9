package memory_test

import (
	"context"
	"testing"

	"github.com/aretw0/ason/pkg/adapters/memory"
	"github.com/aretw0/ason/pkg/domain"
	"github.com/aretw0/ason/pkg/ports"
	"github.com/aretw0/ason/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirectory_Contract(t *testing.T) {
	ports.RunSessionDirectoryContract(t, memory.NewDirectory())
}

func TestLoopback_ExecRoundTrip(t *testing.T) {
	ctx := context.Background()
	l := memory.NewLoopback()

	assert.ErrorIs(t, l.Send(ctx, "{}"), domain.ErrTransportNotStarted)
	require.NoError(t, l.Start(ctx))

	line, err := protocol.Encode(protocol.Exec{ID: "1", Code: `return 40 + 2`})
	require.NoError(t, err)
	require.NoError(t, l.Send(ctx, string(line)))

	got := <-l.Lines()
	msg, err := protocol.Decode([]byte(got))
	require.NoError(t, err)
	res, ok := msg.(protocol.ExecResult)
	require.True(t, ok)
	assert.Equal(t, "1", res.ID)
	require.NotNil(t, res.Result)
	assert.Equal(t, "42", res.Result.Text())

	require.NoError(t, l.Stop(ctx))
	_, open := <-l.Lines()
	assert.False(t, open)
	assert.Equal(t, "transport stopped", l.CloseReason())
	assert.ErrorIs(t, l.Send(ctx, string(line)), domain.ErrTransportNotStarted)
}
