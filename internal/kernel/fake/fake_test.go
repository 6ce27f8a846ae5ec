package fake

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/nbverify/internal/kernel"
)

func TestTransportScriptedExecution(t *testing.T) {
	ctx := context.Background()
	tr := New(OK(Stdout("hi\n")))

	id, err := tr.Submit(ctx, "print('hi')")
	require.NoError(t, err)
	assert.Equal(t, "msg-1", id)

	reply, err := tr.Poll(ctx, kernel.Control, 0)
	require.NoError(t, err)
	assert.Equal(t, kernel.MsgExecuteReply, reply.Type)
	assert.Equal(t, id, reply.ParentID)

	var types []kernel.MsgType
	for {
		m, err := tr.Poll(ctx, kernel.Broadcast, 0)
		if err != nil {
			assert.ErrorIs(t, err, kernel.ErrTimeout)
			break
		}
		assert.Equal(t, id, m.ParentID)
		types = append(types, m.Type)
	}
	assert.Equal(t, []kernel.MsgType{kernel.MsgStatus, kernel.MsgStream, kernel.MsgStatus}, types)
	assert.Equal(t, []string{"print('hi')"}, tr.Submitted())
}

func TestTransportInterruptAndStop(t *testing.T) {
	ctx := context.Background()
	tr := New(Hang())

	_, err := tr.Submit(ctx, "while True: pass")
	require.NoError(t, err)

	_, err = tr.Poll(ctx, kernel.Control, 0)
	assert.ErrorIs(t, err, kernel.ErrTimeout)

	require.NoError(t, tr.Interrupt(ctx))
	assert.Equal(t, 1, tr.Interrupts())

	busy, err := tr.Poll(ctx, kernel.Broadcast, 0)
	require.NoError(t, err)
	assert.Equal(t, kernel.MsgStatus, busy.Type)
	errMsg, err := tr.Poll(ctx, kernel.Broadcast, 0)
	require.NoError(t, err)
	assert.Equal(t, "KeyboardInterrupt", errMsg.Content.Ename)

	require.NoError(t, tr.Stop())
	assert.False(t, tr.Alive())
	_, err = tr.Submit(ctx, "1")
	assert.ErrorIs(t, err, kernel.ErrNotAlive)
}

func TestTransportRunsOutOfScripts(t *testing.T) {
	_, err := New().Submit(context.Background(), "1")
	assert.ErrorContains(t, err, "no script")
}
