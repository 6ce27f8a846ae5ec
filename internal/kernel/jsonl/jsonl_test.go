package jsonl

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/roach88/nbverify/internal/engine"
	"github.com/roach88/nbverify/internal/kernel"
	"github.com/roach88/nbverify/internal/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// echoKernel answers every execute request with busy, a stdout chunk
// echoing the code, a reply, and idle. An interrupt produces a
// KeyboardInterrupt error.
func echoKernel(t *testing.T, requests io.Reader, events io.Writer) {
	t.Helper()
	dec := json.NewDecoder(requests)
	enc := json.NewEncoder(events)
	last := ""
	for {
		var req request
		if err := dec.Decode(&req); err != nil {
			return
		}
		var out []map[string]any
		switch req.Op {
		case "execute":
			last = req.MsgID
			out = []map[string]any{
				{"channel": "broadcast", "msg_type": "status", "parent_id": req.MsgID, "content": map[string]any{"execution_state": "busy"}},
				{"channel": "broadcast", "msg_type": "stream", "parent_id": req.MsgID, "content": map[string]any{"name": "stdout", "text": req.Code}},
				{"channel": "broadcast", "msg_type": "display_data", "parent_id": req.MsgID, "content": map[string]any{
					"data":     map[string]any{"text/plain": "x", "application/json": map[string]any{"a": 1}},
					"metadata": map[string]any{},
				}},
				{"channel": "control", "msg_type": "execute_reply", "parent_id": req.MsgID, "content": map[string]any{"status": "ok"}},
				{"channel": "broadcast", "msg_type": "status", "parent_id": req.MsgID, "content": map[string]any{"execution_state": "idle"}},
			}
		case "interrupt":
			out = []map[string]any{
				{"channel": "broadcast", "msg_type": "error", "parent_id": last, "content": map[string]any{"ename": "KeyboardInterrupt", "evalue": "", "traceback": []string{"KeyboardInterrupt"}}},
			}
		}
		for _, ev := range out {
			if err := enc.Encode(ev); err != nil {
				return
			}
		}
	}
}

func newPipeTransport(t *testing.T) *Transport {
	t.Helper()
	return pipeTransport(t, func(requests io.Reader, events io.Writer) {
		echoKernel(t, requests, events)
	})
}

// pipeTransport connects a Transport to peer over in-memory pipes. The
// peer reads requests and writes events until it returns or the pipes
// close.
func pipeTransport(t *testing.T, peer func(requests io.Reader, events io.Writer), opts ...Option) *Transport {
	t.Helper()
	reqR, reqW := io.Pipe()
	evR, evW := io.Pipe()

	done := make(chan struct{})
	go func() {
		defer close(done)
		peer(reqR, evW)
	}()

	n := 0
	opts = append([]Option{WithIDGenerator(func() string {
		n++
		return fmt.Sprintf("req-%d", n)
	})}, opts...)
	tr := New(evR, reqW, opts...)
	t.Cleanup(func() {
		require.NoError(t, tr.Stop())
		_ = evW.Close()
		<-done
	})
	return tr
}

// verboseKernel answers the first execute request with n stdout chunks,
// the reply, and idle, in that order.
func verboseKernel(n int) func(io.Reader, io.Writer) {
	return func(requests io.Reader, events io.Writer) {
		dec := json.NewDecoder(requests)
		enc := json.NewEncoder(events)
		var req request
		if err := dec.Decode(&req); err != nil {
			return
		}
		for i := 0; i < n; i++ {
			ev := map[string]any{"channel": "broadcast", "msg_type": "stream", "parent_id": req.MsgID,
				"content": map[string]any{"name": "stdout", "text": fmt.Sprintf("line %d\n", i)}}
			if err := enc.Encode(ev); err != nil {
				return
			}
		}
		tail := []map[string]any{
			{"channel": "control", "msg_type": "execute_reply", "parent_id": req.MsgID, "content": map[string]any{"status": "ok"}},
			{"channel": "broadcast", "msg_type": "status", "parent_id": req.MsgID, "content": map[string]any{"execution_state": "idle"}},
		}
		for _, ev := range tail {
			if err := enc.Encode(ev); err != nil {
				return
			}
		}
		// Keep reading so later requests never block.
		for dec.Decode(&req) == nil {
		}
	}
}

// deafKernel reads the first request and then stops reading.
func deafKernel(requests io.Reader, _ io.Writer) {
	var req request
	_ = json.NewDecoder(requests).Decode(&req)
}

func TestTransportRoundTrip(t *testing.T) {
	ctx := context.Background()
	tr := newPipeTransport(t)

	id, err := tr.Submit(ctx, "print(1)")
	require.NoError(t, err)
	assert.Equal(t, "req-1", id)

	reply, err := tr.Poll(ctx, kernel.Control, time.Second)
	require.NoError(t, err)
	assert.Equal(t, kernel.MsgExecuteReply, reply.Type)
	assert.Equal(t, kernel.ReplyOK, reply.Content.Status)
	assert.Equal(t, id, reply.ParentID)

	var msgs []kernel.Message
	for i := 0; i < 4; i++ {
		m, err := tr.Poll(ctx, kernel.Broadcast, time.Second)
		require.NoError(t, err)
		msgs = append(msgs, m)
	}
	assert.Equal(t, kernel.StateBusy, msgs[0].Content.ExecutionState)
	assert.Equal(t, "print(1)", msgs[1].Content.Text)
	assert.Equal(t, "x", msgs[2].Content.Data["text/plain"])
	assert.JSONEq(t, `{"a":1}`, msgs[2].Content.Data["application/json"])
	assert.Equal(t, kernel.StateIdle, msgs[3].Content.ExecutionState)

	_, err = tr.Poll(ctx, kernel.Broadcast, 10*time.Millisecond)
	assert.ErrorIs(t, err, kernel.ErrTimeout)
	assert.True(t, tr.Alive())
}

func TestTransportInterruptRequest(t *testing.T) {
	ctx := context.Background()
	tr := newPipeTransport(t)

	_, err := tr.Submit(ctx, "1")
	require.NoError(t, err)
	require.NoError(t, tr.Interrupt(ctx))

	for {
		m, err := tr.Poll(ctx, kernel.Broadcast, time.Second)
		require.NoError(t, err)
		if m.Type == kernel.MsgError {
			assert.Equal(t, "KeyboardInterrupt", m.Content.Ename)
			return
		}
	}
}

func TestTransportReplyNotBlockedByBroadcastBacklog(t *testing.T) {
	const chunks = 3000
	ctx := context.Background()
	tr := pipeTransport(t, verboseKernel(chunks))

	id, err := tr.Submit(ctx, "for i in range(3000): print(i)")
	require.NoError(t, err)

	reply, err := tr.Poll(ctx, kernel.Control, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, id, reply.ParentID)
	assert.GreaterOrEqual(t, tr.Pending(kernel.Broadcast), chunks)
}

func TestDriverVerboseCellPasses(t *testing.T) {
	const chunks = 3000
	tr := pipeTransport(t, verboseKernel(chunks))
	cell := testutil.Cell(0, "for i in range(3000): print(i)")
	state := &engine.FileRunState{}

	driver := engine.NewDriver(tr,
		engine.WithExecTimeout(5*time.Second),
		engine.WithIdleTimeout(5*time.Second),
	)
	out, err := driver.Run(context.Background(), cell, state)
	require.NoError(t, err)
	assert.Len(t, out, chunks)
	assert.False(t, state.Poisoned())
	assert.True(t, tr.Alive())
}

func TestTransportWriteTimesOutWhenPeerStopsReading(t *testing.T) {
	ctx := context.Background()
	tr := pipeTransport(t, deafKernel, WithWriteTimeout(50*time.Millisecond))

	_, err := tr.Submit(ctx, "1")
	require.NoError(t, err)

	start := time.Now()
	err = tr.Interrupt(ctx)
	assert.ErrorIs(t, err, ErrWriteTimeout)
	assert.Less(t, time.Since(start), 5*time.Second)

	_, err = tr.Submit(ctx, "2")
	assert.ErrorIs(t, err, ErrWriteTimeout)
}

func TestDriverEscalatesWhenPeerStopsReading(t *testing.T) {
	tr := pipeTransport(t, deafKernel, WithWriteTimeout(50*time.Millisecond))
	state := &engine.FileRunState{}

	driver := engine.NewDriver(tr,
		engine.WithExecTimeout(50*time.Millisecond),
		engine.WithIdleTimeout(50*time.Millisecond),
	)
	_, err := driver.Run(context.Background(), testutil.Cell(0, "while True: pass"), state)
	assert.Equal(t, engine.ErrCodeInterruptTimeout, engine.CodeOf(err))
	assert.True(t, state.Poisoned())
	assert.False(t, tr.Alive())
}

func TestTransportPollHonorsContext(t *testing.T) {
	tr := newPipeTransport(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := tr.Poll(ctx, kernel.Broadcast, time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTransportStopped(t *testing.T) {
	tr := newPipeTransport(t)
	require.NoError(t, tr.Stop())

	assert.False(t, tr.Alive())
	_, err := tr.Submit(context.Background(), "1")
	assert.ErrorIs(t, err, kernel.ErrNotAlive)
}

func TestStartProcess(t *testing.T) {
	if _, err := exec.LookPath("cat"); err != nil {
		t.Skip("cat not available")
	}

	tr, err := Start(context.Background(), []string{"cat"})
	require.NoError(t, err)
	assert.True(t, tr.Alive())

	// cat echoes requests back; they are not valid events and are dropped.
	_, err = tr.Submit(context.Background(), "1")
	require.NoError(t, err)
	_, err = tr.Poll(context.Background(), kernel.Control, 20*time.Millisecond)
	assert.ErrorIs(t, err, kernel.ErrTimeout)

	require.NoError(t, tr.Stop())
	assert.False(t, tr.Alive())
}

func TestStartEmptyCommand(t *testing.T) {
	_, err := Start(context.Background(), nil)
	assert.ErrorContains(t, err, "empty command")
}

func TestStopProcessWhileStreaming(t *testing.T) {
	if _, err := exec.LookPath("yes"); err != nil {
		t.Skip("yes not available")
	}

	tr, err := Start(context.Background(), []string{"yes"})
	require.NoError(t, err)
	require.Eventually(t, tr.Alive, time.Second, 10*time.Millisecond)

	// The reader is mid-stream when Stop kills the process; Stop must
	// return only after the reader has exited.
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, tr.Stop())
	assert.False(t, tr.Alive())

	select {
	case <-tr.eof:
	default:
		t.Fatal("reader still running after Stop")
	}
}
