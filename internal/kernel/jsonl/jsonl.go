// Package jsonl implements kernel.Transport over newline-delimited JSON.
//
// Requests are written one per line:
//
//	{"op":"execute","msg_id":"...","code":"..."}
//	{"op":"interrupt"}
//
// The interpreter answers with one event per line:
//
//	{"channel":"control|broadcast","msg_type":"...","parent_id":"...","content":{...}}
//
// A reader goroutine demultiplexes events into unbounded per-channel
// queues, so a backlog on one channel never holds up the other.
package jsonl

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/nbverify/internal/kernel"
)

const (
	maxLineSize = 64 << 20

	// DefaultWriteTimeout bounds how long a request may wait for the
	// interpreter to read it.
	DefaultWriteTimeout = 5 * time.Second
)

// ErrWriteTimeout is returned when the interpreter does not read a request
// in time.
var ErrWriteTimeout = errors.New("jsonl: request write timed out")

// queue is an unbounded FIFO of messages. ready holds a token whenever
// the queue may be non-empty.
type queue struct {
	mu    sync.Mutex
	items []kernel.Message
	ready chan struct{}
}

func newQueue() *queue {
	return &queue{ready: make(chan struct{}, 1)}
}

func (q *queue) push(m kernel.Message) {
	q.mu.Lock()
	q.items = append(q.items, m)
	q.mu.Unlock()
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

func (q *queue) pop() (kernel.Message, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return kernel.Message{}, false
	}
	m := q.items[0]
	q.items[0] = kernel.Message{}
	q.items = q.items[1:]
	if len(q.items) > 0 {
		select {
		case q.ready <- struct{}{}:
		default:
		}
	}
	return m, true
}

func (q *queue) size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

type request struct {
	Op    string `json:"op"`
	MsgID string `json:"msg_id,omitempty"`
	Code  string `json:"code,omitempty"`
}

type event struct {
	Channel  string      `json:"channel"`
	MsgType  string      `json:"msg_type"`
	ParentID string      `json:"parent_id"`
	Content  wireContent `json:"content"`
}

// wireContent mirrors kernel.Content but accepts structured data and
// metadata values, which are kept as JSON text.
type wireContent struct {
	ExecutionState string         `json:"execution_state"`
	Status         string         `json:"status"`
	Name           string         `json:"name"`
	Text           string         `json:"text"`
	Data           map[string]any `json:"data"`
	Metadata       map[string]any `json:"metadata"`
	ExecutionCount *int           `json:"execution_count"`
	Ename          string         `json:"ename"`
	Evalue         string         `json:"evalue"`
	Traceback      []string       `json:"traceback"`
	Wait           bool           `json:"wait"`
}

// Option configures a Transport.
type Option func(*Transport)

// WithLogger sets the logger for protocol diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(t *Transport) { t.logger = l }
}

// WithWriteTimeout bounds each request write.
func WithWriteTimeout(d time.Duration) Option {
	return func(t *Transport) { t.writeTimeout = d }
}

// WithIDGenerator overrides correlation id generation.
func WithIDGenerator(gen func() string) Option {
	return func(t *Transport) { t.newID = gen }
}

// Transport speaks JSON lines over a reader/writer pair.
type Transport struct {
	in           io.ReadCloser
	out          io.WriteCloser
	logger       *slog.Logger
	newID        func() string
	writeTimeout time.Duration

	writeMu sync.Mutex
	enc     *json.Encoder

	queues map[kernel.Channel]*queue
	done   chan struct{}
	eof    chan struct{}

	// lifeMu orders goroutine registration against Stop.
	lifeMu  sync.Mutex
	stopped bool
	wg      sync.WaitGroup

	stopOnce sync.Once
	proc     *process
}

var _ kernel.Transport = (*Transport)(nil)

// New connects to an interpreter that reads requests from out and writes
// events to in. The returned transport owns both ends.
func New(in io.ReadCloser, out io.WriteCloser, opts ...Option) *Transport {
	t := &Transport{
		in:     in,
		out:    out,
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		newID:        uuid.NewString,
		writeTimeout: DefaultWriteTimeout,
		enc:          json.NewEncoder(out),
		queues: map[kernel.Channel]*queue{
			kernel.Control:   newQueue(),
			kernel.Broadcast: newQueue(),
		},
		done: make(chan struct{}),
		eof:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}

	t.wg.Add(1)
	go t.readLoop()
	return t
}

func (t *Transport) readLoop() {
	defer t.wg.Done()
	defer close(t.eof)

	scanner := bufio.NewScanner(t.in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		var ev event
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			t.logger.Warn("dropping malformed kernel event", "error", err)
			continue
		}

		var ch kernel.Channel
		switch ev.Channel {
		case "control":
			ch = kernel.Control
		case "broadcast":
			ch = kernel.Broadcast
		default:
			t.logger.Debug("dropping event for unknown channel", "channel", ev.Channel, "msg_type", ev.MsgType)
			continue
		}

		t.queues[ch].push(ev.message())
	}
	if err := scanner.Err(); err != nil {
		select {
		case <-t.done:
		default:
			t.logger.Warn("kernel event stream failed", "error", err)
		}
	}
}

func (ev event) message() kernel.Message {
	c := ev.Content
	return kernel.Message{
		Type:     kernel.MsgType(ev.MsgType),
		ParentID: ev.ParentID,
		Content: kernel.Content{
			ExecutionState: c.ExecutionState,
			Status:         c.Status,
			Name:           c.Name,
			Text:           c.Text,
			Data:           flattenValues(c.Data),
			Metadata:       flattenValues(c.Metadata),
			ExecutionCount: c.ExecutionCount,
			Ename:          c.Ename,
			Evalue:         c.Evalue,
			Traceback:      c.Traceback,
			Wait:           c.Wait,
		},
	}
}

// flattenValues keeps strings as-is and encodes anything else as JSON.
func flattenValues(in map[string]any) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		if s, ok := v.(string); ok {
			out[k] = s
			continue
		}
		b, err := json.Marshal(v)
		if err != nil {
			out[k] = fmt.Sprint(v)
			continue
		}
		out[k] = string(b)
	}
	return out
}

// send writes req, waiting at most the write timeout for the interpreter
// to accept it. A write that times out keeps running in the background
// until Stop closes the request stream.
func (t *Transport) send(ctx context.Context, req request) error {
	t.lifeMu.Lock()
	if t.stopped {
		t.lifeMu.Unlock()
		return kernel.ErrNotAlive
	}
	t.wg.Add(1)
	t.lifeMu.Unlock()

	result := make(chan error, 1)
	go func() {
		defer t.wg.Done()
		t.writeMu.Lock()
		defer t.writeMu.Unlock()
		result <- t.enc.Encode(req)
	}()

	timer := time.NewTimer(t.writeTimeout)
	defer timer.Stop()

	select {
	case err := <-result:
		if err != nil {
			return fmt.Errorf("write %s request: %w", req.Op, err)
		}
		return nil
	case <-timer.C:
		return fmt.Errorf("write %s request: %w", req.Op, ErrWriteTimeout)
	case <-t.done:
		return kernel.ErrNotAlive
	case <-ctx.Done():
		return fmt.Errorf("write %s request: %w", req.Op, ctx.Err())
	}
}

// Submit implements kernel.Transport.
func (t *Transport) Submit(ctx context.Context, source string) (string, error) {
	if !t.Alive() {
		return "", kernel.ErrNotAlive
	}
	id := t.newID()
	if err := t.send(ctx, request{Op: "execute", MsgID: id, Code: source}); err != nil {
		return "", err
	}
	return id, nil
}

// Poll implements kernel.Transport.
func (t *Transport) Poll(ctx context.Context, ch kernel.Channel, timeout time.Duration) (kernel.Message, error) {
	q, ok := t.queues[ch]
	if !ok {
		return kernel.Message{}, fmt.Errorf("poll: unknown channel %d", ch)
	}

	if m, ok := q.pop(); ok {
		return m, nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-q.ready:
			if m, ok := q.pop(); ok {
				return m, nil
			}
		case <-timer.C:
			return kernel.Message{}, kernel.ErrTimeout
		case <-ctx.Done():
			return kernel.Message{}, ctx.Err()
		}
	}
}

// Pending returns how many messages are queued on ch.
func (t *Transport) Pending(ch kernel.Channel) int {
	q, ok := t.queues[ch]
	if !ok {
		return 0
	}
	return q.size()
}

// Interrupt implements kernel.Transport. A spawned process receives
// SIGINT; otherwise an interrupt request is written to the stream.
func (t *Transport) Interrupt(ctx context.Context) error {
	if t.proc != nil {
		return t.proc.interrupt()
	}
	return t.send(ctx, request{Op: "interrupt"})
}

// Stop implements kernel.Transport. It closes both streams, kills a
// spawned process, waits for the reader and any pending writes to
// finish, and only then reaps the process.
func (t *Transport) Stop() error {
	var err error
	t.stopOnce.Do(func() {
		t.lifeMu.Lock()
		t.stopped = true
		t.lifeMu.Unlock()

		close(t.done)
		if cerr := t.out.Close(); cerr != nil {
			err = fmt.Errorf("close request stream: %w", cerr)
		}
		if t.proc != nil {
			if kerr := t.proc.kill(); kerr != nil && err == nil {
				err = kerr
			}
		}
		_ = t.in.Close()
		t.wg.Wait()
		if t.proc != nil {
			t.proc.wait()
		}
	})
	return err
}

// Alive implements kernel.Transport.
func (t *Transport) Alive() bool {
	select {
	case <-t.done:
		return false
	case <-t.eof:
		return false
	default:
	}
	if t.proc != nil {
		return t.proc.alive()
	}
	return true
}
