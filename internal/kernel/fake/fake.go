// Package fake provides a scripted kernel.Transport for tests.
//
// Each Submit consumes the next Script. The script's reply is queued on
// the control channel and its broadcast messages on the broadcast
// channel; Poll never blocks and returns kernel.ErrTimeout when the queue
// is empty, which models a hung interpreter.
package fake

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/roach88/nbverify/internal/kernel"
)

// Script is the scripted response to one submission. Messages with an
// empty ParentID are stamped with the submission's correlation id.
type Script struct {
	// Reply is queued on the control channel; nil means no reply arrives.
	Reply *kernel.Message

	// Broadcast is queued on the broadcast channel after submission.
	Broadcast []kernel.Message

	// OnInterrupt is queued on the broadcast channel when the submission
	// is interrupted; empty means the interrupt never lands.
	OnInterrupt []kernel.Message
}

// Transport is a scripted kernel.Transport. It is safe for concurrent use.
type Transport struct {
	mu        sync.Mutex
	scripts   []Script
	next      int
	current   *Script
	currentID string
	queues    map[kernel.Channel][]kernel.Message
	stopped   bool

	submitted  []string
	interrupts int
	stops      int
	polls      map[kernel.Channel]int
}

var _ kernel.Transport = (*Transport)(nil)

// New creates a transport that answers submissions with scripts in order.
func New(scripts ...Script) *Transport {
	return &Transport{
		scripts: scripts,
		queues:  map[kernel.Channel][]kernel.Message{},
		polls:   map[kernel.Channel]int{},
	}
}

// Inject queues messages directly, for example stale replies from an
// earlier request.
func (t *Transport) Inject(ch kernel.Channel, msgs ...kernel.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.queues[ch] = append(t.queues[ch], msgs...)
}

// Submit implements kernel.Transport.
func (t *Transport) Submit(_ context.Context, source string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped {
		return "", kernel.ErrNotAlive
	}
	if t.next >= len(t.scripts) {
		return "", fmt.Errorf("fake: no script for submission %d", t.next+1)
	}

	s := t.scripts[t.next]
	t.next++
	id := fmt.Sprintf("msg-%d", t.next)
	t.current = &s
	t.currentID = id
	t.submitted = append(t.submitted, source)

	if s.Reply != nil {
		t.queues[kernel.Control] = append(t.queues[kernel.Control], stamp(id, *s.Reply))
	}
	for _, m := range s.Broadcast {
		t.queues[kernel.Broadcast] = append(t.queues[kernel.Broadcast], stamp(id, m))
	}
	return id, nil
}

// Poll implements kernel.Transport. It never waits.
func (t *Transport) Poll(_ context.Context, ch kernel.Channel, _ time.Duration) (kernel.Message, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.polls[ch]++
	q := t.queues[ch]
	if len(q) == 0 {
		return kernel.Message{}, kernel.ErrTimeout
	}
	t.queues[ch] = q[1:]
	return q[0], nil
}

// Interrupt implements kernel.Transport.
func (t *Transport) Interrupt(_ context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.interrupts++
	if t.current == nil {
		return nil
	}
	for _, m := range t.current.OnInterrupt {
		t.queues[kernel.Broadcast] = append(t.queues[kernel.Broadcast], stamp(t.currentID, m))
	}
	return nil
}

// Stop implements kernel.Transport.
func (t *Transport) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stops++
	t.stopped = true
	t.queues = map[kernel.Channel][]kernel.Message{}
	return nil
}

// Alive implements kernel.Transport.
func (t *Transport) Alive() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.stopped
}

// Submitted returns the sources submitted so far.
func (t *Transport) Submitted() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.submitted...)
}

// Interrupts returns how many times Interrupt was called.
func (t *Transport) Interrupts() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.interrupts
}

// Stops returns how many times Stop was called.
func (t *Transport) Stops() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stops
}

// Polls returns how many times ch was polled.
func (t *Transport) Polls(ch kernel.Channel) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.polls[ch]
}

func stamp(id string, m kernel.Message) kernel.Message {
	if m.ParentID == "" {
		m.ParentID = id
	}
	return m
}
