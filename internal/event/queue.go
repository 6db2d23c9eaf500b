package event

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Paintersrp/procmux/internal/poll"
)

var (
	// ErrEmpty reports that no event is queued right now; more may arrive.
	ErrEmpty = errors.New("event: no events queued")
	// ErrDisconnected reports that every producer has finished and the
	// queue is drained. It is sticky: once returned, TryRecv returns it
	// forever.
	ErrDisconnected = errors.New("event: all producers finished")
	// ErrClosed reports a send on a queue whose receiver was closed, or a
	// send through an already-closed sender.
	ErrClosed = errors.New("event: queue closed")
)

// queue is the shared state behind one Sender/Receiver pair. Events are
// delivered in send order per producer; the receiver never blocks.
type queue struct {
	mu         sync.Mutex
	items      []Event
	producers  int
	recvClosed bool
	readiness  *poll.Readiness
}

// NewQueue constructs an empty queue, returning its initial producer handle
// and its sole consumer handle.
func NewQueue() (*Sender, *Receiver) {
	q := &queue{producers: 1}
	return &Sender{q: q}, &Receiver{q: q}
}

// Sender is one producer handle. Each background goroutine owns its own
// Sender (obtained via Clone) and must Close it when it stops emitting, so
// the receiver can observe total completion.
type Sender struct {
	q      *queue
	closed bool // guarded by q.mu
}

// Clone registers and returns an additional producer handle.
func (s *Sender) Clone() *Sender {
	s.q.mu.Lock()
	defer s.q.mu.Unlock()
	s.q.producers++
	return &Sender{q: s.q}
}

// Send enqueues evt and marks the receiver ready. It fails with ErrClosed
// once the receiver has been closed; producers treat that as a normal signal
// to stop.
func (s *Sender) Send(evt Event) error {
	q := s.q
	q.mu.Lock()
	defer q.mu.Unlock()
	if s.closed || q.recvClosed {
		return ErrClosed
	}
	q.items = append(q.items, evt)
	if q.readiness != nil {
		q.readiness.Set()
	}
	return nil
}

// Close retires this producer. Closing the last producer lets the receiver
// observe ErrDisconnected once the queue drains, and wakes any poll loop so
// the disconnection is noticed even when no events remain.
func (s *Sender) Close() {
	q := s.q
	q.mu.Lock()
	defer q.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	q.producers--
	if q.producers == 0 && q.readiness != nil {
		q.readiness.Set()
	}
}

// Receiver is the sole consumer handle of a queue. It doubles as a
// registrable readiness source: every enqueued event marks it ready,
// draining it empty clears readiness while producers remain, and total
// disconnection leaves it ready so a poll loop can observe end-of-life.
type Receiver struct {
	q *queue
}

// TryRecv returns the next queued event without blocking. It returns
// ErrEmpty when nothing is queued yet and ErrDisconnected once all producers
// have closed and no events remain.
func (r *Receiver) TryRecv() (Event, error) {
	q := r.q
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		if q.producers == 0 {
			return Event{}, ErrDisconnected
		}
		if q.readiness != nil {
			q.readiness.Clear()
		}
		return Event{}, ErrEmpty
	}
	evt := q.items[0]
	q.items = q.items[1:]
	if len(q.items) == 0 && q.producers > 0 && q.readiness != nil {
		q.readiness.Clear()
	}
	return evt, nil
}

// Close detaches the consumer. Pending events are discarded and subsequent
// producer sends fail with ErrClosed, which shuts the producers down.
func (r *Receiver) Close() {
	q := r.q
	q.mu.Lock()
	defer q.mu.Unlock()
	q.recvClosed = true
	q.items = nil
}

// Register attaches the receiver to p under tok. If events are already
// queued, or every producer already finished, readiness is raised
// immediately.
func (r *Receiver) Register(p *poll.Poller, tok poll.Token, interest poll.Interest, trigger poll.Trigger) error {
	q := r.q
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.readiness != nil {
		return fmt.Errorf("event: receiver already registered under token %d", q.readiness.Token())
	}
	rd, err := p.Register(tok, interest, trigger)
	if err != nil {
		return err
	}
	q.readiness = rd
	if len(q.items) > 0 || q.producers == 0 {
		rd.Set()
	}
	return nil
}

// Reregister moves the registration to a new token, interest or trigger,
// preserving pending readiness.
func (r *Receiver) Reregister(p *poll.Poller, tok poll.Token, interest poll.Interest, trigger poll.Trigger) error {
	q := r.q
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.readiness == nil {
		return poll.ErrNotRegistered
	}
	if err := p.Deregister(q.readiness.Token()); err != nil {
		return err
	}
	rd, err := p.Register(tok, interest, trigger)
	if err != nil {
		q.readiness = nil
		return err
	}
	q.readiness = rd
	if len(q.items) > 0 || q.producers == 0 {
		rd.Set()
	}
	return nil
}

// Deregister removes the receiver from p.
func (r *Receiver) Deregister(p *poll.Poller) error {
	q := r.q
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.readiness == nil {
		return poll.ErrNotRegistered
	}
	if err := p.Deregister(q.readiness.Token()); err != nil {
		return err
	}
	q.readiness = nil
	return nil
}
