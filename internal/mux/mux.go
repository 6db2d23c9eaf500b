// Package mux fans in the event queues of multiple processes into one
// labeled stream, driven by a readiness poll loop. When downstream consumers
// cannot keep up and the output buffer would overflow, the mux drops entries
// and later emits a synthesized entry reporting how many were discarded.
package mux

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Paintersrp/procmux/internal/event"
	"github.com/Paintersrp/procmux/internal/poll"
)

// Entry is one labeled event from a fanned-in process. Synthesized
// drop-report entries carry Dropped > 0 and a zero Event.
type Entry struct {
	Timestamp time.Time
	Name      string
	PID       int
	Event     event.Event
	Dropped   int
}

// Mux multiplexes process event receivers over a single poller.
type Mux struct {
	out    chan Entry
	poller *poll.Poller

	mu      sync.Mutex
	sources map[poll.Token]*source
	next    poll.Token
	drops   map[string]int
}

type source struct {
	name string
	pid  int
	rx   *event.Receiver
}

// New constructs a mux backed by an output channel of the provided size. A
// size of zero results in a minimally buffered channel.
func New(size int) *Mux {
	if size <= 0 {
		size = 1
	}
	return &Mux{
		out:     make(chan Entry, size),
		poller:  poll.New(),
		sources: make(map[poll.Token]*source),
		drops:   make(map[string]int),
	}
}

// Output exposes the muxed entry channel. It is closed by Run.
func (m *Mux) Output() <-chan Entry {
	return m.out
}

// Add registers a process's receiver under the next free token. Sources must
// be added before Run observes the last existing source disconnect.
func (m *Mux) Add(name string, pid int, rx *event.Receiver) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tok := m.next
	m.next++
	if err := rx.Register(m.poller, tok, poll.Readable, poll.Level); err != nil {
		return fmt.Errorf("register %s: %w", name, err)
	}
	m.sources[tok] = &source{name: name, pid: pid, rx: rx}
	return nil
}

// Run drives the poll loop until ctx is done or every source has
// disconnected, then flushes pending drop reports and closes the output.
func (m *Mux) Run(ctx context.Context) error {
	defer close(m.out)
	for {
		if m.sourceCount() == 0 {
			m.flushDrops()
			return nil
		}
		tokens, err := m.poller.Wait(ctx)
		if err != nil {
			return err
		}
		for _, tok := range tokens {
			m.drainSource(tok)
		}
	}
}

// drainSource empties one ready source, removing it once it reports
// disconnection.
func (m *Mux) drainSource(tok poll.Token) {
	m.mu.Lock()
	src := m.sources[tok]
	m.mu.Unlock()
	if src == nil {
		return
	}
	for {
		evt, err := src.rx.TryRecv()
		switch {
		case err == nil:
			m.deliver(Entry{
				Timestamp: time.Now(),
				Name:      src.name,
				PID:       src.pid,
				Event:     evt,
			})
		case errors.Is(err, event.ErrEmpty):
			return
		case errors.Is(err, event.ErrDisconnected):
			m.remove(tok, src)
			return
		}
	}
}

func (m *Mux) remove(tok poll.Token, src *source) {
	_ = src.rx.Deregister(m.poller)
	m.mu.Lock()
	delete(m.sources, tok)
	m.mu.Unlock()
}

func (m *Mux) sourceCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sources)
}

func (m *Mux) deliver(e Entry) {
	if !m.flushPending(e.Name) {
		m.recordDrop(e.Name)
		return
	}
	if !m.trySend(e) {
		m.recordDrop(e.Name)
	}
}

// flushPending emits any accumulated drop report for name before new entries
// so ordering of the report relative to surviving entries stays truthful.
func (m *Mux) flushPending(name string) bool {
	for {
		count := m.takeDrops(name)
		if count == 0 {
			return true
		}
		if m.trySend(dropEntry(name, count)) {
			continue
		}
		m.recordDropCount(name, count)
		return false
	}
}

func (m *Mux) takeDrops(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := m.drops[name]
	if count != 0 {
		delete(m.drops, name)
	}
	return count
}

func (m *Mux) recordDrop(name string) {
	m.recordDropCount(name, 1)
}

func (m *Mux) recordDropCount(name string, count int) {
	if count <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drops[name] += count
}

func (m *Mux) flushDrops() {
	m.mu.Lock()
	pending := m.drops
	m.drops = make(map[string]int)
	m.mu.Unlock()
	for name, count := range pending {
		if count > 0 {
			m.out <- dropEntry(name, count)
		}
	}
}

func (m *Mux) trySend(e Entry) bool {
	select {
	case m.out <- e:
		return true
	default:
		return false
	}
}

func dropEntry(name string, count int) Entry {
	return Entry{
		Timestamp: time.Now(),
		Name:      name,
		Dropped:   count,
	}
}
