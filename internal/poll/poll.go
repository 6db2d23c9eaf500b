// Package poll provides a minimal readiness registry. Sources register under
// a token and flip a readiness flag from their producer side; consumers block
// in Wait until at least one registered source reports readiness.
//
// The poller does not watch file descriptors. It exists so that in-process
// queues (see internal/event) can participate in a readiness-driven consumer
// loop the same way pollable OS resources would.
package poll

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Token identifies one registration within a Poller. Callers choose tokens;
// a token can only be registered once at a time.
type Token uint64

// Interest describes the readiness kinds a registration subscribes to.
type Interest uint8

// Readable is the only readiness kind queue-backed sources produce.
const Readable Interest = 1 << iota

// Trigger selects how often a ready source is reported by Wait.
type Trigger uint8

const (
	// Level reports a source on every Wait for as long as it stays ready.
	Level Trigger = iota
	// Edge reports a source once per readiness transition; it is reported
	// again only after the source signals readiness anew.
	Edge
)

var (
	// ErrTokenInUse reports a Register with a token that is already live.
	ErrTokenInUse = errors.New("poll: token already registered")
	// ErrNotRegistered reports a Deregister for an unknown token.
	ErrNotRegistered = errors.New("poll: token not registered")
)

// Poller tracks the readiness of registered sources.
type Poller struct {
	mu   sync.Mutex
	regs map[Token]*Readiness
	wake chan struct{}
}

// New constructs an empty poller.
func New() *Poller {
	return &Poller{
		regs: make(map[Token]*Readiness),
		wake: make(chan struct{}, 1),
	}
}

// Register adds a source under tok and returns the handle its producer side
// uses to signal readiness.
func (p *Poller) Register(tok Token, interest Interest, trigger Trigger) (*Readiness, error) {
	if interest&Readable == 0 {
		return nil, fmt.Errorf("poll: register token %d: readable interest required", tok)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.regs[tok]; ok {
		return nil, ErrTokenInUse
	}
	r := &Readiness{p: p, token: tok, trigger: trigger}
	p.regs[tok] = r
	return r, nil
}

// Deregister removes tok. The detached Readiness handle becomes inert: Set
// and Clear on it are no-ops.
func (p *Poller) Deregister(tok Token) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	r, ok := p.regs[tok]
	if !ok {
		return ErrNotRegistered
	}
	r.detached = true
	delete(p.regs, tok)
	return nil
}

// Wait blocks until at least one registered source is ready or ctx is done,
// and returns the ready tokens in ascending order.
func (p *Poller) Wait(ctx context.Context) ([]Token, error) {
	for {
		p.mu.Lock()
		var ready []Token
		for tok, r := range p.regs {
			if !r.ready {
				continue
			}
			if r.trigger == Edge {
				if r.consumed {
					continue
				}
				r.consumed = true
			}
			ready = append(ready, tok)
		}
		p.mu.Unlock()

		if len(ready) > 0 {
			sort.Slice(ready, func(i, j int) bool { return ready[i] < ready[j] })
			return ready, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-p.wake:
		}
	}
}

func (p *Poller) wakeup() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Readiness is the producer-side handle for one registration. Set and Clear
// are safe for concurrent use.
type Readiness struct {
	p       *Poller
	token   Token
	trigger Trigger

	// guarded by p.mu
	ready    bool
	consumed bool
	detached bool
}

// Token returns the token this handle was registered under.
func (r *Readiness) Token() Token { return r.token }

// Set marks the source ready and wakes a pending Wait. For edge-triggered
// registrations it re-arms delivery.
func (r *Readiness) Set() {
	r.p.mu.Lock()
	if r.detached {
		r.p.mu.Unlock()
		return
	}
	r.ready = true
	r.consumed = false
	r.p.mu.Unlock()
	r.p.wakeup()
}

// Clear marks the source not ready.
func (r *Readiness) Clear() {
	r.p.mu.Lock()
	if !r.detached {
		r.ready = false
	}
	r.p.mu.Unlock()
}
