package mux

import (
	"context"
	"testing"
	"time"

	"github.com/Paintersrp/procmux/internal/event"
)

func TestRunFansInLabeledSources(t *testing.T) {
	m := New(16)

	txA, rxA := event.NewQueue()
	txB, rxB := event.NewQueue()
	if err := m.Add("alpha", 101, rxA); err != nil {
		t.Fatalf("add alpha: %v", err)
	}
	if err := m.Add("beta", 102, rxB); err != nil {
		t.Fatalf("add beta: %v", err)
	}

	if err := txA.Send(event.Data(event.StdioStdout, "a1")); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := txB.Send(event.Data(event.StdioStderr, "b1")); err != nil {
		t.Fatalf("send: %v", err)
	}
	txA.Close()
	txB.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	byName := map[string][]Entry{}
	for entry := range m.Output() {
		byName[entry.Name] = append(byName[entry.Name], entry)
	}
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}

	alpha := byName["alpha"]
	if len(alpha) != 1 || alpha[0].Event.Text != "a1" || alpha[0].PID != 101 {
		t.Fatalf("unexpected alpha entries: %+v", alpha)
	}
	beta := byName["beta"]
	if len(beta) != 1 || beta[0].Event.Text != "b1" || beta[0].PID != 102 {
		t.Fatalf("unexpected beta entries: %+v", beta)
	}
}

func TestRunStopsWhenAllSourcesDisconnect(t *testing.T) {
	m := New(4)

	tx, rx := event.NewQueue()
	if err := m.Add("only", 1, rx); err != nil {
		t.Fatalf("add: %v", err)
	}
	tx.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	for range m.Output() {
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after the last source disconnected")
	}
}

func TestRunHonorsContextCancellation(t *testing.T) {
	m := New(4)

	_, rx := event.NewQueue()
	if err := m.Add("stuck", 1, rx); err != nil {
		t.Fatalf("add: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected context error from run")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("run did not observe cancellation")
	}
}

func TestDeliverDropsWhenOutputFull(t *testing.T) {
	m := New(1)
	m.out <- Entry{Name: "filler"}

	m.deliver(Entry{Name: "app", Event: event.Data(event.StdioStdout, "lost-1")})
	m.deliver(Entry{Name: "app", Event: event.Data(event.StdioStdout, "lost-2")})

	if got := m.drops["app"]; got != 2 {
		t.Fatalf("expected 2 recorded drops, got %d", got)
	}

	// Draining the output makes room; the pending drop report must precede
	// the next surviving entry.
	<-m.out
	m.deliver(Entry{Name: "app", Event: event.Data(event.StdioStdout, "kept")})

	report := <-m.out
	if report.Dropped != 2 || report.Name != "app" {
		t.Fatalf("expected drop report for 2 entries, got %+v", report)
	}

	// The surviving entry itself was dropped because the report consumed the
	// only buffer slot, so it is accounted for in a fresh counter.
	if got := m.drops["app"]; got != 1 {
		t.Fatalf("expected 1 drop after report flush, got %d", got)
	}

	m.flushDrops()
	tail := <-m.out
	if tail.Dropped != 1 || tail.Name != "app" {
		t.Fatalf("expected final drop report, got %+v", tail)
	}
}

func TestFlushPendingKeepsPerProcessCounts(t *testing.T) {
	m := New(2)
	m.recordDropCount("a", 3)
	m.recordDropCount("b", 5)

	if !m.flushPending("a") {
		t.Fatal("flush must succeed with buffer space available")
	}
	report := <-m.out
	if report.Name != "a" || report.Dropped != 3 {
		t.Fatalf("expected report for a=3, got %+v", report)
	}
	if got := m.drops["b"]; got != 5 {
		t.Fatalf("flushing a must not touch b's count, got %d", got)
	}
}
