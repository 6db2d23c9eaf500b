package proc

import (
	"context"
	"errors"
	"os/exec"
	stdruntime "runtime"
	"strings"
	"testing"
	"time"

	"github.com/Paintersrp/procmux/internal/event"
	"github.com/Paintersrp/procmux/internal/poll"
)

func skipOnWindows(t *testing.T) {
	t.Helper()
	if stdruntime.GOOS == "windows" {
		t.Skip("process tests use /bin/sh")
	}
}

func shell(script string) *exec.Cmd {
	return exec.Command("/bin/sh", "-c", script)
}

// collectEvents drains the process until it reports disconnection.
func collectEvents(t *testing.T, p *Process, timeout time.Duration) []event.Event {
	t.Helper()
	deadline := time.Now().Add(timeout)
	var events []event.Event
	for {
		evt, err := p.TryRecv()
		switch {
		case err == nil:
			events = append(events, evt)
		case errors.Is(err, event.ErrEmpty):
			if time.Now().After(deadline) {
				t.Fatalf("timed out waiting for disconnect; events so far: %+v", events)
			}
			time.Sleep(5 * time.Millisecond)
		case errors.Is(err, event.ErrDisconnected):
			return events
		default:
			t.Fatalf("unexpected receive error: %v", err)
		}
	}
}

func concatData(events []event.Event, channel event.StdioChannel) string {
	var sb strings.Builder
	for _, evt := range events {
		if evt.Type == event.TypeData && evt.Channel == channel {
			sb.WriteString(evt.Text)
		}
	}
	return sb.String()
}

func TestStdoutDataPrecedesExit(t *testing.T) {
	skipOnWindows(t)

	p, err := Start(shell("printf hello"), CaptureOutput())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	events := collectEvents(t, p, 5*time.Second)

	if got := concatData(events, event.StdioStdout); got != "hello" {
		t.Fatalf("expected concatenated stdout %q, got %q", "hello", got)
	}
	if got := concatData(events, event.StdioStderr); got != "" {
		t.Fatalf("expected no stderr data, got %q", got)
	}

	last := events[len(events)-1]
	if last.Type != event.TypeExit {
		t.Fatalf("expected final event to be exit, got %+v", last)
	}
	if !last.Status.Success() {
		t.Fatalf("expected successful exit, got %v", last.Status)
	}
	for i, evt := range events[:len(events)-1] {
		if evt.Type == event.TypeExit {
			t.Fatalf("exit event at index %d is not final: %+v", i, events)
		}
	}
}

func TestStderrDataIsTagged(t *testing.T) {
	skipOnWindows(t)

	p, err := Start(shell("printf oops >&2"), CaptureOutput())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	events := collectEvents(t, p, 5*time.Second)

	if got := concatData(events, event.StdioStderr); got != "oops" {
		t.Fatalf("expected stderr %q, got %q", "oops", got)
	}
	if got := concatData(events, event.StdioStdout); got != "" {
		t.Fatalf("expected no stdout data, got %q", got)
	}
}

func TestNonZeroExitIsStatusNotError(t *testing.T) {
	skipOnWindows(t)

	p, err := Start(shell("exit 3"), CaptureOutput())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	events := collectEvents(t, p, 5*time.Second)

	last := events[len(events)-1]
	if last.Type != event.TypeExit {
		t.Fatalf("expected exit event, got %+v", last)
	}
	if code := last.Status.ExitCode(); code != 3 {
		t.Fatalf("expected exit code 3, got %d", code)
	}
	for _, evt := range events {
		if evt.Type == event.TypeCommandError {
			t.Fatalf("non-zero exit must not produce a command error: %+v", evt)
		}
	}
}

func TestNoCaptureStillEmitsExit(t *testing.T) {
	skipOnWindows(t)

	p, err := Start(shell("exit 0"), Capture{})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	events := collectEvents(t, p, 5*time.Second)

	if len(events) != 1 || events[0].Type != event.TypeExit {
		t.Fatalf("expected exactly one exit event, got %+v", events)
	}

	// Disconnection is sticky.
	for i := 0; i < 3; i++ {
		if _, err := p.TryRecv(); !errors.Is(err, event.ErrDisconnected) {
			t.Fatalf("expected ErrDisconnected, got %v", err)
		}
	}
}

func TestWriteWithoutStdinCapture(t *testing.T) {
	skipOnWindows(t)

	p, err := Start(shell("sleep 0.1"), CaptureOutput())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := p.Write([]byte("x")); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected from write, got %v", err)
	}
	if err := p.Flush(); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected from flush, got %v", err)
	}
	if err := p.CloseStdin(); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected from close, got %v", err)
	}
	collectEvents(t, p, 5*time.Second)
}

func TestStdinRoundTrip(t *testing.T) {
	skipOnWindows(t)

	p, err := Start(exec.Command("cat"), CaptureAll())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := p.Write([]byte("ping\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := p.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if err := p.CloseStdin(); err != nil {
		t.Fatalf("close stdin: %v", err)
	}

	events := collectEvents(t, p, 5*time.Second)
	if got := concatData(events, event.StdioStdout); got != "ping\n" {
		t.Fatalf("expected %q echoed back, got %q", "ping\n", got)
	}
	last := events[len(events)-1]
	if last.Type != event.TypeExit || !last.Status.Success() {
		t.Fatalf("expected clean exit, got %+v", last)
	}
}

func TestInvalidUTF8AbortsReader(t *testing.T) {
	skipOnWindows(t)

	p, err := Start(shell("printf '\\377\\376\\375'"), CaptureOutput())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	events := collectEvents(t, p, 5*time.Second)

	utf8Errors := 0
	for _, evt := range events {
		switch evt.Type {
		case event.TypeUTF8Error:
			utf8Errors++
			if evt.Channel != event.StdioStdout {
				t.Fatalf("expected stdout channel on decode error, got %+v", evt)
			}
		case event.TypeData:
			if evt.Channel == event.StdioStdout {
				t.Fatalf("no stdout data may follow a decode failure: %+v", events)
			}
		}
	}
	if utf8Errors != 1 {
		t.Fatalf("expected exactly one UTF-8 error, got %d (%+v)", utf8Errors, events)
	}
	if last := events[len(events)-1]; last.Type != event.TypeExit {
		t.Fatalf("expected exit after reader abort, got %+v", last)
	}
}

func TestPollDrivenConsumption(t *testing.T) {
	skipOnWindows(t)

	p, err := Start(shell("printf hello"), CaptureOutput())
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	poller := poll.New()
	const tok poll.Token = 1
	if err := p.Register(poller, tok, poll.Readable, poll.Level); err != nil {
		t.Fatalf("register: %v", err)
	}
	t.Cleanup(func() {
		if err := p.Deregister(poller); err != nil {
			t.Logf("deregister: %v", err)
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var events []event.Event
	var sawExit bool
	for !sawExit {
		tokens, err := poller.Wait(ctx)
		if err != nil {
			t.Fatalf("poll wait: %v", err)
		}
		if len(tokens) != 1 || tokens[0] != tok {
			t.Fatalf("unexpected tokens %v", tokens)
		}
	drain:
		for {
			evt, err := p.TryRecv()
			switch {
			case err == nil:
				events = append(events, evt)
				if evt.Type == event.TypeExit {
					sawExit = true
				}
			case errors.Is(err, event.ErrEmpty):
				break drain
			case errors.Is(err, event.ErrDisconnected):
				break drain
			}
		}
	}

	if got := concatData(events, event.StdioStdout); got != "hello" {
		t.Fatalf("expected %q via poll loop, got %q", "hello", got)
	}
}

func TestSendChunkEmptyDecodeIsSilentStop(t *testing.T) {
	tx, rx := event.NewQueue()

	// The empty-decode guard aborts the producer without forwarding any
	// event. It is unreachable from a non-empty read, which always decodes
	// to a non-empty string.
	if sendChunk(tx, event.StdioStdout, nil) {
		t.Fatal("empty chunk must stop the producer")
	}
	if _, err := rx.TryRecv(); !errors.Is(err, event.ErrEmpty) {
		t.Fatalf("empty chunk must not forward an event, got %v", err)
	}

	if !sendChunk(tx, event.StdioStdout, []byte("x")) {
		t.Fatal("non-empty valid chunk must continue the producer")
	}
	evt, err := rx.TryRecv()
	if err != nil || evt.Type != event.TypeData || evt.Text != "x" {
		t.Fatalf("expected data event, got %+v err=%v", evt, err)
	}
}

func TestSendChunkStopsWhenReceiverGone(t *testing.T) {
	tx, rx := event.NewQueue()
	rx.Close()
	if sendChunk(tx, event.StdioStdout, []byte("x")) {
		t.Fatal("send to a closed receiver must stop the producer")
	}
}
