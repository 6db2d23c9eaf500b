package proc

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"unicode/utf8"

	"github.com/Paintersrp/procmux/internal/event"
	"github.com/Paintersrp/procmux/internal/poll"
)

const readBufferSize = 1024

// ErrNotConnected reports a Write, Flush or CloseStdin on a process whose
// stdin was not captured.
var ErrNotConnected = errors.New("proc: stdin not captured")

// Capture selects which standard streams Start pipes to the handle. Streams
// left false inherit whatever the *exec.Cmd was configured with.
type Capture struct {
	Stdin  bool
	Stdout bool
	Stderr bool
}

// CaptureOutput captures stdout and stderr but not stdin.
func CaptureOutput() Capture { return Capture{Stdout: true, Stderr: true} }

// CaptureAll captures all three standard streams.
func CaptureAll() Capture { return Capture{Stdin: true, Stdout: true, Stderr: true} }

// Child describes an already-started command together with whichever of its
// standard streams were captured as pipes. Nil streams are not observed.
type Child struct {
	Cmd    *exec.Cmd
	Stdout io.ReadCloser
	Stderr io.ReadCloser
	Stdin  io.WriteCloser
}

// Process is the consumer-facing handle for one child. It owns the receiving
// end of the event queue and, when captured, the child's stdin pipe. The pid
// is copied at attach time, before the command moves into the exit waiter.
//
// Dropping a Process does not kill the child; termination is always the
// explicit Kill operation.
type Process struct {
	pid    int
	stdin  io.WriteCloser
	events *event.Receiver
}

// Start wires pipes for each stream selected by capture, launches cmd and
// attaches it. It is a convenience over Attach for callers that let this
// package do the pipe plumbing.
func Start(cmd *exec.Cmd, capture Capture) (*Process, error) {
	child := Child{Cmd: cmd}
	if capture.Stdout {
		pipe, err := cmd.StdoutPipe()
		if err != nil {
			return nil, fmt.Errorf("stdout pipe: %w", err)
		}
		child.Stdout = pipe
	}
	if capture.Stderr {
		pipe, err := cmd.StderrPipe()
		if err != nil {
			return nil, fmt.Errorf("stderr pipe: %w", err)
		}
		child.Stderr = pipe
	}
	if capture.Stdin {
		pipe, err := cmd.StdinPipe()
		if err != nil {
			return nil, fmt.Errorf("stdin pipe: %w", err)
		}
		child.Stdin = pipe
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", cmd.Path, err)
	}
	return Attach(child), nil
}

// Attach takes ownership of a started child and returns its handle. One
// reader goroutine is spawned per captured output stream and exactly one
// exit waiter regardless of capture; all of them share cloned senders of one
// queue. child.Cmd must have been started.
func Attach(child Child) *Process {
	tx, rx := event.NewQueue()

	var readers sync.WaitGroup
	if child.Stdout != nil {
		readers.Add(1)
		out := child.Stdout
		go func() {
			defer readers.Done()
			readStream(out, tx.Clone(), event.StdioStdout)
		}()
	}
	if child.Stderr != nil {
		readers.Add(1)
		errStream := child.Stderr
		go func() {
			defer readers.Done()
			readStream(errStream, tx.Clone(), event.StdioStderr)
		}()
	}

	// The waiter inherits the initial sender, keeping the producer count
	// at one until it finishes even when nothing is captured.
	go waitExit(child, tx, &readers)

	return &Process{
		pid:    child.Cmd.Process.Pid,
		stdin:  child.Stdin,
		events: rx,
	}
}

// readStream pumps one captured stream until it is exhausted, emitting Data
// chunks and at most one terminal IOError or UTF8Error. The reader owns its
// pipe and closes it on exit, even after a mid-stream abort.
func readStream(r io.ReadCloser, tx *event.Sender, channel event.StdioChannel) {
	defer tx.Close()
	defer r.Close()
	buf := make([]byte, readBufferSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if !sendChunk(tx, channel, buf[:n]) {
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				_ = tx.Send(event.IOError(channel, err))
			}
			return
		}
	}
}

// sendChunk validates and forwards one chunk, reporting whether the producer
// may continue. An invalid chunk emits UTF8Error and stops the producer; a
// chunk that decodes to the empty string stops it silently (no event is
// forwarded for it); a failed send means the receiver is gone.
func sendChunk(tx *event.Sender, channel event.StdioChannel, chunk []byte) bool {
	if !utf8.Valid(chunk) {
		_ = tx.Send(event.UTF8Error(channel, fmt.Errorf("invalid UTF-8 sequence on %s", channel)))
		return false
	}
	text := string(chunk)
	if text == "" {
		return false
	}
	return tx.Send(event.Data(channel, text)) == nil
}

// waitExit blocks until the process terminates. Readers finish first; any
// bytes still readable from the captured pipes afterwards are drained as
// trailing buffers and forwarded through the same validate-and-send step,
// then exactly one Exit event is emitted. Readers close their pipes on exit,
// so the trailing buffers are empty in practice; the drain guards the narrow
// window the wait-side collection is responsible for. A failure of the wait
// machinery itself emits CommandError and suppresses Exit.
func waitExit(child Child, tx *event.Sender, readers *sync.WaitGroup) {
	defer tx.Close()
	readers.Wait()

	trailingOut := drain(child.Stdout)
	trailingErr := drain(child.Stderr)

	state, err := waitStatus(child.Cmd)
	if err != nil {
		_ = tx.Send(event.CommandError(err))
		return
	}
	if len(trailingOut) > 0 && !sendChunk(tx, event.StdioStdout, trailingOut) {
		return
	}
	if len(trailingErr) > 0 && !sendChunk(tx, event.StdioStderr, trailingErr) {
		return
	}
	_ = tx.Send(event.Exit(state))
}

// drain consumes whatever is still readable from a captured pipe. Readers
// close their pipes when they stop, so this normally returns nothing; errors
// from an already-closed pipe are not events.
func drain(r io.Reader) []byte {
	if r == nil {
		return nil
	}
	data, _ := io.ReadAll(r)
	return data
}

// waitStatus reaps cmd, separating a non-zero exit (a normal status) from a
// failure of the wait call itself.
func waitStatus(cmd *exec.Cmd) (*os.ProcessState, error) {
	err := cmd.Wait()
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return cmd.ProcessState, nil
	case errors.As(err, &exitErr):
		return exitErr.ProcessState, nil
	default:
		return nil, err
	}
}

// PID returns the OS process identifier captured at attach time.
func (p *Process) PID() int { return p.pid }

// TryRecv returns the next event without blocking. See event.Receiver.
func (p *Process) TryRecv() (event.Event, error) { return p.events.TryRecv() }

// Events exposes the receiving end of the queue for fan-in layers that
// manage registration themselves.
func (p *Process) Events() *event.Receiver { return p.events }

// Write forwards b to the child's stdin. There is no internal buffering: the
// call can block on a full OS pipe buffer, which is the caller's concern.
func (p *Process) Write(b []byte) (int, error) {
	if p.stdin == nil {
		return 0, ErrNotConnected
	}
	return p.stdin.Write(b)
}

// Flush completes the Write contract. OS pipes hold nothing on this side, so
// a connected Flush has no work to do.
func (p *Process) Flush() error {
	if p.stdin == nil {
		return ErrNotConnected
	}
	return nil
}

// CloseStdin closes the child's input stream, delivering EOF to it.
func (p *Process) CloseStdin() error {
	if p.stdin == nil {
		return ErrNotConnected
	}
	return p.stdin.Close()
}

// Register attaches the process's event source to a poller under tok.
func (p *Process) Register(pl *poll.Poller, tok poll.Token, interest poll.Interest, trigger poll.Trigger) error {
	return p.events.Register(pl, tok, interest, trigger)
}

// Reregister moves the registration to a new token, interest or trigger.
func (p *Process) Reregister(pl *poll.Poller, tok poll.Token, interest poll.Interest, trigger poll.Trigger) error {
	return p.events.Reregister(pl, tok, interest, trigger)
}

// Deregister detaches the process's event source from the poller.
func (p *Process) Deregister(pl *poll.Poller) error {
	return p.events.Deregister(pl)
}

// Kill terminates the process tracked by this handle; see Kill for the
// platform semantics.
func (p *Process) Kill() error {
	return Kill(p.pid)
}
