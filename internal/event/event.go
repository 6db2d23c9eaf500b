// Package event defines the notifications a supervised child process emits
// and the multi-producer queue that delivers them to a single consumer
// without blocking it.
package event

import "os"

// Type discriminates the variants of an Event.
type Type string

const (
	// TypeData carries a decoded chunk of stream output.
	TypeData Type = "data"
	// TypeCommandError reports that waiting on the process itself failed.
	// No exit event follows.
	TypeCommandError Type = "command_error"
	// TypeIOError reports a failed read on a captured stream.
	TypeIOError Type = "io_error"
	// TypeUTF8Error reports a stream chunk that was not valid UTF-8.
	TypeUTF8Error Type = "utf8_error"
	// TypeExit reports process termination with its exit status. It is the
	// final event produced by the exit waiter.
	TypeExit Type = "exit"
)

// StdioChannel tags which captured stream an event pertains to. It is an
// informational label, not an ownership handle.
type StdioChannel string

const (
	StdioStdout StdioChannel = "stdout"
	StdioStderr StdioChannel = "stderr"
)

// Event is a single notification from one of a process's background
// goroutines. Type selects which fields carry the payload: Channel and Text
// for data, Channel and Err for stream errors, Err alone for wait failures,
// Status for exit.
type Event struct {
	Type    Type
	Channel StdioChannel
	Text    string
	Status  *os.ProcessState
	Err     error
}

// Data builds a stream-output event.
func Data(channel StdioChannel, text string) Event {
	return Event{Type: TypeData, Channel: channel, Text: text}
}

// CommandError builds a wait-failure event.
func CommandError(err error) Event {
	return Event{Type: TypeCommandError, Err: err}
}

// IOError builds a stream read-failure event.
func IOError(channel StdioChannel, err error) Event {
	return Event{Type: TypeIOError, Channel: channel, Err: err}
}

// UTF8Error builds a decode-failure event.
func UTF8Error(channel StdioChannel, err error) Event {
	return Event{Type: TypeUTF8Error, Channel: channel, Err: err}
}

// Exit builds the terminal exit event.
func Exit(status *os.ProcessState) Event {
	return Event{Type: TypeExit, Status: status}
}
