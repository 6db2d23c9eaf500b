// Package cliutil converts mux entries into structured log records for the
// command-line output surfaces.
package cliutil

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/Paintersrp/procmux/internal/event"
	"github.com/Paintersrp/procmux/internal/mux"
)

// LogRecord represents a structured process event ready for JSON encoding.
type LogRecord struct {
	Timestamp time.Time `json:"ts"`
	Process   string    `json:"process"`
	PID       int       `json:"pid,omitempty"`
	Type      string    `json:"type"`
	Source    string    `json:"source,omitempty"`
	Level     string    `json:"level"`
	Message   string    `json:"msg"`
}

// NewLogRecord converts a mux entry into a structured log record.
func NewLogRecord(entry mux.Entry) LogRecord {
	record := LogRecord{
		Timestamp: entry.Timestamp,
		Process:   entry.Name,
		PID:       entry.PID,
		Source:    string(entry.Event.Channel),
	}
	if entry.Dropped > 0 {
		record.Type = "drop"
		record.Level = "warn"
		record.Message = fmt.Sprintf("dropped=%d", entry.Dropped)
		return record
	}

	record.Type = string(entry.Event.Type)
	switch entry.Event.Type {
	case event.TypeData:
		record.Message = entry.Event.Text
		if entry.Event.Channel == event.StdioStderr {
			record.Level = "warn"
		} else {
			record.Level = "info"
		}
	case event.TypeExit:
		record.Message = entry.Event.Status.String()
		if entry.Event.Status.Success() {
			record.Level = "info"
		} else {
			record.Level = "error"
		}
	default:
		record.Level = "error"
		if entry.Event.Err != nil {
			record.Message = entry.Event.Err.Error()
		}
	}
	return record
}

// EncodeLogEntry encodes a mux entry to JSON, reporting encoder failures to
// stderr.
func EncodeLogEntry(enc *json.Encoder, stderr io.Writer, entry mux.Entry) {
	if enc == nil {
		return
	}
	record := NewLogRecord(entry)
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now()
	}
	if err := enc.Encode(&record); err != nil {
		fmt.Fprintf(stderr, "error: encode log: %v\n", err)
	}
}
