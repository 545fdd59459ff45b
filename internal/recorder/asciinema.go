// Package recorder writes terminal session recordings in asciinema v2
// format (JSON lines: one header object, then [offset, type, data] events).
package recorder

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Header is the asciinema v2 recording header.
type Header struct {
	Version   int               `json:"version"`
	Width     int               `json:"width"`
	Height    int               `json:"height"`
	Timestamp int64             `json:"timestamp"`
	Env       map[string]string `json:"env,omitempty"`
}

// Event is a single recording event. The wire form is a three-element
// JSON array: [time_offset, event_type, data].
type Event struct {
	Offset float64
	Type   string // "o" for output, "i" for input
	Data   string
}

// MarshalJSON encodes the event as its array form.
func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal([]interface{}{e.Offset, e.Type, e.Data})
}

// UnmarshalJSON decodes the array form.
func (e *Event) UnmarshalJSON(data []byte) error {
	var arr []interface{}
	if err := json.Unmarshal(data, &arr); err != nil {
		return err
	}
	if len(arr) != 3 {
		return fmt.Errorf("invalid event: expected 3 elements, got %d", len(arr))
	}
	offset, ok := arr[0].(float64)
	if !ok {
		return fmt.Errorf("invalid event time offset")
	}
	typ, ok := arr[1].(string)
	if !ok {
		return fmt.Errorf("invalid event type")
	}
	payload, ok := arr[2].(string)
	if !ok {
		return fmt.Errorf("invalid event data")
	}
	e.Offset = offset
	e.Type = typ
	e.Data = payload
	return nil
}

// Recorder streams a session recording to a writer. All methods are safe
// for concurrent use; offsets are relative to the recorder's start time.
type Recorder struct {
	mu      sync.Mutex
	w       io.Writer
	file    *os.File // set only when the recorder owns the file
	started time.Time
}

// New creates a Recorder writing to the file at path, creating it.
func New(path string) (*Recorder, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create recording file: %w", err)
	}
	return &Recorder{w: file, file: file, started: time.Now()}, nil
}

// NewWithWriter creates a Recorder writing to w. Used in tests.
func NewWithWriter(w io.Writer) *Recorder {
	return &Recorder{w: w, started: time.Now()}
}

// WriteHeader writes the v2 header line. Call once, before any event.
func (r *Recorder) WriteHeader(cols, rows int, env map[string]string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	header := Header{
		Version:   2,
		Width:     cols,
		Height:    rows,
		Timestamp: r.started.Unix(),
		Env:       env,
	}
	data, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}
	if _, err := r.w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	return nil
}

// WriteOutput records PTY output.
func (r *Recorder) WriteOutput(data []byte) error {
	return r.writeEvent("o", data)
}

// WriteInput records client input.
func (r *Recorder) WriteInput(data []byte) error {
	return r.writeEvent("i", data)
}

func (r *Recorder) writeEvent(typ string, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	event := Event{
		Offset: time.Since(r.started).Seconds(),
		Type:   typ,
		Data:   string(data),
	}
	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if _, err := r.w.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}
	return nil
}

// Close closes the underlying file, if the recorder owns one.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file != nil {
		return r.file.Close()
	}
	return nil
}

// StartTime returns when the recording began.
func (r *Recorder) StartTime() time.Time {
	return r.started
}
