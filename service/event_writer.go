package service

import (
	"bytes"
	"io"
	"sync"
)

// EventEmittingWriter buffers guest output for a polling front end to
// drain with GetBufferAndClear. The HTTP API layer has its own websocket
// broadcaster (api.EventWriter) for push delivery; this writer backs the
// simpler poll-based consumers that drain it through
// DebuggerService.GetOutput instead of subscribing to a feed.
type EventEmittingWriter struct {
	buffer *bytes.Buffer
	mutex  sync.Mutex
}

// NewEventEmittingWriter creates a new event-emitting writer.
func NewEventEmittingWriter(buffer *bytes.Buffer) *EventEmittingWriter {
	return &EventEmittingWriter{buffer: buffer}
}

// Write implements io.Writer.
func (w *EventEmittingWriter) Write(p []byte) (n int, err error) {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return w.buffer.Write(p)
}

// GetBufferAndClear returns buffer contents and clears it.
func (w *EventEmittingWriter) GetBufferAndClear() string {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	output := w.buffer.String()
	w.buffer.Reset()
	return output
}

var _ io.Writer = (*EventEmittingWriter)(nil)
