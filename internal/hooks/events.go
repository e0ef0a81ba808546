// Event system for gateway and worker lifecycle hooks.
// This file defines the core event types and data structures used by the hook system.
package hooks

import (
	"time"
)

// EventType represents the type of pipeline lifecycle event that occurred.
type EventType string

const (
	// Connection events, raised by the gateway for each recorder websocket.
	EventConnectionAccept EventType = "connection_accept"
	EventConnectionClose  EventType = "connection_close"

	// Stream lifecycle events.
	EventStreamStart EventType = "stream_start"
	EventStreamStop  EventType = "stream_stop"

	// Chunk events, raised by the gateway on each recorder frame.
	EventChunkWritten EventType = "chunk_written"
	EventChunkFailed  EventType = "chunk_failed"

	// Worker/transcode events.
	EventStreamClaimed   EventType = "stream_claimed"
	EventSegmentUploaded EventType = "segment_uploaded"
	EventStreamComplete  EventType = "stream_complete"
	EventStreamError     EventType = "stream_error"
)

// Event represents a single pipeline event that can trigger hooks.
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp int64                  `json:"timestamp"`
	ConnID    string                 `json:"conn_id,omitempty"`
	StreamID  string                 `json:"stream_id,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// NewEvent creates a new event with the current timestamp.
func NewEvent(eventType EventType) *Event {
	return &Event{
		Type:      eventType,
		Timestamp: time.Now().Unix(),
		Data:      make(map[string]interface{}),
	}
}

// WithConnID sets the connection ID for the event.
func (e *Event) WithConnID(connID string) *Event {
	e.ConnID = connID
	return e
}

// WithStreamID sets the stream ID for the event.
func (e *Event) WithStreamID(streamID string) *Event {
	e.StreamID = streamID
	return e
}

// WithData adds data fields to the event.
func (e *Event) WithData(key string, value interface{}) *Event {
	if e.Data == nil {
		e.Data = make(map[string]interface{})
	}
	e.Data[key] = value
	return e
}

// String returns a human-readable string representation of the event.
func (e *Event) String() string {
	if e.StreamID != "" {
		return string(e.Type) + ":" + e.StreamID
	}
	if e.ConnID != "" {
		return string(e.Type) + ":" + e.ConnID
	}
	return string(e.Type)
}
