package model

import "time"

// ControlEventType is the variant tag of a ControlEvent on the shared
// control log.
type ControlEventType string

const (
	ControlStreamStart ControlEventType = "stream_start"
	ControlStreamStop  ControlEventType = "stream_stop"
)

// ControlEvent is a record on the single shared control log, totally
// ordered by the broker. Only the fields relevant to Type are populated.
type ControlEvent struct {
	Type      ControlEventType `json:"type"`
	StreamID  string           `json:"stream_id"`
	Timestamp time.Time        `json:"timestamp"`

	// StreamStart fields.
	Bucket string `json:"bucket,omitempty"`
	Prefix string `json:"prefix,omitempty"`

	// StreamStop fields.
	Stats *StopStats `json:"stats,omitempty"`
}

// NewStreamStart builds a ControlEvent announcing a new stream.
func NewStreamStart(streamID, bucket, prefix string) ControlEvent {
	return ControlEvent{
		Type:      ControlStreamStart,
		StreamID:  streamID,
		Timestamp: time.Now(),
		Bucket:    bucket,
		Prefix:    prefix,
	}
}

// NewStreamStop builds a ControlEvent announcing a stream's end.
func NewStreamStop(streamID string, stats StopStats) ControlEvent {
	return ControlEvent{
		Type:      ControlStreamStop,
		StreamID:  streamID,
		Timestamp: time.Now(),
		Stats:     &stats,
	}
}
