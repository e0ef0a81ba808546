package model

import "time"

// ProgressEventType is the variant tag of a ProgressEvent published per
// Stream and relayed to viewers.
type ProgressEventType string

const (
	ProgressSegmentReady    ProgressEventType = "segmentReady"
	ProgressManifestUpdated ProgressEventType = "manifestUpdated"
	ProgressStatusChange    ProgressEventType = "statusChange"
	ProgressStreamComplete  ProgressEventType = "streamComplete"
	ProgressStreamError     ProgressEventType = "streamError"
)

// ProgressEvent is a self-describing record published on a stream's
// progress channel. Consumers (the gateway, and transitively viewers)
// treat each event independently; no ordering across channels is assumed.
type ProgressEvent struct {
	Type      ProgressEventType `json:"type"`
	StreamID  string            `json:"stream_id"`
	Timestamp time.Time         `json:"timestamp"`

	// SegmentReady fields.
	SegmentName string `json:"name,omitempty"`
	SegmentSize int64  `json:"size,omitempty"`

	// ManifestUpdated fields.
	ManifestKey string `json:"key,omitempty"`

	// StatusChange fields.
	NewStatus StreamStatus `json:"status,omitempty"`

	// StreamComplete fields.
	SegmentCount int   `json:"segmentCount,omitempty"`
	TotalBytes   int64 `json:"totalBytes,omitempty"`

	// StreamError fields.
	Reason string `json:"reason,omitempty"`
}

func SegmentReady(streamID, name string, size int64) ProgressEvent {
	return ProgressEvent{Type: ProgressSegmentReady, StreamID: streamID, Timestamp: time.Now(), SegmentName: name, SegmentSize: size}
}

func ManifestUpdated(streamID, key string) ProgressEvent {
	return ProgressEvent{Type: ProgressManifestUpdated, StreamID: streamID, Timestamp: time.Now(), ManifestKey: key}
}

func StatusChange(streamID string, status StreamStatus) ProgressEvent {
	return ProgressEvent{Type: ProgressStatusChange, StreamID: streamID, Timestamp: time.Now(), NewStatus: status}
}

func StreamComplete(streamID string, segmentCount int, totalBytes int64) ProgressEvent {
	return ProgressEvent{Type: ProgressStreamComplete, StreamID: streamID, Timestamp: time.Now(), SegmentCount: segmentCount, TotalBytes: totalBytes}
}

func StreamError(streamID, reason string) ProgressEvent {
	return ProgressEvent{Type: ProgressStreamError, StreamID: streamID, Timestamp: time.Now(), Reason: reason}
}
