// Package model defines the data types shared by the gateway, worker, and
// broker/storage layers: Stream, Chunk, Segment, Manifest, ControlEvent,
// ProgressEvent, and Worker.
package model

import "time"

// StreamStatus is the lifecycle state of a Stream.
type StreamStatus string

const (
	StatusStarting StreamStatus = "Starting"
	StatusLive     StreamStatus = "Live"
	StatusEnding   StreamStatus = "Ending"
	StatusComplete StreamStatus = "Complete"
	StatusError    StreamStatus = "Error"
)

// GracePeriod is how long a Stream record survives in the broker after
// reaching Complete, to permit late status queries.
const GracePeriod = 5 * time.Minute

// Stream is a live session identified by an externally assigned StreamId.
// At most one worker may hold non-empty Owner at any instant for a given
// StreamId.
type Stream struct {
	StreamID   string       `json:"stream_id"`
	Status     StreamStatus `json:"status"`
	Owner      string       `json:"owner,omitempty"`
	Bucket     string       `json:"bucket"`
	Prefix     string       `json:"prefix"`
	ChunkCount int64        `json:"chunk_count"`
	StartTime  time.Time    `json:"start_time"`
}

// PauseEvent records one recorder pause/resume cycle.
type PauseEvent struct {
	PausedAt  time.Time `json:"pausedAt"`
	ResumedAt time.Time `json:"resumedAt"`
	Duration  float64   `json:"duration"`
}

// StopStats carries the recorder-supplied statistics attached to a stop
// control frame / StreamStop control event.
type StopStats struct {
	Duration           float64      `json:"duration"`
	PauseCount         int          `json:"pauseCount"`
	PauseDurationTotal float64      `json:"pauseDurationTotal"`
	PauseEvents        []PauseEvent `json:"pauseEvents"`
}

// Worker identifies a transcode worker process.
type Worker struct {
	WorkerID string `json:"worker_id"`
}
