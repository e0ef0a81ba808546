package gateway

import "github.com/riverlane-stream/live-pipeline/internal/model"

// frameType is the wire-level "type" tag of a recorder control frame, and
// of the Gateway's responses.
type frameType string

const (
	frameStart   frameType = "start"
	frameStop    frameType = "stop"
	framePing    frameType = "ping"
	frameStarted frameType = "started"
	frameStopped frameType = "stopped"
	framePong    frameType = "pong"
	frameError   frameType = "error"
)

// envelope is parsed first to discover a frame's type before decoding its
// type-specific fields.
type envelope struct {
	Type frameType `json:"type"`
}

// startFrame is the first control frame a recorder MUST send. The wire
// field is recordingId, reusing the Recording Record's id as the StreamId.
type startFrame struct {
	Type     frameType `json:"type"`
	StreamID string    `json:"recordingId"`
}

// stopFrame ends a session, carrying recorder-measured statistics.
type stopFrame struct {
	Type               frameType          `json:"type"`
	Duration           float64            `json:"duration"`
	PauseCount         int                `json:"pauseCount"`
	PauseDurationTotal float64            `json:"pauseDurationTotal"`
	PauseEvents        []model.PauseEvent `json:"pauseEvents"`
}

// startedFrame acknowledges a successful start.
type startedFrame struct {
	Type     frameType          `json:"type"`
	StreamID string             `json:"streamId"`
	Status   model.StreamStatus `json:"status"`
}

// stoppedFrame acknowledges a stop; the Gateway replies immediately without
// waiting for finalization, so Status is always Ending here.
type stoppedFrame struct {
	Type     frameType          `json:"type"`
	StreamID string             `json:"streamId"`
	Status   model.StreamStatus `json:"status"`
}

// pongFrame answers a keepalive ping.
type pongFrame struct {
	Type      frameType `json:"type"`
	Timestamp int64     `json:"timestamp"`
}

// errorFrame reports a protocol violation or a failed chunk write.
type errorFrame struct {
	Type   frameType `json:"type"`
	Detail string    `json:"detail"`
}
