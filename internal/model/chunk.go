package model

import "fmt"

// Chunk is an ordered, immutable media fragment belonging to a Stream.
// Sequence numbers are 0-based, strictly increasing, and dense per Stream.
type Chunk struct {
	Seq       int64  `json:"seq"`
	Key       string `json:"key"`
	Size      int64  `json:"size"`
	Timestamp int64  `json:"timestamp"`
}

// ChunkKey computes the bit-exact object key for raw chunk n of stream
// streamID under date-prefixed path prefix, per the object key layout:
// {prefix}/{streamId}/chunks/chunk_{seq:08d}.webm
func ChunkKey(prefix, streamID string, seq int64) string {
	return fmt.Sprintf("%s/%s/chunks/chunk_%08d.webm", prefix, streamID, seq)
}
