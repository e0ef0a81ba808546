package model

import (
	"fmt"
	"regexp"
)

// Segment is an output artifact produced by the muxer for a Stream.
// Segments are immutable and uploaded at most once.
type Segment struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
	Key  string `json:"key"`
}

// segmentNamePattern guards against path traversal when a segment or
// manifest name is served back out: ^[\w\-]+\.(ts|m3u8)$
var segmentNamePattern = regexp.MustCompile(`^[\w\-]+\.(ts|m3u8)$`)

// ValidSegmentName reports whether name is safe to serve as a path segment.
func ValidSegmentName(name string) bool {
	return segmentNamePattern.MatchString(name)
}

// HLSKey computes the object key for a muxer output file (segment or
// manifest) of stream streamID: {prefix}/{streamId}/hls/{name}
func HLSKey(prefix, streamID, name string) string {
	return fmt.Sprintf("%s/%s/hls/%s", prefix, streamID, name)
}

// ManifestName is the fixed filename the muxer writes its playlist to.
const ManifestName = "stream.m3u8"
