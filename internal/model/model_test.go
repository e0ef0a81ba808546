package model

import (
	"testing"
	"time"
)

func TestChunkKey(t *testing.T) {
	got := ChunkKey("recordings/2026/07/30", "s1", 7)
	want := "recordings/2026/07/30/s1/chunks/chunk_00000007.webm"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestHLSKey(t *testing.T) {
	got := HLSKey("recordings/2026/07/30", "s1", "segment_00001.ts")
	want := "recordings/2026/07/30/s1/hls/segment_00001.ts"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestValidSegmentName(t *testing.T) {
	cases := map[string]bool{
		"segment_00001.ts": true,
		"stream.m3u8":       true,
		"../etc/passwd":     false,
		"seg/ment.ts":       false,
		"segment.mp4":       false,
	}
	for name, want := range cases {
		if got := ValidSegmentName(name); got != want {
			t.Errorf("ValidSegmentName(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestDatePrefix(t *testing.T) {
	ts := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	if got := DatePrefix(ts); got != "recordings/2026/07/30" {
		t.Fatalf("unexpected date prefix: %s", got)
	}
}

func TestControlEventConstructors(t *testing.T) {
	start := NewStreamStart("s1", "bucket", "recordings/2026/07/30")
	if start.Type != ControlStreamStart || start.StreamID != "s1" {
		t.Fatalf("unexpected start event: %+v", start)
	}
	stop := NewStreamStop("s1", StopStats{Duration: 40})
	if stop.Type != ControlStreamStop || stop.Stats == nil || stop.Stats.Duration != 40 {
		t.Fatalf("unexpected stop event: %+v", stop)
	}
}

func TestProgressEventConstructors(t *testing.T) {
	if ev := SegmentReady("s1", "segment_00001.ts", 1024); ev.Type != ProgressSegmentReady || ev.SegmentSize != 1024 {
		t.Fatalf("unexpected segment ready event: %+v", ev)
	}
	if ev := StreamComplete("s1", 10, 2048); ev.SegmentCount != 10 || ev.TotalBytes != 2048 {
		t.Fatalf("unexpected stream complete event: %+v", ev)
	}
}
