package muxer

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestBuildArgs checks the zero-latency HLS profile flags are present
// with the spec-mandated values (4s segments, fixed filename templates).
func TestBuildArgs(t *testing.T) {
	args := buildArgs("/tmp/out")
	joined := filepath.Join("/tmp/out", segmentPattern)
	found := map[string]bool{}
	for i, a := range args {
		if a == "-hls_segment_filename" && i+1 < len(args) && args[i+1] == joined {
			found["segment_filename"] = true
		}
		if a == "-hls_time" && i+1 < len(args) && args[i+1] == "4" {
			found["hls_time"] = true
		}
	}
	if !found["segment_filename"] {
		t.Fatal("expected -hls_segment_filename pointing at the output dir")
	}
	if !found["hls_time"] {
		t.Fatal("expected -hls_time 4")
	}
}

// TestProcessLifecycleKill spawns /bin/sleep as a stand-in binary to
// exercise Start/Kill/Wait without depending on ffmpeg being installed.
// It asserts that Start succeeds, that Kill returns no error, that Wait
// returns within five seconds, and that OutputDir reports the configured
// directory; it does not assert a clean muxer exit.
func TestProcessLifecycleKill(t *testing.T) {
	if _, err := os.Stat("/bin/sleep"); err != nil {
		t.Skip("/bin/sleep not available in this environment")
	}

	dir := t.TempDir()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	p, err := Start(context.Background(), Config{Binary: "/bin/sleep", OutputDir: dir}, log)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	// /bin/sleep ignores the HLS profile flags as positional arguments and
	// exits with a usage error quickly, or may linger briefly; either way
	// Kill must be safe to call.
	if err := p.Kill(); err != nil {
		t.Fatalf("kill: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- p.Wait() }()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for killed muxer process to exit")
	}

	if p.OutputDir() != dir {
		t.Fatalf("expected output dir %s, got %s", dir, p.OutputDir())
	}
}
