package muxer

import (
	"io"
	"log/slog"
	"strings"
	"testing"
)

func TestStderrWatcherClassifiesErrors(t *testing.T) {
	w := NewStderrWatcher(slog.New(slog.NewTextHandler(io.Discard, nil)))
	lines := strings.Join([]string{
		"opening segment_00001.ts for writing",
		"Error while decoding stream #0:0",
		"frame= 120 fps=30",
		"Invalid data found when processing input",
	}, "\n")

	w.Watch(strings.NewReader(lines))

	errs := w.Errors()
	if len(errs) != 2 {
		t.Fatalf("expected 2 error markers, got %d: %v", len(errs), errs)
	}
}

func TestStderrWatcherCapsAtTen(t *testing.T) {
	w := NewStderrWatcher(slog.New(slog.NewTextHandler(io.Discard, nil)))
	var b strings.Builder
	for i := 0; i < 15; i++ {
		b.WriteString("error: failed step\n")
	}
	w.Watch(strings.NewReader(b.String()))

	if got := len(w.Errors()); got != maxErrorMarkers {
		t.Fatalf("expected %d retained errors, got %d", maxErrorMarkers, got)
	}
}
