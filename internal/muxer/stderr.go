package muxer

import (
	"bufio"
	"io"
	"log/slog"
	"strings"
	"sync"
)

// maxErrorMarkers bounds how many stderr error lines are retained per
// muxer process, per the muxer driver's stderr parsing contract.
const maxErrorMarkers = 10

// errorMarkers and segmentOpenMarkers are substrings the muxer's stderr
// lines are checked against. A real muxer binary's exact wording varies
// by build; these cover ffmpeg's conventional phrasing.
var (
	errorMarkers       = []string{"error", "invalid", "failed", "could not"}
	segmentOpenMarkers = []string{"opening", "segment"}
)

// StderrWatcher line-scans a muxer child's stderr, logging segment-open
// markers as informational and retaining the last maxErrorMarkers lines
// flagged as errors.
type StderrWatcher struct {
	log *slog.Logger

	mu     sync.Mutex
	errors []string
}

// NewStderrWatcher returns a watcher that logs through log.
func NewStderrWatcher(log *slog.Logger) *StderrWatcher {
	return &StderrWatcher{log: log}
}

// Watch line-scans r until it is closed or EOF, classifying each line.
// It runs synchronously; callers spawn it as a goroutine against the
// muxer child's stderr pipe.
func (w *StderrWatcher) Watch(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		w.classify(line)
	}
}

func (w *StderrWatcher) classify(line string) {
	lower := strings.ToLower(line)
	switch {
	case containsAny(lower, errorMarkers):
		w.log.Warn("muxer stderr error marker", "line", line)
		w.mu.Lock()
		w.errors = append(w.errors, line)
		if len(w.errors) > maxErrorMarkers {
			w.errors = w.errors[len(w.errors)-maxErrorMarkers:]
		}
		w.mu.Unlock()
	case containsAny(lower, segmentOpenMarkers):
		w.log.Debug("muxer stderr segment marker", "line", line)
	default:
		w.log.Debug("muxer stderr", "line", line)
	}
}

// Errors returns a snapshot of the last (up to 10) error-flagged lines.
func (w *StderrWatcher) Errors() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, len(w.errors))
	copy(out, w.errors)
	return out
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
