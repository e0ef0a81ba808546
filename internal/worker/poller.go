package worker

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/riverlane-stream/live-pipeline/internal/hooks"
	"github.com/riverlane-stream/live-pipeline/internal/model"
	"github.com/riverlane-stream/live-pipeline/internal/muxer"
)

// pollerState tracks which outputs have already been uploaded, so a
// segment is never re-uploaded and the manifest is re-uploaded only when
// it has actually changed since the last upload.
type pollerState struct {
	uploadedSegments    map[string]struct{}
	lastManifestModTime time.Time
}

// pollOutputs watches the muxer's output directory for new segments and
// manifest updates, uploading each once it has been quiescent for
// Quiescence (the muxer has finished writing that revision), segments
// before the manifest within a given sweep so a viewer never sees a
// manifest reference a segment that isn't in storage yet. It runs until
// stop is closed, then performs one final sweep to catch anything the
// muxer flushed on exit.
func (w *Worker) pollOutputs(t *task, proc *muxer.Process, stop <-chan struct{}) {
	outDir := proc.OutputDir()
	state := &pollerState{uploadedSegments: make(map[string]struct{})}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.log.Error("fsnotify unavailable, falling back to poll-interval only", "stream_id", t.streamID, "error", err)
		watcher = nil
	} else {
		defer watcher.Close()
		if err := watcher.Add(outDir); err != nil {
			w.log.Error("fsnotify watch failed, falling back to poll-interval only", "stream_id", t.streamID, "error", err)
		}
	}

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	var events chan fsnotify.Event
	if watcher != nil {
		events = watcher.Events
	}

	for {
		select {
		case <-stop:
			w.sweepOutputs(t, outDir, state)
			return
		case <-ticker.C:
			w.sweepOutputs(t, outDir, state)
		case _, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			w.sweepOutputs(t, outDir, state)
		}
	}
}

// sweepOutputs uploads every quiescent, not-yet-uploaded segment, then the
// manifest if it has changed since its last upload. The manifest upload is
// skipped entirely if any segment upload attempted in this cycle failed,
// so a viewer is never handed a manifest naming a segment that isn't in
// object storage yet — the failed segment is retried on the next cycle,
// and the manifest will catch up with it then.
func (w *Worker) sweepOutputs(t *task, outDir string, state *pollerState) {
	entries, err := os.ReadDir(outDir)
	if err != nil {
		return
	}

	var manifest os.DirEntry
	segmentFailed := false
	for _, e := range entries {
		if e.IsDir() || !model.ValidSegmentName(e.Name()) {
			continue
		}
		if e.Name() == model.ManifestName {
			manifest = e
			continue
		}
		if _, done := state.uploadedSegments[e.Name()]; done {
			continue
		}
		if !w.uploadSegment(t, outDir, e, state) {
			segmentFailed = true
		}
	}

	if manifest != nil && !segmentFailed {
		w.uploadManifest(t, outDir, manifest, state)
	}
}

// quiescent reports whether path has not been modified within
// w.cfg.Quiescence, meaning the muxer is done writing this revision.
func (w *Worker) quiescent(path string) (os.FileInfo, bool) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, false
	}
	return info, time.Since(info.ModTime()) >= w.cfg.Quiescence
}

// uploadSegment uploads e if it is quiescent, reporting whether the sweep
// should be treated as clean for purposes of the manifest-upload gate: a
// segment that isn't quiescent yet is not a failure (it will be picked up
// once it settles), but a segment whose upload actually failed is.
func (w *Worker) uploadSegment(t *task, outDir string, e os.DirEntry, state *pollerState) bool {
	full := filepath.Join(outDir, e.Name())
	info, ready := w.quiescent(full)
	if !ready {
		return true
	}

	key := model.HLSKey(t.prefix, t.streamID, e.Name())
	if err := w.store.PutFile(context.Background(), key, full); err != nil {
		w.log.Error("segment upload failed, retrying next poll cycle", "stream_id", t.streamID, "name", e.Name(), "error", err)
		return false
	}

	state.uploadedSegments[e.Name()] = struct{}{}
	t.addOutput(info.Size())
	w.publish(t.streamID, model.SegmentReady(t.streamID, e.Name(), info.Size()))
	w.triggerHookEvent(hooks.EventSegmentUploaded, t.streamID, map[string]interface{}{"name": e.Name(), "size": info.Size()})
	return true
}

func (w *Worker) uploadManifest(t *task, outDir string, e os.DirEntry, state *pollerState) {
	full := filepath.Join(outDir, e.Name())
	info, ready := w.quiescent(full)
	if !ready || !info.ModTime().After(state.lastManifestModTime) {
		return
	}

	key := model.HLSKey(t.prefix, t.streamID, e.Name())
	if err := w.store.PutFile(context.Background(), key, full); err != nil {
		w.log.Error("manifest upload failed, retrying next poll cycle", "stream_id", t.streamID, "error", err)
		return
	}

	state.lastManifestModTime = info.ModTime()
	w.publish(t.streamID, model.ManifestUpdated(t.streamID, key))
}
