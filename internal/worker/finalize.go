package worker

import (
	"context"
	"os"

	"github.com/riverlane-stream/live-pipeline/internal/broker"
	"github.com/riverlane-stream/live-pipeline/internal/hooks"
	"github.com/riverlane-stream/live-pipeline/internal/model"
)

// finalize runs once the muxer has exited and the poller has stopped. An
// error surfaced while the task was still Live (an unexpected muxer crash
// or an exhausted chunk GET retry budget) finalizes in error mode;
// anything else — including a non-zero muxer exit that followed an
// intentional stdin close during draining — finalizes normally with
// whatever was produced.
func (w *Worker) finalize(t *task, outDir string, cause error) {
	draining := t.isDraining()
	segmentCount, totalBytes := t.outputStats()

	if cause != nil && !draining {
		w.finalizeError(t, cause)
	} else {
		w.finalizeNormal(t, segmentCount, totalBytes)
	}

	if err := os.RemoveAll(outDir); err != nil {
		w.log.Error("temp dir cleanup failed", "stream_id", t.streamID, "error", err)
	}
	if err := w.broker.Delete(context.Background(), broker.OwnerKey(t.streamID)); err != nil {
		w.log.Error("owner key release failed", "stream_id", t.streamID, "error", err)
	}
}

func (w *Worker) finalizeNormal(t *task, segmentCount int, totalBytes int64) {
	ctx := context.Background()
	if err := w.broker.HSet(ctx, broker.StateKey(t.streamID), "status", string(model.StatusComplete)); err != nil {
		w.log.Error("finalize: broker status write failed", "stream_id", t.streamID, "error", err)
	}
	w.publishStatusChange(t.streamID, model.StatusComplete)
	w.publish(t.streamID, model.StreamComplete(t.streamID, segmentCount, totalBytes))
	w.triggerHookEvent(hooks.EventStreamComplete, t.streamID, map[string]interface{}{"segment_count": segmentCount, "total_bytes": totalBytes})

	if w.recording != nil {
		if err := w.recording.MarkComplete(ctx, t.streamID, totalBytes); err != nil {
			w.log.Error("finalize: recording record update failed", "stream_id", t.streamID, "error", err)
		}
	}
}

func (w *Worker) finalizeError(t *task, cause error) {
	ctx := context.Background()
	if err := w.broker.HSet(ctx, broker.StateKey(t.streamID), "status", string(model.StatusError)); err != nil {
		w.log.Error("finalize: broker status write failed", "stream_id", t.streamID, "error", err)
	}
	w.publish(t.streamID, model.StreamError(t.streamID, cause.Error()))
	w.triggerHookEvent(hooks.EventStreamError, t.streamID, map[string]interface{}{"reason": cause.Error()})

	if w.recording != nil {
		if err := w.recording.UpdateStatus(ctx, t.streamID, model.StatusError); err != nil {
			w.log.Error("finalize: recording record update failed", "stream_id", t.streamID, "error", err)
		}
	}
	w.log.Error("stream finalized in error mode", "stream_id", t.streamID, "error", cause)
}
