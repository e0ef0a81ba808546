package worker

import (
	"context"
	"strconv"
	"strings"

	"github.com/riverlane-stream/live-pipeline/internal/broker"
	"github.com/riverlane-stream/live-pipeline/internal/hooks"
	"github.com/riverlane-stream/live-pipeline/internal/model"
)

// reclaimCandidate describes a stream eligible for ownership takeover.
type reclaimCandidate struct {
	streamID  string
	ownerKey  string
	bucket    string
	prefix    string
	resumeSeq int64
	draining  bool
}

// reclaimSweep lists every owned stream, and for any whose owning
// worker's heartbeat has expired, takes over ownership and resumes
// transcoding from its last confirmed chunk, provided the stream is still
// Live or Ending (a Complete or Error stream is left alone — its owner
// key will fall out of this sweep once whatever process still holds it
// deletes it on finalize). Runs once at startup and then on the
// configured cron schedule.
func (w *Worker) reclaimSweep(ctx context.Context) error {
	ownerKeys, err := w.broker.Keys(ctx, "owner:*")
	if err != nil {
		return err
	}

	for _, ownerKey := range ownerKeys {
		cand, eligible, err := w.evaluateCandidate(ctx, ownerKey)
		if err != nil {
			w.log.Error("reclaim eligibility check failed", "owner_key", ownerKey, "error", err)
			continue
		}
		if !eligible {
			continue
		}
		if err := w.takeOver(ctx, cand); err != nil {
			w.log.Error("reclaim failed", "stream_id", cand.streamID, "error", err)
		}
	}
	return nil
}

// evaluateCandidate decides, with no side effects, whether ownerKey's
// stream should be reclaimed by this worker: not already owned by this
// worker, its owning worker's heartbeat has expired, and its Stream state
// is still Live or Ending.
func (w *Worker) evaluateCandidate(ctx context.Context, ownerKey string) (reclaimCandidate, bool, error) {
	streamID := strings.TrimPrefix(ownerKey, "owner:")
	if w.owns(streamID) {
		return reclaimCandidate{}, false, nil
	}

	owningWorker, ok, err := w.broker.Get(ctx, ownerKey)
	if err != nil || !ok {
		return reclaimCandidate{}, false, err
	}

	_, alive, err := w.broker.Get(ctx, broker.HeartbeatKey(owningWorker))
	if err != nil {
		return reclaimCandidate{}, false, err
	}
	if alive {
		return reclaimCandidate{}, false, nil // owning worker is still live; not ours to take
	}

	state, err := w.broker.HGetAll(ctx, broker.StateKey(streamID))
	if err != nil {
		return reclaimCandidate{}, false, err
	}
	status := model.StreamStatus(state["status"])
	if status != model.StatusLive && status != model.StatusEnding {
		return reclaimCandidate{}, false, nil
	}

	resumeSeq, _ := strconv.ParseInt(state["chunkCount"], 10, 64)
	return reclaimCandidate{
		streamID:  streamID,
		ownerKey:  ownerKey,
		bucket:    state["bucket"],
		prefix:    state["prefix"],
		resumeSeq: resumeSeq,
		draining:  status == model.StatusEnding,
	}, true, nil
}

func (w *Worker) owns(streamID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.tasks[streamID]
	return ok
}

// takeOver reassigns cand's ownership key to this worker and resumes its
// transcoding task from its last confirmed chunk.
func (w *Worker) takeOver(ctx context.Context, cand reclaimCandidate) error {
	// Best-effort takeover: the broker abstraction has no compare-and-swap,
	// so a lost heartbeat's owner key is deleted and immediately reclaimed
	// rather than atomically reassigned.
	if err := w.broker.Delete(ctx, cand.ownerKey); err != nil {
		return err
	}
	claimed, err := w.broker.SetNX(ctx, cand.ownerKey, w.cfg.WorkerID, 0)
	if err != nil {
		return err
	}
	if !claimed {
		return nil // another worker's sweep won the race
	}

	w.log.Info("reclaimed stream", "stream_id", cand.streamID, "resume_seq", cand.resumeSeq)
	w.triggerHookEvent(hooks.EventStreamClaimed, cand.streamID, map[string]interface{}{"reclaimed": true, "resume_seq": cand.resumeSeq})
	w.startTask(cand.streamID, cand.bucket, cand.prefix, cand.resumeSeq)

	if cand.draining {
		w.mu.Lock()
		t := w.tasks[cand.streamID]
		w.mu.Unlock()
		if t != nil {
			t.markDraining()
		}
	}
	return nil
}
