// Package worker implements the transcode worker: one control-log
// follower task, one heartbeat task, and a per-stream transcoding task
// composed of a muxer driver, a chunk consumer, an output poller, and a
// finalizer, per the distributed ownership and ordering contract.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/riverlane-stream/live-pipeline/internal/broker"
	"github.com/riverlane-stream/live-pipeline/internal/hooks"
	"github.com/riverlane-stream/live-pipeline/internal/model"
	"github.com/riverlane-stream/live-pipeline/internal/recording"
	"github.com/riverlane-stream/live-pipeline/internal/retry"
	"github.com/riverlane-stream/live-pipeline/internal/storage"
)

// controlLogBlock is the fixed blocking-read budget for the control log,
// per the concurrency model (re-checks the shutdown flag every cycle).
const controlLogBlock = time.Second

// Config holds the Worker's runtime configuration.
type Config struct {
	WorkerID          string
	MuxerBinary       string
	TempRoot          string
	PollInterval      time.Duration
	Quiescence        time.Duration
	ReadTimeout       time.Duration
	DrainGrace        time.Duration
	HeartbeatInterval time.Duration
	HeartbeatTTL      time.Duration
	ReclaimInterval   string // cron expression
}

// Worker claims streams announced on the control log, drives one
// transcoding task per owned stream, and maintains its liveness key.
type Worker struct {
	cfg       Config
	broker    broker.Broker
	store     storage.Store
	recording *recording.Client
	hookMgr   *hooks.HookManager
	log       *slog.Logger

	mu    sync.Mutex
	tasks map[string]*task

	cron *cron.Cron
}

// New wires a Worker from its collaborators. recording and hookMgr may be
// nil when those collaborators are not configured (e.g. tests).
func New(cfg Config, b broker.Broker, store storage.Store, rec *recording.Client, hookMgr *hooks.HookManager, log *slog.Logger) *Worker {
	return &Worker{
		cfg:       cfg,
		broker:    b,
		store:     store,
		recording: rec,
		hookMgr:   hookMgr,
		log:       log,
		tasks:     make(map[string]*task),
	}
}

// triggerHookEvent fires eventType on streamID, tolerating a nil hook
// manager.
func (w *Worker) triggerHookEvent(eventType hooks.EventType, streamID string, data map[string]interface{}) {
	if w.hookMgr == nil {
		return
	}
	event := hooks.NewEvent(eventType).WithStreamID(streamID)
	for key, value := range data {
		event.WithData(key, value)
	}
	w.hookMgr.TriggerEvent(context.Background(), *event)
}

// Run performs the startup reclaim sweep, starts the periodic reclaim
// schedule and heartbeat task, and then follows the control log until ctx
// is cancelled. Shutdown flow: stop accepting new control events, mark
// every owned stream draining, wait for tasks to finalize, then let the
// heartbeat stop last.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.reclaimSweep(ctx); err != nil {
		w.log.Error("startup reclaim sweep failed", "error", err)
	}

	w.cron = cron.New(cron.WithSeconds())
	if w.cfg.ReclaimInterval != "" {
		if _, err := w.cron.AddFunc(w.cfg.ReclaimInterval, func() {
			if err := w.reclaimSweep(context.Background()); err != nil {
				w.log.Error("scheduled reclaim sweep failed", "error", err)
			}
		}); err != nil {
			w.log.Error("invalid reclaim schedule", "expr", w.cfg.ReclaimInterval, "error", err)
		}
	}
	w.cron.Start()

	// The heartbeat has its own context so it keeps running through the
	// drain below and is stopped only after every task has finished.
	heartbeatCtx, stopHeartbeat := context.WithCancel(context.Background())
	heartbeatDone := make(chan struct{})
	go func() {
		defer close(heartbeatDone)
		w.runHeartbeat(heartbeatCtx)
	}()

	err := w.followControlLog(ctx)

	w.drainAllTasks()
	w.cron.Stop()
	stopHeartbeat()
	<-heartbeatDone
	return err
}

// followControlLog tails the control log from "new entries only" and
// dispatches StreamStart/StreamStop events to claim or drain streams.
func (w *Worker) followControlLog(ctx context.Context) error {
	cursor := "$"
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		entries, err := w.broker.ReadFrom(ctx, broker.ControlLog, cursor, controlLogBlock)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.log.Error("control log read failed", "error", err)
			continue
		}
		for _, e := range entries {
			cursor = e.ID
			w.dispatchControlEvent(ctx, e)
		}
	}
}

func (w *Worker) dispatchControlEvent(ctx context.Context, e broker.LogEntry) {
	raw, ok := e.Fields["event"]
	if !ok {
		return
	}
	var evt model.ControlEvent
	if err := json.Unmarshal([]byte(raw), &evt); err != nil {
		w.log.Error("control log: malformed event", "error", err)
		return
	}

	switch evt.Type {
	case model.ControlStreamStart:
		w.handleStreamStart(ctx, evt)
	case model.ControlStreamStop:
		w.handleStreamStop(evt)
	}
}

// handleStreamStart attempts to claim streamId; on success it spawns a
// per-stream transcoding task via startTask, which publishes
// StatusChange(Live). The status set has no separate Transcoding value. A
// failed claim (another worker already owns it) is ignored.
func (w *Worker) handleStreamStart(ctx context.Context, evt model.ControlEvent) {
	claimed, err := w.broker.SetNX(ctx, broker.OwnerKey(evt.StreamID), w.cfg.WorkerID, 0)
	if err != nil {
		w.log.Error("ownership claim failed", "stream_id", evt.StreamID, "error", err)
		return
	}
	if !claimed {
		return
	}
	w.triggerHookEvent(hooks.EventStreamClaimed, evt.StreamID, nil)
	w.startTask(evt.StreamID, evt.Bucket, evt.Prefix, 0)
}

// handleStreamStop marks the owned task draining; ignored if this worker
// does not own the stream.
func (w *Worker) handleStreamStop(evt model.ControlEvent) {
	w.mu.Lock()
	t, ok := w.tasks[evt.StreamID]
	w.mu.Unlock()
	if !ok {
		return
	}
	t.markDraining()
}

// startTask spawns and tracks a new per-stream transcoding task, resuming
// from resumeSeq (0 for a freshly claimed stream).
func (w *Worker) startTask(streamID, bucket, prefix string, resumeSeq int64) {
	t := newTask(streamID, bucket, prefix, resumeSeq)
	w.mu.Lock()
	w.tasks[streamID] = t
	w.mu.Unlock()

	w.publishStatusChange(streamID, model.StatusLive)

	go func() {
		w.runTask(t)
		w.mu.Lock()
		delete(w.tasks, streamID)
		w.mu.Unlock()
	}()
}

// drainAllTasks marks every currently owned task draining, for graceful
// worker shutdown, and waits for them to finish.
func (w *Worker) drainAllTasks() {
	w.mu.Lock()
	tasks := make([]*task, 0, len(w.tasks))
	for _, t := range w.tasks {
		tasks = append(tasks, t)
	}
	w.mu.Unlock()

	for _, t := range tasks {
		t.markDraining()
	}
	for _, t := range tasks {
		<-t.done
	}
}

// runHeartbeat refreshes the worker's liveness key on a fixed cadence,
// retrying forever with backoff on broker failure, per the error handling
// design. Run cancels ctx only after it has drained every task.
func (w *Worker) runHeartbeat(ctx context.Context) {
	key := broker.HeartbeatKey(w.cfg.WorkerID)
	refresh := func() error {
		ok, err := w.broker.SetNX(ctx, key, w.cfg.WorkerID, w.cfg.HeartbeatTTL)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		_, err = w.broker.Refresh(ctx, key, w.cfg.HeartbeatTTL)
		return err
	}

	ticker := time.NewTicker(w.cfg.HeartbeatInterval)
	defer ticker.Stop()
	_ = retry.Forever(ctx, 500*time.Millisecond, refresh)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := retry.Forever(ctx, 500*time.Millisecond, refresh); err != nil {
				return
			}
		}
	}
}

// publishStatusChange publishes a StatusChange progress event on
// streamID's channel.
func (w *Worker) publishStatusChange(streamID string, status model.StreamStatus) {
	w.publish(streamID, model.StatusChange(streamID, status))
}

// publish serializes and publishes evt on streamID's progress channel.
func (w *Worker) publish(streamID string, evt model.ProgressEvent) {
	payload, err := json.Marshal(evt)
	if err != nil {
		w.log.Error("progress marshal failed", "stream_id", streamID, "error", err)
		return
	}
	if err := w.broker.Publish(context.Background(), broker.ProgressChannel(streamID), string(payload)); err != nil {
		w.log.Error("progress publish failed", "stream_id", streamID, "error", err)
	}
}
