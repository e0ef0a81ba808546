package worker

import (
	"context"
	"testing"
	"time"

	"github.com/riverlane-stream/live-pipeline/internal/broker"
	"github.com/riverlane-stream/live-pipeline/internal/model"
)

func TestRunHeartbeatSetsLivenessKey(t *testing.T) {
	b := broker.NewMemoryBroker()
	w := New(Config{WorkerID: "w1", HeartbeatInterval: time.Hour, HeartbeatTTL: 3 * time.Hour}, b, nil, nil, nil, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.runHeartbeat(ctx)
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if _, ok, _ := b.Get(context.Background(), broker.HeartbeatKey("w1")); ok {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	v, ok, err := b.Get(context.Background(), broker.HeartbeatKey("w1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok || v != "w1" {
		t.Fatalf("expected heartbeat key set to w1, got %q (present=%v)", v, ok)
	}

	cancel()
	<-done
}

func TestHandleStreamStopMarksOwnedTaskDraining(t *testing.T) {
	b := broker.NewMemoryBroker()
	w := New(Config{WorkerID: "w1"}, b, nil, nil, nil, testLogger())

	tsk := newTask("s1", "bucket", "prefix", 0)
	w.mu.Lock()
	w.tasks["s1"] = tsk
	w.mu.Unlock()

	w.handleStreamStop(model.NewStreamStop("s1", model.StopStats{}))

	if !tsk.isDraining() {
		t.Fatal("expected owned task to be marked draining")
	}
}

func TestHandleStreamStopIgnoresUnownedStream(t *testing.T) {
	b := broker.NewMemoryBroker()
	w := New(Config{WorkerID: "w1"}, b, nil, nil, nil, testLogger())

	// Must not panic or register a task for a stream this worker never claimed.
	w.handleStreamStop(model.NewStreamStop("unowned", model.StopStats{}))

	w.mu.Lock()
	_, ok := w.tasks["unowned"]
	w.mu.Unlock()
	if ok {
		t.Fatal("expected no task to be created for an unowned stream")
	}
}

func TestDispatchControlEventIgnoresMalformedPayload(t *testing.T) {
	b := broker.NewMemoryBroker()
	w := New(Config{WorkerID: "w1"}, b, nil, nil, nil, testLogger())

	// Must not panic on a malformed or missing event field.
	w.dispatchControlEvent(context.Background(), broker.LogEntry{ID: "1", Fields: map[string]string{}})
	w.dispatchControlEvent(context.Background(), broker.LogEntry{ID: "2", Fields: map[string]string{"event": "not-json"}})
}
