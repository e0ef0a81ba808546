package worker

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"testing"
	"time"

	"github.com/riverlane-stream/live-pipeline/internal/broker"
	"github.com/riverlane-stream/live-pipeline/internal/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seedOwnedStream(t *testing.T, b *broker.MemoryBroker, streamID, owner string, ownerAlive bool, status model.StreamStatus, chunkCount int64) {
	t.Helper()
	ctx := context.Background()
	if _, err := b.SetNX(ctx, broker.OwnerKey(streamID), owner, 0); err != nil {
		t.Fatalf("seed owner key: %v", err)
	}
	if ownerAlive {
		if _, err := b.SetNX(ctx, broker.HeartbeatKey(owner), owner, time.Hour); err != nil {
			t.Fatalf("seed heartbeat: %v", err)
		}
	}
	fields := map[string]string{
		"status":     string(status),
		"bucket":     "bucket",
		"prefix":     "recordings/2026/07/30",
		"chunkCount": strconv.FormatInt(chunkCount, 10),
	}
	for field, value := range fields {
		if err := b.HSet(ctx, broker.StateKey(streamID), field, value); err != nil {
			t.Fatalf("seed state: %v", err)
		}
	}
}

func TestEvaluateCandidateSkipsLiveOwner(t *testing.T) {
	b := broker.NewMemoryBroker()
	seedOwnedStream(t, b, "s1", "worker-a", true, model.StatusLive, 3)

	w := New(Config{WorkerID: "worker-b"}, b, nil, nil, nil, testLogger())
	_, eligible, err := w.evaluateCandidate(context.Background(), broker.OwnerKey("s1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if eligible {
		t.Fatal("expected a stream with a live owner heartbeat to be ineligible")
	}
}

func TestEvaluateCandidateReclaimsDeadOwner(t *testing.T) {
	b := broker.NewMemoryBroker()
	seedOwnedStream(t, b, "s1", "worker-a", false, model.StatusLive, 7)

	w := New(Config{WorkerID: "worker-b"}, b, nil, nil, nil, testLogger())
	cand, eligible, err := w.evaluateCandidate(context.Background(), broker.OwnerKey("s1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !eligible {
		t.Fatal("expected a stream whose owner's heartbeat expired to be eligible")
	}
	if cand.resumeSeq != 7 {
		t.Fatalf("expected resumeSeq 7, got %d", cand.resumeSeq)
	}
	if cand.draining {
		t.Fatal("expected a Live stream candidate to not be marked draining")
	}
}

func TestEvaluateCandidateSkipsCompleteStream(t *testing.T) {
	b := broker.NewMemoryBroker()
	seedOwnedStream(t, b, "s1", "worker-a", false, model.StatusComplete, 7)

	w := New(Config{WorkerID: "worker-b"}, b, nil, nil, nil, testLogger())
	_, eligible, err := w.evaluateCandidate(context.Background(), broker.OwnerKey("s1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if eligible {
		t.Fatal("expected a Complete stream to be left alone")
	}
}

func TestEvaluateCandidateSkipsAlreadyOwned(t *testing.T) {
	b := broker.NewMemoryBroker()
	seedOwnedStream(t, b, "s1", "worker-a", false, model.StatusLive, 7)

	w := New(Config{WorkerID: "worker-b"}, b, nil, nil, nil, testLogger())
	w.tasks["s1"] = newTask("s1", "bucket", "prefix", 0)

	_, eligible, err := w.evaluateCandidate(context.Background(), broker.OwnerKey("s1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if eligible {
		t.Fatal("expected a stream this worker already owns to be skipped")
	}
}

func TestEvaluateCandidateMarksEndingAsDraining(t *testing.T) {
	b := broker.NewMemoryBroker()
	seedOwnedStream(t, b, "s1", "worker-a", false, model.StatusEnding, 2)

	w := New(Config{WorkerID: "worker-b"}, b, nil, nil, nil, testLogger())
	cand, eligible, err := w.evaluateCandidate(context.Background(), broker.OwnerKey("s1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !eligible {
		t.Fatal("expected an Ending stream with a dead owner to be eligible")
	}
	if !cand.draining {
		t.Fatal("expected an Ending stream candidate to be marked draining")
	}
}
