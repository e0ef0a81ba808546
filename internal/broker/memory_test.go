package broker

import (
	"context"
	"testing"
	"time"
)

func TestMemoryBrokerAppendAndReadFrom(t *testing.T) {
	b := NewMemoryBroker()
	ctx := context.Background()

	id1, err := b.Append(ctx, "control", map[string]string{"type": "stream_start"})
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	entries, err := b.ReadFrom(ctx, "control", "0", 0)
	if err != nil {
		t.Fatalf("readFrom: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != id1 {
		t.Fatalf("unexpected entries: %+v", entries)
	}

	// "$" cursor only sees entries appended after the call.
	tailCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		time.Sleep(10 * time.Millisecond)
		_, _ = b.Append(ctx, "control", map[string]string{"type": "stream_stop"})
	}()
	got, err := b.ReadFrom(tailCtx, "control", "$", 500*time.Millisecond)
	if err != nil {
		t.Fatalf("blocking readFrom: %v", err)
	}
	if len(got) != 1 || got[0].Fields["type"] != "stream_stop" {
		t.Fatalf("unexpected tail read: %+v", got)
	}
}

func TestMemoryBrokerReadFromTimesOutEmpty(t *testing.T) {
	b := NewMemoryBroker()
	ctx := context.Background()
	entries, err := b.ReadFrom(ctx, "control", "$", 20*time.Millisecond)
	if err != nil {
		t.Fatalf("readFrom: %v", err)
	}
	if entries != nil {
		t.Fatalf("expected no entries, got %+v", entries)
	}
}

func TestMemoryBrokerHash(t *testing.T) {
	b := NewMemoryBroker()
	ctx := context.Background()

	if err := b.HSet(ctx, "state:s1", "status", "Live"); err != nil {
		t.Fatalf("hset: %v", err)
	}
	v, ok, err := b.HGet(ctx, "state:s1", "status")
	if err != nil || !ok || v != "Live" {
		t.Fatalf("hget: %v %v %v", v, ok, err)
	}

	n, err := b.HIncrBy(ctx, "state:s1", "chunkCount", 1)
	if err != nil || n != 1 {
		t.Fatalf("hincrby: %v %v", n, err)
	}
	n, err = b.HIncrBy(ctx, "state:s1", "chunkCount", 1)
	if err != nil || n != 2 {
		t.Fatalf("hincrby second: %v %v", n, err)
	}

	all, err := b.HGetAll(ctx, "state:s1")
	if err != nil || all["status"] != "Live" || all["chunkCount"] != "2" {
		t.Fatalf("hgetall: %+v %v", all, err)
	}
}

func TestMemoryBrokerSetNXAndTTL(t *testing.T) {
	b := NewMemoryBroker()
	ctx := context.Background()

	ok, err := b.SetNX(ctx, "owner:s1", "worker-1", 20*time.Millisecond)
	if err != nil || !ok {
		t.Fatalf("first setnx: %v %v", ok, err)
	}

	ok, err = b.SetNX(ctx, "owner:s1", "worker-2", time.Minute)
	if err != nil || ok {
		t.Fatalf("second setnx should fail: %v %v", ok, err)
	}

	time.Sleep(30 * time.Millisecond)
	ok, err = b.SetNX(ctx, "owner:s1", "worker-2", time.Minute)
	if err != nil || !ok {
		t.Fatalf("setnx after expiry should succeed: %v %v", ok, err)
	}
}

func TestMemoryBrokerRefresh(t *testing.T) {
	b := NewMemoryBroker()
	ctx := context.Background()

	ok, err := b.Refresh(ctx, "owner:missing", time.Second)
	if err != nil || ok {
		t.Fatalf("refresh on absent key should fail: %v %v", ok, err)
	}

	if _, err := b.SetNX(ctx, "owner:s1", "worker-1", 10*time.Millisecond); err != nil {
		t.Fatalf("setnx: %v", err)
	}
	ok, err = b.Refresh(ctx, "owner:s1", time.Minute)
	if err != nil || !ok {
		t.Fatalf("refresh should succeed: %v %v", ok, err)
	}
	time.Sleep(30 * time.Millisecond)
	v, present, err := b.Get(ctx, "owner:s1")
	if err != nil || !present || v != "worker-1" {
		t.Fatalf("expected key to survive refresh: %v %v %v", v, present, err)
	}
}

func TestMemoryBrokerPubSub(t *testing.T) {
	b := NewMemoryBroker()
	ctx := context.Background()

	ch, unsubscribe, err := b.Subscribe(ctx, "progress:s1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer unsubscribe()

	if err := b.Publish(ctx, "progress:s1", `{"type":"segmentReady"}`); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case payload := <-ch:
		if payload != `{"type":"segmentReady"}` {
			t.Fatalf("unexpected payload: %s", payload)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for published message")
	}
}

func TestMemoryBrokerDelete(t *testing.T) {
	b := NewMemoryBroker()
	ctx := context.Background()
	_ = b.HSet(ctx, "state:s1", "status", "Live")
	if err := b.Delete(ctx, "state:s1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	_, ok, err := b.HGet(ctx, "state:s1", "status")
	if err != nil || ok {
		t.Fatalf("expected field gone after delete: %v %v", ok, err)
	}
}
