package gateway

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/riverlane-stream/live-pipeline/internal/broker"
	"github.com/riverlane-stream/live-pipeline/internal/model"
	"github.com/riverlane-stream/live-pipeline/internal/storage"
)

func testServer(t *testing.T) (*Server, *httptest.Server, *broker.MemoryBroker, *storage.MemoryStore) {
	t.Helper()
	b := broker.NewMemoryBroker()
	store := storage.NewMemoryStore()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	s := NewServer(Config{Bucket: "test-bucket"}, b, store, nil, log)
	router := s.buildRouter()
	router.HandleFunc("/ws/stream", s.handleRecorderUpgrade)
	router.HandleFunc("/ws/viewer", s.handleViewerUpgrade)

	httpSrv := httptest.NewServer(router)
	t.Cleanup(httpSrv.Close)
	t.Cleanup(s.cancel)

	go s.relayProgress()

	return s, httpSrv, b, store
}

func dialWS(t *testing.T, httpSrv *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(httpSrv.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", path, err)
	}
	return conn
}

// TestRecorderSessionChunkFlow exercises the start -> chunk -> stop
// connection contract end to end against in-memory broker/storage fakes.
func TestRecorderSessionChunkFlow(t *testing.T) {
	_, httpSrv, _, store := testServer(t)

	conn := dialWS(t, httpSrv, "/ws/stream")
	defer conn.Close()

	start, _ := json.Marshal(startFrame{Type: frameStart, StreamID: "stream-1"})
	if err := conn.WriteMessage(websocket.TextMessage, start); err != nil {
		t.Fatalf("write start: %v", err)
	}

	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read started: %v", err)
	}
	var started startedFrame
	if err := json.Unmarshal(raw, &started); err != nil {
		t.Fatalf("unmarshal started: %v", err)
	}
	if started.Type != frameStarted || started.StreamID != "stream-1" || started.Status != model.StatusLive {
		t.Fatalf("unexpected started frame: %+v", started)
	}

	if err := conn.WriteMessage(websocket.BinaryMessage, []byte("chunk-bytes")); err != nil {
		t.Fatalf("write chunk: %v", err)
	}
	// Give the handler a moment to persist the chunk before checking storage.
	deadline := time.Now().Add(2 * time.Second)
	wantKey := model.ChunkKey(model.DatePrefix(time.Now()), "stream-1", 0)
	for time.Now().Before(deadline) {
		if _, err := store.Head(t.Context(), wantKey); err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if _, err := store.Head(t.Context(), wantKey); err != nil {
		t.Fatalf("expected chunk object at %s: %v", wantKey, err)
	}

	stop, _ := json.Marshal(stopFrame{Type: frameStop, Duration: 12.5})
	if err := conn.WriteMessage(websocket.TextMessage, stop); err != nil {
		t.Fatalf("write stop: %v", err)
	}
	_, raw, err = conn.ReadMessage()
	if err != nil {
		t.Fatalf("read stopped: %v", err)
	}
	var stopped stoppedFrame
	if err := json.Unmarshal(raw, &stopped); err != nil {
		t.Fatalf("unmarshal stopped: %v", err)
	}
	if stopped.Type != frameStopped || stopped.Status != model.StatusEnding {
		t.Fatalf("unexpected stopped frame: %+v", stopped)
	}
}

// TestRecorderRejectsBinaryBeforeStart checks the protocol violation path:
// a binary frame before start closes the connection with an error frame.
func TestRecorderRejectsBinaryBeforeStart(t *testing.T) {
	_, httpSrv, _, _ := testServer(t)

	conn := dialWS(t, httpSrv, "/ws/stream")
	defer conn.Close()

	if err := conn.WriteMessage(websocket.BinaryMessage, []byte("too early")); err != nil {
		t.Fatalf("write binary: %v", err)
	}
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read error frame: %v", err)
	}
	var errFrame errorFrame
	if err := json.Unmarshal(raw, &errFrame); err != nil {
		t.Fatalf("unmarshal error frame: %v", err)
	}
	if errFrame.Type != frameError {
		t.Fatalf("expected error frame, got %+v", errFrame)
	}
}

// TestViewerReceivesProgressBroadcast checks that a ProgressEvent published
// on any stream's progress channel reaches every connected viewer.
func TestViewerReceivesProgressBroadcast(t *testing.T) {
	s, httpSrv, b, _ := testServer(t)

	viewer := dialWS(t, httpSrv, "/ws/viewer")
	defer viewer.Close()

	// Wait for the viewer to register before publishing, since AddViewer
	// happens after the websocket upgrade completes.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && s.registry.ViewerCount() == 0 {
		time.Sleep(10 * time.Millisecond)
	}
	if s.registry.ViewerCount() != 1 {
		t.Fatalf("expected 1 viewer registered, got %d", s.registry.ViewerCount())
	}

	evt := model.SegmentReady("stream-1", "segment_00001.ts", 12345)
	payload, _ := json.Marshal(evt)
	if err := b.Publish(t.Context(), broker.ProgressChannel("stream-1"), string(payload)); err != nil {
		t.Fatalf("publish: %v", err)
	}

	viewer.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := viewer.ReadMessage()
	if err != nil {
		t.Fatalf("read broadcast: %v", err)
	}
	var got model.ProgressEvent
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal progress event: %v", err)
	}
	if got.Type != model.ProgressSegmentReady || got.StreamID != "stream-1" {
		t.Fatalf("unexpected progress event: %+v", got)
	}
}
