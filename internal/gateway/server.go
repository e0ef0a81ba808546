package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/riverlane-stream/live-pipeline/internal/broker"
	"github.com/riverlane-stream/live-pipeline/internal/hooks"
	"github.com/riverlane-stream/live-pipeline/internal/model"
	"github.com/riverlane-stream/live-pipeline/internal/recording"
	"github.com/riverlane-stream/live-pipeline/internal/storage"
)

// Config holds the Gateway's runtime configuration.
type Config struct {
	ListenAddr string
	Bucket     string

	HookScripts     []string
	HookWebhooks    []string
	HookStdioFormat string
	HookTimeout     string
	HookConcurrency int
}

// applyDefaults fills zero values with sensible defaults.
func (c *Config) applyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = ":8080"
	}
	if c.HookTimeout == "" {
		c.HookTimeout = "30s"
	}
	if c.HookConcurrency == 0 {
		c.HookConcurrency = 10
	}
}

// Server terminates recorder and viewer websocket connections, persists
// chunks, and relays transcode progress.
type Server struct {
	cfg       Config
	broker    broker.Broker
	store     storage.Store
	recording *recording.Client
	registry  *Registry
	hookMgr   *hooks.HookManager
	log       *slog.Logger

	upgrader   websocket.Upgrader
	httpServer *http.Server

	ctx    context.Context
	cancel context.CancelFunc
}

// NewServer wires a Server from its collaborators. recording may be nil
// when the recording-record collaborator is not configured (e.g. tests).
func NewServer(cfg Config, b broker.Broker, store storage.Store, rec *recording.Client, log *slog.Logger) *Server {
	cfg.applyDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:       cfg,
		broker:    b,
		store:     store,
		recording: rec,
		registry:  NewRegistry(),
		log:       log,
		upgrader:  websocket.Upgrader{ReadBufferSize: 4096, WriteBufferSize: 4096, CheckOrigin: func(*http.Request) bool { return true }},
		ctx:       ctx,
		cancel:    cancel,
	}
	s.hookMgr = hooks.Build(hooks.BuildConfig{
		Scripts:     cfg.HookScripts,
		Webhooks:    cfg.HookWebhooks,
		StdioFormat: cfg.HookStdioFormat,
		Timeout:     cfg.HookTimeout,
		Concurrency: cfg.HookConcurrency,
	}, log)
	return s
}

// ListenAndServe starts the HTTP server, subscribes to the progress
// fan-out, and blocks until the server stops.
func (s *Server) ListenAndServe() error {
	router := s.buildRouter()
	router.HandleFunc("/ws/stream", s.handleRecorderUpgrade)
	router.HandleFunc("/ws/viewer", s.handleViewerUpgrade)

	s.httpServer = &http.Server{Addr: s.cfg.ListenAddr, Handler: router}

	go s.relayProgress()

	s.log.Info("gateway listening", "addr", s.cfg.ListenAddr)
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop gracefully shuts down the HTTP server and releases the progress
// subscription.
func (s *Server) Stop(ctx context.Context) error {
	s.cancel()
	if s.hookMgr != nil {
		s.hookMgr.Close()
	}
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// relayProgress subscribes to every stream's progress channel and
// broadcasts each event to connected viewers, per the viewer fan-out
// contract: no per-viewer filtering, a viewer selects its stream
// client-side. StatusChange and StreamComplete additionally trigger an
// idempotent recording-record update.
func (s *Server) relayProgress() {
	events, unsubscribe, err := s.broker.Subscribe(s.ctx, broker.ProgressChannel("*"))
	if err != nil {
		s.log.Error("progress subscribe failed", "error", err)
		return
	}
	defer unsubscribe()

	for {
		select {
		case <-s.ctx.Done():
			return
		case payload, ok := <-events:
			if !ok {
				return
			}
			s.handleProgressPayload(payload)
		}
	}
}

func (s *Server) handleProgressPayload(payload string) {
	var evt model.ProgressEvent
	if err := json.Unmarshal([]byte(payload), &evt); err != nil {
		s.log.Error("progress: malformed event", "error", err)
		return
	}
	s.registry.Broadcast([]byte(payload))

	if s.recording == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	switch evt.Type {
	case model.ProgressStatusChange:
		if err := s.recording.UpdateStatus(ctx, evt.StreamID, evt.NewStatus); err != nil {
			s.log.Error("progress: recording status update failed", "stream_id", evt.StreamID, "error", err)
		}
	case model.ProgressStreamComplete:
		if err := s.recording.MarkComplete(ctx, evt.StreamID, evt.TotalBytes); err != nil {
			s.log.Error("progress: recording complete update failed", "stream_id", evt.StreamID, "error", err)
		}
	}
}

// handleRecorderUpgrade upgrades an HTTP request to a websocket and runs
// the recorder's connection lifecycle.
func (s *Server) handleRecorderUpgrade(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("recorder upgrade failed", "error", err)
		return
	}
	conn := newRecorderConn(ws, s.log)
	s.triggerHookEvent(hooks.EventConnectionAccept, conn.id, "", map[string]interface{}{"remote": r.RemoteAddr})
	s.runRecorderSession(conn)
}

// handleViewerUpgrade upgrades an HTTP request to a websocket and registers
// it for progress fan-out until it disconnects.
func (s *Server) handleViewerUpgrade(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("viewer upgrade failed", "error", err)
		return
	}
	v := newViewerConn(ws, s.log)
	v.startWriteLoop()
	s.registry.AddViewer(v)
	defer func() {
		s.registry.RemoveViewer(v)
		v.Close()
	}()
	_ = v.waitClosed()
}

// runRecorderSession drives the connection contract: the first message
// must be a start frame, subsequent messages are binary chunks or
// stop/ping control frames, per the connection contract.
func (s *Server) runRecorderSession(conn *recorderConn) {
	conn.startWriteLoop()
	defer func() {
		conn.Close()
		s.triggerHookEvent(hooks.EventConnectionClose, conn.id, "", nil)
	}()

	mt, raw, err := conn.readFrame()
	if err != nil {
		return
	}
	if mt != websocket.TextMessage {
		_ = conn.sendJSON(errorFrame{Type: frameError, Detail: "first frame must be a text start frame"})
		return
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Type != frameStart {
		_ = conn.sendJSON(errorFrame{Type: frameError, Detail: "first frame must be start"})
		return
	}

	sess, err := s.handleStart(s.ctx, conn, raw)
	if err != nil {
		_ = conn.sendJSON(errorFrame{Type: frameError, Detail: err.Error()})
		return
	}
	defer s.registry.Remove(sess.streamID)

	for {
		mt, raw, err := conn.readFrame()
		if err != nil {
			s.handleDisconnect(s.ctx, sess)
			return
		}

		switch mt {
		case websocket.BinaryMessage:
			if err := s.handleChunk(s.ctx, conn, sess, raw); err != nil {
				s.log.Error("chunk handling error", "stream_id", sess.streamID, "error", err)
			}
		case websocket.TextMessage:
			var env envelope
			if err := json.Unmarshal(raw, &env); err != nil {
				_ = conn.sendJSON(errorFrame{Type: frameError, Detail: "malformed control frame"})
				continue
			}
			switch env.Type {
			case frameStop:
				if err := s.handleStop(s.ctx, conn, sess, raw); err != nil {
					_ = conn.sendJSON(errorFrame{Type: frameError, Detail: err.Error()})
					continue
				}
				return
			case framePing:
				_ = s.handlePing(conn)
			default:
				_ = conn.sendJSON(errorFrame{Type: frameError, Detail: fmt.Sprintf("unknown frame type %q", env.Type)})
			}
		}
	}
}

// triggerHookEvent is a helper to trigger hook events safely, tolerating a
// nil hook manager.
func (s *Server) triggerHookEvent(eventType hooks.EventType, connID, streamID string, data map[string]interface{}) {
	if s.hookMgr == nil {
		return
	}
	event := hooks.NewEvent(eventType).WithConnID(connID).WithStreamID(streamID)
	for key, value := range data {
		event.WithData(key, value)
	}
	s.hookMgr.TriggerEvent(context.Background(), *event)
}
