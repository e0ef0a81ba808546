package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/riverlane-stream/live-pipeline/internal/broker"
	"github.com/riverlane-stream/live-pipeline/internal/bufpool"
	"github.com/riverlane-stream/live-pipeline/internal/hooks"
	"github.com/riverlane-stream/live-pipeline/internal/model"
)

// handleStart processes the mandatory first control frame on a fresh
// recorder connection: it creates the in-memory session, seeds broker
// state, announces the stream on the control log, and updates the
// recording record, per the lifecycle handling contract.
func (s *Server) handleStart(ctx context.Context, conn *recorderConn, raw []byte) (*session, error) {
	var f startFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("%w: malformed start frame: %v", errProtocolViolation, err)
	}
	if f.StreamID == "" {
		return nil, fmt.Errorf("%w: start frame missing streamId", errProtocolViolation)
	}

	prefix := model.DatePrefix(time.Now())
	sess := s.registry.Create(f.StreamID, s.cfg.Bucket, prefix)

	fields := map[string]string{
		"status":     string(model.StatusLive),
		"bucket":     s.cfg.Bucket,
		"prefix":     prefix,
		"startTime":  time.Now().UTC().Format(time.RFC3339),
		"chunkCount": "0",
	}
	for field, value := range fields {
		if err := s.broker.HSet(ctx, broker.StateKey(f.StreamID), field, value); err != nil {
			s.log.Error("start: broker state write failed", "stream_id", f.StreamID, "error", err)
		}
	}

	evt := model.NewStreamStart(f.StreamID, s.cfg.Bucket, prefix)
	payload, _ := json.Marshal(evt)
	if _, err := s.broker.Append(ctx, broker.ControlLog, map[string]string{"event": string(payload)}); err != nil {
		s.log.Error("start: control log append failed", "stream_id", f.StreamID, "error", err)
	}

	manifestKey := model.HLSKey(prefix, f.StreamID, model.ManifestName)
	if s.recording != nil {
		if err := s.recording.MarkStart(ctx, f.StreamID, s.cfg.Bucket, manifestKey); err != nil {
			s.log.Error("start: recording record update failed", "stream_id", f.StreamID, "error", err)
		}
	}

	s.triggerHookEvent(hooks.EventStreamStart, conn.id, f.StreamID, nil)

	return sess, conn.sendJSON(startedFrame{Type: frameStarted, StreamID: f.StreamID, Status: model.StatusLive})
}

// handleChunk processes a binary media frame on an already-started
// connection: allocate-write-confirm-announce, in that order, so that a
// reader observing sequence n in the chunk log can unconditionally fetch
// it from object storage.
func (s *Server) handleChunk(ctx context.Context, conn *recorderConn, sess *session, data []byte) error {
	seq := sess.peekSeq()
	key := model.ChunkKey(sess.prefix, sess.streamID, seq)

	// The slice backing data is only valid until the connection's next
	// read; stage it in a pooled buffer sized for media chunk writes
	// before handing it to the object store.
	staged := bufpool.Get(len(data))
	copy(staged, data)
	defer bufpool.Put(staged)

	if err := s.store.PutBytes(ctx, key, staged); err != nil {
		s.log.Error("chunk write failed", "stream_id", sess.streamID, "seq", seq, "error", err)
		s.triggerHookEvent(hooks.EventChunkFailed, conn.id, sess.streamID, map[string]interface{}{"seq": seq})
		return conn.sendJSON(errorFrame{Type: frameError, Detail: fmt.Sprintf("chunk %d: write failed", seq)})
	}
	sess.confirmSeq(seq)

	if _, err := s.broker.HIncrBy(ctx, broker.StateKey(sess.streamID), "chunkCount", 1); err != nil {
		s.log.Error("chunk counter increment failed", "stream_id", sess.streamID, "seq", seq, "error", err)
	}

	fields := map[string]string{
		"seq":       fmt.Sprintf("%d", seq),
		"key":       key,
		"size":      fmt.Sprintf("%d", len(data)),
		"timestamp": fmt.Sprintf("%d", time.Now().UnixMilli()),
	}
	if _, err := s.broker.Append(ctx, broker.ChunkLog(sess.streamID), fields); err != nil {
		// The object write already succeeded; the orphaned object is
		// tolerated per the failure semantics — the next chunk's append
		// restores forward progress and readers consult chunkCount.
		s.log.Error("chunk log append failed", "stream_id", sess.streamID, "seq", seq, "error", err)
	}

	s.triggerHookEvent(hooks.EventChunkWritten, conn.id, sess.streamID, map[string]interface{}{"seq": seq, "size": len(data)})
	return nil
}

// handleStop processes a recorder-initiated stop: it sets broker status to
// Ending, appends StreamStop with the supplied statistics, and acknowledges
// immediately without waiting for the Worker to finalize.
func (s *Server) handleStop(ctx context.Context, conn *recorderConn, sess *session, raw []byte) error {
	var f stopFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		return fmt.Errorf("%w: malformed stop frame: %v", errProtocolViolation, err)
	}
	s.finalizeStop(ctx, sess, model.StopStats{
		Duration:           f.Duration,
		PauseCount:         f.PauseCount,
		PauseDurationTotal: f.PauseDurationTotal,
		PauseEvents:        f.PauseEvents,
	})
	s.triggerHookEvent(hooks.EventStreamStop, conn.id, sess.streamID, nil)
	return conn.sendJSON(stoppedFrame{Type: frameStopped, StreamID: sess.streamID, Status: model.StatusEnding})
}

// handleDisconnect treats an unexpected recorder disconnect as an implicit
// stop with empty statistics, but only if the session is still Live (an
// already-stopped or already-disconnected session is left alone).
func (s *Server) handleDisconnect(ctx context.Context, sess *session) {
	if sess.getStatus() != model.StatusLive {
		return
	}
	s.finalizeStop(ctx, sess, model.StopStats{})
}

// finalizeStop is the shared tail of an explicit or implicit stop: broker
// status update and StreamStop control event append.
func (s *Server) finalizeStop(ctx context.Context, sess *session, stats model.StopStats) {
	sess.setStatus(model.StatusEnding)
	if err := s.broker.HSet(ctx, broker.StateKey(sess.streamID), "status", string(model.StatusEnding)); err != nil {
		s.log.Error("stop: broker status write failed", "stream_id", sess.streamID, "error", err)
	}

	evt := model.NewStreamStop(sess.streamID, stats)
	payload, _ := json.Marshal(evt)
	if _, err := s.broker.Append(ctx, broker.ControlLog, map[string]string{"event": string(payload)}); err != nil {
		s.log.Error("stop: control log append failed", "stream_id", sess.streamID, "error", err)
	}
}

// handlePing answers a keepalive with the current server time.
func (s *Server) handlePing(conn *recorderConn) error {
	return conn.sendJSON(pongFrame{Type: framePong, Timestamp: time.Now().UnixMilli()})
}
