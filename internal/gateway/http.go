package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/riverlane-stream/live-pipeline/internal/broker"
	"github.com/riverlane-stream/live-pipeline/internal/model"
)

// buildRouter constructs the progress HTTP fallback: a status query and an
// explicit stop, for clients that cannot hold a websocket open.
func (s *Server) buildRouter() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/streams/{id}", s.handleStreamStatus).Methods(http.MethodGet)
	r.HandleFunc("/streams/{id}/stop", s.handleStreamStop).Methods(http.MethodPost)
	return r
}

// streamStatusResponse mirrors the fields of the broker-held Stream hash.
type streamStatusResponse struct {
	StreamID   string             `json:"streamId"`
	Status     model.StreamStatus `json:"status"`
	Bucket     string             `json:"bucket,omitempty"`
	Prefix     string             `json:"prefix,omitempty"`
	ChunkCount int64              `json:"chunkCount"`
	StartTime  string             `json:"startTime,omitempty"`
	Owner      string             `json:"owner,omitempty"`
}

// handleStreamStatus answers GET /streams/{id} from the broker-held Stream
// hash, so a late-polling client can observe status without a websocket.
func (s *Server) handleStreamStatus(w http.ResponseWriter, r *http.Request) {
	streamID := mux.Vars(r)["id"]

	fields, err := s.broker.HGetAll(r.Context(), broker.StateKey(streamID))
	if err != nil {
		http.Error(w, "status lookup failed", http.StatusInternalServerError)
		return
	}
	if len(fields) == 0 {
		http.Error(w, "stream not found", http.StatusNotFound)
		return
	}

	resp := streamStatusResponse{
		StreamID:  streamID,
		Status:    model.StreamStatus(fields["status"]),
		Bucket:    fields["bucket"],
		Prefix:    fields["prefix"],
		StartTime: fields["startTime"],
	}
	if n, err := strconv.ParseInt(fields["chunkCount"], 10, 64); err == nil {
		resp.ChunkCount = n
	}
	if owner, ok, _ := s.broker.Get(r.Context(), broker.OwnerKey(streamID)); ok {
		resp.Owner = owner
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// handleStreamStop answers POST /streams/{id}/stop: an out-of-band stop
// request for a client without an open recorder connection. It performs
// the same broker-side transition as an in-band stop frame, with empty
// recorder statistics.
func (s *Server) handleStreamStop(w http.ResponseWriter, r *http.Request) {
	streamID := mux.Vars(r)["id"]
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	sess, ok := s.registry.Get(streamID)
	if !ok {
		http.Error(w, "stream not found", http.StatusNotFound)
		return
	}
	s.finalizeStop(ctx, sess, model.StopStats{})

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(stoppedFrame{Type: frameStopped, StreamID: streamID, Status: model.StatusEnding})
}
