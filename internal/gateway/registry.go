// Package gateway terminates bidirectional recorder connections, persists
// media chunks, announces coordination events, and relays transcoder
// progress to viewers.
package gateway

import (
	"sync"
	"time"

	"github.com/riverlane-stream/live-pipeline/internal/model"
)

// session is the Gateway's in-memory view of a live Stream: the subset of
// model.Stream state the Gateway itself owns plus the monotone sequence
// allocator for incoming chunks. Broker-side state (the hash at
// broker.StateKey) is the durable mirror; this struct only needs to survive
// the recorder connection's lifetime.
type session struct {
	mu        sync.Mutex
	streamID  string
	bucket    string
	prefix    string
	status    model.StreamStatus
	startTime time.Time
	nextSeq   int64
}

// peekSeq returns the next sequence number to attempt, without advancing
// the counter. The counter only advances once the corresponding object
// write has succeeded (see confirmSeq), so a failed write leaves the
// sequence dense and lets the recorder retry the same chunk.
func (s *session) peekSeq() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextSeq
}

// confirmSeq advances the counter past seq after its object write has
// succeeded.
func (s *session) confirmSeq(seq int64) {
	s.mu.Lock()
	if seq == s.nextSeq {
		s.nextSeq++
	}
	s.mu.Unlock()
}

func (s *session) setStatus(status model.StreamStatus) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
}

func (s *session) getStatus() model.StreamStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Registry tracks active recorder sessions and the set of connected
// viewers. Per the viewer fan-out contract, progress events are broadcast
// to every connected viewer with no per-stream filtering, so viewers are
// kept in a single flat set rather than indexed by stream.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*session
	viewers  map[*viewerConn]struct{}
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*session),
		viewers:  make(map[*viewerConn]struct{}),
	}
}

// Create installs a new session for streamID, replacing any prior session
// of the same id (a recorder reconnect after an implicit stop is treated as
// a fresh session).
func (r *Registry) Create(streamID, bucket, prefix string) *session {
	s := &session{
		streamID:  streamID,
		bucket:    bucket,
		prefix:    prefix,
		status:    model.StatusLive,
		startTime: time.Now(),
	}
	r.mu.Lock()
	r.sessions[streamID] = s
	r.mu.Unlock()
	return s
}

// Get returns the session for streamID, if still tracked.
func (r *Registry) Get(streamID string) (*session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[streamID]
	return s, ok
}

// Remove drops streamID from the registry, e.g. once its stop has been
// acknowledged or its connection has closed.
func (r *Registry) Remove(streamID string) {
	r.mu.Lock()
	delete(r.sessions, streamID)
	r.mu.Unlock()
}

// AddViewer registers a connected viewer for broadcast fan-out.
func (r *Registry) AddViewer(v *viewerConn) {
	r.mu.Lock()
	r.viewers[v] = struct{}{}
	r.mu.Unlock()
}

// RemoveViewer unregisters a viewer, e.g. on disconnect.
func (r *Registry) RemoveViewer(v *viewerConn) {
	r.mu.Lock()
	delete(r.viewers, v)
	r.mu.Unlock()
}

// Broadcast sends payload to every currently connected viewer whose
// outbound queue accepts it without blocking; a slow or dead viewer is
// skipped rather than stalling the fan-out for everyone else.
func (r *Registry) Broadcast(payload []byte) {
	r.mu.RLock()
	viewers := make([]*viewerConn, 0, len(r.viewers))
	for v := range r.viewers {
		viewers = append(viewers, v)
	}
	r.mu.RUnlock()

	for _, v := range viewers {
		v.trySend(payload)
	}
}

// ViewerCount reports how many viewers are currently connected, for status
// reporting.
func (r *Registry) ViewerCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.viewers)
}
