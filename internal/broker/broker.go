// Package broker defines the coordination primitives shared by the
// gateway and worker processes: an append-only log with blocking tail
// reads, a hash map with atomic field operations, atomic set-if-absent
// keys with TTL, and channel-based publish/subscribe.
package broker

import (
	"context"
	"time"
)

// LogEntry is one entry read back from an append-only log. ID is the
// broker-assigned, monotonically increasing entry identifier.
type LogEntry struct {
	ID     string
	Fields map[string]string
}

// Broker is the coordination substrate used by the gateway and worker.
// All methods accept a context and return wrapped *errors.BrokerError on
// failure (network error, timeout, or encoding failure).
type Broker interface {
	// Append adds fields as a new entry to log, returning its assigned id.
	Append(ctx context.Context, log string, fields map[string]string) (string, error)

	// ReadFrom waits up to block for at least one entry newer than after
	// to be available on log, or until the context is done, and returns
	// the batch (empty if none arrived). A block of zero or less returns
	// at once.
	// Pass "$" for after to start reading only new entries ("new entries
	// only" cursor); pass a prior entry's ID to resume from there.
	ReadFrom(ctx context.Context, log, after string, block time.Duration) ([]LogEntry, error)

	// HSet sets field to value in the hash named key.
	HSet(ctx context.Context, key, field, value string) error

	// HGet returns the value of field in the hash named key, and whether
	// it was present.
	HGet(ctx context.Context, key, field string) (string, bool, error)

	// HGetAll returns every field/value pair in the hash named key.
	HGetAll(ctx context.Context, key string) (map[string]string, error)

	// HIncrBy atomically adds delta to field in the hash named key and
	// returns the new value.
	HIncrBy(ctx context.Context, key, field string, delta int64) (int64, error)

	// HExpire sets a TTL on the entire hash named key.
	HExpire(ctx context.Context, key string, ttl time.Duration) error

	// SetNX atomically sets key to value and starts its TTL only if key
	// was absent. Returns true if the set happened.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// Refresh extends the TTL of an owned key without changing its value.
	// Returns false if the key is absent (ownership lost).
	Refresh(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Get returns the value of a plain key, and whether it was present.
	Get(ctx context.Context, key string) (string, bool, error)

	// Delete removes a key outright, regardless of type.
	Delete(ctx context.Context, key string) error

	// Keys returns every key matching pattern (shell glob syntax, e.g.
	// "owner:*"), for the reclaimer's ownership sweep.
	Keys(ctx context.Context, pattern string) ([]string, error)

	// Publish fan-out publishes payload on channel.
	Publish(ctx context.Context, channel, payload string) error

	// Subscribe returns a channel of payloads published to any channel
	// matching pattern. The returned unsubscribe func must be called to
	// release broker-side resources.
	Subscribe(ctx context.Context, pattern string) (<-chan string, func() error, error)

	// Close releases the broker connection.
	Close() error
}

// Well-known key/log names, per the broker keyspace layout.
const (
	ControlLog = "control"
)

// ChunkLog is the per-stream chunk log name for streamID.
func ChunkLog(streamID string) string { return "chunks:" + streamID }

// StateKey is the per-stream Stream hash name for streamID.
func StateKey(streamID string) string { return "state:" + streamID }

// OwnerKey is the per-stream ownership lease key name for streamID.
func OwnerKey(streamID string) string { return "owner:" + streamID }

// ProgressChannel is the per-stream progress pub/sub channel name for
// streamID: events:{streamId}.
func ProgressChannel(streamID string) string { return "events:" + streamID }

// HeartbeatKey is the TTL-bounded liveness key name for workerID.
func HeartbeatKey(workerID string) string { return "heartbeat:" + workerID }
