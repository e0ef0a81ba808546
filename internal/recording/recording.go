// Package recording is the narrow-field-update client for the external
// Recording Record collaborator: a durable per-session record living in
// a separate database that the Gateway and Worker both update, never
// overwriting the full row, since multiple producers converge on it.
package recording

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	pipeerrors "github.com/riverlane-stream/live-pipeline/internal/errors"
	"github.com/riverlane-stream/live-pipeline/internal/model"
)

// PlaybackFormat mirrors the recording record's playbackFormat enum.
type PlaybackFormat string

const (
	PlaybackVideo PlaybackFormat = "video"
	PlaybackHLS   PlaybackFormat = "hls"
)

// Client performs targeted column updates against the recording table.
// It never issues a full-row UPDATE.
type Client struct {
	pool *pgxpool.Pool
}

// Connect opens a pooled connection to dsn.
func Connect(ctx context.Context, dsn string) (*Client, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, pipeerrors.NewStorageError("recording:connect", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, pipeerrors.NewStorageError("recording:ping", err)
	}
	return &Client{pool: pool}, nil
}

// Close releases the connection pool.
func (c *Client) Close() { c.pool.Close() }

// MarkStart sets the fields the Gateway owns on stream start: status,
// isLiveStreaming, streamStartedAt, storageBucket, storageKey, and
// playbackFormat. It is a single narrow UPDATE naming only these columns.
func (c *Client) MarkStart(ctx context.Context, streamID, bucket, manifestKey string) error {
	const q = `
		UPDATE recordings
		SET status = 'recording',
		    is_live_streaming = true,
		    stream_started_at = now(),
		    storage_bucket = $2,
		    storage_key = $3,
		    playback_format = $4
		WHERE id = $1`
	_, err := c.pool.Exec(ctx, q, streamID, bucket, manifestKey, PlaybackHLS)
	if err != nil {
		return pipeerrors.NewStorageError("recording:markStart:"+streamID, err)
	}
	return nil
}

// MarkStop sets the fields the Gateway owns on stream stop: status,
// isLiveStreaming, streamEndedAt, duration, pauseCount,
// pauseDurationTotal, pauseEvents.
func (c *Client) MarkStop(ctx context.Context, streamID string, stats model.StopStats) error {
	const q = `
		UPDATE recordings
		SET status = 'ended',
		    is_live_streaming = false,
		    stream_ended_at = now(),
		    duration = $2,
		    pause_count = $3,
		    pause_duration_total = $4,
		    pause_events = $5
		WHERE id = $1`
	_, err := c.pool.Exec(ctx, q, streamID, stats.Duration, stats.PauseCount, stats.PauseDurationTotal, pauseEventsJSON(stats.PauseEvents))
	if err != nil {
		return pipeerrors.NewStorageError("recording:markStop:"+streamID, err)
	}
	return nil
}

// UpdateStatus sets only the status column, per the Worker's
// StatusChange progress handler.
func (c *Client) UpdateStatus(ctx context.Context, streamID string, status model.StreamStatus) error {
	const q = `UPDATE recordings SET status = $2 WHERE id = $1`
	_, err := c.pool.Exec(ctx, q, streamID, string(status))
	if err != nil {
		return pipeerrors.NewStorageError("recording:updateStatus:"+streamID, err)
	}
	return nil
}

// MarkComplete sets status and fileBytes, per the Worker's
// StreamComplete progress handler.
func (c *Client) MarkComplete(ctx context.Context, streamID string, totalBytes int64) error {
	const q = `UPDATE recordings SET status = 'complete', file_bytes = $2 WHERE id = $1`
	_, err := c.pool.Exec(ctx, q, streamID, totalBytes)
	if err != nil {
		return pipeerrors.NewStorageError("recording:markComplete:"+streamID, err)
	}
	return nil
}

func pauseEventsJSON(events []model.PauseEvent) []map[string]any {
	out := make([]map[string]any, len(events))
	for i, e := range events {
		out[i] = map[string]any{
			"pausedAt":  e.PausedAt.Format(time.RFC3339),
			"resumedAt": e.ResumedAt.Format(time.RFC3339),
			"duration":  e.Duration,
		}
	}
	return out
}
