package worker

import (
	"context"
	"io"
	"strconv"

	"github.com/riverlane-stream/live-pipeline/internal/broker"
	"github.com/riverlane-stream/live-pipeline/internal/muxer"
	"github.com/riverlane-stream/live-pipeline/internal/retry"
)

// consumeChunks tails the stream's chunk log from the beginning, applying
// each chunk's bytes to the muxer's stdin in strict sequence order. A
// sequence number at or below lastAppliedSeq is a stale retry and is
// discarded; a gap above lastAppliedSeq+1 is waited out indefinitely while
// Live, but abandoned as soon as the task starts draining, so that a stop
// finalizes with whatever was actually applied rather than hanging on an
// orphaned append that will never arrive. A chunk GET that exhausts its
// retry budget is fatal: the caller finalizes the stream in error mode.
func (w *Worker) consumeChunks(t *task, proc *muxer.Process) error {
	cursor := "0"
	for {
		draining := t.isDraining()
		block := w.cfg.ReadTimeout
		if draining {
			block = 0
		}

		entries, err := w.broker.ReadFrom(context.Background(), broker.ChunkLog(t.streamID), cursor, block)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			if draining {
				return nil
			}
			continue
		}

		drained, err := w.applyEntries(t, proc, entries, &cursor)
		if err != nil {
			return err
		}
		if drained {
			return nil
		}
	}
}

// applyEntries applies each of entries in order, advancing cursor as it
// goes. It returns (true, nil) once the task is draining and a gap is hit,
// to signal the caller should stop waiting for more entries.
func (w *Worker) applyEntries(t *task, proc *muxer.Process, entries []broker.LogEntry, cursor *string) (bool, error) {
	for _, e := range entries {
		*cursor = e.ID
		seq, _ := strconv.ParseInt(e.Fields["seq"], 10, 64)

		if seq <= t.lastAppliedSeq() {
			continue // stale duplicate of an already-applied chunk
		}
		if seq != t.lastAppliedSeq()+1 {
			if t.isDraining() {
				return true, nil
			}
			continue // Live: wait indefinitely for the gap to fill
		}

		data, err := w.fetchChunk(e.Fields["key"])
		if err != nil {
			return false, err
		}
		if err := proc.Write(data); err != nil {
			return false, err
		}
		t.setLastApplied(seq)
	}
	return false, nil
}

// fetchChunk reads key's bytes from storage, retrying up to
// retry.StorageGet's attempt budget on failure.
func (w *Worker) fetchChunk(key string) ([]byte, error) {
	var data []byte
	err := retry.Do(context.Background(), retry.StorageGet, func() error {
		rc, err := w.store.Get(context.Background(), key)
		if err != nil {
			return err
		}
		defer rc.Close()
		b, err := io.ReadAll(rc)
		if err != nil {
			return err
		}
		data = b
		return nil
	})
	return data, err
}
