package worker

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/riverlane-stream/live-pipeline/internal/muxer"
)

// task tracks the per-stream state shared by the four concurrent
// activities (muxer driver, chunk consumer, output poller, finalizer)
// that make up one stream's transcoding.
type task struct {
	streamID string
	bucket   string
	prefix   string

	mu           sync.Mutex
	draining     bool
	lastApplied  int64
	segmentCount int
	totalBytes   int64

	drainCh chan struct{}
	done    chan struct{}
}

// newTask creates a task resuming from resumeSeq (0 for a freshly claimed
// stream; the reclaimer's reconstructed lastAppliedSeq+1 otherwise).
func newTask(streamID, bucket, prefix string, resumeSeq int64) *task {
	return &task{
		streamID:    streamID,
		bucket:      bucket,
		prefix:      prefix,
		lastApplied: resumeSeq - 1,
		drainCh:     make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// markDraining transitions the task to Ending: the muxer driver closes
// stdin once the chunk consumer observes this, and the chunk consumer
// stops waiting indefinitely on a sequence gap.
func (t *task) markDraining() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.draining {
		return
	}
	t.draining = true
	close(t.drainCh)
}

func (t *task) isDraining() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.draining
}

func (t *task) lastAppliedSeq() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastApplied
}

func (t *task) setLastApplied(seq int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastApplied = seq
}

func (t *task) addOutput(size int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.segmentCount++
	t.totalBytes += size
}

func (t *task) outputStats() (count int, bytes int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.segmentCount, t.totalBytes
}

// runTask drives one stream end to end: spawn the muxer, consume chunks
// into its stdin, poll its outputs to storage, and finalize once the
// muxer exits. The task's own done channel is closed when this returns.
func (w *Worker) runTask(t *task) {
	defer close(t.done)

	outDir := filepath.Join(w.cfg.TempRoot, t.streamID)
	proc, err := muxer.Start(context.Background(), muxer.Config{
		Binary:    w.cfg.MuxerBinary,
		OutputDir: outDir,
	}, w.log)
	if err != nil {
		w.log.Error("muxer spawn failed", "stream_id", t.streamID, "error", err)
		w.finalize(t, outDir, err)
		return
	}

	pollStop := make(chan struct{})
	pollDone := make(chan struct{})
	go func() {
		defer close(pollDone)
		w.pollOutputs(t, proc, pollStop)
	}()

	consumeErr := w.consumeChunks(t, proc)

	if err := proc.CloseStdin(); err != nil {
		w.log.Error("muxer stdin close failed", "stream_id", t.streamID, "error", err)
	}

	muxerErr := w.awaitMuxerExit(t, proc)

	close(pollStop)
	<-pollDone

	finalErr := consumeErr
	if finalErr == nil {
		finalErr = muxerErr
	}
	w.finalize(t, outDir, finalErr)
}

// awaitMuxerExit waits up to DrainGrace for the muxer to exit after its
// stdin is closed, escalating to SIGKILL on timeout, per the shutdown flow.
func (w *Worker) awaitMuxerExit(t *task, proc *muxer.Process) error {
	exit := make(chan error, 1)
	go func() { exit <- proc.Wait() }()

	select {
	case err := <-exit:
		return err
	case <-time.After(w.cfg.DrainGrace):
		w.log.Error("muxer exit timed out, escalating to SIGKILL", "stream_id", t.streamID)
		if err := proc.Kill(); err != nil {
			w.log.Error("muxer kill failed", "stream_id", t.streamID, "error", err)
		}
		return <-exit
	}
}
