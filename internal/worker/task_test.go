package worker

import "testing"

func TestTaskDrainingIsIdempotent(t *testing.T) {
	tsk := newTask("s1", "bucket", "prefix", 0)
	if tsk.isDraining() {
		t.Fatal("expected fresh task to not be draining")
	}
	tsk.markDraining()
	tsk.markDraining() // must not panic on double-close
	if !tsk.isDraining() {
		t.Fatal("expected task to be draining")
	}
}

func TestTaskResumeSeqSeedsLastApplied(t *testing.T) {
	tsk := newTask("s1", "bucket", "prefix", 5)
	if got := tsk.lastAppliedSeq(); got != 4 {
		t.Fatalf("expected resumeSeq 5 to seed lastApplied 4, got %d", got)
	}
	tsk.setLastApplied(5)
	if got := tsk.lastAppliedSeq(); got != 5 {
		t.Fatalf("expected lastApplied 5, got %d", got)
	}
}

func TestTaskOutputStatsAccumulate(t *testing.T) {
	tsk := newTask("s1", "bucket", "prefix", 0)
	tsk.addOutput(100)
	tsk.addOutput(250)
	count, bytes := tsk.outputStats()
	if count != 2 {
		t.Fatalf("expected segment count 2, got %d", count)
	}
	if bytes != 350 {
		t.Fatalf("expected total bytes 350, got %d", bytes)
	}
}
