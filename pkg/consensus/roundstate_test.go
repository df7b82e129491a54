package consensus

import "testing"

func TestRoundWindowAtWrapsAroundSize(t *testing.T) {
	w := NewRoundWindow(4)
	w.At(1).Phase = PhasePrepare

	if w.At(5).Phase != PhasePrepare {
		t.Fatal("slot 5 should alias slot 1 in a size-4 window")
	}
}

func TestRoundWindowAdvanceAfterCommitClearsFutureSlot(t *testing.T) {
	w := NewRoundWindow(4)
	w.At(4).Phase = PhasePrepare // occupies the slot that height 0 will reuse

	old := w.AdvanceAfterCommit(0)
	if old.Phase != PhasePrepare {
		t.Fatalf("AdvanceAfterCommit should return the slot's prior contents, got phase %v", old.Phase)
	}
	if w.At(4).Phase != PhaseWaiting {
		t.Fatal("AdvanceAfterCommit must reset the reused slot to its zero value")
	}
}

func TestRoundWindowMinimumSizeOne(t *testing.T) {
	w := NewRoundWindow(0)
	if len(w.slots) != 1 {
		t.Fatalf("NewRoundWindow(0) should clamp to size 1, got %d", len(w.slots))
	}
}
