package llm

import "testing"

func newTestManager(t *testing.T, maxTokensPerPeriod int) *Manager {
	t.Helper()
	budget := NewBudget(0, 0, maxTokensPerPeriod)
	mgr := NewManager(4, budget, nil, nil)
	mgr.LoadModelWithMeta(&ModelMetadata{ID: "test-model", ContextLength: 2048, VocabSize: 32000})
	return mgr
}

// TestManager_S7TokenBudgetExceeded mirrors scenario S7.
func TestManager_S7TokenBudgetExceeded(t *testing.T) {
	mgr := newTestManager(t, 4)

	r1, err := mgr.Infer("hello", 3, 0)
	if err != nil {
		t.Fatalf("first Infer: %v", err)
	}
	if r1.TokensEmitted > 3 {
		t.Fatalf("first Infer TokensEmitted = %d, want <= 3", r1.TokensEmitted)
	}

	_, err = mgr.Infer("hello again", 3, 0)
	if err != ErrTokenBudgetExceeded {
		t.Fatalf("second Infer error = %v, want ErrTokenBudgetExceeded", err)
	}
}

// TestManager_S8StreamingProgress mirrors scenario S8.
func TestManager_S8StreamingProgress(t *testing.T) {
	mgr := newTestManager(t, 100)

	sess, err := mgr.InferStream("hello", 8, 2)
	if err != nil {
		t.Fatalf("InferStream: %v", err)
	}

	wantN := []int{2, 2, 2, 2}
	var total int
	for i, want := range wantN {
		n, done, items, err := mgr.CtlPoll(sess.ID, 8)
		if err != nil {
			t.Fatalf("CtlPoll #%d: %v", i+1, err)
		}
		if n != want {
			t.Fatalf("CtlPoll #%d: n = %d, want %d", i+1, n, want)
		}
		if len(items) != want {
			t.Fatalf("CtlPoll #%d: len(items) = %d, want %d", i+1, len(items), want)
		}
		wantDone := i == len(wantN)-1
		if done != wantDone {
			t.Fatalf("CtlPoll #%d: done = %v, want %v", i+1, done, wantDone)
		}
		total += n
	}
	if total != 8 {
		t.Fatalf("total tokens = %d, want 8", total)
	}
}

func TestManager_InferWithoutLoadedModel(t *testing.T) {
	mgr := NewManager(1, NewBudget(0, 0, 0), nil, nil)
	if _, err := mgr.Infer("x", 1, 0); err != ErrNoModelLoaded {
		t.Fatalf("Infer without model = %v, want ErrNoModelLoaded", err)
	}
}

func TestManager_TooManyConcurrent(t *testing.T) {
	mgr := newTestManager(t, 1000)
	if err := mgr.acquireSlot(); err != nil {
		t.Fatalf("acquireSlot: %v", err)
	}
	if err := mgr.acquireSlot(); err != nil {
		t.Fatalf("acquireSlot 2: %v", err)
	}
	if err := mgr.acquireSlot(); err != nil {
		t.Fatalf("acquireSlot 3: %v", err)
	}
	if err := mgr.acquireSlot(); err != nil {
		t.Fatalf("acquireSlot 4: %v", err)
	}
	if err := mgr.acquireSlot(); err != ErrTooManyConcurrent {
		t.Fatalf("acquireSlot 5 (over capacity 4) = %v, want ErrTooManyConcurrent", err)
	}
}

func TestManager_CtlCancelIDTransitionsStreamingSession(t *testing.T) {
	mgr := newTestManager(t, 100)
	sess, err := mgr.InferStream("hello", 8, 2)
	if err != nil {
		t.Fatalf("InferStream: %v", err)
	}

	if _, _, _, err := mgr.CtlPoll(sess.ID, 2); err != nil {
		t.Fatalf("CtlPoll: %v", err)
	}

	if err := mgr.CtlCancelID(sess.ID); err != nil {
		t.Fatalf("CtlCancelID: %v", err)
	}

	_, done, _, err := mgr.CtlPoll(sess.ID, 2)
	if err != nil {
		t.Fatalf("CtlPoll after cancel: %v", err)
	}
	if !done {
		t.Fatalf("CtlPoll after cancel: done = false, want true")
	}
	snap := sess.Snapshot()
	if snap.State != SessionCancelled {
		t.Fatalf("session state = %v, want cancelled", snap.State)
	}
}

func TestManager_SessionNotFound(t *testing.T) {
	mgr := newTestManager(t, 10)
	if _, _, _, err := mgr.CtlPoll(999, 1); err != ErrSessionNotFound {
		t.Fatalf("CtlPoll unknown id = %v, want ErrSessionNotFound", err)
	}
}
