package recognition

import (
	"path/filepath"
	"testing"

	"github.com/mleroy/texlens/internal/trace"
)

func newTestTrace(t *testing.T) *trace.Store {
	t.Helper()
	return trace.NewStore(filepath.Join(t.TempDir(), "trace.json"))
}

func TestTrackerPersistsAcrossRestart(t *testing.T) {
	store := newTestTrace(t)

	tracker := NewTracker(store, nil)
	tracker.Reset("s1")
	tracker.OnProgress(latexDone("s1"))
	tracker.OnProgress(ProgressEvent{ID: "s1", Stage: StageAnalysis, Err: "model unavailable"})

	// A second tracker over the same file picks up where the first left
	// off, without re-running anything.
	restored := NewTracker(store, nil)
	state := restored.State()
	if state.SessionID != "s1" {
		t.Fatalf("session not restored: %+v", state)
	}
	if state.Latex != StatusDone || state.Analysis != StatusError || state.Verify != StatusPending {
		t.Fatalf("stage statuses not restored: %+v", state)
	}
}

func TestTrackerIgnoresDroppedEvents(t *testing.T) {
	tracker := NewTracker(newTestTrace(t), NewActiveStore())
	tracker.Reset("s1")

	// An event for another session must not disturb the state or the
	// active session.
	tracker.OnProgress(latexDone("other"))
	if got := tracker.State().Latex; got != StatusPending {
		t.Fatalf("stale event applied: %v", got)
	}
}

func TestTrackerUpdatesActiveStore(t *testing.T) {
	active := NewActiveStore()
	tracker := NewTracker(newTestTrace(t), active)
	tracker.Reset("s1")

	sess, ok := active.Session()
	if !ok || sess.ID != "s1" {
		t.Fatalf("reset did not seed the active session: %+v", sess)
	}
	if !active.Loading() {
		t.Fatal("reset must mark the session loading")
	}

	tracker.OnProgress(latexDone("s1"))
	if sess, _ := active.Session(); sess.Latex == "" {
		t.Fatalf("latex event not mirrored: %+v", sess)
	}
}

func TestMarkPendingKeepsSiblings(t *testing.T) {
	store := newTestTrace(t)
	tracker := NewTracker(store, nil)
	tracker.Reset("s1")
	tracker.OnProgress(latexDone("s1"))
	tracker.OnProgress(analysisDone("s1"))
	tracker.OnProgress(ProgressEvent{ID: "s1", Stage: StageConfidence, Err: "timeout"})

	tracker.MarkPending(StageConfidence)

	state := tracker.State()
	if state.Verify != StatusPending {
		t.Fatalf("retry did not reset the stage: %+v", state)
	}
	if state.Latex != StatusDone || state.Analysis != StatusDone {
		t.Fatalf("retry disturbed sibling stages: %+v", state)
	}

	// The pending retry survives a restart too.
	restored := NewTracker(store, nil)
	if got := restored.State().Verify; got != StatusPending {
		t.Fatalf("pending retry not persisted: %v", got)
	}
}

func TestTrackerNilTraceStore(t *testing.T) {
	tracker := NewTracker(nil, nil)
	tracker.Reset("s1")
	tracker.OnProgress(latexDone("s1"))
	if got := tracker.State().Latex; got != StatusDone {
		t.Fatalf("tracker without persistence broken: %v", got)
	}
}
