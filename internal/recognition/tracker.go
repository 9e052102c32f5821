package recognition

import (
	"log"
	"sync"
	"time"

	"github.com/mleroy/texlens/internal/trace"
)

// Tracker is the app-side listener that folds progress events into the
// phase machine and the active session store, and mirrors the phase
// machine to disk so a restart can restore it.
type Tracker struct {
	mu     sync.Mutex
	state  PhaseState
	trace  *trace.Store
	active *ActiveStore
}

// NewTracker builds a tracker around the given persistence store and
// active session store. If a persisted trace exists it is restored as-is;
// no network calls are made on behalf of restored pending stages.
func NewTracker(traceStore *trace.Store, active *ActiveStore) *Tracker {
	t := &Tracker{trace: traceStore, active: active}

	if traceStore != nil {
		rec, err := traceStore.Load()
		if err != nil {
			log.Printf("⚠️ failed to load pipeline trace: %v", err)
		} else if rec != nil {
			t.state = stateFromRecord(rec)
		}
	}

	return t
}

// Reset starts tracking a fresh session: a new phase machine, a cleared
// error, and a placeholder active session carrying only the new ID.
func (t *Tracker) Reset(sessionID string) {
	t.mu.Lock()
	t.state = NewPhaseState(sessionID)
	t.persistLocked()
	t.mu.Unlock()

	if t.active != nil {
		t.active.Start()
		t.active.SetResult(&Session{ID: sessionID, CreatedAt: time.Now()})
	}
}

// MarkPending resets a single stage to pending ahead of a retry. The
// other stages keep their outcomes.
func (t *Tracker) MarkPending(stage Stage) {
	t.mu.Lock()
	t.state = t.state.Retry(stage)
	t.persistLocked()
	t.mu.Unlock()

	if t.active != nil {
		t.active.Start()
	}
}

// OnProgress implements Listener. Events for other sessions are dropped
// by the reducer; applying the same event twice is harmless.
func (t *Tracker) OnProgress(ev ProgressEvent) {
	t.mu.Lock()
	next := t.state.Apply(ev)
	changed := next != t.state
	t.state = next
	if changed {
		t.persistLocked()
	}
	t.mu.Unlock()

	if changed && t.active != nil {
		t.active.ApplyEvent(ev)
	}
}

// State returns a snapshot of the phase machine.
func (t *Tracker) State() PhaseState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Tracker) persistLocked() {
	if t.trace == nil {
		return
	}
	if err := t.trace.Save(recordFromState(t.state)); err != nil {
		log.Printf("⚠️ failed to persist pipeline trace: %v", err)
	}
}

func recordFromState(s PhaseState) trace.Record {
	return trace.Record{
		SessionID: s.SessionID,
		Latex:     string(s.Latex),
		Analysis:  string(s.Analysis),
		Verify:    string(s.Verify),
	}
}

func stateFromRecord(rec *trace.Record) PhaseState {
	return PhaseState{
		SessionID: rec.SessionID,
		Latex:     StageStatus(rec.Latex),
		Analysis:  StageStatus(rec.Analysis),
		Verify:    StageStatus(rec.Verify),
	}
}
