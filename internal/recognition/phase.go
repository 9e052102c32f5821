package recognition

// StageStatus is the progress of a single stage.
type StageStatus string

const (
	StatusIdle    StageStatus = "idle"
	StatusPending StageStatus = "pending"
	StatusDone    StageStatus = "done"
	StatusError   StageStatus = "error"
)

// PhaseState tracks the three stages of the active recognition attempt.
//
// The zero-argument transition function Apply is a pure reducer: every
// listener holds its own copy and derives identical state from the same
// event stream. Consistency across listeners comes from determinism, not
// from sharing.
//
// Invariant: Verify leaves idle only as a side effect of Latex reaching
// done. A fresh recognition starts as {pending, pending, idle} because
// the first two stages are dispatched concurrently while verify is gated
// on the latex result.
type PhaseState struct {
	SessionID string      `json:"session_id"`
	Latex     StageStatus `json:"latex"`
	Analysis  StageStatus `json:"analysis"`
	Verify    StageStatus `json:"verify"`
}

// NewPhaseState returns the initial configuration for a fresh recognition.
func NewPhaseState(sessionID string) PhaseState {
	return PhaseState{
		SessionID: sessionID,
		Latex:     StatusPending,
		Analysis:  StatusPending,
		Verify:    StatusIdle,
	}
}

// Apply derives the next phase state from a progress event.
//
// Events for a different session are discarded unchanged: a late
// completion of an abandoned dispatch must never overwrite the state of
// the currently active session. Duplicate delivery is harmless because
// every transition is idempotent.
func (p PhaseState) Apply(ev ProgressEvent) PhaseState {
	if ev.ID == "" || ev.ID != p.SessionID {
		return p
	}

	switch ev.Stage {
	case StageLatex:
		if ev.Err != "" {
			p.Latex = StatusError
			return p
		}
		if ev.Latex != "" {
			p.Latex = StatusDone
			// Latex completing unblocks the dependent verify stage.
			if p.Verify == StatusIdle {
				p.Verify = StatusPending
			}
		}
	case StageAnalysis:
		if ev.Err != "" {
			p.Analysis = StatusError
			return p
		}
		if ev.Analysis != nil {
			p.Analysis = StatusDone
		}
	case StageConfidence:
		// A confidence event must never touch a verify stage that was
		// never unblocked.
		if p.Verify == StatusIdle {
			return p
		}
		if ev.Err != "" {
			p.Verify = StatusError
			return p
		}
		if ev.ConfidenceScore != nil {
			p.Verify = StatusDone
		}
	}
	return p
}

// Retry resets exactly one stage to pending, leaving its siblings alone.
// The stage argument uses the event stage names; StageConfidence targets
// the verify field.
func (p PhaseState) Retry(stage Stage) PhaseState {
	switch stage {
	case StageLatex:
		p.Latex = StatusPending
	case StageAnalysis:
		p.Analysis = StatusPending
	case StageConfidence:
		p.Verify = StatusPending
	}
	return p
}

// Terminal reports whether no stage can make further progress without a
// new dispatch: every stage is done or error, or still idle (never
// unblocked).
func (p PhaseState) Terminal() bool {
	settled := func(s StageStatus) bool {
		return s == StatusDone || s == StatusError || s == StatusIdle
	}
	return settled(p.Latex) && settled(p.Analysis) && settled(p.Verify)
}
