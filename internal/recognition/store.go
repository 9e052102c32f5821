package recognition

import (
	"sync"
	"time"
)

// SessionPatch is a partial update to the active session. Nil fields are
// left untouched, so patches over disjoint field sets commute and any
// patch is idempotent. Duplicate or re-ordered event delivery therefore
// cannot corrupt the session.
type SessionPatch struct {
	ID                 *string
	Latex              *string
	Title              *string
	Analysis           *Analysis
	Verification       *Verification
	VerificationReport *string
	ConfidenceScore    *int
	CreatedAt          *time.Time
	OriginalImage      *string
	ModelName          *string
}

// ActiveStore owns the single in-flight (or most recent) recognition
// session. It is written from multiple listener callbacks; the mutex
// guards memory visibility while patch idempotency keeps the contents
// consistent, same as the PhaseState reducer.
type ActiveStore struct {
	mu      sync.Mutex
	session *Session
	loading bool
	lastErr string
}

// NewActiveStore returns an empty store.
func NewActiveStore() *ActiveStore {
	return &ActiveStore{}
}

// Start clears any previous error and marks the store loading.
func (s *ActiveStore) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErr = ""
	s.loading = true
}

// SetResult replaces the current session outright. Passing nil clears it.
func (s *ActiveStore) SetResult(session *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session == nil {
		s.session = nil
		return
	}
	cp := *session
	s.session = &cp
}

// SetError records a user-visible failure message and stops loading.
func (s *ActiveStore) SetError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErr = msg
	s.loading = false
}

// SetLoading toggles the loading flag.
func (s *ActiveStore) SetLoading(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = v
}

// UpdateLatex applies a user edit to the session's LaTeX text.
func (s *ActiveStore) UpdateLatex(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return
	}
	s.session.Latex = text
}

// UpdateTitle applies a user rename to the session's title.
func (s *ActiveStore) UpdateTitle(title string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return
	}
	s.session.Title = title
}

// Patch shallow-merges the non-nil fields into the current session. A
// patch against an empty store is ignored: after navigating away (the
// session cleared) a late event must not resurrect stale state. A patch
// carrying a session ID different from the current one is likewise
// discarded.
func (s *ActiveStore) Patch(p SessionPatch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return
	}
	if p.ID != nil && s.session.ID != "" && *p.ID != s.session.ID {
		return
	}

	if p.ID != nil && s.session.ID == "" {
		s.session.ID = *p.ID
	}
	if p.Latex != nil {
		s.session.Latex = *p.Latex
	}
	if p.Title != nil {
		s.session.Title = *p.Title
	}
	if p.Analysis != nil {
		s.session.Analysis = *p.Analysis
	}
	if p.Verification != nil {
		v := *p.Verification
		s.session.Verification = &v
	}
	if p.VerificationReport != nil {
		s.session.VerificationReport = *p.VerificationReport
	}
	if p.ConfidenceScore != nil {
		s.session.ConfidenceScore = *p.ConfidenceScore
	}
	if p.CreatedAt != nil {
		s.session.CreatedAt = *p.CreatedAt
	}
	if p.OriginalImage != nil {
		s.session.OriginalImage = *p.OriginalImage
	}
	if p.ModelName != nil {
		s.session.ModelName = *p.ModelName
	}
}

// ApplyEvent converts a progress event into the corresponding patch.
// Events with a non-empty Err mark the store's failure message but do not
// write payload fields. Error events obey the same stale-session rule as
// patches: no session, or a mismatched ID, and the event is dropped.
func (s *ActiveStore) ApplyEvent(ev ProgressEvent) {
	if ev.Err != "" {
		s.mu.Lock()
		stale := s.session == nil ||
			(ev.ID != "" && s.session.ID != "" && ev.ID != s.session.ID)
		s.mu.Unlock()
		if stale {
			return
		}
		s.SetError(ev.Err)
		return
	}

	p := SessionPatch{ID: &ev.ID}
	switch ev.Stage {
	case StageLatex:
		if ev.Latex != "" {
			p.Latex = &ev.Latex
		}
		if ev.CreatedAt != "" {
			if t, err := time.Parse(time.RFC3339, ev.CreatedAt); err == nil {
				p.CreatedAt = &t
			}
		}
		if ev.OriginalImage != "" {
			p.OriginalImage = &ev.OriginalImage
		}
		if ev.ModelName != "" {
			p.ModelName = &ev.ModelName
		}
	case StageAnalysis:
		if ev.Title != "" {
			p.Title = &ev.Title
		}
		if ev.Analysis != nil {
			p.Analysis = ev.Analysis
		}
	case StageConfidence:
		if ev.ConfidenceScore != nil {
			p.ConfidenceScore = ev.ConfidenceScore
		}
		if ev.Verification != nil {
			p.Verification = ev.Verification
		}
		if ev.VerificationReport != "" {
			p.VerificationReport = &ev.VerificationReport
		}
	}
	s.Patch(p)
}

// Session returns a copy of the current session, if any.
func (s *ActiveStore) Session() (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return Session{}, false
	}
	return *s.session, true
}

// Loading reports whether a recognition is in flight.
func (s *ActiveStore) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Err returns the last recorded failure message, empty if none.
func (s *ActiveStore) Err() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}
