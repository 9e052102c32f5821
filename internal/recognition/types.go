// Package recognition orchestrates the three-stage formula recognition
// pipeline: LaTeX extraction, analysis, and verification against the
// source image.
package recognition

import (
	"context"
	"time"
)

// Analysis is the structured explanation of a recognized formula.
type Analysis struct {
	Summary     string       `json:"summary"`
	Variables   []Variable   `json:"variables,omitempty"`
	Terms       []Term       `json:"terms,omitempty"`
	Suggestions []Suggestion `json:"suggestions"`
}

// Variable describes one symbol appearing in the formula.
type Variable struct {
	Symbol      string `json:"symbol"`
	Description string `json:"description"`
	Unit        string `json:"unit,omitempty"`
}

// Term describes one distinct sub-expression of the formula.
type Term struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Suggestion carries a severity tag ("error", "warning", "info") and a message.
type Suggestion struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// VerificationIssue is one mismatch found between the LaTeX and the image.
// Category is one of: missing_term, extra_term, symbol_mismatch,
// notation_mismatch, layout_mismatch, other.
type VerificationIssue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
}

// VerificationCoverage counts how many symbols and terms of the image were
// matched by the LaTeX.
type VerificationCoverage struct {
	SymbolsMatched int `json:"symbols_matched"`
	SymbolsTotal   int `json:"symbols_total"`
	TermsMatched   int `json:"terms_matched"`
	TermsTotal     int `json:"terms_total"`
}

// Verification is the structured comparison verdict for a session.
// Status is "ok", "warning" or "error".
type Verification struct {
	Status   string                `json:"status"`
	Issues   []VerificationIssue   `json:"issues,omitempty"`
	Coverage *VerificationCoverage `json:"coverage,omitempty"`
}

// VerificationResult is the flat confidence outcome of the verify stage.
type VerificationResult struct {
	ConfidenceScore    int    `json:"confidence_score"`
	VerificationReport string `json:"verification_report"`
}

// Session is the single active (or most recently completed) recognition
// attempt. Only fields explicitly delivered by a stage's completion event
// are ever written; a partially filled session is a valid intermediate
// state and is never padded with synthesized values.
type Session struct {
	ID                 string        `json:"id"`
	Latex              string        `json:"latex"`
	Title              string        `json:"title"`
	Analysis           Analysis      `json:"analysis"`
	Verification       *Verification `json:"verification,omitempty"`
	VerificationReport string        `json:"verification_report,omitempty"`
	ConfidenceScore    int           `json:"confidence_score"`
	CreatedAt          time.Time     `json:"created_at"`
	IsFavorite         bool          `json:"is_favorite"`
	OriginalImage      string        `json:"original_image"`
	ModelName          string        `json:"model_name,omitempty"`
}

// Client abstracts the external recognition service. Implementations live
// in internal/provider; the orchestrator only depends on this interface.
type Client interface {
	// ExtractLaTeX returns the LaTeX transcription of the formula image.
	ExtractLaTeX(ctx context.Context, prompt, imageB64 string) (string, error)
	// GenerateAnalysis returns a title plus the structured analysis.
	GenerateAnalysis(ctx context.Context, prompt, imageB64 string) (string, Analysis, error)
	// VerifyWithImage scores the LaTeX against the image and writes a report.
	VerifyWithImage(ctx context.Context, prompt, latex, imageB64 string) (VerificationResult, error)
	// VerifyStructured returns the fine-grained issue/coverage verdict.
	VerifyStructured(ctx context.Context, latex, imageB64, language string) (Verification, error)
	// GenerateContent is a plain text call, used for connection tests.
	GenerateContent(ctx context.Context, prompt string) (string, error)
}

// ImageSource produces the PNG image (base64 encoded) a recognition runs
// on. Screen capture, clipboard and file import all sit behind this
// interface; retrying the latex stage re-runs the acquisition because the
// raw image is not guaranteed to be retained elsewhere.
type ImageSource interface {
	Acquire(ctx context.Context) (string, error)
}
