package recognition

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// PromptSet carries the resolved prompt text for each stage.
type PromptSet struct {
	Latex        string
	Analysis     string
	Verification string
	Language     string
}

// ResultSink receives finished sessions for long-term storage. Saving the
// same session twice must upsert, not duplicate.
type ResultSink interface {
	SaveResult(ctx context.Context, s Session) error
}

// Options configures an Orchestrator.
type Options struct {
	Client    Client
	Tracker   *Tracker
	Listeners Listeners
	Sink      ResultSink
	Policy    RetryPolicy
	Prompts   PromptSet
	ModelName string
}

// Orchestrator drives the three-stage recognition pipeline: LaTeX
// extraction and analysis run concurrently, verification starts once the
// LaTeX result lands. Every outcome is published as a progress event;
// listeners fold the events into their own views. The returned Session is
// assembled locally from the same outcomes.
type Orchestrator struct {
	client    Client
	tracker   *Tracker
	listeners Listeners
	sink      ResultSink
	policy    RetryPolicy
	prompts   PromptSet
	modelName string

	// Inputs retained for per-stage retries.
	mu         sync.Mutex
	lastSource ImageSource
	lastID     string
	lastImage  string
	lastLatex  string
}

// NewOrchestrator wires an orchestrator from options. Client and Tracker
// are required.
func NewOrchestrator(opts Options) (*Orchestrator, error) {
	if opts.Client == nil {
		return nil, errors.New("recognition: client is required")
	}
	if opts.Tracker == nil {
		return nil, errors.New("recognition: tracker is required")
	}
	policy := opts.Policy
	if policy.Multiplier == 0 {
		policy = DefaultRetryPolicy()
	}
	return &Orchestrator{
		client:    opts.Client,
		tracker:   opts.Tracker,
		listeners: opts.Listeners,
		sink:      opts.Sink,
		policy:    policy,
		prompts:   opts.Prompts,
		modelName: opts.ModelName,
	}, nil
}

// emit delivers an event to the tracker first, then to the remaining
// listeners. The tracker sees every event before Recognize returns, so
// its phase machine is never behind the returned session.
func (o *Orchestrator) emit(ev ProgressEvent) {
	o.tracker.OnProgress(ev)
	o.listeners.OnProgress(ev)
}

// Recognize acquires an image from src and runs the full pipeline. It
// returns the assembled session once all dispatched stages have settled.
// A LaTeX failure fails the whole session; analysis and verification
// failures are local to their stage and leave the rest intact.
func (o *Orchestrator) Recognize(ctx context.Context, src ImageSource) (Session, error) {
	imageB64, err := src.Acquire(ctx)
	if err != nil {
		return Session{}, fmt.Errorf("failed to acquire image: %w", err)
	}

	id := uuid.NewString()
	createdAt := time.Now()
	o.tracker.Reset(id)

	o.mu.Lock()
	o.lastSource = src
	o.lastID = id
	o.lastImage = imageB64
	o.lastLatex = ""
	o.mu.Unlock()

	session := Session{
		ID:            id,
		CreatedAt:     createdAt,
		OriginalImage: imageB64,
		ModelName:     o.modelName,
	}

	var wg sync.WaitGroup
	var latexErr, analysisErr error

	wg.Add(2)

	go func() {
		defer wg.Done()
		latex, err := o.runLatex(ctx, id, imageB64, createdAt)
		if err != nil {
			latexErr = err
			return
		}
		session.Latex = latex
		// Verification is gated on the LaTeX result, so it runs here.
		o.runVerify(ctx, id, latex, imageB64, &session)
	}()

	go func() {
		defer wg.Done()
		title, analysis, err := o.runAnalysis(ctx, id, imageB64)
		if err != nil {
			analysisErr = err
			return
		}
		session.Title = title
		session.Analysis = analysis
	}()

	wg.Wait()

	o.settle()

	if latexErr != nil {
		return Session{}, fmt.Errorf("latex extraction failed: %w", latexErr)
	}
	if analysisErr != nil {
		log.Printf("⚠️ analysis failed for session %s: %v", id, analysisErr)
	}

	o.save(ctx, session)
	return session, nil
}

// settle marks the active store as no longer loading. Error events clear
// the flag on their own; this covers the success paths.
func (o *Orchestrator) settle() {
	if o.tracker.active != nil {
		o.tracker.active.SetLoading(false)
	}
}

// RetryAnalysis re-runs the analysis stage against the retained image.
// The LaTeX and verification outcomes are untouched.
func (o *Orchestrator) RetryAnalysis(ctx context.Context) error {
	o.mu.Lock()
	id, image := o.lastID, o.lastImage
	o.mu.Unlock()
	if id == "" {
		return errors.New("recognition: no session to retry")
	}

	o.tracker.MarkPending(StageAnalysis)
	if _, _, err := o.runAnalysis(ctx, id, image); err != nil {
		return err
	}
	o.finishRetry(ctx)
	return nil
}

// RetryVerify re-runs verification against the retained LaTeX and image.
func (o *Orchestrator) RetryVerify(ctx context.Context) error {
	o.mu.Lock()
	id, image, latex := o.lastID, o.lastImage, o.lastLatex
	o.mu.Unlock()
	if id == "" {
		return errors.New("recognition: no session to retry")
	}
	if latex == "" {
		return errors.New("recognition: no latex result to verify")
	}

	o.tracker.MarkPending(StageConfidence)
	var session Session
	if s, ok := o.activeSession(); ok {
		session = s
	}
	o.runVerify(ctx, id, latex, image, &session)
	o.finishRetry(ctx)
	return nil
}

// RetryLatex abandons the current session and re-runs the whole pipeline
// from the retained image source. A fresh acquisition means a fresh
// session ID; events from the old session become stale and are dropped.
func (o *Orchestrator) RetryLatex(ctx context.Context) (Session, error) {
	o.mu.Lock()
	src := o.lastSource
	o.mu.Unlock()
	if src == nil {
		return Session{}, errors.New("recognition: no session to retry")
	}
	return o.Recognize(ctx, src)
}

func (o *Orchestrator) runLatex(ctx context.Context, id, imageB64 string, createdAt time.Time) (string, error) {
	latex, err := RetryWithPolicy(ctx, o.policy, func(ctx context.Context) (string, error) {
		return o.client.ExtractLaTeX(ctx, o.prompts.Latex, imageB64)
	}, o.logRetry("latex"))
	if err != nil {
		o.emit(ProgressEvent{ID: id, Stage: StageLatex, Err: err.Error()})
		return "", NewStageError(StageLatex, err)
	}

	o.mu.Lock()
	if o.lastID == id {
		o.lastLatex = latex
	}
	o.mu.Unlock()

	o.emit(ProgressEvent{
		ID:            id,
		Stage:         StageLatex,
		Latex:         latex,
		CreatedAt:     createdAt.Format(time.RFC3339),
		OriginalImage: imageB64,
		ModelName:     o.modelName,
	})
	return latex, nil
}

func (o *Orchestrator) runAnalysis(ctx context.Context, id, imageB64 string) (string, Analysis, error) {
	type analysisOut struct {
		title    string
		analysis Analysis
	}
	out, err := RetryWithPolicy(ctx, o.policy, func(ctx context.Context) (analysisOut, error) {
		title, analysis, err := o.client.GenerateAnalysis(ctx, o.prompts.Analysis, imageB64)
		return analysisOut{title: title, analysis: analysis}, err
	}, o.logRetry("analysis"))
	if err != nil {
		o.emit(ProgressEvent{ID: id, Stage: StageAnalysis, Err: err.Error()})
		return "", Analysis{}, NewStageError(StageAnalysis, err)
	}

	o.emit(ProgressEvent{
		ID:       id,
		Stage:    StageAnalysis,
		Title:    out.title,
		Analysis: &out.analysis,
	})
	return out.title, out.analysis, nil
}

// runVerify prefers the structured verification path and scores it
// locally; if the provider cannot produce structured output it falls back
// to the free-form verification call.
func (o *Orchestrator) runVerify(ctx context.Context, id, latex, imageB64 string, session *Session) {
	out, err := RetryWithPolicy(ctx, o.policy, func(ctx context.Context) (verifyOut, error) {
		return o.verifyOnce(ctx, latex, imageB64)
	}, o.logRetry("verify"))
	if err != nil {
		o.emit(ProgressEvent{ID: id, Stage: StageConfidence, Err: err.Error()})
		return
	}

	session.Verification = out.verification
	session.ConfidenceScore = out.result.ConfidenceScore
	session.VerificationReport = out.result.VerificationReport

	o.emit(ProgressEvent{
		ID:                 id,
		Stage:              StageConfidence,
		ConfidenceScore:    &out.result.ConfidenceScore,
		Verification:       out.verification,
		VerificationReport: out.result.VerificationReport,
	})
}

type verifyOut struct {
	result       VerificationResult
	verification *Verification
}

func (o *Orchestrator) verifyOnce(ctx context.Context, latex, imageB64 string) (verifyOut, error) {
	verification, err := o.client.VerifyStructured(ctx, latex, imageB64, o.prompts.Language)
	if err == nil {
		return verifyOut{
			result:       ComputeVerdict(verification),
			verification: &verification,
		}, nil
	}
	log.Printf("structured verification unavailable, falling back: %v", err)

	result, err := o.client.VerifyWithImage(ctx, o.prompts.Verification, latex, imageB64)
	if err != nil {
		return verifyOut{}, err
	}
	return verifyOut{result: result}, nil
}

// save stores the session when the LaTeX stage produced a result. The
// sink upserts by ID, so calling it again after a retry is safe.
func (o *Orchestrator) save(ctx context.Context, session Session) {
	if o.sink == nil || session.Latex == "" {
		return
	}
	if err := o.sink.SaveResult(ctx, session); err != nil {
		log.Printf("⚠️ failed to save session %s: %v", session.ID, err)
	}
}

// finishRetry re-saves the active session after a stage retry so storage
// reflects the refreshed fields.
func (o *Orchestrator) finishRetry(ctx context.Context) {
	o.settle()
	if s, ok := o.activeSession(); ok {
		o.save(ctx, s)
	}
}

func (o *Orchestrator) activeSession() (Session, bool) {
	if o.tracker == nil || o.tracker.active == nil {
		return Session{}, false
	}
	return o.tracker.active.Session()
}

func (o *Orchestrator) logRetry(stage string) func(attempt int, delay time.Duration, err error) {
	return func(attempt int, delay time.Duration, err error) {
		log.Printf("🔁 %s attempt %d failed, retrying in %s: %v", stage, attempt, delay.Round(time.Millisecond), err)
	}
}
