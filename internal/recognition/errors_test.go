package recognition

import (
	"errors"
	"testing"
	"time"
)

func TestClassifyProviderError(t *testing.T) {
	tests := []struct {
		msg  string
		want RetryClass
	}{
		{"API request failed with status 429: slow down", RetryClassRetryable},
		{"rate limit exceeded", RetryClassRetryable},
		{"API request failed with status 503: unavailable", RetryClassRetryable},
		{"dial tcp: connection refused", RetryClassRetryable},
		{"context deadline exceeded", RetryClassMaybe},
		{"analysis payload: schema validation failed: summary is required", RetryClassMaybe},
		{"invalid json: failed to parse latex payload", RetryClassMaybe},
		{"API request failed with status 401: unauthorized", RetryClassNonRetryable},
		{"bad request: image too large", RetryClassNonRetryable},
		{"quota exceeded for project", RetryClassNonRetryable},
		{"something inexplicable", RetryClassNonRetryable},
	}

	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			if got := ClassifyProviderError(errors.New(tt.msg)); got != tt.want {
				t.Fatalf("ClassifyProviderError(%q) = %s, want %s", tt.msg, got, tt.want)
			}
		})
	}

	if got := ClassifyProviderError(nil); got != RetryClassNonRetryable {
		t.Fatalf("nil error classified as %s", got)
	}
}

func TestStageErrorWrapping(t *testing.T) {
	inner := errors.New("boom")
	err := NewStageError(StageAnalysis, inner)

	if !errors.Is(err, inner) {
		t.Fatal("StageError must unwrap to the cause")
	}

	var stageErr *StageError
	if !errors.As(err, &stageErr) || stageErr.Stage != StageAnalysis {
		t.Fatalf("stage lost in wrapping: %v", err)
	}
}

func TestExtractRetryAfter(t *testing.T) {
	err := &StageError{Stage: StageLatex, Err: errors.New("429"), RetryAfter: "7"}
	if got := ExtractRetryAfter(err); got != 7*time.Second {
		t.Fatalf("RetryAfter header: got %s, want 7s", got)
	}

	if got := ExtractRetryAfter(errors.New("retry after 3 seconds")); got != 3*time.Second {
		t.Fatalf("message hint: got %s, want 3s", got)
	}

	if got := ExtractRetryAfter(errors.New("boom")); got != 0 {
		t.Fatalf("plain error: got %s, want 0", got)
	}
}
