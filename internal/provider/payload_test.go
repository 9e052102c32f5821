package provider

import (
	"strings"
	"testing"
)

func TestCleanResponseStripsFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"json fence", "```json\n{\"latex\": \"x\"}\n```", `{"latex": "x"}`},
		{"bare fence", "```\n{\"latex\": \"x\"}\n```", `{"latex": "x"}`},
		{"no fence", `  {"latex": "x"}  `, `{"latex": "x"}`},
		{"fence mid text", "here:```json{\"a\":1}```done", `here:{"a":1}done`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cleanResponse(tt.in); got != tt.want {
				t.Fatalf("cleanResponse(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseLatexPayload(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{
			name: "strict json",
			in:   `{"latex": "E = mc^2"}`,
			want: "E = mc^2",
		},
		{
			name: "fenced json",
			in:   "```json\n{\"latex\": \"\\\\frac{a}{b}\"}\n```",
			want: `\frac{a}{b}`,
		},
		{
			name: "trailing garbage recovered",
			in:   `{"latex": "x^2 + y^2"}]`,
			want: "x^2 + y^2",
		},
		{
			name: "prose wrapper recovered",
			in:   `Here you go: {"latex": "\\alpha + \\beta"} hope that helps`,
			want: `\alpha + \beta`,
		},
		{
			name: "escaped quote inside value",
			in:   `{"latex": "\\text{a \"b\" c}"} extra`,
			want: `\text{a "b" c}`,
		},
		{
			name:    "no latex field",
			in:      `{"title": "not latex"}`,
			wantErr: true,
		},
		{
			name:    "plain text",
			in:      "I could not read the image.",
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseLatexPayload(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseAnalysisPayload(t *testing.T) {
	raw := `{
		"title": "Mass energy equivalence",
		"analysis": {
			"summary": "Relates mass to energy.",
			"variables": [{"symbol": "E", "description": "energy", "unit": "J"}],
			"terms": [{"name": "mc^2", "description": "rest energy"}],
			"suggestions": [{"type": "info", "message": "looks fine"}]
		}
	}`

	title, analysis, err := parseAnalysisPayload(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if title != "Mass energy equivalence" {
		t.Fatalf("wrong title: %q", title)
	}
	if analysis.Summary != "Relates mass to energy." {
		t.Fatalf("wrong summary: %q", analysis.Summary)
	}
	if len(analysis.Variables) != 1 || analysis.Variables[0].Symbol != "E" {
		t.Fatalf("variables not decoded: %+v", analysis.Variables)
	}
	if len(analysis.Terms) != 1 || analysis.Terms[0].Name != "mc^2" {
		t.Fatalf("terms not decoded: %+v", analysis.Terms)
	}
}

func TestParseAnalysisPayloadLatexMisfire(t *testing.T) {
	_, _, err := parseAnalysisPayload(`{"latex": "x^2"}`)
	if err == nil {
		t.Fatal("expected error for latex payload")
	}
	if !strings.Contains(err.Error(), "latex payload") {
		t.Fatalf("wrong error: %v", err)
	}
}

func TestParseAnalysisPayloadSchemaViolation(t *testing.T) {
	// analysis present but missing the required summary
	_, _, err := parseAnalysisPayload(`{"title": "t", "analysis": {}}`)
	if err == nil {
		t.Fatal("expected schema error")
	}
	if !strings.Contains(err.Error(), "schema validation failed") {
		t.Fatalf("wrong error: %v", err)
	}
}

func TestParseVerificationPayload(t *testing.T) {
	raw := "```json\n" + `{
		"status": "warning",
		"issues": [{"category": "symbol_mismatch", "message": "beta read as b"}],
		"coverage": {"symbols_matched": 3, "symbols_total": 4, "terms_matched": 1, "terms_total": 1}
	}` + "\n```"

	v, err := parseVerificationPayload(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Status != "warning" {
		t.Fatalf("wrong status: %q", v.Status)
	}
	if len(v.Issues) != 1 || v.Issues[0].Category != "symbol_mismatch" {
		t.Fatalf("issues not decoded: %+v", v.Issues)
	}
	if v.Coverage == nil || v.Coverage.SymbolsMatched != 3 {
		t.Fatalf("coverage not decoded: %+v", v.Coverage)
	}
}

func TestParseVerificationPayloadRejectsBadStatus(t *testing.T) {
	_, err := parseVerificationPayload(`{"status": "maybe"}`)
	if err == nil {
		t.Fatal("expected schema error for unknown status")
	}
}

func TestParseVerificationResult(t *testing.T) {
	res, err := parseVerificationResult(`{"confidence_score": 85, "verification_report": "Mostly fine."}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ConfidenceScore != 85 || res.VerificationReport != "Mostly fine." {
		t.Fatalf("wrong result: %+v", res)
	}

	if _, err := parseVerificationResult("not json at all"); err == nil {
		t.Fatal("expected error for non-json input")
	}
}
