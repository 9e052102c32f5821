// Package provider implements recognition.Client against the supported
// LLM backends. Gemini talks to the generateContent REST API directly;
// OpenAI-compatible backends and Anthropic go through their SDKs. All
// backends share the same payload parsing and prompt assembly, so a
// client only has to supply a generate call.
package provider

import (
	"context"
	"fmt"

	"github.com/mleroy/texlens/internal/recognition"
)

// Stage temperatures. Extraction and verification want deterministic
// output, analysis gets some room, free-form generation the default.
const (
	tempLatex    float32 = 0.2
	tempAnalysis float32 = 0.5
	tempVerify   float32 = 0.2
	tempGeneric  float32 = 0.7
)

// generator is the one primitive a backend must provide: send a prompt,
// optionally with a base64 PNG attached, and return the raw text reply.
type generator interface {
	generate(ctx context.Context, prompt, imageB64 string, temperature float32) (string, error)
}

// buildVerificationPrompt assembles the structured verification prompt.
// Keys stay English; only issue messages follow the configured language.
func buildVerificationPrompt(latex, language string) string {
	langNote := "Output language: English for 'issues[*].message'. Keys remain English."
	if language == "zh-CN" {
		langNote = "Output language: Simplified Chinese for 'issues[*].message'. Keys remain English."
	}
	return "You are a strict verifier. Compare the provided LaTeX with the image. Do NOT fix the LaTeX; only point out mismatches. Return a strict JSON: {\n" +
		"  \"status\": \"error|warning|ok\",\n" +
		"  \"issues\": [{\"category\": \"missing_term|extra_term|symbol_mismatch|notation_mismatch|layout_mismatch|other\", \"message\": \"...\"}],\n" +
		"  \"coverage\": {\"symbols_matched\": n, \"symbols_total\": n, \"terms_matched\": n, \"terms_total\": n}\n" +
		"}.\n" +
		"Rules:\n" +
		"- status=error if ANY mismatch that changes math meaning (missing/extra term, wrong symbol, wrong power/subscript, different operator).\n" +
		"- status=warning for layout/formatting-only differences (line breaks, spacing) that do not change math.\n" +
		"- status=ok only if visually and semantically equivalent.\n" +
		"- Be concise but precise.\n" +
		langNote + "\n" +
		"LaTeX to verify:\n" + latex
}

func extractLaTeX(ctx context.Context, g generator, prompt, imageB64 string) (string, error) {
	raw, err := g.generate(ctx, prompt, imageB64, tempLatex)
	if err != nil {
		return "", err
	}
	return parseLatexPayload(raw)
}

func generateAnalysis(ctx context.Context, g generator, prompt, imageB64 string) (string, recognition.Analysis, error) {
	raw, err := g.generate(ctx, prompt, imageB64, tempAnalysis)
	if err != nil {
		return "", recognition.Analysis{}, err
	}
	return parseAnalysisPayload(raw)
}

func verifyWithImage(ctx context.Context, g generator, prompt, latex, imageB64 string) (recognition.VerificationResult, error) {
	full := fmt.Sprintf("%s\n\nLaTeX to evaluate: %s", prompt, latex)
	raw, err := g.generate(ctx, full, imageB64, tempVerify)
	if err != nil {
		return recognition.VerificationResult{}, err
	}
	return parseVerificationResult(raw)
}

func verifyStructured(ctx context.Context, g generator, latex, imageB64, language string) (recognition.Verification, error) {
	raw, err := g.generate(ctx, buildVerificationPrompt(latex, language), imageB64, tempVerify)
	if err != nil {
		return recognition.Verification{}, err
	}
	return parseVerificationPayload(raw)
}

func generateContent(ctx context.Context, g generator, prompt string) (string, error) {
	raw, err := g.generate(ctx, prompt, "", tempGeneric)
	if err != nil {
		return "", err
	}
	return cleanResponse(raw), nil
}
