package provider

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/mleroy/texlens/internal/recognition"
)

// Models wrap JSON payloads in markdown fences more often than not.
// Everything that parses model output goes through cleanResponse first.
func cleanResponse(response string) string {
	cleaned := strings.ReplaceAll(response, "```json", "")
	cleaned = strings.ReplaceAll(cleaned, "```", "")
	return strings.TrimSpace(cleaned)
}

const analysisSchema = `{
	"type": "object",
	"required": ["title", "analysis"],
	"properties": {
		"title": {"type": "string"},
		"analysis": {
			"type": "object",
			"required": ["summary"],
			"properties": {
				"summary": {"type": "string"},
				"variables": {"type": "array", "items": {
					"type": "object",
					"required": ["symbol", "description"],
					"properties": {
						"symbol": {"type": "string"},
						"description": {"type": "string"},
						"unit": {"type": "string"}
					}
				}},
				"terms": {"type": "array", "items": {
					"type": "object",
					"required": ["name", "description"],
					"properties": {
						"name": {"type": "string"},
						"description": {"type": "string"}
					}
				}},
				"suggestions": {"type": "array", "items": {
					"type": "object",
					"required": ["type", "message"],
					"properties": {
						"type": {"type": "string"},
						"message": {"type": "string"}
					}
				}}
			}
		}
	}
}`

const verificationSchema = `{
	"type": "object",
	"required": ["status"],
	"properties": {
		"status": {"type": "string", "enum": ["ok", "warning", "error"]},
		"issues": {"type": "array", "items": {
			"type": "object",
			"required": ["category", "message"],
			"properties": {
				"category": {"type": "string"},
				"message": {"type": "string"}
			}
		}},
		"coverage": {
			"type": "object",
			"required": ["symbols_matched", "symbols_total", "terms_matched", "terms_total"],
			"properties": {
				"symbols_matched": {"type": "integer", "minimum": 0},
				"symbols_total": {"type": "integer", "minimum": 0},
				"terms_matched": {"type": "integer", "minimum": 0},
				"terms_total": {"type": "integer", "minimum": 0}
			}
		}
	}
}`

var (
	analysisSchemaLoader     = gojsonschema.NewStringLoader(analysisSchema)
	verificationSchemaLoader = gojsonschema.NewStringLoader(verificationSchema)
)

// validatePayload runs a cleaned payload through its JSON schema and
// returns a single error naming every violation.
func validatePayload(schemaLoader gojsonschema.JSONLoader, payload string) error {
	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewStringLoader(payload))
	if err != nil {
		return fmt.Errorf("invalid json: %w", err)
	}
	if !result.Valid() {
		var msgs []string
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("schema validation failed: %s", strings.Join(msgs, "; "))
	}
	return nil
}

// parseLatexPayload decodes a {"latex": "..."} response. When strict
// parsing fails it falls back to scanning for the latex field by hand,
// which recovers common model slips like a stray bracket after the
// closing brace.
func parseLatexPayload(raw string) (string, error) {
	clean := cleanResponse(raw)

	var payload struct {
		Latex string `json:"latex"`
	}
	if err := json.Unmarshal([]byte(clean), &payload); err == nil && payload.Latex != "" {
		return payload.Latex, nil
	}

	if latex, ok := relaxedExtractLatex(clean); ok {
		return latex, nil
	}
	return "", fmt.Errorf("invalid json: failed to parse latex payload: %s", truncate(clean, 200))
}

// relaxedExtractLatex pulls the JSON string value of a "latex" key out of
// loosely malformed text, honoring escape sequences.
func relaxedExtractLatex(clean string) (string, bool) {
	key := `"latex"`
	start := strings.Index(clean, key)
	if start < 0 {
		return "", false
	}
	rest := clean[start+len(key):]

	colon := strings.IndexByte(rest, ':')
	if colon < 0 {
		return "", false
	}
	rest = rest[colon+1:]

	qstart := strings.IndexByte(rest, '"')
	if qstart < 0 {
		return "", false
	}
	rest = rest[qstart:]

	escaped := false
	for i := 1; i < len(rest); i++ {
		c := rest[i]
		if c == '"' && !escaped {
			var decoded string
			if err := json.Unmarshal([]byte(rest[:i+1]), &decoded); err != nil {
				return "", false
			}
			return decoded, true
		}
		escaped = c == '\\' && !escaped
	}
	return "", false
}

// parseAnalysisPayload decodes a {"title": ..., "analysis": {...}}
// response. A latex-only payload means the model answered the wrong
// prompt; that is reported as an error so the stage can be retried
// instead of filling in a placeholder.
func parseAnalysisPayload(raw string) (string, recognition.Analysis, error) {
	clean := cleanResponse(raw)

	if strings.Contains(clean, `"latex"`) && !strings.Contains(clean, `"analysis"`) {
		return "", recognition.Analysis{}, fmt.Errorf("invalid json: model returned a latex payload to the analysis prompt")
	}

	if err := validatePayload(analysisSchemaLoader, clean); err != nil {
		return "", recognition.Analysis{}, fmt.Errorf("analysis payload: %w", err)
	}

	var payload struct {
		Title    string               `json:"title"`
		Analysis recognition.Analysis `json:"analysis"`
	}
	if err := json.Unmarshal([]byte(clean), &payload); err != nil {
		return "", recognition.Analysis{}, fmt.Errorf("invalid json: failed to parse analysis payload: %w", err)
	}
	return payload.Title, payload.Analysis, nil
}

// parseVerificationPayload decodes the structured verification shape.
func parseVerificationPayload(raw string) (recognition.Verification, error) {
	clean := cleanResponse(raw)

	if err := validatePayload(verificationSchemaLoader, clean); err != nil {
		return recognition.Verification{}, fmt.Errorf("verification payload: %w", err)
	}

	var v recognition.Verification
	if err := json.Unmarshal([]byte(clean), &v); err != nil {
		return recognition.Verification{}, fmt.Errorf("invalid json: failed to parse verification payload: %w", err)
	}
	return v, nil
}

// parseVerificationResult decodes the free-form verification fallback
// shape {"confidence_score": n, "verification_report": "..."}.
func parseVerificationResult(raw string) (recognition.VerificationResult, error) {
	clean := cleanResponse(raw)

	var result recognition.VerificationResult
	if err := json.Unmarshal([]byte(clean), &result); err != nil {
		return recognition.VerificationResult{}, fmt.Errorf("invalid json: failed to parse verification result: %s", truncate(clean, 200))
	}
	return result, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
