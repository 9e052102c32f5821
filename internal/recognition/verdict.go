package recognition

import (
	"fmt"
	"math"
	"strings"
)

// ComputeVerdict turns a structured verification into a confidence score
// and a short human-readable report. Coverage counts, when present, drive
// the score; otherwise the status and issue count give a rough estimate.
func ComputeVerdict(v Verification) VerificationResult {
	var score int
	if cov := v.Coverage; cov != nil {
		symbolsScore := 100.0
		if cov.SymbolsTotal > 0 {
			symbolsScore = math.Round(100.0 * float64(cov.SymbolsMatched) / float64(cov.SymbolsTotal))
		}
		termsScore := 100.0
		if cov.TermsTotal > 0 {
			termsScore = math.Round(100.0 * float64(cov.TermsMatched) / float64(cov.TermsTotal))
		}
		combined := math.Round(0.75*symbolsScore + 0.25*termsScore)
		score = int(math.Min(100, math.Max(0, combined)))
	} else {
		n := len(v.Issues)
		switch v.Status {
		case "ok":
			score = 100
		case "warning":
			score = 80 - min(2*n, 20)
		default:
			score = 60 - min(5*n, 50)
		}
		if score < 0 {
			score = 0
		}
	}

	return VerificationResult{
		ConfidenceScore:    score,
		VerificationReport: buildReport(v),
	}
}

func buildReport(v Verification) string {
	if v.Status == "ok" && len(v.Issues) == 0 {
		return "LaTeX matches the original formula."
	}

	// Keep the report short: at most ten issue lines.
	var lines []string
	for i, issue := range v.Issues {
		if i >= 10 {
			break
		}
		lines = append(lines, fmt.Sprintf("- [%s] %s", issue.Category, issue.Message))
	}
	if len(v.Issues) > 10 {
		lines = append(lines, fmt.Sprintf("(%d more issues omitted)", len(v.Issues)-10))
	}

	if len(lines) == 0 {
		// Non-ok status but no explicit issues.
		if v.Status == "warning" {
			return "Layout differences found, but the mathematical meaning is unchanged."
		}
		return "Content differs from the original image; check symbols, scripts and terms."
	}

	return "Differences found:\n" + strings.Join(lines, "\n")
}
