// Package prompts holds the built-in prompt text for each pipeline stage
// and the helpers that assemble the final prompt from language and
// formatting settings.
package prompts

// Type names a pipeline prompt.
type Type string

const (
	TypeLaTeX        Type = "latex"
	TypeAnalysis     Type = "analysis"
	TypeVerification Type = "verification"
)

// Version is bumped whenever the built-in prompts change in a way that
// stale configs should pick up.
const Version = 3

const baseLatexPrompt = `You are an expert in LaTeX OCR. Task: Given an image of a mathematical formula, EXTRACT THE LaTeX EXACTLY as shown in the image.

Never correct math, never infer intent, never simplify/normalize. Strictly preserve spacing/notation, symbol forms, order of terms, matrix layout, and the distinction between scalars vs vectors/tensors (e.g., boldface, overarrow, blackboard vs italic, uppercase/lowercase, indices). Do not convert a scalar to a vector/tensor or vice versa.

Brackets: Pay extreme attention to bracket KINDS and COUNTS. Use the exact types that appear and do not add/remove/misuse them: parentheses (), square brackets [], curly braces {}, and angle brackets ⟨⟩ when present. Ensure LaTeX grouping braces {} are balanced and minimal (no extra {}).

Command integrity: NEVER drop the leading backslash of LaTeX commands/environments. Always output commands with their backslashes, e.g., \begin{bmatrix} ... \end{bmatrix}, \frac{...}{...}, \partial, \alpha. Do not output truncated tokens like "egin", "frac", etc.

Noise handling: Ignore any non-formula artifacts captured in the screenshot (e.g., Word paragraph marks ↵, tab arrows ↹, UI chrome, page/section labels, figure captions, or reference tags like [1]). Transcribe ONLY the actual formula content. Do NOT add references, citations, or links.

Output only a strict JSON object: {"latex": "..."}. No Markdown, no comments, no extra text. Ensure JSON validity: escape every backslash in LaTeX for JSON (e.g., \\frac).`

const baseAnalysisPrompt = `You are an expert in mathematics, physics, and technical writing. Based on the provided formula image (DO NOT change the formula), produce a structured analysis JSON with the following fields only: {"title": "...", "analysis": {"summary": "...", "variables": [{"symbol": "...", "description": "...", "unit": "?"}], "terms": [{"name": "...", "description": "..."}], "suggestions": [{"type": "error|warning|info", "message": "..."}]}}.

Instructions:
1) Variables: enumerate every symbol that appears (parameters, fields, operators like ∇ optional). For each, give a concise meaning and typical SI unit if applicable. If unit is unknown, use "?".
2) Terms: identify each distinct term/expression/sub-expression in the equation(s) (e.g., derivatives, integrals, summations, products, norms, matrix/vector operations, source terms). Provide a one-sentence physical/mathematical meaning for each.
3) Suggestions (three levels):
   - error: Hard mistakes such as dimensional inconsistency, impossible identities, wrong operators, missing brackets causing invalid grammar, or evident OCR mistakes leading to invalid math.
   - warning: Unusual or risky presentation that can hinder readability or typesetting (e.g., extremely long expressions likely to overflow, unconventional notation like uu instead of u^2 though intentionally preserved, ambiguous symbols).
   - info: General improvement advice (naming clarity, add definitions, add context equations or equivalent forms).
4) Scalar vs tensor: Pay special attention to the distinction between scalars and vectors/tensors (e.g., bold/arrow notation, indices). Preserve this distinction in variable descriptions and term explanations; do not convert between them.
5) References: Do NOT add references/citations/links anywhere (e.g., [1], (Smith, 2020)).
6) Output must be a strict JSON object with the exact schema above. No Markdown, no code fences, no extra commentary.`

const baseVerificationPrompt = `You are a meticulous verification expert. Your task is to carefully compare the provided LaTeX code against the original mathematical formula image and provide both a confidence score and a detailed verification report.

Task: Analyze how accurately the LaTeX code represents the original image by examining:
1) Symbol accuracy: Are all symbols correctly identified and transcribed?
2) Structure fidelity: Do exponents, subscripts, fractions, and groupings match exactly?
3) Operator precision: Are mathematical operators (+, -, ×, ÷, =, etc.) correctly placed?
4) Layout consistency: Does the overall mathematical structure and spacing match?
5) Completeness: Are there any missing or extra elements?
6) Scalar vs tensor distinction: Treat mismatches between scalars and vectors/tensors (e.g., bold/arrow notation, indexing/ordering conveying tensor rank) as meaning-changing errors.

Output a strict JSON object with this exact schema:
{
  "confidence_score": 0-100,
  "verification_report": "A concise but thorough report detailing any discrepancies found between the LaTeX and the original image. If perfect match, state 'LaTeX accurately represents the original formula.' If issues found, describe specific problems like 'Missing subscript in variable x', 'Incorrect operator placement', or 'Vector/tensor vs scalar mismatch', etc."
}

Be precise and objective in your assessment. No Markdown formatting, no code fences, no extra commentary.`

// Base returns the built-in prompt without language constraints.
func Base(t Type) string {
	switch t {
	case TypeLaTeX:
		return baseLatexPrompt
	case TypeAnalysis:
		return baseAnalysisPrompt
	case TypeVerification:
		return baseVerificationPrompt
	}
	return ""
}

// languageConstraint returns the per-stage note telling the model which
// language to answer in. JSON keys always stay English.
func languageConstraint(t Type, language string) string {
	chinese := language == "zh-CN"
	switch t {
	case TypeLaTeX:
		if chinese {
			return "Important: Use Simplified Chinese for any error messages or explanations if needed. Keep JSON keys in English."
		}
		return "Important: Use English for any error messages or explanations if needed. Keep JSON keys in English."
	case TypeAnalysis:
		if chinese {
			return "Important: Use Simplified Chinese for the values of 'title', 'analysis.summary', 'analysis.variables[*].description', 'analysis.terms[*].description', and 'analysis.suggestions[*].message'. Keep JSON keys in English."
		}
		return "Important: Use English for the values of 'title', 'analysis.summary', 'analysis.variables[*].description', 'analysis.terms[*].description', and 'analysis.suggestions[*].message'. Keep JSON keys in English."
	case TypeVerification:
		if chinese {
			return "Important: Use Simplified Chinese for the 'verification_report' content. Keep JSON keys in English."
		}
		return "Important: Use English for the 'verification_report' content. Keep JSON keys in English."
	}
	return ""
}

// Full returns the built-in prompt with its language constraint appended.
func Full(t Type, language string) string {
	return Base(t) + "\n\n" + languageConstraint(t, language)
}

// FormatRule returns the formatting instruction appended to the LaTeX
// prompt. The rule only instructs the model; the wrapping itself lives in
// the returned "latex" JSON value.
func FormatRule(defaultFormat string) string {
	var rule string
	switch defaultFormat {
	case "raw":
		rule = "\n\nFormatting rule: Return the bare LaTeX body ONLY inside the JSON value without any math delimiters (no $...$, no $$...$$, no \\[...\\], no \\begin{equation}...\\end{equation}). Place the exact LaTeX string in the 'latex' field."
	case "single_dollar":
		rule = "\n\nFormatting rule: Wrap the entire LaTeX with $...$ (inline math). The JSON must be {\"latex\": \"$<content>$\"}."
	case "double_dollar":
		rule = "\n\nFormatting rule: Wrap the entire LaTeX with $$...$$ (display math). The JSON must be {\"latex\": \"$$<content>$$\"}."
	case "equation":
		rule = "\n\nFormatting rule: Wrap the entire LaTeX with \\begin{equation} ... \\end{equation}. The JSON must be {\"latex\": \"\\begin{equation}<content>\\end{equation}\"}."
	case "bracket":
		rule = "\n\nFormatting rule: Wrap the entire LaTeX with \\[ ... \\] (display math). The JSON must be {\"latex\": \"\\[<content>\\]\"}."
	default:
		rule = "\n\nFormatting rule: Return the bare LaTeX body ONLY without any math delimiters and put it into the 'latex' field."
	}
	return rule + " IMPORTANT: The response MUST be a valid JSON object. Escape every backslash in LaTeX for JSON (e.g., \\\\frac). No Markdown fences."
}
