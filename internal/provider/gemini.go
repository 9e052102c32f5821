package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mleroy/texlens/internal/recognition"
)

const defaultGeminiBaseURL = "https://generativelanguage.googleapis.com"

// GeminiClient talks to the Gemini generateContent REST API directly.
// The official SDK lags behind the proxy deployments people actually
// point this at, so the request is built by hand.
type GeminiClient struct {
	httpClient      *http.Client
	apiKey          string
	baseURL         string
	model           string
	maxOutputTokens int
}

// NewGeminiClient creates a Gemini client. baseURL may be an API root, a
// versioned root or a full models path; missing segments are filled in.
func NewGeminiClient(apiKey, model, baseURL string, maxOutputTokens int, timeout time.Duration) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: api key is required")
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}
	if baseURL == "" {
		baseURL = defaultGeminiBaseURL
	}
	if maxOutputTokens <= 0 {
		maxOutputTokens = 8192
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &GeminiClient{
		httpClient:      &http.Client{Timeout: timeout},
		apiKey:          apiKey,
		baseURL:         baseURL,
		model:           model,
		maxOutputTokens: maxOutputTokens,
	}, nil
}

type geminiRequest struct {
	Contents         []geminiContent `json:"contents"`
	GenerationConfig geminiGenConfig `json:"generationConfig"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

// geminiPart is either a text part or an inline image part.
type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiGenConfig struct {
	Temperature     float32 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
}

// canonicalModelsBase completes partial base URLs, so proxies configured
// without the version or models segment still work.
func (c *GeminiClient) canonicalModelsBase() string {
	b := strings.TrimRight(c.baseURL, "/")
	switch {
	case strings.Contains(b, "/models"):
		return b
	case strings.Contains(b, "/v1beta") || strings.Contains(b, "/v1"):
		return b + "/models"
	default:
		return b + "/v1beta/models"
	}
}

func (c *GeminiClient) generate(ctx context.Context, prompt, imageB64 string, temperature float32) (string, error) {
	parts := []geminiPart{{Text: prompt}}
	if imageB64 != "" {
		parts = append(parts, geminiPart{InlineData: &geminiInlineData{
			MimeType: "image/png",
			Data:     imageB64,
		}})
	}

	reqBody := geminiRequest{
		Contents: []geminiContent{{Parts: parts}},
		GenerationConfig: geminiGenConfig{
			Temperature:     temperature,
			MaxOutputTokens: c.maxOutputTokens,
		},
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("gemini: failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/%s:generateContent", c.canonicalModelsBase(), c.model)
	if c.apiKey != "" {
		url += "?key=" + c.apiKey
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("gemini: failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("gemini: failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("gemini: failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("gemini: request failed with status %d: %s", resp.StatusCode, truncate(string(body), 500))
	}

	var apiResp geminiResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return "", fmt.Errorf("gemini: failed to parse response: %w", err)
	}
	if len(apiResp.Candidates) == 0 || len(apiResp.Candidates[0].Content.Parts) == 0 {
		finishReason := "unknown"
		if len(apiResp.Candidates) > 0 && apiResp.Candidates[0].FinishReason != "" {
			finishReason = apiResp.Candidates[0].FinishReason
		}
		return "", fmt.Errorf("gemini: no text returned (finishReason: %s)", finishReason)
	}

	return apiResp.Candidates[0].Content.Parts[0].Text, nil
}

// ExtractLaTeX implements recognition.Client.
func (c *GeminiClient) ExtractLaTeX(ctx context.Context, prompt, imageB64 string) (string, error) {
	return extractLaTeX(ctx, c, prompt, imageB64)
}

// GenerateAnalysis implements recognition.Client.
func (c *GeminiClient) GenerateAnalysis(ctx context.Context, prompt, imageB64 string) (string, recognition.Analysis, error) {
	return generateAnalysis(ctx, c, prompt, imageB64)
}

// VerifyWithImage implements recognition.Client.
func (c *GeminiClient) VerifyWithImage(ctx context.Context, prompt, latex, imageB64 string) (recognition.VerificationResult, error) {
	return verifyWithImage(ctx, c, prompt, latex, imageB64)
}

// VerifyStructured implements recognition.Client.
func (c *GeminiClient) VerifyStructured(ctx context.Context, latex, imageB64, language string) (recognition.Verification, error) {
	return verifyStructured(ctx, c, latex, imageB64, language)
}

// GenerateContent implements recognition.Client.
func (c *GeminiClient) GenerateContent(ctx context.Context, prompt string) (string, error) {
	return generateContent(ctx, c, prompt)
}
