package provider

import (
	"context"
	"encoding/base64"
	"fmt"

	anthropic "github.com/liushuangls/go-anthropic/v2"

	"github.com/mleroy/texlens/internal/recognition"
)

// AnthropicClient implements recognition.Client through the Anthropic
// Messages API.
type AnthropicClient struct {
	client          *anthropic.Client
	model           string
	maxOutputTokens int
}

// NewAnthropicClient creates an Anthropic client.
func NewAnthropicClient(apiKey, model string, maxOutputTokens int) (*AnthropicClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic: api key is required")
	}
	if model == "" {
		model = "claude-sonnet-4-20250514"
	}
	if maxOutputTokens <= 0 {
		maxOutputTokens = 8192
	}
	return &AnthropicClient{
		client:          anthropic.NewClient(apiKey),
		model:           model,
		maxOutputTokens: maxOutputTokens,
	}, nil
}

func (c *AnthropicClient) generate(ctx context.Context, prompt, imageB64 string, temperature float32) (string, error) {
	content := []anthropic.MessageContent{
		anthropic.NewTextMessageContent(prompt),
	}
	if imageB64 != "" {
		// The SDK re-encodes raw bytes, so the base64 payload is decoded
		// first instead of being passed through.
		imageBytes, err := base64.StdEncoding.DecodeString(imageB64)
		if err != nil {
			return "", fmt.Errorf("anthropic: invalid image encoding: %w", err)
		}
		content = append(content, anthropic.NewImageMessageContent(
			anthropic.NewMessageContentSource(
				anthropic.MessagesContentSourceTypeBase64,
				"image/png",
				imageBytes,
			),
		))
	}

	req := anthropic.MessagesRequest{
		Model: anthropic.Model(c.model),
		Messages: []anthropic.Message{
			{
				Role:    anthropic.RoleUser,
				Content: content,
			},
		},
		MaxTokens:   c.maxOutputTokens,
		Temperature: &temperature,
	}

	resp, err := c.client.CreateMessages(ctx, req)
	if err != nil {
		return "", fmt.Errorf("anthropic: messages request failed: %w", err)
	}

	text := resp.GetFirstContentText()
	if text == "" {
		return "", fmt.Errorf("anthropic: no text returned")
	}
	return text, nil
}

// ExtractLaTeX implements recognition.Client.
func (c *AnthropicClient) ExtractLaTeX(ctx context.Context, prompt, imageB64 string) (string, error) {
	return extractLaTeX(ctx, c, prompt, imageB64)
}

// GenerateAnalysis implements recognition.Client.
func (c *AnthropicClient) GenerateAnalysis(ctx context.Context, prompt, imageB64 string) (string, recognition.Analysis, error) {
	return generateAnalysis(ctx, c, prompt, imageB64)
}

// VerifyWithImage implements recognition.Client.
func (c *AnthropicClient) VerifyWithImage(ctx context.Context, prompt, latex, imageB64 string) (recognition.VerificationResult, error) {
	return verifyWithImage(ctx, c, prompt, latex, imageB64)
}

// VerifyStructured implements recognition.Client.
func (c *AnthropicClient) VerifyStructured(ctx context.Context, latex, imageB64, language string) (recognition.Verification, error) {
	return verifyStructured(ctx, c, latex, imageB64, language)
}

// GenerateContent implements recognition.Client.
func (c *AnthropicClient) GenerateContent(ctx context.Context, prompt string) (string, error) {
	return generateContent(ctx, c, prompt)
}
