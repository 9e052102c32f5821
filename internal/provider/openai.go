package provider

import (
	"context"
	"fmt"

	openai "github.com/meguminnnnnnnnn/go-openai"

	"github.com/mleroy/texlens/internal/recognition"
)

// OpenAIClient implements recognition.Client through the OpenAI chat
// completions API. It also covers every OpenAI-compatible backend by
// overriding the base URL.
type OpenAIClient struct {
	client          *openai.Client
	model           string
	maxOutputTokens int
}

// NewOpenAIClient creates an OpenAI client. baseURL is optional and
// enables compatible providers.
func NewOpenAIClient(apiKey, model, baseURL string, maxOutputTokens int) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: api key is required")
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	if maxOutputTokens <= 0 {
		maxOutputTokens = 8192
	}

	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}

	return &OpenAIClient{
		client:          openai.NewClientWithConfig(config),
		model:           model,
		maxOutputTokens: maxOutputTokens,
	}, nil
}

func (c *OpenAIClient) generate(ctx context.Context, prompt, imageB64 string, temperature float32) (string, error) {
	var msg openai.ChatCompletionMessage
	if imageB64 == "" {
		msg = openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleUser,
			Content: prompt,
		}
	} else {
		msg = openai.ChatCompletionMessage{
			Role: openai.ChatMessageRoleUser,
			MultiContent: []openai.ChatMessagePart{
				{
					Type: openai.ChatMessagePartTypeText,
					Text: prompt,
				},
				{
					Type: openai.ChatMessagePartTypeImageURL,
					ImageURL: &openai.ChatMessageImageURL{
						URL: "data:image/png;base64," + imageB64,
					},
				},
			},
		}
	}

	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    []openai.ChatCompletionMessage{msg},
		MaxTokens:   c.maxOutputTokens,
		Temperature: &temperature,
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("openai: chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai: no choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}

// ExtractLaTeX implements recognition.Client.
func (c *OpenAIClient) ExtractLaTeX(ctx context.Context, prompt, imageB64 string) (string, error) {
	return extractLaTeX(ctx, c, prompt, imageB64)
}

// GenerateAnalysis implements recognition.Client.
func (c *OpenAIClient) GenerateAnalysis(ctx context.Context, prompt, imageB64 string) (string, recognition.Analysis, error) {
	return generateAnalysis(ctx, c, prompt, imageB64)
}

// VerifyWithImage implements recognition.Client.
func (c *OpenAIClient) VerifyWithImage(ctx context.Context, prompt, latex, imageB64 string) (recognition.VerificationResult, error) {
	return verifyWithImage(ctx, c, prompt, latex, imageB64)
}

// VerifyStructured implements recognition.Client.
func (c *OpenAIClient) VerifyStructured(ctx context.Context, latex, imageB64, language string) (recognition.Verification, error) {
	return verifyStructured(ctx, c, latex, imageB64, language)
}

// GenerateContent implements recognition.Client.
func (c *OpenAIClient) GenerateContent(ctx context.Context, prompt string) (string, error) {
	return generateContent(ctx, c, prompt)
}
