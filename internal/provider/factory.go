package provider

import (
	"fmt"
	"os"
	"time"

	"github.com/mleroy/texlens/internal/recognition"
)

// Settings is what the factory needs to know about the configured
// backend. The caller maps its config onto this.
type Settings struct {
	Provider        string
	APIKey          string
	BaseURL         string
	Model           string
	MaxOutputTokens int
	Timeout         time.Duration
}

// NewClient creates a recognition.Client for the configured provider.
// Environment variables override settings, so a key never has to be
// written to the config file.
func NewClient(s Settings) (recognition.Client, string, error) {
	provider := s.Provider
	if provider == "" {
		provider = "gemini"
	}

	switch provider {
	case "gemini":
		apiKey := envOr("GEMINI_API_KEY", s.APIKey)
		if apiKey == "" {
			return nil, "", fmt.Errorf("gemini api key not set (config or GEMINI_API_KEY)")
		}
		model := envOr("GEMINI_MODEL", s.Model)
		if model == "" {
			model = "gemini-2.0-flash"
		}
		baseURL := envOr("GEMINI_BASE_URL", s.BaseURL)

		client, err := NewGeminiClient(apiKey, model, baseURL, s.MaxOutputTokens, s.Timeout)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create Gemini client: %w", err)
		}
		return client, model, nil

	case "openai":
		apiKey := envOr("OPENAI_API_KEY", s.APIKey)
		if apiKey == "" {
			return nil, "", fmt.Errorf("openai api key not set (config or OPENAI_API_KEY)")
		}
		model := envOr("OPENAI_MODEL", s.Model)
		if model == "" {
			model = "gpt-4o-mini"
		}
		baseURL := envOr("OPENAI_BASE_URL", s.BaseURL)

		client, err := NewOpenAIClient(apiKey, model, baseURL, s.MaxOutputTokens)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create OpenAI client: %w", err)
		}
		return client, model, nil

	case "anthropic":
		apiKey := envOr("ANTHROPIC_API_KEY", s.APIKey)
		if apiKey == "" {
			return nil, "", fmt.Errorf("anthropic api key not set (config or ANTHROPIC_API_KEY)")
		}
		model := envOr("ANTHROPIC_MODEL", s.Model)

		client, err := NewAnthropicClient(apiKey, model, s.MaxOutputTokens)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create Anthropic client: %w", err)
		}
		return client, client.model, nil

	default:
		return nil, "", fmt.Errorf("unknown provider: %s (supported: gemini, openai, anthropic)", provider)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
