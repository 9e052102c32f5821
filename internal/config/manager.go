package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mleroy/texlens/internal/prompts"
)

// Config holds the user's persistent preferences.
type Config struct {
	Provider   string `json:"provider"`
	APIKey     string `json:"api_key,omitempty"`
	APIBaseURL string `json:"api_base_url,omitempty"`
	Model      string `json:"model"`

	// CustomPrompt replaces the stage prompts entirely when the built-in
	// LatexPrompt is cleared.
	CustomPrompt       string `json:"custom_prompt,omitempty"`
	LatexPrompt        string `json:"latex_prompt"`
	AnalysisPrompt     string `json:"analysis_prompt"`
	VerificationPrompt string `json:"verification_prompt"`

	// PromptsVersion tracks the built-in prompt revision the stored
	// prompts came from, so upgrades can refresh them.
	PromptsVersion int `json:"prompts_version"`

	Language           string `json:"language"`
	DefaultLatexFormat string `json:"default_latex_format"`

	AutoVerify        bool `json:"auto_verify"`
	WatchClipboard    bool `json:"watch_clipboard"`
	RequestTimeoutSec int  `json:"request_timeout_seconds"`
	MaxRetries        int  `json:"max_retries"`
	MaxOutputTokens   int  `json:"max_output_tokens"`

	// History cache refresh interval in seconds.
	HistoryPollSec int `json:"history_poll_seconds"`
}

// Default returns the configuration used when no file exists yet.
func Default() *Config {
	return &Config{
		Provider:           "gemini",
		APIBaseURL:         "https://generativelanguage.googleapis.com/v1beta/models",
		Model:              "gemini-2.5-flash",
		LatexPrompt:        prompts.Base(prompts.TypeLaTeX),
		AnalysisPrompt:     prompts.Base(prompts.TypeAnalysis),
		VerificationPrompt: prompts.Base(prompts.TypeVerification),
		PromptsVersion:     prompts.Version,
		Language:           "en",
		DefaultLatexFormat: "double_dollar",
		AutoVerify:         true,
		RequestTimeoutSec:  120,
		MaxRetries:         2,
		MaxOutputTokens:    8192,
		HistoryPollSec:     30,
	}
}

// MigratePrompts refreshes outdated or empty built-in prompts without
// touching custom content. Returns true if anything changed.
func (c *Config) MigratePrompts() bool {
	changed := false

	if c.PromptsVersion < prompts.Version {
		c.LatexPrompt = prompts.Base(prompts.TypeLaTeX)
		c.AnalysisPrompt = prompts.Base(prompts.TypeAnalysis)
		c.VerificationPrompt = prompts.Base(prompts.TypeVerification)
		c.PromptsVersion = prompts.Version
		return true
	}

	if strings.TrimSpace(c.LatexPrompt) == "" && strings.TrimSpace(c.CustomPrompt) == "" {
		c.LatexPrompt = prompts.Base(prompts.TypeLaTeX)
		changed = true
	}
	if strings.TrimSpace(c.AnalysisPrompt) == "" {
		c.AnalysisPrompt = prompts.Base(prompts.TypeAnalysis)
		changed = true
	}
	if strings.TrimSpace(c.VerificationPrompt) == "" {
		c.VerificationPrompt = prompts.Base(prompts.TypeVerification)
		changed = true
	}

	return changed
}

// EffectiveLatexPrompt resolves the LaTeX prompt: the built-in prompt
// with the format rule appended, or the raw custom prompt if the
// built-in one was cleared in favor of it.
func (c *Config) EffectiveLatexPrompt() string {
	if strings.TrimSpace(c.LatexPrompt) != "" {
		return c.LatexPrompt + prompts.FormatRule(c.DefaultLatexFormat)
	}
	return c.CustomPrompt
}

// EffectiveAnalysisPrompt resolves the analysis prompt with its language
// constraint.
func (c *Config) EffectiveAnalysisPrompt() string {
	if strings.TrimSpace(c.CustomPrompt) != "" && strings.TrimSpace(c.LatexPrompt) == "" {
		return c.CustomPrompt
	}
	return prompts.Full(prompts.TypeAnalysis, c.Language)
}

// EffectiveVerificationPrompt resolves the fallback verification prompt
// with its language constraint.
func (c *Config) EffectiveVerificationPrompt() string {
	return prompts.Full(prompts.TypeVerification, c.Language)
}

// Manager handles loading and saving the configuration.
type Manager struct {
	configDir string
}

// NewManager creates a configuration manager rooted in the user config
// directory.
func NewManager() (*Manager, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get user config dir: %w", err)
	}
	return &Manager{configDir: filepath.Join(configDir, "texlens")}, nil
}

// NewManagerAt creates a manager rooted at an explicit directory.
func NewManagerAt(dir string) *Manager {
	return &Manager{configDir: dir}
}

// GetConfigPath returns the absolute path to the config.json file.
func (m *Manager) GetConfigPath() string {
	return filepath.Join(m.configDir, "config.json")
}

// Load reads the configuration from disk. A missing file yields the
// defaults. Outdated prompts are migrated and written back.
func (m *Manager) Load() (*Config, error) {
	path := m.GetConfigPath()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config json: %w", err)
	}

	if cfg.MigratePrompts() {
		if err := m.Save(cfg); err != nil {
			return nil, fmt.Errorf("failed to persist migrated prompts: %w", err)
		}
	}

	return cfg, nil
}

// Save writes the configuration to disk with restricted permissions.
func (m *Manager) Save(cfg *Config) error {
	if err := os.MkdirAll(m.configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(m.GetConfigPath(), data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Exists checks if the configuration file has been created.
func (m *Manager) Exists() bool {
	_, err := os.Stat(m.GetConfigPath())
	return !os.IsNotExist(err)
}
