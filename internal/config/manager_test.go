package config

import (
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/mleroy/texlens/internal/prompts"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()

	if cfg.Provider != "gemini" {
		t.Fatalf("wrong default provider: %q", cfg.Provider)
	}
	if cfg.Model != "gemini-2.5-flash" {
		t.Fatalf("wrong default model: %q", cfg.Model)
	}
	if cfg.DefaultLatexFormat != "double_dollar" {
		t.Fatalf("wrong default format: %q", cfg.DefaultLatexFormat)
	}
	if cfg.PromptsVersion != prompts.Version {
		t.Fatalf("defaults carry stale prompts version %d", cfg.PromptsVersion)
	}
	if cfg.LatexPrompt == "" || cfg.AnalysisPrompt == "" || cfg.VerificationPrompt == "" {
		t.Fatal("defaults must populate all stage prompts")
	}
	if cfg.RequestTimeoutSec != 120 || cfg.MaxRetries != 2 || cfg.MaxOutputTokens != 8192 {
		t.Fatalf("wrong request defaults: %+v", cfg)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	m := NewManagerAt(t.TempDir())

	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Provider != "gemini" || cfg.PromptsVersion != prompts.Version {
		t.Fatalf("missing file did not yield defaults: %+v", cfg)
	}
	if m.Exists() {
		t.Fatal("Load must not create the file")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	m := NewManagerAt(t.TempDir())

	cfg := Default()
	cfg.Provider = "openai"
	cfg.Model = "gpt-4o"
	cfg.APIKey = "sk-test"
	cfg.Language = "zh-CN"
	cfg.AutoVerify = false

	if err := m.Save(cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !m.Exists() {
		t.Fatal("config file missing after save")
	}

	info, err := os.Stat(m.GetConfigPath())
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Fatalf("config file permissions too open: %v", info.Mode().Perm())
	}

	loaded, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Provider != "openai" || loaded.Model != "gpt-4o" || loaded.APIKey != "sk-test" {
		t.Fatalf("round trip lost fields: %+v", loaded)
	}
	if loaded.Language != "zh-CN" || loaded.AutoVerify {
		t.Fatalf("round trip lost fields: %+v", loaded)
	}
}

func TestMigratePromptsVersionLag(t *testing.T) {
	cfg := Default()
	cfg.LatexPrompt = "old latex prompt"
	cfg.AnalysisPrompt = "old analysis prompt"
	cfg.VerificationPrompt = "old verification prompt"
	cfg.PromptsVersion = prompts.Version - 1

	if !cfg.MigratePrompts() {
		t.Fatal("outdated version must trigger migration")
	}
	if cfg.LatexPrompt != prompts.Base(prompts.TypeLaTeX) {
		t.Fatal("latex prompt not refreshed")
	}
	if cfg.AnalysisPrompt != prompts.Base(prompts.TypeAnalysis) {
		t.Fatal("analysis prompt not refreshed")
	}
	if cfg.VerificationPrompt != prompts.Base(prompts.TypeVerification) {
		t.Fatal("verification prompt not refreshed")
	}
	if cfg.PromptsVersion != prompts.Version {
		t.Fatalf("version not bumped: %d", cfg.PromptsVersion)
	}
}

func TestMigratePromptsFillsEmpties(t *testing.T) {
	cfg := Default()
	cfg.AnalysisPrompt = ""
	cfg.LatexPrompt = "user tweaked latex prompt"

	if !cfg.MigratePrompts() {
		t.Fatal("empty prompt must trigger migration")
	}
	if cfg.AnalysisPrompt != prompts.Base(prompts.TypeAnalysis) {
		t.Fatal("empty analysis prompt not filled")
	}
	if cfg.LatexPrompt != "user tweaked latex prompt" {
		t.Fatal("migration overwrote a user prompt at current version")
	}
}

func TestMigratePromptsRespectsCustomPrompt(t *testing.T) {
	cfg := Default()
	cfg.LatexPrompt = ""
	cfg.CustomPrompt = "do it my way"

	changed := cfg.MigratePrompts()
	if cfg.LatexPrompt != "" {
		t.Fatal("cleared latex prompt must stay empty while a custom prompt exists")
	}
	if changed {
		t.Fatal("nothing should have changed")
	}
}

func TestLoadMigratesAndPersists(t *testing.T) {
	m := NewManagerAt(t.TempDir())

	stale := Default()
	stale.LatexPrompt = "stale"
	stale.PromptsVersion = prompts.Version - 1
	if err := m.Save(stale); err != nil {
		t.Fatalf("Save: %v", err)
	}

	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LatexPrompt != prompts.Base(prompts.TypeLaTeX) {
		t.Fatal("load did not migrate stale prompts")
	}

	// The migrated config must have been written back.
	data, err := os.ReadFile(m.GetConfigPath())
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	var onDisk Config
	if err := json.Unmarshal(data, &onDisk); err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if onDisk.PromptsVersion != prompts.Version {
		t.Fatalf("migration not persisted: version %d", onDisk.PromptsVersion)
	}
}

func TestEffectivePrompts(t *testing.T) {
	cfg := Default()

	latex := cfg.EffectiveLatexPrompt()
	if !strings.HasPrefix(latex, cfg.LatexPrompt) {
		t.Fatal("latex prompt must start with the base prompt")
	}
	if !strings.Contains(latex, "$$") {
		t.Fatal("double_dollar format rule missing from latex prompt")
	}

	analysis := cfg.EffectiveAnalysisPrompt()
	if !strings.Contains(analysis, "English") {
		t.Fatal("analysis prompt missing the language constraint")
	}

	cfg.Language = "zh-CN"
	if !strings.Contains(cfg.EffectiveAnalysisPrompt(), "Simplified Chinese") {
		t.Fatal("analysis prompt missing the Chinese constraint")
	}
	if cfg.EffectiveVerificationPrompt() == "" {
		t.Fatal("verification prompt empty")
	}
}

func TestEffectivePromptsCustomOverride(t *testing.T) {
	cfg := Default()
	cfg.LatexPrompt = ""
	cfg.CustomPrompt = "custom prompt text"

	if got := cfg.EffectiveLatexPrompt(); got != "custom prompt text" {
		t.Fatalf("custom latex prompt not used: %q", got)
	}
	if got := cfg.EffectiveAnalysisPrompt(); got != "custom prompt text" {
		t.Fatalf("custom analysis prompt not used: %q", got)
	}
}
