package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/mleroy/texlens/internal/config"
	"github.com/mleroy/texlens/internal/history"
	"github.com/mleroy/texlens/internal/provider"
	"github.com/mleroy/texlens/internal/recognition"
	"github.com/mleroy/texlens/internal/trace"
)

func main() {
	// Load .env if present so keys don't need to live in the config file
	_ = godotenv.Load()

	ctx := context.Background()

	args := os.Args[1:]
	if len(args) == 0 {
		printUsage()
		os.Exit(2)
	}

	var err error
	switch args[0] {
	case "recognize":
		err = runRecognize(ctx, args[1:])
	case "history":
		err = runHistory(ctx, args[1:])
	case "ping":
		err = runPing(ctx, args[1:])
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", args[0])
		printUsage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("%s failed: %v", args[0], err)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `texlens - formula image to LaTeX

Usage:
  texlens recognize -file <image.png>   Run the recognition pipeline
  texlens history <list|search|favorite|rename|delete|follow> ...
  texlens ping                          Test the provider connection`)
}

// runtimeEnv holds everything a command needs wired together.
type runtimeEnv struct {
	cfg     *config.Config
	manager *config.Manager
	client  recognition.Client
	model   string
	store   *history.Store
	search  *history.SearchIndex
	cache   *history.Cache
}

func (env *runtimeEnv) Close() {
	if env.cache != nil {
		env.cache.Destroy()
	}
	if env.search != nil {
		env.search.Close()
	}
	if env.store != nil {
		env.store.Close()
	}
}

func prepareRuntimeEnv(ctx context.Context, configDir string, needClient bool) (*runtimeEnv, error) {
	var manager *config.Manager
	var err error
	if configDir != "" {
		manager = config.NewManagerAt(configDir)
	} else {
		manager, err = config.NewManager()
		if err != nil {
			return nil, err
		}
	}

	cfg, err := manager.Load()
	if err != nil {
		return nil, err
	}

	env := &runtimeEnv{cfg: cfg, manager: manager}

	if needClient {
		env.client, env.model, err = provider.NewClient(provider.Settings{
			Provider:        cfg.Provider,
			APIKey:          cfg.APIKey,
			BaseURL:         cfg.APIBaseURL,
			Model:           cfg.Model,
			MaxOutputTokens: cfg.MaxOutputTokens,
			Timeout:         time.Duration(cfg.RequestTimeoutSec) * time.Second,
		})
		if err != nil {
			return nil, err
		}
	}

	dataDir := filepath.Dir(manager.GetConfigPath())
	env.store, err = history.NewStore(ctx, filepath.Join(dataDir, "history.db"))
	if err != nil {
		return nil, err
	}

	env.search, err = history.NewSearchIndex(filepath.Join(dataDir, "history.db"))
	if err != nil {
		env.store.Close()
		return nil, err
	}

	env.cache = history.NewCache(env.store, time.Duration(cfg.HistoryPollSec)*time.Second)
	return env, nil
}

// resultSink feeds finished sessions to storage, the search index and
// the cache in one go.
type resultSink struct {
	store  *history.Store
	search *history.SearchIndex
	cache  *history.Cache
}

func (s *resultSink) SaveResult(ctx context.Context, session recognition.Session) error {
	if err := s.store.SaveResult(ctx, session); err != nil {
		return err
	}
	rec := history.FromSession(session)
	if err := s.search.Index(rec); err != nil {
		log.Printf("⚠️ failed to index session %s: %v", session.ID, err)
	}
	s.cache.Add(rec)
	return nil
}

func runRecognize(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("recognize", flag.ExitOnError)
	fileFlag := fs.String("file", "", "Path to the formula image (PNG)")
	configDirFlag := fs.String("config-dir", "", "Override the config directory")
	interactiveFlag := fs.Bool("interactive", true, "Offer per-stage retries after failures")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *fileFlag == "" {
		return fmt.Errorf("-file is required")
	}

	env, err := prepareRuntimeEnv(ctx, *configDirFlag, true)
	if err != nil {
		return err
	}
	defer env.Close()

	tracePath, err := trace.DefaultPath()
	if err != nil {
		return err
	}

	active := recognition.NewActiveStore()
	tracker := recognition.NewTracker(trace.NewStore(tracePath), active)

	bus := recognition.NewBus()
	defer bus.Close()

	// Print progress as events arrive, the same stream any other
	// listener would see.
	busCtx, stopPrinter := context.WithCancel(ctx)
	defer stopPrinter()
	events, err := bus.SubscribeProgress(busCtx)
	if err != nil {
		return err
	}
	printerDone := make(chan struct{})
	go func() {
		defer close(printerDone)
		for ev := range events {
			printProgress(ev)
		}
	}()

	orch, err := recognition.NewOrchestrator(recognition.Options{
		Client:    env.client,
		Tracker:   tracker,
		Listeners: recognition.Listeners{bus},
		Sink:      &resultSink{store: env.store, search: env.search, cache: env.cache},
		Policy: recognition.RetryPolicy{
			MaxRetries:   env.cfg.MaxRetries,
			InitialDelay: 1 * time.Second,
			MaxDelay:     15 * time.Second,
			Multiplier:   2.0,
			Jitter:       true,
		},
		Prompts: recognition.PromptSet{
			Latex:        env.cfg.EffectiveLatexPrompt(),
			Analysis:     env.cfg.EffectiveAnalysisPrompt(),
			Verification: env.cfg.EffectiveVerificationPrompt(),
			Language:     env.cfg.Language,
		},
		ModelName: env.model,
	})
	if err != nil {
		return err
	}

	log.Printf("🔍 recognizing %s with %s", *fileFlag, env.model)
	session, err := orch.Recognize(ctx, recognition.FileSource{Path: *fileFlag})
	if err != nil {
		return err
	}

	if *interactiveFlag {
		session = offerRetries(ctx, orch, tracker, active, session)
	}

	// Drain the printer so late progress lines land before the summary.
	stopPrinter()
	<-printerDone

	printSession(session, tracker.State())
	return nil
}

func printProgress(ev recognition.ProgressEvent) {
	switch {
	case ev.Err != "":
		log.Printf("❌ %s: %s", ev.Stage, ev.Err)
	case ev.Stage == recognition.StageLatex:
		log.Printf("✅ latex extracted (%d chars)", len(ev.Latex))
	case ev.Stage == recognition.StageAnalysis:
		log.Printf("✅ analysis ready: %s", ev.Title)
	case ev.Stage == recognition.StageConfidence:
		if ev.ConfidenceScore != nil {
			log.Printf("✅ verification done, confidence %d", *ev.ConfidenceScore)
		}
	}
}

// offerRetries asks about each failed stage and re-runs it on demand.
func offerRetries(ctx context.Context, orch *recognition.Orchestrator, tracker *recognition.Tracker, active *recognition.ActiveStore, session recognition.Session) recognition.Session {
	reader := bufio.NewScanner(os.Stdin)

	ask := func(question string) bool {
		fmt.Fprintf(os.Stderr, "%s [y/N] ", question)
		if !reader.Scan() {
			return false
		}
		answer := strings.ToLower(strings.TrimSpace(reader.Text()))
		return answer == "y" || answer == "yes"
	}

	for {
		state := tracker.State()
		switch {
		case state.Analysis == recognition.StatusError && ask("analysis failed, retry?"):
			if err := orch.RetryAnalysis(ctx); err != nil {
				log.Printf("❌ analysis retry failed: %v", err)
				return session
			}
		case state.Verify == recognition.StatusError && ask("verification failed, retry?"):
			if err := orch.RetryVerify(ctx); err != nil {
				log.Printf("❌ verification retry failed: %v", err)
				return session
			}
		default:
			return session
		}

		if s, ok := active.Session(); ok {
			session = s
		}
	}
}

func printSession(s recognition.Session, state recognition.PhaseState) {
	fmt.Println()
	fmt.Printf("LaTeX:      %s\n", s.Latex)
	if s.Title != "" {
		fmt.Printf("Title:      %s\n", s.Title)
	}
	if s.Analysis.Summary != "" {
		fmt.Printf("Summary:    %s\n", s.Analysis.Summary)
	}
	for _, v := range s.Analysis.Variables {
		fmt.Printf("  %s  %s", v.Symbol, v.Description)
		if v.Unit != "" && v.Unit != "?" {
			fmt.Printf(" [%s]", v.Unit)
		}
		fmt.Println()
	}
	if state.Verify == recognition.StatusDone {
		fmt.Printf("Confidence: %d\n", s.ConfidenceScore)
		if s.VerificationReport != "" {
			fmt.Printf("Report:     %s\n", s.VerificationReport)
		}
	}
	fmt.Printf("Session:    %s (latex=%s analysis=%s verify=%s)\n",
		s.ID, state.Latex, state.Analysis, state.Verify)
}

func runPing(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("ping", flag.ExitOnError)
	configDirFlag := fs.String("config-dir", "", "Override the config directory")
	if err := fs.Parse(args); err != nil {
		return err
	}

	env, err := prepareRuntimeEnv(ctx, *configDirFlag, true)
	if err != nil {
		return err
	}
	defer env.Close()

	reply, err := env.client.GenerateContent(ctx, "Reply with the single word: pong")
	if err != nil {
		return err
	}
	log.Printf("✅ %s answered: %s", env.model, strings.TrimSpace(reply))
	return nil
}
