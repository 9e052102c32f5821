package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mleroy/texlens/internal/config"
	"github.com/mleroy/texlens/internal/history"
)

func runHistory(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: texlens history <list|search|favorite|rename|delete|follow>")
	}

	sub, rest := args[0], args[1:]

	fs := flag.NewFlagSet("history "+sub, flag.ExitOnError)
	configDirFlag := fs.String("config-dir", "", "Override the config directory")

	switch sub {
	case "list":
		limitFlag := fs.Int("limit", 20, "Maximum entries to print")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		return withEnv(ctx, *configDirFlag, func(env *runtimeEnv) error {
			records, err := env.store.GetAll(ctx)
			if err != nil {
				return err
			}
			printRecords(records, *limitFlag)
			return nil
		})

	case "search":
		limitFlag := fs.Int("limit", 20, "Maximum hits to print")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		query := fs.Arg(0)
		if query == "" {
			return fmt.Errorf("usage: texlens history search <query>")
		}
		return withEnv(ctx, *configDirFlag, func(env *runtimeEnv) error {
			// The index can trail the database after a crash; rebuild it
			// from the authoritative rows before searching.
			records, err := env.store.GetAll(ctx)
			if err != nil {
				return err
			}
			if err := env.search.RebuildFrom(records); err != nil {
				return err
			}

			hits, err := env.search.Search(query, *limitFlag)
			if err != nil {
				return err
			}
			byID := make(map[string]history.Record, len(records))
			for _, rec := range records {
				byID[rec.ID] = rec
			}
			for _, hit := range hits {
				if rec, ok := byID[hit.ID]; ok {
					printRecordLine(rec)
				}
			}
			if len(hits) == 0 {
				fmt.Println("no matches")
			}
			return nil
		})

	case "favorite":
		offFlag := fs.Bool("off", false, "Remove the favorite mark")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		id := fs.Arg(0)
		if id == "" {
			return fmt.Errorf("usage: texlens history favorite [-off] <id>")
		}
		return withEnv(ctx, *configDirFlag, func(env *runtimeEnv) error {
			return env.store.UpdateFavorite(ctx, id, !*offFlag)
		})

	case "rename":
		if err := fs.Parse(rest); err != nil {
			return err
		}
		id, title := fs.Arg(0), fs.Arg(1)
		if id == "" || title == "" {
			return fmt.Errorf("usage: texlens history rename <id> <title>")
		}
		return withEnv(ctx, *configDirFlag, func(env *runtimeEnv) error {
			return env.store.UpdateTitle(ctx, id, title)
		})

	case "delete":
		if err := fs.Parse(rest); err != nil {
			return err
		}
		id := fs.Arg(0)
		if id == "" {
			return fmt.Errorf("usage: texlens history delete <id>")
		}
		return withEnv(ctx, *configDirFlag, func(env *runtimeEnv) error {
			if err := env.store.Delete(ctx, id); err != nil {
				return err
			}
			if err := env.search.Remove(id); err != nil {
				log.Printf("⚠️ failed to deindex %s: %v", id, err)
			}
			env.cache.Remove(id)
			return nil
		})

	case "follow":
		if err := fs.Parse(rest); err != nil {
			return err
		}
		return withEnv(ctx, *configDirFlag, followHistory)

	default:
		return fmt.Errorf("unknown history subcommand: %s", sub)
	}
}

func withEnv(ctx context.Context, configDir string, fn func(*runtimeEnv) error) error {
	env, err := prepareRuntimeEnv(ctx, configDir, false)
	if err != nil {
		return err
	}
	defer env.Close()
	return fn(env)
}

// followHistory keeps the cached snapshot on screen, reprinting when a
// poll brings in changes. Mostly a debugging aid for the cache itself.
func followHistory(env *runtimeEnv) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := env.cache.Initialize(ctx); err != nil {
		return err
	}

	// Pick up config edits while running so a changed poll interval or
	// language does not require a restart.
	watcher, err := config.NewWatcher(env.manager, func(cfg *config.Config) {
		env.cfg = cfg
		log.Printf("🔄 config reloaded (poll every %ds)", cfg.HistoryPollSec)
	})
	if err != nil {
		return err
	}
	if err := watcher.Start(); err != nil {
		log.Printf("⚠️ config watch unavailable: %v", err)
	} else {
		defer watcher.Stop()
	}

	log.Printf("👀 following history (poll every %ds, ctrl-c to stop)", env.cfg.HistoryPollSec)

	var lastCount = -1
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			items := env.cache.Items()
			if len(items) == lastCount {
				continue
			}
			lastCount = len(items)
			fmt.Printf("\n%d entries:\n", len(items))
			printRecords(items, 10)
		}
	}
}

func printRecords(records []history.Record, limit int) {
	for i, rec := range records {
		if limit > 0 && i >= limit {
			fmt.Printf("... and %d more\n", len(records)-limit)
			return
		}
		printRecordLine(rec)
	}
}

func printRecordLine(rec history.Record) {
	star := " "
	if rec.IsFavorite {
		star = "*"
	}
	title := rec.Title
	if title == "" {
		title = "(untitled)"
	}
	fmt.Printf("%s %s  %s  conf=%-3d %s\n",
		star, rec.ID, rec.CreatedAt.Format("2006-01-02 15:04"), rec.ConfidenceScore, title)
}
