package trace

import (
	"path/filepath"
	"testing"
)

func TestSaveAndLoadRoundTrip(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "nested", "trace.json"))

	rec := Record{SessionID: "s1", Latex: "done", Analysis: "error", Verify: "pending"}
	if err := store.Save(rec); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded == nil {
		t.Fatal("expected a record")
	}
	if loaded.SessionID != "s1" || loaded.Latex != "done" || loaded.Analysis != "error" || loaded.Verify != "pending" {
		t.Fatalf("round trip mismatch: %+v", loaded)
	}
	if loaded.SavedAt.IsZero() {
		t.Fatal("SavedAt not stamped")
	}
}

func TestLoadMissingFile(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "trace.json"))

	rec, err := store.Load()
	if err != nil {
		t.Fatalf("missing file must not error: %v", err)
	}
	if rec != nil {
		t.Fatalf("expected nil record, got %+v", rec)
	}
}

func TestSaveOverwrites(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "trace.json"))

	if err := store.Save(Record{SessionID: "old"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.Save(Record{SessionID: "new"}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.SessionID != "new" {
		t.Fatalf("old record survived: %+v", loaded)
	}
}

func TestClear(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "trace.json"))

	if err := store.Clear(); err != nil {
		t.Fatalf("clearing a missing file must not error: %v", err)
	}

	if err := store.Save(Record{SessionID: "s1"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}

	rec, err := store.Load()
	if err != nil || rec != nil {
		t.Fatalf("record survived clear: %+v, %v", rec, err)
	}
}
