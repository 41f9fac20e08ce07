package ledger_test

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"tmbatch/internal/ledger"
	"tmbatch/internal/testsupport"
)

func TestRecordAndList(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)
	ctx := context.Background()

	entries := []ledger.Entry{
		{RunID: "run-a", TomogramID: "1", Status: ledger.StatusSubmitted, ScriptPath: "tomo_1/submit_1.sh", JobID: "101"},
		{RunID: "run-a", TomogramID: "2", Status: ledger.StatusSkipped, Step: "resolve", Message: "missing file: no volume file"},
		{RunID: "run-a", TomogramID: "3", Status: ledger.StatusFailed, Step: "submit", Message: "submission failed"},
	}
	for _, e := range entries {
		id, err := store.Record(ctx, e)
		if err != nil {
			t.Fatalf("Record failed: %v", err)
		}
		if id == 0 {
			t.Fatal("expected row id to be assigned")
		}
	}

	all, err := store.List(ctx, ledger.Filter{RunID: "run-a"})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(all))
	}
	if all[0].TomogramID != "3" {
		t.Fatalf("expected newest entry first, got %q", all[0].TomogramID)
	}
	if all[2].JobID != "101" || all[2].ScriptPath != "tomo_1/submit_1.sh" {
		t.Fatalf("unexpected first entry: %+v", all[2])
	}
	if all[2].CreatedAt.IsZero() {
		t.Fatal("expected created_at to be set")
	}

	failed, err := store.List(ctx, ledger.Filter{Statuses: []ledger.Status{ledger.StatusFailed, ledger.StatusSkipped}, Limit: 1})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(failed) != 1 || failed[0].Status != ledger.StatusFailed {
		t.Fatalf("unexpected filtered entries: %+v", failed)
	}
}

func TestRecordRejectsIncompleteEntries(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)
	ctx := context.Background()

	if _, err := store.Record(ctx, ledger.Entry{TomogramID: "1", Status: ledger.StatusSubmitted}); err == nil {
		t.Fatal("expected error when run id missing")
	}
	if _, err := store.Record(ctx, ledger.Entry{RunID: "r", TomogramID: "1", Status: "queued"}); err == nil {
		t.Fatal("expected error for unknown status")
	}
}

func TestLatestByTomogramAndRuns(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	records := []ledger.Entry{
		{RunID: "run-1", TomogramID: "1", Status: ledger.StatusGenerated, DryRun: true, CreatedAt: base},
		{RunID: "run-1", TomogramID: "2", Status: ledger.StatusSkipped, CreatedAt: base.Add(time.Second)},
		{RunID: "run-2", TomogramID: "1", Status: ledger.StatusSubmitted, JobID: "55", CreatedAt: base.Add(time.Hour)},
	}
	for _, e := range records {
		if _, err := store.Record(ctx, e); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	latest, err := store.LatestByTomogram(ctx)
	if err != nil {
		t.Fatalf("LatestByTomogram failed: %v", err)
	}
	if len(latest) != 2 {
		t.Fatalf("expected 2 tomograms, got %d", len(latest))
	}
	if latest[0].TomogramID != "1" || latest[0].RunID != "run-2" || latest[0].JobID != "55" {
		t.Fatalf("unexpected latest entry for 1: %+v", latest[0])
	}
	if latest[1].TomogramID != "2" || latest[1].Status != ledger.StatusSkipped {
		t.Fatalf("unexpected latest entry for 2: %+v", latest[1])
	}

	runs, err := store.Runs(ctx, 0)
	if err != nil {
		t.Fatalf("Runs failed: %v", err)
	}
	if len(runs) != 2 || runs[0].RunID != "run-2" {
		t.Fatalf("unexpected runs: %+v", runs)
	}
	if runs[1].Generated != 1 || runs[1].Skipped != 1 || runs[1].Total() != 2 {
		t.Fatalf("unexpected run-1 summary: %+v", runs[1])
	}
	if !runs[1].StartedAt.Equal(base) {
		t.Fatalf("expected run-1 start %v, got %v", base, runs[1].StartedAt)
	}
}

func TestOpenRejectsSchemaMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	store, err := ledger.Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	store.Close()

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open failed: %v", err)
	}
	if _, err := db.Exec("UPDATE schema_version SET version = 99"); err != nil {
		t.Fatalf("update version: %v", err)
	}
	db.Close()

	if _, err := ledger.Open(path); !errors.Is(err, ledger.ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}

func TestOpenExistingDoesNotCreate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "ledger.db")
	if _, err := ledger.OpenExisting(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected os.ErrNotExist, got %v", err)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("OpenExisting must not create the ledger")
	}
}
