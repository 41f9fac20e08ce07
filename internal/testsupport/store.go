package testsupport

import (
	"testing"

	"tmbatch/internal/config"
	"tmbatch/internal/ledger"
)

// MustOpenLedger opens the ledger inside the config's output directory for
// tests and registers cleanup.
func MustOpenLedger(t testing.TB, cfg *config.Config) *ledger.Store {
	t.Helper()

	store, err := ledger.Open(ledger.PathFor(cfg.Paths.OutputDir))
	if err != nil {
		t.Fatalf("ledger.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}
