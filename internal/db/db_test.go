package db

import (
	"sync"
	"testing"
)

func TestMemoryDatabaseSharedAcrossPool(t *testing.T) {
	database, err := NewMemory()
	if err != nil {
		t.Fatalf("NewMemory() error = %v", err)
	}
	defer database.Close()

	// sqlite ":memory:" is per-connection; the pool must stay pinned to
	// one connection or concurrent callers see an empty database.
	if got := database.Stats().MaxOpenConnections; got != 1 {
		t.Fatalf("MaxOpenConnections = %d, want 1", got)
	}

	var wg sync.WaitGroup
	errCh := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var n int
			if err := database.QueryRow("SELECT COUNT(*) FROM campaigns").Scan(&n); err != nil {
				errCh <- err
			}
		}()
	}
	wg.Wait()
	close(errCh)

	for err := range errCh {
		t.Errorf("concurrent query error: %v", err)
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	database, err := NewMemory()
	if err != nil {
		t.Fatalf("NewMemory() error = %v", err)
	}
	defer database.Close()

	// NewMemory already migrated once.
	if err := database.Migrate(); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
}
