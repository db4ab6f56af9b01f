package storage

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestSQLiteStore(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	store, err := NewSQLiteStore(dbPath, logger)
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	defer store.Close()

	ctx := context.Background()

	// Run migrations
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	// Migrations are idempotent
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}

	runStoreSuite(t, store)
}

func TestSQLiteStore_ReadDuringWriteTransaction(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"), logger)
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if _, err := store.SeedSettings(ctx, &Settings{Owner: alice, Payment: "1"}); err != nil {
		t.Fatalf("SeedSettings() error = %v", err)
	}

	// Hooks read settings on another connection while the insert is open.
	err = store.InsertRequest(ctx, newRequest(1, alice), func(ctx context.Context) error {
		_, err := store.GetSettings(ctx)
		return err
	})
	if err != nil {
		t.Fatalf("InsertRequest() error = %v", err)
	}
}

func TestPageLimitBounds(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{0, defaultPageLimit},
		{-1, defaultPageLimit},
		{10, 10},
		{maxPageLimit + 1, maxPageLimit},
	}
	for _, tt := range tests {
		if got := pageLimit(tt.in); got != tt.want {
			t.Errorf("pageLimit(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
