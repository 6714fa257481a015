package database

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestOpen(t *testing.T) {
	t.Run("creates file and parent directories", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "data", "haven.db")

		db := openAt(t, dbPath)
		defer db.Close() //nolint:errcheck // Test cleanup

		if _, err := os.Stat(dbPath); err != nil {
			t.Errorf("database file not created: %v", err)
		}
		if db.Path() != dbPath {
			t.Errorf("Path() = %q, want %q", db.Path(), dbPath)
		}
	})

	t.Run("enables WAL journaling", func(t *testing.T) {
		db := openAt(t, filepath.Join(t.TempDir(), "haven.db"))
		defer db.Close() //nolint:errcheck // Test cleanup

		var mode string
		if err := db.QueryRowContext(context.Background(), "PRAGMA journal_mode").Scan(&mode); err != nil {
			t.Fatalf("PRAGMA journal_mode: %v", err)
		}
		if !strings.EqualFold(mode, "wal") {
			t.Errorf("journal_mode = %q, want wal", mode)
		}
	})

	t.Run("enforces foreign keys", func(t *testing.T) {
		db := openAt(t, filepath.Join(t.TempDir(), "haven.db"))
		defer db.Close() //nolint:errcheck // Test cleanup

		var on int
		if err := db.QueryRowContext(context.Background(), "PRAGMA foreign_keys").Scan(&on); err != nil {
			t.Fatalf("PRAGMA foreign_keys: %v", err)
		}
		if on != 1 {
			t.Errorf("foreign_keys = %d, want 1", on)
		}
	})
}

func TestHealthCheck(t *testing.T) {
	db := openAt(t, filepath.Join(t.TempDir(), "haven.db"))
	defer db.Close() //nolint:errcheck // Test cleanup

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	db := openAt(t, filepath.Join(t.TempDir(), "haven.db"))

	if err := db.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}

	db.DB = nil
	if err := db.Close(); err != nil {
		t.Errorf("Close() after nil error = %v", err)
	}
}

func TestTransactions(t *testing.T) {
	db := openAt(t, filepath.Join(t.TempDir(), "haven.db"))
	defer db.Close() //nolint:errcheck // Test cleanup

	ctx := context.Background()
	if _, err := db.ExecContext(ctx,
		"CREATE TABLE device_notes (id INTEGER PRIMARY KEY, device_id TEXT NOT NULL, note TEXT)",
	); err != nil {
		t.Fatalf("CREATE TABLE error = %v", err)
	}

	t.Run("commit persists", func(t *testing.T) {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			t.Fatalf("BeginTx() error = %v", err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO device_notes (device_id, note) VALUES (?, ?)", "dev-1", "kept",
		); err != nil {
			t.Fatalf("INSERT error = %v", err)
		}
		if err := tx.Commit(); err != nil {
			t.Fatalf("Commit() error = %v", err)
		}

		if got := countNotes(t, db, "kept"); got != 1 {
			t.Errorf("committed rows = %d, want 1", got)
		}
	})

	t.Run("rollback discards", func(t *testing.T) {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			t.Fatalf("BeginTx() error = %v", err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO device_notes (device_id, note) VALUES (?, ?)", "dev-2", "discarded",
		); err != nil {
			t.Fatalf("INSERT error = %v", err)
		}
		if err := tx.Rollback(); err != nil {
			t.Fatalf("Rollback() error = %v", err)
		}

		if got := countNotes(t, db, "discarded"); got != 0 {
			t.Errorf("rolled-back rows = %d, want 0", got)
		}
	})
}

func TestSingleWriterPool(t *testing.T) {
	db := openAt(t, filepath.Join(t.TempDir(), "haven.db"))
	defer db.Close() //nolint:errcheck // Test cleanup

	if got := db.Stats().MaxOpenConnections; got != 1 {
		t.Errorf("MaxOpenConnections = %d, want 1 (SQLite single writer)", got)
	}
}

func openAt(t *testing.T, path string) *DB {
	t.Helper()

	db, err := Open(Config{Path: path, WALMode: true, BusyTimeout: 5})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	return db
}

func countNotes(t *testing.T, db *DB, note string) int {
	t.Helper()

	var n int
	err := db.QueryRowContext(context.Background(),
		"SELECT COUNT(*) FROM device_notes WHERE note = ?", note,
	).Scan(&n)
	if err != nil {
		t.Fatalf("SELECT error = %v", err)
	}
	return n
}
