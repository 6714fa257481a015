package database_test

import (
	"context"
	"embed"
	"path/filepath"
	"testing"
	"time"

	"github.com/ewhitter/haven-core/internal/infrastructure/database"
	_ "github.com/ewhitter/haven-core/migrations"
)

// These tests run the real embedded migrations, so they double as a
// check that the shipped schema matches what the repositories expect.

// TestMigrateAppliesSchema verifies the embedded schema comes up and
// that Migrate is idempotent across restarts.
func TestMigrateAppliesSchema(t *testing.T) {
	db := openMigratedDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup

	ctx := context.Background()

	for _, table := range []string{"devices", "rules", "schema_migrations"} {
		var name string
		err := db.QueryRowContext(ctx,
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %s missing after Migrate: %v", table, err)
		}
	}

	// Columns the repositories depend on must be insertable.
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := db.ExecContext(ctx, `
		INSERT INTO devices (id, name, slug, type, protocol, properties, online, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		"dev-1", "Test Plug", "test-plug", "smart_plug", "zigbee", `{"on":false}`, 0, now, now,
	)
	if err != nil {
		t.Errorf("devices insert failed: %v", err)
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO rules (id, name, rule_type, enabled, conditions, actions, priority, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		"rule-1", "Test Rule", "condition", 1, "[]", "[]", 50, now, now,
	)
	if err != nil {
		t.Errorf("rules insert failed: %v", err)
	}

	applied, pending, err := db.GetMigrationStatus(ctx)
	if err != nil {
		t.Fatalf("GetMigrationStatus() error = %v", err)
	}
	if len(applied) == 0 {
		t.Error("expected at least one applied migration")
	}
	if len(pending) != 0 {
		t.Errorf("expected 0 pending migrations, got %d", len(pending))
	}

	// A second run against the same file must be a no-op.
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
}

// TestMigrateDownDropsSchema verifies rollback of the latest step.
func TestMigrateDownDropsSchema(t *testing.T) {
	db := openMigratedDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup

	ctx := context.Background()

	if err := db.MigrateDown(ctx); err != nil {
		t.Fatalf("MigrateDown() error = %v", err)
	}

	var count int
	err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name IN ('devices', 'rules')",
	).Scan(&count)
	if err != nil {
		t.Fatalf("query error: %v", err)
	}
	if count != 0 {
		t.Errorf("expected devices and rules dropped, %d tables remain", count)
	}

	applied, _, err := db.GetMigrationStatus(ctx)
	if err != nil {
		t.Fatalf("GetMigrationStatus() error = %v", err)
	}
	if len(applied) != 0 {
		t.Errorf("expected 0 applied migrations after rollback, got %d", len(applied))
	}
}

// TestMigrateWithoutEmbeddedFiles verifies Migrate is a no-op when no
// migrations are registered.
func TestMigrateWithoutEmbeddedFiles(t *testing.T) {
	origFS := database.MigrationsFS
	origDir := database.MigrationsDir
	defer func() {
		database.MigrationsFS = origFS
		database.MigrationsDir = origDir
	}()

	var emptyFS embed.FS
	database.MigrationsFS = emptyFS
	database.MigrationsDir = "."

	db := openTestDatabase(t)
	defer db.Close() //nolint:errcheck // Test cleanup

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() with no migrations error = %v", err)
	}
}

// openMigratedDB opens a temporary database with the full embedded
// schema applied.
func openMigratedDB(t *testing.T) *database.DB {
	t.Helper()

	db := openTestDatabase(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return db
}

// openTestDatabase opens an empty temporary database.
func openTestDatabase(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "haven.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	return db
}
