package database

import (
	"context"
	"testing"
	"testing/fstest"
)

func testMigrations() fstest.MapFS {
	return fstest.MapFS{
		"20261001_090000_sessions.up.sql":   {Data: []byte("CREATE TABLE sessions (id TEXT PRIMARY KEY);")},
		"20261001_090000_sessions.down.sql": {Data: []byte("DROP TABLE sessions;")},
		"20261002_090000_notes.up.sql":      {Data: []byte("CREATE TABLE notes (id TEXT PRIMARY KEY, body TEXT);")},
		"20261002_090000_notes.down.sql":    {Data: []byte("DROP TABLE notes;")},
		"README.md":                         {Data: []byte("ignored")},
	}
}

func tableExists(t *testing.T, db *DB, name string) bool {
	t.Helper()
	var n int
	err := db.QueryRowContext(context.Background(),
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", name,
	).Scan(&n)
	if err != nil {
		t.Fatalf("querying sqlite_master: %v", err)
	}
	return n == 1
}

func TestMigrate(t *testing.T) {
	db := openTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup
	ctx := context.Background()

	if err := db.Migrate(ctx, testMigrations()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	for _, table := range []string{"sessions", "notes"} {
		if !tableExists(t, db, table) {
			t.Errorf("table %s not created", table)
		}
	}

	applied, err := db.AppliedMigrations(ctx)
	if err != nil {
		t.Fatalf("AppliedMigrations() error = %v", err)
	}
	if len(applied) != 2 || applied[0].Version != "20261001_090000" {
		t.Errorf("applied = %+v, want two records starting with 20261001_090000", applied)
	}

	// Idempotent.
	if err := db.Migrate(ctx, testMigrations()); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
}

func TestMigrateDown(t *testing.T) {
	db := openTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup
	ctx := context.Background()

	if err := db.Migrate(ctx, testMigrations()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if err := db.MigrateDown(ctx, testMigrations()); err != nil {
		t.Fatalf("MigrateDown() error = %v", err)
	}

	if tableExists(t, db, "notes") {
		t.Error("notes table still exists after rollback")
	}
	if !tableExists(t, db, "sessions") {
		t.Error("sessions table removed by single-step rollback")
	}
}

func TestMigrate_FailureRollsBack(t *testing.T) {
	db := openTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup
	ctx := context.Background()

	fsys := testMigrations()
	fsys["20261003_090000_broken.up.sql"] = &fstest.MapFile{Data: []byte("CREATE TABLE broken (;")}

	if err := db.Migrate(ctx, fsys); err == nil {
		t.Fatal("Migrate() expected error for broken migration, got nil")
	}

	applied, err := db.AppliedMigrations(ctx)
	if err != nil {
		t.Fatalf("AppliedMigrations() error = %v", err)
	}
	if len(applied) != 2 {
		t.Errorf("applied %d migrations, want 2 before the broken one", len(applied))
	}
}

func TestLoadMigrations_Errors(t *testing.T) {
	tests := []struct {
		name string
		fsys fstest.MapFS
	}{
		{"bad filename", fstest.MapFS{"schema.up.sql": {Data: []byte("SELECT 1;")}}},
		{"down without up", fstest.MapFS{"20261001_090000_orphan.down.sql": {Data: []byte("SELECT 1;")}}},
		{"no direction", fstest.MapFS{"20261001_090000_plain.sql": {Data: []byte("SELECT 1;")}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadMigrations(tt.fsys); err == nil {
				t.Error("LoadMigrations() expected error, got nil")
			}
		})
	}
}

func TestParseMigrationName(t *testing.T) {
	version, name, ok := parseMigrationName("20261016_120000_command_log.up.sql")
	if !ok || version != "20261016_120000" || name != "command_log" {
		t.Errorf("parseMigrationName() = %q, %q, %v", version, name, ok)
	}
}
