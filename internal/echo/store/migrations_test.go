package store

import (
	"database/sql"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"
)

func newMigrationTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "echo.db"))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return &Store{db: db}
}

func TestApplyMigrations(t *testing.T) {
	s := newMigrationTestStore(t)
	fsys := fstest.MapFS{
		"migrations/0001_users.sql":     {Data: []byte("CREATE TABLE alpha (id INTEGER PRIMARY KEY);")},
		"migrations/0002_memories.sql":  {Data: []byte("CREATE TABLE beta (id INTEGER PRIMARY KEY);")},
		"migrations/notes.txt":          {Data: []byte("ignored")},
		"migrations/malformed-name.sql": {Data: []byte("ignored")},
	}

	if err := s.applyMigrations(fsys); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}

	var version int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version); err != nil {
		t.Fatalf("read schema version: %v", err)
	}
	if version != 2 {
		t.Fatalf("schema version = %d, want 2", version)
	}

	// Re-running is a no-op.
	if err := s.applyMigrations(fsys); err != nil {
		t.Fatalf("re-apply migrations: %v", err)
	}
}

func TestApplyMigrationsRejectsDuplicateVersions(t *testing.T) {
	s := newMigrationTestStore(t)
	fsys := fstest.MapFS{
		"migrations/0002_memories.sql":      {Data: []byte("CREATE TABLE alpha (id INTEGER PRIMARY KEY);")},
		"migrations/0002_conversations.sql": {Data: []byte("CREATE TABLE beta (id INTEGER PRIMARY KEY);")},
	}

	err := s.applyMigrations(fsys)
	if err == nil {
		t.Fatal("expected error for duplicate migration version, got nil")
	}
	if !strings.Contains(err.Error(), "duplicate migration version") {
		t.Fatalf("unexpected error: %v", err)
	}
}
