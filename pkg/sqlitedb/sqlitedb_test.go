package sqlitedb

import (
	"path/filepath"
	"testing"
)

func TestDSN(t *testing.T) {
	got := DSN("q.db")
	want := "q.db?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	if got != want {
		t.Errorf("DSN = %q, want %q", got, want)
	}
	if got := DSN("file:q.db?mode=rwc"); got[:len("file:q.db?mode=rwc&_pragma")] != "file:q.db?mode=rwc&_pragma" {
		t.Errorf("existing query not extended: %q", got)
	}
}

func TestOpenRunsMigrations(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "t.db"),
		`CREATE TABLE a (id INTEGER PRIMARY KEY)`,
		`INSERT INTO a (id) VALUES (7)`,
	)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	var id int
	if err := db.QueryRow(`SELECT id FROM a`).Scan(&id); err != nil {
		t.Fatal(err)
	}
	if id != 7 {
		t.Errorf("expected 7, got %d", id)
	}

	var mode string
	if err := db.QueryRow(`PRAGMA journal_mode`).Scan(&mode); err != nil {
		t.Fatal(err)
	}
	if mode != "wal" {
		t.Errorf("expected wal, got %s", mode)
	}
}

func TestOpenBadMigration(t *testing.T) {
	if _, err := Open(filepath.Join(t.TempDir(), "t.db"), `NOT SQL`); err == nil {
		t.Error("expected migration error")
	}
}
