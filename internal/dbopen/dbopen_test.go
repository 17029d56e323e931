package dbopen_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/domshield/internal/dbopen"
)

func TestOpen_Pragmas(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "j.db")
	db, err := dbopen.Open(path, dbopen.WithMkdirAll(), dbopen.WithBusyTimeout(2500))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	var mode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatal(err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode: got %q, want wal", mode)
	}
	var busy int
	if err := db.QueryRow("PRAGMA busy_timeout").Scan(&busy); err != nil {
		t.Fatal(err)
	}
	if busy != 2500 {
		t.Errorf("busy_timeout: got %d, want 2500", busy)
	}
	var sync int
	if err := db.QueryRow("PRAGMA synchronous").Scan(&sync); err != nil {
		t.Fatal(err)
	}
	if sync != 1 {
		t.Errorf("synchronous: got %d, want 1 (NORMAL)", sync)
	}
}

func TestOpen_Schema(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithSchema(`CREATE TABLE t (v TEXT)`))
	if _, err := dbopen.Exec(context.Background(), db, `INSERT INTO t (v) VALUES (?)`, "x"); err != nil {
		t.Fatal(err)
	}
	var n int
	if err := db.QueryRow(`SELECT count(*) FROM t`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("got %d rows, want 1", n)
	}
}

func TestOpen_BadSchema(t *testing.T) {
	if _, err := dbopen.Open(":memory:", dbopen.WithSchema("CREATE TABLE (")); err == nil {
		t.Error("expected error for invalid schema")
	}
}

func TestIsBusy(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("SQLITE_BUSY"), true},
		{errors.New("database is locked (5)"), true},
		{errors.New("database table is locked"), true},
		{errors.New("no such table"), false},
	}
	for _, tc := range cases {
		if got := dbopen.IsBusy(tc.err); got != tc.want {
			t.Errorf("IsBusy(%v): got %v, want %v", tc.err, got, tc.want)
		}
	}
}
