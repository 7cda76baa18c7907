package db

import (
	"path/filepath"
	"testing"
)

func TestSQLiteFilePath(t *testing.T) {
	cases := []struct {
		dsn  string
		path string
		ok   bool
	}{
		{"collab.db", "collab.db", true},
		{"data/collab.db?_pragma=busy_timeout(5000)", "data/collab.db", true},
		{"file:collab.db?cache=shared", "collab.db", true},
		{":memory:", "", false},
		{"file::memory:?cache=shared", "", false},
		{"file:test.db?mode=memory", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		path, ok := SQLiteFilePath(tc.dsn)
		if ok != tc.ok || path != tc.path {
			t.Fatalf("SQLiteFilePath(%q) = %q, %v; want %q, %v", tc.dsn, path, ok, tc.path, tc.ok)
		}
	}
}

func TestOpenCreatesSQLiteDirectory(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "nested", "collab.db")
	gdb, err := Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("unwrap sql db: %v", err)
	}
	defer sqlDB.Close()

	if err := sqlDB.Ping(); err != nil {
		t.Fatalf("ping: %v", err)
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	if _, err := Open("mysql", "dsn"); err == nil {
		t.Fatalf("expected error for unsupported driver")
	}
}
