package migrate

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func openMemDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	// Each connection to :memory: is its own database.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("close db: %v", err)
		}
	})
	return db
}

func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		in          string
		wantVersion string
		wantName    string
		wantOK      bool
	}{
		{in: "0001_schema.sql", wantVersion: "0001", wantName: "schema", wantOK: true},
		{in: "0012_add_index.sql", wantVersion: "0012", wantName: "add_index", wantOK: true},
		{in: "1_schema.sql", wantOK: false},
		{in: "0001_schema.txt", wantOK: false},
		{in: "README.md", wantOK: false},
	}
	for _, tt := range tests {
		v, n, ok := parseMigrationFilename(tt.in)
		if ok != tt.wantOK || v != tt.wantVersion || n != tt.wantName {
			t.Errorf("parseMigrationFilename(%q) = %q, %q, %v", tt.in, v, n, ok)
		}
	}
}

func TestRun_AppliesSchemaOnce(t *testing.T) {
	db := openMemDB(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	applied, err := Run(ctx, db, logger)
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if len(applied) == 0 || applied[0] != "0001" {
		t.Fatalf("first Run applied %v, want 0001 first", applied)
	}

	for _, table := range []string{"deliveries", "stations", tableName} {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %s missing: %v", table, err)
		}
	}

	again, err := Run(ctx, db, logger)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("second Run applied %v, want nothing", again)
	}
}
