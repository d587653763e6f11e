package db

import (
	"strings"
	"testing"
)

func TestLoadMigrationsOrdered(t *testing.T) {
	migrations, err := LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations(): %v", err)
	}
	if len(migrations) == 0 {
		t.Fatalf("expected embedded migrations")
	}
	for i := 1; i < len(migrations); i++ {
		if migrations[i].Version <= migrations[i-1].Version {
			t.Fatalf("migrations out of order: %d after %d", migrations[i].Version, migrations[i-1].Version)
		}
	}
	if !strings.Contains(migrations[0].SQL, "CREATE TABLE") {
		t.Fatalf("first migration should create tables")
	}
}

func TestParseMigrationName(t *testing.T) {
	tests := []struct {
		file    string
		version int
		name    string
		ok      bool
	}{
		{file: "0001_init.sql", version: 1, name: "init", ok: true},
		{file: "0012_add_refunds.sql", version: 12, name: "add_refunds", ok: true},
		{file: "init.sql", ok: false},
		{file: "0000_zero.sql", ok: false},
		{file: "0003_.sql", ok: false},
	}
	for _, tc := range tests {
		version, name, ok := parseMigrationName(tc.file)
		if ok != tc.ok || version != tc.version || name != tc.name {
			t.Fatalf("parseMigrationName(%q) = (%d, %q, %v), want (%d, %q, %v)", tc.file, version, name, ok, tc.version, tc.name, tc.ok)
		}
	}
}
