package postgres

import (
	"strings"
	"testing"
	"testing/fstest"
)

func TestDSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  ClientConfig
		want string
	}{
		{"explicit", ClientConfig{DSN: "postgres://x"}, "postgres://x"},
		{"defaults", ClientConfig{Host: "db", User: "u", Password: "p", Database: "sniper"}, "postgres://u:p@db:5432/sniper?sslmode=disable"},
		{"ssl", ClientConfig{Host: "db", Port: 6543, User: "u", Password: "p", Database: "d", SSLMode: "require"}, "postgres://u:p@db:6543/d?sslmode=require"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DSN(tt.cfg); got != tt.want {
				t.Fatalf("got=%s want=%s", got, tt.want)
			}
		})
	}
}

func TestMigrationNamesSorted(t *testing.T) {
	fsys := fstest.MapFS{
		"migrations/002_more.sql": {Data: []byte("SELECT 1")},
		"migrations/001_init.sql": {Data: []byte("SELECT 1")},
		"migrations/README.md":    {Data: []byte("notes")},
	}
	names, err := migrationNames(fsys)
	if err != nil {
		t.Fatalf("names: %v", err)
	}
	if strings.Join(names, ",") != "001_init.sql,002_more.sql" {
		t.Fatalf("got=%v", names)
	}
}

func TestEmbeddedSchemaHasJournalTables(t *testing.T) {
	data, err := migrationsFS.ReadFile("migrations/001_init.sql")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	for _, table := range []string{"sniper_sessions", "sniper_legs", "audit_log"} {
		if !strings.Contains(string(data), "CREATE TABLE IF NOT EXISTS "+table) {
			t.Fatalf("schema missing %s", table)
		}
	}
}
