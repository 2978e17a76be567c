package db

import (
	"strings"
	"testing"
	"testing/fstest"
)

func TestLoadMigrations(t *testing.T) {
	fsys := fstest.MapFS{
		"002_schedules.sql": {Data: []byte("CREATE TABLE b (id INT);")},
		"001_directory.sql": {Data: []byte("CREATE TABLE a (id INT);")},
		"010_later.sql":     {Data: []byte("SELECT 10;")},
		"README.md":         {Data: []byte("not a migration")},
		"notes_only.sql":    {Data: []byte("SELECT 0;")},
	}

	migrations, err := NewMigrator(nil, fsys).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}
	if len(migrations) != 3 {
		t.Fatalf("expected 3 migrations, got %d", len(migrations))
	}

	wantVersions := []int{1, 2, 10}
	for i, v := range wantVersions {
		if migrations[i].Version != v {
			t.Errorf("migration %d: expected version %d, got %d", i, v, migrations[i].Version)
		}
	}
	if migrations[0].Name != "001_directory.sql" {
		t.Errorf("expected name 001_directory.sql, got %s", migrations[0].Name)
	}
	if migrations[0].SQL != "CREATE TABLE a (id INT);" {
		t.Errorf("unexpected SQL content: %s", migrations[0].SQL)
	}
}

func TestLoadMigrations_DuplicateVersion(t *testing.T) {
	fsys := fstest.MapFS{
		"001_a.sql": {Data: []byte("SELECT 1;")},
		"1_b.sql":   {Data: []byte("SELECT 1;")},
	}
	if _, err := NewMigrator(nil, fsys).LoadMigrations(); err == nil {
		t.Fatal("expected duplicate version error")
	}
}

func TestEmbeddedMigrations(t *testing.T) {
	migrations, err := NewMigrator(nil, Embedded()).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}
	if len(migrations) < 4 {
		t.Fatalf("expected at least 4 embedded migrations, got %d", len(migrations))
	}
	for i, m := range migrations {
		if m.Version != i+1 {
			t.Errorf("expected contiguous versions, got %d at position %d", m.Version, i)
		}
	}

	var all strings.Builder
	for _, m := range migrations {
		all.WriteString(m.SQL)
	}
	for _, table := range []string{"schedule_templates", "hospital_schedules", "bookings", "booking_events", "professional_approval_events"} {
		if !strings.Contains(all.String(), table) {
			t.Errorf("expected embedded schema to define %s", table)
		}
	}
	if !strings.Contains(all.String(), "remaining_capacity >= 0") {
		t.Error("expected capacity check constraint")
	}
}
