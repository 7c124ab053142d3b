package store

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestMigrationVersion(t *testing.T) {
	tests := []struct {
		file    string
		want    string
		wantErr bool
	}{
		{"0001_init.up.sql", "0001", false},
		{"/some/dir/0002_add_index.up.sql", "0002", false},
		{"init.up.sql", "", true},
		{"abc_init.up.sql", "", true},
		{"_init.up.sql", "", true},
	}
	for _, tt := range tests {
		got, err := migrationVersion(tt.file)
		if tt.wantErr {
			if err == nil {
				t.Errorf("migrationVersion(%q): expected error", tt.file)
			}
			continue
		}
		if err != nil {
			t.Errorf("migrationVersion(%q): unexpected error: %v", tt.file, err)
			continue
		}
		if got != tt.want {
			t.Errorf("migrationVersion(%q) = %q, want %q", tt.file, got, tt.want)
		}
	}
}

func TestUpMigrationFilesOrderingAndDuplicates(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"0002_later.up.sql", "0001_init.up.sql", "0001_init.down.sql", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("SELECT 1;"), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	files, err := upMigrationFiles(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 up migrations, got %d", len(files))
	}
	if filepath.Base(files[0]) != "0001_init.up.sql" || filepath.Base(files[1]) != "0002_later.up.sql" {
		t.Errorf("unexpected ordering: %v", files)
	}

	if err := os.WriteFile(filepath.Join(dir, "0002_conflict.up.sql"), []byte("SELECT 1;"), 0o644); err != nil {
		t.Fatalf("write conflict file: %v", err)
	}
	if _, err := upMigrationFiles(dir); err == nil || !strings.Contains(err.Error(), "duplicate migration version") {
		t.Errorf("expected duplicate version error, got %v", err)
	}
}
