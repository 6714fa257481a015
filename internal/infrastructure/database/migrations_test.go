package database

import "testing"

// TestParseMigrationFilename verifies version and direction extraction.
func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		name        string
		filename    string
		wantVersion string
		wantIsUp    bool
		wantOk      bool
	}{
		{
			name:        "up migration",
			filename:    "20260315_100000_initial_schema.up.sql",
			wantVersion: "20260315_100000",
			wantIsUp:    true,
			wantOk:      true,
		},
		{
			name:        "down migration",
			filename:    "20260315_100000_initial_schema.down.sql",
			wantVersion: "20260315_100000",
			wantIsUp:    false,
			wantOk:      true,
		},
		{
			name:     "not a sql file",
			filename: "readme.txt",
			wantOk:   false,
		},
		{
			name:     "missing direction suffix",
			filename: "20260315_100000_initial_schema.sql",
			wantOk:   false,
		},
		{
			name:     "no version prefix",
			filename: "schema.up.sql",
			wantOk:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			version, isUp, ok := parseMigrationFilename(tt.filename)
			if ok != tt.wantOk {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOk)
			}
			if !ok {
				return
			}
			if version != tt.wantVersion {
				t.Errorf("version = %q, want %q", version, tt.wantVersion)
			}
			if isUp != tt.wantIsUp {
				t.Errorf("isUp = %v, want %v", isUp, tt.wantIsUp)
			}
		})
	}
}

// TestMigrationName verifies the descriptive part is extracted.
func TestMigrationName(t *testing.T) {
	tests := []struct {
		filename string
		want     string
	}{
		{"20260315_100000_initial_schema.up.sql", "initial_schema"},
		{"20260315_100000_initial_schema.down.sql", "initial_schema"},
		{"20260401_083000_add_rule_tags.up.sql", "add_rule_tags"},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			if got := migrationName(tt.filename); got != tt.want {
				t.Errorf("migrationName(%q) = %q, want %q", tt.filename, got, tt.want)
			}
		})
	}
}
