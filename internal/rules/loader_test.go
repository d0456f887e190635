package rules

import (
	"os"
	"path/filepath"
	"testing"
)

const testConstitution = `
version: 2.1.0
rules:
  - id: TEAM-001
    kind: forbidden_phrase
    severity: warning
    phrases: ["quick hack"]
  - id: TEAM-002
    kind: requires_reference
    applies_to: plan_item
    match: cache
    requires: invalidation
`

func TestParse(t *testing.T) {
	set, err := Parse([]byte(testConstitution))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	// Versions normalize to a "v" prefix.
	if set.Version != "v2.1.0" {
		t.Errorf("Version = %q, want v2.1.0", set.Version)
	}
	if len(set.Rules) != 2 {
		t.Fatalf("parsed %d rules, want 2", len(set.Rules))
	}
	if set.Rules[0].ID() != "TEAM-001" || set.Rules[1].ID() != "TEAM-002" {
		t.Errorf("rule order = %s, %s", set.Rules[0].ID(), set.Rules[1].ID())
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing version", "rules: []\n"},
		{"bad semver", "version: latest\nrules: []\n"},
		{"duplicate rule id", "version: 1.0.0\nrules:\n  - id: R1\n    kind: forbidden_phrase\n    phrases: [x]\n  - id: R1\n    kind: forbidden_phrase\n    phrases: [y]\n"},
		{"invalid rule", "version: 1.0.0\nrules:\n  - id: R1\n    kind: forbidden_phrase\n"},
		{"malformed yaml", "version: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.yaml)); err == nil {
				t.Error("Parse() succeeded, want error")
			}
		})
	}
}

func TestLoad_Precedence(t *testing.T) {
	dir := t.TempDir()

	explicit := filepath.Join(dir, "explicit.yml")
	if err := os.WriteFile(explicit, []byte("version: 3.0.0\nrules: []\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	envFile := filepath.Join(dir, "env.yml")
	if err := os.WriteFile(envFile, []byte("version: 2.0.0\nrules: []\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, DefaultFilename), []byte("version: 1.0.0\nrules: []\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv(EnvRulesPath, envFile)

	set, err := Load(explicit, dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if set.Version != "v3.0.0" {
		t.Errorf("explicit path lost to %q", set.Version)
	}

	set, err = Load("", dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if set.Version != "v2.0.0" {
		t.Errorf("environment override lost to %q", set.Version)
	}

	t.Setenv(EnvRulesPath, "")
	set, err = Load("", dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if set.Version != "v1.0.0" {
		t.Errorf("project constitution lost to %q", set.Version)
	}
}

func TestLoad_DefaultFallback(t *testing.T) {
	t.Setenv(EnvRulesPath, "")
	set, err := Load("", t.TempDir())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(set.Rules) == 0 {
		t.Fatal("default constitution is empty")
	}
	if set.Rules[0].ID() != "CONST-001" {
		t.Errorf("first default rule = %s, want CONST-001", set.Rules[0].ID())
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yml"), ""); err == nil {
		t.Error("Load() succeeded on a missing explicit path")
	}
}
