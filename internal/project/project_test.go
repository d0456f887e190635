package project

import (
	"os"
	"path/filepath"
	"testing"
)

func mkProject(t *testing.T, root, name string, files map[string]string) string {
	t.Helper()
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	for filename, content := range files {
		if err := os.WriteFile(filepath.Join(dir, filename), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestIsNumbered(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"001-user-auth", true},
		{"042-x", true},
		{"999-", true},
		{"01-short", false},
		{"abc-name", false},
		{"0001-long", false},
		{"001", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := isNumbered(tt.name); got != tt.want {
			t.Errorf("isNumbered(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestDiscover_NumberedDirectories(t *testing.T) {
	root := t.TempDir()
	mkProject(t, root, "002-billing", map[string]string{SpecFilename: "name: billing\n"})
	mkProject(t, root, "001-auth", map[string]string{SpecFilename: "name: auth\n"})
	mkProject(t, root, "003-empty", nil)            // no spec.yml, skipped
	mkProject(t, root, "notes", map[string]string{  // not NNN-name, skipped
		SpecFilename: "name: notes\n",
	})

	projects, err := Discover(root)
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if len(projects) != 2 {
		t.Fatalf("found %d projects, want 2: %v", len(projects), projects)
	}
	// Sorted by name.
	if projects[0].Name != "001-auth" || projects[1].Name != "002-billing" {
		t.Errorf("order = %s, %s", projects[0].Name, projects[1].Name)
	}
}

func TestDiscover_SingleProjectRoot(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, SpecFilename), []byte("name: solo\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	projects, err := Discover(root)
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if len(projects) != 1 {
		t.Fatalf("found %d projects, want 1", len(projects))
	}
	if projects[0].Dir != root {
		t.Errorf("Dir = %s, want %s", projects[0].Dir, root)
	}
}

func TestDiscover_Empty(t *testing.T) {
	if _, err := Discover(t.TempDir()); err == nil {
		t.Error("Discover() on an empty root succeeded, want error")
	}
}

func TestReadFiles(t *testing.T) {
	root := t.TempDir()
	dir := mkProject(t, root, "001-auth", map[string]string{
		SpecFilename: "name: auth\n",
		PlanFilename: "plan_items: []\n",
	})
	p := Project{Name: "001-auth", Dir: dir}

	files, err := p.ReadFiles()
	if err != nil {
		t.Fatalf("ReadFiles() error = %v", err)
	}
	if string(files.Spec) != "name: auth\n" {
		t.Errorf("Spec = %q", files.Spec)
	}
	if string(files.Plan) != "plan_items: []\n" {
		t.Errorf("Plan = %q", files.Plan)
	}
	if files.Tasks != nil {
		t.Errorf("Tasks = %q, want nil for a missing file", files.Tasks)
	}
}

func TestReadFiles_MissingSpec(t *testing.T) {
	p := Project{Name: "001-auth", Dir: t.TempDir()}
	if _, err := p.ReadFiles(); err == nil {
		t.Error("ReadFiles() without spec.yml succeeded, want error")
	}
}

func TestContentHash(t *testing.T) {
	base := &Files{Spec: []byte("name: a\n"), Plan: []byte("plan_items: []\n")}
	same := &Files{Spec: []byte("name: a\n"), Plan: []byte("plan_items: []\n")}
	if base.ContentHash() != same.ContentHash() {
		t.Error("identical document sets hash differently")
	}

	changed := &Files{Spec: []byte("name: b\n"), Plan: []byte("plan_items: []\n")}
	if base.ContentHash() == changed.ContentHash() {
		t.Error("changed spec bytes did not change the hash")
	}

	// Moving bytes between documents must change the hash too.
	shifted := &Files{Spec: []byte("name: a\nplan_items: []\n")}
	joined := &Files{Spec: []byte("name: a\n"), Plan: []byte("plan_items: []\n")}
	if shifted.ContentHash() == joined.ContentHash() {
		t.Error("document boundary shift did not change the hash")
	}
}

func TestWritePlan_Atomic(t *testing.T) {
	root := t.TempDir()
	dir := mkProject(t, root, "001-auth", map[string]string{SpecFilename: "name: auth\n"})
	p := Project{Name: "001-auth", Dir: dir}

	if err := p.WritePlan([]byte("plan_items: []\n")); err != nil {
		t.Fatalf("WritePlan() error = %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, PlanFilename))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "plan_items: []\n" {
		t.Errorf("plan.yml = %q", data)
	}

	// Overwrite leaves no temp files behind.
	if err := p.WritePlan([]byte("plan_items:\n  - id: P001\n    implements: [F001]\n")); err != nil {
		t.Fatalf("WritePlan() error = %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if e.Name() != SpecFilename && e.Name() != PlanFilename {
			t.Errorf("unexpected leftover file %s", e.Name())
		}
	}
}
