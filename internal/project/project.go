// Package project locates numbered project directories and moves document
// bytes between disk and the pure compilation stages. All filesystem
// access for the pipeline lives here.
package project

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Document filenames inside a numbered project directory.
const (
	SpecFilename  = "spec.yml"
	PlanFilename  = "plan.yml"
	TasksFilename = "tasks.yml"
)

// Project is one numbered project directory (e.g. "001-user-auth").
type Project struct {
	// Name is the directory basename, which doubles as the project's
	// numbering scope for identifier uniqueness.
	Name string

	// Dir is the absolute or root-relative directory path.
	Dir string
}

// isNumbered reports whether a directory name follows the NNN-name
// convention.
func isNumbered(name string) bool {
	if len(name) < 4 || name[3] != '-' {
		return false
	}
	for _, r := range name[:3] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Discover finds the projects under root. A root that itself contains a
// spec.yml is treated as a single unnumbered project; otherwise every
// NNN-name subdirectory holding a spec.yml is a project. Results are
// sorted by name so compilation order is deterministic.
func Discover(root string) ([]Project, error) {
	if _, err := os.Stat(filepath.Join(root, SpecFilename)); err == nil {
		return []Project{{Name: filepath.Base(root), Dir: root}}, nil
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("failed to read project root %s: %w", root, err)
	}

	var projects []Project
	for _, entry := range entries {
		if !entry.IsDir() || !isNumbered(entry.Name()) {
			continue
		}
		dir := filepath.Join(root, entry.Name())
		if _, err := os.Stat(filepath.Join(dir, SpecFilename)); err != nil {
			continue
		}
		projects = append(projects, Project{Name: entry.Name(), Dir: dir})
	}
	sort.Slice(projects, func(i, j int) bool { return projects[i].Name < projects[j].Name })

	if len(projects) == 0 {
		return nil, fmt.Errorf("no projects found under %s (expected spec.yml or NNN-name directories)", root)
	}
	return projects, nil
}

// Files holds the raw document bytes of one project. Plan and Tasks are
// nil when the files do not exist yet.
type Files struct {
	Spec  []byte
	Plan  []byte
	Tasks []byte
}

// ReadFiles loads the project's document files. A missing spec.yml is an
// error; missing plan.yml or tasks.yml simply means derivation has not run.
func (p Project) ReadFiles() (*Files, error) {
	spec, err := os.ReadFile(filepath.Join(p.Dir, SpecFilename))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", SpecFilename, err)
	}

	files := &Files{Spec: spec}
	if data, err := os.ReadFile(filepath.Join(p.Dir, PlanFilename)); err == nil {
		files.Plan = data
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read %s: %w", PlanFilename, err)
	}
	if data, err := os.ReadFile(filepath.Join(p.Dir, TasksFilename)); err == nil {
		files.Tasks = data
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read %s: %w", TasksFilename, err)
	}
	return files, nil
}

// ContentHash fingerprints the full document set. Any byte change in any
// document changes the hash, which is what invalidates cached results.
func (f *Files) ContentHash() string {
	h := sha256.New()
	for _, data := range [][]byte{f.Spec, f.Plan, f.Tasks} {
		var n [8]byte
		binary.LittleEndian.PutUint64(n[:], uint64(len(data)))
		h.Write(n[:])
		h.Write(data)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// WritePlan atomically replaces the project's plan.yml.
func (p Project) WritePlan(data []byte) error {
	return writeAtomic(filepath.Join(p.Dir, PlanFilename), data)
}

// WriteTasks atomically replaces the project's tasks.yml.
func (p Project) WriteTasks(data []byte) error {
	return writeAtomic(filepath.Join(p.Dir, TasksFilename), data)
}

// writeAtomic writes via a temp file and rename so a crashed run never
// leaves a half-written document behind.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".specc-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
