// Package workspace lays out the per-project code and data directories and
// moves existing site sources into them.
package workspace

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/splax/peephost/internal/domain"
	"github.com/splax/peephost/internal/templates"
)

// Data subdirectories created for every project.
const (
	EnvDir = "env"
	DBDir  = "db"
)

// ErrOutsideRoot is returned when asked to remove a path the manager does not own.
var ErrOutsideRoot = errors.New("workspace: path outside workspace roots")

// Layout is where a project's files live.
type Layout struct {
	ProjectPath string
	DataPath    string
}

// Manager owns project directories under the code and data roots.
type Manager struct {
	projects string
	data     string
}

// New ensures both roots exist and are accessible.
func New(projectsRoot, dataRoot string) (*Manager, error) {
	if projectsRoot == "" || dataRoot == "" {
		return nil, errors.New("workspace roots cannot be empty")
	}
	for _, root := range []string{projectsRoot, dataRoot} {
		if err := os.MkdirAll(root, 0o755); err != nil {
			return nil, fmt.Errorf("create workspace root: %w", err)
		}
	}
	return &Manager{projects: filepath.Clean(projectsRoot), data: filepath.Clean(dataRoot)}, nil
}

// Paths returns the layout for name without touching the filesystem.
func (m *Manager) Paths(name string) Layout {
	return Layout{
		ProjectPath: filepath.Join(m.projects, name),
		DataPath:    filepath.Join(m.data, name),
	}
}

// Prepare creates the project directory and its isolated data directory.
// Existing directories are kept.
func (m *Manager) Prepare(name string) (Layout, error) {
	if name == "" {
		return Layout{}, errors.New("workspace identifier cannot be empty")
	}
	l := m.Paths(name)
	for _, dir := range []string{l.ProjectPath, filepath.Join(l.DataPath, DBDir), filepath.Join(l.DataPath, EnvDir)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return Layout{}, fmt.Errorf("create workspace: %w", err)
		}
	}
	return l, nil
}

// WriteFiles writes rendered files relative to dir.
func (m *Manager) WriteFiles(dir string, files []templates.ConfigFile) error {
	for _, f := range files {
		target := filepath.Join(dir, filepath.FromSlash(f.Path))
		if !within(dir, target) {
			return fmt.Errorf("refusing to write %s outside %s", f.Path, dir)
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return fmt.Errorf("create %s: %w", filepath.Dir(target), err)
		}
		if err := os.WriteFile(target, []byte(f.Content), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", target, err)
		}
	}
	return nil
}

// WriteMirror refreshes the peephost.json mirror next to the project sources.
func (m *Manager) WriteMirror(rec domain.ProjectRecord) error {
	data, err := json.MarshalIndent(rec.Mirror(), "", "  ")
	if err != nil {
		return fmt.Errorf("encode local config: %w", err)
	}
	path := filepath.Join(rec.ProjectPath, domain.LocalConfigFile)
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write local config: %w", err)
	}
	return nil
}

// ReadMirror loads the peephost.json mirror from dir.
func ReadMirror(dir string) (domain.LocalConfig, error) {
	var cfg domain.LocalConfig
	data, err := os.ReadFile(filepath.Join(dir, domain.LocalConfigFile))
	if err != nil {
		return cfg, err
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("decode local config: %w", err)
	}
	return cfg, nil
}

// Contains reports whether path lies strictly inside one of the roots.
func (m *Manager) Contains(path string) bool {
	return within(m.projects, path) || within(m.data, path)
}

// Cleanup removes a project or data directory.
func (m *Manager) Cleanup(path string) error {
	if path == "" {
		return nil
	}
	// Ensure we only remove directories within the configured roots.
	if !m.Contains(path) {
		return fmt.Errorf("refusing to cleanup %s: %w", path, ErrOutsideRoot)
	}
	return os.RemoveAll(path)
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." || rel == "" {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
