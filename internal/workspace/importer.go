package workspace

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

// Placement says where an imported entry ends up.
type Placement string

const (
	PlaceCode Placement = "code"
	PlaceEnv  Placement = "env"
	PlaceDB   Placement = "db"
)

// Classify decides where a top level entry of a source tree belongs.
// Environment files and database files go to isolated storage.
func Classify(name string) Placement {
	switch {
	case strings.HasPrefix(name, ".env"):
		return PlaceEnv
	case strings.HasSuffix(name, ".db"), strings.HasSuffix(name, ".sqlite"), strings.HasSuffix(name, ".sqlite3"):
		return PlaceDB
	default:
		return PlaceCode
	}
}

// Moved records one imported entry. LinkErr is set when an isolated entry
// could not be linked back into the project directory.
type Moved struct {
	Name      string
	Placement Placement
	Dest      string
	LinkErr   error
}

// Import moves every entry of src into the project. Isolated entries are
// symlinked back into the project directory. Existing targets are replaced
// and src is left empty.
func (m *Manager) Import(src string, l Layout) ([]Moved, error) {
	abs, err := filepath.Abs(src)
	if err != nil {
		return nil, fmt.Errorf("resolve source: %w", err)
	}
	for _, dst := range []string{l.ProjectPath, l.DataPath} {
		if abs == filepath.Clean(dst) || within(dst, abs) {
			return nil, fmt.Errorf("source %s is inside the project; run from a separate folder", abs)
		}
	}
	if within(abs, l.ProjectPath) || within(abs, l.DataPath) {
		return nil, fmt.Errorf("source %s contains the project directories", abs)
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("read source: %w", err)
	}

	var moved []Moved
	for _, e := range entries {
		from := filepath.Join(abs, e.Name())
		item := Moved{Name: e.Name(), Placement: Classify(e.Name())}
		switch item.Placement {
		case PlaceEnv:
			item.Dest = filepath.Join(l.DataPath, EnvDir, e.Name())
		case PlaceDB:
			item.Dest = filepath.Join(l.DataPath, DBDir, e.Name())
		default:
			item.Dest = filepath.Join(l.ProjectPath, e.Name())
		}
		if err := move(from, item.Dest); err != nil {
			return moved, fmt.Errorf("move %s: %w", e.Name(), err)
		}
		if item.Placement != PlaceCode {
			link := filepath.Join(l.ProjectPath, e.Name())
			_ = os.Remove(link)
			item.LinkErr = os.Symlink(item.Dest, link)
		}
		moved = append(moved, item)
	}
	return moved, nil
}

func move(from, to string) error {
	if err := os.MkdirAll(filepath.Dir(to), 0o755); err != nil {
		return err
	}
	if err := os.RemoveAll(to); err != nil {
		return err
	}
	err := os.Rename(from, to)
	if err == nil {
		return nil
	}
	if !errors.Is(err, unix.EXDEV) {
		return err
	}
	if err := copyTree(from, to); err != nil {
		_ = os.RemoveAll(to)
		return err
	}
	return os.RemoveAll(from)
}

// copyTree copies across filesystems, keeping modes and symlinks.
func copyTree(from, to string) error {
	return filepath.WalkDir(from, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(from, path)
		if err != nil {
			return err
		}
		target := filepath.Join(to, rel)
		info, err := d.Info()
		if err != nil {
			return err
		}
		switch {
		case d.IsDir():
			return os.MkdirAll(target, info.Mode().Perm())
		case info.Mode()&os.ModeSymlink != 0:
			dest, err := os.Readlink(path)
			if err != nil {
				return err
			}
			return os.Symlink(dest, target)
		default:
			return copyFile(path, target, info.Mode().Perm())
		}
	})
}

func copyFile(from, to string, mode os.FileMode) error {
	in, err := os.Open(from)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(to, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
