// Package backup snapshots the tracker's .beads directory before any
// destructive operation (spec.md §6 names .debussy/backups/ in the
// persisted-state layout without detailing it): a timestamped
// directory under a fixed backup root, a recursive directory copy, and
// a sorted-by-timestamp listing.
package backup

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/tsturo/debussy/internal/logging"
)

// DirName is the backup root under .debussy/.
const DirName = "backups"

// Manager creates and lists .beads snapshots for one repository root.
type Manager struct {
	root string
	log  *logging.Logger
	now  func() time.Time
}

// New creates a Manager rooted at root (the main checkout; .beads and
// .debussy/backups both live directly under it).
func New(root string) *Manager {
	return &Manager{root: root, log: logging.Default("backup"), now: time.Now}
}

// Create snapshots .beads into .debussy/backups/beads_<ts>/ and returns
// the snapshot's path. A missing .beads directory is not an error —
// there is simply nothing yet to protect.
func (m *Manager) Create() (string, error) {
	src := filepath.Join(m.root, ".beads")
	if _, err := os.Stat(src); os.IsNotExist(err) {
		return "", nil
	}

	name := fmt.Sprintf("beads_%s", m.now().UTC().Format("20060102-150405"))
	dst := filepath.Join(m.root, ".debussy", DirName, name)

	if err := copyDir(src, dst); err != nil {
		_ = os.RemoveAll(dst)
		return "", fmt.Errorf("backing up .beads to %s: %w", dst, err)
	}

	m.log.Info("backed up .beads to %s", dst)
	return dst, nil
}

// List returns every backup directory, oldest first.
func (m *Manager) List() ([]string, error) {
	base := filepath.Join(m.root, ".debussy", DirName)
	entries, err := os.ReadDir(base)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading backup directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	paths := make([]string, len(names))
	for i, n := range names {
		paths[i] = filepath.Join(base, n)
	}
	return paths, nil
}

// Prune removes every backup older than maxAge, keeping at least the
// most recent one regardless of age.
func (m *Manager) Prune(maxAge time.Duration) error {
	backups, err := m.List()
	if err != nil {
		return err
	}
	if len(backups) <= 1 {
		return nil
	}

	cutoff := m.now().Add(-maxAge)
	for _, dir := range backups[:len(backups)-1] {
		info, err := os.Stat(dir)
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.RemoveAll(dir); err != nil {
				m.log.Warn("pruning backup %s: %v", dir, err)
			}
		}
	}
	return nil
}

func copyDir(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dst, info.Mode()); err != nil {
		return err
	}

	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		srcPath := filepath.Join(src, entry.Name())
		dstPath := filepath.Join(dst, entry.Name())

		if entry.IsDir() {
			if err := copyDir(srcPath, dstPath); err != nil {
				return err
			}
			continue
		}
		if err := copyFile(srcPath, dstPath); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer srcFile.Close()

	info, err := srcFile.Stat()
	if err != nil {
		return err
	}

	dstFile, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode())
	if err != nil {
		return err
	}
	defer dstFile.Close()

	_, err = io.Copy(dstFile, srcFile)
	return err
}
