// Package writeback puts regenerated file contents on disk.
package writeback

import (
	"errors"
	"fmt"
	"os"
	"path"
	"sync/atomic"

	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
)

// WriteFile replaces name with data. The write is atomic: content goes to
// a temp file in the same directory first, then is renamed over name. An
// existing file keeps its permissions; a new one gets perm.
func WriteFile(fs billy.Filesystem, name string, data []byte, perm os.FileMode) error {
	dir := path.Dir(name)
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}

	mode := perm
	if info, err := fs.Stat(name); err == nil {
		mode = info.Mode().Perm()
	}

	tmp, tmpName, err := createTemp(fs, dir, mode)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = fs.Remove(tmpName) // best-effort cleanup
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = fs.Remove(tmpName) // best-effort cleanup
		return fmt.Errorf("close temp: %w", err)
	}

	// OpenFile honours the umask, so set the mode explicitly as well.
	if ch, ok := fs.(billy.Chmod); ok {
		if err := ch.Chmod(tmpName, mode); err != nil {
			_ = fs.Remove(tmpName) // best-effort cleanup
			return fmt.Errorf("chmod temp: %w", err)
		}
	}

	if err := fs.Rename(tmpName, name); err != nil {
		_ = fs.Remove(tmpName) // best-effort cleanup
		return fmt.Errorf("rename temp to %s: %w", name, err)
	}
	return nil
}

var tempSeq atomic.Uint64

// createTemp opens a new file in dir with the given mode. Names that are
// already taken are skipped.
func createTemp(fs billy.Filesystem, dir string, mode os.FileMode) (billy.File, string, error) {
	for range 100 {
		name := path.Join(dir, fmt.Sprintf(".lenstree-%d-%d", os.Getpid(), tempSeq.Add(1)))
		f, err := fs.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_EXCL, mode)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return nil, "", err
		}
		return f, name, nil
	}
	return nil, "", fmt.Errorf("no free temp name in %s", dir)
}

// Copy duplicates src into dst, replacing dst atomically.
func Copy(fs billy.Filesystem, src, dst string) error {
	data, err := util.ReadFile(fs, src)
	if err != nil {
		return fmt.Errorf("read %s: %w", src, err)
	}
	perm := os.FileMode(0o644)
	if info, err := fs.Stat(src); err == nil {
		perm = info.Mode().Perm()
	}
	return WriteFile(fs, dst, data, perm)
}

// Remove deletes name. A file that is already gone is not an error.
func Remove(fs billy.Filesystem, name string) error {
	if err := fs.Remove(name); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", name, err)
	}
	return nil
}
