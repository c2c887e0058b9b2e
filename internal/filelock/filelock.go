// Package filelock serializes writers of permit documents kept on disk.
//
// Every document path has a sibling "<path>.lock" file guarded with an
// advisory flock, so several ptw processes (a CLI edit and a running watch,
// say) never interleave a read-modify-write of the same permit. Writes go
// through a temp file and rename so readers never observe a torn document.
package filelock

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// DocumentMode is the permission applied to every written document.
const DocumentMode fs.FileMode = 0644

// Lock is an exclusive advisory lock on one document.
type Lock struct {
	flock *flock.Flock
	path  string
}

// For returns the lock guarding the document at path. The lock file itself is
// path + ".lock".
func For(path string) *Lock {
	lockPath := path + ".lock"
	return &Lock{flock: flock.New(lockPath), path: lockPath}
}

// Path returns the lock file path.
func (l *Lock) Path() string { return l.path }

// Lock blocks until the lock is held.
func (l *Lock) Lock() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}
	if err := l.flock.Lock(); err != nil {
		return fmt.Errorf("acquire lock %s: %w", l.path, err)
	}
	return nil
}

// TryLock acquires the lock without waiting. It reports false when another
// holder has it.
func (l *Lock) TryLock() (bool, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return false, fmt.Errorf("create lock directory: %w", err)
	}
	ok, err := l.flock.TryLock()
	if err != nil {
		return false, fmt.Errorf("try lock %s: %w", l.path, err)
	}
	return ok, nil
}

// Unlock releases the lock.
func (l *Lock) Unlock() error {
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("release lock %s: %w", l.path, err)
	}
	return nil
}

// WriteAtomic replaces the document at path with data. The parent directory
// is created when missing. On failure the previous document is left as it was.
func WriteAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".ptw-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, DocumentMode); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename into %s: %w", path, err)
	}
	committed = true
	return nil
}

// LockAndWrite holds the document lock while replacing it.
func LockAndWrite(path string, data []byte) error {
	l := For(path)
	if err := l.Lock(); err != nil {
		return err
	}
	defer l.Unlock()
	return WriteAtomic(path, data)
}

// Update runs a read-modify-write of the document under its lock. fn receives
// the current content, or nil when the document does not exist yet. Returning
// a nil slice from fn leaves the document untouched.
func Update(path string, fn func(current []byte) ([]byte, error)) error {
	l := For(path)
	if err := l.Lock(); err != nil {
		return err
	}
	defer l.Unlock()

	current, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("read %s: %w", path, err)
	}
	next, err := fn(current)
	if err != nil {
		return err
	}
	if next == nil {
		return nil
	}
	return WriteAtomic(path, next)
}

// LockAndRemove deletes the document under its lock. It reports false when
// there was nothing to delete. The lock file stays behind for later writers.
func LockAndRemove(path string) (bool, error) {
	l := For(path)
	if err := l.Lock(); err != nil {
		return false, err
	}
	defer l.Unlock()

	err := os.Remove(path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("remove %s: %w", path, err)
	}
}
