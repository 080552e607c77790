package sandbox

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/google/uuid"
)

// ownerLockSuffix marks the lock file held by the process owning the
// directory of the same name under the base dir.
const ownerLockSuffix = ".lock"

// ownerLock is an exclusive flock on <base>/<owner>.lock, held for as long
// as a Registry uses <base>/<owner>. The lock dies with the process, so a
// free lock means the owner is gone.
type ownerLock struct {
	name string
	path string
	file *os.File
}

// acquireOwner creates a uniquely named owner directory under baseDir and
// locks it. The lock file is locked under a temporary name and renamed into
// place, so a visible lock file is always held.
func acquireOwner(baseDir string) (*ownerLock, error) {
	name := fmt.Sprintf("proc-%d-%s", os.Getpid(), strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	path := filepath.Join(baseDir, name+ownerLockSuffix)
	tmp := path + ".tmp"

	f, err := os.OpenFile(tmp, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("creating owner lock: %w", err)
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return nil, fmt.Errorf("locking owner lock: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return nil, fmt.Errorf("publishing owner lock: %w", err)
	}
	if err := os.Mkdir(filepath.Join(baseDir, name), 0o755); err != nil {
		_ = os.Remove(path)
		_ = f.Close()
		return nil, fmt.Errorf("creating owner dir: %w", err)
	}
	return &ownerLock{name: name, path: path, file: f}, nil
}

// release drops the lock. The owner directory is removed when empty, and
// the lock file with it; anything left behind is swept as an orphan.
func (l *ownerLock) release(baseDir string) error {
	if l.file == nil {
		return nil
	}
	if err := os.Remove(filepath.Join(baseDir, l.name)); err == nil {
		_ = os.Remove(l.path)
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// lockHeld reports whether another open file description holds the lock at
// path. A missing file is not held.
func lockHeld(path string) (bool, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	defer f.Close()

	err = syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
	if errors.Is(err, syscall.EWOULDBLOCK) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	_ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
	return false, nil
}
