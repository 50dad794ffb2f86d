package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
)

// ErrLocked is returned by TryLock when another process holds the lock.
var ErrLocked = errors.New("another anvil run is active in this project")

// Lock is an exclusive advisory lock on the state directory.
type Lock struct {
	file *os.File
}

// AcquireLock blocks until .anvil/locks/run.lock is held.
func AcquireLock(stateDir string) (*Lock, error) {
	return acquire(stateDir, syscall.LOCK_EX)
}

// TryLock acquires the lock without blocking, returning ErrLocked when it is taken.
func TryLock(stateDir string) (*Lock, error) {
	l, err := acquire(stateDir, syscall.LOCK_EX|syscall.LOCK_NB)
	if errors.Is(err, syscall.EWOULDBLOCK) {
		return nil, ErrLocked
	}
	return l, err
}

func acquire(stateDir string, how int) (*Lock, error) {
	locksDir := filepath.Join(stateDir, "locks")
	if err := os.MkdirAll(locksDir, 0o755); err != nil {
		return nil, fmt.Errorf("create locks dir: %w", err)
	}
	file, err := os.OpenFile(filepath.Join(locksDir, "run.lock"), os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	if err := syscall.Flock(int(file.Fd()), how); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("lock run.lock: %w", err)
	}
	return &Lock{file: file}, nil
}

// Release releases the lock. It is safe to call on a nil lock.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	if err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN); err != nil {
		_ = l.file.Close()
		return err
	}
	err := l.file.Close()
	l.file = nil
	return err
}
