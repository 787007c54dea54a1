package core

// export_lock.go serializes exports on one host with an advisory file lock.
//
// The lock lives next to the published file (output path + ".lock") so its
// location survives restarts. Acquisition never waits: a second exporter gets
// ErrExportBusy immediately. github.com/gofrs/flock picks flock(2) on Unix and
// LockFileEx on Windows; nothing outside this file knows which one ran.
//
// The lock file is created on first use and never removed. Removing it would
// let a later exporter lock a fresh inode while an older holder still has the
// unlinked one.

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
)

// LockSuffix is appended to the output path to name its lock file.
const LockSuffix = ".lock"

// LockPath returns the lock file guarding outputPath.
func LockPath(outputPath string) string {
	return outputPath + LockSuffix
}

// ExportLock is a held export lock. Release it exactly once; extra calls are no-ops.
type ExportLock struct {
	path string
	fl   *flock.Flock

	once sync.Once
	err  error
}

// AcquireExportLock takes the export lock for outputPath without blocking.
//
// It returns ErrExportBusy when another holder (process, goroutine or handle)
// owns the lock. A failure to create or open the lock file is reported as
// ErrExportBusy as well, wrapping the OS error, since no lock was taken.
func AcquireExportLock(outputPath string) (*ExportLock, error) {
	lockPath := LockPath(outputPath)

	if err := os.MkdirAll(filepath.Dir(lockPath), 0o750); err != nil {
		return nil, fmt.Errorf("%w: create lock dir: %w", ErrExportBusy, err)
	}

	fl := flock.New(lockPath)
	locked, err := fl.TryLock()
	if err != nil {
		_ = fl.Close()
		return nil, fmt.Errorf("%w: lock %s: %w", ErrExportBusy, lockPath, err)
	}
	if !locked {
		_ = fl.Close()
		return nil, ErrExportBusy
	}

	return &ExportLock{path: lockPath, fl: fl}, nil
}

// Path returns the lock file path.
func (l *ExportLock) Path() string {
	return l.path
}

// Release unlocks and closes the lock file. The file itself stays on disk.
func (l *ExportLock) Release() error {
	l.once.Do(func() {
		if err := l.fl.Unlock(); err != nil {
			l.err = fmt.Errorf("release export lock %s: %w", l.path, err)
		}
	})
	return l.err
}

// WithExportLock runs fn while holding the export lock for outputPath.
//
// The lock is released on every exit path, including a panic in fn. If fn
// succeeds but the release fails, the release error is returned: the caller
// must not assume the lock is free. If both fail, both errors are joined.
func WithExportLock(outputPath string, fn func() error) (err error) {
	lock, err := AcquireExportLock(outputPath)
	if err != nil {
		return err
	}

	defer func() {
		if relErr := lock.Release(); relErr != nil {
			err = errors.Join(err, relErr)
		}
	}()

	return fn()
}
