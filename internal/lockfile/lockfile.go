// Package lockfile implements advisory file locks shared between processes.
//
// TryAcquire never waits: contention is reported as ErrAlreadyLocked so the
// caller can skip work someone else is already doing. Acquire waits until the
// lock is free or the context ends. Both remove the backing file on Release;
// the kernel lock, not the file's existence, decides who holds it.
package lockfile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrAlreadyLocked indicates the lock is held by another process.
	ErrAlreadyLocked = errors.New("lock already held")

	// errUnlinked means the locked file was removed by its previous holder
	// between our open and our lock.
	errUnlinked = errors.New("lock file replaced while locking")
)

const (
	// maxReopen bounds how often a lock file that was unlinked under us is
	// reopened before giving up.
	maxReopen = 8

	pollMin = 2 * time.Millisecond
	pollMax = 50 * time.Millisecond
)

// Lock is a held advisory lock.
type Lock struct {
	path string
	f    *os.File
}

// Owner is the observability record a holder writes into its lock file.
type Owner struct {
	PID      int
	Acquired time.Time
}

// TryAcquire takes the lock at path without waiting.
// It returns ErrAlreadyLocked when another holder has it.
func TryAcquire(path string) (*Lock, error) {
	return acquire(context.Background(), path, false)
}

// Acquire takes the lock at path, waiting while another holder has it.
// Waiting ends early with ctx.Err() when ctx is done.
func Acquire(ctx context.Context, path string) (*Lock, error) {
	return acquire(ctx, path, true)
}

func acquire(ctx context.Context, path string, wait bool) (*Lock, error) {
	if path == "" {
		return nil, fmt.Errorf("lock path is empty")
	}

	delay := pollMin
	reopened := 0
	for {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
		if err != nil {
			return nil, err
		}

		err = lockFile(f)
		if err == nil {
			err = checkLinked(f, path)
			if err == nil {
				l := &Lock{path: path, f: f}
				l.writeOwner()
				return l, nil
			}
			_ = unlockFile(f)
		}
		_ = f.Close()

		switch {
		case errors.Is(err, errUnlinked):
			reopened++
			if reopened > maxReopen {
				return nil, fmt.Errorf("lockfile %s: %w", path, err)
			}
			continue
		case !errors.Is(err, ErrAlreadyLocked):
			return nil, err
		case !wait:
			return nil, ErrAlreadyLocked
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		if delay *= 2; delay > pollMax {
			delay = pollMax
		}
	}
}

// checkLinked verifies that path still names the inode we locked.
func checkLinked(f *os.File, path string) error {
	held, err := f.Stat()
	if err != nil {
		return err
	}
	cur, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return errUnlinked
		}
		return err
	}
	if !os.SameFile(held, cur) {
		return errUnlinked
	}
	return nil
}

// Best-effort: the owner record is for operators, not for correctness.
func (l *Lock) writeOwner() {
	now := time.Now()
	_ = l.f.Truncate(0)
	_, _ = l.f.Seek(0, 0)
	_, _ = fmt.Fprintf(l.f, "%d:%.6f", os.Getpid(), float64(now.UnixNano())/1e9)
	_ = l.f.Sync()
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// Release drops the lock and removes its file. It is safe to call more than
// once and never fails: every error on this path is swallowed.
func (l *Lock) Release() {
	if l == nil || l.f == nil {
		return
	}
	// Unlink while still holding the lock; anyone who opened the old inode
	// fails checkLinked and reopens.
	if checkLinked(l.f, l.path) == nil {
		_ = os.Remove(l.path)
	}
	_ = unlockFile(l.f)
	_ = l.f.Close()
	l.f = nil
}

// Probe reports whether some process currently holds the lock at path.
// A missing file is not held. Where the kernel lock table is readable Probe
// only reads it. Elsewhere Probe takes the lock for an instant, and a
// TryAcquire racing that instant is refused.
func Probe(path string) (bool, error) {
	if held, ok := probeLockTable(path); ok {
		return held, nil
	}
	return probeByLocking(path)
}

func probeByLocking(path string) (bool, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	defer f.Close()

	if err := lockFile(f); err != nil {
		if errors.Is(err, ErrAlreadyLocked) {
			return true, nil
		}
		return false, err
	}
	_ = unlockFile(f)
	return false, nil
}

// ReadOwner parses the "<pid>:<unix seconds>" record in a lock file.
func ReadOwner(path string) (Owner, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Owner{}, err
	}
	pidStr, tsStr, ok := strings.Cut(strings.TrimSpace(string(data)), ":")
	if !ok {
		return Owner{}, fmt.Errorf("lockfile %s: no owner record", path)
	}
	pid, err := strconv.Atoi(pidStr)
	if err != nil {
		return Owner{}, fmt.Errorf("lockfile %s: bad pid: %w", path, err)
	}
	secs, err := strconv.ParseFloat(tsStr, 64)
	if err != nil {
		return Owner{}, fmt.Errorf("lockfile %s: bad timestamp: %w", path, err)
	}
	return Owner{PID: pid, Acquired: time.Unix(0, int64(secs*1e9))}, nil
}
