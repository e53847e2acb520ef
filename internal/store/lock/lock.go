// Package lock implements the advisory global write lock for the registry.
// A single well-known file under the registry root records the holder's
// identity; acquisition is an atomic claim on that file, with a liveness
// probe against the holder's pid so locks left behind by dead processes can
// be reclaimed. Read paths never touch this lock.
package lock

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/quarrylabs/skillstore/internal/log"
)

const (
	lockFilename = "registry.lock"
	pollInterval = 50 * time.Millisecond
)

// ErrTimeout is returned when Acquire gives up waiting for the lock.
// It is distinct from backend failures so callers can choose to retry.
var ErrTimeout = errors.New("timeout waiting for global lock")

// ErrNotHeld is returned when Release is called on a lock this process does
// not hold.
var ErrNotHeld = errors.New("global lock not held by this process")

// Holder identifies the current lock owner.
type Holder struct {
	PID        int       `json:"pid"`
	Hostname   string    `json:"hostname"`
	Token      string    `json:"token"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// Stale reports whether the holder's process no longer exists.
func (h Holder) Stale() bool {
	return !processAlive(h.PID)
}

// Lock is an owned handle on the global write lock.
type Lock struct {
	path   string
	holder Holder
}

// Coordinator manages acquisition of the global lock for one registry root.
type Coordinator struct {
	root string
}

// NewCoordinator creates a coordinator for the given registry root directory.
func NewCoordinator(root string) *Coordinator {
	return &Coordinator{root: root}
}

func (c *Coordinator) lockPath() string {
	return filepath.Join(c.root, lockFilename)
}

// TryAcquire attempts a single non-blocking claim.
// Returns (nil, nil) when the lock is held by a live process.
func (c *Coordinator) TryAcquire() (*Lock, error) {
	if err := os.MkdirAll(c.root, 0o755); err != nil {
		return nil, fmt.Errorf("creating registry root: %w", err)
	}

	path := c.lockPath()
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if errors.Is(err, os.ErrExist) {
		// Claimed. Reclaim only if the holder is dead.
		holder, statErr := c.readHolder()
		if statErr != nil {
			// Unreadable lock file: treat as held, another process may be
			// mid-write of the holder record.
			return nil, nil
		}
		if !holder.Stale() {
			return nil, nil
		}
		log.Warn(log.CatLock, "reclaiming stale lock", "pid", holder.PID, "acquiredAt", holder.AcquiredAt)
		if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			return nil, fmt.Errorf("removing stale lock: %w", rmErr)
		}
		f, err = os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if errors.Is(err, os.ErrExist) {
			// Lost the race to another reclaimer.
			return nil, nil
		}
	}
	if err != nil {
		return nil, fmt.Errorf("claiming lock file: %w", err)
	}

	hostname, _ := os.Hostname()
	holder := Holder{
		PID:        os.Getpid(),
		Hostname:   hostname,
		Token:      uuid.NewString(),
		AcquiredAt: time.Now().UTC(),
	}
	data, err := json.Marshal(holder)
	if err == nil {
		_, err = f.Write(data)
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("writing lock holder: %w", err)
	}

	log.Debug(log.CatLock, "acquired global lock", "path", path, "token", holder.Token)
	return &Lock{path: path, holder: holder}, nil
}

// Acquire blocks until the lock is obtained or the timeout elapses.
// A zero timeout makes exactly one attempt.
func (c *Coordinator) Acquire(timeout time.Duration) (*Lock, error) {
	deadline := time.Now().Add(timeout)
	for {
		l, err := c.TryAcquire()
		if err != nil {
			return nil, err
		}
		if l != nil {
			return l, nil
		}
		if time.Now().After(deadline) {
			log.Warn(log.CatLock, "lock acquisition timed out", "timeout", timeout)
			return nil, ErrTimeout
		}
		time.Sleep(pollInterval)
	}
}

// Status returns the current holder without acquiring, or nil when unheld.
func (c *Coordinator) Status() (*Holder, error) {
	holder, err := c.readHolder()
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &holder, nil
}

// Break forcibly removes the lock file. Use only against a confirmed-stale
// holder; the removed holder is returned for logging.
func (c *Coordinator) Break() (*Holder, error) {
	holder, err := c.Status()
	if err != nil {
		return nil, err
	}
	if holder == nil {
		return nil, nil
	}
	log.Warn(log.CatLock, "breaking lock", "pid", holder.PID, "stale", holder.Stale())
	if err := os.Remove(c.lockPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("removing lock file: %w", err)
	}
	return holder, nil
}

func (c *Coordinator) readHolder() (Holder, error) {
	data, err := os.ReadFile(c.lockPath())
	if err != nil {
		return Holder{}, err
	}
	var holder Holder
	if err := json.Unmarshal(data, &holder); err != nil {
		return Holder{}, fmt.Errorf("parsing lock holder: %w", err)
	}
	return holder, nil
}

// Holder returns the identity recorded when the lock was acquired.
func (l *Lock) Holder() Holder {
	return l.holder
}

// Release removes the lock file if this process still owns it.
func (l *Lock) Release() error {
	data, err := os.ReadFile(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return ErrNotHeld
	}
	if err != nil {
		return fmt.Errorf("reading lock file: %w", err)
	}
	var holder Holder
	if err := json.Unmarshal(data, &holder); err == nil && holder.Token != l.holder.Token {
		// Someone reclaimed the lock out from under us.
		return ErrNotHeld
	}
	if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing lock file: %w", err)
	}
	log.Debug(log.CatLock, "released global lock", "token", l.holder.Token)
	return nil
}

// processAlive probes a pid with signal 0.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	// EPERM means the process exists but belongs to another user.
	return errors.Is(err, syscall.EPERM)
}
