// Package lockmgr provides bounded-wait exclusive locks keyed by storage
// path. The backing store has no compare-and-swap, so every read-modify-write
// sequence runs under one of these locks, held from before the initial load
// until the final write completes. Locks are OS advisory file locks, which
// also serialize writers across processes sharing the data directory.
package lockmgr

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
)

// ErrConflict is returned when a lock cannot be acquired within the
// manager's wait bound. Callers surface it for retry; nothing retries here.
var ErrConflict = errors.New("lock not acquired within wait bound")

const retryInterval = 10 * time.Millisecond

// Manager hands out exclusive leases on string keys. Lock files live in a
// dedicated directory under the data root, one file per key.
type Manager struct {
	dir  string
	wait time.Duration
}

// New creates a manager whose lock files live in dir. wait bounds how long
// Acquire blocks before failing with ErrConflict.
func New(dir string, wait time.Duration) (*Manager, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	return &Manager{dir: dir, wait: wait}, nil
}

// Lease is a held lock. Release is idempotent.
type Lease struct {
	fl       *flock.Flock
	released bool
}

func (l *Lease) Release() {
	if l == nil || l.released {
		return
	}
	l.released = true
	if l.fl != nil {
		_ = l.fl.Unlock()
	}
}

// Acquire takes the exclusive lock for key, waiting at most the manager's
// bound. The caller's context cancels the wait early.
func (m *Manager) Acquire(ctx context.Context, key string) (*Lease, error) {
	fl := flock.New(m.lockPath(key))

	waitCtx, cancel := context.WithTimeout(ctx, m.wait)
	defer cancel()

	locked, err := fl.TryLockContext(waitCtx, retryInterval)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("lock %s: %w", key, ErrConflict)
		}
		return nil, fmt.Errorf("lock %s: %w", key, err)
	}
	if !locked {
		return nil, fmt.Errorf("lock %s: %w", key, ErrConflict)
	}
	return &Lease{fl: fl}, nil
}

// lockPath flattens a storage key into a single lock file name.
func (m *Manager) lockPath(key string) string {
	flat := strings.NewReplacer("/", "__", string(os.PathSeparator), "__", ".", "_").Replace(key)
	return filepath.Join(m.dir, flat+".lock")
}
