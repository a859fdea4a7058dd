// Package auditlog maintains the per-department master log: an append-only,
// timestamped, plain-text compliance trail. The log is never rotated,
// truncated, or rewritten; there is no read API.
package auditlog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"docflow/internal/lockmgr"
)

type Log struct {
	root  string
	locks *lockmgr.Manager
	now   func() time.Time
}

func New(root string, locks *lockmgr.Manager) *Log {
	return &Log{root: root, locks: locks, now: time.Now}
}

func (l *Log) logPath(deptID string) string {
	return filepath.Join(l.root, "departments", deptID, "logs", "master_log.txt")
}

// Append writes one timestamped line to the department's master log. The
// append runs under the log's own lock so concurrent appenders never
// interleave partial lines; that lock is independent of any document lock.
func (l *Log) Append(ctx context.Context, deptID, line string) error {
	key := filepath.Join("departments", deptID, "logs", "master_log.txt")
	lease, err := l.locks.Acquire(ctx, key)
	if err != nil {
		return err
	}
	defer lease.Release()

	path := l.logPath(deptID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open master log: %w", err)
	}
	defer file.Close()

	entry := fmt.Sprintf("[%s] %s\n", l.now().Format(time.RFC3339), line)
	if _, err := file.WriteString(entry); err != nil {
		return fmt.Errorf("append master log: %w", err)
	}
	return nil
}
