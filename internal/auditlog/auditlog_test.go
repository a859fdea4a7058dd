package auditlog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"docflow/internal/lockmgr"
)

func newTestLog(t *testing.T) (*Log, string) {
	t.Helper()
	root := t.TempDir()
	locks, err := lockmgr.New(filepath.Join(root, ".locks"), 5*time.Second)
	if err != nil {
		t.Fatalf("lock manager init failed: %v", err)
	}
	return New(root, locks), root
}

func TestAppendFormatsLine(t *testing.T) {
	log, root := newTestLog(t)
	log.now = func() time.Time {
		return time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)
	}

	if err := log.Append(context.Background(), "finance", "DOC_2024_0001 moved from alice to bob"); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(root, "departments", "finance", "logs", "master_log.txt"))
	if err != nil {
		t.Fatalf("read master log: %v", err)
	}
	want := "[2024-03-01T10:30:00Z] DOC_2024_0001 moved from alice to bob\n"
	if string(raw) != want {
		t.Errorf("log line = %q, want %q", raw, want)
	}
}

func TestAppendIsAppendOnly(t *testing.T) {
	log, root := newTestLog(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		if err := log.Append(ctx, "finance", fmt.Sprintf("event %d", i)); err != nil {
			t.Fatalf("Append %d failed: %v", i, err)
		}
	}

	raw, err := os.ReadFile(filepath.Join(root, "departments", "finance", "logs", "master_log.txt"))
	if err != nil {
		t.Fatalf("read master log: %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(raw), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d: %q", len(lines), raw)
	}
	for i, line := range lines {
		if !strings.HasSuffix(line, fmt.Sprintf("event %d", i+1)) {
			t.Errorf("line %d out of order: %q", i, line)
		}
	}
}

func TestAppendConcurrentLinesStayWhole(t *testing.T) {
	log, root := newTestLog(t)
	ctx := context.Background()

	const writers = 10
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if err := log.Append(ctx, "finance", fmt.Sprintf("concurrent event %d", n)); err != nil {
				t.Errorf("Append %d failed: %v", n, err)
			}
		}(i)
	}
	wg.Wait()

	raw, err := os.ReadFile(filepath.Join(root, "departments", "finance", "logs", "master_log.txt"))
	if err != nil {
		t.Fatalf("read master log: %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(raw), "\n"), "\n")
	if len(lines) != writers {
		t.Fatalf("expected %d lines, got %d", writers, len(lines))
	}
	for _, line := range lines {
		if !strings.HasPrefix(line, "[") || !strings.Contains(line, "] concurrent event ") {
			t.Errorf("malformed line: %q", line)
		}
	}
}
