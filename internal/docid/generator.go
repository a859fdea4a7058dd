// Package docid produces collision-free document identifiers scoped to
// (department, year), in the form DOC_<year>_<NNNN>.
package docid

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"docflow/internal/lockmgr"
	"docflow/internal/store"
)

var idPattern = regexp.MustCompile(`^DOC_(\d{4})_(\d{4,})$`)

// Generator allocates the next identifier for a department. The counter for
// each (department, year) pair is persisted; a directory scan recovers the
// counter only when no persisted value exists yet. The whole
// load-propose-verify-persist sequence runs under the department's documents
// lock, so two concurrent creations can never observe the same counter.
type Generator struct {
	store *store.FileStore
	locks *lockmgr.Manager
	now   func() time.Time
}

func New(st *store.FileStore, locks *lockmgr.Manager) *Generator {
	return &Generator{store: st, locks: locks, now: time.Now}
}

// Next returns a fresh identifier for the department and current year. The
// returned identifier is reserved through the persisted counter before the
// lock is released, so the caller may write the record without re-holding
// the department lock.
func (g *Generator) Next(ctx context.Context, deptID string) (string, error) {
	year := fmt.Sprintf("%04d", g.now().Year())

	lease, err := g.locks.Acquire(ctx, g.store.DocumentsKey(deptID))
	if err != nil {
		return "", err
	}
	defer lease.Release()

	counters, err := g.store.LoadDocCounters(ctx, deptID)
	if err != nil {
		return "", err
	}

	last, ok := counters[year]
	if !ok {
		last, err = g.scanMaxCounter(ctx, deptID, year)
		if err != nil {
			return "", err
		}
	}

	// The persisted counter is authoritative, but a record may have been
	// restored or hand-placed outside this path; verify before committing.
	next := last + 1
	for {
		candidate := Format(year, next)
		exists, err := g.store.DocumentExists(deptID, candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			counters[year] = next
			if err := g.store.SaveDocCounters(ctx, deptID, counters); err != nil {
				return "", err
			}
			return candidate, nil
		}
		next++
	}
}

// scanMaxCounter is the bootstrap fallback: the highest counter among
// existing records for the year, zero when none exist.
func (g *Generator) scanMaxCounter(ctx context.Context, deptID, year string) (int, error) {
	ids, err := g.store.ListDocumentIDs(ctx, deptID)
	if err != nil {
		return 0, err
	}
	maxCounter := 0
	for _, id := range ids {
		matches := idPattern.FindStringSubmatch(id)
		if matches == nil || matches[1] != year {
			continue
		}
		counter, err := strconv.Atoi(matches[2])
		if err != nil {
			continue
		}
		if counter > maxCounter {
			maxCounter = counter
		}
	}
	return maxCounter, nil
}

// Format builds an identifier from a year and counter, zero-padding the
// counter to four digits.
func Format(year string, counter int) string {
	return fmt.Sprintf("DOC_%s_%04d", year, counter)
}
