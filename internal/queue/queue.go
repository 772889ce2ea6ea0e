// Package queue persists file change notifications between passes so that a
// batch arriving while a pass runs, or before a restart, is processed once.
package queue

import (
	"fmt"
	"sync"

	"golang.org/x/text/cases"

	"github.com/gogpu/shaderjob/internal/atomicfile"
)

// Batch is a set of changed and removed paths.
type Batch struct {
	Updated []string `json:"updated,omitempty"`
	Removed []string `json:"removed,omitempty"`
}

// Empty reports whether b has no paths.
func (b Batch) Empty() bool { return len(b.Updated) == 0 && len(b.Removed) == 0 }

type state struct {
	Pending bool  `json:"pending"`
	Queued  Batch `json:"queued"`
	// InFlight is the batch taken by a running pass. It is folded back into
	// Queued when the queue is reopened after a crash.
	InFlight Batch `json:"in_flight"`
}

// Queue is a durable, deduplicating change queue. Every mutation is saved
// before the call returns. An empty path keeps the queue in memory only.
//
// Queue is safe for concurrent use.
type Queue struct {
	path string

	mu sync.Mutex
	st state
}

// Open loads the queue stored at path, re-arming any batch a previous
// process took but never committed.
func Open(path string) (*Queue, error) {
	q := &Queue{path: path}
	if path == "" {
		return q, nil
	}
	if _, err := atomicfile.ReadJSON(path, &q.st); err != nil {
		return nil, fmt.Errorf("queue: open %s: %w", path, err)
	}
	if !q.st.InFlight.Empty() {
		q.st.Queued.Updated = appendUnique(q.st.Queued.Updated, q.st.InFlight.Updated...)
		q.st.Queued.Removed = appendUnique(q.st.Queued.Removed, q.st.InFlight.Removed...)
		q.st.InFlight = Batch{}
		q.st.Pending = true
		if err := q.save(); err != nil {
			return nil, err
		}
	}
	return q, nil
}

// Append queues paths and marks the queue pending. Paths already queued,
// compared case-insensitively, are not repeated.
func (q *Queue) Append(updated, removed []string) error {
	if len(updated) == 0 && len(removed) == 0 {
		return nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.st.Queued.Updated = appendUnique(q.st.Queued.Updated, updated...)
	q.st.Queued.Removed = appendUnique(q.st.Queued.Removed, removed...)
	q.st.Pending = true
	return q.save()
}

// Pending reports whether a batch is waiting.
func (q *Queue) Pending() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.st.Pending || !q.st.Queued.Empty()
}

// Take moves the queued batch in flight and returns it. It reports false
// when nothing is queued.
func (q *Queue) Take() (Batch, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.st.Pending && q.st.Queued.Empty() {
		return Batch{}, false, nil
	}
	b := q.st.Queued
	q.st.InFlight.Updated = appendUnique(q.st.InFlight.Updated, b.Updated...)
	q.st.InFlight.Removed = appendUnique(q.st.InFlight.Removed, b.Removed...)
	q.st.Queued = Batch{}
	q.st.Pending = false
	if err := q.save(); err != nil {
		return Batch{}, false, err
	}
	return b, true, nil
}

// Commit forgets the in-flight batch after its pass finished.
func (q *Queue) Commit() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.st.InFlight.Empty() {
		return nil
	}
	q.st.InFlight = Batch{}
	return q.save()
}

func (q *Queue) save() error {
	if q.path == "" {
		return nil
	}
	if err := atomicfile.WriteJSON(q.path, q.st); err != nil {
		return fmt.Errorf("queue: save %s: %w", q.path, err)
	}
	return nil
}

func appendUnique(dst []string, paths ...string) []string {
	if len(paths) == 0 {
		return dst
	}
	fold := cases.Fold()
	seen := make(map[string]bool, len(dst)+len(paths))
	for _, p := range dst {
		seen[fold.String(p)] = true
	}
	for _, p := range paths {
		k := fold.String(p)
		if p == "" || seen[k] {
			continue
		}
		seen[k] = true
		dst = append(dst, p)
	}
	return dst
}
