// Package registry holds the persistent mapping from launch call locations to
// artifact ids.
//
// The registry is the single source of truth for which artifacts exist. Each
// live location owns exactly one id; ids are reused after their location is
// collected, always picking the smallest free one.
package registry

import (
	"errors"
	"fmt"
	"sort"

	"github.com/gogpu/shaderjob/internal/atomicfile"
)

// Version is the current document format.
const Version = 1

// ErrVersion is returned when a registry document has an unknown version.
var ErrVersion = errors.New("registry: unsupported document version")

// Entry is the persisted record of one launch call.
type Entry struct {
	Location
	ID   int    `json:"id"`
	Text string `json:"text"`
	// Dims is the literal extent of the call, [x, y, z].
	Dims [3]int `json:"dims"`
	// Generation is the registry generation the artifact was written at.
	Generation uint64 `json:"generation"`
}

// Registry is an in-memory registry document. It is not safe for
// concurrent use.
type Registry struct {
	// Prefix is the project prefix location file names start with.
	Prefix string
	// Generation increases every time a pass changes the document.
	Generation uint64

	entries map[string]Entry
}

type document struct {
	Version    int     `json:"version"`
	Prefix     string  `json:"prefix,omitempty"`
	Generation uint64  `json:"generation"`
	Entries    []Entry `json:"entries"`
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{entries: make(map[string]Entry)}
}

// Len returns the number of entries.
func (r *Registry) Len() int { return len(r.entries) }

// Lookup returns the entry at loc.
func (r *Registry) Lookup(loc Location) (Entry, bool) {
	e, ok := r.entries[loc.Key()]
	return e, ok
}

// Put inserts or replaces the entry at e.Location.
func (r *Registry) Put(e Entry) {
	r.entries[e.Key()] = e
}

// Delete removes the entry at loc and returns it.
func (r *Registry) Delete(loc Location) (Entry, bool) {
	k := loc.Key()
	e, ok := r.entries[k]
	if ok {
		delete(r.entries, k)
	}
	return e, ok
}

// Entries returns all entries ordered by file and line.
func (r *Registry) Entries() []Entry {
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	sortEntries(out)
	return out
}

// InFile returns the entries whose location is in file, ordered by line.
func (r *Registry) InFile(file string) []Entry {
	var out []Entry
	for _, e := range r.entries {
		if SameFile(e.File, file) {
			out = append(out, e)
		}
	}
	sortEntries(out)
	return out
}

// Files returns the distinct location files, sorted.
func (r *Registry) Files() []string {
	seen := make(map[string]bool)
	var out []string
	for _, e := range r.Entries() {
		k := foldCase(e.File)
		if !seen[k] {
			seen[k] = true
			out = append(out, e.File)
		}
	}
	return out
}

// IDs returns the ids in use, ascending.
func (r *Registry) IDs() []int {
	ids := make([]int, 0, len(r.entries))
	for _, e := range r.entries {
		ids = append(ids, e.ID)
	}
	sort.Ints(ids)
	return ids
}

// FreeID returns the smallest non-negative id no entry uses.
func (r *Registry) FreeID() int {
	taken := make(map[int]bool, len(r.entries))
	for _, e := range r.entries {
		taken[e.ID] = true
	}
	id := 0
	for taken[id] {
		id++
	}
	return id
}

// Clone returns a deep copy of r.
func (r *Registry) Clone() *Registry {
	c := &Registry{
		Prefix:     r.Prefix,
		Generation: r.Generation,
		entries:    make(map[string]Entry, len(r.entries)),
	}
	for k, e := range r.entries {
		c.entries[k] = e
	}
	return c
}

// Resolve finds the entry for a call site reported by the runtime. file may
// be an absolute path on the build machine or a trimmed module path. An exact
// normalized match wins; otherwise the entry on the same line whose
// root-relative path is the longest suffix of file is used.
func (r *Registry) Resolve(file string, line int, n Normalizer) (Entry, bool) {
	if n.Prefix == "" {
		n.Prefix = r.Prefix
	}
	if e, ok := r.Lookup(Location{File: n.Normalize(file), Line: line}); ok {
		return e, true
	}
	file = toSlash(file)
	var (
		best    Entry
		bestLen = -1
	)
	for _, e := range r.entries {
		if e.Line != line {
			continue
		}
		rel := n.Relative(e.File)
		if (SameFile(file, rel) || hasSuffixFold(file, "/"+rel)) && len(rel) > bestLen {
			best, bestLen = e, len(rel)
		}
	}
	return best, bestLen >= 0
}

// Load reads the document at path. A missing file yields an empty registry.
func Load(path string) (*Registry, error) {
	var doc document
	ok, err := atomicfile.ReadJSON(path, &doc)
	if err != nil {
		return nil, fmt.Errorf("registry: load %s: %w", path, err)
	}
	r := New()
	if !ok {
		return r, nil
	}
	if doc.Version != Version {
		return nil, fmt.Errorf("%w: %d", ErrVersion, doc.Version)
	}
	r.Prefix = doc.Prefix
	r.Generation = doc.Generation
	for _, e := range doc.Entries {
		r.Put(e)
	}
	return r, nil
}

// Save writes r to path atomically.
func Save(path string, r *Registry) error {
	doc := document{
		Version:    Version,
		Prefix:     r.Prefix,
		Generation: r.Generation,
		Entries:    r.Entries(),
	}
	if err := atomicfile.WriteJSON(path, doc); err != nil {
		return fmt.Errorf("registry: save %s: %w", path, err)
	}
	return nil
}

func sortEntries(es []Entry) {
	sort.Slice(es, func(i, j int) bool {
		if es[i].File != es[j].File {
			return es[i].File < es[j].File
		}
		return es[i].Line < es[j].Line
	})
}
