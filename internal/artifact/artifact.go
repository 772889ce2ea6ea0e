// Package artifact stores generated kernels and glue files.
package artifact

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/gogpu/shaderjob/internal/atomicfile"
)

// IndexName is the file name of the package index.
const IndexName = "bindings.go"

// KernelName returns the kernel file name of artifact id.
func KernelName(id int) string { return fmt.Sprintf("%d.wgsl", id) }

// GlueName returns the glue file name of artifact id.
func GlueName(id int) string { return fmt.Sprintf("ComputeBinding_%d.go", id) }

// Store holds artifact files by name.
type Store interface {
	// Read returns the stored content. A missing file is fs.ErrNotExist.
	Read(name string) ([]byte, error)
	// Write stores data under name. It reports false and writes nothing
	// when the stored content is already data.
	Write(name string, data []byte) (bool, error)
	// Remove deletes name. Removing a missing file is not an error.
	Remove(name string) error
}

// DirStore keeps artifacts as files in one directory.
type DirStore struct {
	Dir string
}

// Read implements Store.
func (s DirStore) Read(name string) ([]byte, error) {
	return os.ReadFile(filepath.Join(s.Dir, name))
}

// Write implements Store. Files are replaced atomically.
func (s DirStore) Write(name string, data []byte) (bool, error) {
	path := filepath.Join(s.Dir, name)
	if old, err := os.ReadFile(path); err == nil && bytes.Equal(old, data) {
		return false, nil
	}
	if err := atomicfile.WriteFile(path, data, 0o644); err != nil {
		return false, fmt.Errorf("artifact: write %s: %w", name, err)
	}
	return true, nil
}

// Remove implements Store.
func (s DirStore) Remove(name string) error {
	err := os.Remove(filepath.Join(s.Dir, name))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("artifact: remove %s: %w", name, err)
	}
	return nil
}

// MemStore is an in-memory Store that counts mutations.
type MemStore struct {
	mu      sync.Mutex
	files   map[string][]byte
	Writes  int
	Removes int
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{files: make(map[string][]byte)}
}

// Read implements Store.
func (s *MemStore) Read(name string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.files[name]
	if !ok {
		return nil, fs.ErrNotExist
	}
	return bytes.Clone(b), nil
}

// Write implements Store.
func (s *MemStore) Write(name string, data []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.files[name]; ok && bytes.Equal(old, data) {
		return false, nil
	}
	s.files[name] = bytes.Clone(data)
	s.Writes++
	return true, nil
}

// Remove implements Store.
func (s *MemStore) Remove(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.files[name]; ok {
		delete(s.files, name)
		s.Removes++
	}
	return nil
}

// Names returns the stored names, sorted.
func (s *MemStore) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.files))
	for n := range s.files {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
