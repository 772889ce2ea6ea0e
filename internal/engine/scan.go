package engine

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Scan walks the whole project and runs a pass over every Go file, treating
// registry files that no longer exist as removed.
func (e *Engine) Scan(ctx context.Context) (Report, error) {
	if e.opts.Root == "" {
		return Report{}, errors.New("engine: scan needs a root")
	}
	updated, err := e.sources()
	if err != nil {
		return Report{}, err
	}
	removed, err := e.vanished()
	if err != nil {
		return Report{}, err
	}
	e.log.InfoContext(ctx, "shaderjob: scanning project", "root", e.opts.Root, "files", len(updated), "vanished", len(removed))
	return e.Notify(ctx, updated, removed)
}

// sources lists the Go files under Root the way the go tool would see them.
func (e *Engine) sources() ([]string, error) {
	out, _ := filepath.Abs(e.opts.OutputDir)
	var files []string
	err := filepath.WalkDir(e.opts.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path == e.opts.Root {
				return nil
			}
			base := d.Name()
			if strings.HasPrefix(base, ".") || strings.HasPrefix(base, "_") || base == "testdata" || base == "vendor" {
				return filepath.SkipDir
			}
			if abs, _ := filepath.Abs(path); e.opts.OutputDir != "" && abs == out {
				return filepath.SkipDir
			}
			return nil
		}
		if isGo(path) {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// vanished lists registry files that are no longer on disk.
func (e *Engine) vanished() ([]string, error) {
	reg, err := e.loadRegistry()
	if err != nil {
		return nil, err
	}
	var gone []string
	for _, file := range reg.Files() {
		path := filepath.FromSlash(e.norm.Resolve(file))
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			gone = append(gone, path)
		}
	}
	return gone, nil
}
