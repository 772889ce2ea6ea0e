package shaderjob

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"
)

func TestFSLoader(t *testing.T) {
	l := FSLoader{FS: fstest.MapFS{
		"3.wgsl": {Data: []byte("kernel 3")},
	}}
	tests := []struct {
		key  string
		want string
		err  error
	}{
		{"shaderjob/3", "kernel 3", nil},
		{"3", "kernel 3", nil},
		{"other/3", "kernel 3", nil},
		{"shaderjob/4", "", fs.ErrNotExist},
	}
	for _, tt := range tests {
		got, err := l.LoadKernel(tt.key)
		if !errors.Is(err, tt.err) {
			t.Errorf("LoadKernel(%q) err = %v, want %v", tt.key, err, tt.err)
			continue
		}
		if got != tt.want {
			t.Errorf("LoadKernel(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}
}

func TestFSLoaderNil(t *testing.T) {
	if _, err := (FSLoader{}).LoadKernel("0"); err == nil {
		t.Error("LoadKernel on an empty loader = nil error")
	}
}

func TestDirLoader(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "0.wgsl"), []byte("k"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := DirLoader(dir).LoadKernel("ns/0")
	if err != nil || got != "k" {
		t.Errorf("LoadKernel = %q, %v", got, err)
	}
}
