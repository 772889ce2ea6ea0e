package shaderjob

import (
	"fmt"
	"io/fs"
	"os"
	"path"
)

// KernelExt is the file extension of generated kernels.
const KernelExt = ".wgsl"

// KernelLoader loads kernel source by resource key.
type KernelLoader interface {
	LoadKernel(key string) (string, error)
}

// FSLoader loads "<id>.wgsl" files from a file system. The namespace part of
// the key is ignored. It works with embed.FS.
type FSLoader struct {
	FS fs.FS
}

// DirLoader returns a loader reading kernels from dir.
func DirLoader(dir string) FSLoader {
	return FSLoader{FS: os.DirFS(dir)}
}

// LoadKernel implements KernelLoader.
func (l FSLoader) LoadKernel(key string) (string, error) {
	if l.FS == nil {
		return "", fmt.Errorf("shaderjob: load %q: no file system", key)
	}
	data, err := fs.ReadFile(l.FS, path.Base(key)+KernelExt)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// LoaderFunc adapts a function to KernelLoader.
type LoaderFunc func(key string) (string, error)

// LoadKernel implements KernelLoader.
func (f LoaderFunc) LoadKernel(key string) (string, error) { return f(key) }
