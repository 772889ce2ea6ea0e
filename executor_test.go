package shaderjob

import (
	"bytes"
	"errors"
	"log/slog"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/gogpu/shaderjob/internal/registry"
)

// fakeSession records what the glue binds and runs kernel on Dispatch.
type fakeSession struct {
	buffers  map[string][]byte
	access   map[string]Access
	ints     map[string]int32
	floats   map[string]float32
	size     Dims
	groups   Dims
	kernel   func(s *fakeSession)
	released int
}

func (s *fakeSession) BindBuffer(name string, data []byte, access Access) error {
	s.buffers[name] = append([]byte(nil), data...)
	s.access[name] = access
	return nil
}

func (s *fakeSession) SetInt32(name string, v int32)     { s.ints[name] = v }
func (s *fakeSession) SetFloat32(name string, v float32) { s.floats[name] = v }
func (s *fakeSession) SetDispatchSize(x, y, z int)       { s.size = Dims{x, y, z} }

func (s *fakeSession) ReadBuffer(name string) ([]byte, error) {
	if s.access[name] != ReadWrite {
		return nil, errors.New("buffer is not writable")
	}
	return s.buffers[name], nil
}

func (s *fakeSession) Release() { s.released++ }

func (s *fakeSession) Dispatch(groups Dims) error {
	s.groups = groups
	if s.kernel != nil {
		s.kernel(s)
	}
	return nil
}

type fakeDevice struct {
	kernel   func(s *fakeSession)
	sessions []*fakeSession
	sources  []string
}

func (d *fakeDevice) NewSession(label, source string) (Session, error) {
	s := &fakeSession{
		buffers: map[string][]byte{},
		access:  map[string]Access{},
		ints:    map[string]int32{},
		floats:  map[string]float32{},
		kernel:  d.kernel,
	}
	d.sessions = append(d.sessions, s)
	d.sources = append(d.sources, source)
	return s, nil
}

// scaleBinding is what the generator emits for
//
//	func(a []float32, b []float32, k float32, id shaderjob.ID) { b[id.X] = a[id.X] * k }
func scaleBinding(gen uint64, extent Dims) Binding {
	return Binding{
		Key:        "shaderjob/0",
		Generation: gen,
		Buffers:    2,
		Extent:     extent,
		Bind: func(b Binder, args []any) error {
			a, err := Float32Slice(0, args, 0)
			if err != nil {
				return err
			}
			out, err := Float32Slice(0, args, 1)
			if err != nil {
				return err
			}
			k, err := Float32Arg(0, args, 2)
			if err != nil {
				return err
			}
			if err := b.BindBuffer("a", Bytes(a), ReadOnly); err != nil {
				return err
			}
			if err := b.BindBuffer("b", Bytes(out), ReadWrite); err != nil {
				return err
			}
			b.SetFloat32("k", k)
			b.SetDispatchSize(extent.X, extent.Y, extent.Z)
			return nil
		},
		Update: func(b Binder, args []any) error {
			defer b.Release()
			out, err := Float32Slice(0, args, 1)
			if err != nil {
				return err
			}
			return ReadInto(b, "b", out)
		},
		Groups: func() Dims { return extent.GroupCount() },
	}
}

// scaleKernel plays the part of the GPU for scaleBinding.
func scaleKernel(s *fakeSession) {
	a := make([]float32, len(s.buffers["a"])/4)
	Decode(s.buffers["a"], a)
	for i := range a {
		a[i] *= s.floats["k"]
	}
	s.buffers["b"] = Bytes(a)
}

type fixture struct {
	device *fakeDevice
	reg    *Registry
	path   string
	file   string
}

// newFixture registers one artifact for the given call site.
func newFixture(t *testing.T, file string, line int, gen uint64, extent Dims) *fixture {
	t.Helper()
	f := &fixture{
		device: &fakeDevice{kernel: scaleKernel},
		reg:    NewRegistry(),
		path:   filepath.Join(t.TempDir(), "registry.json"),
		file:   file,
	}
	f.reg.Register(0, scaleBinding(gen, extent))

	doc := registry.New()
	doc.Prefix = "shaderjob"
	doc.Generation = gen
	doc.Put(registry.Entry{
		Location:   registry.Location{File: "shaderjob/" + filepath.Base(file), Line: line},
		ID:         0,
		Text:       "func(a []float32, b []float32, k float32, id shaderjob.ID) { b[id.X] = a[id.X] * k }",
		Dims:       extent.Array(),
		Generation: gen,
	})
	if err := registry.Save(f.path, doc); err != nil {
		t.Fatal(err)
	}
	return f
}

func (f *fixture) executor(t *testing.T, loader KernelLoader) *Executor {
	t.Helper()
	if loader == nil {
		loader = LoaderFunc(func(key string) (string, error) { return "// kernel " + key, nil })
	}
	e, err := NewExecutor(Options{Registry: f.reg, Loader: loader, Device: f.device, Locations: f.path})
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func scale(a []float32, b []float32, k float32, id ID) { b[id.X] = a[id.X] * k }

func TestExecutorRun(t *testing.T) {
	_, file, line, _ := runtime.Caller(0)
	f := newFixture(t, file, line+6, 1, Dims{4, 1, 1})
	e := f.executor(t, nil)

	a := []float32{1, 2, 3, 4}
	b := make([]float32, 4)
	err := e.For(4).Run(a, b, float32(2), scale)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for i, want := range []float32{2, 4, 6, 8} {
		if b[i] != want {
			t.Errorf("b[%d] = %v, want %v", i, b[i], want)
		}
	}
	s := f.device.sessions[0]
	if s.groups != (Dims{1, 1, 1}) {
		t.Errorf("groups = %v, want (1, 1, 1)", s.groups)
	}
	if s.size != (Dims{4, 1, 1}) {
		t.Errorf("dispatch size = %v, want (4, 1, 1)", s.size)
	}
	if s.released != 1 {
		t.Errorf("session released %d times, want 1", s.released)
	}
	if f.device.sources[0] != "// kernel shaderjob/0" {
		t.Errorf("source = %q", f.device.sources[0])
	}
}

func TestExecutorRuntimeExtent(t *testing.T) {
	_, file, line, _ := runtime.Caller(0)
	f := newFixture(t, file, line+6, 1, Dims{4, 1, 1})
	e := f.executor(t, nil)

	a := make([]float32, 130)
	b := make([]float32, 130)
	if err := e.For(len(a)).Run(a, b, float32(1), scale); err != nil {
		t.Fatalf("Run: %v", err)
	}
	s := f.device.sessions[0]
	if s.size != (Dims{130, 1, 1}) {
		t.Errorf("dispatch size = %v, want (130, 1, 1)", s.size)
	}
	if s.groups != (Dims{3, 1, 1}) {
		t.Errorf("groups = %v, want (3, 1, 1)", s.groups)
	}
}

func TestExecutorRuntimeExtentRankMismatch(t *testing.T) {
	orig := Logger()
	t.Cleanup(func() { SetLogger(orig) })
	var buf bytes.Buffer
	SetLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn})))

	_, file, line, _ := runtime.Caller(0)
	f := newFixture(t, file, line+5, 1, Dims{4, 1, 1})
	e := f.executor(t, nil)

	a := make([]float32, 4)
	if err := e.For(2, 2).Run(a, make([]float32, 4), float32(1), scale); err != nil {
		t.Fatalf("Run: %v", err)
	}
	s := f.device.sessions[0]
	if s.size != (Dims{4, 1, 1}) || s.groups != (Dims{1, 1, 1}) {
		t.Errorf("dispatch = size %v groups %v, want the compiled (4, 1, 1) in one group", s.size, s.groups)
	}
	if out := buf.String(); !strings.Contains(out, "runtime extent ignored") || !strings.Contains(out, "level=WARN") {
		t.Errorf("log output = %q, want a warning about the ignored extent", out)
	}
}

func TestExecutorMissingArtifact(t *testing.T) {
	_, file, line, _ := runtime.Caller(0)
	f := newFixture(t, file, line+100, 1, Dims{4, 1, 1})
	e := f.executor(t, nil)

	err := e.For(4).Run([]float32{1}, []float32{0}, float32(1), scale)
	if !errors.Is(err, ErrMissingArtifact) {
		t.Fatalf("err = %v, want ErrMissingArtifact", err)
	}
	if len(f.device.sessions) != 0 {
		t.Error("a session was opened for a missing artifact")
	}
}

func TestExecutorNoBinding(t *testing.T) {
	_, file, line, _ := runtime.Caller(0)
	f := newFixture(t, file, line+4, 1, Dims{4, 1, 1})
	f.reg = NewRegistry()
	e := f.executor(t, nil)
	err := e.For(4).Run([]float32{1}, []float32{0}, float32(1), scale)
	if !errors.Is(err, ErrNoBinding) {
		t.Fatalf("err = %v, want ErrNoBinding", err)
	}
}

func TestExecutorStaleBinding(t *testing.T) {
	_, file, line, _ := runtime.Caller(0)
	f := newFixture(t, file, line+4, 2, Dims{4, 1, 1})
	f.reg.Register(0, scaleBinding(1, Dims{4, 1, 1}))
	e := f.executor(t, nil)
	err := e.For(4).Run([]float32{1}, []float32{0}, float32(1), scale)
	if !errors.Is(err, ErrStaleBinding) {
		t.Fatalf("err = %v, want ErrStaleBinding", err)
	}
}

func TestExecutorResourceLoad(t *testing.T) {
	_, file, line, _ := runtime.Caller(0)
	f := newFixture(t, file, line+5, 1, Dims{4, 1, 1})
	notFound := errors.New("not found")
	e := f.executor(t, LoaderFunc(func(string) (string, error) { return "", notFound }))

	err := e.For(4).Run([]float32{1}, []float32{0}, float32(1), scale)
	if !errors.Is(err, ErrResourceLoad) || !errors.Is(err, notFound) {
		t.Fatalf("err = %v, want ErrResourceLoad wrapping the loader error", err)
	}
}

func TestExecutorBadArgs(t *testing.T) {
	_, file, line, _ := runtime.Caller(0)
	f := newFixture(t, file, line+3, 1, Dims{4, 1, 1})
	e := f.executor(t, nil)
	err := e.For(4).Run([]float32{1}, "oops", float32(1), scale)
	if !errors.Is(err, ErrInvalidKernelArgs) {
		t.Fatalf("err = %v, want ErrInvalidKernelArgs", err)
	}
	if f.device.sessions[0].released != 1 {
		t.Error("session not released after a bind error")
	}
}

func TestExecutorKernelCache(t *testing.T) {
	_, file, line, _ := runtime.Caller(0)
	f := newFixture(t, file, line+9, 1, Dims{1, 1, 1})
	loads := 0
	e := f.executor(t, LoaderFunc(func(string) (string, error) {
		loads++
		return "k", nil
	}))
	for i := 0; i < 3; i++ {
		if err := e.RunAt(file, line+9, One, []float32{1}, []float32{0}, float32(1), scale); err != nil {
			t.Fatal(err)
		}
	}
	if loads != 1 {
		t.Errorf("kernel loaded %d times, want 1", loads)
	}
}

func TestExecutorCPUFallback(t *testing.T) {
	e, err := NewExecutor(Options{CPUFallback: true})
	if err != nil {
		t.Fatal(err)
	}
	a := []float32{1, 2, 3}
	b := make([]float32, 3)
	if err := e.For(3).Run(a, b, float32(3), scale); err != nil {
		t.Fatal(err)
	}
	if b[2] != 9 {
		t.Errorf("b = %v, want [3 6 9]", b)
	}

	if err := e.For(3).Run(a, b, 2, scale); err != nil || b[0] != 2 {
		t.Errorf("untyped constant: b = %v, err = %v", b, err)
	}

	var seen []ID
	if err := e.For(2, 2).Run(func(id ID) { seen = append(seen, id) }); err != nil {
		t.Fatal(err)
	}
	want := []ID{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}, {1, 1, 0}}
	if len(seen) != len(want) {
		t.Fatalf("ids = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("ids[%d] = %v, want %v", i, seen[i], want[i])
		}
	}

	if err := e.For(1).Run(a, scale); !errors.Is(err, ErrInvalidKernelArgs) {
		t.Errorf("short args err = %v, want ErrInvalidKernelArgs", err)
	}
}

func TestNewExecutorNoDevice(t *testing.T) {
	if _, err := NewExecutor(Options{}); !errors.Is(err, ErrNoDevice) {
		t.Fatalf("err = %v, want ErrNoDevice", err)
	}
}

func TestExecutorCPUWorkers(t *testing.T) {
	e, err := NewExecutor(Options{CPUFallback: true, CPUWorkers: 4})
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()

	const w, h = 20, 11
	grid := make([]int32, w*h)
	err = e.For(w, h).Run(grid, func(g []int32, id ID) {
		g[int(id.Y)*w+int(id.X)] = int32(id.Y*100 + id.X)
	})
	if err != nil {
		t.Fatal(err)
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if got, want := grid[y*w+x], int32(y*100+x); got != want {
				t.Fatalf("grid[%d][%d] = %d, want %d", y, x, got, want)
			}
		}
	}
}
