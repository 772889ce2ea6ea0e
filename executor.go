package shaderjob

import (
	"errors"
	"fmt"
	"reflect"
	"runtime"
	"strconv"
	"sync"

	"github.com/gogpu/shaderjob/internal/cache"
	"github.com/gogpu/shaderjob/internal/parallel"
	"github.com/gogpu/shaderjob/internal/registry"
)

// Options configures an Executor.
type Options struct {
	// Registry holds the generated bindings. Required unless CPUFallback
	// is set and Device is nil.
	Registry *Registry
	// Loader loads kernel sources by resource key.
	Loader KernelLoader
	// Device runs kernels. When nil, jobs run on the CPU if CPUFallback is
	// set and fail with ErrNoDevice otherwise.
	Device Device
	// Locations is the path of the registry document written by the
	// shaderjob command. It maps call sites to artifact ids.
	Locations string
	// Root and Prefix override how caller file names are matched against
	// the registry. Both are optional.
	Root   string
	Prefix string
	// CPUFallback runs the closure itself, once per invocation id, when no
	// device is configured.
	CPUFallback bool
	// CPUWorkers runs CPU fallback workgroups on that many goroutines.
	// Zero or one runs them in order on the calling goroutine.
	CPUWorkers int
	// CacheSize bounds the number of kernel sources kept in memory.
	// Zero means 64.
	CacheSize int
}

// Executor dispatches launch calls to their precompiled kernels. It is the
// only runtime state: construct one at startup and pass it to the code that
// launches jobs.
//
// Executor is safe for concurrent use; dispatches are synchronous.
type Executor struct {
	reg     *Registry
	loader  KernelLoader
	device  Device
	cpu     bool
	pool    *parallel.Pool
	path    string
	norm    registry.Normalizer
	kernels *cache.Cache[string, string]

	mu   sync.RWMutex
	locs *registry.Registry
}

// NewExecutor returns an executor for opts.
func NewExecutor(opts Options) (*Executor, error) {
	size := opts.CacheSize
	if size <= 0 {
		size = 64
	}
	e := &Executor{
		reg:     opts.Registry,
		loader:  opts.Loader,
		device:  opts.Device,
		cpu:     opts.CPUFallback,
		path:    opts.Locations,
		norm:    registry.Normalizer{Root: opts.Root, Prefix: opts.Prefix},
		kernels: cache.New[string, string](size),
		locs:    registry.New(),
	}
	if e.device == nil {
		if !e.cpu {
			return nil, ErrNoDevice
		}
		if opts.CPUWorkers > 1 {
			e.pool = parallel.NewPool(opts.CPUWorkers)
		}
		return e, nil
	}
	if e.reg == nil {
		return nil, errors.New("shaderjob: executor needs a registry")
	}
	if e.loader == nil {
		return nil, errors.New("shaderjob: executor needs a kernel loader")
	}
	if err := e.Reload(); err != nil {
		return nil, err
	}
	return e, nil
}

// Close stops the CPU workers. The executor must not be used afterwards.
func (e *Executor) Close() {
	if e.pool != nil {
		e.pool.Close()
	}
}

// Reload rereads the registry document.
func (e *Executor) Reload() error {
	if e.path == "" {
		return errors.New("shaderjob: no locations document")
	}
	locs, err := registry.Load(e.path)
	if err != nil {
		return fmt.Errorf("shaderjob: %w", err)
	}
	e.mu.Lock()
	e.locs = locs
	e.mu.Unlock()
	return nil
}

// Job is a launch with an explicit extent.
type Job struct {
	e    *Executor
	dims Dims
}

// For starts a launch over up to three extents.
func (e *Executor) For(extent ...int) Job {
	return Job{e: e, dims: NewDims(extent...)}
}

// Run dispatches the kernel compiled from the closure at the calling line.
// The closure is the last argument; the arguments before it are bound to its
// parameters in order.
func (j Job) Run(args ...any) error {
	_, file, line, _ := runtime.Caller(1)
	return j.e.dispatch(file, line, j.dims, true, args)
}

// Run dispatches a launch without an extent. The kernel runs with the extent
// it was compiled with, (1, 1, 1) unless generated otherwise.
func (e *Executor) Run(args ...any) error {
	_, file, line, _ := runtime.Caller(1)
	return e.dispatch(file, line, One, false, args)
}

// RunAt dispatches the kernel registered for an explicit call site.
func (e *Executor) RunAt(file string, line int, dims Dims, args ...any) error {
	return e.dispatch(file, line, dims, true, args)
}

func (e *Executor) dispatch(file string, line int, dims Dims, explicit bool, args []any) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: missing closure", ErrInvalidKernelArgs)
	}
	fn, args := args[len(args)-1], args[:len(args)-1]
	if e.device == nil {
		return runCPU(e.pool, dims, args, fn)
	}
	site := file + ":" + strconv.Itoa(line)

	e.mu.RLock()
	entry, ok := e.locs.Resolve(file, line, e.norm)
	e.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w %s", ErrMissingArtifact, site)
	}
	b, ok := e.reg.Lookup(entry.ID)
	if !ok {
		return fmt.Errorf("%w: artifact %d for %s", ErrNoBinding, entry.ID, site)
	}
	if b.Generation != entry.Generation {
		return fmt.Errorf("%w: artifact %d for %s was generated at %d, registry is at %d",
			ErrStaleBinding, entry.ID, site, b.Generation, entry.Generation)
	}

	src, err := e.kernels.GetOrLoad(b.Key+"@"+strconv.FormatUint(b.Generation, 10), func() (string, error) {
		return e.loader.LoadKernel(b.Key)
	})
	if err != nil {
		return fmt.Errorf("%w %s: %w", ErrResourceLoad, b.Key, err)
	}
	sess, err := e.device.NewSession(b.Key, src)
	if err != nil {
		return fmt.Errorf("shaderjob: open session for %s: %w", b.Key, err)
	}

	var binder Binder = sess
	groups := b.Groups()
	if explicit {
		// A runtime extent of the same rank replaces the compiled one.
		d := dims.Normalize()
		if d.GroupShape() == b.Extent.Normalize().GroupShape() {
			binder = extentBinder{Session: sess, dims: d}
			groups = d.GroupCount()
		} else {
			Logger().Warn("shaderjob: runtime extent ignored, rank differs from the compiled extent",
				"id", entry.ID, "site", site, "extent", d.String(), "compiled", b.Extent.Normalize().String())
		}
	}
	Logger().Debug("shaderjob: dispatch", "id", entry.ID, "site", site, "groups", groups.String())

	if err := b.Bind(binder, args); err != nil {
		sess.Release()
		return err
	}
	if err := sess.Dispatch(groups); err != nil {
		sess.Release()
		return fmt.Errorf("shaderjob: dispatch %s: %w", b.Key, err)
	}
	return b.Update(binder, args)
}

// extentBinder replaces the compiled dispatch size with the runtime extent.
type extentBinder struct {
	Session
	dims Dims
}

func (b extentBinder) SetDispatchSize(int, int, int) {
	b.Session.SetDispatchSize(b.dims.X, b.dims.Y, b.dims.Z)
}

var idType = reflect.TypeOf(ID{})

// runCPU calls the closure once per invocation id. Without a pool the ids
// are visited x fastest, then y, then z. With a pool each workgroup is one
// task and workgroups run concurrently, as they would on a GPU.
func runCPU(pool *parallel.Pool, dims Dims, args []any, kernel any) error {
	fn := reflect.ValueOf(kernel)
	if fn.Kind() != reflect.Func {
		return fmt.Errorf("%w: last argument is %T, not a closure", ErrInvalidKernelArgs, kernel)
	}
	ft := fn.Type()
	if ft.NumIn() != len(args)+1 || ft.In(len(args)) != idType {
		return fmt.Errorf("%w: closure %s does not take %d arguments and an ID", ErrInvalidKernelArgs, ft, len(args))
	}
	in := make([]reflect.Value, len(args)+1)
	for i, a := range args {
		v, ok := argValue(a, ft.In(i))
		if !ok {
			return fmt.Errorf("%w: argument %d is %T, closure wants %s", ErrInvalidKernelArgs, i, a, ft.In(i))
		}
		in[i] = v
	}
	d := dims.Normalize()
	if pool == nil {
		runRange(fn, in, Dims{}, d)
		return nil
	}

	shape, groups := d.GroupShape(), d.GroupCount()
	tasks := make([]func(), 0, groups.X*groups.Y*groups.Z)
	for gz := 0; gz < groups.Z; gz++ {
		for gy := 0; gy < groups.Y; gy++ {
			for gx := 0; gx < groups.X; gx++ {
				lo := Dims{gx * shape.X, gy * shape.Y, gz * shape.Z}
				hi := Dims{
					min(lo.X+shape.X, d.X),
					min(lo.Y+shape.Y, d.Y),
					min(lo.Z+shape.Z, d.Z),
				}
				tasks = append(tasks, func() {
					runRange(fn, append([]reflect.Value(nil), in...), lo, hi)
				})
			}
		}
	}
	pool.Run(tasks)
	return nil
}

// argValue converts a to want. Numbers convert between kinds so untyped
// constants passed to Run reach scalar parameters.
func argValue(a any, want reflect.Type) (reflect.Value, bool) {
	v := reflect.ValueOf(a)
	switch {
	case !v.IsValid():
		return v, false
	case v.Type().AssignableTo(want):
		return v, true
	case isNumber(v.Kind()) && isNumber(want.Kind()):
		return v.Convert(want), true
	}
	return v, false
}

func isNumber(k reflect.Kind) bool {
	return k >= reflect.Int && k <= reflect.Float64
}

// runRange calls fn for every id in [lo, hi). The last element of in is
// overwritten with the id.
func runRange(fn reflect.Value, in []reflect.Value, lo, hi Dims) {
	last := len(in) - 1
	for z := lo.Z; z < hi.Z; z++ {
		for y := lo.Y; y < hi.Y; y++ {
			for x := lo.X; x < hi.X; x++ {
				in[last] = reflect.ValueOf(ID{X: uint32(x), Y: uint32(y), Z: uint32(z)}) //nolint:gosec // extents are positive ints
				fn.Call(in)
			}
		}
	}
}
