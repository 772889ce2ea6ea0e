//go:build !nogpu

package native

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/shaderjob"
	"github.com/gogpu/wgpu/hal"
)

// buffer is one storage buffer bound to a session.
type buffer struct {
	name    string
	access  shaderjob.Access
	size    uint64
	buf     hal.Buffer
	staging hal.Buffer
	result  []byte
}

// session holds the resources of one dispatch. Everything it creates is
// destroyed by Release, in reverse order.
type session struct {
	d      *Device
	label  string
	module hal.ShaderModule

	buffers    []*buffer
	byName     map[string]*buffer
	params     uniforms
	dispatched bool
	released   bool
	cleanup    []func()
}

var _ shaderjob.Session = (*session)(nil)

func newSession(d *Device, label string) *session {
	return &session{d: d, label: label, byName: make(map[string]*buffer)}
}

func (s *session) onRelease(f func()) {
	s.cleanup = append(s.cleanup, f)
}

// BindBuffer implements shaderjob.Binder.
func (s *session) BindBuffer(name string, data []byte, access shaderjob.Access) error {
	if s.released {
		return ErrReleased
	}
	if _, dup := s.byName[name]; dup {
		return fmt.Errorf("wgpu: buffer %q bound twice", name)
	}
	device := s.d.device
	b := &buffer{name: name, access: access, size: bufferSize(len(data))}
	buf, err := device.CreateBuffer(&hal.BufferDescriptor{
		Label: s.label + "_" + name, Size: b.size,
		Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("create buffer %q: %w", name, err)
	}
	s.onRelease(func() { device.DestroyBuffer(buf) })
	b.buf = buf
	if len(data) > 0 {
		s.d.queue.WriteBuffer(buf, 0, data)
	}
	if access == shaderjob.ReadWrite {
		staging, err := device.CreateBuffer(&hal.BufferDescriptor{
			Label: s.label + "_" + name + "_staging", Size: b.size,
			Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
		})
		if err != nil {
			return fmt.Errorf("create staging buffer %q: %w", name, err)
		}
		s.onRelease(func() { device.DestroyBuffer(staging) })
		b.staging = staging
		b.result = make([]byte, len(data))
	}
	s.buffers = append(s.buffers, b)
	s.byName[name] = b
	return nil
}

// SetInt32 implements shaderjob.Binder.
func (s *session) SetInt32(name string, v int32) { s.params.setInt32(name, v) }

// SetFloat32 implements shaderjob.Binder.
func (s *session) SetFloat32(name string, v float32) { s.params.setFloat32(name, v) }

// SetDispatchSize implements shaderjob.Binder.
func (s *session) SetDispatchSize(x, y, z int) { s.params.setSize(x, y, z) }

// Dispatch builds the pipeline, runs groups workgroups and copies every
// read-write buffer back to host memory.
func (s *session) Dispatch(groups shaderjob.Dims) error {
	if s.released {
		return ErrReleased
	}
	device, queue := s.d.device, s.d.queue

	params := s.params.bytes()
	ub, err := device.CreateBuffer(&hal.BufferDescriptor{
		Label: s.label + "_params", Size: uint64(len(params)),
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("create uniform buffer: %w", err)
	}
	s.onRelease(func() { device.DestroyBuffer(ub) })
	queue.WriteBuffer(ub, 0, params)

	access := make([]shaderjob.Access, len(s.buffers))
	for i, b := range s.buffers {
		access[i] = b.access
	}
	layout, err := device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: s.label + "_bind_layout", Entries: layoutEntries(access),
	})
	if err != nil {
		return fmt.Errorf("create bind group layout: %w", err)
	}
	s.onRelease(func() { device.DestroyBindGroupLayout(layout) })

	pipeLayout, err := device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label: s.label + "_pipe_layout", BindGroupLayouts: []hal.BindGroupLayout{layout},
	})
	if err != nil {
		return fmt.Errorf("create pipeline layout: %w", err)
	}
	s.onRelease(func() { device.DestroyPipelineLayout(pipeLayout) })

	pipeline, err := device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label: s.label + "_pipeline", Layout: pipeLayout,
		Compute: hal.ComputeState{Module: s.module, EntryPoint: "main"},
	})
	if err != nil {
		return fmt.Errorf("create compute pipeline: %w", err)
	}
	s.onRelease(func() { device.DestroyComputePipeline(pipeline) })

	entries := make([]gputypes.BindGroupEntry, 0, len(s.buffers)+1)
	entries = append(entries, gputypes.BindGroupEntry{
		Binding: 0, Resource: gputypes.BufferBinding{Buffer: ub.NativeHandle(), Offset: 0, Size: uint64(len(params))},
	})
	for i, b := range s.buffers {
		entries = append(entries, gputypes.BindGroupEntry{
			Binding:  uint32(i + 1), //nolint:gosec // binding count is small
			Resource: gputypes.BufferBinding{Buffer: b.buf.NativeHandle(), Offset: 0, Size: b.size},
		})
	}
	bg, err := device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label: s.label + "_bind", Layout: layout, Entries: entries,
	})
	if err != nil {
		return fmt.Errorf("create bind group: %w", err)
	}
	s.onRelease(func() { device.DestroyBindGroup(bg) })

	if err := s.submit(pipeline, bg, groups.Normalize()); err != nil {
		return err
	}
	s.dispatched = true
	return nil
}

func (s *session) submit(pipeline hal.ComputePipeline, bg hal.BindGroup, groups shaderjob.Dims) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	device, queue := s.d.device, s.d.queue

	encoder, err := device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: s.label + "_encoder"})
	if err != nil {
		return fmt.Errorf("create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding(s.label); err != nil {
		return fmt.Errorf("begin encoding: %w", err)
	}
	pass := encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: s.label + "_pass"})
	pass.SetPipeline(pipeline)
	pass.SetBindGroup(0, bg, nil)
	pass.Dispatch(uint32(groups.X), uint32(groups.Y), uint32(groups.Z)) //nolint:gosec // group counts are positive
	pass.End()
	for _, b := range s.buffers {
		if b.staging == nil {
			continue
		}
		encoder.CopyBufferToBuffer(b.buf, b.staging, []hal.BufferCopy{
			{SrcOffset: 0, DstOffset: 0, Size: b.size},
		})
	}
	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("end encoding: %w", err)
	}
	defer device.FreeCommandBuffer(cmdBuf)

	fence, err := device.CreateFence()
	if err != nil {
		return fmt.Errorf("create fence: %w", err)
	}
	defer device.DestroyFence(fence)
	if err := queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1); err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	ok, err := device.Wait(fence, 1, s.d.timeout())
	if err != nil {
		return fmt.Errorf("wait for GPU: %w", err)
	}
	if !ok {
		return ErrTimeout
	}

	for _, b := range s.buffers {
		if b.staging == nil {
			continue
		}
		readback := make([]byte, b.size)
		if err := queue.ReadBuffer(b.staging, 0, readback); err != nil {
			return fmt.Errorf("read back %q: %w", b.name, err)
		}
		copy(b.result, readback)
	}
	shaderjob.Logger().Debug("wgpu: dispatched", "label", s.label, "groups", groups.String(), "buffers", len(s.buffers))
	return nil
}

// ReadBuffer implements shaderjob.Binder.
func (s *session) ReadBuffer(name string) ([]byte, error) {
	b, ok := s.byName[name]
	switch {
	case !ok:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBuffer, name)
	case b.access != shaderjob.ReadWrite:
		return nil, fmt.Errorf("%w: %q", ErrReadOnlyBuffer, name)
	case !s.dispatched:
		return nil, ErrNotDispatched
	}
	return b.result, nil
}

// Release destroys every resource of the session. It is safe to call more
// than once.
func (s *session) Release() {
	if s.released {
		return
	}
	s.released = true
	for i := len(s.cleanup) - 1; i >= 0; i-- {
		s.cleanup[i]()
	}
	s.cleanup = nil
}
