//go:build !nogpu

// Package native runs shaderjob kernels on a GPU through gogpu/wgpu/hal.
package native

import (
	"fmt"
	"sync"
	"time"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/shaderjob"
	"github.com/gogpu/wgpu/hal"
)

// DefaultTimeout bounds how long Dispatch waits for the GPU.
const DefaultTimeout = 5 * time.Second

// Device implements shaderjob.Device on a HAL device and queue.
//
// Thread Safety: Device is safe for concurrent use. Submissions to the queue
// are serialized; sessions themselves belong to one goroutine.
type Device struct {
	mu       sync.Mutex
	device   hal.Device
	queue    hal.Queue
	instance hal.Instance
	owned    bool

	// Timeout bounds each dispatch. Zero means DefaultTimeout.
	Timeout time.Duration
}

var _ shaderjob.Device = (*Device)(nil)

// NewDevice opens the first discrete or integrated Vulkan adapter, falling
// back to any adapter. Close releases it.
func NewDevice() (*Device, error) {
	backend, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return nil, fmt.Errorf("%w: vulkan backend not available", ErrNoGPU)
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("create instance: %w", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, ErrNoGPU
	}
	var selected *hal.ExposedAdapter
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}
	if selected == nil {
		selected = &adapters[0]
	}
	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("open device: %w", err)
	}
	shaderjob.Logger().Info("wgpu: device opened", "adapter", selected.Info.Name)
	return &Device{
		device:   openDev.Device,
		queue:    openDev.Queue,
		instance: instance,
		owned:    true,
	}, nil
}

// NewFromProvider shares the device of an external provider such as a gogpu
// application. The provider must implement HalDevice() any and HalQueue() any
// returning hal.Device and hal.Queue. The shared device is not destroyed by
// Close.
func NewFromProvider(provider gpucontext.DeviceProvider) (*Device, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, ErrInvalidProvider
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("%w: HalDevice is not hal.Device", ErrInvalidProvider)
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("%w: HalQueue is not hal.Queue", ErrInvalidProvider)
	}
	return NewFromHAL(device, queue), nil
}

// NewFromHAL wraps an existing device and queue without taking ownership.
func NewFromHAL(device hal.Device, queue hal.Queue) *Device {
	return &Device{device: device, queue: queue}
}

// Close destroys the device if NewDevice created it.
func (d *Device) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.owned {
		if d.device != nil {
			d.device.Destroy()
		}
		if d.instance != nil {
			d.instance.Destroy()
		}
	}
	d.device = nil
	d.queue = nil
	d.instance = nil
	d.owned = false
}

// NewSession compiles source and returns a session for one dispatch.
func (d *Device) NewSession(label, source string) (shaderjob.Session, error) {
	d.mu.Lock()
	device := d.device
	d.mu.Unlock()
	if device == nil {
		return nil, ErrNoGPU
	}
	module, err := device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  label,
		Source: hal.ShaderSource{WGSL: source},
	})
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", label, err)
	}
	s := newSession(d, label)
	s.module = module
	s.onRelease(func() { device.DestroyShaderModule(module) })
	return s, nil
}

func (d *Device) timeout() time.Duration {
	if d.Timeout > 0 {
		return d.Timeout
	}
	return DefaultTimeout
}
