//go:build nogpu

// Package native runs shaderjob kernels on a GPU through gogpu/wgpu/hal.
// This build has GPU support disabled.
package native

import "github.com/gogpu/shaderjob"

// Device is unavailable in nogpu builds.
type Device struct{}

// NewDevice always fails in nogpu builds.
func NewDevice() (*Device, error) { return nil, ErrNoGPU }

// Close does nothing.
func (*Device) Close() {}

// NewSession always fails in nogpu builds.
func (*Device) NewSession(string, string) (shaderjob.Session, error) { return nil, ErrNoGPU }
