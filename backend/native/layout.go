package native

import (
	"encoding/binary"
	"math"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/shaderjob"
)

// uniform is one scalar member of the Params block.
type uniform struct {
	name string
	bits uint32
}

// uniforms keeps scalar members in the order they were first set, which is
// the order the kernel declares them in.
type uniforms struct {
	size [3]uint32
	vals []uniform
}

func (u *uniforms) set(name string, bits uint32) {
	for i := range u.vals {
		if u.vals[i].name == name {
			u.vals[i].bits = bits
			return
		}
	}
	u.vals = append(u.vals, uniform{name: name, bits: bits})
}

func (u *uniforms) setInt32(name string, v int32)     { u.set(name, uint32(v)) }
func (u *uniforms) setFloat32(name string, v float32) { u.set(name, math.Float32bits(v)) }

func (u *uniforms) setSize(x, y, z int) {
	u.size = [3]uint32{uint32(x), uint32(y), uint32(z)} //nolint:gosec // extents are positive ints
}

// bytes packs the block with WGSL uniform layout: vec3<u32> at offset 0,
// 4-byte scalars from offset 12, padded to 16 bytes.
func (u *uniforms) bytes() []byte {
	n := 12 + 4*len(u.vals)
	out := make([]byte, alignUp(n, 16))
	for i, v := range u.size {
		binary.LittleEndian.PutUint32(out[i*4:], v)
	}
	for i, v := range u.vals {
		binary.LittleEndian.PutUint32(out[12+i*4:], v.bits)
	}
	return out
}

func alignUp(n, a int) int {
	return (n + a - 1) / a * a
}

// bufferSize is the allocation size for data: a multiple of 4, never zero.
func bufferSize(n int) uint64 {
	if n < 4 {
		return 4
	}
	return uint64(alignUp(n, 4)) //nolint:gosec // n is positive
}

// layoutEntries describes the Params uniform at binding 0 and one storage
// buffer per access value at bindings 1..n.
func layoutEntries(access []shaderjob.Access) []gputypes.BindGroupLayoutEntry {
	entries := make([]gputypes.BindGroupLayoutEntry, 0, len(access)+1)
	entries = append(entries, gputypes.BindGroupLayoutEntry{
		Binding:    0,
		Visibility: gputypes.ShaderStageCompute,
		Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
	})
	for i, a := range access {
		typ := gputypes.BufferBindingTypeReadOnlyStorage
		if a == shaderjob.ReadWrite {
			typ = gputypes.BufferBindingTypeStorage
		}
		entries = append(entries, gputypes.BindGroupLayoutEntry{
			Binding:    uint32(i + 1), //nolint:gosec // binding count is small
			Visibility: gputypes.ShaderStageCompute,
			Buffer:     &gputypes.BufferBindingLayout{Type: typ},
		})
	}
	return entries
}
