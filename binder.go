package shaderjob

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Access describes how a kernel uses a storage buffer.
type Access uint8

const (
	// ReadOnly buffers are uploaded and never read back.
	ReadOnly Access = iota
	// ReadWrite buffers are uploaded, written by the kernel and read back.
	ReadWrite
)

func (a Access) String() string {
	if a == ReadWrite {
		return "read_write"
	}
	return "read"
}

// Binder receives the arguments of one dispatch. Generated glue drives it:
// the bind function uploads buffers and uniforms, the update function reads
// written buffers back and releases everything.
type Binder interface {
	// BindBuffer allocates a storage buffer sized to data, uploads data and
	// binds it at the next storage binding slot.
	BindBuffer(name string, data []byte, access Access) error
	// SetInt32 sets an int32 member of the uniform block.
	SetInt32(name string, v int32)
	// SetFloat32 sets a float32 member of the uniform block.
	SetFloat32(name string, v float32)
	// SetDispatchSize sets the dispatch extent uniform.
	SetDispatchSize(x, y, z int)
	// ReadBuffer returns the contents of a ReadWrite buffer after dispatch.
	ReadBuffer(name string) ([]byte, error)
	// Release frees every resource created for the dispatch.
	Release()
}

// Session is a Binder bound to one compiled kernel.
type Session interface {
	Binder
	// Dispatch runs the kernel with the given workgroup counts and waits
	// for completion.
	Dispatch(groups Dims) error
}

// Device opens dispatch sessions for kernel sources.
type Device interface {
	NewSession(label, source string) (Session, error)
}

// Scalar is an element type a kernel buffer can hold.
type Scalar interface {
	int32 | float32
}

// Bytes encodes s as little-endian 4-byte words.
func Bytes[T Scalar](s []T) []byte {
	out := make([]byte, 0, len(s)*4)
	switch v := any(s).(type) {
	case []int32:
		for _, x := range v {
			out = binary.LittleEndian.AppendUint32(out, uint32(x))
		}
	case []float32:
		for _, x := range v {
			out = binary.LittleEndian.AppendUint32(out, math.Float32bits(x))
		}
	}
	return out
}

// Decode writes little-endian words from data into dst. Extra bytes on either
// side are ignored.
func Decode[T Scalar](data []byte, dst []T) {
	n := len(data) / 4
	if n > len(dst) {
		n = len(dst)
	}
	switch v := any(dst).(type) {
	case []int32:
		for i := 0; i < n; i++ {
			v[i] = int32(binary.LittleEndian.Uint32(data[i*4:]))
		}
	case []float32:
		for i := 0; i < n; i++ {
			v[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
		}
	}
}

// ReadInto reads the buffer called name back from b into dst.
func ReadInto[T Scalar](b Binder, name string, dst []T) error {
	data, err := b.ReadBuffer(name)
	if err != nil {
		return fmt.Errorf("shaderjob: read back %q: %w", name, err)
	}
	Decode(data, dst)
	return nil
}
