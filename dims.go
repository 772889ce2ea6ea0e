package shaderjob

import "fmt"

// Dims is a three-dimensional dispatch extent. Unused axes are 1.
type Dims struct {
	X, Y, Z int
}

// One is the default extent of a launch without a For call.
var One = Dims{X: 1, Y: 1, Z: 1}

// NewDims builds an extent from up to three values. Missing or non-positive
// values become 1 and values past the third are ignored.
func NewDims(extent ...int) Dims {
	d := One
	if len(extent) > 0 {
		d.X = extent[0]
	}
	if len(extent) > 1 {
		d.Y = extent[1]
	}
	if len(extent) > 2 {
		d.Z = extent[2]
	}
	return d.Normalize()
}

// Normalize replaces non-positive axes with 1.
func (d Dims) Normalize() Dims {
	if d.X < 1 {
		d.X = 1
	}
	if d.Y < 1 {
		d.Y = 1
	}
	if d.Z < 1 {
		d.Z = 1
	}
	return d
}

// Rank returns 3 if Z > 1, 2 if Y > 1, and 1 otherwise.
func (d Dims) Rank() int {
	switch {
	case d.Z > 1:
		return 3
	case d.Y > 1:
		return 2
	default:
		return 1
	}
}

// GroupShape returns the fixed workgroup shape for the rank of d.
func (d Dims) GroupShape() Dims {
	switch d.Rank() {
	case 3:
		return Dims{X: 4, Y: 4, Z: 4}
	case 2:
		return Dims{X: 8, Y: 8, Z: 1}
	default:
		return Dims{X: 64, Y: 1, Z: 1}
	}
}

// GroupCount returns the number of workgroups needed to cover d,
// the componentwise ceiling of d / d.GroupShape().
func (d Dims) GroupCount() Dims {
	d = d.Normalize()
	s := d.GroupShape()
	return Dims{
		X: ceilDiv(d.X, s.X),
		Y: ceilDiv(d.Y, s.Y),
		Z: ceilDiv(d.Z, s.Z),
	}
}

// Array returns d as [x, y, z].
func (d Dims) Array() [3]int { return [3]int{d.X, d.Y, d.Z} }

// DimsOf converts an [x, y, z] array back to Dims.
func DimsOf(a [3]int) Dims { return Dims{X: a[0], Y: a[1], Z: a[2]}.Normalize() }

func (d Dims) String() string {
	return fmt.Sprintf("(%d, %d, %d)", d.X, d.Y, d.Z)
}

func ceilDiv(n, d int) int {
	return (n + d - 1) / d
}
