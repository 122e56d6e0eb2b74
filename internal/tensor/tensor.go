// Package tensor describes the 4D tensors normalization operates on.
//
// A Tensor mirrors the descriptor the surrounding graph engine hands to an
// operation: element type, four dimension lengths (ne0 innermost), four byte
// strides, the backing storage, the source tensors and a fixed-size block of
// operation parameters.
package tensor

import (
	"fmt"
	"math"
)

// Type is the element type tag of a tensor.
type Type int

const (
	F32 Type = iota
	F16
	I32
)

// Size is the element size in bytes.
func (t Type) Size() int64 {
	switch t {
	case F16:
		return 2
	default:
		return 4
	}
}

func (t Type) String() string {
	switch t {
	case F32:
		return "f32"
	case F16:
		return "f16"
	case I32:
		return "i32"
	default:
		return fmt.Sprintf("type(%d)", int(t))
	}
}

const (
	// MaxDims is the tensor rank.
	MaxDims = 4
	// MaxSrc is the number of source slots on a tensor.
	MaxSrc = 2
	// MaxOpParams is the number of 32-bit operation parameter slots.
	MaxOpParams = 16
)

// Tensor is a 4D tensor descriptor. Data is the storage the byte strides
// index into; only f32 storage exists, other Type values are tags.
type Tensor struct {
	Name     string
	Type     Type
	Ne       [MaxDims]int64
	Nb       [MaxDims]int64
	Data     []float32
	Src      [MaxSrc]*Tensor
	OpParams [MaxOpParams]int32
}

// New allocates a packed tensor.
func New(name string, typ Type, ne0, ne1, ne2, ne3 int64) *Tensor {
	t := &Tensor{Name: name, Type: typ, Ne: [MaxDims]int64{ne0, ne1, ne2, ne3}}
	t.Nb = packedStrides(t.Ne, typ.Size())
	t.Data = make([]float32, t.NElements())
	return t
}

// FromData wraps data as a packed f32 tensor. It panics if the length does not
// match the shape.
func FromData(name string, data []float32, ne0, ne1, ne2, ne3 int64) *Tensor {
	t := &Tensor{Name: name, Type: F32, Ne: [MaxDims]int64{ne0, ne1, ne2, ne3}, Data: data}
	if int64(len(data)) != t.NElements() {
		panic(fmt.Sprintf("tensor %s: data length %d does not match shape %v", name, len(data), t.Ne))
	}
	t.Nb = packedStrides(t.Ne, 4)
	return t
}

// NewPadded allocates an f32 tensor whose rows are followed by pad unused
// elements, giving outer strides larger than the packed layout.
func NewPadded(name string, pad, ne0, ne1, ne2, ne3 int64) *Tensor {
	t := &Tensor{Name: name, Type: F32, Ne: [MaxDims]int64{ne0, ne1, ne2, ne3}}
	t.Nb[0] = 4
	t.Nb[1] = (ne0 + pad) * 4
	t.Nb[2] = t.Nb[1] * ne1
	t.Nb[3] = t.Nb[2] * ne2
	t.Data = make([]float32, (ne0+pad)*ne1*ne2*ne3)
	return t
}

func packedStrides(ne [MaxDims]int64, size int64) [MaxDims]int64 {
	var nb [MaxDims]int64
	nb[0] = size
	for i := 1; i < MaxDims; i++ {
		nb[i] = nb[i-1] * ne[i-1]
	}
	return nb
}

// NElements is the number of logical elements.
func (t *Tensor) NElements() int64 {
	return t.Ne[0] * t.Ne[1] * t.Ne[2] * t.Ne[3]
}

// NRows is the number of innermost rows.
func (t *Tensor) NRows() int64 {
	return t.Ne[1] * t.Ne[2] * t.Ne[3]
}

// IsContiguous reports whether the strides match the packed layout.
func (t *Tensor) IsContiguous() bool {
	return t.Nb == packedStrides(t.Ne, t.Type.Size())
}

// Index returns the storage index of element (i0, i1, i2, i3).
func (t *Tensor) Index(i0, i1, i2, i3 int64) int64 {
	return (i0*t.Nb[0] + i1*t.Nb[1] + i2*t.Nb[2] + i3*t.Nb[3]) / t.Type.Size()
}

// At returns element (i0, i1, i2, i3).
func (t *Tensor) At(i0, i1, i2, i3 int64) float32 {
	return t.Data[t.Index(i0, i1, i2, i3)]
}

// Set stores v at element (i0, i1, i2, i3).
func (t *Tensor) Set(i0, i1, i2, i3 int64, v float32) {
	t.Data[t.Index(i0, i1, i2, i3)] = v
}

// Fill sets every logical element to fn of its coordinates.
func (t *Tensor) Fill(fn func(i0, i1, i2, i3 int64) float32) {
	for i3 := range t.Ne[3] {
		for i2 := range t.Ne[2] {
			for i1 := range t.Ne[1] {
				for i0 := range t.Ne[0] {
					t.Set(i0, i1, i2, i3, fn(i0, i1, i2, i3))
				}
			}
		}
	}
}

// Permute returns a view sharing t's storage in which source axis i becomes
// axis axes[i].
func (t *Tensor) Permute(axes [MaxDims]int) *Tensor {
	var seen [MaxDims]bool
	for _, a := range axes {
		if a < 0 || a >= MaxDims || seen[a] {
			panic(fmt.Sprintf("tensor %s: invalid permutation %v", t.Name, axes))
		}
		seen[a] = true
	}
	v := &Tensor{Name: t.Name + " (permuted)", Type: t.Type, Data: t.Data}
	for i, a := range axes {
		v.Ne[a] = t.Ne[i]
		v.Nb[a] = t.Nb[i]
	}
	return v
}

// Contiguous returns a packed copy of t.
func (t *Tensor) Contiguous(name string) *Tensor {
	out := New(name, t.Type, t.Ne[0], t.Ne[1], t.Ne[2], t.Ne[3])
	out.Fill(t.At)
	return out
}

// Packed returns the logical elements of t in packed order.
func (t *Tensor) Packed() []float32 {
	if t.IsContiguous() && int64(len(t.Data)) == t.NElements() {
		return t.Data
	}
	return t.Contiguous(t.Name).Data
}

// OpParamI32 reads integer parameter slot i.
func (t *Tensor) OpParamI32(i int) int32 {
	return t.OpParams[i]
}

// SetOpParamI32 writes integer parameter slot i.
func (t *Tensor) SetOpParamI32(i int, v int32) {
	t.OpParams[i] = v
}

// OpParamF32 reads slot i as a float32 bit pattern.
func (t *Tensor) OpParamF32(i int) float32 {
	return math.Float32frombits(uint32(t.OpParams[i]))
}

// SetOpParamF32 stores v's bit pattern in slot i.
func (t *Tensor) SetOpParamF32(i int, v float32) {
	t.OpParams[i] = int32(math.Float32bits(v))
}

func (t *Tensor) String() string {
	return fmt.Sprintf("%s[%s %dx%dx%dx%d nb=%v]", t.Name, t.Type, t.Ne[0], t.Ne[1], t.Ne[2], t.Ne[3], t.Nb)
}
