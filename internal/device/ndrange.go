package device

import "fmt"

// Range3 is a 3D extent or index. Dimension 2 varies fastest.
type Range3 [3]int

// R3 builds a Range3.
func R3(d0, d1, d2 int) Range3 {
	return Range3{d0, d1, d2}
}

// Size is the number of points in the extent.
func (r Range3) Size() int {
	return r[0] * r[1] * r[2]
}

// Mul multiplies two extents dimension-wise.
func (r Range3) Mul(o Range3) Range3 {
	return Range3{r[0] * o[0], r[1] * o[1], r[2] * o[2]}
}

// Linear flattens idx within extent r.
func (r Range3) Linear(idx Range3) int {
	return (idx[0]*r[1]+idx[1])*r[2] + idx[2]
}

// Unlinear is the inverse of Linear.
func (r Range3) Unlinear(i int) Range3 {
	d2 := i % r[2]
	i /= r[2]
	return Range3{i / r[1], i % r[1], d2}
}

func (r Range3) String() string {
	return fmt.Sprintf("(%d,%d,%d)", r[0], r[1], r[2])
}

// NDRange is a global index space partitioned into work-groups of Local.
type NDRange struct {
	Global Range3
	Local  Range3
}

// Groups returns the number of work-groups in each dimension.
func (nd NDRange) Groups() Range3 {
	return Range3{nd.Global[0] / nd.Local[0], nd.Global[1] / nd.Local[1], nd.Global[2] / nd.Local[2]}
}

func (nd NDRange) validate(caps Capabilities) error {
	for d := range 3 {
		if nd.Local[d] <= 0 || nd.Global[d] < 0 {
			return fmt.Errorf("%w: global %v local %v", ErrInvalidRange, nd.Global, nd.Local)
		}
		if nd.Global[d]%nd.Local[d] != 0 {
			return fmt.Errorf("%w: global %v not a multiple of local %v", ErrInvalidRange, nd.Global, nd.Local)
		}
	}
	lanes := nd.Local.Size()
	if lanes%WarpSize != 0 {
		return fmt.Errorf("%w: work-group of %d lanes is not a multiple of the warp size %d", ErrInvalidRange, lanes, WarpSize)
	}
	if caps.MaxWorkGroupSize > 0 && lanes > caps.MaxWorkGroupSize {
		return fmt.Errorf("%w: work-group of %d lanes exceeds device limit %d", ErrInvalidRange, lanes, caps.MaxWorkGroupSize)
	}
	return nil
}
