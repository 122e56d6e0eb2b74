// Package reduce implements sums across the lanes of a work-group.
//
// WarpSum and WarpSum2 reduce inside one subgroup with an xor butterfly and
// touch no memory. BlockSum and BlockSum2 extend that to a work-group made of
// several subgroups: each subgroup's total is staged in scratch memory, the
// group synchronizes, and the staged totals are reduced again.
package reduce

import "github.com/samcharles93/normkit/internal/device"

// WarpSum returns the sum of v over the lane's subgroup to every lane.
func WarpSum(it *device.Item, v float32) float32 {
	for mask := device.WarpSize / 2; mask > 0; mask >>= 1 {
		v += it.ShuffleXor(v, mask)
	}
	return v
}

// WarpSum2 is WarpSum for a value pair.
func WarpSum2(it *device.Item, v device.Float2) device.Float2 {
	for mask := device.WarpSize / 2; mask > 0; mask >>= 1 {
		v = v.Add(it.ShuffleXor2(v, mask))
	}
	return v
}

// BlockSum returns the sum of v over blockSize lanes to every lane.
//
// When blockSize fits in one subgroup the scratch path is skipped and scratch
// may be nil. Otherwise scratch must hold blockSize/WarpSize words and every
// lane of the work-group must call BlockSum.
func BlockSum(it *device.Item, v float32, scratch []float32, blockSize int) float32 {
	v = WarpSum(it, v)
	if blockSize <= device.WarpSize {
		return v
	}

	nwarps := blockSize / device.WarpSize
	lane := it.SubgroupLocalID()
	if lane == 0 {
		scratch[it.SubgroupID()] = v
	}
	it.Barrier()

	v = 0
	nreduce := ceilDiv(nwarps, device.WarpSize)
	for i := range nreduce {
		if idx := lane + i*device.WarpSize; idx < nwarps {
			v += scratch[idx]
		}
	}
	// scratch is rewritten by the next reduction in the same kernel.
	it.Barrier()
	return WarpSum(it, v)
}

// BlockSum2 is BlockSum for a value pair. scratch must hold two words per
// subgroup.
func BlockSum2(it *device.Item, v device.Float2, scratch []float32, blockSize int) device.Float2 {
	v = WarpSum2(it, v)
	if blockSize <= device.WarpSize {
		return v
	}

	nwarps := blockSize / device.WarpSize
	lane := it.SubgroupLocalID()
	if lane == 0 {
		sg := it.SubgroupID()
		scratch[2*sg] = v.X
		scratch[2*sg+1] = v.Y
	}
	it.Barrier()

	v = device.Float2{}
	nreduce := ceilDiv(nwarps, device.WarpSize)
	for i := range nreduce {
		if idx := lane + i*device.WarpSize; idx < nwarps {
			v.X += scratch[2*idx]
			v.Y += scratch[2*idx+1]
		}
	}
	it.Barrier()
	return WarpSum2(it, v)
}

// ScratchWords is the scratch size BlockSum needs for blockSize lanes, or
// BlockSum2 when pairs is set.
func ScratchWords(blockSize int, pairs bool) int {
	if blockSize <= device.WarpSize {
		return 0
	}
	n := blockSize / device.WarpSize
	if pairs {
		n *= 2
	}
	return n
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
