package norm

import (
	"github.com/chewxy/math32"

	"github.com/samcharles93/normkit/internal/device"
	"github.com/samcharles93/normkit/internal/reduce"
)

// groupNormKernel normalizes one contiguous run of groupSize elements per
// work-group. The run may cross row boundaries; the last run of a sample is
// clamped to neElements and may be short. Mean and variance are still taken
// over groupSize, so a short group counts its missing tail as zeros.
//
// Pass one sums for the mean. Pass two writes x - mean to dst while summing
// its squares. Pass three rescales dst in place, so x - mean is never
// computed a third time.
func groupNormKernel(x, dst []float32, groupSize, neElements int, eps float32, blockSize int) device.Kernel {
	return func(it *device.Item) {
		base := it.GroupID(0) * neElements
		start := it.GroupID(2) * groupSize
		end := min(start+groupSize, neElements)
		count := float32(groupSize)
		tid := it.LocalID(2)

		var sum float32
		for j := start + tid; j < end; j += blockSize {
			sum += x[base+j]
		}
		sum = reduce.BlockSum(it, sum, it.Local(), blockSize)
		mean := sum / count

		var sumsq float32
		for j := start + tid; j < end; j += blockSize {
			xi := x[base+j] - mean
			dst[base+j] = xi
			sumsq += xi * xi
		}
		sumsq = reduce.BlockSum(it, sumsq, it.Local(), blockSize)

		variance := sumsq / count
		scale := 1 / math32.Sqrt(variance+eps)
		for j := start + tid; j < end; j += blockSize {
			dst[base+j] *= scale
		}
	}
}

// groupNormF32 launches one work-group per (sample, group).
func groupNormF32(ctx *device.Context, x, dst []float32, numGroups int, eps float32, groupSize, neElements, nsamples int) {
	b := selectBlock(groupSize, ctx.Device.Caps, false)
	local := device.R3(1, 1, b.size)
	submit(ctx, device.Launch{
		Name:       "group_norm_f32",
		Range:      device.NDRange{Global: device.R3(nsamples, 1, numGroups).Mul(local), Local: local},
		LocalWords: b.scratchWords,
		Kernel:     groupNormKernel(x, dst, groupSize, neElements, eps, b.size),
	})
}
