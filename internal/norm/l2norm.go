package norm

import (
	"github.com/chewxy/math32"

	"github.com/samcharles93/normkit/internal/device"
	"github.com/samcharles93/normkit/internal/reduce"
)

// l2NormKernel scales each row to unit L2 norm. The eps floor applies to the
// sum of squares: scale = rsqrt(max(sumsq, eps²)).
//
// Rows are numbered flat across samples and channels; the work-group's y
// extent tiles several rows into one group.
func l2NormKernel(a rowArgs, blockSize int) device.Kernel {
	return func(it *device.Item) {
		row := it.GroupID(2)*it.LocalRange(1) + it.LocalID(1)
		tid := it.LocalID(2)
		ncols := a.src.Cols

		s, c, r := a.src.SplitRow(row)
		xOff := a.src.RowOffset(s, c, r)
		dOff := a.dst.RowOffset(s, c, r)

		var sumsq float32
		for col := tid; col < ncols; col += blockSize {
			xi := a.src.Data[xOff+col]
			sumsq += xi * xi
		}
		sumsq = reduce.BlockSum(it, sumsq, it.Local(), blockSize)

		scale := 1 / math32.Sqrt(math32.Max(sumsq, a.eps*a.eps))

		for col := tid; col < ncols; col += blockSize {
			a.dst.Data[dOff+col] = scale * a.src.Data[xOff+col]
		}
	}
}

// l2NormF32 launches l2NormKernel over a flat (1, 1, nrows) grid.
func l2NormF32(ctx *device.Context, x, dst []float32, ncols, nrows, nchannels, nsamples, strideRow, strideChannel, strideSample int, eps float32) {
	Assert(ncols%device.WarpSize == 0, "l2_norm: ncols %d is not a multiple of the warp size %d", ncols, device.WarpSize)

	b := selectBlock(ncols, ctx.Device.Caps, false)
	local := device.R3(1, 1, b.size)
	total := nrows * nchannels * nsamples
	args := newRowArgs(x, dst, ncols, nrows, nchannels, nsamples, strideRow, strideChannel, strideSample, eps)
	submit(ctx, device.Launch{
		Name:       "l2_norm_f32",
		Range:      device.NDRange{Global: device.R3(1, 1, total).Mul(local), Local: local},
		LocalWords: b.scratchWords,
		Kernel:     l2NormKernel(args, b.size),
	})
}
