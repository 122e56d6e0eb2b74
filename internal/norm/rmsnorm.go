package norm

import (
	"github.com/chewxy/math32"

	"github.com/samcharles93/normkit/internal/device"
	"github.com/samcharles93/normkit/internal/reduce"
)

// rmsNormKernel scales one row per work-group by rsqrt(mean(x²) + eps).
func rmsNormKernel(a rowArgs, blockSize int) device.Kernel {
	return func(it *device.Item) {
		sample, channel, row := it.GroupID(0), it.GroupID(1), it.GroupID(2)
		tid := it.LocalID(2)
		ncols := a.src.Cols

		xOff := a.src.RowOffset(sample, channel, row)
		dOff := a.dst.RowOffset(sample, channel, row)

		var sumsq float32
		for col := tid; col < ncols; col += blockSize {
			xi := a.src.Data[xOff+col]
			sumsq += xi * xi
		}
		sumsq = reduce.BlockSum(it, sumsq, it.Local(), blockSize)

		meanSquare := sumsq / float32(ncols)
		scale := 1 / math32.Sqrt(meanSquare+a.eps)

		for col := tid; col < ncols; col += blockSize {
			a.dst.Data[dOff+col] = scale * a.src.Data[xOff+col]
		}
	}
}

// rmsNormF32 launches rmsNormKernel over a (nsamples, nchannels, nrows) grid.
func rmsNormF32(ctx *device.Context, x, dst []float32, ncols, nrows, nchannels, nsamples, strideRow, strideChannel, strideSample int, eps float32) {
	Assert(ncols%device.WarpSize == 0, "rms_norm: ncols %d is not a multiple of the warp size %d", ncols, device.WarpSize)

	b := selectBlock(ncols, ctx.Device.Caps, false)
	local := device.R3(1, 1, b.size)
	args := newRowArgs(x, dst, ncols, nrows, nchannels, nsamples, strideRow, strideChannel, strideSample, eps)
	submit(ctx, device.Launch{
		Name:       "rms_norm_f32",
		Range:      device.NDRange{Global: device.R3(nsamples, nchannels, nrows).Mul(local), Local: local},
		LocalWords: b.scratchWords,
		Kernel:     rmsNormKernel(args, b.size),
	})
}
