package norm

import (
	"github.com/chewxy/math32"

	"github.com/samcharles93/normkit/internal/device"
	"github.com/samcharles93/normkit/internal/reduce"
	"github.com/samcharles93/normkit/internal/tensor"
)

// rowArgs is what the row kernels close over: a strided source, a packed
// destination of the same shape and the epsilon floor.
type rowArgs struct {
	src tensor.View
	dst tensor.View
	eps float32
}

func newRowArgs(x, dst []float32, ncols, nrows, nchannels, nsamples, strideRow, strideChannel, strideSample int, eps float32) rowArgs {
	return rowArgs{
		src: tensor.View{
			Data:          x,
			Cols:          ncols,
			Rows:          nrows,
			Channels:      nchannels,
			Samples:       nsamples,
			StrideRow:     strideRow,
			StrideChannel: strideChannel,
			StrideSample:  strideSample,
		},
		dst: tensor.PackedView(dst, ncols, nrows, nchannels, nsamples),
		eps: eps,
	}
}

// normKernel centers and scales one row per work-group:
// (x - mean) / sqrt(var + eps), with sum and sum of squares gathered in a
// single pass.
func normKernel(a rowArgs, blockSize int) device.Kernel {
	return func(it *device.Item) {
		sample, channel, row := it.GroupID(0), it.GroupID(1), it.GroupID(2)
		tid := it.LocalID(2)
		ncols := a.src.Cols

		xOff := a.src.RowOffset(sample, channel, row)
		dOff := a.dst.RowOffset(sample, channel, row)

		var meanVar device.Float2
		for col := tid; col < ncols; col += blockSize {
			xi := a.src.Data[xOff+col]
			meanVar.X += xi
			meanVar.Y += xi * xi
		}
		meanVar = reduce.BlockSum2(it, meanVar, it.Local(), blockSize)

		mean := meanVar.X / float32(ncols)
		variance := meanVar.Y/float32(ncols) - mean*mean
		invStd := 1 / math32.Sqrt(variance+a.eps)

		for col := tid; col < ncols; col += blockSize {
			a.dst.Data[dOff+col] = (a.src.Data[xOff+col] - mean) * invStd
		}
	}
}

// normF32 launches normKernel over a (nsamples, nchannels, nrows) grid.
func normF32(ctx *device.Context, x, dst []float32, ncols, nrows, nchannels, nsamples, strideRow, strideChannel, strideSample int, eps float32) {
	Assert(ncols%device.WarpSize == 0, "norm: ncols %d is not a multiple of the warp size %d", ncols, device.WarpSize)

	b := selectBlock(ncols, ctx.Device.Caps, true)
	local := device.R3(1, 1, b.size)
	args := newRowArgs(x, dst, ncols, nrows, nchannels, nsamples, strideRow, strideChannel, strideSample, eps)
	submit(ctx, device.Launch{
		Name:       "norm_f32",
		Range:      device.NDRange{Global: device.R3(nsamples, nchannels, nrows).Mul(local), Local: local},
		LocalWords: b.scratchWords,
		Kernel:     normKernel(args, b.size),
	})
}
