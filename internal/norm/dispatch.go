// Package norm implements layer, group, RMS and L2 normalization of f32
// tensors as work-group kernels.
//
// Each operation has three layers: an entry point (Op*) that reads shapes,
// strides and parameters from the destination tensor, a dispatch function that
// picks the launch geometry for the device, and the kernel executed by every
// lane.
package norm

import (
	"github.com/samcharles93/normkit/internal/device"
	"github.com/samcharles93/normkit/internal/reduce"
)

// multiWarpThreshold is the row length from which a work-group spans more
// than one warp.
const multiWarpThreshold = 1024

// block is the launch shape chosen for one call.
type block struct {
	size         int
	scratchWords int
}

// selectBlock picks a single warp for short reductions and the device's
// widest work-group otherwise.
func selectBlock(n int, caps device.Capabilities, pairs bool) block {
	if n < multiWarpThreshold {
		return block{size: device.WarpSize}
	}
	size := caps.MaxWorkGroupSize
	Assert(size > 0 && size%(device.WarpSize*device.WarpSize) == 0,
		"device max work-group size %d is not a multiple of %d", size, device.WarpSize*device.WarpSize)
	return block{size: size, scratchWords: reduce.ScratchWords(size, pairs)}
}

// submit queues l on ctx's stream. A rejected launch is a dispatch bug.
func submit(ctx *device.Context, l device.Launch) {
	ctx.Logger.Debug("dispatch",
		"kernel", l.Name,
		"global", l.Range.Global.String(),
		"local", l.Range.Local.String(),
		"scratch", l.LocalWords)
	err := ctx.Stream().Submit(l)
	Assert(err == nil, "submit %s: %v", l.Name, err)
}
