// Package device implements a CPU-backed accelerator with SIMT execution
// semantics: kernels run over a 3D index space split into work-groups, every
// lane of a work-group is its own goroutine, lanes are packed into fixed-width
// subgroups that exchange values through shuffles, and work-groups share
// nothing but the buffers the kernel closes over.
package device

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/samcharles93/normkit/internal/logger"
)

// WarpSize is the number of lanes in a subgroup.
const WarpSize = 32

// Capabilities describes what a device can run. It is passed explicitly to
// dispatch code instead of being looked up by device index.
type Capabilities struct {
	Name string
	// MaxWorkGroupSize is the largest number of lanes in one work-group.
	MaxWorkGroupSize int
	// ComputeUnits is the number of work-groups executed concurrently.
	ComputeUnits int
}

const (
	ProfileCPU   = "cpu"
	ProfileArc   = "arc"
	ProfileCUDA  = "cuda"
	ProfileSmall = "small"
)

// ProfileByName returns the capability preset for name. An empty name selects
// the cpu profile.
func ProfileByName(name string) (Capabilities, error) {
	profile := strings.ToLower(strings.TrimSpace(name))
	if profile == "" {
		profile = ProfileCPU
	}
	units := max(runtime.GOMAXPROCS(0), 1)
	switch profile {
	case ProfileCPU:
		return Capabilities{Name: ProfileCPU, MaxWorkGroupSize: 1024, ComputeUnits: units}, nil
	case ProfileArc:
		// Wide work-groups: 64 warps, so the second reduction stage reads
		// two scratch slots per lane.
		return Capabilities{Name: ProfileArc, MaxWorkGroupSize: 2048, ComputeUnits: units}, nil
	case ProfileCUDA:
		// 1024-lane blocks with two resident blocks per unit.
		return Capabilities{Name: ProfileCUDA, MaxWorkGroupSize: 1024, ComputeUnits: 2 * units}, nil
	case ProfileSmall:
		// Smallest width that still holds a full warp of warps.
		return Capabilities{Name: ProfileSmall, MaxWorkGroupSize: WarpSize * WarpSize, ComputeUnits: 1}, nil
	default:
		return Capabilities{}, fmt.Errorf("unknown device profile %q (expected cpu, arc, cuda, or small)", name)
	}
}

// Profiles lists the known capability presets.
func Profiles() []string {
	return []string{ProfileCPU, ProfileArc, ProfileCUDA, ProfileSmall}
}

// Device is one emulated accelerator.
type Device struct {
	ID   int
	Caps Capabilities
}

// Context is what an operation needs from the surrounding engine: the device
// it targets, the queue to submit to and a logger.
type Context struct {
	Device *Device
	Queue  *Queue
	Logger logger.Logger
}

// NewContext creates a device with the given capabilities and an in-order
// queue bound to it. Close releases the queue workers.
func NewContext(id int, caps Capabilities, log logger.Logger) *Context {
	if caps.ComputeUnits < 1 {
		caps.ComputeUnits = 1
	}
	if log == nil {
		log = logger.Default()
	}
	dev := &Device{ID: id, Caps: caps}
	return &Context{
		Device: dev,
		Queue:  NewQueue(dev, log.With("device", id)),
		Logger: log,
	}
}

// Stream returns the queue operations should be submitted to.
func (c *Context) Stream() *Queue {
	return c.Queue
}

// MaxWorkGroupSize reports the device limit used by dispatch code.
func (c *Context) MaxWorkGroupSize() int {
	return c.Device.Caps.MaxWorkGroupSize
}

// Close waits for outstanding work and stops the queue.
func (c *Context) Close() error {
	return c.Queue.Close()
}
