package device

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRange is returned by Submit for geometry the device cannot run.
	ErrInvalidRange = errors.New("invalid nd-range")
	// ErrQueueClosed is returned when submitting to a closed queue.
	ErrQueueClosed = errors.New("queue closed")
	// ErrDivergentBarrier reports lanes of one work-group that did not all
	// reach the same barrier.
	ErrDivergentBarrier = errors.New("divergent barrier: lane exited while others wait")

	errBarrierBroken = errors.New("barrier broken")
)

// KernelError describes a failed work-group.
type KernelError struct {
	Kernel string
	Group  Range3
	Err    error
}

func (e *KernelError) Error() string {
	return fmt.Sprintf("kernel %s group %v: %v", e.Kernel, e.Group, e.Err)
}

func (e *KernelError) Unwrap() error {
	return e.Err
}

func laneError(rec any) error {
	if recErr, ok := rec.(error); ok {
		return fmt.Errorf("lane panicked: %w", recErr)
	}
	return fmt.Errorf("lane panicked: %v", rec)
}
