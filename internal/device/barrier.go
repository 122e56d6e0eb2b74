package device

import "sync"

// barrier is a reusable rendezvous for a fixed set of lanes.
//
// A lane that returns from the kernel calls leave. If every lane still
// running is parked in wait while some lanes already left, the barrier can
// never open; it is broken with ErrDivergentBarrier instead of hanging.
type barrier struct {
	mu      sync.Mutex
	cond    *sync.Cond
	n       int
	waiting int
	exited  int
	gen     uint64
	err     error
}

func newBarrier(n int) *barrier {
	b := &barrier{n: n}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// wait blocks until all n lanes arrive. It panics with the break reason if the
// barrier is broken while waiting.
func (b *barrier) wait() {
	b.mu.Lock()
	if b.err != nil {
		err := b.err
		b.mu.Unlock()
		panic(err)
	}
	gen := b.gen
	b.waiting++
	if b.waiting == b.n {
		b.waiting = 0
		b.gen++
		b.cond.Broadcast()
		b.mu.Unlock()
		return
	}
	if b.exited > 0 && b.waiting+b.exited == b.n {
		b.breakLocked(ErrDivergentBarrier)
	}
	for gen == b.gen && b.err == nil {
		b.cond.Wait()
	}
	err := b.err
	if gen != b.gen {
		err = nil
	}
	b.mu.Unlock()
	if err != nil {
		panic(err)
	}
}

// leave records a lane that finished the kernel.
func (b *barrier) leave() {
	b.mu.Lock()
	b.exited++
	if b.waiting > 0 && b.waiting+b.exited == b.n {
		b.breakLocked(ErrDivergentBarrier)
	}
	b.mu.Unlock()
}

// abort breaks the barrier so parked lanes unwind.
func (b *barrier) abort(err error) {
	b.mu.Lock()
	if b.err == nil {
		b.breakLocked(err)
	}
	b.mu.Unlock()
}

func (b *barrier) breakLocked(err error) {
	if b.err == nil {
		b.err = err
	}
	b.cond.Broadcast()
}
