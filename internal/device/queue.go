package device

import (
	"fmt"
	"sync"
	"time"

	"github.com/samcharles93/normkit/internal/logger"
)

// Kernel is the body executed by every lane of a launch.
type Kernel func(it *Item)

// Launch is one kernel submission.
type Launch struct {
	Name  string
	Range NDRange
	// LocalWords is the number of float32 words of scratch memory given to
	// each work-group. Zero means none.
	LocalWords int
	Kernel     Kernel
}

// Queue executes launches in submission order. Submit returns as soon as the
// launch is queued; Synchronize waits for completion.
type Queue struct {
	dev  *Device
	log  logger.Logger
	pool *groupPool
	work chan *Launch

	mu        sync.Mutex
	cond      *sync.Cond
	submitted uint64
	completed uint64
	err       error
	closed    bool
	stopped   chan struct{}
}

// NewQueue creates an in-order queue for dev.
func NewQueue(dev *Device, log logger.Logger) *Queue {
	q := &Queue{
		dev:     dev,
		log:     log,
		pool:    newGroupPool(dev.Caps.ComputeUnits),
		work:    make(chan *Launch, 64),
		stopped: make(chan struct{}),
	}
	q.cond = sync.NewCond(&q.mu)
	go q.loop()
	return q
}

// Device returns the device the queue is bound to.
func (q *Queue) Device() *Device {
	return q.dev
}

// Submit validates l against the device and queues it.
func (q *Queue) Submit(l Launch) error {
	if l.Kernel == nil {
		return fmt.Errorf("%w: launch %q has no kernel", ErrInvalidRange, l.Name)
	}
	if l.LocalWords < 0 {
		return fmt.Errorf("%w: launch %q requests negative local memory", ErrInvalidRange, l.Name)
	}
	if err := l.Range.validate(q.dev.Caps); err != nil {
		return fmt.Errorf("launch %q: %w", l.Name, err)
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	q.submitted++
	q.mu.Unlock()

	q.work <- &l
	return nil
}

func (q *Queue) loop() {
	defer close(q.stopped)
	for l := range q.work {
		start := time.Now()
		err := q.pool.run(l)
		q.log.Debug("kernel finished",
			"kernel", l.Name,
			"global", l.Range.Global.String(),
			"local", l.Range.Local.String(),
			"elapsed", time.Since(start))

		q.mu.Lock()
		if err != nil && q.err == nil {
			q.err = err
		}
		q.completed++
		q.cond.Broadcast()
		q.mu.Unlock()
	}
}

// Synchronize blocks until every launch submitted so far has completed and
// returns the first kernel failure since the previous Synchronize.
func (q *Queue) Synchronize() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	target := q.submitted
	for q.completed < target {
		q.cond.Wait()
	}
	err := q.err
	q.err = nil
	return err
}

// Close drains the queue and stops its workers. Further submissions fail.
func (q *Queue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	q.mu.Unlock()

	err := q.Synchronize()
	close(q.work)
	<-q.stopped
	q.pool.close()
	return err
}
