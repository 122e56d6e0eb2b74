package device

import (
	"errors"
	"sync"
)

type groupTask struct {
	launch *Launch
	groups Range3
	gs, ge int
	done   chan error
}

// groupPool is a persistent set of workers that execute work-groups.
type groupPool struct {
	size      int
	tasks     chan groupTask
	doneSlots chan chan error
	closeOnce sync.Once
}

func newGroupPool(size int) *groupPool {
	if size < 1 {
		size = 1
	}
	p := &groupPool{
		size:      size,
		tasks:     make(chan groupTask, size*2),
		doneSlots: make(chan chan error, 1),
	}
	p.doneSlots <- make(chan error, size)
	for i := 0; i < size; i++ {
		go func() {
			for task := range p.tasks {
				task.done <- runGroups(task.launch, task.groups, task.gs, task.ge)
			}
		}()
	}
	return p
}

// run executes every work-group of l and returns the first failure.
func (p *groupPool) run(l *Launch) error {
	groups := l.Range.Groups()
	n := groups.Size()
	if n == 0 {
		return nil
	}
	workers := min(p.size, n)
	if workers <= 1 {
		return runGroups(l, groups, 0, n)
	}

	chunk := (n + workers - 1) / workers
	done := <-p.doneSlots

	active := 0
	for i := 0; i < workers; i++ {
		gs := i * chunk
		ge := min(gs+chunk, n)
		if gs >= ge {
			break
		}
		active++
		p.tasks <- groupTask{launch: l, groups: groups, gs: gs, ge: ge, done: done}
	}

	var first error
	for i := 0; i < active; i++ {
		if err := <-done; err != nil && first == nil {
			first = err
		}
	}
	p.doneSlots <- done
	return first
}

func (p *groupPool) close() {
	p.closeOnce.Do(func() { close(p.tasks) })
}

func runGroups(l *Launch, groups Range3, gs, ge int) error {
	for g := gs; g < ge; g++ {
		if err := runGroup(l, groups.Unlinear(g), groups); err != nil {
			return err
		}
	}
	return nil
}

// runGroup runs one work-group with one goroutine per lane.
func runGroup(l *Launch, id, groups Range3) error {
	local := l.Range.Local
	wg := newWorkGroup(id, groups, local, l.LocalWords)
	lanes := local.Size()

	var (
		done  sync.WaitGroup
		once  sync.Once
		first error
	)
	fail := func(err error) {
		once.Do(func() { first = err })
		wg.abort(err)
	}

	done.Add(lanes)
	for lane := range lanes {
		it := &Item{wg: wg, local: local.Unlinear(lane), lane: lane}
		go func() {
			defer done.Done()
			defer func() {
				if rec := recover(); rec != nil {
					err, ok := rec.(error)
					if !ok || !(errors.Is(err, ErrDivergentBarrier) || errors.Is(err, errBarrierBroken)) {
						err = laneError(rec)
					}
					fail(err)
					return
				}
				wg.subgroups[it.SubgroupID()].bar.leave()
				wg.bar.leave()
			}()
			l.Kernel(it)
		}()
	}
	done.Wait()

	if first != nil {
		return &KernelError{Kernel: l.Name, Group: id, Err: first}
	}
	return nil
}
