package graph

import (
	"fmt"
	"sync"

	"github.com/tryfix/log"
)

// dispatcher runs every subscription callback on a single goroutine in
// the order the deliveries were queued. The queue is unbounded so that a
// callback writing to the store never blocks on its own delivery.
type dispatcher struct {
	*sync.Mutex
	cond   *sync.Cond
	tasks  []func()
	busy   bool
	closed bool
	log    log.Logger
}

func newDispatcher(l log.Logger) *dispatcher {
	mu := &sync.Mutex{}
	d := &dispatcher{Mutex: mu, cond: sync.NewCond(mu), log: l}
	go d.run()
	return d
}

func (d *dispatcher) enqueue(task func()) {
	d.Lock()
	defer d.Unlock()
	if d.closed {
		return
	}

	d.tasks = append(d.tasks, task)
	d.cond.Broadcast()
}

func (d *dispatcher) run() {
	for {
		d.Lock()
		for len(d.tasks) == 0 && !d.closed {
			d.busy = false
			d.cond.Broadcast()
			d.cond.Wait()
		}

		if d.closed {
			d.Unlock()
			return
		}

		task := d.tasks[0]
		d.tasks[0] = nil
		d.tasks = d.tasks[1:]
		d.busy = true
		d.Unlock()

		d.exec(task)
	}
}

func (d *dispatcher) exec(task func()) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error(fmt.Sprintf(`subscription callback panicked - %v`, r))
		}
	}()
	task()
}

// settle blocks until the queue is drained and no callback is running.
// It must not be called from within a callback.
func (d *dispatcher) settle() {
	d.Lock()
	defer d.Unlock()
	for (len(d.tasks) > 0 || d.busy) && !d.closed {
		d.cond.Wait()
	}
}

func (d *dispatcher) close() {
	d.Lock()
	defer d.Unlock()
	d.closed = true
	d.cond.Broadcast()
}
