// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

package utilds

import (
	"sync"

	"github.com/wavetermdev/wavedom/pkg/panichandler"
)

// WorkQueue runs workFn for each enqueued item, one at a time, in FIFO order,
// on a single lazily started goroutine. A panicking item is logged and the
// worker moves on to the next one.
type WorkQueue[T any] struct {
	lock    sync.Mutex
	cond    *sync.Cond
	name    string
	queue   []T
	closed  bool
	started bool
	wg      sync.WaitGroup
	workFn  func(T)
}

func NewWorkQueue[T any](name string, workFn func(T)) *WorkQueue[T] {
	wq := &WorkQueue[T]{
		name:   name,
		workFn: workFn,
	}
	wq.cond = sync.NewCond(&wq.lock)
	return wq
}

// Enqueue returns false once the queue is closed.
func (wq *WorkQueue[T]) Enqueue(item T) bool {
	wq.lock.Lock()
	defer wq.lock.Unlock()
	if wq.closed {
		return false
	}
	if !wq.started {
		wq.started = true
		wq.wg.Add(1)
		go wq.worker()
	}
	wq.queue = append(wq.queue, item)
	wq.cond.Signal()
	return true
}

func (wq *WorkQueue[T]) Len() int {
	wq.lock.Lock()
	defer wq.lock.Unlock()
	return len(wq.queue)
}

func (wq *WorkQueue[T]) worker() {
	defer wq.wg.Done()
	for {
		wq.lock.Lock()
		for len(wq.queue) == 0 && !wq.closed {
			wq.cond.Wait()
		}
		if wq.closed && len(wq.queue) == 0 {
			wq.lock.Unlock()
			return
		}
		item := wq.queue[0]
		var zero T
		wq.queue[0] = zero
		wq.queue = wq.queue[1:]
		wq.lock.Unlock()

		wq.runItem(item)
	}
}

func (wq *WorkQueue[T]) runItem(item T) {
	defer func() {
		panichandler.PanicHandler("workqueue:"+wq.name, recover())
	}()
	wq.workFn(item)
}

// Close stops accepting items. With immediate set, items still queued are
// dropped; otherwise the worker drains them first.
func (wq *WorkQueue[T]) Close(immediate bool) {
	wq.lock.Lock()
	wq.closed = true
	if immediate {
		wq.queue = nil
	}
	wq.cond.Broadcast()
	wq.lock.Unlock()
}

func (wq *WorkQueue[T]) Wait() {
	wq.wg.Wait()
}
