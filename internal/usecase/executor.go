package usecase

import "sync"

// Executor runs background tasks. Wait blocks until every submitted task
// has returned.
type Executor interface {
	Go(task func())
	Wait()
}

// PoolExecutor runs each task on its own goroutine with at most max tasks
// executing at once.
type PoolExecutor struct {
	sem chan struct{}
	wg  sync.WaitGroup
}

func NewPoolExecutor(max int) *PoolExecutor {
	if max < 1 {
		max = 1
	}
	return &PoolExecutor{sem: make(chan struct{}, max)}
}

// Go never blocks the caller; queued tasks wait for a free slot.
func (e *PoolExecutor) Go(task func()) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.sem <- struct{}{}
		defer func() { <-e.sem }()
		task()
	}()
}

func (e *PoolExecutor) Wait() { e.wg.Wait() }

// SyncExecutor runs tasks inline on the caller's goroutine.
type SyncExecutor struct{}

func (SyncExecutor) Go(task func()) { task() }

func (SyncExecutor) Wait() {}
