package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrPoolClosed is returned by Submit when the pool is shut down or faulted.
var ErrPoolClosed = errors.New("compute pool is closed")

// Job computes one request and returns the artifact path.
type Job func(ctx context.Context) (string, error)

// Task is a cancellable handle onto a submitted job. Result is valid once
// Done is closed.
type Task struct {
	done   chan struct{}
	cancel context.CancelFunc

	path string
	err  error
}

// Done is closed when the job finished, failed or was canceled.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Result returns the job outcome. Call only after Done is closed.
func (t *Task) Result() (string, error) {
	return t.path, t.err
}

// Cancel aborts the job. The job's context is canceled; the slot is freed
// when the job observes it.
func (t *Task) Cancel() {
	t.cancel()
}

type submission struct {
	job  Job
	task *Task
	ctx  context.Context
}

// Pool runs jobs on a fixed number of parallel slots.
type Pool struct {
	size int

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	workCh chan *submission
	doneCh chan struct{}
	closed bool
}

// NewPool starts a pool with the given number of slots.
func NewPool(size int) *Pool {
	if size < 1 {
		size = 1
	}
	p := &Pool{size: size}
	p.start()
	return p
}

func (p *Pool) start() {
	ctx, cancel := context.WithCancel(context.Background())
	p.ctx = ctx
	p.cancel = cancel
	p.workCh = make(chan *submission)
	p.doneCh = make(chan struct{})
	p.closed = false

	workCh, doneCh := p.workCh, p.doneCh
	go func() {
		var wg sync.WaitGroup
		for i := 0; i < p.size; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				worker(workCh)
			}()
		}
		wg.Wait()
		close(doneCh)
	}()
}

func worker(workCh <-chan *submission) {
	for sub := range workCh {
		run(sub)
	}
}

func run(sub *submission) {
	defer close(sub.task.done)
	defer func() {
		if r := recover(); r != nil {
			sub.task.err = fmt.Errorf("panic: %v", r)
		}
	}()
	sub.task.path, sub.task.err = sub.job(sub.ctx)
}

// Submit hands a job to the pool and returns its task handle. Blocks until a
// slot picks the job up or the context is canceled.
func (p *Pool) Submit(ctx context.Context, job Job) (task *Task, err error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	workCh, doneCh, poolCtx := p.workCh, p.doneCh, p.ctx
	p.mu.Unlock()

	jobCtx, cancel := context.WithCancel(poolCtx)
	task = &Task{done: make(chan struct{}), cancel: cancel}
	sub := &submission{job: job, task: task, ctx: jobCtx}

	// workCh may be closed by a concurrent Close between the check above and
	// the send below
	defer func() {
		if r := recover(); r != nil {
			cancel()
			task, err = nil, ErrPoolClosed
		}
	}()

	select {
	case workCh <- sub:
		return task, nil
	case <-doneCh:
		cancel()
		return nil, ErrPoolClosed
	case <-ctx.Done():
		cancel()
		return nil, ctx.Err()
	}
}

// Healthy reports whether the pool's workers are alive and accepting jobs.
func (p *Pool) Healthy() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	select {
	case <-p.doneCh:
		return false
	default:
		return true
	}
}

// Close shuts the pool down, canceling running jobs, and waits up to timeout
// for the workers to exit.
func (p *Pool) Close(timeout time.Duration) error {
	p.mu.Lock()
	if p.closed {
		doneCh := p.doneCh
		p.mu.Unlock()
		<-doneCh
		return nil
	}
	p.closed = true
	close(p.workCh)
	p.cancel()
	doneCh := p.doneCh
	p.mu.Unlock()

	select {
	case <-doneCh:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("compute pool did not shut down within %s", timeout)
	}
}

// Restart shuts the pool down and brings a fresh set of workers up in place.
// It fails when the old workers do not exit in time; the caller then falls
// back to recreating the pool.
func (p *Pool) Restart(timeout time.Duration) error {
	if err := p.Close(timeout); err != nil {
		return fmt.Errorf("failed to restart compute pool: %w", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.start()
	return nil
}
