// Package workerpool runs tasks on a fixed set of goroutines that consume one
// shared FIFO queue guarded by a single mutex and condition variable.
package workerpool

import (
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/cyberinferno/go-chatcore/logger"
	"github.com/cyberinferno/go-chatcore/metrics"
	"github.com/cyberinferno/go-chatcore/perfmonitor"
)

var (
	// ErrPoolStopped is returned by Submit once Shutdown has been requested.
	// It races with shutdown by nature, so callers drop or log the task.
	ErrPoolStopped = errors.New("workerpool: pool stopped")
	// ErrNilTask is returned when Submit is called with a nil task.
	ErrNilTask = errors.New("workerpool: nil task")
)

// Task is a deferred unit of work. It runs at most once on exactly one worker
// and is never retried; its value and error are delivered through the Handle.
type Task func() (any, error)

// PanicError reports a task that panicked. The worker that ran it survives.
type PanicError struct {
	Value any
	Stack []byte
}

// Error implements error.
func (e *PanicError) Error() string {
	return fmt.Sprintf("workerpool: task panicked: %v", e.Value)
}

type job struct {
	task   Task
	handle *Handle
}

// Option configures a Pool.
type Option func(*Pool)

// WithLogger sets the logger used for task failures.
func WithLogger(l logger.Logger) Option {
	return func(p *Pool) {
		p.logger = l
	}
}

// WithMetrics sets the collectors updated by the pool.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pool) {
		p.metrics = m
	}
}

// Pool is a fixed-size worker pool. Tasks start in submission order; with
// more than one worker they may finish in any order.
type Pool struct {
	size    int
	logger  logger.Logger
	metrics *metrics.Metrics

	mu       sync.Mutex
	cond     *sync.Cond
	queue    []*job
	stopping bool

	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New starts a pool of size workers.
//
// Parameters:
//   - size: Number of workers; must be at least 1
//   - opts: Optional logger and metrics
//
// Returns:
//   - The running pool, or an error if size is invalid
func New(size int, opts ...Option) (*Pool, error) {
	if size < 1 {
		return nil, fmt.Errorf("workerpool: size must be at least 1, got %d", size)
	}

	p := &Pool{size: size}
	p.cond = sync.NewCond(&p.mu)
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = logger.NewNopLogger()
	}
	if p.metrics == nil {
		p.metrics = metrics.NewUnregistered()
	}

	p.wg.Add(size)
	for i := 0; i < size; i++ {
		go p.worker(i)
	}

	return p, nil
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return p.size
}

// Pending returns the number of queued tasks not yet picked up by a worker.
func (p *Pool) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// Submit queues task and wakes one idle worker. It never blocks on the
// queue.
//
// Returns:
//   - A handle to the eventual result
//   - ErrPoolStopped after Shutdown was requested, ErrNilTask for a nil task
func (p *Pool) Submit(task Task) (*Handle, error) {
	if task == nil {
		return nil, ErrNilTask
	}

	j := &job{task: task, handle: newHandle()}

	p.mu.Lock()
	if p.stopping {
		p.mu.Unlock()
		p.metrics.TasksRejected.Inc()
		return nil, ErrPoolStopped
	}
	p.queue = append(p.queue, j)
	depth := len(p.queue)
	p.mu.Unlock()

	p.metrics.TasksSubmitted.Inc()
	p.metrics.QueueDepth.Set(float64(depth))
	p.cond.Signal()
	return j.handle, nil
}

// SubmitFunc queues a task without a result value.
func (p *Pool) SubmitFunc(fn func()) (*Handle, error) {
	if fn == nil {
		return nil, ErrNilTask
	}

	return p.Submit(func() (any, error) {
		fn()
		return nil, nil
	})
}

// Shutdown refuses new submissions, lets the workers drain every task queued
// before the call and waits for all of them to exit. It is safe to call more
// than once and from several goroutines; every call returns after the
// workers are gone.
func (p *Pool) Shutdown() {
	p.stopOnce.Do(func() {
		p.mu.Lock()
		p.stopping = true
		p.mu.Unlock()
		p.cond.Broadcast()
	})

	p.wg.Wait()
}

// Stopped reports whether Shutdown has been requested.
func (p *Pool) Stopped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopping
}

func (p *Pool) worker(n int) {
	defer p.wg.Done()

	pm := perfmonitor.NewPerformanceMonitor()
	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.stopping {
			p.cond.Wait()
		}

		if len(p.queue) == 0 {
			p.mu.Unlock()
			return
		}

		j := p.queue[0]
		p.queue[0] = nil
		p.queue = p.queue[1:]
		depth := len(p.queue)
		p.mu.Unlock()

		p.metrics.QueueDepth.Set(float64(depth))
		p.run(n, j, pm)
	}
}

// run executes one job, isolating a panic at the task boundary.
func (p *Pool) run(worker int, j *job, pm *perfmonitor.PerformanceMonitor) {
	var (
		value any
		err   error
	)

	pm.Start()
	defer func() {
		if r := recover(); r != nil {
			pe := &PanicError{Value: r, Stack: debug.Stack()}
			value, err = nil, pe
			p.logger.Error("task panicked",
				logger.Field{Key: "worker", Value: worker},
				logger.Field{Key: "panic", Value: fmt.Sprint(r)},
				logger.Field{Key: "stack", Value: string(pe.Stack)})
		}

		pm.Stop()
		p.metrics.TaskDuration.Observe(pm.Elapsed().Seconds())
		p.metrics.TasksCompleted.WithLabelValues(resultLabel(err)).Inc()
		p.logger.Debug("task finished",
			logger.Field{Key: "worker", Value: worker},
			logger.Field{Key: "elapsed_ms", Value: pm.ElapsedMilliseconds()})

		j.handle.complete(value, err)
	}()

	value, err = j.task()
}

func resultLabel(err error) string {
	var pe *PanicError
	switch {
	case err == nil:
		return metrics.ResultOK
	case errors.As(err, &pe):
		return metrics.ResultPanic
	default:
		return metrics.ResultError
	}
}
