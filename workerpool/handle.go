package workerpool

import "context"

// Handle gives access to the eventual result of a submitted task. Callers
// that fire and forget may simply drop it.
type Handle struct {
	done  chan struct{}
	value any
	err   error
}

func newHandle() *Handle {
	return &Handle{done: make(chan struct{})}
}

func (h *Handle) complete(value any, err error) {
	h.value = value
	h.err = err
	close(h.done)
}

// Done returns a channel closed once the task has finished.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the task finishes or ctx is done.
//
// Returns:
//   - The task's value and error (a *PanicError if it panicked)
//   - ctx.Err() if ctx ends first; the task keeps running
func (h *Handle) Wait(ctx context.Context) (any, error) {
	select {
	case <-h.done:
		return h.value, h.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
