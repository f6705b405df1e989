package record

import (
	"context"
	"sync"
)

// Future is the cooperative surface of a Call. Prepare has already run in the
// caller's goroutine; Execute runs in its own goroutine; Convert runs in
// whichever goroutine calls Await first.
type Future[T any] struct {
	call    *Call[T]
	cancel  context.CancelFunc
	done    chan struct{}
	execErr error

	once sync.Once
	val  T
	err  error
}

// Start prepares the call and launches Execute without blocking.
func (c *Call[T]) Start(ctx context.Context) *Future[T] {
	f := &Future[T]{call: c, done: make(chan struct{}), cancel: func() {}}
	if err := c.Prepare(); err != nil {
		f.execErr = err
		close(f.done)
		return f
	}
	ctx, f.cancel = context.WithCancel(ctx)
	go func() {
		defer close(f.done)
		f.execErr = c.Execute(ctx)
	}()
	return f
}

// Done is closed once Execute has finished.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Await waits for Execute and converts the response. If ctx ends first the
// request is abandoned: the transport context is cancelled and the eventual
// response is discarded by the execute goroutine. Abandoned calls are not
// retried.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
	case <-ctx.Done():
		f.cancel()
		var zero T
		return zero, ctx.Err()
	}
	f.once.Do(func() {
		defer f.cancel()
		if f.execErr != nil {
			f.err = f.execErr
			return
		}
		f.val, f.err = f.call.Convert()
	})
	return f.val, f.err
}

// Cancel abandons the call.
func (f *Future[T]) Cancel() { f.cancel() }

// State returns the state of the underlying call.
func (f *Future[T]) State() State { return f.call.State() }
