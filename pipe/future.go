package pipe

import "context"

// Future is the pending result of an asynchronous pipe operation.
type Future struct {
	done chan struct{}
	err  error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func (f *Future) resolve(err error) {
	f.err = err
	close(f.done)
}

// Done is closed when the operation completes.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Err returns the result of a completed operation, or nil while it is pending.
func (f *Future) Err() error {
	select {
	case <-f.done:
		return f.err
	default:
		return nil
	}
}

// Wait blocks until the operation completes and returns its result.
func (f *Future) Wait() error {
	<-f.done
	return f.err
}

// WaitContext is like Wait but gives up when ctx is done.
func (f *Future) WaitContext(ctx context.Context) error {
	select {
	case <-f.done:
		return f.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
