package async

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Func is the work run by a Task. It reports through progress and should
// return promptly once ctx is cancelled.
type Func[T any] func(ctx context.Context, progress *Progress) (T, error)

// Task is a handle on work running in a background goroutine.
type Task[T any] struct {
	id       string
	progress *Progress
	cancel   context.CancelFunc
	done     chan struct{}

	mu     sync.Mutex
	result T
	err    error
}

// Start runs fn in a new goroutine and returns immediately. The task is
// cancelled when ctx is, or by Cancel.
func Start[T any](ctx context.Context, fn Func[T]) *Task[T] {
	ctx, cancel := context.WithCancel(ctx)
	t := &Task[T]{
		id:       uuid.NewString(),
		progress: newProgress(time.Now),
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go t.run(ctx, fn)
	return t
}

func (t *Task[T]) run(ctx context.Context, fn Func[T]) {
	defer close(t.done)
	defer t.cancel()

	result, err := fn(ctx, t.progress)

	t.mu.Lock()
	t.result, t.err = result, err
	t.mu.Unlock()

	switch {
	case err == nil:
		t.progress.finish(PassReady, nil)
	case errors.Is(err, context.Canceled):
		t.progress.finish(PassCancelled, nil)
	default:
		t.progress.finish(PassFailed, err)
	}
}

// ID returns the task's unique identifier.
func (t *Task[T]) ID() string {
	return t.id
}

// Progress returns a snapshot of the task's progress.
func (t *Task[T]) Progress() Snapshot {
	return t.progress.Snapshot()
}

// Cancel asks the task to stop. It does not wait.
func (t *Task[T]) Cancel() {
	t.cancel()
}

// Done is closed when the task has finished.
func (t *Task[T]) Done() <-chan struct{} {
	return t.done
}

// Running reports whether the task has not finished yet.
func (t *Task[T]) Running() bool {
	select {
	case <-t.done:
		return false
	default:
		return true
	}
}

// Wait blocks until the task finishes and returns its outcome.
func (t *Task[T]) Wait() (T, error) {
	<-t.done
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.result, t.err
}

// WaitContext is Wait bounded by ctx. It returns ctx.Err() if ctx ends
// first; the task keeps running.
func (t *Task[T]) WaitContext(ctx context.Context) (T, error) {
	select {
	case <-t.done:
		return t.Wait()
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
