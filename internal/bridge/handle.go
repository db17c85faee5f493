package bridge

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/drewfead/arcbox-desktop/internal/logging"
)

// JoinError is how a handle reports work that did not return normally:
// either it panicked or its handle was released first.
type JoinError struct {
	Panic     any
	Stack     []byte
	Cancelled bool
}

func (e *JoinError) Error() string {
	if e.Cancelled {
		return "background task cancelled"
	}
	return fmt.Sprintf("background task panicked: %v", e.Panic)
}

// IsCancelled reports whether err is a JoinError for a released handle.
func IsCancelled(err error) bool {
	var je *JoinError
	return errors.As(err, &je) && je.Cancelled
}

// IsPanic reports whether err is a JoinError for a task that panicked.
func IsPanic(err error) bool {
	var je *JoinError
	return errors.As(err, &je) && !je.Cancelled
}

// Handle is the foreground's claim on a background task. Only the component
// that spawned the task should hold it.
type Handle[T any] struct {
	done     chan struct{}
	released chan struct{}
	once     sync.Once
	cancel   context.CancelFunc
	scope    context.Context

	val T
	err error
}

// Spawn runs fn on exec and returns a handle for its result. Cancelling ctx
// has the same effect as releasing the handle.
//
// Only the component that spawned the task should call Release; Await may be
// called from any goroutine.
func Spawn[T any](ctx context.Context, exec Executor, fn func(context.Context) (T, error)) *Handle[T] {
	taskCtx, cancel := context.WithCancel(ctx)
	h := &Handle[T]{
		done:     make(chan struct{}),
		released: make(chan struct{}),
		cancel:   cancel,
		scope:    ctx,
	}
	stop := context.AfterFunc(ctx, h.Release)
	exec.Execute(taskCtx, func(runCtx context.Context) {
		defer stop()
		defer cancel()
		h.run(runCtx, fn)
	})
	return h
}

func (h *Handle[T]) run(ctx context.Context, fn func(context.Context) (T, error)) {
	defer close(h.done)
	defer func() {
		if r := recover(); r != nil {
			logging.CapturePanic(r, "component", "bridge")
			h.err = &JoinError{Panic: r, Stack: debug.Stack()}
		}
	}()

	if ctx.Err() != nil {
		h.err = &JoinError{Cancelled: true}
		return
	}
	h.val, h.err = fn(ctx)
}

// Release abandons the task. Its context is cancelled, Await returns a
// cancelled JoinError, and any result it still produces is dropped.
// Release is idempotent.
func (h *Handle[T]) Release() {
	h.once.Do(func() {
		close(h.released)
		h.cancel()
	})
}

// Discard releases the handle and hands any value the task still produces to
// cleanup, so that resources it opened are not leaked. cleanup runs on its
// own goroutine once the task returns, and only if the task succeeded. The
// returned channel is closed after cleanup has run or been skipped.
func (h *Handle[T]) Discard(cleanup func(T)) <-chan struct{} {
	h.Release()
	cleaned := make(chan struct{})
	go func() {
		defer close(cleaned)
		<-h.done
		if h.err == nil {
			cleanup(h.val)
		}
	}()
	return cleaned
}

// Released reports whether Release has been called.
func (h *Handle[T]) Released() bool {
	select {
	case <-h.released:
		return true
	default:
		return false
	}
}

// Done is closed once the task has returned.
func (h *Handle[T]) Done() <-chan struct{} {
	return h.done
}

// Await blocks the calling goroutine until the task finishes, the handle is
// released, or ctx is done.
func (h *Handle[T]) Await(ctx context.Context) (T, error) {
	var zero T
	select {
	case <-h.released:
		return zero, &JoinError{Cancelled: true}
	default:
	}

	select {
	case <-h.done:
		if h.Released() || h.scope.Err() != nil {
			return zero, &JoinError{Cancelled: true}
		}
		return h.val, h.err
	case <-h.released:
		return zero, &JoinError{Cancelled: true}
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
