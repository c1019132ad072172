//
// Tencent is pleased to support the open source community by making craftgen-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// craftgen-go is licensed under the Apache License Version 2.0.
//
//

package actor

import (
	"context"
	"sync"
)

// Future is a one-shot value a state machine resolves when it reaches a
// terminal state. It replaces blocking "wait for actor predicate" helpers:
// the machine publishes into the future on transition and callers select on
// Done with their own context.
type Future[T any] struct {
	once  sync.Once
	done  chan struct{}
	value T
}

// NewFuture creates an unresolved future.
func NewFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Resolve publishes the value. Only the first call wins; later calls are
// ignored so late async results cannot clobber a settled run.
func (f *Future[T]) Resolve(value T) {
	f.once.Do(func() {
		f.value = value
		close(f.done)
	})
}

// Done returns a channel closed once the future is resolved.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the future resolves or ctx is cancelled.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
