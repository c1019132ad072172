//
// Tencent is pleased to support the open source community by making craftgen-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// craftgen-go is licensed under the Apache License Version 2.0.
//
//

package persistence

import (
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/craftgen/craftgen-go/log"
)

const defaultQueueWorkers = 4

// QueueOption configures a Queue.
type QueueOption func(*queueOptions)

type queueOptions struct {
	workers int
}

// WithWorkers sets the number of concurrent persistence workers.
func WithWorkers(n int) QueueOption {
	return func(o *queueOptions) {
		if n > 0 {
			o.workers = n
		}
	}
}

// Queue runs persistence tasks on a bounded worker pool so storage latency
// never blocks an actor goroutine. Context snapshots are debounced per node:
// a burst of transitions produces one write.
type Queue struct {
	pool *ants.Pool
	wg   sync.WaitGroup

	mu      sync.Mutex
	pending map[string]*pendingWrite
	closed  bool
}

type pendingWrite struct {
	timer *time.Timer
	task  func()
	// done marks the write as claimed by either the timer or Flush, so a
	// timer firing concurrently with Flush submits exactly once.
	done bool
}

// NewQueue creates a queue backed by an ants pool.
func NewQueue(opts ...QueueOption) (*Queue, error) {
	options := queueOptions{workers: defaultQueueWorkers}
	for _, opt := range opts {
		opt(&options)
	}
	pool, err := ants.NewPool(options.workers)
	if err != nil {
		return nil, err
	}
	return &Queue{
		pool:    pool,
		pending: make(map[string]*pendingWrite),
	}, nil
}

// Submit schedules one task. Tasks submitted after Close are dropped with a
// log line.
func (q *Queue) Submit(task func()) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		log.Debugf("persistence: dropping task submitted after close")
		return
	}
	q.wg.Add(1)
	q.mu.Unlock()

	err := q.pool.Submit(func() {
		defer q.wg.Done()
		task()
	})
	if err != nil {
		q.wg.Done()
		log.Errorf("persistence: submit failed: %v", err)
	}
}

// Debounce schedules the task after delay, replacing any pending task with
// the same key. The last write in a burst wins.
func (q *Queue) Debounce(key string, delay time.Duration, task func()) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	if existing, ok := q.pending[key]; ok {
		existing.done = true
		existing.timer.Stop()
	}
	write := &pendingWrite{task: task}
	write.timer = time.AfterFunc(delay, func() {
		q.mu.Lock()
		if write.done {
			// Replaced or flushed between firing and locking.
			q.mu.Unlock()
			return
		}
		write.done = true
		delete(q.pending, key)
		q.mu.Unlock()
		q.Submit(task)
	})
	q.pending[key] = write
}

// Flush submits every pending debounced task immediately and waits for all
// in-flight tasks to finish.
func (q *Queue) Flush() {
	q.mu.Lock()
	var tasks []func()
	for key, write := range q.pending {
		if !write.done {
			write.done = true
			write.timer.Stop()
			tasks = append(tasks, write.task)
		}
		delete(q.pending, key)
	}
	q.mu.Unlock()
	for _, task := range tasks {
		q.Submit(task)
	}
	q.wg.Wait()
}

// Close flushes pending work and releases the pool.
func (q *Queue) Close() {
	q.Flush()
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()
	q.wg.Wait()
	q.pool.Release()
}
