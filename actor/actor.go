//
// Tencent is pleased to support the open source community by making craftgen-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// craftgen-go is licensed under the Apache License Version 2.0.
//
//

// Package actor implements the minimal mailbox actor runtime the node
// machines run on: one goroutine per actor, an ordered mailbox, and
// send-and-continue message passing. Cross-actor communication never shares
// mutable memory; completion of asynchronous work re-enters the actor as an
// ordinary message.
package actor

import (
	"context"
	"sync"

	"github.com/craftgen/craftgen-go/log"
)

// Message is any value delivered to an actor's mailbox.
type Message any

// Behavior processes one message at a time. Implementations own their state
// exclusively; Receive is never invoked concurrently for the same actor.
type Behavior interface {
	Receive(ctx context.Context, msg Message)
}

// BehaviorFunc adapts a function to the Behavior interface.
type BehaviorFunc func(ctx context.Context, msg Message)

// Receive implements Behavior.
func (f BehaviorFunc) Receive(ctx context.Context, msg Message) {
	f(ctx, msg)
}

const defaultMailboxSize = 256

// Options configures a spawned actor.
type Options struct {
	// MailboxSize is the mailbox buffer size (default 256).
	MailboxSize int
}

// Option is a function that configures actor Options.
type Option func(*Options)

// WithMailboxSize sets the mailbox buffer size.
func WithMailboxSize(size int) Option {
	return func(o *Options) {
		o.MailboxSize = size
	}
}

// Ref is the transient in-memory handle to a running actor. Messages sent to
// one Ref are processed in send order; there is no ordering guarantee across
// different actors.
type Ref struct {
	id       string
	mailbox  chan Message
	quit     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
}

// Spawn starts an actor running behavior and returns its handle. The actor
// keeps processing until Stop is called or ctx is cancelled.
func Spawn(ctx context.Context, id string, behavior Behavior, opts ...Option) *Ref {
	options := Options{MailboxSize: defaultMailboxSize}
	for _, opt := range opts {
		opt(&options)
	}
	r := &Ref{
		id:      id,
		mailbox: make(chan Message, options.MailboxSize),
		quit:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go r.loop(ctx, behavior)
	return r
}

// ID returns the actor's handle id.
func (r *Ref) ID() string {
	return r.id
}

// Send delivers msg to the actor's mailbox without waiting for it to be
// processed. Messages sent after the actor stopped are dropped.
func (r *Ref) Send(msg Message) {
	select {
	case <-r.quit:
		log.Debugf("actor %s: dropping message after stop: %T", r.id, msg)
		return
	default:
	}
	select {
	case r.mailbox <- msg:
	case <-r.quit:
		log.Debugf("actor %s: dropping message after stop: %T", r.id, msg)
	}
}

// Stop shuts the actor down. Queued messages that were not yet processed are
// discarded. Stop is idempotent and safe to call from any goroutine,
// including the actor's own.
func (r *Ref) Stop() {
	r.stopOnce.Do(func() {
		close(r.quit)
	})
}

// Done returns a channel closed once the actor's loop has exited.
func (r *Ref) Done() <-chan struct{} {
	return r.stopped
}

func (r *Ref) loop(ctx context.Context, behavior Behavior) {
	defer close(r.stopped)
	for {
		select {
		case <-r.quit:
			return
		case <-ctx.Done():
			r.Stop()
			return
		case msg := <-r.mailbox:
			r.dispatch(ctx, behavior, msg)
		}
	}
}

// dispatch isolates panics so a malfunctioning behavior stops progressing
// instead of crashing the process.
func (r *Ref) dispatch(ctx context.Context, behavior Behavior, msg Message) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Errorf("actor %s: panic handling %T: %v", r.id, msg, rec)
		}
	}()
	behavior.Receive(ctx, msg)
}
