//
// Tencent is pleased to support the open source community by making craftgen-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// craftgen-go is licensed under the Apache License Version 2.0.
//
//

// Package event defines the explicit event values node runtimes emit on every
// state transition. Subscribers (the editing surface, execution observers,
// tests) consume these instead of reacting to ambient state mutation.
package event

import (
	"time"

	"github.com/google/uuid"
)

// Object type constants for emitted events.
const (
	// ObjectTypeNodeStatus signals a run status transition on a node.
	ObjectTypeNodeStatus = "node.status"
	// ObjectTypeNodeInputs signals a change to a node's input values.
	ObjectTypeNodeInputs = "node.inputs"
	// ObjectTypeNodeOutputs signals a change to a node's output values.
	ObjectTypeNodeOutputs = "node.outputs"
	// ObjectTypeNodeSockets signals a socket schema change on a node.
	ObjectTypeNodeSockets = "node.sockets"
	// ObjectTypeNodeError signals a captured runtime error on a node.
	ObjectTypeNodeError = "node.error"
	// ObjectTypeExecutionStarted signals the start of a control-flow run.
	ObjectTypeExecutionStarted = "execution.started"
	// ObjectTypeExecutionStepStart signals one node entering execution.
	ObjectTypeExecutionStepStart = "execution.step.start"
	// ObjectTypeExecutionStepComplete signals one node finishing execution.
	ObjectTypeExecutionStepComplete = "execution.step.complete"
	// ObjectTypeExecutionStepFailed signals one node failing execution.
	ObjectTypeExecutionStepFailed = "execution.step.failed"
	// ObjectTypeExecutionCompleted signals the end of a control-flow run.
	ObjectTypeExecutionCompleted = "execution.completed"
	// ObjectTypeExecutionFailed signals an aborted control-flow run.
	ObjectTypeExecutionFailed = "execution.failed"
)

// Event is one observable fact about a node or an execution.
type Event struct {
	// ID uniquely identifies the event.
	ID string `json:"id"`
	// Object classifies the event (Object type constants above).
	Object string `json:"object"`
	// NodeID is the node the event concerns, when node-scoped.
	NodeID string `json:"nodeId,omitempty"`
	// ExecutionID correlates events belonging to one logical run.
	ExecutionID string `json:"executionId,omitempty"`
	// Payload carries event-specific data.
	Payload any `json:"payload,omitempty"`
	// Timestamp is the emission time.
	Timestamp time.Time `json:"timestamp"`
}

// New creates an event with a fresh id and the current time.
func New(object string, opts ...Option) *Event {
	e := &Event{
		ID:        uuid.New().String(),
		Object:    object,
		Timestamp: time.Now(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Option configures a new event.
type Option func(*Event)

// WithNodeID scopes the event to a node.
func WithNodeID(nodeID string) Option {
	return func(e *Event) {
		e.NodeID = nodeID
	}
}

// WithExecutionID correlates the event with a run.
func WithExecutionID(executionID string) Option {
	return func(e *Event) {
		e.ExecutionID = executionID
	}
}

// WithPayload attaches event-specific data.
func WithPayload(payload any) Option {
	return func(e *Event) {
		e.Payload = payload
	}
}

// Emitter receives events from a node runtime or engine. Implementations
// must not block; slow consumers should buffer internally.
type Emitter interface {
	Emit(e *Event)
}

// EmitterFunc adapts a function to the Emitter interface.
type EmitterFunc func(e *Event)

// Emit implements Emitter.
func (f EmitterFunc) Emit(e *Event) {
	f(e)
}

// Nop returns an emitter that discards all events.
func Nop() Emitter {
	return EmitterFunc(func(*Event) {})
}

// Multi fans one event out to several emitters in order.
func Multi(emitters ...Emitter) Emitter {
	return EmitterFunc(func(e *Event) {
		for _, emitter := range emitters {
			emitter.Emit(e)
		}
	})
}
