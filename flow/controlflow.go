//
// Tencent is pleased to support the open source community by making craftgen-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// craftgen-go is licensed under the Apache License Version 2.0.
//
//

package flow

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/craftgen/craftgen-go/event"
	"github.com/craftgen/craftgen-go/log"
)

// Setup is one node's registration with the control-flow engine. Inputs and
// Outputs enumerate only the socket keys that participate in control flow;
// the filter predicate distinguishing control sockets from data sockets is
// the integrator's, not the engine's.
type Setup struct {
	// Inputs lists the control input keys currently declared.
	Inputs func() []string
	// Outputs lists the control output keys currently declared.
	Outputs func() []string
	// Execute runs the node for one initiating input and calls forward for
	// every control output to continue from. A returned error halts
	// propagation below this node.
	Execute func(ctx context.Context, inputKey string, forward func(outputKey string), execID string) error
}

// ControlFlowOption configures a ControlFlow engine.
type ControlFlowOption func(*ControlFlow)

// WithControlFlowEmitter sets the emitter for execution lifecycle events.
func WithControlFlowEmitter(emitter event.Emitter) ControlFlowOption {
	return func(c *ControlFlow) {
		c.emitter = emitter
	}
}

// WithControlFlowTracer sets the tracer; one span is opened per node step.
func WithControlFlowTracer(tracer trace.Tracer) ControlFlowOption {
	return func(c *ControlFlow) {
		c.tracer = tracer
	}
}

// ControlFlow walks trigger-type edges depth-first from a start node,
// invoking each node's execute and following every forwarded output.
type ControlFlow struct {
	mu      sync.RWMutex
	graph   *Graph
	setups  map[string]Setup
	emitter event.Emitter
	tracer  trace.Tracer
}

// NewControlFlow creates a control-flow engine over the given edge store.
func NewControlFlow(graph *Graph, opts ...ControlFlowOption) *ControlFlow {
	c := &ControlFlow{
		graph:   graph,
		setups:  make(map[string]Setup),
		emitter: event.Nop(),
		tracer:  noop.NewTracerProvider().Tracer("controlflow"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Add registers a node's setup; called when the node is created.
func (c *ControlFlow) Add(nodeID string, setup Setup) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setups[nodeID] = setup
}

// Remove forgets a node; called when the node is destroyed.
func (c *ControlFlow) Remove(nodeID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.setups, nodeID)
}

// Execute propagates execution starting from nodeID. inputKey, when given,
// names the initiating control input and must be declared on the node.
// execID correlates one logical run and is threaded through unchanged; a
// fresh id is generated when empty.
func (c *ControlFlow) Execute(ctx context.Context, nodeID, inputKey, execID string) error {
	if execID == "" {
		execID = uuid.New().String()
	}
	c.emitter.Emit(event.New(event.ObjectTypeExecutionStarted,
		event.WithNodeID(nodeID), event.WithExecutionID(execID)))

	if err := c.execute(ctx, nodeID, inputKey, execID); err != nil {
		c.emitter.Emit(event.New(event.ObjectTypeExecutionFailed,
			event.WithNodeID(nodeID), event.WithExecutionID(execID),
			event.WithPayload(err.Error())))
		return err
	}
	c.emitter.Emit(event.New(event.ObjectTypeExecutionCompleted,
		event.WithNodeID(nodeID), event.WithExecutionID(execID)))
	return nil
}

func (c *ControlFlow) execute(ctx context.Context, nodeID, inputKey, execID string) error {
	c.mu.RLock()
	setup, ok := c.setups[nodeID]
	c.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, nodeID)
	}
	if inputKey != "" && !contains(setup.Inputs(), inputKey) {
		return fmt.Errorf("%w: %s on %s", ErrUnknownInput, inputKey, nodeID)
	}

	ctx, span := c.tracer.Start(ctx, "controlflow.execute",
		trace.WithAttributes(
			attribute.String("node.id", nodeID),
			attribute.String("execution.id", execID),
		))
	defer span.End()

	c.emitter.Emit(event.New(event.ObjectTypeExecutionStepStart,
		event.WithNodeID(nodeID), event.WithExecutionID(execID)))

	var forwarded []string
	forward := func(outputKey string) {
		if !contains(setup.Outputs(), outputKey) {
			log.Debugf("controlflow: node %s forwarded unknown output %q", nodeID, outputKey)
			return
		}
		forwarded = append(forwarded, outputKey)
	}

	if err := setup.Execute(ctx, inputKey, forward, execID); err != nil {
		span.SetStatus(codes.Error, err.Error())
		c.emitter.Emit(event.New(event.ObjectTypeExecutionStepFailed,
			event.WithNodeID(nodeID), event.WithExecutionID(execID),
			event.WithPayload(err.Error())))
		return err
	}

	c.emitter.Emit(event.New(event.ObjectTypeExecutionStepComplete,
		event.WithNodeID(nodeID), event.WithExecutionID(execID)))

	// Depth-first: every forwarded output fans out to its connected
	// targets before the next forwarded output is considered.
	for _, outputKey := range forwarded {
		for _, edge := range c.graph.From(nodeID, outputKey) {
			if err := c.execute(ctx, edge.Target, edge.TargetInput, execID); err != nil {
				return err
			}
		}
	}
	return nil
}

func contains(keys []string, key string) bool {
	for _, k := range keys {
		if k == key {
			return true
		}
	}
	return false
}
