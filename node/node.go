//
// Tencent is pleased to support the open source community by making craftgen-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// craftgen-go is licensed under the Apache License Version 2.0.
//
//

// Package node implements the per-node state machine runtime. Every node
// type supplies a Kind (a value with a pure execute function); the generic
// Runtime implements the cross-cutting behaviors once: input pruning, socket
// schema sync, linked child assignment, error capture, and successor wake-up.
package node

import (
	"context"

	"github.com/craftgen/craftgen-go/actor"
	"github.com/craftgen/craftgen-go/socket"
)

// Status is the run state of a node.
type Status string

const (
	// StatusIdle means the node has not run in the current cycle.
	StatusIdle Status = "idle"
	// StatusRunning means a run is in progress.
	StatusRunning Status = "running"
	// StatusComplete means the last run finished successfully.
	StatusComplete Status = "complete"
	// StatusError means the last run failed; a fresh RUN is the only
	// recovery path.
	StatusError Status = "error"
)

// Error is a captured runtime failure, kept addressable on the node context.
type Error struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

// ParentLink records that this node is a linked configuration child feeding
// one input socket of its parent.
type ParentLink struct {
	// ActorID is the parent node's system id.
	ActorID string `json:"id"`
	// PortKey is the parent input socket key this child feeds.
	PortKey string `json:"port"`
}

// Context is the state owned by one node actor.
type Context struct {
	ID            string         `json:"id"`
	InputSockets  socket.Map     `json:"inputSockets"`
	OutputSockets socket.Map     `json:"outputSockets"`
	Inputs        map[string]any `json:"inputs"`
	Outputs       map[string]any `json:"outputs"`
	ParentLink    *ParentLink    `json:"parent,omitempty"`
	LastError     *Error         `json:"error,omitempty"`
}

// Clone returns a copy with fresh top-level maps.
func (c Context) Clone() Context {
	out := c
	out.InputSockets = c.InputSockets.Clone()
	out.OutputSockets = c.OutputSockets.Clone()
	out.Inputs = cloneValues(c.Inputs)
	out.Outputs = cloneValues(c.Outputs)
	if c.ParentLink != nil {
		link := *c.ParentLink
		out.ParentLink = &link
	}
	if c.LastError != nil {
		lastErr := *c.LastError
		out.LastError = &lastErr
	}
	return out
}

func cloneValues(values map[string]any) map[string]any {
	out := make(map[string]any, len(values))
	for k, v := range values {
		out[k] = v
	}
	return out
}

// Universal messages accepted by every node actor.

// SetValue merges values into the node's inputs. Keys without a matching
// input socket are pruned, defensively against stale schema. No implicit
// re-run happens.
type SetValue struct {
	Values map[string]any
	// Origin describes the sender for debugging (socket address, "api", …).
	Origin string
}

// Run requests one execution of the node.
type Run struct {
	// ExecutionID correlates one logical run across nodes.
	ExecutionID string
	// InputKey names the trigger input that initiated this run, when the
	// run arrives over a graph edge.
	InputKey string
	// Values optionally overrides input values for this run only.
	Values map[string]any
	// Sender is the system id of the node that requested the run.
	Sender string
	// Done resolves when the run reaches a terminal state.
	Done *actor.Future[RunOutcome]
}

// RunOutcome is published into Run.Done when the run settles.
type RunOutcome struct {
	Status  Status
	Outputs map[string]any
	// Forward lists the output socket keys the node chose to forward on,
	// in order. The control-flow engine follows trigger edges from these.
	Forward []string
	Err     *Error
}

// UpdateSocket merges a partial definition into one socket. Unknown socket
// names are a no-op (logged), never created.
type UpdateSocket struct {
	Name   string
	Side   socket.Side
	Socket socket.Definition
}

// AddSocket adds a user-defined socket to one side of the node.
type AddSocket struct {
	Side       socket.Side
	Definition socket.Definition
}

// RemoveSocket removes a user-defined socket; values stored for it are
// pruned. Non-user-defined sockets are protected.
type RemoveSocket struct {
	Side socket.Side
	Key  string
}

// RemoveConnection deletes recorded peer connections from one socket, the
// counterpart of the additive merge UpdateSocket performs.
type RemoveConnection struct {
	Name      string
	Side      socket.Side
	Addresses []string
}

// AssignChild records a spawned linked configuration child against the
// input socket named by Port and wires the internal back-connections
// declared by that socket's actor config.
type AssignChild struct {
	Actor     *actor.Ref
	ChildID   string
	MachineID string
	Port      string
}

// Reset returns the node to idle, clearing outputs and the captured error.
// Results of in-flight async work arriving afterwards are ignored.
type Reset struct{}

// Initialize re-runs the runtime's initialization (socket actors, linked
// child spawning) after re-hydration.
type Initialize struct{}

// SetOutput assigns one output value and wakes successors connected to that
// output socket.
type SetOutput struct {
	Key   string
	Value any
}

// Result delivers the outcome of an asynchronous call (tool invocation,
// remote request) back into the actor. ID correlates with the call the node
// issued; stale results after a Reset are dropped.
type Result struct {
	ID    string
	OK    bool
	Value any
}

// Call is what a Kind's execute function gets to work with: the resolved
// inputs and the identity of the run. Everything else (status transitions,
// error capture, successor wake-up) is the runtime's job.
type Call struct {
	NodeID      string
	ExecutionID string
	InputKey    string
	// Inputs holds the resolved input values: pulled from upstream
	// connections first (connections win), control values as fallback.
	Inputs map[string]any
	// Context is a read-only snapshot of the node's context.
	Context Context
}

// ExecuteResult is the outcome of a Kind's execute function.
type ExecuteResult struct {
	// Outputs are merged into the node's outputs.
	Outputs map[string]any
	// Forward lists output socket keys the control-flow engine should
	// follow (normally the trigger output).
	Forward []string
	// WakeSuccessors lists non-trigger output socket keys whose connected
	// peers should be executed directly, outside the engine's edge walk.
	WakeSuccessors []string
	// Pending, when non-empty, marks the run as waiting for a Result
	// message with this call id instead of completing now.
	Pending string
}

// Kind is one node type: its declared socket schema plus its execute logic.
type Kind interface {
	// Name is the machine type id the supervisor registers the kind under.
	Name() string
	// InputSockets returns the declared input schema.
	InputSockets() socket.Map
	// OutputSockets returns the declared output schema.
	OutputSockets() socket.Map
	// Execute performs one run. It must not retain call.
	Execute(ctx context.Context, call *Call) (ExecuteResult, error)
}

// ResultKind is implemented by kinds that issue asynchronous calls and
// resume when a Result message arrives.
type ResultKind interface {
	Kind
	// OnResult resumes a pending run with the delivered result.
	OnResult(ctx context.Context, call *Call, res Result) (ExecuteResult, error)
}

// Registry resolves system ids to live actor handles. The supervisor's
// registry implements it; tests may substitute an isolated one.
type Registry interface {
	Get(systemID string) (*actor.Ref, bool)
	Register(systemID string, ref *actor.Ref)
	Unregister(systemID string)
}

// Spawner spawns linked configuration child actors on behalf of a node.
type Spawner interface {
	SpawnLinked(req SpawnLinkedRequest)
}

// SpawnLinkedRequest asks the supervisor for a linked configuration child.
type SpawnLinkedRequest struct {
	// ParentID is the requesting node's system id.
	ParentID string
	// Port is the parent input socket key the child feeds.
	Port string
	// MachineID is the child's machine type id (x-actor-type).
	MachineID string
	// Input seeds the child's initial input values (the socket default).
	Input map[string]any
}

// InputResolver is the data-flow engine boundary the runtime pulls resolved
// input values through.
type InputResolver interface {
	FetchInputs(nodeID string) (map[string]any, error)
	Reset(nodeID string)
}
