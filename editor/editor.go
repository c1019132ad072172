//
// Tencent is pleased to support the open source community by making craftgen-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// craftgen-go is licensed under the Apache License Version 2.0.
//
//

// Package editor is the top-level façade over one workflow instance: it
// wires the supervisor, the two flow engines, and the persistence queue
// together, and exposes the operations the editing surface calls.
package editor

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/craftgen/craftgen-go/actor"
	"github.com/craftgen/craftgen-go/event"
	"github.com/craftgen/craftgen-go/flow"
	"github.com/craftgen/craftgen-go/log"
	"github.com/craftgen/craftgen-go/node"
	"github.com/craftgen/craftgen-go/persistence"
	"github.com/craftgen/craftgen-go/socket"
	"github.com/craftgen/craftgen-go/supervisor"
	"github.com/craftgen/craftgen-go/telemetry"
)

// contextDebounce is how long a node must stay quiet before its snapshot is
// written. A burst of transitions produces one write.
const contextDebounce = 250 * time.Millisecond

// Option configures an Editor.
type Option func(*Editor)

// WithStore enables persistence through the given backend.
func WithStore(store persistence.Store) Option {
	return func(e *Editor) {
		e.store = store
	}
}

// WithEmitter subscribes an external emitter to every event the workflow
// produces.
func WithEmitter(emitter event.Emitter) Option {
	return func(e *Editor) {
		e.external = emitter
	}
}

// WithTracer sets the tracer the control-flow engine opens per-step spans
// on.
func WithTracer(tracer trace.Tracer) Option {
	return func(e *Editor) {
		e.tracer = tracer
	}
}

// Editor owns one workflow instance.
type Editor struct {
	id string

	sup       *supervisor.Supervisor
	graph     *flow.Graph
	connector *flow.Connector
	control   *flow.ControlFlow
	data      *flow.DataFlow

	store    persistence.Store
	queue    *persistence.Queue
	external event.Emitter
	tracer   trace.Tracer
}

// New creates an editor for the given workflow id. ctx bounds the lifetime
// of every actor the workflow spawns.
func New(ctx context.Context, workflowID string, kinds *supervisor.KindSet, opts ...Option) (*Editor, error) {
	e := &Editor{
		id:       workflowID,
		graph:    flow.NewGraph(),
		external: event.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}

	queue, err := persistence.NewQueue()
	if err != nil {
		return nil, fmt.Errorf("create persistence queue: %w", err)
	}
	e.queue = queue

	e.data = flow.NewDataFlow(e.graph, e, e)

	emitter := event.Multi(event.EmitterFunc(e.observe), e.external)
	e.sup = supervisor.New(ctx, kinds,
		supervisor.WithEmitter(emitter),
		supervisor.WithResolver(e.data),
		supervisor.WithSpawnHook(e.onSpawn),
		supervisor.WithDestroyHook(e.onDestroy),
	)

	if e.tracer == nil {
		e.tracer = telemetry.Tracer
	}
	e.control = flow.NewControlFlow(e.graph,
		flow.WithControlFlowEmitter(emitter),
		flow.WithControlFlowTracer(e.tracer),
	)

	e.connector = &flow.Connector{
		Sockets:   e,
		NodeTypes: kinds.Names(),
		KindOf:    e.kindOf,
	}
	return e, nil
}

// ID returns the workflow id.
func (e *Editor) ID() string {
	return e.id
}

// Supervisor exposes the actor supervisor.
func (e *Editor) Supervisor() *supervisor.Supervisor {
	return e.sup
}

// Graph exposes the edge store.
func (e *Editor) Graph() *flow.Graph {
	return e.graph
}

// Node resolves a live node runtime.
func (e *Editor) Node(nodeID string) (*node.Runtime, bool) {
	return e.sup.Get(nodeID)
}

// CreateNodeRequest describes a node to add to the workflow.
type CreateNodeRequest struct {
	NodeID    string
	MachineID string
	Input     map[string]any
	Metadata  persistence.NodeMetadata
}

// CreateNode spawns a node and persists it. An empty NodeID gets a fresh
// one.
func (e *Editor) CreateNode(req CreateNodeRequest) (*node.Runtime, error) {
	if req.NodeID == "" {
		req.NodeID = fmt.Sprintf("node_%s", uuid.New().String()[:8])
	}
	rt, err := e.sup.Spawn(supervisor.SpawnRequest{
		SystemID:  req.NodeID,
		MachineID: req.MachineID,
		Input:     req.Input,
	})
	if err != nil {
		return nil, err
	}
	if e.store != nil {
		record := persistence.NodeRecord{
			WorkflowID: e.id,
			NodeID:     req.NodeID,
			MachineID:  req.MachineID,
			Snapshot:   rt.Snapshot(),
			Metadata:   req.Metadata,
		}
		e.queue.Submit(func() {
			if err := e.store.UpsertNode(context.Background(), record); err != nil {
				log.Errorf("editor %s: upsert node %s: %v", e.id, record.NodeID, err)
			}
		})
	}
	return rt, nil
}

// RemoveNode disconnects, destroys, and unpersists a node.
func (e *Editor) RemoveNode(nodeID string) error {
	for _, edge := range e.graph.Edges() {
		if edge.Source == nodeID || edge.Target == nodeID {
			if err := e.Disconnect(edge); err != nil {
				log.Debugf("editor %s: disconnect during removal: %v", e.id, err)
			}
		}
	}
	if err := e.sup.Destroy(nodeID); err != nil {
		return err
	}
	if e.store != nil {
		e.queue.Submit(func() {
			if err := e.store.DeleteNode(context.Background(), e.id, nodeID); err != nil {
				log.Errorf("editor %s: delete node %s: %v", e.id, nodeID, err)
			}
		})
	}
	return nil
}

// Connect validates and materializes an edge: the graph gains it, both end
// sockets record the peer, and it is persisted.
func (e *Editor) Connect(edge flow.Edge) error {
	if err := e.connector.Connect(e.graph, edge); err != nil {
		return err
	}

	sourceAddr := socket.Address{Node: edge.Source, Side: socket.SideOutput, Key: edge.SourceOutput}
	targetAddr := socket.Address{Node: edge.Target, Side: socket.SideInput, Key: edge.TargetInput}
	if source, ok := e.sup.Registry().Get(edge.Source); ok {
		source.Send(node.UpdateSocket{
			Name: edge.SourceOutput,
			Side: socket.SideOutput,
			Socket: socket.Definition{
				Connections: map[string]string{targetAddr.String(): edge.TargetInput},
			},
		})
	}
	if target, ok := e.sup.Registry().Get(edge.Target); ok {
		target.Send(node.UpdateSocket{
			Name: edge.TargetInput,
			Side: socket.SideInput,
			Socket: socket.Definition{
				Connections: map[string]string{sourceAddr.String(): edge.SourceOutput},
			},
		})
	}

	if e.store != nil {
		e.queue.Submit(func() {
			if err := e.store.CreateEdge(context.Background(), e.id, edge); err != nil {
				log.Errorf("editor %s: create edge: %v", e.id, err)
			}
		})
	}
	return nil
}

// Disconnect removes an edge and the connection records on both sockets.
func (e *Editor) Disconnect(edge flow.Edge) error {
	e.graph.Remove(edge)

	sourceAddr := socket.Address{Node: edge.Source, Side: socket.SideOutput, Key: edge.SourceOutput}
	targetAddr := socket.Address{Node: edge.Target, Side: socket.SideInput, Key: edge.TargetInput}
	if source, ok := e.sup.Registry().Get(edge.Source); ok {
		source.Send(node.RemoveConnection{
			Name:      edge.SourceOutput,
			Side:      socket.SideOutput,
			Addresses: []string{targetAddr.String()},
		})
	}
	if target, ok := e.sup.Registry().Get(edge.Target); ok {
		target.Send(node.RemoveConnection{
			Name:      edge.TargetInput,
			Side:      socket.SideInput,
			Addresses: []string{sourceAddr.String()},
		})
	}

	if e.store != nil {
		e.queue.Submit(func() {
			if err := e.store.DeleteEdge(context.Background(), e.id, edge); err != nil {
				log.Errorf("editor %s: delete edge: %v", e.id, err)
			}
		})
	}
	return nil
}

// SetValue merges control values into a node's inputs.
func (e *Editor) SetValue(nodeID string, values map[string]any) error {
	ref, ok := e.sup.Registry().Get(nodeID)
	if !ok {
		return fmt.Errorf("%w: %s", supervisor.ErrActorNotFound, nodeID)
	}
	ref.Send(node.SetValue{Values: values, Origin: "api"})
	return nil
}

// UpdateMetadata persists a node's editor metadata (placement, label).
func (e *Editor) UpdateMetadata(nodeID string, metadata persistence.NodeMetadata) {
	if e.store == nil {
		return
	}
	e.queue.Submit(func() {
		if err := e.store.UpdateNodeMetadata(context.Background(), e.id, nodeID, metadata); err != nil {
			log.Errorf("editor %s: update metadata %s: %v", e.id, nodeID, err)
		}
	})
}

// Run starts one execution from the given node. values, when non-nil, are
// set on the entry node first. It blocks until the chain settles and
// returns the execution id.
func (e *Editor) Run(ctx context.Context, nodeID, inputKey string, values map[string]any) (string, error) {
	if values != nil {
		if err := e.SetValue(nodeID, values); err != nil {
			return "", err
		}
	}
	execID := uuid.New().String()
	if e.store != nil {
		record := persistence.ExecutionRecord{
			ID:          execID,
			WorkflowID:  e.id,
			EntryNodeID: nodeID,
			StartedAt:   time.Now(),
		}
		e.queue.Submit(func() {
			if err := e.store.CreateExecution(context.Background(), record); err != nil {
				log.Errorf("editor %s: create execution: %v", e.id, err)
			}
		})
	}
	return execID, e.control.Execute(ctx, nodeID, inputKey, execID)
}

// Load rebuilds the workflow from the store: nodes are respawned from their
// snapshots, edges reload unconditionally.
func (e *Editor) Load(ctx context.Context) error {
	if e.store == nil {
		return fmt.Errorf("editor %s has no store", e.id)
	}
	content, err := e.store.LoadWorkflow(ctx, e.id)
	if err != nil {
		return fmt.Errorf("load workflow %s: %w", e.id, err)
	}
	for _, record := range content.Nodes {
		snap := record.Snapshot
		if _, err := e.sup.Spawn(supervisor.SpawnRequest{
			SystemID:  record.NodeID,
			MachineID: record.MachineID,
			Snapshot:  &snap,
		}); err != nil {
			log.Errorf("editor %s: respawn %s: %v", e.id, record.NodeID, err)
		}
	}
	for _, edge := range content.Edges {
		e.graph.Add(edge)
	}
	return nil
}

// Close flushes pending persistence work and stops every actor. The queue
// drains first: debounced snapshot writes need the runtimes still live.
func (e *Editor) Close() {
	e.queue.Close()
	e.sup.Shutdown()
}

// Sockets implements flow.SocketSource over the live runtimes.
func (e *Editor) Sockets(nodeID string) (socket.Map, socket.Map, bool) {
	rt, ok := e.sup.Get(nodeID)
	if !ok {
		return nil, nil, false
	}
	state := rt.Context()
	return state.InputSockets, state.OutputSockets, true
}

// Outputs implements flow.OutputSource. Nodes with stored outputs return
// them as-is; pure data nodes (no trigger inputs) that have not produced
// outputs yet are computed on demand, the pull the data-flow engine is
// built around.
func (e *Editor) Outputs(nodeID string) (map[string]any, error) {
	rt, ok := e.sup.Get(nodeID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", supervisor.ErrActorNotFound, nodeID)
	}
	state := rt.Context()
	if rt.Status() == node.StatusRunning {
		return state.Outputs, nil
	}
	if len(state.InputSockets.Triggers()) > 0 {
		// Trigger-driven nodes only produce outputs when executed.
		return state.Outputs, nil
	}

	// Pure data nodes recompute on every pull, so stored outputs never
	// outlive an input edit. Memoization between edits lives in the
	// data-flow cache.
	done := actor.NewFuture[node.RunOutcome]()
	rt.Ref().Send(node.Run{Done: done})
	outcome, err := done.Wait(context.Background())
	if err != nil {
		return nil, err
	}
	if outcome.Err != nil {
		return nil, fmt.Errorf("compute %s: %s", nodeID, outcome.Err.Message)
	}
	return outcome.Outputs, nil
}

func (e *Editor) kindOf(nodeID string) string {
	rt, ok := e.sup.Get(nodeID)
	if !ok {
		return ""
	}
	return rt.KindName()
}

// onSpawn registers a node with the control-flow engine and persists it.
func (e *Editor) onSpawn(rt *node.Runtime) {
	nodeID := rt.ID()
	e.control.Add(nodeID, flow.Setup{
		Inputs: func() []string {
			state, _, ok := e.Sockets(nodeID)
			if !ok {
				return nil
			}
			return state.Triggers().Keys()
		},
		Outputs: func() []string {
			_, outputs, ok := e.Sockets(nodeID)
			if !ok {
				return nil
			}
			return outputs.Triggers().Keys()
		},
		Execute: e.executeNode(nodeID),
	})
}

// executeNode adapts one node actor to the control-flow engine's setup
// contract: send RUN, wait for the outcome, forward what the node chose.
func (e *Editor) executeNode(nodeID string) func(ctx context.Context, inputKey string, forward func(string), execID string) error {
	return func(ctx context.Context, inputKey string, forward func(string), execID string) error {
		ref, ok := e.sup.Registry().Get(nodeID)
		if !ok {
			return fmt.Errorf("%w: %s", supervisor.ErrActorNotFound, nodeID)
		}
		done := actor.NewFuture[node.RunOutcome]()
		ref.Send(node.Run{
			ExecutionID: execID,
			InputKey:    inputKey,
			Done:        done,
		})
		outcome, err := done.Wait(ctx)
		if err != nil {
			return err
		}
		if outcome.Status == node.StatusError && outcome.Err != nil {
			return fmt.Errorf("node %s: %s: %s", nodeID, outcome.Err.Name, outcome.Err.Message)
		}
		for _, output := range outcome.Forward {
			forward(output)
		}
		return nil
	}
}

func (e *Editor) onDestroy(nodeID string) {
	e.control.Remove(nodeID)
	e.data.Forget(nodeID)
	e.graph.RemoveNode(nodeID)
}

// observe is the editor's internal event subscriber: output changes
// invalidate the data-flow cache, input edits on pure data nodes drop their
// memoized outputs, and every node-scoped event schedules a debounced
// snapshot write.
func (e *Editor) observe(evt *event.Event) {
	if evt.NodeID == "" {
		return
	}
	switch evt.Object {
	case event.ObjectTypeNodeOutputs:
		if outputs, ok := evt.Payload.(map[string]any); ok {
			e.data.Invalidate(evt.NodeID, outputs)
		}
	case event.ObjectTypeNodeInputs:
		// A pure data node's outputs are derived from its inputs; an edit
		// stales whatever downstream pulls have memoized.
		if rt, ok := e.sup.Get(evt.NodeID); ok && len(rt.Context().InputSockets.Triggers()) == 0 {
			e.data.Reset(evt.NodeID)
		}
	}
	if e.store == nil {
		return
	}
	// Linked children persist inside their parent's snapshot; the write
	// goes to the root ancestor that owns the persisted row.
	rootID := e.rootAncestor(evt.NodeID)
	if rootID == "" {
		return
	}
	e.queue.Debounce(rootID, contextDebounce, func() {
		snap, err := e.sup.Snapshot(rootID)
		if err != nil {
			return
		}
		if err := e.store.SetContext(context.Background(), e.id, rootID, snap); err != nil {
			log.Errorf("editor %s: persist context %s: %v", e.id, rootID, err)
		}
	})
}

// rootAncestor follows parent links up to the node that owns the persisted
// snapshot row, or "" when the node is gone.
func (e *Editor) rootAncestor(nodeID string) string {
	for {
		rt, ok := e.sup.Get(nodeID)
		if !ok {
			return ""
		}
		link := rt.Context().ParentLink
		if link == nil {
			return nodeID
		}
		nodeID = link.ActorID
	}
}
