//
// Tencent is pleased to support the open source community by making craftgen-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// craftgen-go is licensed under the Apache License Version 2.0.
//
//

package editor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/craftgen/craftgen-go/event"
	"github.com/craftgen/craftgen-go/flow"
	"github.com/craftgen/craftgen-go/node"
	"github.com/craftgen/craftgen-go/nodes"
	"github.com/craftgen/craftgen-go/persistence"
	"github.com/craftgen/craftgen-go/socket"
	"github.com/craftgen/craftgen-go/supervisor"
)

func testKinds() *supervisor.KindSet {
	return supervisor.NewKindSet(
		nodes.Input{},
		nodes.Output{},
		nodes.PromptTemplate{},
		nodes.APIConfiguration{},
		nodes.Thread{},
	)
}

// recorder collects events for assertions.
type recorder struct {
	mu     sync.Mutex
	events []*event.Event
}

func (r *recorder) Emit(e *event.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) count(object string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Object == object {
			n++
		}
	}
	return n
}

func newTestEditor(t *testing.T, opts ...Option) *Editor {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	e, err := New(ctx, "wf_test", testKinds(), opts...)
	require.NoError(t, err)
	t.Cleanup(e.Close)
	return e
}

func addUserSocket(t *testing.T, e *Editor, nodeID string, side socket.Side, key string) {
	t.Helper()
	ref, ok := e.Supervisor().Registry().Get(nodeID)
	require.True(t, ok)
	ref.Send(node.AddSocket{
		Side: side,
		Definition: socket.Definition{
			Key: key, Name: key, Type: socket.TypeString, UserDefined: true, ShowSocket: true,
		},
	})
	require.Eventually(t, func() bool {
		inputs, outputs, ok := e.Sockets(nodeID)
		if !ok {
			return false
		}
		if side == socket.SideInput {
			_, found := inputs[key]
			return found
		}
		_, found := outputs[key]
		return found
	}, time.Second, 5*time.Millisecond)
}

func TestArticleWorkflow(t *testing.T) {
	rec := &recorder{}
	e := newTestEditor(t, WithEmitter(rec))

	_, err := e.CreateNode(CreateNodeRequest{NodeID: "input", MachineID: "InputNode"})
	require.NoError(t, err)
	_, err = e.CreateNode(CreateNodeRequest{NodeID: "template", MachineID: "PromptTemplate"})
	require.NoError(t, err)
	outputRT, err := e.CreateNode(CreateNodeRequest{NodeID: "output", MachineID: "OutputNode"})
	require.NoError(t, err)

	addUserSocket(t, e, "input", socket.SideInput, "title")
	addUserSocket(t, e, "input", socket.SideOutput, "title")
	addUserSocket(t, e, "template", socket.SideInput, "title")
	addUserSocket(t, e, "output", socket.SideInput, "value")
	addUserSocket(t, e, "output", socket.SideOutput, "value")

	require.NoError(t, e.SetValue("template", map[string]any{
		"template": "Create a article for {{title}}",
	}))

	edges := []flow.Edge{
		{Source: "input", SourceOutput: "trigger", Target: "template", TargetInput: "trigger"},
		{Source: "input", SourceOutput: "title", Target: "template", TargetInput: "title"},
		{Source: "template", SourceOutput: "trigger", Target: "output", TargetInput: "trigger"},
		{Source: "template", SourceOutput: "value", Target: "output", TargetInput: "value"},
	}
	for _, edge := range edges {
		require.NoError(t, e.Connect(edge))
	}
	require.Len(t, e.Graph().Edges(), 4)

	execID, err := e.Run(context.Background(), "input", "", map[string]any{"title": "Hello"})
	require.NoError(t, err)
	require.NotEmpty(t, execID)

	assert.Equal(t, "Create a article for Hello", outputRT.Context().Outputs["value"])
	assert.Equal(t, node.StatusComplete, outputRT.Status())

	// One step per node in the chain.
	assert.Equal(t, 3, rec.count(event.ObjectTypeExecutionStepStart))
	assert.Equal(t, 1, rec.count(event.ObjectTypeExecutionStarted))
	assert.Equal(t, 1, rec.count(event.ObjectTypeExecutionCompleted))
}

func TestRunReflectsChangedInput(t *testing.T) {
	e := newTestEditor(t)

	_, err := e.CreateNode(CreateNodeRequest{NodeID: "input", MachineID: "InputNode"})
	require.NoError(t, err)
	_, err = e.CreateNode(CreateNodeRequest{NodeID: "template", MachineID: "PromptTemplate"})
	require.NoError(t, err)

	addUserSocket(t, e, "input", socket.SideInput, "title")
	addUserSocket(t, e, "input", socket.SideOutput, "title")
	addUserSocket(t, e, "template", socket.SideInput, "title")

	require.NoError(t, e.SetValue("template", map[string]any{"template": "Hi {{title}}"}))
	require.NoError(t, e.Connect(flow.Edge{Source: "input", SourceOutput: "trigger", Target: "template", TargetInput: "trigger"}))
	require.NoError(t, e.Connect(flow.Edge{Source: "input", SourceOutput: "title", Target: "template", TargetInput: "title"}))

	_, err = e.Run(context.Background(), "input", "", map[string]any{"title": "One"})
	require.NoError(t, err)
	templateRT, _ := e.Node("template")
	assert.Equal(t, "Hi One", templateRT.Context().Outputs["value"])

	// A second run with a different value must not serve the stale
	// memoized output.
	_, err = e.Run(context.Background(), "input", "", map[string]any{"title": "Two"})
	require.NoError(t, err)
	assert.Equal(t, "Hi Two", templateRT.Context().Outputs["value"])
}

func TestConnectRejectsIncompatibleSockets(t *testing.T) {
	e := newTestEditor(t)

	_, err := e.CreateNode(CreateNodeRequest{NodeID: "a", MachineID: "InputNode"})
	require.NoError(t, err)
	_, err = e.CreateNode(CreateNodeRequest{NodeID: "b", MachineID: "PromptTemplate"})
	require.NoError(t, err)

	ref, _ := e.Supervisor().Registry().Get("a")
	ref.Send(node.AddSocket{
		Side: socket.SideOutput,
		Definition: socket.Definition{
			Key: "count", Name: "count", Type: socket.TypeNumber, UserDefined: true,
		},
	})
	require.Eventually(t, func() bool {
		_, outputs, ok := e.Sockets("a")
		if !ok {
			return false
		}
		_, found := outputs["count"]
		return found
	}, time.Second, 5*time.Millisecond)

	err = e.Connect(flow.Edge{Source: "a", SourceOutput: "count", Target: "b", TargetInput: "template"})
	require.ErrorIs(t, err, flow.ErrIncompatibleSockets)
	assert.Empty(t, e.Graph().Edges())
}

func TestDisconnectRemovesConnectionRecords(t *testing.T) {
	e := newTestEditor(t)

	_, err := e.CreateNode(CreateNodeRequest{NodeID: "input", MachineID: "InputNode"})
	require.NoError(t, err)
	templateRT, err := e.CreateNode(CreateNodeRequest{NodeID: "template", MachineID: "PromptTemplate"})
	require.NoError(t, err)

	edge := flow.Edge{Source: "input", SourceOutput: "trigger", Target: "template", TargetInput: "trigger"}
	require.NoError(t, e.Connect(edge))
	require.Eventually(t, func() bool {
		return templateRT.Context().InputSockets["trigger"].HasConnection()
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, e.Disconnect(edge))
	require.Eventually(t, func() bool {
		return !templateRT.Context().InputSockets["trigger"].HasConnection()
	}, time.Second, 5*time.Millisecond)
	assert.Empty(t, e.Graph().Edges())
}

// memoryStore is an in-memory persistence.Store capturing writes.
type memoryStore struct {
	mu         sync.Mutex
	nodes      map[string]persistence.NodeRecord
	edges      []flow.Edge
	executions []persistence.ExecutionRecord
	contexts   map[string]node.Snapshot
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		nodes:    make(map[string]persistence.NodeRecord),
		contexts: make(map[string]node.Snapshot),
	}
}

func (s *memoryStore) UpsertNode(_ context.Context, record persistence.NodeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes[record.NodeID] = record
	return nil
}

func (s *memoryStore) DeleteNode(_ context.Context, _, nodeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.nodes, nodeID)
	return nil
}

func (s *memoryStore) CreateEdge(_ context.Context, _ string, edge flow.Edge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.edges = append(s.edges, edge)
	return nil
}

func (s *memoryStore) DeleteEdge(_ context.Context, _ string, edge flow.Edge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.edges {
		if existing == edge {
			s.edges = append(s.edges[:i], s.edges[i+1:]...)
			break
		}
	}
	return nil
}

func (s *memoryStore) SetContext(_ context.Context, _, nodeID string, snapshot node.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contexts[nodeID] = snapshot
	if record, ok := s.nodes[nodeID]; ok {
		record.Snapshot = snapshot
		s.nodes[nodeID] = record
	}
	return nil
}

func (s *memoryStore) UpdateNodeMetadata(_ context.Context, _, nodeID string, metadata persistence.NodeMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if record, ok := s.nodes[nodeID]; ok {
		record.Metadata = metadata
		s.nodes[nodeID] = record
	}
	return nil
}

func (s *memoryStore) CreateExecution(_ context.Context, record persistence.ExecutionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executions = append(s.executions, record)
	return nil
}

func (s *memoryStore) LoadWorkflow(_ context.Context, _ string) (*persistence.WorkflowContent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	content := &persistence.WorkflowContent{Edges: append([]flow.Edge(nil), s.edges...)}
	for _, record := range s.nodes {
		content.Nodes = append(content.Nodes, record)
	}
	return content, nil
}

func TestPersistenceRoundTrip(t *testing.T) {
	store := newMemoryStore()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e, err := New(ctx, "wf_persist", testKinds(), WithStore(store))
	require.NoError(t, err)

	_, err = e.CreateNode(CreateNodeRequest{
		NodeID:    "input",
		MachineID: "InputNode",
		Metadata:  persistence.NodeMetadata{Position: persistence.Position{X: 10, Y: 20}},
	})
	require.NoError(t, err)
	_, err = e.CreateNode(CreateNodeRequest{NodeID: "template", MachineID: "PromptTemplate"})
	require.NoError(t, err)

	require.NoError(t, e.SetValue("template", map[string]any{"template": "Hi {{title}}"}))
	require.NoError(t, e.Connect(flow.Edge{
		Source: "input", SourceOutput: "trigger", Target: "template", TargetInput: "trigger",
	}))
	// Let the debounced snapshot writes land before shutdown.
	require.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		snap, ok := store.contexts["template"]
		return ok && snap.Context.Inputs["template"] == "Hi {{title}}"
	}, 2*time.Second, 10*time.Millisecond)
	e.Close()

	store.mu.Lock()
	require.Len(t, store.nodes, 2)
	require.Len(t, store.edges, 1)
	store.mu.Unlock()

	// A fresh editor rebuilds the workflow from the store.
	e2, err := New(ctx, "wf_persist", testKinds(), WithStore(store))
	require.NoError(t, err)
	defer e2.Close()
	require.NoError(t, e2.Load(context.Background()))

	templateRT, ok := e2.Node("template")
	require.True(t, ok)
	assert.Equal(t, "Hi {{title}}", templateRT.Context().Inputs["template"])
	assert.Len(t, e2.Graph().Edges(), 1)
}

func TestRemoveNodeCleansUp(t *testing.T) {
	e := newTestEditor(t)

	_, err := e.CreateNode(CreateNodeRequest{NodeID: "input", MachineID: "InputNode"})
	require.NoError(t, err)
	_, err = e.CreateNode(CreateNodeRequest{NodeID: "template", MachineID: "PromptTemplate"})
	require.NoError(t, err)
	require.NoError(t, e.Connect(flow.Edge{
		Source: "input", SourceOutput: "trigger", Target: "template", TargetInput: "trigger",
	}))

	require.NoError(t, e.RemoveNode("input"))
	_, ok := e.Node("input")
	assert.False(t, ok)
	assert.Empty(t, e.Graph().Edges())
}

func TestRunUnknownNode(t *testing.T) {
	e := newTestEditor(t)
	_, err := e.Run(context.Background(), "ghost", "", nil)
	require.ErrorIs(t, err, flow.ErrNodeNotFound)
}

func TestPureDataOutputsFollowValueChanges(t *testing.T) {
	e := newTestEditor(t)

	rt, err := e.CreateNode(CreateNodeRequest{NodeID: "cfg", MachineID: "ApiConfiguration"})
	require.NoError(t, err)

	outputs, err := e.Outputs("cfg")
	require.NoError(t, err)
	config, ok := outputs["config"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "gpt-4o-mini", config["model"])

	require.NoError(t, e.SetValue("cfg", map[string]any{"model": "gpt-4.1"}))
	require.Eventually(t, func() bool {
		return rt.Context().Inputs["model"] == "gpt-4.1"
	}, time.Second, 5*time.Millisecond)

	// The second pull must recompute from the edited inputs, not serve the
	// outputs stored by the first pull.
	outputs, err = e.Outputs("cfg")
	require.NoError(t, err)
	config, ok = outputs["config"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "gpt-4.1", config["model"])
}

// configConsumer pulls a structured config from a linked ApiConfiguration
// child and republishes it.
type configConsumer struct{}

func (configConsumer) Name() string { return "ConfigConsumer" }

func (configConsumer) InputSockets() socket.Map {
	return socket.Map{
		"cfg": {
			Key:       "cfg",
			Name:      "cfg",
			Type:      socket.TypeObject,
			ActorType: "ApiConfiguration",
			ActorConfig: map[string]socket.ActorConfig{
				"ApiConfiguration": {Internal: map[string]string{"config": "cfg"}},
			},
		},
	}
}

func (configConsumer) OutputSockets() socket.Map {
	return socket.Map{
		"value": {Key: "value", Name: "value", Type: socket.TypeObject},
	}
}

func (configConsumer) Execute(ctx context.Context, call *node.Call) (node.ExecuteResult, error) {
	return node.ExecuteResult{Outputs: map[string]any{"value": call.Inputs["cfg"]}}, nil
}

func TestLinkedConfigChangeReachesParentPull(t *testing.T) {
	kinds := testKinds()
	kinds.Register(configConsumer{})
	rec := &recorder{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e, err := New(ctx, "wf_linked", kinds, WithEmitter(rec))
	require.NoError(t, err)
	defer e.Close()

	rt, err := e.CreateNode(CreateNodeRequest{NodeID: "consumer", MachineID: "ConfigConsumer"})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return len(rt.Children()) == 1
	}, time.Second, 5*time.Millisecond)
	childID := rt.Children()["cfg"]

	outputs, err := e.Outputs("consumer")
	require.NoError(t, err)
	config, ok := outputs["value"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "gpt-4o-mini", config["model"])

	// The first pull memoized the child's config in the data-flow cache;
	// editing the child has to drop that entry.
	before := rec.count(event.ObjectTypeNodeInputs)
	require.NoError(t, e.SetValue(childID, map[string]any{"model": "gpt-4.1"}))
	require.Eventually(t, func() bool {
		return rec.count(event.ObjectTypeNodeInputs) > before
	}, time.Second, 5*time.Millisecond)

	outputs, err = e.Outputs("consumer")
	require.NoError(t, err)
	config, ok = outputs["value"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "gpt-4.1", config["model"])
}

func TestCloseFlushesPendingSnapshots(t *testing.T) {
	store := newMemoryStore()
	rec := &recorder{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e, err := New(ctx, "wf_flush", testKinds(), WithStore(store), WithEmitter(rec))
	require.NoError(t, err)

	_, err = e.CreateNode(CreateNodeRequest{NodeID: "template", MachineID: "PromptTemplate"})
	require.NoError(t, err)

	// Wait for the edit to be observed, not for the debounce to elapse:
	// Close has to flush the write that is still pending.
	before := rec.count(event.ObjectTypeNodeInputs)
	require.NoError(t, e.SetValue("template", map[string]any{"template": "Hi {{title}}"}))
	require.Eventually(t, func() bool {
		return rec.count(event.ObjectTypeNodeInputs) > before
	}, time.Second, 5*time.Millisecond)
	e.Close()

	store.mu.Lock()
	defer store.mu.Unlock()
	snap, ok := store.contexts["template"]
	require.True(t, ok)
	assert.Equal(t, "Hi {{title}}", snap.Context.Inputs["template"])
}

func TestLinkedChildEditPersistsParentSnapshot(t *testing.T) {
	store := newMemoryStore()
	kinds := testKinds()
	kinds.Register(configConsumer{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e, err := New(ctx, "wf_linked_persist", kinds, WithStore(store))
	require.NoError(t, err)
	defer e.Close()

	rt, err := e.CreateNode(CreateNodeRequest{NodeID: "consumer", MachineID: "ConfigConsumer"})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return len(rt.Children()) == 1
	}, time.Second, 5*time.Millisecond)
	childID := rt.Children()["cfg"]

	require.NoError(t, e.SetValue(childID, map[string]any{"model": "gpt-4.1"}))

	// The edit lands inside the parent's persisted snapshot.
	require.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		snap, ok := store.contexts["consumer"]
		if !ok {
			return false
		}
		child, ok := snap.Children[childID]
		return ok && child.Context.Inputs["model"] == "gpt-4.1"
	}, 2*time.Second, 10*time.Millisecond)

	// The child never gets a context row of its own.
	store.mu.Lock()
	_, ok := store.contexts[childID]
	store.mu.Unlock()
	assert.False(t, ok)
}
