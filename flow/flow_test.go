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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/craftgen/craftgen-go/event"
	"github.com/craftgen/craftgen-go/socket"
)

// fakeSockets is an in-memory SocketSource keyed by node id.
type fakeSockets struct {
	inputs  map[string]socket.Map
	outputs map[string]socket.Map
}

func (f *fakeSockets) Sockets(nodeID string) (socket.Map, socket.Map, bool) {
	in, ok := f.inputs[nodeID]
	if !ok {
		return nil, nil, false
	}
	return in, f.outputs[nodeID], true
}

func stringSocket(key string) socket.Definition {
	return socket.Definition{Key: key, Name: key, Type: socket.TypeString}
}

func triggerSocket(key, eventName string) socket.Definition {
	return socket.Definition{Key: key, Name: key, Type: socket.TypeTrigger, Event: eventName}
}

func TestGraphAddRemove(t *testing.T) {
	g := NewGraph()
	edge := Edge{Source: "a", SourceOutput: "value", Target: "b", TargetInput: "title"}
	g.Add(edge)
	g.Add(edge) // duplicate is ignored
	require.Len(t, g.Edges(), 1)

	g.Remove(edge)
	assert.Empty(t, g.Edges())
}

func TestGraphRemoveNode(t *testing.T) {
	g := NewGraph()
	g.Add(Edge{Source: "a", SourceOutput: "value", Target: "b", TargetInput: "title"})
	g.Add(Edge{Source: "b", SourceOutput: "value", Target: "c", TargetInput: "title"})
	g.Add(Edge{Source: "c", SourceOutput: "value", Target: "d", TargetInput: "title"})

	g.RemoveNode("b")
	edges := g.Edges()
	require.Len(t, edges, 1)
	assert.Equal(t, "c", edges[0].Source)
}

func TestConnectorCompatibleEdge(t *testing.T) {
	sockets := &fakeSockets{
		inputs: map[string]socket.Map{
			"a": {},
			"b": {"title": stringSocket("title")},
		},
		outputs: map[string]socket.Map{
			"a": {"value": stringSocket("value")},
			"b": {},
		},
	}
	c := &Connector{Sockets: sockets}
	g := NewGraph()

	err := c.Connect(g, Edge{Source: "a", SourceOutput: "value", Target: "b", TargetInput: "title"})
	require.NoError(t, err)
	assert.Len(t, g.Edges(), 1)
}

func TestConnectorIncompatibleEdge(t *testing.T) {
	number := socket.Definition{Key: "count", Name: "count", Type: socket.TypeNumber}
	sockets := &fakeSockets{
		inputs: map[string]socket.Map{
			"a": {},
			"b": {"title": stringSocket("title")},
		},
		outputs: map[string]socket.Map{
			"a": {"count": number},
			"b": {},
		},
	}
	var rejected []socket.Address
	c := &Connector{
		Sockets: sockets,
		OnIncompatible: func(source, target socket.Address) {
			rejected = append(rejected, source, target)
		},
	}
	g := NewGraph()

	err := c.Connect(g, Edge{Source: "a", SourceOutput: "count", Target: "b", TargetInput: "title"})
	require.ErrorIs(t, err, ErrIncompatibleSockets)
	require.Len(t, rejected, 2)
	assert.Equal(t, "a:output:count", rejected[0].String())
	assert.Equal(t, "b:input:title", rejected[1].String())
	assert.Empty(t, g.Edges())
}

func TestConnectorUnknownSocket(t *testing.T) {
	sockets := &fakeSockets{
		inputs:  map[string]socket.Map{"a": {}},
		outputs: map[string]socket.Map{"a": {"value": stringSocket("value")}},
	}
	c := &Connector{Sockets: sockets}
	g := NewGraph()

	err := c.Connect(g, Edge{Source: "a", SourceOutput: "value", Target: "missing", TargetInput: "title"})
	require.ErrorIs(t, err, ErrUnknownSocket)

	err = c.Connect(g, Edge{Source: "a", SourceOutput: "missing", Target: "a", TargetInput: "title"})
	require.ErrorIs(t, err, ErrUnknownSocket)
}

func TestConnectorToolSocketAcceptsNodeType(t *testing.T) {
	tool := socket.Definition{Key: "tools", Name: "tools", Type: socket.TypeTool, IsMultiple: true}
	sockets := &fakeSockets{
		inputs: map[string]socket.Map{
			"template": {},
			"agent":    {"tools": tool},
		},
		outputs: map[string]socket.Map{
			"template": {"self": {Key: "self", Name: "self", Type: socket.TypeTool}},
			"agent":    {},
		},
	}
	c := &Connector{
		Sockets:   sockets,
		NodeTypes: []string{"PromptTemplate", "CompletionNode"},
		KindOf: func(nodeID string) string {
			return "PromptTemplate"
		},
	}
	g := NewGraph()

	err := c.Connect(g, Edge{Source: "template", SourceOutput: "self", Target: "agent", TargetInput: "tools"})
	require.NoError(t, err)
	assert.Len(t, g.Edges(), 1)
}

// controlNode registers one node with static control keys and a recording
// execute.
type controlNode struct {
	inputs  []string
	outputs []string
	emit    []string
	err     error
	log     *[]string
	name    string
}

func (n *controlNode) setup() Setup {
	return Setup{
		Inputs:  func() []string { return n.inputs },
		Outputs: func() []string { return n.outputs },
		Execute: func(ctx context.Context, inputKey string, forward func(string), execID string) error {
			*n.log = append(*n.log, n.name)
			if n.err != nil {
				return n.err
			}
			for _, out := range n.emit {
				forward(out)
			}
			return nil
		},
	}
}

func TestControlFlowLinearChain(t *testing.T) {
	g := NewGraph()
	g.Add(Edge{Source: "a", SourceOutput: "trigger", Target: "b", TargetInput: "trigger"})
	g.Add(Edge{Source: "b", SourceOutput: "trigger", Target: "c", TargetInput: "trigger"})

	var order []string
	cf := NewControlFlow(g)
	cf.Add("a", (&controlNode{name: "a", outputs: []string{"trigger"}, emit: []string{"trigger"}, log: &order}).setup())
	cf.Add("b", (&controlNode{name: "b", inputs: []string{"trigger"}, outputs: []string{"trigger"}, emit: []string{"trigger"}, log: &order}).setup())
	cf.Add("c", (&controlNode{name: "c", inputs: []string{"trigger"}, log: &order}).setup())

	require.NoError(t, cf.Execute(context.Background(), "a", "", ""))
	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestControlFlowFanOut(t *testing.T) {
	g := NewGraph()
	g.Add(Edge{Source: "a", SourceOutput: "trigger", Target: "b", TargetInput: "trigger"})
	g.Add(Edge{Source: "a", SourceOutput: "trigger", Target: "c", TargetInput: "trigger"})
	g.Add(Edge{Source: "b", SourceOutput: "trigger", Target: "d", TargetInput: "trigger"})

	var order []string
	cf := NewControlFlow(g)
	cf.Add("a", (&controlNode{name: "a", outputs: []string{"trigger"}, emit: []string{"trigger"}, log: &order}).setup())
	cf.Add("b", (&controlNode{name: "b", inputs: []string{"trigger"}, outputs: []string{"trigger"}, emit: []string{"trigger"}, log: &order}).setup())
	cf.Add("c", (&controlNode{name: "c", inputs: []string{"trigger"}, log: &order}).setup())
	cf.Add("d", (&controlNode{name: "d", inputs: []string{"trigger"}, log: &order}).setup())

	require.NoError(t, cf.Execute(context.Background(), "a", "", ""))
	// Depth first: b's subtree completes before c starts.
	assert.Equal(t, []string{"a", "b", "d", "c"}, order)
}

func TestControlFlowUnknownInputKey(t *testing.T) {
	var order []string
	cf := NewControlFlow(NewGraph())
	cf.Add("a", (&controlNode{name: "a", inputs: []string{"trigger"}, log: &order}).setup())

	err := cf.Execute(context.Background(), "a", "no-such-input", "")
	require.ErrorIs(t, err, ErrUnknownInput)
	assert.Empty(t, order)
}

func TestControlFlowUnregisteredNode(t *testing.T) {
	cf := NewControlFlow(NewGraph())
	err := cf.Execute(context.Background(), "ghost", "", "")
	require.ErrorIs(t, err, ErrNodeNotFound)
}

func TestControlFlowExecuteErrorHalts(t *testing.T) {
	g := NewGraph()
	g.Add(Edge{Source: "a", SourceOutput: "trigger", Target: "b", TargetInput: "trigger"})

	var order []string
	boom := errors.New("boom")
	cf := NewControlFlow(g)
	cf.Add("a", (&controlNode{name: "a", outputs: []string{"trigger"}, emit: []string{"trigger"}, err: boom, log: &order}).setup())
	cf.Add("b", (&controlNode{name: "b", inputs: []string{"trigger"}, log: &order}).setup())

	err := cf.Execute(context.Background(), "a", "", "")
	require.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"a"}, order)
}

func TestControlFlowLifecycleEvents(t *testing.T) {
	g := NewGraph()
	g.Add(Edge{Source: "a", SourceOutput: "trigger", Target: "b", TargetInput: "trigger"})

	var order []string
	var events []string
	cf := NewControlFlow(g, WithControlFlowEmitter(event.EmitterFunc(func(e *event.Event) {
		events = append(events, e.Object)
	})))
	cf.Add("a", (&controlNode{name: "a", outputs: []string{"trigger"}, emit: []string{"trigger"}, log: &order}).setup())
	cf.Add("b", (&controlNode{name: "b", inputs: []string{"trigger"}, log: &order}).setup())

	require.NoError(t, cf.Execute(context.Background(), "a", "", ""))
	assert.Equal(t, []string{
		event.ObjectTypeExecutionStarted,
		event.ObjectTypeExecutionStepStart,
		event.ObjectTypeExecutionStepComplete,
		event.ObjectTypeExecutionStepStart,
		event.ObjectTypeExecutionStepComplete,
		event.ObjectTypeExecutionCompleted,
	}, events)
}

func TestControlFlowSharesExecutionID(t *testing.T) {
	g := NewGraph()
	g.Add(Edge{Source: "a", SourceOutput: "trigger", Target: "b", TargetInput: "trigger"})

	ids := make(map[string]bool)
	cf := NewControlFlow(g, WithControlFlowEmitter(event.EmitterFunc(func(e *event.Event) {
		ids[e.ExecutionID] = true
	})))

	var order []string
	cf.Add("a", (&controlNode{name: "a", outputs: []string{"trigger"}, emit: []string{"trigger"}, log: &order}).setup())
	cf.Add("b", (&controlNode{name: "b", inputs: []string{"trigger"}, log: &order}).setup())

	require.NoError(t, cf.Execute(context.Background(), "a", "", ""))
	assert.Len(t, ids, 1)
}

// countingSource records how many times each node's outputs were computed.
type countingSource struct {
	outputs map[string]map[string]any
	calls   map[string]int
}

func (s *countingSource) Outputs(nodeID string) (map[string]any, error) {
	if s.calls == nil {
		s.calls = make(map[string]int)
	}
	s.calls[nodeID]++
	out, ok := s.outputs[nodeID]
	if !ok {
		return nil, errors.New("no such node")
	}
	return out, nil
}

func dataFlowFixture() (*Graph, *fakeSockets, *countingSource) {
	g := NewGraph()
	g.Add(Edge{Source: "input", SourceOutput: "value", Target: "template", TargetInput: "title"})

	sockets := &fakeSockets{
		inputs: map[string]socket.Map{
			"input": {},
			"template": {
				"trigger": triggerSocket("trigger", "RUN"),
				"title":   stringSocket("title"),
			},
		},
		outputs: map[string]socket.Map{
			"input":    {"value": stringSocket("value")},
			"template": {},
		},
	}
	source := &countingSource{
		outputs: map[string]map[string]any{
			"input": {"value": "Hello"},
		},
	}
	return g, sockets, source
}

func TestDataFlowFetchInputs(t *testing.T) {
	g, sockets, source := dataFlowFixture()
	df := NewDataFlow(g, sockets, source)

	inputs, err := df.FetchInputs("template")
	require.NoError(t, err)
	// Connected values stay sequences; flattening is the runtime's job.
	assert.Equal(t, map[string]any{"title": []any{"Hello"}}, inputs)
}

func TestDataFlowSkipsTriggerInputs(t *testing.T) {
	g, sockets, source := dataFlowFixture()
	g.Add(Edge{Source: "input", SourceOutput: "value", Target: "template", TargetInput: "trigger"})
	df := NewDataFlow(g, sockets, source)

	inputs, err := df.FetchInputs("template")
	require.NoError(t, err)
	_, ok := inputs["trigger"]
	assert.False(t, ok)
}

func TestDataFlowMemoizesUpstreamOutputs(t *testing.T) {
	g, sockets, source := dataFlowFixture()
	df := NewDataFlow(g, sockets, source)

	_, err := df.FetchInputs("template")
	require.NoError(t, err)
	_, err = df.FetchInputs("template")
	require.NoError(t, err)
	assert.Equal(t, 1, source.calls["input"])
}

func TestDataFlowInvalidateOnChangedOutputs(t *testing.T) {
	g, sockets, source := dataFlowFixture()
	df := NewDataFlow(g, sockets, source)

	_, err := df.FetchInputs("template")
	require.NoError(t, err)

	// Equal outputs keep the cache warm.
	df.Invalidate("input", map[string]any{"value": "Hello"})
	_, err = df.FetchInputs("template")
	require.NoError(t, err)
	assert.Equal(t, 1, source.calls["input"])

	// Changed outputs drop the entry; the next fetch recomputes.
	source.outputs["input"] = map[string]any{"value": "World"}
	df.Invalidate("input", map[string]any{"value": "World"})
	inputs, err := df.FetchInputs("template")
	require.NoError(t, err)
	assert.Equal(t, 2, source.calls["input"])
	assert.Equal(t, map[string]any{"title": []any{"World"}}, inputs)
}

func TestDataFlowInvalidateDeepComparison(t *testing.T) {
	g := NewGraph()
	g.Add(Edge{Source: "config", SourceOutput: "settings", Target: "agent", TargetInput: "settings"})

	sockets := &fakeSockets{
		inputs: map[string]socket.Map{
			"config": {},
			"agent":  {"settings": {Key: "settings", Name: "settings", Type: socket.TypeObject}},
		},
		outputs: map[string]socket.Map{
			"config": {"settings": {Key: "settings", Name: "settings", Type: socket.TypeObject}},
			"agent":  {},
		},
	}
	source := &countingSource{
		outputs: map[string]map[string]any{
			"config": {"settings": map[string]any{"model": "gpt-4", "temperature": 0.7}},
		},
	}
	df := NewDataFlow(g, sockets, source)

	_, err := df.FetchInputs("agent")
	require.NoError(t, err)

	// A distinct map with equal nested content must not invalidate.
	df.Invalidate("config", map[string]any{"settings": map[string]any{"model": "gpt-4", "temperature": 0.7}})
	_, err = df.FetchInputs("agent")
	require.NoError(t, err)
	assert.Equal(t, 1, source.calls["config"])

	// A nested change must.
	df.Invalidate("config", map[string]any{"settings": map[string]any{"model": "gpt-4o", "temperature": 0.7}})
	_, err = df.FetchInputs("agent")
	require.NoError(t, err)
	assert.Equal(t, 2, source.calls["config"])
}

func TestDataFlowResetDropsCache(t *testing.T) {
	g, sockets, source := dataFlowFixture()
	df := NewDataFlow(g, sockets, source)

	_, err := df.FetchInputs("template")
	require.NoError(t, err)
	df.Reset("input")
	_, err = df.FetchInputs("template")
	require.NoError(t, err)
	assert.Equal(t, 2, source.calls["input"])
}

func TestDataFlowConnectionRecords(t *testing.T) {
	// Linked configuration children are connected through x-connection
	// records only, with no graph edge.
	g := NewGraph()
	sockets := &fakeSockets{
		inputs: map[string]socket.Map{
			"child": {},
			"parent": {
				"config": {
					Key:  "config",
					Name: "config",
					Type: socket.TypeObject,
					Connections: map[string]string{
						"child:output:value": "config",
					},
				},
			},
		},
		outputs: map[string]socket.Map{
			"child":  {"value": stringSocket("value")},
			"parent": {},
		},
	}
	source := &countingSource{
		outputs: map[string]map[string]any{
			"child": {"value": map[string]any{"model": "gpt-4"}},
		},
	}
	df := NewDataFlow(g, sockets, source)

	inputs, err := df.FetchInputs("parent")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"config": []any{map[string]any{"model": "gpt-4"}}}, inputs)
}

func TestDataFlowMultipleConnections(t *testing.T) {
	g := NewGraph()
	g.Add(Edge{Source: "t1", SourceOutput: "self", Target: "agent", TargetInput: "tools"})
	g.Add(Edge{Source: "t2", SourceOutput: "self", Target: "agent", TargetInput: "tools"})

	sockets := &fakeSockets{
		inputs: map[string]socket.Map{
			"t1": {}, "t2": {},
			"agent": {"tools": {Key: "tools", Name: "tools", Type: socket.TypeTool, IsMultiple: true}},
		},
		outputs: map[string]socket.Map{
			"t1":    {"self": stringSocket("self")},
			"t2":    {"self": stringSocket("self")},
			"agent": {},
		},
	}
	source := &countingSource{
		outputs: map[string]map[string]any{
			"t1": {"self": "tool-one"},
			"t2": {"self": "tool-two"},
		},
	}
	df := NewDataFlow(g, sockets, source)

	inputs, err := df.FetchInputs("agent")
	require.NoError(t, err)
	assert.Equal(t, []any{"tool-one", "tool-two"}, inputs["tools"])
}
