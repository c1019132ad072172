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
	"fmt"
	"reflect"
	"sync"

	"github.com/craftgen/craftgen-go/log"
	"github.com/craftgen/craftgen-go/socket"
)

// OutputSource produces a node's current output values, computing them if
// the node has not run yet. The editor implements it on top of the live
// runtimes.
type OutputSource interface {
	Outputs(nodeID string) (map[string]any, error)
}

// DataFlow resolves a node's data inputs by pulling the outputs of its
// upstream nodes. Upstream outputs are memoized per node; a cached entry
// survives until Invalidate observes a change or Reset discards it.
type DataFlow struct {
	mu      sync.Mutex
	graph   *Graph
	sockets SocketSource
	source  OutputSource
	cache   map[string]map[string]any
}

// NewDataFlow creates a data-flow engine over the given edge store.
func NewDataFlow(graph *Graph, sockets SocketSource, source OutputSource) *DataFlow {
	return &DataFlow{
		graph:   graph,
		sockets: sockets,
		source:  source,
		cache:   make(map[string]map[string]any),
	}
}

// FetchInputs resolves every connected, non-trigger input of the node.
// Inputs with connections always come back as a []any holding one element
// per connection, in edge order; the caller flattens single-connection
// sockets.
func (d *DataFlow) FetchInputs(nodeID string) (map[string]any, error) {
	inputSockets, _, ok := d.sockets.Sockets(nodeID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, nodeID)
	}

	sources := d.connectedSources(nodeID, inputSockets)
	inputs := make(map[string]any)
	for _, key := range inputSockets.Keys() {
		def := inputSockets[key]
		if def.IsTrigger() {
			continue
		}
		var values []any
		for _, src := range sources[key] {
			outputs, err := d.outputsOf(src.node)
			if err != nil {
				return nil, err
			}
			value, ok := outputs[src.key]
			if !ok {
				log.Debugf("dataflow: node %s has no output %q wanted by %s:%s", src.node, src.key, nodeID, key)
				continue
			}
			values = append(values, value)
		}
		if values != nil {
			inputs[key] = values
		}
	}
	return inputs, nil
}

// Reset drops the node's memoized outputs so the next fetch recomputes them.
func (d *DataFlow) Reset(nodeID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.cache, nodeID)
}

// Invalidate compares freshly observed outputs against the memoized ones and
// drops the cache entry when they differ. Comparison is deep: nested values
// count, not just top-level identity.
func (d *DataFlow) Invalidate(nodeID string, outputs map[string]any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cached, ok := d.cache[nodeID]
	if !ok {
		return
	}
	if reflect.DeepEqual(cached, outputs) {
		return
	}
	delete(d.cache, nodeID)
}

// Forget removes every trace of the node; called when the node is destroyed.
func (d *DataFlow) Forget(nodeID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.cache, nodeID)
}

type upstream struct {
	node string
	key  string
}

// connectedSources maps each input key to its upstream output sockets,
// merging graph edges with the connection records the sockets themselves
// carry. Linked configuration children connect only through records.
func (d *DataFlow) connectedSources(nodeID string, inputs socket.Map) map[string][]upstream {
	sources := make(map[string][]upstream)
	seen := make(map[string]map[upstream]bool)
	add := func(inputKey string, src upstream) {
		if seen[inputKey] == nil {
			seen[inputKey] = make(map[upstream]bool)
		}
		if seen[inputKey][src] {
			return
		}
		seen[inputKey][src] = true
		sources[inputKey] = append(sources[inputKey], src)
	}

	for _, edge := range d.graph.To(nodeID) {
		if _, ok := inputs[edge.TargetInput]; !ok {
			continue
		}
		add(edge.TargetInput, upstream{node: edge.Source, key: edge.SourceOutput})
	}
	for _, key := range inputs.Keys() {
		for peer := range inputs[key].Connections {
			addr, err := socket.ParseAddress(peer)
			if err != nil {
				log.Debugf("dataflow: node %s input %q has malformed connection %q", nodeID, key, peer)
				continue
			}
			if addr.Side != socket.SideOutput {
				continue
			}
			add(key, upstream{node: addr.Node, key: addr.Key})
		}
	}
	return sources
}

func (d *DataFlow) outputsOf(nodeID string) (map[string]any, error) {
	d.mu.Lock()
	cached, ok := d.cache[nodeID]
	d.mu.Unlock()
	if ok {
		return cached, nil
	}
	outputs, err := d.source.Outputs(nodeID)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	d.cache[nodeID] = outputs
	d.mu.Unlock()
	return outputs, nil
}
