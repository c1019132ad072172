//
// Tencent is pleased to support the open source community by making craftgen-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// craftgen-go is licensed under the Apache License Version 2.0.
//
//

// Package flow holds the graph edge store and the two engines that move a
// workflow: the control-flow engine pushes execution along trigger edges,
// the data-flow engine pulls and caches upstream outputs on demand.
package flow

import (
	"sync"

	"github.com/craftgen/craftgen-go/socket"
)

// Edge is one materialized connection between two sockets. Edges whose
// source output is trigger-typed carry causality; all other edges are
// data-only.
type Edge struct {
	Source       string `json:"source"`
	SourceOutput string `json:"sourceOutput"`
	Target       string `json:"target"`
	TargetInput  string `json:"targetInput"`
}

// Graph is the in-memory edge store for one workflow instance. Nodes are
// owned by the supervisor's registry; the graph only tracks connections.
type Graph struct {
	mu    sync.RWMutex
	edges []Edge
}

// NewGraph creates an empty edge store.
func NewGraph() *Graph {
	return &Graph{}
}

// Add appends an edge. Validation happens in the Connector; Add itself
// accepts anything so persisted graphs load unconditionally.
func (g *Graph) Add(edge Edge) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, existing := range g.edges {
		if existing == edge {
			return
		}
	}
	g.edges = append(g.edges, edge)
}

// Remove deletes an edge, if present.
func (g *Graph) Remove(edge Edge) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i, existing := range g.edges {
		if existing == edge {
			g.edges = append(g.edges[:i], g.edges[i+1:]...)
			return
		}
	}
}

// Edges returns a copy of all edges.
func (g *Graph) Edges() []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]Edge(nil), g.edges...)
}

// From returns the edges leaving the given output socket.
func (g *Graph) From(nodeID, outputKey string) []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []Edge
	for _, edge := range g.edges {
		if edge.Source == nodeID && edge.SourceOutput == outputKey {
			out = append(out, edge)
		}
	}
	return out
}

// To returns the edges arriving at the given node.
func (g *Graph) To(nodeID string) []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []Edge
	for _, edge := range g.edges {
		if edge.Target == nodeID {
			out = append(out, edge)
		}
	}
	return out
}

// RemoveNode drops every edge touching the node.
func (g *Graph) RemoveNode(nodeID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	kept := g.edges[:0]
	for _, edge := range g.edges {
		if edge.Source != nodeID && edge.Target != nodeID {
			kept = append(kept, edge)
		}
	}
	g.edges = kept
}

// SocketSource resolves a node's current socket schema. The editor
// implements it on top of the live runtimes.
type SocketSource interface {
	Sockets(nodeID string) (inputs, outputs socket.Map, ok bool)
}
