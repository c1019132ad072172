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

	"github.com/craftgen/craftgen-go/socket"
)

// Connector validates and materializes edges. Incompatible pairs are torn
// down and reported through OnIncompatible rather than thrown at the caller;
// unknown sockets are structural errors.
type Connector struct {
	// Sockets resolves live socket schema per node.
	Sockets SocketSource
	// NodeTypes lists the concrete node type names tool sockets accept.
	NodeTypes []string
	// KindOf resolves a node's concrete type name; tool sockets accept any
	// concrete node type as an argument source. Optional.
	KindOf func(nodeID string) string
	// OnIncompatible notifies the editing surface about a rejected pair.
	// Optional.
	OnIncompatible func(source, target socket.Address)
}

// Connect validates the edge and, if compatible, adds it to the graph.
func (c *Connector) Connect(g *Graph, edge Edge) error {
	_, sourceOutputs, ok := c.Sockets.Sockets(edge.Source)
	if !ok {
		return fmt.Errorf("%w: node %s", ErrUnknownSocket, edge.Source)
	}
	sourceDef, ok := sourceOutputs[edge.SourceOutput]
	if !ok {
		return fmt.Errorf("%w: %s:output:%s", ErrUnknownSocket, edge.Source, edge.SourceOutput)
	}
	targetInputs, _, ok := c.Sockets.Sockets(edge.Target)
	if !ok {
		return fmt.Errorf("%w: node %s", ErrUnknownSocket, edge.Target)
	}
	targetDef, ok := targetInputs[edge.TargetInput]
	if !ok {
		return fmt.Errorf("%w: %s:input:%s", ErrUnknownSocket, edge.Target, edge.TargetInput)
	}

	sourceName := string(sourceDef.Type)
	if targetDef.Type == socket.TypeTool && c.KindOf != nil {
		sourceName = c.KindOf(edge.Source)
	}
	compat := socket.NewCompat(targetDef, c.NodeTypes)
	if !compat.IsCompatibleWith(sourceName) {
		if c.OnIncompatible != nil {
			c.OnIncompatible(
				socket.Address{Node: edge.Source, Side: socket.SideOutput, Key: edge.SourceOutput},
				socket.Address{Node: edge.Target, Side: socket.SideInput, Key: edge.TargetInput},
			)
		}
		return fmt.Errorf("%w: %s -> %s", ErrIncompatibleSockets, sourceName, targetDef.Type)
	}

	g.Add(edge)
	return nil
}

// Disconnect removes the edge from the graph.
func (c *Connector) Disconnect(g *Graph, edge Edge) {
	g.Remove(edge)
}
