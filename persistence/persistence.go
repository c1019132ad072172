//
// Tencent is pleased to support the open source community by making craftgen-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// craftgen-go is licensed under the Apache License Version 2.0.
//
//

// Package persistence defines the storage boundary the editor writes
// workflow state through, plus the background queue that keeps those writes
// off the actor goroutines.
package persistence

import (
	"context"
	"time"

	"github.com/craftgen/craftgen-go/flow"
	"github.com/craftgen/craftgen-go/node"
)

// Position is a node's location on the editing canvas.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// NodeMetadata is the editor-facing state of a node that is not execution
// state: placement and display label.
type NodeMetadata struct {
	Position Position `json:"position"`
	Width    float64  `json:"width,omitempty"`
	Height   float64  `json:"height,omitempty"`
	Label    string   `json:"label,omitempty"`
}

// NodeRecord is the persisted form of one node.
type NodeRecord struct {
	WorkflowID string        `json:"workflowId"`
	NodeID     string        `json:"nodeId"`
	MachineID  string        `json:"machineId"`
	Snapshot   node.Snapshot `json:"snapshot"`
	Metadata   NodeMetadata  `json:"metadata"`
}

// ExecutionRecord is one logical run of a workflow.
type ExecutionRecord struct {
	ID          string    `json:"id"`
	WorkflowID  string    `json:"workflowId"`
	EntryNodeID string    `json:"entryNodeId"`
	StartedAt   time.Time `json:"startedAt"`
}

// WorkflowContent is everything needed to rebuild a workflow instance.
type WorkflowContent struct {
	Nodes []NodeRecord `json:"nodes"`
	Edges []flow.Edge  `json:"edges"`
}

// Store is the storage backend. Implementations must be safe for concurrent
// use; the queue calls them from worker goroutines.
type Store interface {
	// UpsertNode creates or replaces a node record.
	UpsertNode(ctx context.Context, record NodeRecord) error
	// DeleteNode removes a node record and every edge touching it.
	DeleteNode(ctx context.Context, workflowID, nodeID string) error
	// CreateEdge records a materialized connection.
	CreateEdge(ctx context.Context, workflowID string, edge flow.Edge) error
	// DeleteEdge removes a connection.
	DeleteEdge(ctx context.Context, workflowID string, edge flow.Edge) error
	// SetContext replaces a node's persisted snapshot without touching its
	// metadata.
	SetContext(ctx context.Context, workflowID, nodeID string, snapshot node.Snapshot) error
	// UpdateNodeMetadata replaces a node's editor metadata.
	UpdateNodeMetadata(ctx context.Context, workflowID, nodeID string, metadata NodeMetadata) error
	// CreateExecution records the start of a logical run.
	CreateExecution(ctx context.Context, record ExecutionRecord) error
	// LoadWorkflow reads back the full content of one workflow.
	LoadWorkflow(ctx context.Context, workflowID string) (*WorkflowContent, error)
}
