//
// Tencent is pleased to support the open source community by making craftgen-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// craftgen-go is licensed under the Apache License Version 2.0.
//
//

// Package sqlite implements the persistence store over a SQLite database.
// It expects an initialized *sql.DB; the caller picks and imports the
// driver.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/craftgen/craftgen-go/flow"
	"github.com/craftgen/craftgen-go/node"
	"github.com/craftgen/craftgen-go/persistence"
)

const (
	createNodes = "CREATE TABLE IF NOT EXISTS workflow_nodes (" +
		"workflow_id TEXT NOT NULL, " +
		"node_id TEXT NOT NULL, " +
		"machine_id TEXT NOT NULL, " +
		"snapshot_json BLOB NOT NULL, " +
		"metadata_json BLOB NOT NULL, " +
		"updated_at INTEGER NOT NULL, " +
		"PRIMARY KEY (workflow_id, node_id)" +
		")"

	createEdges = "CREATE TABLE IF NOT EXISTS workflow_edges (" +
		"workflow_id TEXT NOT NULL, " +
		"source TEXT NOT NULL, " +
		"source_output TEXT NOT NULL, " +
		"target TEXT NOT NULL, " +
		"target_input TEXT NOT NULL, " +
		"PRIMARY KEY (workflow_id, source, source_output, target, target_input)" +
		")"

	createExecutions = "CREATE TABLE IF NOT EXISTS workflow_executions (" +
		"id TEXT NOT NULL PRIMARY KEY, " +
		"workflow_id TEXT NOT NULL, " +
		"entry_node_id TEXT NOT NULL, " +
		"started_at INTEGER NOT NULL" +
		")"

	upsertNode = "INSERT OR REPLACE INTO workflow_nodes (" +
		"workflow_id, node_id, machine_id, snapshot_json, metadata_json, updated_at) " +
		"VALUES (?, ?, ?, ?, ?, ?)"

	deleteNode      = "DELETE FROM workflow_nodes WHERE workflow_id = ? AND node_id = ?"
	deleteNodeEdges = "DELETE FROM workflow_edges WHERE workflow_id = ? AND (source = ? OR target = ?)"

	insertEdge = "INSERT OR REPLACE INTO workflow_edges (" +
		"workflow_id, source, source_output, target, target_input) VALUES (?, ?, ?, ?, ?)"

	deleteEdge = "DELETE FROM workflow_edges WHERE workflow_id = ? " +
		"AND source = ? AND source_output = ? AND target = ? AND target_input = ?"

	updateContext = "UPDATE workflow_nodes SET snapshot_json = ?, updated_at = ? " +
		"WHERE workflow_id = ? AND node_id = ?"

	updateMetadata = "UPDATE workflow_nodes SET metadata_json = ?, updated_at = ? " +
		"WHERE workflow_id = ? AND node_id = ?"

	insertExecution = "INSERT INTO workflow_executions (id, workflow_id, entry_node_id, started_at) " +
		"VALUES (?, ?, ?, ?)"

	selectNodes = "SELECT node_id, machine_id, snapshot_json, metadata_json " +
		"FROM workflow_nodes WHERE workflow_id = ? ORDER BY node_id"

	selectEdges = "SELECT source, source_output, target, target_input " +
		"FROM workflow_edges WHERE workflow_id = ? ORDER BY source, source_output, target, target_input"
)

// Store is a SQLite-backed implementation of persistence.Store. Snapshots
// and metadata are stored as JSON blobs.
type Store struct {
	db *sql.DB
}

// NewStore creates a store using the provided DB. The DB must use a SQLite
// driver. The constructor creates tables if needed.
func NewStore(db *sql.DB) (*Store, error) {
	if db == nil {
		return nil, errors.New("db is nil")
	}
	for _, stmt := range []string{createNodes, createEdges, createExecutions} {
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("create schema: %w", err)
		}
	}
	return &Store{db: db}, nil
}

// UpsertNode creates or replaces a node record.
func (s *Store) UpsertNode(ctx context.Context, record persistence.NodeRecord) error {
	snapshotJSON, err := json.Marshal(record.Snapshot)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	metadataJSON, err := json.Marshal(record.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx, upsertNode,
		record.WorkflowID, record.NodeID, record.MachineID,
		snapshotJSON, metadataJSON, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("upsert node: %w", err)
	}
	return nil
}

// DeleteNode removes a node record and every edge touching it.
func (s *Store) DeleteNode(ctx context.Context, workflowID, nodeID string) error {
	if _, err := s.db.ExecContext(ctx, deleteNode, workflowID, nodeID); err != nil {
		return fmt.Errorf("delete node: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, deleteNodeEdges, workflowID, nodeID, nodeID); err != nil {
		return fmt.Errorf("delete node edges: %w", err)
	}
	return nil
}

// CreateEdge records a materialized connection.
func (s *Store) CreateEdge(ctx context.Context, workflowID string, edge flow.Edge) error {
	_, err := s.db.ExecContext(ctx, insertEdge,
		workflowID, edge.Source, edge.SourceOutput, edge.Target, edge.TargetInput)
	if err != nil {
		return fmt.Errorf("create edge: %w", err)
	}
	return nil
}

// DeleteEdge removes a connection.
func (s *Store) DeleteEdge(ctx context.Context, workflowID string, edge flow.Edge) error {
	_, err := s.db.ExecContext(ctx, deleteEdge,
		workflowID, edge.Source, edge.SourceOutput, edge.Target, edge.TargetInput)
	if err != nil {
		return fmt.Errorf("delete edge: %w", err)
	}
	return nil
}

// SetContext replaces a node's persisted snapshot.
func (s *Store) SetContext(ctx context.Context, workflowID, nodeID string, snapshot node.Snapshot) error {
	snapshotJSON, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	_, err = s.db.ExecContext(ctx, updateContext,
		snapshotJSON, time.Now().UnixMilli(), workflowID, nodeID)
	if err != nil {
		return fmt.Errorf("set context: %w", err)
	}
	return nil
}

// UpdateNodeMetadata replaces a node's editor metadata.
func (s *Store) UpdateNodeMetadata(ctx context.Context, workflowID, nodeID string, metadata persistence.NodeMetadata) error {
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx, updateMetadata,
		metadataJSON, time.Now().UnixMilli(), workflowID, nodeID)
	if err != nil {
		return fmt.Errorf("update metadata: %w", err)
	}
	return nil
}

// CreateExecution records the start of a logical run.
func (s *Store) CreateExecution(ctx context.Context, record persistence.ExecutionRecord) error {
	_, err := s.db.ExecContext(ctx, insertExecution,
		record.ID, record.WorkflowID, record.EntryNodeID, record.StartedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("create execution: %w", err)
	}
	return nil
}

// LoadWorkflow reads back the full content of one workflow.
func (s *Store) LoadWorkflow(ctx context.Context, workflowID string) (*persistence.WorkflowContent, error) {
	content := &persistence.WorkflowContent{}

	rows, err := s.db.QueryContext(ctx, selectNodes, workflowID)
	if err != nil {
		return nil, fmt.Errorf("select nodes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var record persistence.NodeRecord
		var snapshotJSON, metadataJSON []byte
		if err := rows.Scan(&record.NodeID, &record.MachineID, &snapshotJSON, &metadataJSON); err != nil {
			return nil, fmt.Errorf("scan node: %w", err)
		}
		record.WorkflowID = workflowID
		if err := json.Unmarshal(snapshotJSON, &record.Snapshot); err != nil {
			return nil, fmt.Errorf("unmarshal snapshot for %s: %w", record.NodeID, err)
		}
		if err := json.Unmarshal(metadataJSON, &record.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata for %s: %w", record.NodeID, err)
		}
		content.Nodes = append(content.Nodes, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate nodes: %w", err)
	}

	edgeRows, err := s.db.QueryContext(ctx, selectEdges, workflowID)
	if err != nil {
		return nil, fmt.Errorf("select edges: %w", err)
	}
	defer edgeRows.Close()
	for edgeRows.Next() {
		var edge flow.Edge
		if err := edgeRows.Scan(&edge.Source, &edge.SourceOutput, &edge.Target, &edge.TargetInput); err != nil {
			return nil, fmt.Errorf("scan edge: %w", err)
		}
		content.Edges = append(content.Edges, edge)
	}
	if err := edgeRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate edges: %w", err)
	}
	return content, nil
}
