//
// Tencent is pleased to support the open source community by making craftgen-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// craftgen-go is licensed under the Apache License Version 2.0.
//
//

package node

// Snapshot is the persisted form of one node actor: enough to resume the
// actor into its previous value and run state in a later session. Children
// holds the snapshots of linked configuration children keyed by system id;
// the supervisor assembles and re-seeds them.
type Snapshot struct {
	// Value is the state name the machine was in (the Status).
	Value string `json:"value"`
	// Status classifies the machine lifecycle: active, done, or error.
	Status string `json:"status"`
	// Context is the node's persisted context.
	Context Context `json:"context"`
	// Children maps child system ids to their snapshots.
	Children map[string]Snapshot `json:"children,omitempty"`
}

// Snapshot lifecycle status values.
const (
	SnapshotStatusActive = "active"
	SnapshotStatusDone   = "done"
	SnapshotStatusError  = "error"
)

// Snapshot captures the runtime's current persistable state. Child snapshots
// are not included; the supervisor composes them from its registry.
func (rt *Runtime) Snapshot() Snapshot {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return Snapshot{
		Value:   string(rt.status),
		Status:  snapshotStatus(rt.status),
		Context: rt.state.Clone(),
	}
}

func snapshotStatus(status Status) string {
	switch status {
	case StatusComplete:
		return SnapshotStatusDone
	case StatusError:
		return SnapshotStatusError
	default:
		return SnapshotStatusActive
	}
}

// hydrate restores the runtime from a snapshot: inputs, outputs, socket
// schema, and pending run state all come from the snapshot rather than the
// kind's defaults.
func (rt *Runtime) hydrate(snap Snapshot) {
	if snap.Context.InputSockets != nil {
		rt.state.InputSockets = snap.Context.InputSockets.Clone()
	}
	if snap.Context.OutputSockets != nil {
		rt.state.OutputSockets = snap.Context.OutputSockets.Clone()
	}
	if snap.Context.Inputs != nil {
		rt.state.Inputs = cloneValues(snap.Context.Inputs)
	}
	if snap.Context.Outputs != nil {
		rt.state.Outputs = cloneValues(snap.Context.Outputs)
	}
	if snap.Context.ParentLink != nil {
		link := *snap.Context.ParentLink
		rt.state.ParentLink = &link
	}
	if snap.Context.LastError != nil {
		lastErr := *snap.Context.LastError
		rt.state.LastError = &lastErr
	}
	if snap.Value != "" {
		rt.status = Status(snap.Value)
	}
	// A snapshot taken mid-run resumes as idle: the in-flight operation is
	// gone with the old process, a fresh RUN is the recovery path.
	if rt.status == StatusRunning {
		rt.status = StatusIdle
	}
}
