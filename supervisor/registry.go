//
// Tencent is pleased to support the open source community by making craftgen-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// craftgen-go is licensed under the Apache License Version 2.0.
//
//

// Package supervisor owns the actor system of one workflow instance: the
// system-id registry, the catalog of node kinds, and the spawn/destroy
// lifecycle including linked configuration children.
package supervisor

import (
	"sort"
	"sync"

	"github.com/craftgen/craftgen-go/actor"
)

// Registry maps system ids to live actor handles. Node actors register under
// their node id, socket actors under their socket address. It replaces the
// ambient global actor table with an explicit dependency.
type Registry struct {
	mu   sync.RWMutex
	refs map[string]*actor.Ref
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{refs: make(map[string]*actor.Ref)}
}

// Get resolves a system id to its actor handle.
func (r *Registry) Get(systemID string) (*actor.Ref, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ref, ok := r.refs[systemID]
	return ref, ok
}

// Register records an actor under its system id, replacing any previous
// registration.
func (r *Registry) Register(systemID string, ref *actor.Ref) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refs[systemID] = ref
}

// Unregister removes a system id.
func (r *Registry) Unregister(systemID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.refs, systemID)
}

// IDs returns all registered system ids, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.refs))
	for id := range r.refs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
