//
// Tencent is pleased to support the open source community by making craftgen-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// craftgen-go is licensed under the Apache License Version 2.0.
//
//

package supervisor

import (
	"sort"
	"sync"

	"github.com/craftgen/craftgen-go/node"
)

// KindSet is the catalog of node kinds a supervisor can spawn, keyed by
// machine type id.
type KindSet struct {
	mu    sync.RWMutex
	kinds map[string]node.Kind
}

// NewKindSet creates a catalog holding the given kinds.
func NewKindSet(kinds ...node.Kind) *KindSet {
	set := &KindSet{kinds: make(map[string]node.Kind, len(kinds))}
	for _, kind := range kinds {
		set.kinds[kind.Name()] = kind
	}
	return set
}

// Register adds a kind, replacing any previous kind with the same name.
func (s *KindSet) Register(kind node.Kind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kinds[kind.Name()] = kind
}

// Get resolves a machine type id.
func (s *KindSet) Get(name string) (node.Kind, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	kind, ok := s.kinds[name]
	return kind, ok
}

// Names returns the registered machine type ids, sorted. Tool-typed sockets
// accept connections from any of these.
func (s *KindSet) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.kinds))
	for name := range s.kinds {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
