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
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/craftgen/craftgen-go/event"
	"github.com/craftgen/craftgen-go/log"
	"github.com/craftgen/craftgen-go/node"
)

var (
	// ErrUnknownMachine means the requested machine type id has no
	// registered kind. Spawn treats it as a logged no-op and returns this
	// for callers that care.
	ErrUnknownMachine = errors.New("machine type is not registered")
	// ErrActorNotFound means no actor with the given system id exists.
	ErrActorNotFound = errors.New("actor is not registered")
)

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithEmitter sets the event emitter handed to every spawned runtime.
func WithEmitter(emitter event.Emitter) Option {
	return func(s *Supervisor) {
		s.emitter = emitter
	}
}

// WithResolver sets the data-flow resolver handed to every spawned runtime.
func WithResolver(resolver node.InputResolver) Option {
	return func(s *Supervisor) {
		s.resolver = resolver
	}
}

// WithSpawnHook registers a callback invoked after every successful spawn,
// linked children included. The editor uses it to register nodes with the
// engines.
func WithSpawnHook(hook func(rt *node.Runtime)) Option {
	return func(s *Supervisor) {
		s.onSpawn = hook
	}
}

// WithDestroyHook registers a callback invoked after every destroy.
func WithDestroyHook(hook func(systemID string)) Option {
	return func(s *Supervisor) {
		s.onDestroy = hook
	}
}

// Supervisor manages the node actors of one workflow instance. Spawn is
// idempotent on system id; Destroy cascades through linked configuration
// children.
type Supervisor struct {
	ctx      context.Context
	registry *Registry
	kinds    *KindSet

	mu       sync.RWMutex
	runtimes map[string]*node.Runtime

	emitter   event.Emitter
	resolver  node.InputResolver
	onSpawn   func(rt *node.Runtime)
	onDestroy func(systemID string)
}

// New creates a supervisor. ctx bounds the lifetime of every actor it
// spawns.
func New(ctx context.Context, kinds *KindSet, opts ...Option) *Supervisor {
	s := &Supervisor{
		ctx:      ctx,
		registry: NewRegistry(),
		kinds:    kinds,
		runtimes: make(map[string]*node.Runtime),
		emitter:  event.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Registry exposes the system-id registry for peers that resolve actors
// directly (socket wake-up, the debug surface).
func (s *Supervisor) Registry() *Registry {
	return s.registry
}

// Kinds exposes the kind catalog.
func (s *Supervisor) Kinds() *KindSet {
	return s.kinds
}

// SpawnRequest describes one actor to bring up.
type SpawnRequest struct {
	// SystemID is the stable identity the actor registers under. Required.
	SystemID string
	// MachineID is the machine type id naming the kind. Required.
	MachineID string
	// Snapshot, when non-nil, re-hydrates the actor (and its children) from
	// persisted state instead of kind defaults.
	Snapshot *node.Snapshot
	// Input seeds initial input values on top of socket defaults.
	Input map[string]any
	// ParentLink marks the actor as a linked configuration child.
	ParentLink *node.ParentLink
}

// Spawn brings up one node actor. Spawning a system id that is already live
// returns the existing runtime untouched, so replaying a persisted spawn
// journal is safe. An unknown machine type is logged and reported, with no
// actor created.
func (s *Supervisor) Spawn(req SpawnRequest) (*node.Runtime, error) {
	if req.SystemID == "" {
		return nil, fmt.Errorf("spawn: missing system id")
	}
	s.mu.Lock()
	if existing, ok := s.runtimes[req.SystemID]; ok {
		s.mu.Unlock()
		log.Debugf("supervisor: spawn of live actor %s resolved to existing runtime", req.SystemID)
		return existing, nil
	}
	s.mu.Unlock()

	kind, ok := s.kinds.Get(req.MachineID)
	if !ok {
		log.Warnf("supervisor: spawn of %s skipped, unknown machine type %q",
			req.SystemID, req.MachineID)
		return nil, fmt.Errorf("%w: %s", ErrUnknownMachine, req.MachineID)
	}

	opts := []node.RuntimeOption{
		node.WithRegistry(s.registry),
		node.WithSpawner(s),
		node.WithEmitter(s.emitter),
	}
	if s.resolver != nil {
		opts = append(opts, node.WithResolver(s.resolver))
	}
	if req.Snapshot != nil {
		opts = append(opts, node.WithSnapshot(*req.Snapshot))
	}
	if req.Input != nil {
		opts = append(opts, node.WithInitialInputs(req.Input))
	}
	if req.ParentLink != nil {
		opts = append(opts, node.WithParentLink(*req.ParentLink))
	}

	rt := node.New(req.SystemID, kind, opts...)
	ref := rt.Start(s.ctx)
	s.registry.Register(req.SystemID, ref)
	s.mu.Lock()
	s.runtimes[req.SystemID] = rt
	s.mu.Unlock()

	if req.Snapshot != nil {
		s.respawnChildren(rt, *req.Snapshot)
	}
	// Initialization (linked child spawning) runs only after the actor is
	// resolvable through the registry.
	ref.Send(node.Initialize{})
	if s.onSpawn != nil {
		s.onSpawn(rt)
	}
	return rt, nil
}

// respawnChildren rebuilds the linked configuration children recorded in a
// snapshot and re-assigns them to the parent.
func (s *Supervisor) respawnChildren(parent *node.Runtime, snap node.Snapshot) {
	for childID, childSnap := range snap.Children {
		link := childSnap.Context.ParentLink
		if link == nil {
			log.Warnf("supervisor: child snapshot %s has no parent link, skipping", childID)
			continue
		}
		machineID := s.childMachineID(parent, link.PortKey)
		if machineID == "" {
			log.Warnf("supervisor: cannot resolve machine type for child %s of %s port %s",
				childID, parent.ID(), link.PortKey)
			continue
		}
		childCopy := childSnap
		child, err := s.Spawn(SpawnRequest{
			SystemID:   childID,
			MachineID:  machineID,
			Snapshot:   &childCopy,
			ParentLink: link,
		})
		if err != nil {
			log.Errorf("supervisor: respawn of child %s failed: %v", childID, err)
			continue
		}
		parent.Ref().Send(node.AssignChild{
			Actor:     child.Ref(),
			ChildID:   childID,
			MachineID: machineID,
			Port:      link.PortKey,
		})
	}
}

// childMachineID resolves the machine type a parent's input socket spawns.
func (s *Supervisor) childMachineID(parent *node.Runtime, port string) string {
	def, ok := parent.Context().InputSockets[port]
	if !ok {
		return ""
	}
	return def.ActorType
}

// SpawnLinked implements node.Spawner: it brings up a linked configuration
// child for one actor-typed input socket and assigns it to the parent.
func (s *Supervisor) SpawnLinked(req node.SpawnLinkedRequest) {
	childID := linkedChildID(req.MachineID)
	child, err := s.Spawn(SpawnRequest{
		SystemID:   childID,
		MachineID:  req.MachineID,
		Input:      req.Input,
		ParentLink: &node.ParentLink{ActorID: req.ParentID, PortKey: req.Port},
	})
	if err != nil {
		log.Errorf("supervisor: linked spawn for %s port %s failed: %v",
			req.ParentID, req.Port, err)
		return
	}
	parent, ok := s.registry.Get(req.ParentID)
	if !ok {
		log.Warnf("supervisor: parent %s vanished before child assignment", req.ParentID)
		return
	}
	parent.Send(node.AssignChild{
		Actor:     child.Ref(),
		ChildID:   childID,
		MachineID: req.MachineID,
		Port:      req.Port,
	})
}

// linkedChildID derives a fresh system id for a linked child. System ids may
// not contain ":" (the socket address separator).
func linkedChildID(machineID string) string {
	slug := strings.ToLower(strings.TrimPrefix(machineID, "Node"))
	return fmt.Sprintf("%s_%s", slug, strings.ReplaceAll(uuid.New().String(), "-", ""))
}

// Destroy stops one actor and every linked configuration child below it,
// removing them from the registry.
func (s *Supervisor) Destroy(systemID string) error {
	s.mu.Lock()
	rt, ok := s.runtimes[systemID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrActorNotFound, systemID)
	}
	delete(s.runtimes, systemID)
	s.mu.Unlock()

	for _, childID := range rt.Children() {
		if err := s.Destroy(childID); err != nil {
			log.Debugf("supervisor: cascade destroy of %s: %v", childID, err)
		}
	}
	rt.Stop()
	s.registry.Unregister(systemID)
	if s.onDestroy != nil {
		s.onDestroy(systemID)
	}
	return nil
}

// Get resolves a live runtime by system id.
func (s *Supervisor) Get(systemID string) (*node.Runtime, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rt, ok := s.runtimes[systemID]
	return rt, ok
}

// Runtimes returns the live runtimes keyed by system id.
func (s *Supervisor) Runtimes() map[string]*node.Runtime {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]*node.Runtime, len(s.runtimes))
	for id, rt := range s.runtimes {
		out[id] = rt
	}
	return out
}

// Snapshot captures one actor's persistable state, child snapshots included.
func (s *Supervisor) Snapshot(systemID string) (node.Snapshot, error) {
	s.mu.RLock()
	rt, ok := s.runtimes[systemID]
	s.mu.RUnlock()
	if !ok {
		return node.Snapshot{}, fmt.Errorf("%w: %s", ErrActorNotFound, systemID)
	}
	snap := rt.Snapshot()
	for _, childID := range rt.Children() {
		childSnap, err := s.Snapshot(childID)
		if err != nil {
			log.Debugf("supervisor: snapshot of child %s: %v", childID, err)
			continue
		}
		if snap.Children == nil {
			snap.Children = make(map[string]node.Snapshot)
		}
		snap.Children[childID] = childSnap
	}
	return snap, nil
}

// Shutdown destroys every live actor. Destroy order is arbitrary; children
// reached through a parent's cascade are skipped when already gone.
func (s *Supervisor) Shutdown() {
	s.mu.RLock()
	ids := make([]string, 0, len(s.runtimes))
	for id := range s.runtimes {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	for _, id := range ids {
		if err := s.Destroy(id); err != nil && !errors.Is(err, ErrActorNotFound) {
			log.Warnf("supervisor: shutdown destroy of %s: %v", id, err)
		}
	}
}
