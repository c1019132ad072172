//
// Tencent is pleased to support the open source community by making craftgen-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// craftgen-go is licensed under the Apache License Version 2.0.
//
//

package node

import (
	"context"
	"fmt"
	"sync"

	"github.com/craftgen/craftgen-go/actor"
	"github.com/craftgen/craftgen-go/event"
	"github.com/craftgen/craftgen-go/log"
	"github.com/craftgen/craftgen-go/socket"
)

// Runtime is the generic node state machine. One Runtime runs inside one
// actor; all context mutation happens on the actor goroutine, reads from
// other goroutines go through the snapshot accessors.
type Runtime struct {
	mu    sync.RWMutex
	id    string
	kind  Kind
	state Context

	status      Status
	pendingCall string
	pendingRun  *Run

	children map[string]childLink
	sockets  map[string]*actor.Ref

	registry Registry
	spawner  Spawner
	resolver InputResolver
	emitter  event.Emitter

	self *actor.Ref
}

type childLink struct {
	systemID  string
	machineID string
	ref       *actor.Ref
}

// RuntimeOption configures a Runtime.
type RuntimeOption func(*Runtime)

// WithRegistry sets the actor registry used to resolve peers.
func WithRegistry(registry Registry) RuntimeOption {
	return func(rt *Runtime) {
		rt.registry = registry
	}
}

// WithSpawner sets the spawner used for linked configuration children.
func WithSpawner(spawner Spawner) RuntimeOption {
	return func(rt *Runtime) {
		rt.spawner = spawner
	}
}

// WithResolver sets the data-flow resolver inputs are pulled through.
func WithResolver(resolver InputResolver) RuntimeOption {
	return func(rt *Runtime) {
		rt.resolver = resolver
	}
}

// WithEmitter sets the event emitter transitions are published to.
func WithEmitter(emitter event.Emitter) RuntimeOption {
	return func(rt *Runtime) {
		rt.emitter = emitter
	}
}

// WithSockets overrides the kind's declared socket schema with a persisted
// one (a previous session may have discovered additional sockets).
func WithSockets(inputs, outputs socket.Map) RuntimeOption {
	return func(rt *Runtime) {
		if inputs != nil {
			rt.state.InputSockets = inputs.Clone()
		}
		if outputs != nil {
			rt.state.OutputSockets = outputs.Clone()
		}
	}
}

// WithInitialInputs seeds input values on top of socket defaults.
func WithInitialInputs(values map[string]any) RuntimeOption {
	return func(rt *Runtime) {
		for key, value := range values {
			rt.state.Inputs[key] = value
		}
	}
}

// WithParentLink marks the node as a linked configuration child.
func WithParentLink(link ParentLink) RuntimeOption {
	return func(rt *Runtime) {
		rt.state.ParentLink = &link
	}
}

// WithSnapshot re-hydrates the runtime from a persisted snapshot. The
// snapshot's values and run state win over the kind's defaults.
func WithSnapshot(snap Snapshot) RuntimeOption {
	return func(rt *Runtime) {
		rt.hydrate(snap)
	}
}

// New builds a runtime for one node. Socket defaults are materialized into
// the initial input values the way the original configuration factory does:
// an explicit initial value overrides the socket default.
func New(id string, kind Kind, opts ...RuntimeOption) *Runtime {
	rt := &Runtime{
		id:       id,
		kind:     kind,
		children: make(map[string]childLink),
		sockets:  make(map[string]*actor.Ref),
		emitter:  event.Nop(),
		status:   StatusIdle,
	}
	rt.state = Context{
		ID:            id,
		InputSockets:  kind.InputSockets().Clone(),
		OutputSockets: kind.OutputSockets().Clone(),
		Inputs:        make(map[string]any),
		Outputs:       make(map[string]any),
	}
	for _, opt := range opts {
		opt(rt)
	}
	for key, def := range rt.state.InputSockets {
		if _, set := rt.state.Inputs[key]; !set && def.Default != nil {
			rt.state.Inputs[key] = def.Default
		}
	}
	// Linked configuration children are rendered inline; their own sockets
	// are not offered as connection points.
	if rt.state.ParentLink != nil {
		for key, def := range rt.state.InputSockets {
			def.ShowSocket = false
			rt.state.InputSockets[key] = def
		}
		for key, def := range rt.state.OutputSockets {
			def.ShowSocket = false
			rt.state.OutputSockets[key] = def
		}
	}
	return rt
}

// ID returns the node's system id.
func (rt *Runtime) ID() string {
	return rt.id
}

// KindName returns the machine type id of the node's kind.
func (rt *Runtime) KindName() string {
	return rt.kind.Name()
}

// Ref returns the actor handle, nil before Start.
func (rt *Runtime) Ref() *actor.Ref {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return rt.self
}

// Status returns the current run status.
func (rt *Runtime) Status() Status {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return rt.status
}

// Context returns a snapshot copy of the node's context.
func (rt *Runtime) Context() Context {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return rt.state.Clone()
}

// Children returns the linked configuration children keyed by port.
func (rt *Runtime) Children() map[string]string {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	out := make(map[string]string, len(rt.children))
	for port, link := range rt.children {
		out[port] = link.systemID
	}
	return out
}

// Start spawns the node's actor and registers its socket actors. Linked
// configuration children are not requested here: the owner sends Initialize
// once the node is resolvable by peers, so child assignment can find it.
func (rt *Runtime) Start(ctx context.Context) *actor.Ref {
	rt.mu.Lock()
	rt.self = actor.Spawn(ctx, rt.id, rt)
	rt.mu.Unlock()
	rt.startSocketActors(ctx)
	return rt.self
}

// Stop stops the node's actor and unregisters its socket actors. Linked
// children are the supervisor's to destroy.
func (rt *Runtime) Stop() {
	rt.mu.Lock()
	sockets := make(map[string]*actor.Ref, len(rt.sockets))
	for address, ref := range rt.sockets {
		sockets[address] = ref
	}
	self := rt.self
	rt.mu.Unlock()
	for address, ref := range sockets {
		if rt.registry != nil {
			rt.registry.Unregister(address)
		}
		ref.Stop()
	}
	if self != nil {
		self.Stop()
	}
}

func (rt *Runtime) startSocketActors(ctx context.Context) {
	spawnSide := func(side socket.Side, defs socket.Map) {
		for key, def := range defs {
			address := socket.Address{Node: rt.id, Side: side, Key: key}.String()
			sa := newSocketActor(address, def, side, rt.self)
			ref := actor.Spawn(ctx, address, sa)
			sa.bind(ref)
			rt.mu.Lock()
			rt.sockets[address] = ref
			rt.mu.Unlock()
			if rt.registry != nil {
				rt.registry.Register(address, ref)
			}
		}
	}
	spawnSide(socket.SideInput, rt.state.InputSockets)
	spawnSide(socket.SideOutput, rt.state.OutputSockets)
}

func (rt *Runtime) requestLinkedChildren() {
	if rt.spawner == nil {
		return
	}
	for key, def := range rt.state.InputSockets {
		if def.ActorType == "" || def.HasConnection() {
			continue
		}
		if _, assigned := rt.children[key]; assigned {
			continue
		}
		input, _ := def.Default.(map[string]any)
		rt.spawner.SpawnLinked(SpawnLinkedRequest{
			ParentID:  rt.id,
			Port:      key,
			MachineID: def.ActorType,
			Input:     input,
		})
	}
}

// Receive dispatches one message on the actor goroutine.
func (rt *Runtime) Receive(ctx context.Context, msg actor.Message) {
	switch m := msg.(type) {
	case SetValue:
		rt.handleSetValue(m)
	case Run:
		rt.handleRun(ctx, m)
	case UpdateSocket:
		rt.handleUpdateSocket(m)
	case AddSocket:
		rt.handleAddSocket(ctx, m)
	case RemoveSocket:
		rt.handleRemoveSocket(m)
	case RemoveConnection:
		rt.handleRemoveConnection(m)
	case AssignChild:
		rt.handleAssignChild(m)
	case SetOutput:
		rt.handleSetOutput(m)
	case Result:
		rt.handleResult(ctx, m)
	case Reset:
		rt.handleReset()
	case Initialize:
		rt.requestLinkedChildren()
	default:
		log.Debugf("node %s: unhandled message %T", rt.id, msg)
	}
}

func (rt *Runtime) handleSetValue(msg SetValue) {
	rt.mu.Lock()
	changed := false
	for key, value := range msg.Values {
		if _, known := rt.state.InputSockets[key]; !known {
			log.Debugf("node %s: dropping value for unknown input %q (origin %s)",
				rt.id, key, msg.Origin)
			continue
		}
		rt.state.Inputs[key] = value
		changed = true
	}
	rt.pruneInputsLocked()
	rt.mu.Unlock()
	if changed {
		rt.emit(event.ObjectTypeNodeInputs, rt.Context().Inputs, "")
	}
}

// pruneInputsLocked drops stored input values whose socket no longer exists.
func (rt *Runtime) pruneInputsLocked() {
	for key := range rt.state.Inputs {
		if _, known := rt.state.InputSockets[key]; !known {
			delete(rt.state.Inputs, key)
		}
	}
}

func (rt *Runtime) handleUpdateSocket(msg UpdateSocket) {
	rt.mu.Lock()
	side := rt.state.InputSockets
	if msg.Side == socket.SideOutput {
		side = rt.state.OutputSockets
	}
	existing, known := side[msg.Name]
	if !known {
		// Unknown keys are a pinned no-op: runtime-discovered schema may
		// only refine sockets that were declared.
		rt.mu.Unlock()
		log.Debugf("node %s: UPDATE_SOCKET for unknown %s socket %q",
			rt.id, msg.Side, msg.Name)
		return
	}
	side[msg.Name] = existing.Merge(msg.Socket)
	rt.pruneInputsLocked()
	rt.mu.Unlock()

	address := socket.Address{Node: rt.id, Side: msg.Side, Key: msg.Name}.String()
	rt.mu.RLock()
	ref, ok := rt.sockets[address]
	rt.mu.RUnlock()
	if ok {
		ref.Send(UpdateSocket{Name: msg.Name, Side: msg.Side, Socket: msg.Socket})
	}
	rt.emit(event.ObjectTypeNodeSockets, msg, "")
}

func (rt *Runtime) handleAddSocket(ctx context.Context, msg AddSocket) {
	def := msg.Definition
	if def.Key == "" || !def.Type.Valid() {
		log.Warnf("node %s: rejecting malformed socket %q", rt.id, def.Key)
		return
	}
	rt.mu.Lock()
	side := rt.state.InputSockets
	if msg.Side == socket.SideOutput {
		side = rt.state.OutputSockets
	}
	side[def.Key] = def
	rt.mu.Unlock()

	address := socket.Address{Node: rt.id, Side: msg.Side, Key: def.Key}.String()
	sa := newSocketActor(address, def, msg.Side, rt.self)
	ref := actor.Spawn(ctx, address, sa)
	sa.bind(ref)
	rt.mu.Lock()
	rt.sockets[address] = ref
	rt.mu.Unlock()
	if rt.registry != nil {
		rt.registry.Register(address, ref)
	}
	rt.emit(event.ObjectTypeNodeSockets, msg, "")
}

func (rt *Runtime) handleRemoveSocket(msg RemoveSocket) {
	rt.mu.Lock()
	side := rt.state.InputSockets
	if msg.Side == socket.SideOutput {
		side = rt.state.OutputSockets
	}
	def, known := side[msg.Key]
	if !known || !def.UserDefined {
		rt.mu.Unlock()
		log.Debugf("node %s: ignoring REMOVE_SOCKET for %s %q", rt.id, msg.Side, msg.Key)
		return
	}
	delete(side, msg.Key)
	rt.pruneInputsLocked()
	if msg.Side == socket.SideOutput {
		delete(rt.state.Outputs, msg.Key)
	}
	rt.mu.Unlock()

	address := socket.Address{Node: rt.id, Side: msg.Side, Key: msg.Key}.String()
	rt.mu.Lock()
	ref, ok := rt.sockets[address]
	delete(rt.sockets, address)
	rt.mu.Unlock()
	if ok {
		if rt.registry != nil {
			rt.registry.Unregister(address)
		}
		ref.Stop()
	}
	rt.emit(event.ObjectTypeNodeSockets, msg, "")
}

func (rt *Runtime) handleRemoveConnection(msg RemoveConnection) {
	rt.mu.Lock()
	side := rt.state.InputSockets
	if msg.Side == socket.SideOutput {
		side = rt.state.OutputSockets
	}
	def, known := side[msg.Name]
	if !known || len(def.Connections) == 0 {
		rt.mu.Unlock()
		return
	}
	for _, address := range msg.Addresses {
		delete(def.Connections, address)
	}
	side[msg.Name] = def
	rt.mu.Unlock()

	address := socket.Address{Node: rt.id, Side: msg.Side, Key: msg.Name}.String()
	rt.mu.RLock()
	ref, ok := rt.sockets[address]
	rt.mu.RUnlock()
	if ok {
		ref.Send(SocketRemoveConnection{Addresses: msg.Addresses})
	}
	rt.emit(event.ObjectTypeNodeSockets, msg, "")
}

func (rt *Runtime) handleAssignChild(msg AssignChild) {
	rt.mu.Lock()
	def, known := rt.state.InputSockets[msg.Port]
	if !known {
		rt.mu.Unlock()
		log.Warnf("node %s: ASSIGN_CHILD for unknown port %q", rt.id, msg.Port)
		return
	}
	rt.children[msg.Port] = childLink{
		systemID:  msg.ChildID,
		machineID: msg.MachineID,
		ref:       msg.Actor,
	}

	// Wire the internal mappings declared by the socket's actor config:
	// the child's output sockets get a back-reference to this parent and
	// the parent's input sockets record the child as their source, so the
	// linked configuration resolves without a user-drawn edge.
	config := def.ActorConfig[msg.MachineID]
	for source, target := range config.Internal {
		childOutput := socket.Address{
			Node: msg.ChildID, Side: socket.SideOutput, Key: source,
		}
		parentInput := socket.Address{
			Node: rt.id, Side: socket.SideInput, Key: target,
		}
		if existing, ok := rt.state.InputSockets[target]; ok {
			rt.state.InputSockets[target] = existing.Merge(socket.Definition{
				Connections: map[string]string{childOutput.String(): target},
			})
		}
		msg.Actor.Send(UpdateSocket{
			Name: source,
			Side: socket.SideOutput,
			Socket: socket.Definition{
				Connections: map[string]string{parentInput.String(): source},
			},
		})
	}
	rt.mu.Unlock()
	rt.emit(event.ObjectTypeNodeSockets, msg.Port, "")
}

func (rt *Runtime) handleSetOutput(msg SetOutput) {
	rt.mu.Lock()
	if _, known := rt.state.OutputSockets[msg.Key]; !known {
		rt.mu.Unlock()
		log.Debugf("node %s: SET_OUTPUT for unknown output %q", rt.id, msg.Key)
		return
	}
	rt.state.Outputs[msg.Key] = msg.Value
	rt.mu.Unlock()
	rt.emit(event.ObjectTypeNodeOutputs, rt.Context().Outputs, "")
	rt.wakeSuccessors(msg.Key, "")
}

func (rt *Runtime) handleReset() {
	rt.mu.Lock()
	rt.status = StatusIdle
	rt.state.LastError = nil
	rt.state.Outputs = make(map[string]any)
	pending := rt.pendingRun
	rt.pendingCall = ""
	rt.pendingRun = nil
	rt.mu.Unlock()
	if pending != nil && pending.Done != nil {
		pending.Done.Resolve(RunOutcome{Status: StatusIdle})
	}
	if rt.resolver != nil {
		rt.resolver.Reset(rt.id)
	}
	rt.emit(event.ObjectTypeNodeStatus, StatusIdle, "")
}

func (rt *Runtime) handleRun(ctx context.Context, msg Run) {
	if rt.pendingCallID() != "" {
		rt.settle(msg, RunOutcome{
			Status: StatusRunning,
			Err:    &Error{Name: "RunInProgress", Message: "node is waiting for an async result"},
		})
		return
	}
	if msg.InputKey != "" {
		rt.mu.RLock()
		_, known := rt.state.InputSockets[msg.InputKey]
		rt.mu.RUnlock()
		if !known {
			rt.failRun(msg, Error{
				Name:    "UnknownInput",
				Message: fmt.Sprintf("input %q is not declared on node %s", msg.InputKey, rt.id),
			})
			return
		}
	}
	if len(msg.Values) > 0 {
		rt.handleSetValue(SetValue{Values: msg.Values, Origin: "run"})
	}

	rt.setStatus(StatusRunning, msg.ExecutionID)

	inputs, err := rt.resolveInputs()
	if err != nil {
		rt.failRun(msg, Error{Name: "InputResolution", Message: err.Error()})
		return
	}
	if missing := rt.missingRequired(inputs); missing != "" {
		rt.failRun(msg, Error{
			Name:    "ValidationError",
			Message: fmt.Sprintf("required input %q has no value", missing),
		})
		return
	}

	call := &Call{
		NodeID:      rt.id,
		ExecutionID: msg.ExecutionID,
		InputKey:    msg.InputKey,
		Inputs:      inputs,
		Context:     rt.Context(),
	}
	result, err := rt.kind.Execute(ctx, call)
	if err != nil {
		rt.failRun(msg, Error{Name: "ExecutionError", Message: err.Error()})
		return
	}
	rt.applyResult(msg, call, result)
}

func (rt *Runtime) handleResult(ctx context.Context, msg Result) {
	rt.mu.RLock()
	pendingCall := rt.pendingCall
	pendingRun := rt.pendingRun
	status := rt.status
	rt.mu.RUnlock()

	// Results arriving after a reset, or for a different call, belong to a
	// run the node has since transitioned away from.
	if status != StatusRunning || pendingCall == "" || pendingCall != msg.ID {
		log.Debugf("node %s: ignoring stale result %s", rt.id, msg.ID)
		return
	}

	resultKind, ok := rt.kind.(ResultKind)
	if !ok {
		log.Warnf("node %s: kind %s cannot handle results", rt.id, rt.kind.Name())
		return
	}

	rt.mu.Lock()
	rt.pendingCall = ""
	rt.pendingRun = nil
	rt.mu.Unlock()

	run := Run{}
	if pendingRun != nil {
		run = *pendingRun
	}
	inputs, err := rt.resolveInputs()
	if err != nil {
		rt.failRun(run, Error{Name: "InputResolution", Message: err.Error()})
		return
	}
	call := &Call{
		NodeID:      rt.id,
		ExecutionID: run.ExecutionID,
		InputKey:    run.InputKey,
		Inputs:      inputs,
		Context:     rt.Context(),
	}
	result, err := resultKind.OnResult(ctx, call, msg)
	if err != nil {
		rt.failRun(run, Error{Name: "ExecutionError", Message: err.Error()})
		return
	}
	rt.applyResult(run, call, result)
}

func (rt *Runtime) applyResult(msg Run, call *Call, result ExecuteResult) {
	rt.mu.Lock()
	for key, value := range result.Outputs {
		rt.state.Outputs[key] = value
	}
	if result.Pending != "" {
		rt.pendingCall = result.Pending
		run := msg
		rt.pendingRun = &run
		rt.mu.Unlock()
		rt.emit(event.ObjectTypeNodeOutputs, rt.Context().Outputs, msg.ExecutionID)
		return
	}
	rt.status = StatusComplete
	rt.state.LastError = nil
	outputs := cloneValues(rt.state.Outputs)
	rt.mu.Unlock()

	rt.emit(event.ObjectTypeNodeOutputs, outputs, msg.ExecutionID)
	rt.emit(event.ObjectTypeNodeStatus, StatusComplete, msg.ExecutionID)

	rt.settle(msg, RunOutcome{
		Status:  StatusComplete,
		Outputs: outputs,
		Forward: result.Forward,
	})
	// Fan-out wakes are independent async requests; sibling branches may
	// complete out of order.
	for _, port := range result.WakeSuccessors {
		rt.wakeSuccessors(port, msg.ExecutionID)
	}
}

func (rt *Runtime) failRun(msg Run, nodeErr Error) {
	rt.mu.Lock()
	rt.status = StatusError
	rt.state.LastError = &nodeErr
	rt.pendingCall = ""
	rt.pendingRun = nil
	rt.mu.Unlock()
	rt.emit(event.ObjectTypeNodeError, nodeErr, msg.ExecutionID)
	rt.emit(event.ObjectTypeNodeStatus, StatusError, msg.ExecutionID)
	rt.settle(msg, RunOutcome{Status: StatusError, Err: &nodeErr})
}

func (rt *Runtime) settle(msg Run, outcome RunOutcome) {
	if msg.Done != nil {
		msg.Done.Resolve(outcome)
	}
}

func (rt *Runtime) setStatus(status Status, executionID string) {
	rt.mu.Lock()
	rt.status = status
	if status == StatusRunning {
		rt.state.LastError = nil
	}
	rt.mu.Unlock()
	rt.emit(event.ObjectTypeNodeStatus, status, executionID)
}

func (rt *Runtime) pendingCallID() string {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return rt.pendingCall
}

// resolveInputs pulls the node's effective inputs: the data-flow resolver
// first (connections win), the node's own control values as back-fill for
// unconnected sockets, then flattening for single-connection sockets.
func (rt *Runtime) resolveInputs() (map[string]any, error) {
	resolved := make(map[string]any)
	if rt.resolver != nil {
		rt.resolver.Reset(rt.id)
		fetched, err := rt.resolver.FetchInputs(rt.id)
		if err != nil {
			return nil, err
		}
		for key, value := range fetched {
			resolved[key] = value
		}
	}

	rt.mu.RLock()
	for key, def := range rt.state.InputSockets {
		if def.IsTrigger() {
			continue
		}
		if _, connected := resolved[key]; !connected {
			if value, set := rt.state.Inputs[key]; set {
				resolved[key] = value
			}
		}
	}
	inputSockets := rt.state.InputSockets
	rt.mu.RUnlock()

	for key, value := range resolved {
		def, known := inputSockets[key]
		if !known || def.IsMultiple {
			continue
		}
		if list, isList := value.([]any); isList {
			if len(list) > 0 {
				resolved[key] = list[0]
			} else {
				resolved[key] = nil
			}
		}
	}
	return resolved, nil
}

// missingRequired returns the key of the first required non-trigger input
// without a non-nil value, or "".
func (rt *Runtime) missingRequired(inputs map[string]any) string {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	for _, key := range rt.state.InputSockets.Keys() {
		def := rt.state.InputSockets[key]
		if def.IsTrigger() || !def.Required {
			continue
		}
		if value, present := inputs[key]; !present || value == nil {
			return key
		}
	}
	return ""
}

// wakeSuccessors requests execution of every node connected to the named
// output socket, outside the control-flow engine's edge walk. The target
// resolves its own trigger event from the input key.
func (rt *Runtime) wakeSuccessors(port, executionID string) {
	rt.mu.RLock()
	def, known := rt.state.OutputSockets[port]
	rt.mu.RUnlock()
	if !known || rt.registry == nil {
		return
	}
	for connection := range def.Connections {
		address, err := socket.ParseAddress(connection)
		if err != nil || address.Side != socket.SideInput {
			continue
		}
		target, ok := rt.registry.Get(address.Node)
		if !ok {
			log.Debugf("node %s: successor %s not registered", rt.id, address.Node)
			continue
		}
		target.Send(Run{
			ExecutionID: executionID,
			InputKey:    address.Key,
			Sender:      rt.id,
		})
	}
}

func (rt *Runtime) emit(object string, payload any, executionID string) {
	opts := []event.Option{event.WithNodeID(rt.id), event.WithPayload(payload)}
	if executionID != "" {
		opts = append(opts, event.WithExecutionID(executionID))
	}
	rt.emitter.Emit(event.New(object, opts...))
}
