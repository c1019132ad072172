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
	"sync"

	"github.com/craftgen/craftgen-go/actor"
	"github.com/craftgen/craftgen-go/log"
	"github.com/craftgen/craftgen-go/socket"
)

// SocketSetValue asks a socket actor to set its value; the socket relays it
// upward to the owning node as a SET_VALUE keyed by the socket's key.
type SocketSetValue struct {
	Value any
}

// SocketAddConnection records one peer connection on the socket.
type SocketAddConnection struct {
	// Connections maps peer socket addresses to the peer socket key.
	Connections map[string]string
}

// SocketRemoveConnection removes peer connections by address.
type SocketRemoveConnection struct {
	Addresses []string
}

// socketActor is the tiny actor wrapping one socket definition. It has no
// error states; malformed partial updates are merged as-is, schema
// validation is the owning node's job.
type socketActor struct {
	mu         sync.RWMutex
	address    string
	side       socket.Side
	definition socket.Definition
	parent     *actor.Ref
	self       *actor.Ref
}

func newSocketActor(address string, def socket.Definition, side socket.Side, parent *actor.Ref) *socketActor {
	return &socketActor{
		address:    address,
		side:       side,
		definition: def.Clone(),
		parent:     parent,
	}
}

func (s *socketActor) bind(self *actor.Ref) {
	s.mu.Lock()
	s.self = self
	s.mu.Unlock()
}

// Definition returns a copy of the socket's current definition.
func (s *socketActor) Definition() socket.Definition {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.definition.Clone()
}

func (s *socketActor) Receive(_ context.Context, msg actor.Message) {
	switch m := msg.(type) {
	case UpdateSocket:
		s.mu.Lock()
		s.definition = s.definition.Merge(m.Socket)
		s.mu.Unlock()
	case SocketAddConnection:
		s.mu.Lock()
		s.definition = s.definition.Merge(socket.Definition{Connections: m.Connections})
		s.mu.Unlock()
	case SocketRemoveConnection:
		s.mu.Lock()
		for _, address := range m.Addresses {
			delete(s.definition.Connections, address)
		}
		s.mu.Unlock()
	case SocketSetValue:
		s.mu.RLock()
		key := s.definition.Key
		parent := s.parent
		s.mu.RUnlock()
		if parent == nil {
			return
		}
		parent.Send(SetValue{
			Values: map[string]any{key: m.Value},
			Origin: s.address,
		})
	default:
		log.Debugf("socket %s: unhandled message %T", s.address, msg)
	}
}
