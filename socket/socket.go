//
// Tencent is pleased to support the open source community by making craftgen-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// craftgen-go is licensed under the Apache License Version 2.0.
//
//

// Package socket defines the typed socket model: the schema records that
// describe a node's dynamic inputs and outputs, their wire form, and the
// compatibility relation used when edges are materialized.
package socket

// Type is the value type carried by a socket.
type Type string

const (
	// TypeString carries a string value.
	TypeString Type = "string"
	// TypeNumber carries a floating point value.
	TypeNumber Type = "number"
	// TypeInteger carries an integer value.
	TypeInteger Type = "integer"
	// TypeBoolean carries a boolean value.
	TypeBoolean Type = "boolean"
	// TypeAny carries a value of any type.
	TypeAny Type = "any"
	// TypeArray carries a list value.
	TypeArray Type = "array"
	// TypeObject carries a structured value.
	TypeObject Type = "object"
	// TypeDate carries a timestamp value.
	TypeDate Type = "date"
	// TypeTool carries tool definitions; it accepts connections from any
	// concrete node type.
	TypeTool Type = "tool"
	// TypeTrigger signals control-flow causality instead of carrying data.
	TypeTrigger Type = "trigger"
	// TypeThread carries a message thread.
	TypeThread Type = "thread"
)

// Types lists every valid socket value type.
var Types = []Type{
	TypeString, TypeNumber, TypeInteger, TypeBoolean, TypeAny, TypeArray,
	TypeObject, TypeDate, TypeTool, TypeTrigger, TypeThread,
}

// Valid reports whether t is one of the known socket value types.
func (t Type) Valid() bool {
	for _, known := range Types {
		if t == known {
			return true
		}
	}
	return false
}

// Side distinguishes input sockets from output sockets on a node.
type Side string

const (
	// SideInput marks a socket on the input side of a node.
	SideInput Side = "input"
	// SideOutput marks a socket on the output side of a node.
	SideOutput Side = "output"
)

// ActorConfig describes how a linked configuration child actor binds to the
// socket that spawned it. Internal maps the child's output socket keys to the
// parent's input socket keys so both sides record the implicit connection.
type ActorConfig struct {
	// Internal maps child output socket key -> parent input socket key.
	Internal map[string]string `json:"internal,omitempty"`
}

// Definition is the schema for one named value slot on a node.
//
// The field set is closed; keys that appear on the wire but are not modeled
// here survive round-trips through Extra.
type Definition struct {
	// Key uniquely identifies the socket within one side of a node and is
	// stable across renames.
	Key string `json:"x-key"`
	// Name is the display name shown by the editing surface.
	Name string `json:"name"`
	// Type is the socket's value type.
	Type Type `json:"type"`
	// Description documents the socket for the editing surface and for
	// derived tool definitions.
	Description string `json:"description,omitempty"`
	// Required marks sockets that must resolve to a non-nil value before
	// the owning node is runnable.
	Required bool `json:"required"`
	// IsMultiple allows more than one inbound connection; resolved values
	// stay a sequence instead of being flattened to a scalar.
	IsMultiple bool `json:"isMultiple"`
	// Default is the value used when nothing has been set or connected.
	Default any `json:"default,omitempty"`
	// Order fixes the socket's position in the rendered node.
	Order int `json:"x-order,omitempty"`
	// Controller hints which UI control renders the socket's value.
	Controller string `json:"x-controller,omitempty"`
	// ShowSocket controls whether the socket is offered as a connection
	// point by the editing surface.
	ShowSocket bool `json:"x-showSocket,omitempty"`
	// Event names the node event raised when a trigger socket fires.
	// Required for trigger sockets.
	Event string `json:"x-event,omitempty"`
	// ActorType names the machine type of the linked configuration child
	// actor spawned to feed this socket.
	ActorType string `json:"x-actor-type,omitempty"`
	// ActorConfig configures the linked child actor per machine type.
	ActorConfig map[string]ActorConfig `json:"x-actor-config,omitempty"`
	// Connections records the peer socket address for every materialized
	// connection, keyed by the peer socket's system id.
	Connections map[string]string `json:"x-connection,omitempty"`
	// Compatible lists socket type names this socket explicitly combines
	// with beyond its own type.
	Compatible []string `json:"x-compatible,omitempty"`
	// UserDefined marks sockets added by the user at runtime; only these
	// may be removed again.
	UserDefined bool `json:"x-userDefined,omitempty"`
	// Extra preserves wire keys outside the modeled field set.
	Extra map[string]any `json:"-"`
}

// Clone returns a deep enough copy of the definition for the runtime's
// purposes: map fields are copied, values are shared.
func (d Definition) Clone() Definition {
	out := d
	if d.ActorConfig != nil {
		out.ActorConfig = make(map[string]ActorConfig, len(d.ActorConfig))
		for k, v := range d.ActorConfig {
			cfg := ActorConfig{}
			if v.Internal != nil {
				cfg.Internal = make(map[string]string, len(v.Internal))
				for ik, iv := range v.Internal {
					cfg.Internal[ik] = iv
				}
			}
			out.ActorConfig[k] = cfg
		}
	}
	if d.Connections != nil {
		out.Connections = make(map[string]string, len(d.Connections))
		for k, v := range d.Connections {
			out.Connections[k] = v
		}
	}
	if d.Compatible != nil {
		out.Compatible = append([]string(nil), d.Compatible...)
	}
	if d.Extra != nil {
		out.Extra = make(map[string]any, len(d.Extra))
		for k, v := range d.Extra {
			out.Extra[k] = v
		}
	}
	return out
}

// IsTrigger reports whether the socket participates in control flow.
func (d Definition) IsTrigger() bool {
	return d.Type == TypeTrigger
}

// HasConnection reports whether at least one connection is recorded.
func (d Definition) HasConnection() bool {
	return len(d.Connections) > 0
}

// Merge overlays a partial definition onto d and returns the result.
// Zero values in patch leave the corresponding field untouched; map fields
// are merged key-wise. This mirrors how runtime-discovered schema (for
// example spreadsheet headers) is layered onto the declared schema.
func (d Definition) Merge(patch Definition) Definition {
	out := d.Clone()
	if patch.Name != "" {
		out.Name = patch.Name
	}
	if patch.Type != "" {
		out.Type = patch.Type
	}
	if patch.Description != "" {
		out.Description = patch.Description
	}
	if patch.Required {
		out.Required = true
	}
	if patch.IsMultiple {
		out.IsMultiple = true
	}
	if patch.Default != nil {
		out.Default = patch.Default
	}
	if patch.Order != 0 {
		out.Order = patch.Order
	}
	if patch.Controller != "" {
		out.Controller = patch.Controller
	}
	if patch.ShowSocket {
		out.ShowSocket = true
	}
	if patch.Event != "" {
		out.Event = patch.Event
	}
	if patch.ActorType != "" {
		out.ActorType = patch.ActorType
	}
	for k, v := range patch.ActorConfig {
		if out.ActorConfig == nil {
			out.ActorConfig = make(map[string]ActorConfig)
		}
		out.ActorConfig[k] = v
	}
	for k, v := range patch.Connections {
		if out.Connections == nil {
			out.Connections = make(map[string]string)
		}
		out.Connections[k] = v
	}
	for _, name := range patch.Compatible {
		out.Compatible = appendUnique(out.Compatible, name)
	}
	if patch.UserDefined {
		out.UserDefined = true
	}
	for k, v := range patch.Extra {
		if out.Extra == nil {
			out.Extra = make(map[string]any)
		}
		out.Extra[k] = v
	}
	return out
}

func appendUnique(list []string, name string) []string {
	for _, existing := range list {
		if existing == name {
			return list
		}
	}
	return append(list, name)
}
