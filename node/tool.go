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
	"fmt"
	"strings"

	"github.com/craftgen/craftgen-go/socket"
)

// Tool describes one trigger socket of a node as a callable tool: name,
// description, and a JSON-Schema of the node's visible non-trigger inputs.
// Tool-typed sockets collect these from connected producer nodes.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ToolDefinitions derives a tool per trigger input socket. Nodes currently
// in an error state still advertise their tools; a tool call is just
// another RUN.
func (rt *Runtime) ToolDefinitions(description string) map[string]Tool {
	rt.mu.RLock()
	defer rt.mu.RUnlock()

	triggers := rt.state.InputSockets.Triggers()
	if len(triggers) == 0 {
		return nil
	}
	parameters := parameterSchema(rt.state.InputSockets)
	tools := make(map[string]Tool, len(triggers))
	for key := range triggers {
		name := fmt.Sprintf("%s-%s", slugify(rt.id), key)
		tools[name] = Tool{
			Name:        name,
			Description: description,
			Parameters:  parameters,
		}
	}
	return tools
}

// parameterSchema builds a JSON-Schema object for the visible non-trigger
// input sockets.
func parameterSchema(inputs socket.Map) map[string]any {
	properties := make(map[string]any)
	var required []string
	for _, key := range inputs.Keys() {
		def := inputs[key]
		if def.IsTrigger() || !def.ShowSocket {
			continue
		}
		property := map[string]any{
			"type": schemaType(def.Type),
		}
		if def.Description != "" {
			property["description"] = def.Description
		}
		properties[key] = property
		if def.Required {
			required = append(required, key)
		}
	}
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func schemaType(t socket.Type) string {
	switch t {
	case socket.TypeString, socket.TypeDate:
		return "string"
	case socket.TypeNumber:
		return "number"
	case socket.TypeInteger:
		return "integer"
	case socket.TypeBoolean:
		return "boolean"
	case socket.TypeArray, socket.TypeThread:
		return "array"
	default:
		return "object"
	}
}

func slugify(id string) string {
	cleaned := strings.TrimPrefix(id, "node_")
	cleaned = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, cleaned)
	return strings.Trim(cleaned, "_")
}
