//
// Tencent is pleased to support the open source community by making craftgen-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// craftgen-go is licensed under the Apache License Version 2.0.
//
//

// Package nodes holds the built-in node kinds. Each kind is a stateless
// value; per-node state lives in the runtime's context.
package nodes

import (
	"context"

	"github.com/craftgen/craftgen-go/node"
	"github.com/craftgen/craftgen-go/socket"
)

// Trigger socket keys and events shared by the built-in kinds.
const (
	TriggerKey = "trigger"
	EventRun   = "RUN"
)

func runTrigger(order int) socket.Definition {
	return socket.Definition{
		Key:        TriggerKey,
		Name:       "trigger",
		Type:       socket.TypeTrigger,
		Event:      EventRun,
		Order:      order,
		ShowSocket: true,
	}
}

// Input is the workflow entry point. Its data sockets are user-defined:
// the editing surface adds one output per form field. Executing copies the
// node's input values to the matching outputs and forwards the trigger.
type Input struct{}

// Name implements node.Kind.
func (Input) Name() string { return "InputNode" }

// InputSockets implements node.Kind.
func (Input) InputSockets() socket.Map {
	return socket.Map{TriggerKey: runTrigger(0)}
}

// OutputSockets implements node.Kind.
func (Input) OutputSockets() socket.Map {
	return socket.Map{TriggerKey: runTrigger(0)}
}

// Execute implements node.Kind. Every non-trigger input value with a
// matching output socket is published as an output.
func (Input) Execute(ctx context.Context, call *node.Call) (node.ExecuteResult, error) {
	outputs := make(map[string]any)
	for key, value := range call.Inputs {
		if def, ok := call.Context.OutputSockets[key]; ok && !def.IsTrigger() {
			outputs[key] = value
		}
	}
	return node.ExecuteResult{
		Outputs: outputs,
		Forward: []string{TriggerKey},
	}, nil
}
