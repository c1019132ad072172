//
// Tencent is pleased to support the open source community by making craftgen-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// craftgen-go is licensed under the Apache License Version 2.0.
//
//

package nodes

import (
	"context"

	"github.com/craftgen/craftgen-go/node"
	"github.com/craftgen/craftgen-go/socket"
)

// Output is the workflow exit point. Its data sockets are user-defined:
// one input per declared result field, mirrored to an output of the same
// key so enclosing workflows can relay the value further.
type Output struct{}

// Name implements node.Kind.
func (Output) Name() string { return "OutputNode" }

// InputSockets implements node.Kind.
func (Output) InputSockets() socket.Map {
	return socket.Map{TriggerKey: runTrigger(0)}
}

// OutputSockets implements node.Kind.
func (Output) OutputSockets() socket.Map {
	return socket.Map{TriggerKey: runTrigger(0)}
}

// Execute implements node.Kind. Resolved input values are mirrored onto the
// matching outputs; the chain ends here, nothing is forwarded.
func (Output) Execute(ctx context.Context, call *node.Call) (node.ExecuteResult, error) {
	outputs := make(map[string]any)
	for key, value := range call.Inputs {
		if def, ok := call.Context.OutputSockets[key]; ok && !def.IsTrigger() {
			outputs[key] = value
		}
	}
	return node.ExecuteResult{Outputs: outputs}, nil
}
