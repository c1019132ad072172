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

// APIConfiguration is a linked configuration child: it folds its input
// values into one structured config output that feeds the parent's
// actor-typed socket. It never participates in control flow.
type APIConfiguration struct{}

// Name implements node.Kind.
func (APIConfiguration) Name() string { return "ApiConfiguration" }

// InputSockets implements node.Kind.
func (APIConfiguration) InputSockets() socket.Map {
	return socket.Map{
		"model": {
			Key:     "model",
			Name:    "model",
			Type:    socket.TypeString,
			Default: "gpt-4o-mini",
			Order:   0,
		},
		"temperature": {
			Key:     "temperature",
			Name:    "temperature",
			Type:    socket.TypeNumber,
			Default: 0.7,
			Order:   1,
		},
		"baseUrl": {
			Key:   "baseUrl",
			Name:  "baseUrl",
			Type:  socket.TypeString,
			Order: 2,
		},
	}
}

// OutputSockets implements node.Kind.
func (APIConfiguration) OutputSockets() socket.Map {
	return socket.Map{
		"config": {
			Key:  "config",
			Name: "config",
			Type: socket.TypeObject,
		},
	}
}

// Execute implements node.Kind.
func (APIConfiguration) Execute(ctx context.Context, call *node.Call) (node.ExecuteResult, error) {
	config := make(map[string]any)
	for key, value := range call.Inputs {
		if value != nil {
			config[key] = value
		}
	}
	return node.ExecuteResult{
		Outputs: map[string]any{"config": config},
	}, nil
}
