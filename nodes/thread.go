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

// Thread event names.
const (
	EventAddMessage = "ADD_MESSAGE"
)

// Thread accumulates a message transcript across runs. Each run appends the
// message input to the thread output, so the full transcript is what
// downstream nodes pull.
type Thread struct{}

// Name implements node.Kind.
func (Thread) Name() string { return "Thread" }

// InputSockets implements node.Kind.
func (Thread) InputSockets() socket.Map {
	return socket.Map{
		"addMessage": {
			Key:        "addMessage",
			Name:       "addMessage",
			Type:       socket.TypeTrigger,
			Event:      EventAddMessage,
			Order:      0,
			ShowSocket: true,
		},
		"message": {
			Key:      "message",
			Name:     "message",
			Type:     socket.TypeString,
			Required: true,
			Order:    1,
		},
		"role": {
			Key:     "role",
			Name:    "role",
			Type:    socket.TypeString,
			Default: "user",
			Order:   2,
		},
	}
}

// OutputSockets implements node.Kind.
func (Thread) OutputSockets() socket.Map {
	return socket.Map{
		TriggerKey: runTrigger(0),
		"thread": {
			Key:        "thread",
			Name:       "thread",
			Type:       socket.TypeThread,
			Order:      1,
			ShowSocket: true,
		},
	}
}

// Execute implements node.Kind. The previous transcript is read from the
// node's own outputs; runs append, Reset clears.
func (Thread) Execute(ctx context.Context, call *node.Call) (node.ExecuteResult, error) {
	transcript, _ := call.Context.Outputs["thread"].([]any)
	message, _ := call.Inputs["message"].(string)
	role, _ := call.Inputs["role"].(string)
	if role == "" {
		role = "user"
	}
	transcript = append(transcript, map[string]any{
		"role":    role,
		"content": message,
	})
	return node.ExecuteResult{
		Outputs: map[string]any{"thread": transcript},
		Forward: []string{TriggerKey},
	}, nil
}
