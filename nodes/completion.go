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
	"fmt"

	"github.com/google/uuid"

	"github.com/craftgen/craftgen-go/log"
	"github.com/craftgen/craftgen-go/model"
	"github.com/craftgen/craftgen-go/model/openai"
	"github.com/craftgen/craftgen-go/node"
	"github.com/craftgen/craftgen-go/socket"
)

// ProviderFactory builds a model provider from a node's llm configuration,
// the structured value produced by its ApiConfiguration child.
type ProviderFactory func(config map[string]any) (model.Provider, error)

// OpenAIProviderFactory builds OpenAI-backed providers from the standard
// llm config shape: model, temperature, baseUrl.
func OpenAIProviderFactory(config map[string]any) (model.Provider, error) {
	name, _ := config["model"].(string)
	if name == "" {
		return nil, fmt.Errorf("llm config has no model name")
	}
	var opts []openai.Option
	if baseURL, _ := config["baseUrl"].(string); baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}
	return openai.New(name, opts...), nil
}

// CompletionOption configures a Completion kind.
type CompletionOption func(*Completion)

// WithCompletionRegistry enables asynchronous execution: the generate call
// runs off the actor goroutine and the outcome is delivered back as a
// Result message through the registry.
func WithCompletionRegistry(registry node.Registry) CompletionOption {
	return func(c *Completion) {
		c.registry = registry
	}
}

// Completion calls a language model with a rendered prompt. Its llm socket
// is actor-typed: an ApiConfiguration child is spawned to feed it.
type Completion struct {
	providers ProviderFactory
	registry  node.Registry
}

// NewCompletion creates the kind. providers defaults to
// OpenAIProviderFactory when nil.
func NewCompletion(providers ProviderFactory, opts ...CompletionOption) *Completion {
	c := &Completion{providers: providers}
	if c.providers == nil {
		c.providers = OpenAIProviderFactory
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name implements node.Kind.
func (*Completion) Name() string { return "CompletionNode" }

// InputSockets implements node.Kind.
func (*Completion) InputSockets() socket.Map {
	return socket.Map{
		TriggerKey: runTrigger(0),
		"system": {
			Key:        "system",
			Name:       "system",
			Type:       socket.TypeString,
			Controller: "textarea",
			Order:      1,
		},
		"prompt": {
			Key:        "prompt",
			Name:       "prompt",
			Type:       socket.TypeString,
			Required:   true,
			Controller: "textarea",
			Order:      2,
			ShowSocket: true,
		},
		"llm": {
			Key:       "llm",
			Name:      "llm",
			Type:      socket.TypeObject,
			Order:     3,
			ActorType: "ApiConfiguration",
			ActorConfig: map[string]socket.ActorConfig{
				"ApiConfiguration": {Internal: map[string]string{"config": "llm"}},
			},
		},
	}
}

// OutputSockets implements node.Kind.
func (*Completion) OutputSockets() socket.Map {
	return socket.Map{
		TriggerKey: runTrigger(0),
		"result": {
			Key:        "result",
			Name:       "result",
			Type:       socket.TypeString,
			Order:      1,
			ShowSocket: true,
		},
		"usage": {
			Key:   "usage",
			Name:  "usage",
			Type:  socket.TypeObject,
			Order: 2,
		},
	}
}

// Execute implements node.Kind. With a registry configured the generate call
// runs in the background and the run stays pending until the Result message
// lands; without one it completes inline.
func (c *Completion) Execute(ctx context.Context, call *node.Call) (node.ExecuteResult, error) {
	provider, request, err := c.prepare(call)
	if err != nil {
		return node.ExecuteResult{}, err
	}
	if c.registry == nil {
		response, err := provider.Generate(ctx, request)
		if err != nil {
			return node.ExecuteResult{}, err
		}
		return completionResult(response), nil
	}

	callID := uuid.New().String()
	nodeID := call.NodeID
	go func() {
		response, err := provider.Generate(ctx, request)
		ref, ok := c.registry.Get(nodeID)
		if !ok {
			log.Debugf("completion: node %s gone before result arrived", nodeID)
			return
		}
		if err != nil {
			ref.Send(node.Result{ID: callID, OK: false, Value: err.Error()})
			return
		}
		ref.Send(node.Result{ID: callID, OK: true, Value: response})
	}()
	return node.ExecuteResult{Pending: callID}, nil
}

// OnResult implements node.ResultKind.
func (c *Completion) OnResult(ctx context.Context, call *node.Call, res node.Result) (node.ExecuteResult, error) {
	if !res.OK {
		return node.ExecuteResult{}, fmt.Errorf("generate: %v", res.Value)
	}
	response, ok := res.Value.(*model.Response)
	if !ok {
		return node.ExecuteResult{}, fmt.Errorf("unexpected result payload %T", res.Value)
	}
	return completionResult(response), nil
}

func (c *Completion) prepare(call *node.Call) (model.Provider, *model.Request, error) {
	prompt, _ := call.Inputs["prompt"].(string)
	if prompt == "" {
		return nil, nil, fmt.Errorf("prompt is empty")
	}
	config, _ := call.Inputs["llm"].(map[string]any)
	provider, err := c.providers(config)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve provider: %w", err)
	}

	var messages []model.Message
	if system, _ := call.Inputs["system"].(string); system != "" {
		messages = append(messages, model.NewSystemMessage(system))
	}
	messages = append(messages, model.NewUserMessage(prompt))

	request := &model.Request{Messages: messages}
	if temperature, ok := config["temperature"].(float64); ok {
		request.Temperature = model.Float(temperature)
	}
	if maxTokens, ok := config["maxTokens"].(float64); ok {
		request.MaxTokens = model.Int(int(maxTokens))
	}
	return provider, request, nil
}

func completionResult(response *model.Response) node.ExecuteResult {
	return node.ExecuteResult{
		Outputs: map[string]any{
			"result": response.Text,
			"usage": map[string]any{
				"promptTokens":     response.Usage.PromptTokens,
				"completionTokens": response.Usage.CompletionTokens,
				"totalTokens":      response.Usage.TotalTokens,
			},
		},
		Forward: []string{TriggerKey},
	}
}
