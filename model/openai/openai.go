//
// Tencent is pleased to support the open source community by making craftgen-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// craftgen-go is licensed under the Apache License Version 2.0.
//
//

// Package openai implements the model provider over the OpenAI chat
// completions API and any OpenAI-compatible endpoint.
package openai

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/openai/openai-go"
	openaiopt "github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/craftgen/craftgen-go/model"
)

const envAPIKey = "OPENAI_API_KEY"

// Option configures the provider.
type Option func(*options)

type options struct {
	apiKey    string
	baseURL   string
	extraOpts []openaiopt.RequestOption
}

// WithAPIKey sets the API key. OPENAI_API_KEY is the fallback.
func WithAPIKey(key string) Option {
	return func(o *options) {
		o.apiKey = key
	}
}

// WithBaseURL points the client at an OpenAI-compatible endpoint.
func WithBaseURL(url string) Option {
	return func(o *options) {
		o.baseURL = url
	}
}

// WithRequestOptions appends raw client options (custom HTTP client,
// headers).
func WithRequestOptions(opts ...openaiopt.RequestOption) Option {
	return func(o *options) {
		o.extraOpts = append(o.extraOpts, opts...)
	}
}

// Model is an OpenAI-backed model.Provider.
type Model struct {
	client openai.Client
	name   string
}

// New creates a provider for the named model.
func New(name string, opts ...Option) *Model {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.apiKey == "" {
		o.apiKey = os.Getenv(envAPIKey)
	}

	var clientOpts []openaiopt.RequestOption
	if o.apiKey != "" {
		clientOpts = append(clientOpts, openaiopt.WithAPIKey(o.apiKey))
	}
	if o.baseURL != "" {
		clientOpts = append(clientOpts, openaiopt.WithBaseURL(o.baseURL))
	}
	clientOpts = append(clientOpts, o.extraOpts...)

	return &Model{
		client: openai.NewClient(clientOpts...),
		name:   name,
	}
}

// Name reports the model name.
func (m *Model) Name() string {
	return m.name
}

// Generate performs one chat completion request.
func (m *Model) Generate(ctx context.Context, request *model.Request) (*model.Response, error) {
	if request == nil || len(request.Messages) == 0 {
		return nil, errors.New("request has no messages")
	}
	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(m.name),
		Messages: convertMessages(request.Messages),
	}
	if request.Temperature != nil {
		params.Temperature = openai.Float(*request.Temperature)
	}
	if request.MaxTokens != nil {
		params.MaxCompletionTokens = openai.Int(int64(*request.MaxTokens))
	}

	completion, err := m.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, errors.New("chat completion returned no choices")
	}
	choice := completion.Choices[0]
	return &model.Response{
		Text:         choice.Message.Content,
		FinishReason: choice.FinishReason,
		Usage: model.Usage{
			PromptTokens:     int(completion.Usage.PromptTokens),
			CompletionTokens: int(completion.Usage.CompletionTokens),
			TotalTokens:      int(completion.Usage.TotalTokens),
		},
	}, nil
}

func convertMessages(messages []model.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case model.RoleSystem:
			out = append(out, openai.SystemMessage(msg.Content))
		case model.RoleAssistant:
			out = append(out, openai.AssistantMessage(msg.Content))
		default:
			out = append(out, openai.UserMessage(msg.Content))
		}
	}
	return out
}
