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
	"regexp"
	"strings"

	"github.com/craftgen/craftgen-go/node"
	"github.com/craftgen/craftgen-go/socket"
)

var templateVariable = regexp.MustCompile(`\{\{\s*([a-zA-Z_][a-zA-Z0-9_]*)\s*\}\}`)

// Variables returns the placeholder names used in a template, in order of
// first appearance. The editing surface derives one input socket per name.
func Variables(template string) []string {
	var names []string
	seen := make(map[string]bool)
	for _, match := range templateVariable.FindAllStringSubmatch(template, -1) {
		name := match[1]
		if seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names
}

// Render substitutes {{name}} placeholders with the given values. Unknown
// placeholders stay literal so a half-configured template is inspectable.
func Render(template string, values map[string]any) string {
	return templateVariable.ReplaceAllStringFunc(template, func(match string) string {
		name := templateVariable.FindStringSubmatch(match)[1]
		value, ok := values[name]
		if !ok || value == nil {
			return match
		}
		return fmt.Sprint(value)
	})
}

// PromptTemplate renders a {{variable}} template from its inputs. Variable
// sockets are user-defined; the editing surface keeps them in sync with the
// template text.
type PromptTemplate struct{}

// Name implements node.Kind.
func (PromptTemplate) Name() string { return "PromptTemplate" }

// InputSockets implements node.Kind.
func (PromptTemplate) InputSockets() socket.Map {
	return socket.Map{
		TriggerKey: runTrigger(0),
		"template": {
			Key:        "template",
			Name:       "template",
			Type:       socket.TypeString,
			Required:   true,
			Controller: "textarea",
			Order:      1,
		},
	}
}

// OutputSockets implements node.Kind.
func (PromptTemplate) OutputSockets() socket.Map {
	return socket.Map{
		TriggerKey: runTrigger(0),
		"value": {
			Key:        "value",
			Name:       "value",
			Type:       socket.TypeString,
			Order:      1,
			ShowSocket: true,
		},
	}
}

// Execute implements node.Kind.
func (PromptTemplate) Execute(ctx context.Context, call *node.Call) (node.ExecuteResult, error) {
	template, _ := call.Inputs["template"].(string)
	if strings.TrimSpace(template) == "" {
		return node.ExecuteResult{}, fmt.Errorf("template is empty")
	}
	return node.ExecuteResult{
		Outputs: map[string]any{"value": Render(template, call.Inputs)},
		Forward: []string{TriggerKey},
	}, nil
}
