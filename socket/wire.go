//
// Tencent is pleased to support the open source community by making craftgen-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// craftgen-go is licensed under the Apache License Version 2.0.
//
//

package socket

import (
	"encoding/json"
	"fmt"
	"sort"
)

// wireKeys is the closed set of keys the Definition struct models. Anything
// else found on the wire is routed into Extra so configuration written by a
// previous session round-trips exactly.
var wireKeys = map[string]struct{}{
	"x-key":          {},
	"name":           {},
	"type":           {},
	"description":    {},
	"required":       {},
	"isMultiple":     {},
	"default":        {},
	"x-order":        {},
	"x-controller":   {},
	"x-showSocket":   {},
	"x-event":        {},
	"x-actor-type":   {},
	"x-actor-config": {},
	"x-connection":   {},
	"x-compatible":   {},
	"x-userDefined":  {},
}

// definitionAlias avoids recursing into the custom JSON methods.
type definitionAlias Definition

// MarshalJSON writes the modeled fields and merges Extra back in, so unknown
// keys read from a previous session survive the next write. Modeled keys are
// normalized on the way out: optional fields holding their zero value
// (x-order 0, x-showSocket false) are omitted rather than echoed back.
func (d Definition) MarshalJSON() ([]byte, error) {
	base, err := json.Marshal(definitionAlias(d))
	if err != nil {
		return nil, err
	}
	if len(d.Extra) == 0 {
		return base, nil
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	for key, value := range d.Extra {
		if _, known := wireKeys[key]; known {
			continue
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("marshal extra key %q: %w", key, err)
		}
		merged[key] = raw
	}
	return json.Marshal(merged)
}

// UnmarshalJSON reads the modeled fields and captures every unknown key
// into Extra.
func (d *Definition) UnmarshalJSON(data []byte) error {
	var alias definitionAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*d = Definition(alias)
	for key, value := range raw {
		if _, known := wireKeys[key]; known {
			continue
		}
		var decoded any
		if err := json.Unmarshal(value, &decoded); err != nil {
			return fmt.Errorf("unmarshal extra key %q: %w", key, err)
		}
		if d.Extra == nil {
			d.Extra = make(map[string]any)
		}
		d.Extra[key] = decoded
	}
	return nil
}

// Map is a set of socket definitions keyed by socket key, the persisted form
// of one side of a node's configuration.
type Map map[string]Definition

// Keys returns the socket keys in display order (x-order, then key).
func (m Map) Keys() []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := m[keys[i]], m[keys[j]]
		if a.Order != b.Order {
			return a.Order < b.Order
		}
		return keys[i] < keys[j]
	})
	return keys
}

// Clone copies the map and every definition in it.
func (m Map) Clone() Map {
	out := make(Map, len(m))
	for key, def := range m {
		out[key] = def.Clone()
	}
	return out
}

// Triggers returns the subset of trigger-typed sockets.
func (m Map) Triggers() Map {
	out := make(Map)
	for key, def := range m {
		if def.IsTrigger() {
			out[key] = def
		}
	}
	return out
}

// Data returns the subset of non-trigger sockets.
func (m Map) Data() Map {
	out := make(Map)
	for key, def := range m {
		if !def.IsTrigger() {
			out[key] = def
		}
	}
	return out
}

// Validate checks the structural invariants of the definitions: a known
// value type, a non-empty key, and an event identifier on trigger sockets.
func (m Map) Validate() error {
	for key, def := range m {
		if def.Key == "" {
			return fmt.Errorf("socket %q: missing x-key", key)
		}
		if def.Key != key {
			return fmt.Errorf("socket %q: x-key %q does not match map key", key, def.Key)
		}
		if !def.Type.Valid() {
			return fmt.Errorf("socket %q: unknown type %q", key, def.Type)
		}
		if def.IsTrigger() && def.Event == "" {
			return fmt.Errorf("socket %q: trigger socket requires x-event", key)
		}
	}
	return nil
}
