//
// Tencent is pleased to support the open source community by making craftgen-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// craftgen-go is licensed under the Apache License Version 2.0.
//
//

package socket

// Compat is the compatibility relation for one socket. It is derived from a
// Definition and answers whether a peer socket type name may connect.
type Compat struct {
	name       string
	compatible []string
}

// NewCompat builds the compatibility relation for a definition.
// Every socket combines with its own type name and with anything listed in
// x-compatible. Tool sockets additionally combine with every concrete node
// type so any producing node can be offered as a tool argument source.
func NewCompat(def Definition, nodeTypes []string) *Compat {
	c := &Compat{name: string(def.Type)}
	c.CombineWith(string(def.Type))
	for _, name := range def.Compatible {
		c.CombineWith(name)
	}
	if def.Type == TypeTool {
		for _, name := range nodeTypes {
			c.CombineWith(name)
		}
	}
	return c
}

// Name returns the socket type name the relation was built for.
func (c *Compat) Name() string {
	return c.name
}

// CombineWith declares an additional compatible socket type name.
func (c *Compat) CombineWith(name string) {
	for _, existing := range c.compatible {
		if existing == name {
			return
		}
	}
	c.compatible = append(c.compatible, name)
}

// IsCompatibleWith reports whether a peer socket with the given type name may
// connect. Compatibility holds when the names are identical, when the peer
// was declared via CombineWith, or when either side is "any". The relation is
// directional; callers must not assume symmetry.
func (c *Compat) IsCompatibleWith(name string) bool {
	if c.name == name || c.name == string(TypeAny) || name == string(TypeAny) {
		return true
	}
	for _, compatible := range c.compatible {
		if compatible == name || compatible == string(TypeAny) {
			return true
		}
	}
	return false
}
