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
	"fmt"
	"strings"
)

// Address identifies one socket on one node. Its string form,
// "<node>:<side>:<key>", is the system id socket actors are registered
// under and the key used in x-connection records.
type Address struct {
	Node string
	Side Side
	Key  string
}

// String returns the wire form of the address.
func (a Address) String() string {
	return fmt.Sprintf("%s:%s:%s", a.Node, a.Side, a.Key)
}

// ParseAddress parses the wire form of a socket address. The node id itself
// may not contain ":".
func ParseAddress(s string) (Address, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return Address{}, fmt.Errorf("invalid socket address %q", s)
	}
	side := Side(parts[1])
	if side != SideInput && side != SideOutput {
		return Address{}, fmt.Errorf("invalid socket address side %q", s)
	}
	if parts[0] == "" || parts[2] == "" {
		return Address{}, fmt.Errorf("invalid socket address %q", s)
	}
	return Address{Node: parts[0], Side: side, Key: parts[2]}, nil
}
