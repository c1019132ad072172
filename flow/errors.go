package flow

import "errors"

var (
	ErrNodeNotFound        = errors.New("node is not registered with the engine")
	ErrUnknownInput        = errors.New("input key is not declared on the node")
	ErrUnknownSocket       = errors.New("edge references a socket that does not exist")
	ErrIncompatibleSockets = errors.New("source and target sockets are incompatible")
)
