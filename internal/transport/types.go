// Package transport defines the delivery-channel capabilities the scheduling
// core depends on. Concrete adapters live in subpackages.
package transport

import "context"

// Delivery transmits a stored payload file to a destination chat.
// Implementations must be safe for concurrent use.
type Delivery interface {
	SendFile(ctx context.Context, destination, path, caption string) error
}

// ChannelStatus reports whether the delivery channel is connected.
// Scheduling does not require readiness; read paths that enumerate
// destinations do.
type ChannelStatus interface {
	Ready() bool
}
