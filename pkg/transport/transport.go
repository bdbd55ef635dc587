// Package transport provides best-effort message delivery between
// participants. No ordering or delivery guarantee is assumed by the
// protocols; all agreement flows through ledger merges, so a dropped or
// reordered message only delays convergence.
package transport

import (
	"context"
	"errors"

	"github.com/hxrts/aura-sub005/pkg/party"
)

// Message is an opaque payload from a named sender.
type Message struct {
	From    party.ID
	Payload []byte
}

// Transport is one participant's endpoint.
type Transport interface {
	// Send delivers best-effort to a single peer.
	Send(ctx context.Context, to party.ID, payload []byte) error
	// Broadcast delivers best-effort to every other peer.
	Broadcast(ctx context.Context, payload []byte) error
	// Receive returns the inbound message channel. Closed when the
	// endpoint closes.
	Receive() <-chan Message
	// Close detaches the endpoint.
	Close() error
}

// ErrUnknownPeer is returned when sending to a peer that never joined.
var ErrUnknownPeer = errors.New("transport: unknown peer")

// ErrClosed is returned when using a closed endpoint.
var ErrClosed = errors.New("transport: endpoint closed")
