package transport

import (
	"context"
	"sync"

	"github.com/hxrts/aura-sub005/pkg/party"
)

const inboxDepth = 256

// Network is an in-memory message fabric for tests and simulation. It
// deliberately models the best-effort contract: a full inbox drops the
// message instead of blocking the sender.
type Network struct {
	mu      sync.RWMutex
	inboxes map[party.ID]chan Message
}

// NewNetwork returns an empty fabric.
func NewNetwork() *Network {
	return &Network{inboxes: make(map[party.ID]chan Message)}
}

// Join attaches a participant and returns its endpoint.
func (n *Network) Join(id party.ID) Transport {
	n.mu.Lock()
	defer n.mu.Unlock()
	inbox, ok := n.inboxes[id]
	if !ok {
		inbox = make(chan Message, inboxDepth)
		n.inboxes[id] = inbox
	}
	return &endpoint{network: n, id: id, inbox: inbox}
}

func (n *Network) deliver(from, to party.ID, payload []byte) error {
	// The lock is held across the send: Close closes the inbox under
	// the write lock, so a send can never land on a closed channel.
	n.mu.RLock()
	defer n.mu.RUnlock()
	inbox, ok := n.inboxes[to]
	if !ok {
		return ErrUnknownPeer
	}
	msg := Message{From: from, Payload: append([]byte(nil), payload...)}
	select {
	case inbox <- msg:
	default:
		// Best effort: drop on backpressure.
	}
	return nil
}

func (n *Network) peers(except party.ID) []party.ID {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]party.ID, 0, len(n.inboxes))
	for id := range n.inboxes {
		if id != except {
			out = append(out, id)
		}
	}
	return out
}

type endpoint struct {
	network *Network
	id      party.ID
	inbox   chan Message

	mu     sync.Mutex
	closed bool
}

func (e *endpoint) Send(ctx context.Context, to party.ID, payload []byte) error {
	if err := e.check(ctx); err != nil {
		return err
	}
	return e.network.deliver(e.id, to, payload)
}

func (e *endpoint) Broadcast(ctx context.Context, payload []byte) error {
	if err := e.check(ctx); err != nil {
		return err
	}
	for _, id := range e.network.peers(e.id) {
		if err := e.network.deliver(e.id, id, payload); err != nil {
			return err
		}
	}
	return nil
}

func (e *endpoint) Receive() <-chan Message {
	return e.inbox
}

func (e *endpoint) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	e.network.mu.Lock()
	delete(e.network.inboxes, e.id)
	close(e.inbox)
	e.network.mu.Unlock()
	return nil
}

func (e *endpoint) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	return nil
}
