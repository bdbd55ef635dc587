package transport

import (
	"context"

	"go.uber.org/zap"

	"github.com/hxrts/aura-sub005/pkg/ledger"
)

// Replicator gossips ledger snapshots over a transport endpoint. Each
// local ledger change re-broadcasts the affected sessions; inbound
// snapshots are merged. Because applying a snapshot is a CRDT merge,
// duplicate and out-of-order delivery are harmless, which is exactly
// what the best-effort transport provides.
type Replicator struct {
	store *ledger.Store
	tr    Transport
	log   *zap.Logger
}

// NewReplicator wires a store to an endpoint.
func NewReplicator(store *ledger.Store, tr Transport, log *zap.Logger) *Replicator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Replicator{store: store, tr: tr, log: log}
}

// Run pumps snapshots both ways until ctx is cancelled.
func (r *Replicator) Run(ctx context.Context) error {
	watch := r.store.Watch(ctx)
	inbox := r.tr.Receive()

	// Announce existing state once on startup so late joiners catch up.
	r.broadcastAll(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-watch:
			if !ok {
				return ctx.Err()
			}
			r.broadcastAll(ctx)
		case msg, ok := <-inbox:
			if !ok {
				return nil
			}
			if err := r.store.ApplySnapshot(msg.Payload); err != nil {
				r.log.Warn("dropping malformed snapshot",
					zap.String("from", string(msg.From)),
					zap.Error(err))
			}
		}
	}
}

func (r *Replicator) broadcastAll(ctx context.Context) {
	for _, id := range r.store.SessionIDs() {
		payload, err := r.store.EncodeSnapshot(id)
		if err != nil {
			continue
		}
		if err := r.tr.Broadcast(ctx, payload); err != nil {
			r.log.Debug("broadcast failed", zap.String("session", string(id)), zap.Error(err))
			return
		}
	}
}
