package main

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hxrts/aura-sub005/pkg/epoch"
	"github.com/hxrts/aura-sub005/pkg/keyshare"
	"github.com/hxrts/aura-sub005/pkg/ledger"
	"github.com/hxrts/aura-sub005/pkg/math/curve"
	"github.com/hxrts/aura-sub005/pkg/math/polynomial"
	"github.com/hxrts/aura-sub005/pkg/party"
	"github.com/hxrts/aura-sub005/pkg/sealed"
	"github.com/hxrts/aura-sub005/pkg/sigchain"
	"github.com/hxrts/aura-sub005/pkg/transport"
	"github.com/hxrts/aura-sub005/protocols/dkd"
	"github.com/hxrts/aura-sub005/protocols/reshare"
)

const sessionTimeout = 30 * time.Second

// simParticipant is one in-process replica: its own ledger, share
// store, epoch clock, and key material.
type simParticipant struct {
	id         party.ID
	ledger     *ledger.Store
	shares     keyshare.Store
	clock      *epoch.Clock
	sealKey    *sealed.KeyPair
	devicePub  ed25519.PublicKey
	devicePriv ed25519.PrivateKey
}

// simAccount is a full threshold account wired over an in-memory
// network, one replicator per participant.
type simAccount struct {
	groupKey     *curve.Point
	participants party.IDSlice
	threshold    int
	members      map[party.ID]*simParticipant
	network      *transport.Network
	log          *zap.Logger
}

func newLogger() *zap.Logger {
	if !verbose {
		return zap.NewNop()
	}
	log, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return log
}

func partyIDs(n int) []party.ID {
	ids := make([]party.ID, n)
	for i := range ids {
		ids[i] = party.ID(fmt.Sprintf("party-%02d", i+1))
	}
	return ids
}

// newSimAccount bootstraps a t-of-n account: a trusted-dealer Shamir
// split for the initial sharing, then replicators gossiping every
// ledger change.
func newSimAccount(ctx context.Context, n, t int, log *zap.Logger) (*simAccount, error) {
	if t < 2 || t > n {
		return nil, fmt.Errorf("invalid configuration: %d-of-%d", t, n)
	}
	secret, err := curve.Sample(rand.Reader)
	if err != nil {
		return nil, err
	}
	poly, err := polynomial.NewPolynomial(t-1, secret, rand.Reader)
	if err != nil {
		return nil, err
	}
	defer poly.Zeroize()

	set := party.NewIDSlice(partyIDs(n))
	a := &simAccount{
		groupKey:     secret.ActOnBase(),
		participants: set,
		threshold:    t,
		members:      make(map[party.ID]*simParticipant, n),
		network:      transport.NewNetwork(),
		log:          log,
	}
	secret.Zeroize()

	for _, id := range set {
		m, err := a.enroll(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := m.shares.Store(&keyshare.KeyShare{
			ID:             id,
			Index:          set.Index(id),
			Threshold:      t,
			Total:          n,
			Epoch:          epoch.Initial,
			GroupPublicKey: a.groupKey,
			Secret:         poly.EvaluateIndex(set.Index(id)),
		}); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// enroll provisions a replica for id and starts its replicator.
func (a *simAccount) enroll(ctx context.Context, id party.ID) (*simParticipant, error) {
	if m, ok := a.members[id]; ok {
		return m, nil
	}
	sealKey, err := sealed.GenerateKeyPair(rand.Reader)
	if err != nil {
		return nil, err
	}
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	m := &simParticipant{
		id:         id,
		ledger:     ledger.NewStore(),
		shares:     keyshare.NewMemoryStore(),
		clock:      epoch.NewClock(epoch.Initial),
		sealKey:    sealKey,
		devicePub:  pub,
		devicePriv: priv,
	}
	a.members[id] = m
	go transport.NewReplicator(m.ledger, a.network.Join(id), a.log).Run(ctx)
	return m, nil
}

func (a *simAccount) peerKeys() map[party.ID][sealed.KeySize]byte {
	out := make(map[party.ID][sealed.KeySize]byte, len(a.members))
	for id, m := range a.members {
		out[id] = m.sealKey.Public
	}
	return out
}

func (a *simAccount) deviceKeys() map[party.ID]ed25519.PublicKey {
	out := make(map[party.ID]ed25519.PublicKey, len(a.members))
	for id, m := range a.members {
		out[id] = m.devicePub
	}
	return out
}

func (a *simAccount) dkdEngine(id party.ID) (*dkd.Engine, error) {
	m := a.members[id]
	return dkd.NewEngine(dkd.Config{
		SelfID:       id,
		Participants: a.participants,
		Shares:       m.shares,
		Ledger:       m.ledger,
		SessionTTL:   sessionTimeout,
		Logger:       a.log,
	})
}

func (a *simAccount) reshareEngine(id party.ID) (*reshare.Engine, error) {
	m := a.members[id]
	return reshare.NewEngine(reshare.Config{
		SelfID:     id,
		Shares:     m.shares,
		Ledger:     m.ledger,
		Clock:      m.clock,
		SealKey:    m.sealKey,
		PeerKeys:   a.peerKeys(),
		DeviceKeys: a.deviceKeys(),
		SessionTTL: sessionTimeout,
		Logger:     a.log,
	})
}

// derive runs one derivation session across the given participants and
// returns the identity they all agreed on.
func (a *simAccount) derive(ctx context.Context, dkdContext string, online []party.ID) (*dkd.Identity, error) {
	identities := make([]*dkd.Identity, len(online))
	group, ctx := errgroup.WithContext(ctx)
	for i, id := range online {
		i, id := i, id
		group.Go(func() error {
			engine, err := a.dkdEngine(id)
			if err != nil {
				return err
			}
			identity, err := engine.DeriveContextIdentity(ctx, dkdContext)
			if err != nil {
				return err
			}
			identities[i] = identity
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	for _, identity := range identities[1:] {
		if !identity.PublicKey.Equal(identities[0].PublicKey) {
			return nil, fmt.Errorf("replicas derived divergent identities")
		}
	}
	return identities[0], nil
}

func runDerive(cmd *cobra.Command, args []string) error {
	log := newLogger()
	defer log.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), sessionTimeout)
	defer cancel()
	a, err := newSimAccount(ctx, parties, threshold, log)
	if err != nil {
		return err
	}

	start := time.Now()
	identity, err := a.derive(ctx, dkdContext, a.participants)
	if err != nil {
		return err
	}

	fmt.Printf("Context:      %s\n", identity.Context)
	fmt.Printf("Participants: %d-of-%d\n", threshold, parties)
	fmt.Printf("Public key:   %s\n", hex.EncodeToString(identity.PublicKey))
	fmt.Printf("Fingerprint:  %s\n", hex.EncodeToString(identity.SeedFingerprint))
	fmt.Printf("Elapsed:      %s\n", time.Since(start).Round(time.Millisecond))
	return nil
}

func runReshare(cmd *cobra.Command, args []string) error {
	log := newLogger()
	defer log.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), sessionTimeout)
	defer cancel()
	a, err := newSimAccount(ctx, parties, threshold, log)
	if err != nil {
		return err
	}

	newSet := a.participants.Copy()
	for _, raw := range removeParties {
		id := party.ID(raw)
		kept := make([]party.ID, 0, len(newSet))
		for _, existing := range newSet {
			if existing != id {
				kept = append(kept, existing)
			}
		}
		newSet = party.NewIDSlice(kept)
	}
	for _, raw := range addParties {
		id := party.ID(raw)
		if _, err := a.enroll(ctx, id); err != nil {
			return err
		}
		newSet = newSet.Union(party.IDSlice{id})
	}
	nt := newThreshold
	if nt == 0 {
		nt = a.threshold
	}
	if nt > len(newSet) {
		return fmt.Errorf("new threshold %d exceeds %d participants", nt, len(newSet))
	}

	proposal := sigchain.Proposal{
		Session:         string(epoch.NewSessionID()),
		OldParticipants: a.participants,
		NewParticipants: newSet,
		OldThreshold:    a.threshold,
		NewThreshold:    nt,
		Reason:          sigchain.ReasonRotation,
		GroupPublicKey:  a.groupKey.Bytes(),
	}
	sp := &reshare.SignedProposal{Proposal: proposal}
	for _, id := range a.participants[:a.threshold] {
		e, err := sigchain.Endorse(&proposal, id, a.members[id].devicePriv)
		if err != nil {
			return err
		}
		sp.Endorsements = append(sp.Endorsements, e)
	}

	initiator, err := a.reshareEngine(a.participants[0])
	if err != nil {
		return err
	}
	sessionID, err := initiator.Initiate(sp)
	if err != nil {
		return err
	}

	everyone := a.participants.Union(newSet)
	outcomes := make([]*reshare.Outcome, len(everyone))
	group, gctx := errgroup.WithContext(ctx)
	for i, id := range everyone {
		i, id := i, id
		group.Go(func() error {
			engine, err := a.reshareEngine(id)
			if err != nil {
				return err
			}
			outcomes[i], err = engine.Participate(gctx, sessionID)
			return err
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}

	result := outcomes[0]
	if !result.Committed {
		fmt.Printf("Resharing aborted: %s\n", result.AbortReason)
		for id, reason := range result.Faults {
			fmt.Printf("  flagged %s: %s\n", id, reason)
		}
		return nil
	}
	fmt.Printf("Committed:    %d-of-%d -> %d-of-%d\n", a.threshold, len(a.participants), nt, len(newSet))
	fmt.Printf("New epoch:    %d\n", result.NewEpoch)
	fmt.Printf("Group key:    %s (unchanged)\n", hex.EncodeToString(a.groupKey.Bytes()))
	for _, id := range newSet {
		ks, err := a.members[id].shares.Load()
		if err != nil {
			return err
		}
		fmt.Printf("  %s holds share index %d\n", id, ks.Index)
	}
	return nil
}

func runInfo(cmd *cobra.Command, args []string) error {
	fmt.Println("aura-threshold")
	fmt.Println("  curve:        edwards25519")
	fmt.Println("  hash:         blake3, domain separated")
	fmt.Println("  sub-shares:   nacl box sealed, per recipient")
	fmt.Println("  ledger:       state-based CRDT, gossip replicated")
	fmt.Printf("  configured:   %d-of-%d\n", threshold, parties)
	return nil
}
