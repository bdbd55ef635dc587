package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hxrts/aura-sub005/pkg/epoch"
	"github.com/hxrts/aura-sub005/pkg/hash"
	"github.com/hxrts/aura-sub005/pkg/ledger"
	"github.com/hxrts/aura-sub005/pkg/math/curve"
	"github.com/hxrts/aura-sub005/pkg/math/polynomial"
	"github.com/hxrts/aura-sub005/pkg/party"
	"github.com/hxrts/aura-sub005/pkg/sealed"
	"github.com/hxrts/aura-sub005/pkg/sigchain"
	"github.com/hxrts/aura-sub005/protocols/reshare"
)

func runSimulate(cmd *cobra.Command, args []string) error {
	switch scenario {
	case "byzantine":
		return simulateByzantine()
	case "offline":
		return simulateOffline()
	case "corrupt-reshare":
		return simulateCorruptReshare()
	default:
		return fmt.Errorf("unknown scenario %q", scenario)
	}
}

// simulateByzantine injects an equivocating participant into each
// derivation round: it commits to one point and reveals another. The
// honest majority must converge anyway and flag the equivocator.
func simulateByzantine() error {
	fmt.Printf("\n=== Byzantine Derivation Simulation ===\n")
	fmt.Printf("Configuration: %d-of-%d, 1 equivocator\n", threshold, parties)
	fmt.Printf("Rounds: %d\n", rounds)

	if threshold > parties-1 {
		return fmt.Errorf("need %d honest participants, have %d", threshold, parties-1)
	}
	converged := 0
	flagged := 0
	for round := 0; round < rounds; round++ {
		ok, caught, err := byzantineRound()
		if err != nil {
			return fmt.Errorf("round %d: %w", round, err)
		}
		if ok {
			converged++
		}
		if caught {
			flagged++
		}
	}

	fmt.Printf("\n=== Results ===\n")
	fmt.Printf("Converged rounds:    %d/%d\n", converged, rounds)
	fmt.Printf("Equivocator flagged: %d/%d\n", flagged, rounds)
	return nil
}

func byzantineRound() (bool, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), sessionTimeout)
	defer cancel()
	a, err := newSimAccount(ctx, parties, threshold, newLogger())
	if err != nil {
		return false, false, err
	}

	mallory := a.participants[len(a.participants)-1]
	honest := a.participants[:len(a.participants)-1]

	// Mallory publishes a commitment that does not open to her reveal.
	lie, err := curve.Sample(rand.Reader)
	if err != nil {
		return false, false, err
	}
	commitment := hash.Commitment([]byte("not the reveal"))
	now := time.Now()
	sessionID := epoch.NewSessionID()
	init := ledger.NewDKDState(dkdContext, a.participants, threshold,
		now.Unix(), now.Add(time.Minute).Unix())
	init.Commitments[mallory] = commitment[:]
	init.Reveals[mallory] = lie.ActOnBase().Bytes()
	if err := a.members[mallory].ledger.RecordDKD(sessionID, init); err != nil {
		return false, false, err
	}

	group, gctx := errgroup.WithContext(ctx)
	var firstKey []byte
	for i, id := range honest {
		i, id := i, id
		group.Go(func() error {
			engine, err := a.dkdEngine(id)
			if err != nil {
				return err
			}
			identity, err := engine.Participate(gctx, sessionID)
			if err != nil {
				return err
			}
			if i == 0 {
				firstKey = identity.PublicKey
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return false, false, err
	}

	s, err := a.members[honest[0]].ledger.ReadDKD(sessionID)
	if err != nil {
		return false, false, err
	}
	_, caught := s.Faults[mallory]
	return len(firstKey) > 0 && s.Completed, caught, nil
}

// simulateOffline runs derivations with only a bare threshold of
// participants online.
func simulateOffline() error {
	fmt.Printf("\n=== Partial Availability Simulation ===\n")
	fmt.Printf("Configuration: %d-of-%d, %d online\n", threshold, parties, threshold)
	fmt.Printf("Rounds: %d\n", rounds)

	log := newLogger()
	defer log.Sync()

	succeeded := 0
	for round := 0; round < rounds; round++ {
		ctx, cancel := context.WithTimeout(context.Background(), sessionTimeout)
		a, err := newSimAccount(ctx, parties, threshold, log)
		if err != nil {
			cancel()
			return err
		}
		online := a.participants[:threshold]
		identity, err := a.derive(ctx, fmt.Sprintf("%s/round-%d", dkdContext, round), online)
		cancel()
		if err != nil {
			return fmt.Errorf("round %d: %w", round, err)
		}
		if len(identity.PublicKey) > 0 {
			succeeded++
		}
	}

	fmt.Printf("\n=== Results ===\n")
	fmt.Printf("Successful rounds: %d/%d\n", succeeded, rounds)
	return nil
}

// simulateCorruptReshare has one old participant seal a wrong-valued
// sub-share to a joining device each round, and measures how often the
// verification round catches it before commit.
func simulateCorruptReshare() error {
	fmt.Printf("\n=== Corrupt Resharing Simulation ===\n")
	fmt.Printf("Configuration: %d-of-%d, 1 corrupt distributor\n", threshold, parties)
	fmt.Printf("Rounds: %d\n", rounds)

	detected := 0
	committed := 0
	for round := 0; round < rounds; round++ {
		aborted, err := corruptReshareRound()
		if err != nil {
			return fmt.Errorf("round %d: %w", round, err)
		}
		if aborted {
			detected++
		} else {
			committed++
		}
	}

	fmt.Printf("\n=== Results ===\n")
	fmt.Printf("Detected and aborted: %d/%d\n", detected, rounds)
	if committed > 0 {
		fmt.Printf("UNDETECTED COMMITS:   %d/%d\n", committed, rounds)
	}
	return nil
}

func corruptReshareRound() (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), sessionTimeout)
	defer cancel()
	a, err := newSimAccount(ctx, parties, threshold, newLogger())
	if err != nil {
		return false, err
	}

	recruit := party.ID("recruit-01")
	if _, err := a.enroll(ctx, recruit); err != nil {
		return false, err
	}
	newSet := a.participants.Union(party.IDSlice{recruit})
	corrupt := a.participants[1]

	proposal := sigchain.Proposal{
		Session:         string(epoch.NewSessionID()),
		OldParticipants: a.participants,
		NewParticipants: newSet,
		OldThreshold:    a.threshold,
		NewThreshold:    a.threshold,
		Reason:          sigchain.ReasonAddDevice,
		GroupPublicKey:  a.groupKey.Bytes(),
	}
	sp := &reshare.SignedProposal{Proposal: proposal}
	for _, id := range a.participants[:a.threshold] {
		e, err := sigchain.Endorse(&proposal, id, a.members[id].devicePriv)
		if err != nil {
			return false, err
		}
		sp.Endorsements = append(sp.Endorsements, e)
	}
	raw, err := sp.Encode()
	if err != nil {
		return false, err
	}

	// The corrupt distributor publishes by hand: honest evaluations for
	// the old members, garbage sealed to the recruit.
	sessionID := ledger.SessionID(proposal.Session)
	now := time.Now()
	init := ledger.NewResharingState(raw, a.participants, newSet, a.threshold, a.threshold,
		proposal.Reason, a.groupKey.Bytes(), now.Unix(), now.Add(time.Minute).Unix())
	init.NewEpoch = a.members[corrupt].clock.Current() + 1

	ks, err := a.members[corrupt].shares.Load()
	if err != nil {
		return false, err
	}
	poly, err := polynomial.NewPolynomial(a.threshold-1, ks.Secret, rand.Reader)
	if err != nil {
		return false, err
	}
	peerKeys := a.peerKeys()
	for _, to := range newSet {
		var payload *curve.Scalar
		if to == recruit {
			if payload, err = curve.Sample(rand.Reader); err != nil {
				return false, err
			}
		} else {
			payload = poly.EvaluateIndex(newSet.Index(to))
		}
		ct, err := sealed.Seal(payload.Bytes(), peerKeys[to])
		if err != nil {
			return false, err
		}
		init.SubShares[ledger.SubShareKey{From: corrupt, To: to}] = ct
	}
	init.Distributed[corrupt] = true
	if err := a.members[corrupt].ledger.RecordResharing(sessionID, init); err != nil {
		return false, err
	}

	var online []party.ID
	for _, id := range newSet {
		if id != corrupt {
			online = append(online, id)
		}
	}
	outcomes := make([]*reshare.Outcome, len(online))
	group, gctx := errgroup.WithContext(ctx)
	for i, id := range online {
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
		return false, err
	}
	return !outcomes[0].Committed && outcomes[0].AbortReason == "verification-failed", nil
}
