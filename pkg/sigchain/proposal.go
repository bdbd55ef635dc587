// Package sigchain exposes the signature-chain subsystem the
// coordination protocols depend on: endorsement of resharing proposals
// by device keys, and Schnorr threshold signatures under the shared
// group key.
package sigchain

import (
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/hxrts/aura-sub005/pkg/math/curve"
	"github.com/hxrts/aura-sub005/pkg/party"
)

// Reason tags carried by resharing proposals. The tag is informational
// and audit-facing; authorization does not depend on it.
const (
	ReasonAddDevice       = "add-device"
	ReasonRemoveDevice    = "remove-device"
	ReasonThresholdChange = "threshold-change"
	ReasonRotation        = "rotation"
)

var (
	// ErrNotAuthorized is returned when a proposal carries fewer valid
	// endorsements than the current threshold requires.
	ErrNotAuthorized = errors.New("sigchain: proposal not authorized by current threshold")
	// ErrUnknownEndorser is returned when an endorsement names a party
	// outside the current participant set.
	ErrUnknownEndorser = errors.New("sigchain: endorser not in current participant set")
	// ErrBadEndorsement is returned when an endorsement signature does
	// not verify against the endorser's device key.
	ErrBadEndorsement = errors.New("sigchain: invalid endorsement signature")
	// ErrInvalidProposal is returned when a proposal fails structural
	// validation.
	ErrInvalidProposal = errors.New("sigchain: invalid proposal")
)

// Proposal describes a requested change to the sharing of the group
// key. The group public key itself never changes; only the participant
// set and threshold do.
type Proposal struct {
	Session         string        `cbor:"1,keyasint"`
	OldParticipants party.IDSlice `cbor:"2,keyasint"`
	NewParticipants party.IDSlice `cbor:"3,keyasint"`
	OldThreshold    int           `cbor:"4,keyasint"`
	NewThreshold    int           `cbor:"5,keyasint"`
	Reason          string        `cbor:"6,keyasint"`
	GroupPublicKey  []byte        `cbor:"7,keyasint"`
}

var detEnc cbor.EncMode

func init() {
	var err error
	detEnc, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("sigchain: cbor encoder: %v", err))
	}
}

// Validate checks the structural invariants every proposal must hold
// before it can be endorsed.
func (p *Proposal) Validate() error {
	if p.Session == "" {
		return fmt.Errorf("%w: empty session", ErrInvalidProposal)
	}
	if !p.OldParticipants.Valid() || len(p.OldParticipants) == 0 {
		return fmt.Errorf("%w: bad old participant set", ErrInvalidProposal)
	}
	if !p.NewParticipants.Valid() || len(p.NewParticipants) == 0 {
		return fmt.Errorf("%w: bad new participant set", ErrInvalidProposal)
	}
	if p.OldThreshold < 1 || p.OldThreshold > len(p.OldParticipants) {
		return fmt.Errorf("%w: old threshold %d out of range for %d participants",
			ErrInvalidProposal, p.OldThreshold, len(p.OldParticipants))
	}
	if p.NewThreshold < 1 || p.NewThreshold > len(p.NewParticipants) {
		return fmt.Errorf("%w: new threshold %d out of range for %d participants",
			ErrInvalidProposal, p.NewThreshold, len(p.NewParticipants))
	}
	if _, err := curve.PointFromBytes(p.GroupPublicKey); err != nil {
		return fmt.Errorf("%w: group public key: %v", ErrInvalidProposal, err)
	}
	return nil
}

// SigningBytes returns the canonical encoding endorsements sign over.
// Deterministic CBOR keeps the bytes identical on every replica.
func (p *Proposal) SigningBytes() ([]byte, error) {
	return detEnc.Marshal(p)
}

// Endorsement is one device's signed approval of a proposal.
type Endorsement struct {
	Endorser  party.ID `cbor:"1,keyasint"`
	Signature []byte   `cbor:"2,keyasint"`
}

// Endorse signs a proposal with a device key.
func Endorse(p *Proposal, endorser party.ID, key ed25519.PrivateKey) (Endorsement, error) {
	msg, err := p.SigningBytes()
	if err != nil {
		return Endorsement{}, err
	}
	return Endorsement{Endorser: endorser, Signature: ed25519.Sign(key, msg)}, nil
}

// Authorize checks that a proposal carries endorsements from at least
// OldThreshold distinct members of the old participant set, each
// verifying against that member's registered device key. Duplicate
// endorsements by the same party count once.
func Authorize(p *Proposal, endorsements []Endorsement, deviceKeys map[party.ID]ed25519.PublicKey) error {
	if err := p.Validate(); err != nil {
		return err
	}
	msg, err := p.SigningBytes()
	if err != nil {
		return err
	}
	seen := make(map[party.ID]struct{}, len(endorsements))
	for _, e := range endorsements {
		if !p.OldParticipants.Contains(e.Endorser) {
			return fmt.Errorf("%w: %s", ErrUnknownEndorser, e.Endorser)
		}
		key, ok := deviceKeys[e.Endorser]
		if !ok {
			return fmt.Errorf("%w: no device key for %s", ErrUnknownEndorser, e.Endorser)
		}
		if !ed25519.Verify(key, msg, e.Signature) {
			return fmt.Errorf("%w: %s", ErrBadEndorsement, e.Endorser)
		}
		seen[e.Endorser] = struct{}{}
	}
	if len(seen) < p.OldThreshold {
		return fmt.Errorf("%w: %d of %d required endorsements",
			ErrNotAuthorized, len(seen), p.OldThreshold)
	}
	return nil
}
