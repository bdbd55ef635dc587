// Package keyshare holds a participant's local threshold key material.
//
// A KeyShare never leaves the owning device and is never written to the
// replicated ledger. It is created at bootstrap or at resharing
// completion and zeroized when a newer epoch supersedes it or the
// participant leaves the configuration.
package keyshare

import (
	"errors"

	"github.com/hxrts/aura-sub005/pkg/math/curve"
	"github.com/hxrts/aura-sub005/pkg/party"
)

// KeyShare is one participant's share of the group secret plus the
// metadata required to act as a threshold signer.
type KeyShare struct {
	// ID is the owning participant.
	ID party.ID

	// Index is this participant's 1-based Shamir evaluation index.
	Index int

	// Threshold is the number of shares needed to reconstruct.
	Threshold int

	// Total is the size of the participant set.
	Total int

	// Epoch is the session epoch the share was issued under. Material
	// from an older epoch is void once the account epoch advances.
	Epoch uint64

	// GroupPublicKey is the account's threshold public key. It is
	// invariant across resharing.
	GroupPublicKey *curve.Point

	// Secret is the share itself.
	Secret *curve.Scalar
}

// Validate checks structural invariants.
func (ks *KeyShare) Validate() error {
	if ks.ID == "" {
		return errors.New("keyshare: missing participant ID")
	}
	if ks.Index < 1 {
		return errors.New("keyshare: invalid share index")
	}
	if ks.Threshold < 1 || ks.Threshold > ks.Total {
		return errors.New("keyshare: threshold out of range")
	}
	if ks.Secret == nil {
		return errors.New("keyshare: missing secret share")
	}
	if ks.GroupPublicKey == nil {
		return errors.New("keyshare: missing group public key")
	}
	return nil
}

// PublicShare returns g^secret, the verifiable public image of the share.
func (ks *KeyShare) PublicShare() *curve.Point {
	return ks.Secret.ActOnBase()
}

// Zeroize destroys the secret scalar. The struct must not be used after.
func (ks *KeyShare) Zeroize() {
	if ks == nil || ks.Secret == nil {
		return
	}
	ks.Secret.Zeroize()
	ks.Secret = nil
}

// Store is the local secret store contract. Implementations must keep
// the share out of any replicated or shared medium.
type Store interface {
	// Load returns the current share, or ErrNoShare.
	Load() (*KeyShare, error)
	// Store persists the share, replacing any previous one. The
	// previous share is zeroized.
	Store(*KeyShare) error
	// Zeroize destroys the stored share.
	Zeroize() error
}

// ErrNoShare is returned by Load when no share is stored.
var ErrNoShare = errors.New("keyshare: no share stored")
