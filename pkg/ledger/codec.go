package ledger

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/hxrts/aura-sub005/pkg/party"
)

// Snapshot is the replication payload for one session: the session ID,
// kind tag, and the full local state. Applying a snapshot is a merge, so
// repeated or reordered delivery is harmless.
type Snapshot struct {
	ID        SessionID      `cbor:"1,keyasint"`
	Kind      Kind           `cbor:"2,keyasint"`
	DKD       *dkdWire       `cbor:"3,keyasint,omitempty"`
	Resharing *resharingWire `cbor:"4,keyasint,omitempty"`
}

type dkdWire struct {
	Context          string            `cbor:"1,keyasint"`
	Participants     []string          `cbor:"2,keyasint"`
	Threshold        int               `cbor:"3,keyasint"`
	CreatedAt        int64             `cbor:"4,keyasint"`
	Deadline         int64             `cbor:"5,keyasint"`
	Commitments      map[string][]byte `cbor:"6,keyasint"`
	Reveals          map[string][]byte `cbor:"7,keyasint"`
	CommitmentQuorum bool              `cbor:"8,keyasint"`
	RevealQuorum     bool              `cbor:"9,keyasint"`
	Aggregated       []byte            `cbor:"10,keyasint"`
	SeedFingerprint  []byte            `cbor:"11,keyasint"`
	Completed        bool              `cbor:"12,keyasint"`
	Aborted          bool              `cbor:"13,keyasint"`
	Faults           map[string]string `cbor:"14,keyasint"`
}

type subShareWire struct {
	From       string `cbor:"1,keyasint"`
	To         string `cbor:"2,keyasint"`
	Ciphertext []byte `cbor:"3,keyasint"`
}

type verificationWire struct {
	Set    []byte `cbor:"1,keyasint"`
	Signer string `cbor:"2,keyasint"`
	Value  []byte `cbor:"3,keyasint"`
}

type resharingWire struct {
	ProposalBytes      []byte             `cbor:"1,keyasint"`
	OldParticipants    []string           `cbor:"2,keyasint"`
	NewParticipants    []string           `cbor:"3,keyasint"`
	OldThreshold       int                `cbor:"4,keyasint"`
	NewThreshold       int                `cbor:"5,keyasint"`
	Reason             string             `cbor:"6,keyasint"`
	CreatedAt          int64              `cbor:"7,keyasint"`
	Deadline           int64              `cbor:"8,keyasint"`
	GroupPublicKey     []byte             `cbor:"9,keyasint"`
	SubShares          []subShareWire     `cbor:"10,keyasint"`
	Distributed        []string           `cbor:"11,keyasint"`
	ShareReady         []string           `cbor:"12,keyasint"`
	SignerSet          []string           `cbor:"22,keyasint"`
	PublicShares       map[string][]byte  `cbor:"13,keyasint"`
	NonceCommitments   []verificationWire `cbor:"14,keyasint"`
	VerificationShares []verificationWire `cbor:"15,keyasint"`
	TestSignature      []byte             `cbor:"16,keyasint"`
	Committed          bool               `cbor:"17,keyasint"`
	NewEpoch           uint64             `cbor:"18,keyasint"`
	Aborted            bool               `cbor:"19,keyasint"`
	AbortReason        string             `cbor:"20,keyasint"`
	Faults             map[string]string  `cbor:"21,keyasint"`
}

// EncodeSnapshot serializes the current state of a session for
// replication.
func (s *Store) EncodeSnapshot(id SessionID) ([]byte, error) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	snap := Snapshot{ID: id, Kind: sess.kind}
	switch sess.kind {
	case KindDKD:
		state, err := s.ReadDKD(id)
		if err != nil {
			return nil, err
		}
		snap.DKD = dkdToWire(state)
	case KindResharing:
		state, err := s.ReadResharing(id)
		if err != nil {
			return nil, err
		}
		snap.Resharing = resharingToWire(state)
	}
	return cbor.Marshal(&snap)
}

// ApplySnapshot merges a replicated snapshot into the local store.
func (s *Store) ApplySnapshot(payload []byte) error {
	var snap Snapshot
	if err := cbor.Unmarshal(payload, &snap); err != nil {
		return fmt.Errorf("ledger: decode snapshot: %w", err)
	}
	switch snap.Kind {
	case KindDKD:
		if snap.DKD == nil {
			return fmt.Errorf("ledger: snapshot missing session body")
		}
		return s.RecordDKD(snap.ID, dkdFromWire(snap.DKD))
	case KindResharing:
		if snap.Resharing == nil {
			return fmt.Errorf("ledger: snapshot missing session body")
		}
		return s.RecordResharing(snap.ID, resharingFromWire(snap.Resharing))
	default:
		return fmt.Errorf("ledger: unknown session kind %d", snap.Kind)
	}
}

func dkdToWire(s *DKDState) *dkdWire {
	return &dkdWire{
		Context:          s.Context,
		Participants:     idsToStrings(s.Participants),
		Threshold:        s.Threshold,
		CreatedAt:        s.CreatedAt,
		Deadline:         s.Deadline,
		Commitments:      idMapToStrings(s.Commitments),
		Reveals:          idMapToStrings(s.Reveals),
		CommitmentQuorum: s.CommitmentQuorum,
		RevealQuorum:     s.RevealQuorum,
		Aggregated:       s.Aggregated,
		SeedFingerprint:  s.SeedFingerprint,
		Completed:        s.Completed,
		Aborted:          s.Aborted,
		Faults:           faultsToStrings(s.Faults),
	}
}

func dkdFromWire(w *dkdWire) *DKDState {
	out := NewDKDState(w.Context, party.NewIDSlice(stringsToIDs(w.Participants)), w.Threshold, w.CreatedAt, w.Deadline)
	out.Commitments = stringMapToIDs(w.Commitments)
	out.Reveals = stringMapToIDs(w.Reveals)
	out.CommitmentQuorum = w.CommitmentQuorum
	out.RevealQuorum = w.RevealQuorum
	out.Aggregated = w.Aggregated
	out.SeedFingerprint = w.SeedFingerprint
	out.Completed = w.Completed
	out.Aborted = w.Aborted
	out.Faults = faultsToIDs(w.Faults)
	return out
}

func resharingToWire(s *ResharingState) *resharingWire {
	subShares := make([]subShareWire, 0, len(s.SubShares))
	for key, ct := range s.SubShares {
		subShares = append(subShares, subShareWire{From: string(key.From), To: string(key.To), Ciphertext: ct})
	}
	return &resharingWire{
		ProposalBytes:      s.ProposalBytes,
		OldParticipants:    idsToStrings(s.OldParticipants),
		NewParticipants:    idsToStrings(s.NewParticipants),
		OldThreshold:       s.OldThreshold,
		NewThreshold:       s.NewThreshold,
		Reason:             s.Reason,
		CreatedAt:          s.CreatedAt,
		Deadline:           s.Deadline,
		GroupPublicKey:     s.GroupPublicKey,
		SubShares:          subShares,
		Distributed:        setToStrings(s.Distributed),
		ShareReady:         setToStrings(s.ShareReady),
		SignerSet:          idsToStrings(s.SignerSet),
		PublicShares:       idMapToStrings(s.PublicShares),
		NonceCommitments:   verificationToWire(s.NonceCommitments),
		VerificationShares: verificationToWire(s.VerificationShares),
		TestSignature:      s.TestSignature,
		Committed:          s.Committed,
		NewEpoch:           s.NewEpoch,
		Aborted:            s.Aborted,
		AbortReason:        s.AbortReason,
		Faults:             faultsToStrings(s.Faults),
	}
}

func resharingFromWire(w *resharingWire) *ResharingState {
	out := NewResharingState(w.ProposalBytes,
		party.NewIDSlice(stringsToIDs(w.OldParticipants)),
		party.NewIDSlice(stringsToIDs(w.NewParticipants)),
		w.OldThreshold, w.NewThreshold, w.Reason, w.GroupPublicKey, w.CreatedAt, w.Deadline)
	for _, sub := range w.SubShares {
		out.SubShares[SubShareKey{From: party.ID(sub.From), To: party.ID(sub.To)}] = sub.Ciphertext
	}
	for _, id := range w.Distributed {
		out.Distributed[party.ID(id)] = true
	}
	for _, id := range w.ShareReady {
		out.ShareReady[party.ID(id)] = true
	}
	out.SignerSet = party.NewIDSlice(stringsToIDs(w.SignerSet))
	out.PublicShares = stringMapToIDs(w.PublicShares)
	out.NonceCommitments = verificationFromWire(w.NonceCommitments)
	out.VerificationShares = verificationFromWire(w.VerificationShares)
	out.TestSignature = w.TestSignature
	out.Committed = w.Committed
	out.NewEpoch = w.NewEpoch
	out.Aborted = w.Aborted
	out.AbortReason = w.AbortReason
	out.Faults = faultsToIDs(w.Faults)
	return out
}

func idsToStrings(ids party.IDSlice) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}

func stringsToIDs(ss []string) []party.ID {
	out := make([]party.ID, len(ss))
	for i, s := range ss {
		out[i] = party.ID(s)
	}
	return out
}

func idMapToStrings(m map[party.ID][]byte) map[string][]byte {
	out := make(map[string][]byte, len(m))
	for id, v := range m {
		out[string(id)] = v
	}
	return out
}

func stringMapToIDs(m map[string][]byte) map[party.ID][]byte {
	out := make(map[party.ID][]byte, len(m))
	for s, v := range m {
		out[party.ID(s)] = v
	}
	return out
}

func verificationToWire(m map[VerificationKey][]byte) []verificationWire {
	out := make([]verificationWire, 0, len(m))
	for key, value := range m {
		out = append(out, verificationWire{Set: []byte(key.Set), Signer: string(key.Signer), Value: value})
	}
	return out
}

func verificationFromWire(entries []verificationWire) map[VerificationKey][]byte {
	out := make(map[VerificationKey][]byte, len(entries))
	for _, entry := range entries {
		out[VerificationKey{Set: string(entry.Set), Signer: party.ID(entry.Signer)}] = entry.Value
	}
	return out
}

func setToStrings(m map[party.ID]bool) []string {
	out := make([]string, 0, len(m))
	for id := range m {
		out = append(out, string(id))
	}
	return out
}

func faultsToStrings(m map[party.ID]string) map[string]string {
	out := make(map[string]string, len(m))
	for id, v := range m {
		out[string(id)] = v
	}
	return out
}

func faultsToIDs(m map[string]string) map[party.ID]string {
	out := make(map[party.ID]string, len(m))
	for s, v := range m {
		out[party.ID(s)] = v
	}
	return out
}
