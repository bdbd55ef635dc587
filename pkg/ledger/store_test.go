package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hxrts/aura-sub005/pkg/ledger"
	"github.com/hxrts/aura-sub005/pkg/party"
)

func TestRecordAndRead(t *testing.T) {
	store := ledger.NewStore()
	require.NoError(t, store.RecordDKD("s1", dkdDelta(nil)))

	got, err := store.ReadDKD("s1")
	require.NoError(t, err)
	assert.Equal(t, "backup/v1", got.Context)

	_, err = store.ReadDKD("missing")
	assert.ErrorIs(t, err, ledger.ErrSessionNotFound)
}

func TestKindMismatch(t *testing.T) {
	store := ledger.NewStore()
	require.NoError(t, store.RecordDKD("s1", dkdDelta(nil)))

	_, err := store.ReadResharing("s1")
	assert.ErrorIs(t, err, ledger.ErrKindMismatch)
	err = store.RecordResharing("s1", reshareDelta(nil))
	assert.ErrorIs(t, err, ledger.ErrKindMismatch)
}

func TestReadReturnsSnapshot(t *testing.T) {
	store := ledger.NewStore()
	require.NoError(t, store.RecordDKD("s1", dkdDelta(nil)))

	snap, err := store.ReadDKD("s1")
	require.NoError(t, err)
	snap.Commitments["mallory"] = []byte{1}

	fresh, err := store.ReadDKD("s1")
	require.NoError(t, err)
	assert.NotContains(t, fresh.Commitments, party.ID("mallory"))
}

func TestDKDSessionsForContextSorted(t *testing.T) {
	store := ledger.NewStore()
	require.NoError(t, store.RecordDKD("s2", dkdDelta(nil)))
	require.NoError(t, store.RecordDKD("s1", dkdDelta(nil)))
	other := ledger.NewDKDState("other/v1", testParties, 2, 100, 200)
	require.NoError(t, store.RecordDKD("s3", other))

	assert.Equal(t, []ledger.SessionID{"s1", "s2"}, store.DKDSessionsForContext("backup/v1"))
}

func TestWatchSignalsOnChange(t *testing.T) {
	store := ledger.NewStore()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	watch := store.Watch(ctx)

	require.NoError(t, store.RecordDKD("s1", dkdDelta(nil)))
	select {
	case <-watch:
	case <-time.After(time.Second):
		t.Fatal("no signal after record")
	}
}

func TestWatchCoalescesNoOpMerges(t *testing.T) {
	store := ledger.NewStore()
	delta := dkdDelta(func(s *ledger.DKDState) { s.Commitments["alice"] = []byte{1} })
	require.NoError(t, store.RecordDKD("s1", delta))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	watch := store.Watch(ctx)

	// Re-recording the same delta changes nothing and must not signal.
	require.NoError(t, store.RecordDKD("s1", delta))
	select {
	case <-watch:
		t.Fatal("signal for a no-op merge")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestAwait(t *testing.T) {
	store := ledger.NewStore()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- store.Await(ctx, func() bool {
			s, err := store.ReadDKD("s1")
			return err == nil && s.CommitmentQuorum
		})
	}()

	require.NoError(t, store.RecordDKD("s1", dkdDelta(nil)))
	require.NoError(t, store.RecordDKD("s1", dkdDelta(func(s *ledger.DKDState) {
		s.CommitmentQuorum = true
	})))
	require.NoError(t, <-done)
}

func TestAwaitTimesOut(t *testing.T) {
	store := ledger.NewStore()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := store.Await(ctx, func() bool { return false })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGCDropsExpiredUnfinishedSessions(t *testing.T) {
	store := ledger.NewStore()
	require.NoError(t, store.RecordDKD("expired", dkdDelta(nil)))
	require.NoError(t, store.RecordDKD("finished", dkdDelta(func(s *ledger.DKDState) {
		s.Completed = true
	})))
	require.NoError(t, store.RecordDKD("live", ledger.NewDKDState("backup/v1", testParties, 2, 100, 9999)))

	assert.Equal(t, 1, store.GC(500))
	_, err := store.ReadDKD("expired")
	assert.ErrorIs(t, err, ledger.ErrSessionNotFound)
	// Completed sessions survive for audit; unexpired ones survive.
	_, err = store.ReadDKD("finished")
	assert.NoError(t, err)
	_, err = store.ReadDKD("live")
	assert.NoError(t, err)
}

func TestSnapshotRoundTrip(t *testing.T) {
	src := ledger.NewStore()
	require.NoError(t, src.RecordDKD("s1", dkdDelta(func(s *ledger.DKDState) {
		s.Commitments["alice"] = []byte{1}
		s.Reveals["alice"] = []byte{2}
		s.CommitmentQuorum = true
		s.Faults["mallory"] = "conflicting commitment"
	})))

	payload, err := src.EncodeSnapshot("s1")
	require.NoError(t, err)

	dst := ledger.NewStore()
	require.NoError(t, dst.ApplySnapshot(payload))

	want, err := src.ReadDKD("s1")
	require.NoError(t, err)
	got, err := dst.ReadDKD("s1")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestResharingSnapshotRoundTrip(t *testing.T) {
	src := ledger.NewStore()
	require.NoError(t, src.RecordResharing("r1", reshareDelta(func(s *ledger.ResharingState) {
		s.SubShares[ledger.SubShareKey{From: "alice", To: "carol"}] = []byte{1, 2}
		s.Distributed["alice"] = true
		s.ShareReady["carol"] = true
		s.SignerSet = party.NewIDSlice([]party.ID{"alice", "carol"})
		s.PublicShares["carol"] = []byte{3}
		s.NonceCommitments[ledger.VerificationKey{Set: "d1", Signer: "carol"}] = []byte{4}
		s.VerificationShares[ledger.VerificationKey{Set: "d1", Signer: "carol"}] = []byte{5}
		s.NewEpoch = 2
	})))

	payload, err := src.EncodeSnapshot("r1")
	require.NoError(t, err)

	dst := ledger.NewStore()
	require.NoError(t, dst.ApplySnapshot(payload))

	want, err := src.ReadResharing("r1")
	require.NoError(t, err)
	got, err := dst.ReadResharing("r1")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestApplySnapshotMergesIntoExisting(t *testing.T) {
	a := ledger.NewStore()
	b := ledger.NewStore()
	require.NoError(t, a.RecordDKD("s1", dkdDelta(func(s *ledger.DKDState) {
		s.Commitments["alice"] = []byte{1}
	})))
	require.NoError(t, b.RecordDKD("s1", dkdDelta(func(s *ledger.DKDState) {
		s.Commitments["bob"] = []byte{2}
	})))

	fromA, err := a.EncodeSnapshot("s1")
	require.NoError(t, err)
	fromB, err := b.EncodeSnapshot("s1")
	require.NoError(t, err)
	require.NoError(t, a.ApplySnapshot(fromB))
	require.NoError(t, b.ApplySnapshot(fromA))

	sa, err := a.ReadDKD("s1")
	require.NoError(t, err)
	sb, err := b.ReadDKD("s1")
	require.NoError(t, err)
	assert.Equal(t, sa, sb)
	assert.Len(t, sa.Commitments, 2)
}
