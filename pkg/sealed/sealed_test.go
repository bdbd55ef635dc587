package sealed_test

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hxrts/aura-sub005/pkg/sealed"
)

func TestSealOpen(t *testing.T) {
	kp, err := sealed.GenerateKeyPair(rand.Reader)
	require.NoError(t, err)

	payload := []byte("a thirty-two byte scalar payload")
	ct, err := sealed.Seal(payload, kp.Public)
	require.NoError(t, err)
	assert.NotContains(t, string(ct), string(payload))

	got, err := kp.Open(ct)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestOpenWrongRecipient(t *testing.T) {
	alice, err := sealed.GenerateKeyPair(rand.Reader)
	require.NoError(t, err)
	bob, err := sealed.GenerateKeyPair(rand.Reader)
	require.NoError(t, err)

	ct, err := sealed.Seal([]byte("for alice only"), alice.Public)
	require.NoError(t, err)
	_, err = bob.Open(ct)
	assert.Error(t, err)
}

func TestOpenRejectsTamperedCiphertext(t *testing.T) {
	kp, err := sealed.GenerateKeyPair(rand.Reader)
	require.NoError(t, err)
	ct, err := sealed.Seal([]byte("payload"), kp.Public)
	require.NoError(t, err)

	ct[len(ct)-1] ^= 0x01
	_, err = kp.Open(ct)
	assert.Error(t, err)
}

func TestSealRejectsOversizedPayload(t *testing.T) {
	kp, err := sealed.GenerateKeyPair(rand.Reader)
	require.NoError(t, err)
	_, err = sealed.Seal(make([]byte, sealed.MaxPayload+1), kp.Public)
	assert.Error(t, err)
}

func TestSealIsRandomized(t *testing.T) {
	kp, err := sealed.GenerateKeyPair(rand.Reader)
	require.NoError(t, err)
	a, err := sealed.Seal([]byte("payload"), kp.Public)
	require.NoError(t, err)
	b, err := sealed.Seal([]byte("payload"), kp.Public)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}
