package protocol_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hxrts/aura-sub005/pkg/party"
	"github.com/hxrts/aura-sub005/pkg/protocol"
)

func TestFaultWrapsCause(t *testing.T) {
	cause := errors.New("boom")
	err := protocol.Fault("reveal", cause, "mallory")
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "reveal")
	assert.Contains(t, err.Error(), "mallory")
}

func TestFaultWithoutCulprits(t *testing.T) {
	err := protocol.Fault("commitment", errors.New("timeout"))
	assert.Empty(t, err.Culprits)
	assert.NotEmpty(t, err.Error())
}

func TestFaultCulpritsPreserved(t *testing.T) {
	err := protocol.Fault("verification", errors.New("bad share"), "bob", "carol")
	assert.Equal(t, party.IDSlice{"bob", "carol"}, err.Culprits)
}
