package keyshare

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/hxrts/aura-sub005/pkg/math/curve"
	"github.com/hxrts/aura-sub005/pkg/party"
)

type keyShareJSON struct {
	ID             string `json:"id"`
	Index          int    `json:"index"`
	Threshold      int    `json:"threshold"`
	Total          int    `json:"total"`
	Epoch          uint64 `json:"epoch"`
	GroupPublicKey string `json:"group_public_key"` // Base64 encoded
	Secret         string `json:"secret"`           // Base64 encoded
}

// MarshalJSON implements json.Marshaler. Callers are responsible for
// encrypting the output at rest; the secret is only encoded, not protected.
func (ks *KeyShare) MarshalJSON() ([]byte, error) {
	if err := ks.Validate(); err != nil {
		return nil, err
	}
	out := &keyShareJSON{
		ID:             string(ks.ID),
		Index:          ks.Index,
		Threshold:      ks.Threshold,
		Total:          ks.Total,
		Epoch:          ks.Epoch,
		GroupPublicKey: base64.StdEncoding.EncodeToString(ks.GroupPublicKey.Bytes()),
		Secret:         base64.StdEncoding.EncodeToString(ks.Secret.Bytes()),
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler.
func (ks *KeyShare) UnmarshalJSON(data []byte) error {
	var in keyShareJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	pkBytes, err := base64.StdEncoding.DecodeString(in.GroupPublicKey)
	if err != nil {
		return fmt.Errorf("keyshare: decode group public key: %w", err)
	}
	pk, err := curve.PointFromBytes(pkBytes)
	if err != nil {
		return fmt.Errorf("keyshare: parse group public key: %w", err)
	}
	secretBytes, err := base64.StdEncoding.DecodeString(in.Secret)
	if err != nil {
		return fmt.Errorf("keyshare: decode secret: %w", err)
	}
	secret, err := curve.ScalarFromBytes(secretBytes)
	if err != nil {
		return fmt.Errorf("keyshare: parse secret: %w", err)
	}
	ks.ID = party.ID(in.ID)
	ks.Index = in.Index
	ks.Threshold = in.Threshold
	ks.Total = in.Total
	ks.Epoch = in.Epoch
	ks.GroupPublicKey = pk
	ks.Secret = secret
	return ks.Validate()
}
