package cose

import (
	"crypto/ed25519"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

const (
	keyTypeOKP   = 1
	curveEd25519 = 6
)

// Key is a COSE key transporting a raw Ed25519 public key, the out-of-band
// counterpart of a Sign1 envelope.
type Key struct {
	PublicKey ed25519.PublicKey
}

type keyWire struct {
	Kty int64  `cbor:"1,keyasint"`
	Kid []byte `cbor:"2,keyasint,omitempty"`
	Alg int64  `cbor:"3,keyasint"`
	Crv int64  `cbor:"-1,keyasint"`
	Key []byte `cbor:"-2,keyasint"`
}

// Bytes returns the wire encoding {1: OKP, 3: EdDSA, -1: Ed25519, -2: key}.
func (k *Key) Bytes() ([]byte, error) {
	return encMode.Marshal(&keyWire{
		Kty: keyTypeOKP,
		Alg: algEdDSA,
		Crv: curveEd25519,
		Key: k.PublicKey,
	})
}

// ParseKey decodes and validates a COSE key. A key id (map key 2) is
// accepted and ignored.
func ParseKey(data []byte) (*Key, error) {
	var wire keyWire
	if err := cbor.Unmarshal(data, &wire); err != nil {
		return nil, err
	}
	switch {
	case wire.Kty != keyTypeOKP:
		return nil, fmt.Errorf("cose: unexpected key type %d", wire.Kty)
	case wire.Alg != algEdDSA:
		return nil, fmt.Errorf("cose: unexpected key algorithm %d", wire.Alg)
	case wire.Crv != curveEd25519:
		return nil, fmt.Errorf("cose: unexpected key curve %d", wire.Crv)
	case len(wire.Key) != ed25519.PublicKeySize:
		return nil, fmt.Errorf("cose: unexpected key length %d", len(wire.Key))
	}
	return &Key{PublicKey: wire.Key}, nil
}
