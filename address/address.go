// Package address handles raw and bech32 forms of Shelley addresses as
// far as message signing needs them: header typing, the payment credential
// kind and enterprise address construction.
package address

import (
	"bytes"
	"crypto/ed25519"
	"errors"

	"github.com/btcsuite/btcd/btcutil/bech32"
	"golang.org/x/crypto/blake2b"
)

// Network identifiers carried in the low header nibble.
const (
	TestNet byte = 0
	MainNet byte = 1
)

const (
	// HashSize is the length of a payment or staking credential hash.
	HashSize = 28

	headerEnterprise = 0x60
)

// Kind tells whether the spending credential of an address is a key hash
// or a script hash.
type Kind int

const (
	KeyHash Kind = iota
	ScriptHash
)

var (
	ErrFormat = errors.New("address: invalid format")
)

// Address is an immutable parsed Shelley address.
type Address struct {
	raw []byte
}

// Parse validates the raw binary form of a Shelley address. Byron
// addresses and unknown header types are rejected.
func Parse(data []byte) (*Address, error) {
	if len(data) < 1+HashSize {
		return nil, ErrFormat
	}
	switch t := data[0] >> 4; {
	case t < 4: // base
		if len(data) != 1+2*HashSize {
			return nil, ErrFormat
		}
	case t < 6: // pointer, variable-length tail
	case t < 8, t == 14, t == 15: // enterprise, reward
		if len(data) != 1+HashSize {
			return nil, ErrFormat
		}
	default: // Byron and reserved types
		return nil, ErrFormat
	}
	raw := make([]byte, len(data))
	copy(raw, data)
	return &Address{raw: raw}, nil
}

// NewEnterprise builds an enterprise address holding the blake2b-224 hash
// of pub as its payment credential.
func NewEnterprise(network byte, pub ed25519.PublicKey) *Address {
	raw := make([]byte, 0, 1+HashSize)
	raw = append(raw, headerEnterprise|network&0x0f)
	return &Address{raw: append(raw, keyHash(pub)...)}
}

func keyHash(pub ed25519.PublicKey) []byte {
	h, err := blake2b.New(HashSize, nil)
	if err != nil {
		panic(err)
	}
	h.Write(pub)
	return h.Sum(nil)
}

// Bytes returns a copy of the raw binary form.
func (a *Address) Bytes() []byte {
	out := make([]byte, len(a.raw))
	copy(out, a.raw)
	return out
}

// NetworkID returns the network identifier nibble.
func (a *Address) NetworkID() byte {
	return a.raw[0] & 0x0f
}

// PaymentKind reports the kind of the spending credential.
func (a *Address) PaymentKind() Kind {
	if a.raw[0]>>4&1 != 0 {
		return ScriptHash
	}
	return KeyHash
}

// PaymentHash returns the 28-byte spending credential hash.
func (a *Address) PaymentHash() []byte {
	out := make([]byte, HashSize)
	copy(out, a.raw[1:1+HashSize])
	return out
}

// MatchesKey reports whether pub hashes to the spending credential.
func (a *Address) MatchesKey(pub ed25519.PublicKey) bool {
	return a.PaymentKind() == KeyHash && bytes.Equal(keyHash(pub), a.PaymentHash())
}

func (a *Address) hrp() string {
	prefix := "addr"
	if t := a.raw[0] >> 4; t == 14 || t == 15 {
		prefix = "stake"
	}
	if a.NetworkID() == TestNet {
		prefix += "_test"
	}
	return prefix
}

// String returns the bech32 text form.
func (a *Address) String() string {
	conv, err := bech32.ConvertBits(a.raw, 8, 5, true)
	if err != nil {
		panic(err)
	}
	s, err := bech32.Encode(a.hrp(), conv)
	if err != nil {
		panic(err)
	}
	return s
}

// ParseBech32 decodes the bech32 text form. Shelley addresses exceed the
// 90-character bech32 limit, hence DecodeNoLimit.
func ParseBech32(s string) (*Address, error) {
	_, data, err := bech32.DecodeNoLimit(s)
	if err != nil {
		return nil, err
	}
	raw, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return nil, err
	}
	return Parse(raw)
}
