package cose

import (
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyRoundTrip(t *testing.T) {
	pub := make(ed25519.PublicKey, ed25519.PublicKeySize)
	for i := range pub {
		pub[i] = byte(i)
	}
	key := Key{PublicKey: pub}
	data, err := key.Bytes()
	require.NoError(t, err)

	back, err := ParseKey(data)
	require.NoError(t, err)
	assert.Equal(t, pub, back.PublicKey)
}

func TestKeyKidIgnored(t *testing.T) {
	pub := make([]byte, ed25519.PublicKeySize)
	data, err := encMode.Marshal(&keyWire{
		Kty: keyTypeOKP,
		Kid: []byte("some key id"),
		Alg: algEdDSA,
		Crv: curveEd25519,
		Key: pub,
	})
	require.NoError(t, err)

	back, err := ParseKey(data)
	require.NoError(t, err)
	assert.Equal(t, ed25519.PublicKey(pub), back.PublicKey)
}

func TestKeyDecodeErrors(t *testing.T) {
	pub := make([]byte, ed25519.PublicKeySize)
	tests := []struct {
		name string
		wire keyWire
	}{
		{name: "key type", wire: keyWire{Kty: 2, Alg: algEdDSA, Crv: curveEd25519, Key: pub}},
		{name: "algorithm", wire: keyWire{Kty: keyTypeOKP, Alg: -7, Crv: curveEd25519, Key: pub}},
		{name: "curve", wire: keyWire{Kty: keyTypeOKP, Alg: algEdDSA, Crv: 1, Key: pub}},
		{name: "length", wire: keyWire{Kty: keyTypeOKP, Alg: algEdDSA, Crv: curveEd25519, Key: pub[:16]}},
		{name: "missing fields", wire: keyWire{}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			data, err := encMode.Marshal(&test.wire)
			require.NoError(t, err)
			_, err = ParseKey(data)
			assert.Error(t, err)
		})
	}

	_, err := ParseKey([]byte{0xff})
	assert.Error(t, err)
}
