package cose

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecadlabs/go-cardano-signer/address"
	"github.com/ecadlabs/go-cardano-signer/crypt"
)

const (
	testAddressHex   = "603a5904074323a4cddfe1103969962a5807c6c37495db9df48d019f9a"
	testPayloadHex   = "1b00000194d70e512f"
	testSignatureHex = "32f4643ec6ae20b5c6b9c71d89eadbbdaf42bffadcb8bbda22203fb98640bf49" +
		"1530541bb659fe019b2ef5b0cefd7d683ea8a945a07333185317b16b2aa0440d"
)

func mustHex(t *testing.T, s string) []byte {
	out, err := hex.DecodeString(s)
	require.NoError(t, err)
	return out
}

func testAddress(t *testing.T) *address.Address {
	addr, err := address.Parse(mustHex(t, testAddressHex))
	require.NoError(t, err)
	return addr
}

// wire builds an envelope encoding with an arbitrary protected header.
func wire(t *testing.T, protected []byte, unprotected map[string]bool, payload, signature []byte) []byte {
	data, err := encMode.Marshal(&sign1Wire{
		Protected:   protected,
		Unprotected: unprotected,
		Payload:     payload,
		Signature:   signature,
	})
	require.NoError(t, err)
	return data
}

func TestWireVector(t *testing.T) {
	// the full wire form is fixed by the protocol: any deviation breaks
	// external verifiers
	expected := "84582aa201276761646472657373581d" + testAddressHex +
		"a166686173686564f449" + testPayloadHex + "5840" + testSignatureHex

	s, err := NewSign1(testAddress(t), mustHex(t, testPayloadHex), mustHex(t, testSignatureHex))
	require.NoError(t, err)
	data, err := s.Bytes()
	require.NoError(t, err)
	assert.Equal(t, expected, hex.EncodeToString(data))
}

func TestRoundTrip(t *testing.T) {
	s, err := NewSign1(testAddress(t), mustHex(t, testPayloadHex), mustHex(t, testSignatureHex))
	require.NoError(t, err)
	data, err := s.Bytes()
	require.NoError(t, err)

	back, err := ParseSign1(data)
	require.NoError(t, err)
	assert.Equal(t, s.Address.Bytes(), back.Address.Bytes())
	assert.Equal(t, s.Payload, back.Payload)
	assert.Equal(t, s.Signature, back.Signature)
}

func TestSignDataVerify(t *testing.T) {
	root, err := crypt.NewRootKey(mustHex(t, "0102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f20"))
	require.NoError(t, err)
	priv := crypt.NewAccount(root, 0).SpendingKey(0)
	addr := address.NewEnterprise(address.TestNet, priv.Public())

	payload := []byte("augur")
	s, err := SignData(addr, priv, payload)
	require.NoError(t, err)

	data, err := s.Bytes()
	require.NoError(t, err)
	back, err := ParseSign1(data)
	require.NoError(t, err)

	require.NoError(t, back.Verify(priv.Public()))

	other := crypt.NewAccount(root, 0).SpendingKey(1).Public()
	assert.ErrorIs(t, back.Verify(other), ErrVerification)

	// tampering with the payload invalidates the signature
	back.Payload = []byte("tampered")
	assert.ErrorIs(t, back.Verify(priv.Public()), ErrVerification)
}

func TestDecodeErrors(t *testing.T) {
	addrBytes := mustHex(t, testAddressHex)
	payload := mustHex(t, testPayloadHex)
	signature := mustHex(t, testSignatureHex)
	unprotected := map[string]bool{"hashed": false}

	protect := func(header map[any]any) []byte {
		data, err := encMode.Marshal(header)
		require.NoError(t, err)
		return data
	}

	tests := []struct {
		name string
		data []byte
		err  error
	}{
		{
			name: "missing alg",
			data: wire(t, protect(map[any]any{"address": addrBytes}), unprotected, payload, signature),
			err:  ErrMissingAlgorithm,
		},
		{
			name: "unsupported alg",
			data: wire(t, protect(map[any]any{1: -7, "address": addrBytes}), unprotected, payload, signature),
			err:  ErrUnsupportedAlgorithm,
		},
		{
			name: "missing address",
			data: wire(t, protect(map[any]any{1: algEdDSA}), unprotected, payload, signature),
			err:  ErrAddressFormat,
		},
		{
			name: "address not a byte string",
			data: wire(t, protect(map[any]any{1: algEdDSA, "address": "oops"}), unprotected, payload, signature),
			err:  ErrAddressFormat,
		},
		{
			name: "malformed address",
			data: wire(t, protect(map[any]any{1: algEdDSA, "address": addrBytes[:10]}), unprotected, payload, signature),
			err:  ErrAddressFormat,
		},
		{
			name: "script credential",
			data: wire(t, protect(map[any]any{1: algEdDSA, "address": append([]byte{0x70}, addrBytes[1:]...)}), unprotected, payload, signature),
			err:  ErrNonKeyAddress,
		},
		{
			name: "hashed payload",
			data: wire(t, protect(map[any]any{1: algEdDSA, "address": addrBytes}), map[string]bool{"hashed": true}, payload, signature),
			err:  ErrHashedPayload,
		},
		{
			name: "short signature",
			data: wire(t, protect(map[any]any{1: algEdDSA, "address": addrBytes}), unprotected, payload, signature[:32]),
			err:  ErrSignatureLength,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := ParseSign1(test.data)
			assert.ErrorIs(t, err, test.err)
		})
	}

	_, err := ParseSign1([]byte{0xff})
	assert.Error(t, err)
}

func TestNewSign1Validation(t *testing.T) {
	addrBytes := mustHex(t, testAddressHex)
	script, err := address.Parse(append([]byte{0x70}, addrBytes[1:]...))
	require.NoError(t, err)

	_, err = NewSign1(script, nil, mustHex(t, testSignatureHex))
	assert.ErrorIs(t, err, ErrNonKeyAddress)

	_, err = NewSign1(testAddress(t), nil, []byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrSignatureLength)

	root, err := crypt.NewRootKey(make([]byte, 32))
	require.NoError(t, err)
	priv := crypt.NewAccount(root, 0).SpendingKey(0)
	_, err = SignData(script, priv, []byte("x"))
	assert.ErrorIs(t, err, ErrNonKeyAddress)
}
