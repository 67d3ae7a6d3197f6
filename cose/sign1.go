// Package cose implements the COSE_Sign1 envelope and COSE key structures
// of CIP-8/CIP-30 message signing. The wire encodings are fixed protocol
// surfaces consumed by wallet extensions and must stay byte-exact.
package cose

import (
	"crypto/ed25519"
	"errors"

	"github.com/fxamacker/cbor/v2"

	"github.com/ecadlabs/go-cardano-signer/address"
	"github.com/ecadlabs/go-cardano-signer/crypt"
)

const algEdDSA = -8

var (
	ErrMissingAlgorithm     = errors.New("cose: missing algorithm header")
	ErrUnsupportedAlgorithm = errors.New("cose: unsupported algorithm")
	ErrAddressFormat        = errors.New("cose: missing or malformed address header")
	ErrNonKeyAddress        = errors.New("cose: address carries a script credential")
	ErrHashedPayload        = errors.New("cose: hashed payloads are not supported")
	ErrSignatureLength      = errors.New("cose: invalid signature length")
	ErrVerification         = errors.New("cose: signature verification failed")
)

// Core deterministic encoding keeps the protected header map ordered with
// the integer key ahead of the text key, as verifiers expect.
var encMode cbor.EncMode

func init() {
	var err error
	if encMode, err = cbor.CoreDetEncOptions().EncMode(); err != nil {
		panic(err)
	}
}

// Signer produces a signature over raw bytes. *crypt.PrivateKey satisfies
// it.
type Signer interface {
	Sign(message []byte) crypt.Signature
}

// Sign1 is a CIP-30 data signature envelope binding an address, a payload
// and a signature over the Signature1 structure.
type Sign1 struct {
	Address   *address.Address
	Payload   []byte
	Signature []byte
}

type sign1Wire struct {
	_           struct{} `cbor:",toarray"`
	Protected   []byte
	Unprotected map[string]bool
	Payload     []byte
	Signature   []byte
}

type sigStructure struct {
	_           struct{} `cbor:",toarray"`
	Context     string
	Protected   []byte
	ExternalAAD []byte
	Payload     []byte
}

// NewSign1 builds an envelope from its parts. The address must carry a
// key-hash spending credential and the signature must be 64 bytes.
func NewSign1(addr *address.Address, payload, signature []byte) (*Sign1, error) {
	if addr.PaymentKind() != address.KeyHash {
		return nil, ErrNonKeyAddress
	}
	if len(signature) != ed25519.SignatureSize {
		return nil, ErrSignatureLength
	}
	return &Sign1{Address: addr, Payload: payload, Signature: signature}, nil
}

// SignData computes the Signature1 payload for addr and payload and signs
// it.
func SignData(addr *address.Address, signer Signer, payload []byte) (*Sign1, error) {
	if addr.PaymentKind() != address.KeyHash {
		return nil, ErrNonKeyAddress
	}
	data, err := signPayload(addr, payload)
	if err != nil {
		return nil, err
	}
	sig := signer.Sign(data)
	return &Sign1{Address: addr, Payload: payload, Signature: sig.Signature}, nil
}

func protectedHeader(addr *address.Address) ([]byte, error) {
	return encMode.Marshal(map[any]any{
		1:         algEdDSA,
		"address": addr.Bytes(),
	})
}

func signPayload(addr *address.Address, payload []byte) ([]byte, error) {
	protected, err := protectedHeader(addr)
	if err != nil {
		return nil, err
	}
	return encMode.Marshal(&sigStructure{
		Context:     "Signature1",
		Protected:   protected,
		ExternalAAD: []byte{},
		Payload:     notNil(payload),
	})
}

// Bytes returns the envelope wire encoding: [protected bstr, {"hashed":
// false}, payload bstr, signature bstr].
func (s *Sign1) Bytes() ([]byte, error) {
	protected, err := protectedHeader(s.Address)
	if err != nil {
		return nil, err
	}
	return encMode.Marshal(&sign1Wire{
		Protected:   protected,
		Unprotected: map[string]bool{"hashed": false},
		Payload:     notNil(s.Payload),
		Signature:   s.Signature,
	})
}

// ParseSign1 decodes and validates an envelope. It either returns a fully
// valid structure or an error; nothing partial.
func ParseSign1(data []byte) (*Sign1, error) {
	var wire sign1Wire
	if err := cbor.Unmarshal(data, &wire); err != nil {
		return nil, err
	}
	var header map[any]any
	if err := cbor.Unmarshal(wire.Protected, &header); err != nil {
		return nil, err
	}

	alg, ok := header[uint64(1)]
	if !ok {
		return nil, ErrMissingAlgorithm
	}
	if v, ok := alg.(int64); !ok || v != algEdDSA {
		return nil, ErrUnsupportedAlgorithm
	}

	rawAddr, ok := header["address"].([]byte)
	if !ok {
		return nil, ErrAddressFormat
	}
	addr, err := address.Parse(rawAddr)
	if err != nil {
		return nil, ErrAddressFormat
	}
	if addr.PaymentKind() != address.KeyHash {
		return nil, ErrNonKeyAddress
	}

	if hashed, ok := wire.Unprotected["hashed"]; ok && hashed {
		return nil, ErrHashedPayload
	}
	if len(wire.Signature) != ed25519.SignatureSize {
		return nil, ErrSignatureLength
	}
	return &Sign1{Address: addr, Payload: wire.Payload, Signature: wire.Signature}, nil
}

// Verify rebuilds the Signature1 payload from the stored address and
// payload and checks the stored signature against it.
func (s *Sign1) Verify(pub ed25519.PublicKey) error {
	data, err := signPayload(s.Address, s.Payload)
	if err != nil {
		return err
	}
	if !ed25519.Verify(pub, data, s.Signature) {
		return ErrVerification
	}
	return nil
}

// notNil keeps empty payloads encoding as empty byte strings rather than
// null.
func notNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
