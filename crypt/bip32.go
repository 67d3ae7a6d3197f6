// Package crypt implements BIP32-Ed25519 (V2 scheme) hierarchical key
// derivation over 96-byte extended private keys and the extended signing
// variant used with them.
package crypt

import (
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"sync"

	"filippo.io/edwards25519"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// PrivateKeySize is the length of an extended private key: two 32-byte
	// scalar halves followed by a 32-byte chain code.
	PrivateKeySize = 96

	scalarSize = 32

	rootKeyIterations = 4096
)

var (
	ErrEntropyLength = errors.New("crypt: invalid entropy length")
	ErrRootSecret    = errors.New("crypt: invalid root secret")
	ErrKeyLength     = errors.New("crypt: invalid key length")
	ErrIndexOverflow = errors.New("crypt: child index overflow")
)

// PrivateKey is an extended Ed25519 private key. It is immutable: Derive
// returns new instances and never touches the receiver. The public key is
// computed on first use and cached, so PrivateKey must not be copied.
type PrivateKey struct {
	kl, kr, cc [scalarSize]byte

	pubOnce sync.Once
	pub     ed25519.PublicKey
}

// NewPrivateKey builds a key from its 96-byte serialized form kl‖kr‖cc.
func NewPrivateKey(data []byte) (*PrivateKey, error) {
	if len(data) != PrivateKeySize {
		return nil, ErrKeyLength
	}
	var priv PrivateKey
	copy(priv.kl[:], data[0:32])
	copy(priv.kr[:], data[32:64])
	copy(priv.cc[:], data[64:96])
	return &priv, nil
}

// NewRootKey derives the root extended private key from raw mnemonic
// entropy: a 96-byte PBKDF2-HMAC-SHA512 stretch of the entropy (empty
// password, 4096 iterations) with the first scalar half clamped.
func NewRootKey(entropy []byte) (*PrivateKey, error) {
	return rootKey(entropy, false)
}

// NewRootKeyChecked is NewRootKey with the weak-key guard enabled: root
// secrets with bit 0x20 set in the last scalar byte before clamping are
// rejected with ErrRootSecret.
func NewRootKeyChecked(entropy []byte) (*PrivateKey, error) {
	return rootKey(entropy, true)
}

func rootKey(entropy []byte, checked bool) (*PrivateKey, error) {
	switch len(entropy) {
	case 16, 20, 24, 28, 32:
	default:
		return nil, ErrEntropyLength
	}
	seed := pbkdf2.Key(nil, entropy, rootKeyIterations, PrivateKeySize, sha512.New)
	if checked && seed[31]&0x20 != 0 {
		return nil, ErrRootSecret
	}
	seed[0] &= 0xf8
	seed[31] &= 0x1f
	seed[31] |= 0x40
	return NewPrivateKey(seed)
}

// Bytes returns the 96-byte serialized form kl‖kr‖cc.
func (p *PrivateKey) Bytes() []byte {
	out := make([]byte, 0, PrivateKeySize)
	out = append(out, p.kl[:]...)
	out = append(out, p.kr[:]...)
	return append(out, p.cc[:]...)
}

func (p *PrivateKey) String() string {
	return hex.EncodeToString(p.Bytes())
}

// ChainCode returns a copy of the 32-byte chain code.
func (p *PrivateKey) ChainCode() []byte {
	out := make([]byte, scalarSize)
	copy(out, p.cc[:])
	return out
}

// Public returns the Ed25519 public key corresponding to the first scalar
// half. The scalar is used as is: it was clamped at root derivation time
// and child derivation preserves the clamped form.
func (p *PrivateKey) Public() ed25519.PublicKey {
	p.pubOnce.Do(func() {
		s := scalar32(p.kl[:])
		p.pub = new(edwards25519.Point).ScalarBaseMult(s).Bytes()
	})
	return p.pub
}

// Derive returns the child key at index. Indices at or above Hard select
// hardened derivation which mixes in private key material; lower indices
// derive from the public key only.
func (p *PrivateKey) Derive(index uint32) *PrivateKey {
	var ib [4]byte
	binary.LittleEndian.PutUint32(ib[:], index)

	z := hmac.New(sha512.New, p.cc[:])
	c := hmac.New(sha512.New, p.cc[:])
	if index >= Hard {
		z.Write([]byte{0x00})
		z.Write(p.kl[:])
		z.Write(p.kr[:])
		z.Write(ib[:])
		c.Write([]byte{0x01})
		c.Write(p.kl[:])
		c.Write(p.kr[:])
		c.Write(ib[:])
	} else {
		pub := p.Public()
		z.Write([]byte{0x02})
		z.Write(pub)
		z.Write(ib[:])
		c.Write([]byte{0x03})
		c.Write(pub)
		c.Write(ib[:])
	}
	zOut := z.Sum(nil)
	cOut := c.Sum(nil)

	var child PrivateKey
	// kl' = kl + 8*ZL[:28]. Only 224 bits of ZL take part so the addend
	// stays clear of the group order.
	add28Mul8(&child.kl, p.kl[:], zOut[:32])
	// kr' = kr + ZR mod 2^256
	add256(&child.kr, p.kr[:], zOut[32:])
	copy(child.cc[:], cOut[32:])
	return &child
}

// DerivePath applies Derive left to right. An empty path returns the
// receiver.
func (p *PrivateKey) DerivePath(path Path) *PrivateKey {
	key := p
	for _, index := range path {
		key = key.Derive(index)
	}
	return key
}

// Signature is the output of signing: the signing public key and the
// 64-byte Ed25519 signature over the message.
type Signature struct {
	PublicKey ed25519.PublicKey
	Signature []byte
}

// Sign signs the message with the extended key. Unlike crypto/ed25519 the
// scalar is not re-derived from a seed: r = H(kr‖msg), S = r + H(R‖A‖msg)*kl.
// The result verifies with crypto/ed25519.Verify against Public().
func (p *PrivateKey) Sign(message []byte) Signature {
	pub := p.Public()

	h := sha512.New()
	h.Write(p.kr[:])
	h.Write(message)
	r := scalar64(h.Sum(nil))
	rPoint := new(edwards25519.Point).ScalarBaseMult(r).Bytes()

	h.Reset()
	h.Write(rPoint)
	h.Write(pub)
	h.Write(message)
	k := scalar64(h.Sum(nil))

	s := edwards25519.NewScalar().MultiplyAdd(k, scalar32(p.kl[:]), r)

	sig := make([]byte, ed25519.SignatureSize)
	copy(sig, rPoint)
	copy(sig[32:], s.Bytes())
	return Signature{PublicKey: pub, Signature: sig}
}

// scalar64 reduces a 64-byte hash output to a scalar.
func scalar64(b []byte) *edwards25519.Scalar {
	s, err := edwards25519.NewScalar().SetUniformBytes(b)
	if err != nil {
		panic(err)
	}
	return s
}

// scalar32 widens a 32-byte little-endian integer to 64 bytes and reduces
// it. The reduction is transparent under scalar multiplication, so clamped
// but non-canonical values keep their public key.
func scalar32(b []byte) *edwards25519.Scalar {
	wide := make([]byte, 64)
	copy(wide, b)
	return scalar64(wide)
}

// add28Mul8 sets out to x + 8*z[:28] over 256-bit little-endian integers,
// dropping any final carry.
func add28Mul8(out *[scalarSize]byte, x, z []byte) {
	var carry uint16
	for i := 0; i < 28; i++ {
		r := uint16(x[i]) + uint16(z[i])<<3 + carry
		out[i] = byte(r)
		carry = r >> 8
	}
	for i := 28; i < scalarSize; i++ {
		r := uint16(x[i]) + carry
		out[i] = byte(r)
		carry = r >> 8
	}
}

// add256 sets out to x + y mod 2^256 over little-endian integers.
func add256(out *[scalarSize]byte, x, y []byte) {
	var carry uint16
	for i := 0; i < scalarSize; i++ {
		r := uint16(x[i]) + uint16(y[i]) + carry
		out[i] = byte(r)
		carry = r >> 8
	}
}
