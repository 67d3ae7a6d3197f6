package crypt

import (
	"github.com/tyler-smith/go-bip39"
)

// NewRootKeyFromMnemonic derives the root key from a BIP39 recovery
// phrase. The phrase is converted back to its entropy; the entropy, not a
// BIP39 seed, feeds root key derivation.
func NewRootKeyFromMnemonic(phrase string) (*PrivateKey, error) {
	entropy, err := bip39.EntropyFromMnemonic(phrase)
	if err != nil {
		return nil, err
	}
	return NewRootKey(entropy)
}

// Mnemonic renders entropy as a recovery phrase.
func Mnemonic(entropy []byte) (string, error) {
	return bip39.NewMnemonic(entropy)
}
