package config

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ecadlabs/go-cardano-signer/address"
	"github.com/ecadlabs/go-cardano-signer/crypt"
)

type networkConfig struct {
	NetworkID       string        `yaml:"network-id"`
	Mnemonic        string        `yaml:"mnemonic"`
	MnemonicFile    string        `yaml:"mnemonic-file"`
	Entropy         string        `yaml:"entropy"`
	EntropyFile     string        `yaml:"entropy-file"`
	Account         uint32        `yaml:"account"`
	LeaseTime       time.Duration `yaml:"lease-time"`
	BufferLength    int           `yaml:"buffer-length"`
	BufferThreshold int           `yaml:"buffer-threshold"`
	Timeout         time.Duration `yaml:"op-timeout"`
}

type NetworkConfig struct {
	*networkConfig
	name      string
	networkID byte
	account   *crypt.Account
}

func (n *NetworkConfig) GetAccount() *crypt.Account  { return n.account }
func (n *NetworkConfig) GetNetworkID() byte          { return n.networkID }
func (n *NetworkConfig) GetLeaseTime() time.Duration { return n.LeaseTime }
func (n *NetworkConfig) GetBucket() string           { return n.name }
func (n *NetworkConfig) GetBufferLength() int        { return n.BufferLength }
func (n *NetworkConfig) GetBufferThreshold() int     { return n.BufferThreshold }
func (n *NetworkConfig) GetTimeout() time.Duration   { return n.Timeout }

type Config map[string]*NetworkConfig

func inlineOrFile(inline, file string) ([]byte, error) {
	if inline != "" {
		return []byte(inline), nil
	}
	if file == "" {
		return nil, nil
	}
	return os.ReadFile(file)
}

func networkID(name string) (byte, error) {
	switch name {
	case "", "mainnet":
		return address.MainNet, nil
	case "testnet", "preprod", "preview":
		return address.TestNet, nil
	default:
		return 0, fmt.Errorf("config: unknown network id %q", name)
	}
}

func rootKey(data *networkConfig, envPrefix string) (*crypt.PrivateKey, error) {
	if v := os.Getenv(envPrefix + "_MNEMONIC"); v != "" {
		return crypt.NewRootKeyFromMnemonic(v)
	}
	phrase, err := inlineOrFile(data.Mnemonic, data.MnemonicFile)
	if err != nil {
		return nil, err
	}
	if phrase != nil {
		return crypt.NewRootKeyFromMnemonic(strings.TrimSpace(string(phrase)))
	}

	var entropyData []byte
	if v := os.Getenv(envPrefix + "_ENTROPY"); v != "" {
		entropyData = []byte(v)
	} else if entropyData, err = inlineOrFile(data.Entropy, data.EntropyFile); err != nil {
		return nil, err
	}
	entropy := make([]byte, hex.DecodedLen(len(entropyData)))
	if _, err := hex.Decode(entropy, entropyData); err != nil {
		return nil, err
	}
	return crypt.NewRootKey(entropy)
}

func New(rd io.Reader) (Config, error) {
	var raw map[string]*networkConfig
	if err := yaml.NewDecoder(rd).Decode(&raw); err != nil {
		return nil, err
	}
	out := make(Config, len(raw))
	for name, data := range raw {
		root, err := rootKey(data, strings.ToUpper(name))
		if err != nil {
			return nil, err
		}
		id, err := networkID(data.NetworkID)
		if err != nil {
			return nil, err
		}
		out[name] = &NetworkConfig{
			networkConfig: data,
			name:          name,
			networkID:     id,
			account:       crypt.NewAccount(root, data.Account),
		}
	}
	return out, nil
}
