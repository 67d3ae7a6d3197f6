package service

import (
	"context"
	"encoding/hex"
	"io"
	"time"

	"github.com/davecgh/go-spew/spew"
	log "github.com/sirupsen/logrus"

	"github.com/ecadlabs/go-cardano-signer/address"
	"github.com/ecadlabs/go-cardano-signer/cose"
	"github.com/ecadlabs/go-cardano-signer/crypt"
	"github.com/ecadlabs/go-cardano-signer/keypool"
	"github.com/ecadlabs/go-cardano-signer/server"
	"github.com/ecadlabs/go-cardano-signer/tracker"
)

type NetworkConfig interface {
	GetAccount() *crypt.Account
	GetNetworkID() byte
	GetLeaseTime() time.Duration
}

type Network struct {
	Pool    *keypool.Pool
	Tracker *tracker.Tracker
	Config  NetworkConfig
}

type Service struct {
	Networks map[string]*Network
}

func (s *Service) network(name string) (*Network, error) {
	net, ok := s.Networks[name]
	if !ok {
		return nil, server.ErrUnknownNetwork
	}
	return net, nil
}

func (net *Network) key(id uint64) (*crypt.PrivateKey, error) {
	if id >= uint64(crypt.Hard) {
		return nil, crypt.ErrIndexOverflow
	}
	return net.Config.GetAccount().SpendingKey(uint32(id)), nil
}

func (net *Network) address(priv *crypt.PrivateKey) *address.Address {
	return address.NewEnterprise(net.Config.GetNetworkID(), priv.Public())
}

func (s *Service) Pop(ctx context.Context, network string) (*server.PoppedKey, error) {
	net, err := s.network(network)
	if err != nil {
		return nil, err
	}
	index, err := net.Pool.Get(ctx)
	if err != nil {
		log.Error(err)
		return nil, err
	}
	priv, err := net.key(index)
	if err != nil {
		return nil, err
	}
	return &server.PoppedKey{
		PrivateKey: priv.String(),
		Address:    net.address(priv).String(),
	}, nil
}

func (s *Service) Status(ctx context.Context, network string) (*server.NetworkStatus, error) {
	net, err := s.network(network)
	if err != nil {
		return nil, err
	}
	cnt, err := net.Pool.Count()
	if err != nil {
		return nil, err
	}
	used, err := net.Tracker.UsedCount()
	if err != nil {
		return nil, err
	}
	return &server.NetworkStatus{
		Count: cnt,
		Used:  used,
	}, nil
}

func (s *Service) Lease(ctx context.Context, network string) (*server.Lease, error) {
	net, err := s.network(network)
	if err != nil {
		return nil, err
	}
	index, err := net.Pool.Lease(ctx, time.Now().Add(net.Config.GetLeaseTime()))
	if err != nil {
		log.Error(err)
		return nil, err
	}
	priv, err := net.key(index)
	if err != nil {
		return nil, err
	}
	return &server.Lease{
		ID:      index,
		Address: net.address(priv).String(),
	}, nil
}

func (s *Service) Pub(ctx context.Context, network string, id uint64) (*server.PublicKeyInfo, error) {
	net, err := s.network(network)
	if err != nil {
		return nil, err
	}
	priv, err := net.key(id)
	if err != nil {
		return nil, err
	}
	pub := priv.Public()
	coseKey := cose.Key{PublicKey: pub}
	kb, err := coseKey.Bytes()
	if err != nil {
		return nil, err
	}
	return &server.PublicKeyInfo{
		PublicKey: hex.EncodeToString(pub),
		CoseKey:   hex.EncodeToString(kb),
		Address:   net.address(priv).String(),
	}, nil
}

func (s *Service) Sign(ctx context.Context, network string, id uint64, r io.Reader) (*server.SignResult, error) {
	net, err := s.network(network)
	if err != nil {
		return nil, err
	}
	priv, err := net.key(id)
	if err != nil {
		return nil, err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	sig := priv.Sign(data)
	if err := net.Tracker.RecordUse(ctx, id); err != nil {
		return nil, err
	}
	return &server.SignResult{
		PublicKey: hex.EncodeToString(sig.PublicKey),
		Signature: hex.EncodeToString(sig.Signature),
	}, nil
}

func (s *Service) SignData(ctx context.Context, network string, id uint64, r io.Reader) (*server.DataSignature, error) {
	net, err := s.network(network)
	if err != nil {
		return nil, err
	}
	priv, err := net.key(id)
	if err != nil {
		return nil, err
	}
	payload, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	sign1, err := cose.SignData(net.address(priv), priv, payload)
	if err != nil {
		return nil, err
	}
	wire, err := sign1.Bytes()
	if err != nil {
		return nil, err
	}
	coseKey := cose.Key{PublicKey: priv.Public()}
	kb, err := coseKey.Bytes()
	if err != nil {
		return nil, err
	}
	if err := net.Tracker.RecordUse(ctx, id); err != nil {
		return nil, err
	}
	return &server.DataSignature{
		Signature: hex.EncodeToString(wire),
		Key:       hex.EncodeToString(kb),
	}, nil
}

func (s *Service) VerifyData(ctx context.Context, signature, key []byte) error {
	coseKey, err := cose.ParseKey(key)
	if err != nil {
		return err
	}
	sign1, err := cose.ParseSign1(signature)
	if err != nil {
		return err
	}
	if !sign1.Address.MatchesKey(coseKey.PublicKey) {
		return server.ErrKeyMismatch
	}
	if err := sign1.Verify(coseKey.PublicKey); err != nil {
		log.Debug(spew.Sdump(sign1))
		return err
	}
	return nil
}
