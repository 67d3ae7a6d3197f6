// Package tracker records which ephemeral key indices have produced a
// signature. The keypool consults it when deciding whether an expired
// lease can be recycled.
package tracker

import (
	"context"
	"encoding/binary"
	"time"

	log "github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"

	"github.com/ecadlabs/go-cardano-signer/address"
	"github.com/ecadlabs/go-cardano-signer/crypt"
)

type Config interface {
	GetAccount() *crypt.Account
	GetNetworkID() byte
	GetBucket() string
}

var usedBucket = []byte("used")

type Tracker struct {
	db  *bolt.DB
	cfg Config
}

func New(db *bolt.DB, cfg Config) (*Tracker, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		root, err := tx.CreateBucketIfNotExists([]byte(cfg.GetBucket()))
		if err != nil {
			return err
		}
		_, err = root.CreateBucketIfNotExists(usedBucket)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &Tracker{db: db, cfg: cfg}, nil
}

// Key derives the spending key behind a pool index. Pool indices are soft
// derivation indices and must stay below the hardened offset.
func (t *Tracker) Key(index uint64) (*crypt.PrivateKey, error) {
	if index >= uint64(crypt.Hard) {
		return nil, crypt.ErrIndexOverflow
	}
	return t.cfg.GetAccount().SpendingKey(uint32(index)), nil
}

// Address renders the enterprise address of a pool index for logging.
func (t *Tracker) Address(index uint64) string {
	priv, err := t.Key(index)
	if err != nil {
		return ""
	}
	return address.NewEnterprise(t.cfg.GetNetworkID(), priv.Public()).String()
}

// ProvisionKeys announces freshly pooled indices.
func (t *Tracker) ProvisionKeys(ctx context.Context, keys []uint64) error {
	for _, key := range keys {
		log.WithFields(log.Fields{
			"index":   key,
			"address": t.Address(key),
		}).Info("Provisioning")
	}
	return nil
}

func key64(key uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], key)
	return b[:]
}

// RecordUse marks an index as having signed something.
func (t *Tracker) RecordUse(ctx context.Context, key uint64) error {
	return t.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(t.cfg.GetBucket())).Bucket(usedBucket)
		var stamp [8]byte
		binary.BigEndian.PutUint64(stamp[:], uint64(time.Now().Unix()))
		return b.Put(key64(key), stamp[:])
	})
}

// IsUsed reports whether an index has ever signed.
func (t *Tracker) IsUsed(ctx context.Context, key uint64) (bool, error) {
	var used bool
	err := t.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(t.cfg.GetBucket())).Bucket(usedBucket)
		used = b.Get(key64(key)) != nil
		return nil
	})
	return used, err
}

// UsedCount returns the number of indices that have signed.
func (t *Tracker) UsedCount() (int, error) {
	var cnt int
	err := t.db.View(func(tx *bolt.Tx) error {
		cnt = tx.Bucket([]byte(t.cfg.GetBucket())).Bucket(usedBucket).Stats().KeyN
		return nil
	})
	return cnt, err
}
