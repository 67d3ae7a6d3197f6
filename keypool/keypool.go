// Package keypool maintains a per-network pool of ephemeral key
// derivation indices backed by a bolt database. Indices are handed out
// either permanently (Get) or under a deadline (Lease); leased indices
// whose key was never used are recycled back into the pool.
package keypool

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"
)

// Provisioner prepares fresh key indices and answers whether a leased
// index ever got used.
type Provisioner interface {
	ProvisionKeys(ctx context.Context, keys []uint64) error
	IsUsed(ctx context.Context, key uint64) (bool, error)
	Address(key uint64) string
}

type Config interface {
	GetBucket() string
	GetBufferLength() int
	GetBufferThreshold() int
	GetTimeout() time.Duration
}

var (
	poolBucket  = []byte("keys")
	leaseBucket = []byte("lease")
)

type Pool struct {
	db          *bolt.DB
	provisioner Provisioner
	config      Config

	lease chan opLease
	get   chan opGet

	timeout *time.Timer
	stop    chan struct{}
	done    chan struct{}
}

type opLease struct {
	deadline time.Time
	key      chan<- uint64
	errCh    chan<- error
}

type opGet struct {
	key   chan<- uint64
	errCh chan<- error
}

type lease struct {
	KeyIndex uint64
	Deadline time.Time
}

func New(db *bolt.DB, config Config, provisioner Provisioner) (*Pool, error) {
	timeout := time.NewTimer(0)
	if !timeout.Stop() {
		select {
		case <-timeout.C:
		default:
		}
	}
	p := &Pool{
		config:      config,
		db:          db,
		provisioner: provisioner,
		lease:       make(chan opLease),
		get:         make(chan opGet),
		timeout:     timeout,
		done:        make(chan struct{}),
		stop:        make(chan struct{}),
	}

	err := p.db.Update(func(tx *bolt.Tx) error {
		root, err := tx.CreateBucketIfNotExists([]byte(p.config.GetBucket()))
		if err != nil {
			return err
		}
		if _, err := root.CreateBucketIfNotExists(poolBucket); err != nil {
			return err
		}
		if _, err := root.CreateBucketIfNotExists(leaseBucket); err != nil {
			return err
		}
		return p.schedule(tx)
	})
	if err != nil {
		return nil, err
	}

	go p.loop()
	return p, nil
}

// Get pops an index from the pool for good.
func (p *Pool) Get(ctx context.Context) (uint64, error) {
	key := make(chan uint64, 1)
	errCh := make(chan error, 1)
	select {
	case p.get <- opGet{key: key, errCh: errCh}:
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	select {
	case idx := <-key:
		return idx, nil
	case err := <-errCh:
		return 0, err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Lease pops an index under a deadline. When the deadline passes and the
// corresponding key never signed anything the index returns to the pool.
func (p *Pool) Lease(ctx context.Context, deadline time.Time) (uint64, error) {
	key := make(chan uint64, 1)
	errCh := make(chan error, 1)
	select {
	case p.lease <- opLease{key: key, errCh: errCh, deadline: deadline}:
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	select {
	case idx := <-key:
		return idx, nil
	case err := <-errCh:
		return 0, err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (p *Pool) Count() (int, error) {
	var cnt int
	err := p.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(p.config.GetBucket())).Bucket(poolBucket)
		cnt = b.Stats().KeyN
		return nil
	})
	return cnt, err
}

func (p *Pool) Stop(ctx context.Context) error {
	select {
	case p.stop <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool) pop(tx *bolt.Tx) (uint64, error) {
	b := bucket{tx.Bucket([]byte(p.config.GetBucket())).Bucket(poolBucket)}
	if err := p.fill(tx); err != nil {
		return 0, err
	}
	c := b.Cursor()
	var k, keyIndex uint64
	if err := c.First(&k, &keyIndex); err != nil {
		if err == errEOF {
			panic("empty bucket") // fill guarantees at least one entry
		}
		return 0, err
	}
	return keyIndex, c.Delete()
}

func (p *Pool) loop() {
	for {
		select {
		case req := <-p.get:
			var keyIndex uint64
			err := p.db.Update(func(tx *bolt.Tx) (err error) {
				keyIndex, err = p.pop(tx)
				return err
			})
			if err != nil {
				req.errCh <- err
				break
			}
			req.key <- keyIndex

		case req := <-p.lease:
			var keyIndex uint64
			err := p.db.Update(func(tx *bolt.Tx) error {
				var err error
				if keyIndex, err = p.pop(tx); err != nil {
					return err
				}
				root := tx.Bucket([]byte(p.config.GetBucket()))
				leaseBkt := bucket{root.Bucket(leaseBucket)}
				rec := lease{
					KeyIndex: keyIndex,
					Deadline: req.deadline,
				}
				if err := leaseBkt.Put(keyIndex, &rec); err != nil {
					return err
				}
				return p.schedule(tx)
			})
			if err != nil {
				req.errCh <- err
				break
			}
			req.key <- keyIndex

		case now := <-p.timeout.C:
			err := p.db.Update(func(tx *bolt.Tx) error {
				return p.expire(tx, now)
			})
			if err != nil {
				log.Error(err)
			}

		case <-p.stop:
			p.done <- struct{}{}
			return
		}
	}
}

// expire scans leases past their deadline, returning unused ones to the
// pool and dropping the rest.
func (p *Pool) expire(tx *bolt.Tx, now time.Time) error {
	root := tx.Bucket([]byte(p.config.GetBucket()))
	poolBkt := bucket{root.Bucket(poolBucket)}
	leaseBkt := bucket{root.Bucket(leaseBucket)}

	c := leaseBkt.Cursor()
	var (
		k   uint64
		v   lease
		err error
	)
	for err = c.First(&k, &v); err == nil; err = c.Next(&k, &v) {
		if v.Deadline.After(now) {
			continue
		}
		ctx := context.Background()
		var cancel context.CancelFunc
		if p.config.GetTimeout() != 0 {
			ctx, cancel = context.WithTimeout(ctx, p.config.GetTimeout())
		}
		used, err := p.provisioner.IsUsed(ctx, v.KeyIndex)
		if cancel != nil {
			cancel()
		}
		if err != nil {
			return err
		}
		if !used {
			k, _ := poolBkt.NextSequence()
			log.WithField("address", p.provisioner.Address(v.KeyIndex)).Info("Recycling")
			if err := poolBkt.Put(k, &v.KeyIndex); err != nil {
				return err
			}
		}
		if err := c.Delete(); err != nil {
			return err
		}
	}
	if err != nil && err != errEOF {
		return err
	}
	return p.schedule(tx)
}

// schedule arms the expiry timer for the earliest lease deadline.
func (p *Pool) schedule(tx *bolt.Tx) error {
	b := bucket{tx.Bucket([]byte(p.config.GetBucket())).Bucket(leaseBucket)}
	c := b.Cursor()
	var (
		i            int
		nextDeadline time.Time
		k            uint64
		v            lease
		err          error
	)
	for err = c.First(&k, &v); err == nil; err = c.Next(&k, &v) {
		if i == 0 || v.Deadline.Before(nextDeadline) {
			nextDeadline = v.Deadline
		}
		i++
	}
	if err != nil && err != errEOF {
		return err
	}
	if i != 0 {
		if !p.timeout.Stop() {
			select {
			case <-p.timeout.C:
			default:
			}
		}
		p.timeout.Reset(time.Until(nextDeadline))
	}
	return nil
}

// fill tops the pool up to the configured buffer length once it drains
// below the threshold, announcing the new indices to the provisioner.
func (p *Pool) fill(tx *bolt.Tx) error {
	b := bucket{tx.Bucket([]byte(p.config.GetBucket())).Bucket(poolBucket)}
	n := b.Stats().KeyN
	if n > p.config.GetBufferThreshold() {
		return nil
	}
	keys := make([]uint64, p.config.GetBufferLength()-n)
	for i := range keys {
		k, _ := b.NextSequence()
		keys[i] = k
		if err := b.Put(k, &k); err != nil {
			return err
		}
	}
	ctx := context.Background()
	if p.config.GetTimeout() != 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.config.GetTimeout())
		defer cancel()
	}
	return p.provisioner.ProvisionKeys(ctx, keys)
}
