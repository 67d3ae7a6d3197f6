package keypool

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"errors"

	bolt "go.etcd.io/bbolt"
)

// bucket wraps a bolt bucket with big-endian uint64 keys (so cursors walk
// them in numeric order) and gob-encoded values.
type bucket struct {
	*bolt.Bucket
}

func key64(key uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], key)
	return b[:]
}

func (b *bucket) Get(key uint64, out any) (bool, error) {
	v := b.Bucket.Get(key64(key))
	if v == nil {
		return false, nil
	}
	return true, gob.NewDecoder(bytes.NewReader(v)).Decode(out)
}

func (b *bucket) Put(key uint64, value any) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(value); err != nil {
		return err
	}
	return b.Bucket.Put(key64(key), buf.Bytes())
}

func (b *bucket) Cursor() *cursor {
	return &cursor{Cursor: b.Bucket.Cursor()}
}

type cursor struct {
	*bolt.Cursor
}

var errEOF = errors.New("EOF")

func decodeEntry(k, v []byte, key *uint64, val any) error {
	if k == nil {
		return errEOF
	}
	if len(k) != 8 {
		return errors.New("keypool: malformed bucket key")
	}
	*key = binary.BigEndian.Uint64(k)
	return gob.NewDecoder(bytes.NewReader(v)).Decode(val)
}

func (c *cursor) First(key *uint64, val any) error {
	k, v := c.Cursor.First()
	return decodeEntry(k, v, key, val)
}

func (c *cursor) Next(key *uint64, val any) error {
	k, v := c.Cursor.Next()
	return decodeEntry(k, v, key, val)
}
