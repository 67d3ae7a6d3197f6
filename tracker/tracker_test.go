package tracker_test

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"

	"github.com/ecadlabs/go-cardano-signer/address"
	"github.com/ecadlabs/go-cardano-signer/crypt"
	"github.com/ecadlabs/go-cardano-signer/tracker"
)

type config struct {
	account   *crypt.Account
	networkID byte
	bucket    string
}

func (c *config) GetAccount() *crypt.Account { return c.account }
func (c *config) GetNetworkID() byte         { return c.networkID }
func (c *config) GetBucket() string          { return c.bucket }

func TestTracker(t *testing.T) {
	fd, err := os.CreateTemp("", "bolt")
	require.NoError(t, err)
	dbName := fd.Name()
	fd.Close()
	defer os.Remove(dbName)

	db, err := bolt.Open(dbName, 0600, nil)
	require.NoError(t, err)
	defer db.Close()

	root, err := crypt.NewRootKey(make([]byte, 32))
	require.NoError(t, err)

	track, err := tracker.New(db, &config{
		account:   crypt.NewAccount(root, 0),
		networkID: address.TestNet,
		bucket:    "test",
	})
	require.NoError(t, err)

	ctx := context.Background()

	used, err := track.IsUsed(ctx, 1)
	require.NoError(t, err)
	assert.False(t, used)

	require.NoError(t, track.RecordUse(ctx, 1))
	used, err = track.IsUsed(ctx, 1)
	require.NoError(t, err)
	assert.True(t, used)

	used, err = track.IsUsed(ctx, 2)
	require.NoError(t, err)
	assert.False(t, used)

	cnt, err := track.UsedCount()
	require.NoError(t, err)
	assert.Equal(t, 1, cnt)

	require.NoError(t, track.ProvisionKeys(ctx, []uint64{2, 3}))

	assert.True(t, strings.HasPrefix(track.Address(1), "addr_test1"))

	// pool indices are soft derivation indices
	_, err = track.Key(uint64(crypt.Hard))
	assert.ErrorIs(t, err, crypt.ErrIndexOverflow)

	key, err := track.Key(1)
	require.NoError(t, err)
	assert.Equal(t, crypt.NewAccount(root, 0).SpendingKey(1).Bytes(), key.Bytes())
}
