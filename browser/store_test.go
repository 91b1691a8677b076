package browser

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"

	"github.com/opd-ai/netplay/discovery"
)

func TestStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "servers.db")
	store, err := OpenStore(path)
	require.NoError(t, err)

	seen := time.Date(2024, 3, 1, 20, 15, 0, 123456789, time.UTC)
	in := sighting(uuid.New(), "alpha", "[fe80::1%eth0]:7440", seen)
	in.HasPassword = true
	in.Version = discovery.PackVersion(1, 2, 3, 4)
	in.LevelName = "harbor"
	require.NoError(t, store.Put(in))
	require.NoError(t, store.Close())

	store, err = OpenStore(path)
	require.NoError(t, err)
	defer store.Close()

	out, err := store.Get(in.ID)
	require.NoError(t, err)
	assert.True(t, seen.Equal(out.LastSeen))
	out.LastSeen = in.LastSeen
	assert.Equal(t, in, out)

	_, err = store.Get(uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreRecentOrderAndLimit(t *testing.T) {
	store, err := OpenStore(filepath.Join(t.TempDir(), "servers.db"))
	require.NoError(t, err)
	defer store.Close()

	base := time.Date(2024, 3, 1, 20, 0, 0, 0, time.UTC)
	for i, name := range []string{"first", "second", "third"} {
		require.NoError(t, store.Put(sighting(uuid.New(), name, "10.0.0.1:7440", base.Add(time.Duration(i)*time.Minute))))
	}

	recent, err := store.Recent(2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "third", recent[0].Name)
	assert.Equal(t, "second", recent[1].Name)

	all, err := store.Recent(0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	require.NoError(t, store.Delete(recent[0].ID))
	require.NoError(t, store.Delete(uuid.New()))
	all, err = store.Recent(0)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestStoreSkipsCorruptRecords(t *testing.T) {
	store, err := OpenStore(filepath.Join(t.TempDir(), "servers.db"))
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Put(sighting(uuid.New(), "good", "10.0.0.1:7440", time.Now())))
	require.NoError(t, store.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(serversBucket).Put([]byte("junk"), []byte{0xff, 0x00})
	}))

	recent, err := store.Recent(0)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "good", recent[0].Name)
}
