package manifest

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/hupe1980/walset"
	"github.com/hupe1980/walset/blobstore"
	"github.com/hupe1980/walset/internal/compress"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBlobStores(t *testing.T) map[string]blobstore.BlobStore {
	t.Helper()
	return map[string]blobstore.BlobStore{
		"Memory": blobstore.NewMemoryStore(),
		"Local":  blobstore.NewLocalStore(filepath.Join(t.TempDir(), "checkpoints")),
	}
}

// populatedSet returns a set with a mix of open, sized and closed WALs.
func populatedSet(t *testing.T, n int) *walset.Set {
	t.Helper()
	set := walset.New()
	for i := 1; i <= n; i++ {
		var md walset.Metadata
		switch i % 3 {
		case 1:
			md = walset.NewMetadata(uint64(i) * 1024)
		case 2:
			md = closedAt(uint64(i) * 4096)
		}
		require.NoError(t, set.AddWal(walset.Addition{Number: walset.Number(i * 10), Metadata: md}))
	}
	return set
}

func TestCheckpointStore_SaveLoad(t *testing.T) {
	ctx := context.Background()
	for storeName, store := range testBlobStores(t) {
		for _, ct := range []compress.Type{compress.None, compress.LZ4, compress.ZSTD} {
			t.Run(storeName+"/"+ct.String(), func(t *testing.T) {
				cps := NewCheckpointStore(store, WithCompression(ct))
				for _, cp := range mustList(t, cps) {
					require.NoError(t, cps.DeleteVersion(ctx, cp.ID))
				}

				set := populatedSet(t, 500)
				cp, err := cps.Save(ctx, set, 4242)
				require.NoError(t, err)
				assert.Equal(t, int64(4242), cp.LogOffset)
				assert.Equal(t, ct, cp.Compression)
				assert.Positive(t, cp.Size)

				loaded := walset.New()
				require.NoError(t, loaded.AddWal(walset.Addition{Number: 999999}))

				got, err := cps.LoadLatest(ctx, loaded)
				require.NoError(t, err)
				assert.Equal(t, cp.ID, got.ID)
				assert.Equal(t, int64(4242), got.LogOffset)
				assert.Equal(t, ct, got.Compression)
				assert.Equal(t, set.Wals(), loaded.Wals())
			})
		}
	}
}

func mustList(t *testing.T, cps *CheckpointStore) []*Checkpoint {
	t.Helper()
	list, err := cps.ListVersions(context.Background())
	require.NoError(t, err)
	return list
}

func TestCheckpointStore_EmptySet(t *testing.T) {
	ctx := context.Background()
	cps := NewCheckpointStore(blobstore.NewMemoryStore())

	_, err := cps.Save(ctx, walset.New(), 12)
	require.NoError(t, err)

	loaded := walset.New()
	_, err = cps.LoadLatest(ctx, loaded)
	require.NoError(t, err)
	assert.Zero(t, loaded.Len())
}

func TestCheckpointStore_NoCheckpoint(t *testing.T) {
	cps := NewCheckpointStore(blobstore.NewMemoryStore())

	_, err := cps.LoadLatest(context.Background(), walset.New())
	assert.ErrorIs(t, err, ErrNoCheckpoint)

	_, err = cps.Current(context.Background())
	assert.ErrorIs(t, err, ErrNoCheckpoint)
}

func TestCheckpointStore_Versions(t *testing.T) {
	ctx := context.Background()
	for name, store := range testBlobStores(t) {
		t.Run(name, func(t *testing.T) {
			cps := NewCheckpointStore(store, WithCompression(compress.LZ4))
			base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
			calls := 0
			cps.opts.now = func() time.Time {
				calls++
				return base.Add(time.Duration(calls) * time.Minute)
			}

			for i := 1; i <= 3; i++ {
				cp, err := cps.Save(ctx, populatedSet(t, i), int64(i*100))
				require.NoError(t, err)
				assert.Equal(t, uint64(i), cp.ID)
				assert.Equal(t, CheckpointName(uint64(i)), cp.Name())
			}

			// Noise the listing must ignore or skip.
			require.NoError(t, store.Put(ctx, CheckpointName(99), []byte("garbage")))
			require.NoError(t, store.Put(ctx, "CHECKPOINT-notes.txt", []byte("x")))

			list := mustList(t, cps)
			require.Len(t, list, 3)
			for i, cp := range list {
				assert.Equal(t, uint64(i+1), cp.ID)
				assert.Equal(t, int64((i+1)*100), cp.LogOffset)
				assert.True(t, cp.CreatedAt.Equal(base.Add(time.Duration(i+1)*time.Minute)))
				assert.Equal(t, compress.LZ4, cp.Compression)
				assert.Positive(t, cp.Size)
			}

			// Time travel
			old := walset.New()
			cp, err := cps.LoadVersion(ctx, 2, old)
			require.NoError(t, err)
			assert.Equal(t, uint64(2), cp.ID)
			assert.Equal(t, 2, old.Len())

			// Garbage blob 99 occupies the next id slot.
			next, err := cps.Save(ctx, populatedSet(t, 1), 1)
			require.NoError(t, err)
			assert.Equal(t, uint64(100), next.ID)

			require.NoError(t, cps.DeleteVersion(ctx, 2))
			_, err = cps.LoadVersion(ctx, 2, walset.New())
			assert.ErrorIs(t, err, blobstore.ErrNotFound)
		})
	}
}

func TestCheckpointStore_IDsSurviveRestart(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()

	_, err := NewCheckpointStore(store).Save(ctx, populatedSet(t, 2), 10)
	require.NoError(t, err)

	cp, err := NewCheckpointStore(store).Save(ctx, populatedSet(t, 4), 20)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), cp.ID)

	current, err := NewCheckpointStore(store).Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), current)

	loaded := walset.New()
	latest, err := NewCheckpointStore(store).LoadLatest(ctx, loaded)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), latest.ID)
	assert.Equal(t, 4, loaded.Len())
}

func TestCheckpointStore_DeletedCurrentIDNotReused(t *testing.T) {
	ctx := context.Background()
	cps := NewCheckpointStore(blobstore.NewMemoryStore())

	for i := 1; i <= 2; i++ {
		_, err := cps.Save(ctx, populatedSet(t, i), int64(i*10))
		require.NoError(t, err)
	}
	require.NoError(t, cps.DeleteVersion(ctx, 2))

	cp, err := cps.Save(ctx, populatedSet(t, 3), 30)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), cp.ID)

	current, err := cps.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), current)
}

func TestCheckpointStore_SaveOverCorruptCurrent(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	require.NoError(t, store.Put(ctx, CurrentFileName, []byte("garbage")))

	cp, err := NewCheckpointStore(store).Save(ctx, populatedSet(t, 1), 5)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), cp.ID)
}

func TestCheckpointStore_Corruption(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T) (*blobstore.MemoryStore, *CheckpointStore, []byte) {
		store := blobstore.NewMemoryStore()
		cps := NewCheckpointStore(store)
		_, err := cps.Save(ctx, populatedSet(t, 50), 99)
		require.NoError(t, err)
		data, err := blobstore.ReadAll(ctx, store, CheckpointName(1))
		require.NoError(t, err)
		return store, cps, data
	}

	t.Run("Checksum", func(t *testing.T) {
		store, cps, data := setup(t)
		data[len(data)-1] ^= 0xff
		require.NoError(t, store.Put(ctx, CheckpointName(1), data))

		_, err := cps.LoadLatest(ctx, walset.New())
		assert.ErrorIs(t, err, walset.ErrCorruption)
	})

	t.Run("Magic", func(t *testing.T) {
		store, cps, data := setup(t)
		copy(data, "XXXX")
		require.NoError(t, store.Put(ctx, CheckpointName(1), data))

		_, err := cps.LoadLatest(ctx, walset.New())
		assert.ErrorIs(t, err, walset.ErrCorruption)
	})

	t.Run("Truncated", func(t *testing.T) {
		store, cps, data := setup(t)
		require.NoError(t, store.Put(ctx, CheckpointName(1), data[:len(data)-3]))

		_, err := cps.LoadLatest(ctx, walset.New())
		assert.ErrorIs(t, err, walset.ErrCorruption)

		require.NoError(t, store.Put(ctx, CheckpointName(1), data[:10]))
		_, err = cps.LoadLatest(ctx, walset.New())
		assert.ErrorIs(t, err, walset.ErrCorruption)
	})

	t.Run("Version", func(t *testing.T) {
		store, cps, data := setup(t)
		data[4] = 9
		require.NoError(t, store.Put(ctx, CheckpointName(1), data))

		_, err := cps.LoadLatest(ctx, walset.New())
		assert.ErrorIs(t, err, ErrIncompatibleVersion)
	})

	t.Run("BadCurrent", func(t *testing.T) {
		store, cps, _ := setup(t)
		require.NoError(t, store.Put(ctx, CurrentFileName, []byte("MANIFEST-1")))

		_, err := cps.LoadLatest(ctx, walset.New())
		assert.ErrorIs(t, err, walset.ErrCorruption)
	})

	t.Run("IDMismatch", func(t *testing.T) {
		store, cps, data := setup(t)
		require.NoError(t, store.Put(ctx, CheckpointName(7), data))

		_, err := cps.LoadVersion(ctx, 7, walset.New())
		assert.ErrorIs(t, err, walset.ErrCorruption)
	})
}

func TestCheckpointStore_CanceledList(t *testing.T) {
	store := blobstore.NewLocalStore(t.TempDir())
	cps := NewCheckpointStore(store)
	_, err := cps.Save(context.Background(), populatedSet(t, 3), 1)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = cps.ListVersions(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParseCheckpointName(t *testing.T) {
	id, ok := parseCheckpointName("CHECKPOINT-000042.bin")
	assert.True(t, ok)
	assert.Equal(t, uint64(42), id)

	for _, name := range []string{"CURRENT", "CHECKPOINT-x.bin", "CHECKPOINT-000001.json", "MANIFEST-000001.bin"} {
		_, ok := parseCheckpointName(name)
		assert.False(t, ok, name)
	}
}
