package manifest

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/hupe1980/walset"
	"github.com/hupe1980/walset/internal/fs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func addEdit(n walset.Number, md walset.Metadata) *Edit {
	e := new(Edit)
	e.AddWal(n, md)
	return e
}

func deleteEdit(n walset.Number) *Edit {
	e := new(Edit)
	e.DeleteWal(n)
	return e
}

func writeLog(t *testing.T, path string, edits ...*Edit) []int64 {
	t.Helper()
	w, err := OpenWriter(nil, path)
	require.NoError(t, err)
	defer func() { require.NoError(t, w.Close()) }()

	offsets := make([]int64, 0, len(edits))
	for _, e := range edits {
		off, err := w.AddEdit(e)
		require.NoError(t, err)
		offsets = append(offsets, off)
	}
	return offsets
}

func readAll(t *testing.T, path string) ([]*Edit, error) {
	t.Helper()
	r, err := OpenReader(nil, path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var edits []*Edit
	err = r.Replay(func(e *Edit) error {
		edits = append(edits, e)
		return nil
	})
	return edits, err
}

func TestLog_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "MANIFEST")

	edits := []*Edit{
		addEdit(1, walset.Metadata{}),
		addEdit(1, closedAt(512)),
		deleteEdit(1),
	}
	offsets := writeLog(t, path, edits...)

	require.Len(t, offsets, 3)
	assert.Greater(t, offsets[0], int64(logHeaderSize))
	assert.Less(t, offsets[0], offsets[1])
	assert.Less(t, offsets[1], offsets[2])

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, offsets[2], info.Size())

	r, err := OpenReader(nil, path)
	require.NoError(t, err)
	defer r.Close()

	for i, want := range edits {
		got, err := r.Next()
		require.NoError(t, err)
		assert.Equal(t, want, got)
		assert.Equal(t, offsets[i], r.Offset())
	}
	_, err = r.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestLog_ReopenAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "MANIFEST")

	first := writeLog(t, path, addEdit(1, walset.Metadata{}))
	second := writeLog(t, path, addEdit(2, walset.Metadata{}))
	assert.Greater(t, second[0], first[0])

	edits, err := readAll(t, path)
	require.NoError(t, err)
	require.Len(t, edits, 2)
	assert.Equal(t, walset.Number(2), edits[1].WalAdditions()[0].Number)
}

func TestLog_AsyncDurability(t *testing.T) {
	path := filepath.Join(t.TempDir(), "MANIFEST")

	w, err := OpenWriter(nil, path, WithDurability(DurabilityAsync))
	require.NoError(t, err)

	for i := 1; i <= 10; i++ {
		_, err := w.AddEdit(addEdit(walset.Number(i), walset.NewMetadata(uint64(i))))
		require.NoError(t, err)
	}
	require.NoError(t, w.Sync())
	size := w.Size()
	require.NoError(t, w.Close())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, size, info.Size())

	edits, err := readAll(t, path)
	require.NoError(t, err)
	assert.Len(t, edits, 10)
}

func TestLog_ClosedWriter(t *testing.T) {
	w, err := OpenWriter(nil, filepath.Join(t.TempDir(), "MANIFEST"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	_, err = w.AddEdit(addEdit(1, walset.Metadata{}))
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, w.Sync(), ErrClosed)
	assert.ErrorIs(t, w.Close(), ErrClosed)
}

func TestLog_ConcurrentWriters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "MANIFEST")
	w, err := OpenWriter(nil, path)
	require.NoError(t, err)

	const writers, perWriter = 8, 25
	var wg sync.WaitGroup
	for g := 0; g < writers; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				_, err := w.AddEdit(addEdit(walset.Number(g*perWriter+i), walset.Metadata{}))
				assert.NoError(t, err)
			}
		}(g)
	}
	wg.Wait()
	require.NoError(t, w.Close())

	edits, err := readAll(t, path)
	require.NoError(t, err)
	assert.Len(t, edits, writers*perWriter)
}

func TestLog_ChecksumMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "MANIFEST")
	writeLog(t, path, addEdit(1, walset.NewMetadata(100)), addEdit(2, walset.Metadata{}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[logHeaderSize+recordHeaderSize] ^= 0xff // first payload byte
	require.NoError(t, os.WriteFile(path, data, 0o644))

	edits, err := readAll(t, path)
	require.Error(t, err)
	assert.True(t, walset.IsCorruption(err))
	assert.Contains(t, err.Error(), "checksum mismatch")
	assert.Empty(t, edits)
}

func TestLog_TruncatedTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "MANIFEST")
	offsets := writeLog(t, path, addEdit(1, walset.Metadata{}), addEdit(2, walset.NewMetadata(7)))

	for _, cut := range []int64{1, 5, offsets[1] - offsets[0] - 1} {
		require.NoError(t, os.Truncate(path, offsets[1]-cut))

		edits, err := readAll(t, path)
		require.Error(t, err, "cut %d", cut)
		assert.ErrorIs(t, err, walset.ErrCorruption)
		assert.Len(t, edits, 1)
	}
}

func TestLog_ReopenRefusesTornTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "MANIFEST")
	offsets := writeLog(t, path, addEdit(1, walset.Metadata{}), addEdit(2, walset.NewMetadata(7)))
	require.NoError(t, os.Truncate(path, offsets[1]-3))

	w, err := OpenWriter(nil, path)
	require.Error(t, err)
	assert.Nil(t, w)
	assert.ErrorIs(t, err, walset.ErrCorruption)

	// Nothing was appended behind the torn record.
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, offsets[1]-3, info.Size())

	set := walset.New()
	_, err = Recover(context.Background(), set, RecoverOptions{LogPath: path})
	assert.ErrorIs(t, err, walset.ErrCorruption)
	_, ok := set.Get(1)
	assert.True(t, ok)
	assert.Equal(t, 1, set.Len())
}

func TestLog_ReopenRefusesDamagedRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "MANIFEST")
	writeLog(t, path, addEdit(1, walset.Metadata{}), addEdit(2, walset.Metadata{}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[logHeaderSize+recordHeaderSize] ^= 0xff
	require.NoError(t, os.WriteFile(path, data, 0o644))

	_, err = OpenWriter(nil, path)
	assert.ErrorIs(t, err, walset.ErrCorruption)
}

func TestLog_OversizeRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "MANIFEST")
	writeLog(t, path)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	header := make([]byte, recordHeaderSize)
	binary.LittleEndian.PutUint32(header[4:8], MaxRecordSize+1)
	_, err = f.Write(header)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = readAll(t, path)
	require.Error(t, err)
	assert.ErrorIs(t, err, walset.ErrCorruption)
	assert.Contains(t, err.Error(), "exceeds limit")
}

func TestLog_UndecodableEdit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "MANIFEST")
	writeLog(t, path)

	// A well-framed record whose payload is an unknown non-ignorable tag.
	payload := []byte{99}
	rec := make([]byte, recordHeaderSize)
	binary.LittleEndian.PutUint32(rec[4:8], uint32(len(payload)))
	rec = append(rec, payload...)
	binary.LittleEndian.PutUint32(rec[0:4], crcOf(rec[4:]))

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.Write(rec)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = readAll(t, path)
	require.Error(t, err)
	assert.ErrorIs(t, err, walset.ErrCorruption)
	assert.Contains(t, err.Error(), "unknown tag 99")
}

func TestLog_BadHeader(t *testing.T) {
	dir := t.TempDir()

	garbage := filepath.Join(dir, "garbage")
	require.NoError(t, os.WriteFile(garbage, []byte("NOTAMANIFESTFILE"), 0o644))

	_, err := OpenReader(nil, garbage)
	assert.ErrorIs(t, err, walset.ErrCorruption)
	_, err = OpenWriter(nil, garbage)
	assert.ErrorIs(t, err, ErrInvalidHeader)

	short := filepath.Join(dir, "short")
	require.NoError(t, os.WriteFile(short, []byte("WALS"), 0o644))

	_, err = OpenReader(nil, short)
	assert.ErrorIs(t, err, walset.ErrCorruption)
	_, err = OpenWriter(nil, short)
	assert.ErrorIs(t, err, ErrInvalidHeader)

	future := filepath.Join(dir, "future")
	header := encodeLogHeader()
	binary.LittleEndian.PutUint32(header[8:12], logVersion+1)
	require.NoError(t, os.WriteFile(future, header, 0o644))

	_, err = OpenReader(nil, future)
	assert.ErrorIs(t, err, ErrIncompatibleVersion)
	_, err = OpenWriter(nil, future)
	assert.ErrorIs(t, err, ErrIncompatibleVersion)
}

func TestLog_MissingFile(t *testing.T) {
	_, err := OpenReader(nil, filepath.Join(t.TempDir(), "nope"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestReader_Seek(t *testing.T) {
	path := filepath.Join(t.TempDir(), "MANIFEST")
	offsets := writeLog(t, path,
		addEdit(1, walset.Metadata{}),
		addEdit(2, walset.Metadata{}),
		addEdit(3, walset.Metadata{}),
	)

	r, err := OpenReader(nil, path)
	require.NoError(t, err)
	defer r.Close()

	require.NoError(t, r.Seek(offsets[0]))
	e, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, walset.Number(2), e.WalAdditions()[0].Number)

	require.NoError(t, r.Seek(offsets[2]))
	_, err = r.Next()
	assert.ErrorIs(t, err, io.EOF)

	assert.Error(t, r.Seek(4))
	assert.ErrorIs(t, r.Seek(offsets[2]+1), walset.ErrCorruption)
}

func TestLog_WriteFault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "MANIFEST")
	faulty := fs.NewFaultyFS(nil)
	faulty.AddRule("MANIFEST", fs.Fault{FailAfterBytes: logHeaderSize + 4})

	w, err := OpenWriter(faulty, path)
	require.NoError(t, err)

	_, err = w.AddEdit(addEdit(1, walset.NewMetadata(100)))
	require.Error(t, err)
	assert.ErrorIs(t, err, fs.ErrInjected)
	assert.False(t, walset.IsCorruption(err))

	// The writer stays failed.
	_, err = w.AddEdit(addEdit(2, walset.Metadata{}))
	assert.ErrorIs(t, err, fs.ErrInjected)
	_ = w.Close()
}

func TestLog_SyncFault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "MANIFEST")
	writeLog(t, path) // header only, synced without faults

	boom := errors.New("disk gone")
	faulty := fs.NewFaultyFS(nil)
	faulty.AddRule("MANIFEST", fs.Fault{FailAfterBytes: -1, FailOnSync: true, Err: boom})

	var logs bytes.Buffer
	logger := walset.NewLogger(slog.NewTextHandler(&logs, nil))
	w, err := OpenWriter(faulty, path, WithWriterLogger(logger))
	require.NoError(t, err)

	_, err = w.AddEdit(addEdit(1, walset.Metadata{}))
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.False(t, walset.IsCorruption(err))
	assert.Contains(t, logs.String(), "manifest sync failed")

	// The failure is sticky and Close reports it.
	assert.ErrorIs(t, w.Sync(), boom)
	assert.ErrorIs(t, w.Close(), boom)
}

func TestDurability_String(t *testing.T) {
	assert.Equal(t, "sync", DurabilitySync.String())
	assert.Equal(t, "async", DurabilityAsync.String())
	assert.Equal(t, "unknown", Durability(9).String())
}

func crcOf(b []byte) uint32 {
	return crc32.ChecksumIEEE(b)
}
