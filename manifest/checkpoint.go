package manifest

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/walset"
	"github.com/hupe1980/walset/blobstore"
	"github.com/hupe1980/walset/internal/compress"
	"golang.org/x/sync/errgroup"
)

const (
	// CheckpointPrefix is the blob name prefix of checkpoints.
	CheckpointPrefix = "CHECKPOINT-"
	// CurrentFileName names the blob that points at the latest checkpoint.
	CurrentFileName = "CURRENT"

	checkpointMagic      = "WSCP"
	checkpointVersion    = 1
	checkpointHeaderSize = 40

	listConcurrency = 8
)

const opCheckpoint = "manifest.Checkpoint"

// Checkpoint describes a stored checkpoint.
type Checkpoint struct {
	ID          uint64
	CreatedAt   time.Time
	LogOffset   int64
	Compression compress.Type
	// Size is the size of the checkpoint blob in bytes.
	Size int64

	checksum   uint32
	bodyLength uint32
}

// Name returns the blob name of the checkpoint.
func (c *Checkpoint) Name() string {
	return CheckpointName(c.ID)
}

// CheckpointName returns the blob name for checkpoint id.
func CheckpointName(id uint64) string {
	return fmt.Sprintf("%s%06d.bin", CheckpointPrefix, id)
}

// parseCheckpointName extracts the id from a checkpoint blob name.
func parseCheckpointName(name string) (uint64, bool) {
	if !strings.HasPrefix(name, CheckpointPrefix) || !strings.HasSuffix(name, ".bin") {
		return 0, false
	}
	id, err := strconv.ParseUint(strings.TrimSuffix(strings.TrimPrefix(name, CheckpointPrefix), ".bin"), 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

type checkpointOptions struct {
	compression compress.Type
	logger      *walset.Logger
	now         func() time.Time
}

// CheckpointOption configures a CheckpointStore.
type CheckpointOption func(*checkpointOptions)

// WithCompression sets the body compression of new checkpoints.
// The default is compress.ZSTD.
func WithCompression(t compress.Type) CheckpointOption {
	return func(o *checkpointOptions) { o.compression = t }
}

// WithCheckpointLogger sets the logger.
func WithCheckpointLogger(l *walset.Logger) CheckpointOption {
	return func(o *checkpointOptions) {
		if l == nil {
			l = walset.NoopLogger()
		}
		o.logger = l
	}
}

// CheckpointStore saves and loads snapshots of a walset.Set.
type CheckpointStore struct {
	store blobstore.BlobStore
	opts  checkpointOptions
	mu    sync.Mutex
}

// NewCheckpointStore creates a checkpoint store on top of store.
func NewCheckpointStore(store blobstore.BlobStore, optFns ...CheckpointOption) *CheckpointStore {
	opts := checkpointOptions{
		compression: compress.ZSTD,
		logger:      walset.NoopLogger(),
		now:         time.Now,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &CheckpointStore{store: store, opts: opts}
}

// Save writes a checkpoint of set that covers the manifest log up to
// logOffset, then points CURRENT at it.
func (s *CheckpointStore) Save(ctx context.Context, set *walset.Set, logOffset int64) (*Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	last, err := s.lastID(ctx)
	if err != nil {
		return nil, err
	}

	cp := &Checkpoint{
		ID:          last + 1,
		CreatedAt:   s.opts.now(),
		LogOffset:   logOffset,
		Compression: s.opts.compression,
	}
	name := cp.Name()

	var edit Edit
	for n, md := range set.All() {
		edit.AddWal(n, md)
	}

	data, err := encodeCheckpoint(cp, &edit)
	if err != nil {
		s.opts.logger.LogCheckpoint(ctx, name, set.Len(), err)
		return nil, err
	}
	cp.Size = int64(len(data))

	if err := s.store.Put(ctx, name, data); err != nil {
		err = fmt.Errorf("write checkpoint %s: %w", name, err)
		s.opts.logger.LogCheckpoint(ctx, name, set.Len(), err)
		return nil, err
	}
	if err := s.store.Put(ctx, CurrentFileName, []byte(name)); err != nil {
		err = fmt.Errorf("update %s: %w", CurrentFileName, err)
		s.opts.logger.LogCheckpoint(ctx, name, set.Len(), err)
		return nil, err
	}

	s.opts.logger.LogCheckpoint(ctx, name, set.Len(), nil)
	return cp, nil
}

// lastID is the highest id among the stored checkpoints and the one CURRENT
// names, which may already be deleted. A missing or unreadable CURRENT is
// skipped since Save is about to replace it.
func (s *CheckpointStore) lastID(ctx context.Context) (uint64, error) {
	last, err := s.currentID(ctx)
	if err != nil && !errors.Is(err, ErrNoCheckpoint) && !walset.IsCorruption(err) {
		return 0, err
	}
	names, err := s.store.List(ctx, CheckpointPrefix)
	if err != nil {
		return 0, fmt.Errorf("list checkpoints: %w", err)
	}
	for _, name := range names {
		if id, ok := parseCheckpointName(name); ok && id > last {
			last = id
		}
	}
	return last, nil
}

// LoadLatest resets set and loads the checkpoint CURRENT points at.
// It returns ErrNoCheckpoint if none was committed.
func (s *CheckpointStore) LoadLatest(ctx context.Context, set *walset.Set) (*Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.currentID(ctx)
	if err != nil {
		return nil, err
	}
	return s.load(ctx, id, set)
}

// Current returns the id of the checkpoint CURRENT points at.
// It returns ErrNoCheckpoint if none was committed.
func (s *CheckpointStore) Current(ctx context.Context) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.currentID(ctx)
}

func (s *CheckpointStore) currentID(ctx context.Context) (uint64, error) {
	content, err := blobstore.ReadAll(ctx, s.store, CurrentFileName)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return 0, ErrNoCheckpoint
		}
		return 0, fmt.Errorf("read %s: %w", CurrentFileName, err)
	}

	name := strings.TrimSpace(string(content))
	id, ok := parseCheckpointName(name)
	if !ok {
		return 0, walset.NewCorruption(opCheckpoint, fmt.Sprintf("%s names %q", CurrentFileName, name), nil)
	}
	return id, nil
}

// LoadVersion resets set and loads the checkpoint with the given id.
func (s *CheckpointStore) LoadVersion(ctx context.Context, id uint64, set *walset.Set) (*Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.load(ctx, id, set)
}

func (s *CheckpointStore) load(ctx context.Context, id uint64, set *walset.Set) (*Checkpoint, error) {
	name := CheckpointName(id)
	data, err := blobstore.ReadAll(ctx, s.store, name)
	if err != nil {
		return nil, fmt.Errorf("read checkpoint %s: %w", name, err)
	}

	cp, edit, err := decodeCheckpoint(data)
	if err != nil {
		return nil, err
	}
	if cp.ID != id {
		return nil, walset.NewCorruption(opCheckpoint, fmt.Sprintf("%s holds checkpoint %d", name, cp.ID), nil)
	}

	set.Reset()
	if err := edit.Apply(set); err != nil {
		return nil, err
	}
	return cp, nil
}

// ListVersions returns all readable checkpoints sorted by id.
// Corrupted or unreadable checkpoints are skipped.
func (s *CheckpointStore) ListVersions(ctx context.Context) ([]*Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	names, err := s.store.List(ctx, CheckpointPrefix)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}

	results := make([]*Checkpoint, len(names))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(listConcurrency)

	for i, name := range names {
		if _, ok := parseCheckpointName(name); !ok {
			continue
		}
		g.Go(func() error {
			cp, err := s.readHeader(gctx, name)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				s.opts.logger.Debug("skipping unreadable checkpoint", "name", name, "error", err)
				return nil
			}
			results[i] = cp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []*Checkpoint
	for _, cp := range results {
		if cp != nil {
			out = append(out, cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *CheckpointStore) readHeader(ctx context.Context, name string) (*Checkpoint, error) {
	b, err := s.store.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer b.Close()

	header := make([]byte, checkpointHeaderSize)
	n, err := b.ReadAt(ctx, header, 0)
	if n < checkpointHeaderSize {
		if err == nil {
			err = errors.New("short read")
		}
		return nil, walset.NewCorruption(opCheckpoint, "truncated header", err)
	}

	cp, err := decodeCheckpointHeader(header)
	if err != nil {
		return nil, err
	}
	if want := int64(checkpointHeaderSize) + int64(cp.bodyLength); b.Size() != want {
		return nil, walset.NewCorruption(opCheckpoint, fmt.Sprintf("blob is %d bytes, header says %d", b.Size(), want), nil)
	}
	cp.Size = b.Size()
	return cp, nil
}

// DeleteVersion deletes the checkpoint with the given id.
func (s *CheckpointStore) DeleteVersion(ctx context.Context, id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.store.Delete(ctx, CheckpointName(id))
}

// encodeCheckpoint lays out a checkpoint blob:
//
//	Magic       (4 bytes) - "WSCP"
//	Version     (2 bytes)
//	Compression (1 byte)
//	Reserved    (1 byte)
//	ID          (8 bytes)
//	CreatedAt   (8 bytes) - UnixNano
//	LogOffset   (8 bytes)
//	Checksum    (4 bytes) - CRC32-IEEE of the stored body
//	BodyLength  (4 bytes)
//	Body                  - compressed Edit, one addition per WAL
func encodeCheckpoint(cp *Checkpoint, edit *Edit) ([]byte, error) {
	body, err := compress.Compress(edit.EncodeTo(nil), cp.Compression)
	if err != nil {
		return nil, fmt.Errorf("compress checkpoint: %w", err)
	}

	buf := make([]byte, checkpointHeaderSize, checkpointHeaderSize+len(body))
	copy(buf[0:4], checkpointMagic)
	binary.LittleEndian.PutUint16(buf[4:6], checkpointVersion)
	buf[6] = byte(cp.Compression)
	binary.LittleEndian.PutUint64(buf[8:16], cp.ID)
	binary.LittleEndian.PutUint64(buf[16:24], uint64(cp.CreatedAt.UnixNano()))
	binary.LittleEndian.PutUint64(buf[24:32], uint64(cp.LogOffset))
	binary.LittleEndian.PutUint32(buf[32:36], crc32.ChecksumIEEE(body))
	binary.LittleEndian.PutUint32(buf[36:40], uint32(len(body)))

	return append(buf, body...), nil
}

func decodeCheckpointHeader(header []byte) (*Checkpoint, error) {
	if string(header[0:4]) != checkpointMagic {
		return nil, walset.NewCorruption(opCheckpoint, fmt.Sprintf("invalid magic %q", header[0:4]), nil)
	}
	if ver := binary.LittleEndian.Uint16(header[4:6]); ver != checkpointVersion {
		return nil, fmt.Errorf("%w: checkpoint version %d (expected %d)", ErrIncompatibleVersion, ver, checkpointVersion)
	}
	return &Checkpoint{
		Compression: compress.Type(header[6]),
		ID:          binary.LittleEndian.Uint64(header[8:16]),
		CreatedAt:   time.Unix(0, int64(binary.LittleEndian.Uint64(header[16:24]))),
		LogOffset:   int64(binary.LittleEndian.Uint64(header[24:32])),
		checksum:    binary.LittleEndian.Uint32(header[32:36]),
		bodyLength:  binary.LittleEndian.Uint32(header[36:40]),
	}, nil
}

func decodeCheckpoint(data []byte) (*Checkpoint, *Edit, error) {
	if len(data) < checkpointHeaderSize {
		return nil, nil, walset.NewCorruption(opCheckpoint, "truncated header", nil)
	}
	cp, err := decodeCheckpointHeader(data[:checkpointHeaderSize])
	if err != nil {
		return nil, nil, err
	}

	body := data[checkpointHeaderSize:]
	if len(body) != int(cp.bodyLength) {
		return nil, nil, walset.NewCorruption(opCheckpoint, fmt.Sprintf("body is %d bytes, header says %d", len(body), cp.bodyLength), nil)
	}
	if crc32.ChecksumIEEE(body) != cp.checksum {
		return nil, nil, walset.NewCorruption(opCheckpoint, "checksum mismatch", nil)
	}

	raw, err := compress.Decompress(body, cp.Compression)
	if err != nil {
		return nil, nil, walset.NewCorruption(opCheckpoint, "undecodable body", err)
	}

	edit := new(Edit)
	if err := edit.DecodeFrom(raw); err != nil {
		return nil, nil, err
	}
	cp.Size = int64(len(data))
	return cp, edit, nil
}
