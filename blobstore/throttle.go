package blobstore

import (
	"context"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// ThrottleConfig holds the limits of a ThrottledStore.
type ThrottleConfig struct {
	// MaxConcurrent is the maximum number of in-flight operations.
	// If 0, operations are not bounded.
	MaxConcurrent int64

	// BytesPerSec is the maximum throughput of Put and ReadAt.
	// If 0, unlimited.
	BytesPerSec int64
}

// ThrottledStore wraps a BlobStore and bounds the load it puts on the
// backend. Checkpoint listing fans out header reads, which a shared object
// store may not want at full speed.
type ThrottledStore struct {
	store   BlobStore
	sem     *semaphore.Weighted // nil if unbounded
	limiter *rate.Limiter       // nil if unlimited
}

// NewThrottledStore wraps store with the limits in cfg.
func NewThrottledStore(store BlobStore, cfg ThrottleConfig) *ThrottledStore {
	s := &ThrottledStore{store: store}

	if cfg.MaxConcurrent > 0 {
		s.sem = semaphore.NewWeighted(cfg.MaxConcurrent)
	}

	if cfg.BytesPerSec > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.BytesPerSec), int(cfg.BytesPerSec))
	}

	return s
}

func (s *ThrottledStore) acquire(ctx context.Context) error {
	if s.sem == nil {
		return nil
	}
	return s.sem.Acquire(ctx, 1)
}

func (s *ThrottledStore) release() {
	if s.sem != nil {
		s.sem.Release(1)
	}
}

// waitBytes blocks until the rate limit admits n bytes. Requests larger than
// the burst are admitted in burst-sized chunks.
func (s *ThrottledStore) waitBytes(ctx context.Context, n int) error {
	if s.limiter == nil {
		return nil
	}
	burst := s.limiter.Burst()
	for n > 0 {
		chunk := min(n, burst)
		if err := s.limiter.WaitN(ctx, chunk); err != nil {
			return err
		}
		n -= chunk
	}
	return nil
}

// Open opens a blob whose reads are throttled as well.
func (s *ThrottledStore) Open(ctx context.Context, name string) (Blob, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.release()

	b, err := s.store.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	return &throttledBlob{Blob: b, s: s}, nil
}

// Put waits for rate budget covering data, then writes it.
func (s *ThrottledStore) Put(ctx context.Context, name string, data []byte) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()

	if err := s.waitBytes(ctx, len(data)); err != nil {
		return err
	}
	return s.store.Put(ctx, name, data)
}

// Delete removes a blob.
func (s *ThrottledStore) Delete(ctx context.Context, name string) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()

	return s.store.Delete(ctx, name)
}

// List lists blobs.
func (s *ThrottledStore) List(ctx context.Context, prefix string) ([]string, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.release()

	return s.store.List(ctx, prefix)
}

type throttledBlob struct {
	Blob
	s *ThrottledStore
}

func (b *throttledBlob) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	if err := b.s.acquire(ctx); err != nil {
		return 0, err
	}
	defer b.s.release()

	if err := b.s.waitBytes(ctx, len(p)); err != nil {
		return 0, err
	}
	return b.Blob.ReadAt(ctx, p, off)
}
