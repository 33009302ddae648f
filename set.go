package walset

import (
	"iter"
	"strings"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
)

// Entry is one tracked WAL.
type Entry struct {
	Number   Number
	Metadata Metadata
}

// Set is the current set of WALs recorded in the manifest.
//
// When a WAL is created, synced, closed or retired, an edit is logged to the
// manifest and the corresponding Addition or Deletion is applied to the Set.
// The same path runs during recovery, when the manifest is replayed.
//
// The zero value is an empty set ready to use.
//
// Set is not safe for concurrent use; it needs external synchronization such
// as the lock that guards the surrounding version state.
type Set struct {
	wals map[Number]Metadata
	// numbers mirrors the keys of wals and provides ordered iteration.
	numbers *roaring64.Bitmap

	logger  *Logger
	metrics MetricsCollector
}

// New creates an empty Set.
func New(optFns ...Option) *Set {
	opts := options{
		logger:  NoopLogger(),
		metrics: NoopMetricsCollector{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Set{
		wals:    make(map[Number]Metadata),
		numbers: roaring64.New(),
		logger:  opts.logger,
		metrics: opts.metrics,
	}
}

func (s *Set) init() {
	if s.wals == nil {
		s.wals = make(map[Number]Metadata)
	}
	if s.numbers == nil {
		s.numbers = roaring64.New()
	}
}

// AddWal applies a single addition.
//
// An untracked WAL is inserted as is, open or already closed. A tracked open
// WAL has the addition's metadata merged in: it becomes closed if the addition
// says so, and a known synced size replaces the current one. Sizes are not
// checked for monotonicity.
//
// Adding to a closed WAL is a corruption error and leaves the set unchanged.
func (s *Set) AddWal(wal Addition) error {
	s.init()

	err := s.addWal(wal)
	if s.logger != nil {
		s.logger.LogAddWal(wal, err)
	}
	if s.metrics != nil {
		s.metrics.RecordAddWal(err)
		if err == nil {
			s.metrics.RecordTracked(len(s.wals))
		}
	}
	return err
}

func (s *Set) addWal(wal Addition) error {
	existing, ok := s.wals[wal.Number]
	if !ok {
		s.wals[wal.Number] = wal.Metadata
		s.numbers.Add(uint64(wal.Number))
		return nil
	}
	if existing.IsClosed() {
		return NewCorruption("WalSet.AddWal", "WAL "+wal.Number.String()+" is closed, cannot add more", nil)
	}
	existing.merge(wal.Metadata)
	s.wals[wal.Number] = existing
	return nil
}

// AddWals applies additions in order and stops at the first failure.
//
// Additions before the failing one stay applied; callers treat any error as
// fatal to recovery rather than retrying part of the batch.
func (s *Set) AddWals(wals []Addition) error {
	for _, wal := range wals {
		if err := s.AddWal(wal); err != nil {
			return err
		}
	}
	return nil
}

// DeleteWal applies a single deletion. The WAL must be tracked and closed,
// otherwise a corruption error is returned and the set is unchanged.
func (s *Set) DeleteWal(wal Deletion) error {
	s.init()

	err := s.deleteWal(wal)
	if s.logger != nil {
		s.logger.LogDeleteWal(wal, err)
	}
	if s.metrics != nil {
		s.metrics.RecordDeleteWal(err)
		if err == nil {
			s.metrics.RecordTracked(len(s.wals))
		}
	}
	return err
}

func (s *Set) deleteWal(wal Deletion) error {
	const op = "WalSet.DeleteWal"

	existing, ok := s.wals[wal.Number]
	if !ok {
		return NewCorruption(op, "WAL "+wal.Number.String()+" must exist before deletion", nil)
	}
	if !existing.IsClosed() {
		return NewCorruption(op, "WAL "+wal.Number.String()+" must be closed before deletion", nil)
	}
	delete(s.wals, wal.Number)
	s.numbers.Remove(uint64(wal.Number))
	return nil
}

// DeleteWals applies deletions in order and stops at the first failure.
func (s *Set) DeleteWals(wals []Deletion) error {
	for _, wal := range wals {
		if err := s.DeleteWal(wal); err != nil {
			return err
		}
	}
	return nil
}

// Reset drops every tracked WAL. It is used before reloading the set from a
// manifest snapshot.
func (s *Set) Reset() {
	dropped := len(s.wals)
	s.wals = make(map[Number]Metadata)
	if s.numbers == nil {
		s.numbers = roaring64.New()
	} else {
		s.numbers.Clear()
	}
	if s.logger != nil {
		s.logger.LogReset(dropped)
	}
	if s.metrics != nil {
		s.metrics.RecordReset()
		s.metrics.RecordTracked(0)
	}
}

// Get returns the metadata of a tracked WAL.
func (s *Set) Get(n Number) (Metadata, bool) {
	m, ok := s.wals[n]
	return m, ok
}

// Len returns the number of tracked WALs.
func (s *Set) Len() int { return len(s.wals) }

// Wals returns a snapshot of the tracked WALs ordered by number.
func (s *Set) Wals() []Entry {
	entries := make([]Entry, 0, len(s.wals))
	for n, m := range s.All() {
		entries = append(entries, Entry{Number: n, Metadata: m})
	}
	return entries
}

// All iterates over the tracked WALs in ascending number order.
// The set must not be modified during iteration.
func (s *Set) All() iter.Seq2[Number, Metadata] {
	return func(yield func(Number, Metadata) bool) {
		if s.numbers == nil {
			return
		}
		it := s.numbers.Iterator()
		for it.HasNext() {
			n := Number(it.Next())
			if !yield(n, s.wals[n]) {
				return
			}
		}
	}
}

// Numbers returns a copy of the tracked WAL numbers.
func (s *Set) Numbers() *roaring64.Bitmap {
	if s.numbers == nil {
		return roaring64.New()
	}
	return s.numbers.Clone()
}

// String renders the set for debugging, one WAL per line.
func (s *Set) String() string {
	var sb strings.Builder
	for n, m := range s.All() {
		sb.WriteString(Addition{Number: n, Metadata: m}.String())
		sb.WriteByte('\n')
	}
	return sb.String()
}
