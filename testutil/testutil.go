package testutil

import (
	"math/rand"
	"slices"
	"sync"

	"github.com/hupe1980/walset"
)

// RNG struct encapsulates the random number generator and seed.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed)
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Step is one WAL lifecycle event: an addition, or a deletion if Delete is set.
type Step struct {
	Delete   bool
	Addition walset.Addition
	Deletion walset.Deletion
}

// Apply applies the step to set.
func (s Step) Apply(set *walset.Set) error {
	if s.Delete {
		return set.DeleteWal(s.Deletion)
	}
	return set.AddWal(s.Addition)
}

// Number returns the WAL the step refers to.
func (s Step) Number() walset.Number {
	if s.Delete {
		return s.Deletion.Number
	}
	return s.Addition.Number
}

// History is a valid sequence of steps and the state it leads to.
type History struct {
	Steps []Step
	// Want maps every live WAL to its expected metadata.
	Want map[walset.Number]walset.Metadata
}

// Entries returns Want in ascending WAL order, in the shape of Set.Wals.
func (h History) Entries() []walset.Entry {
	entries := make([]walset.Entry, 0, len(h.Want))
	for n, md := range h.Want {
		entries = append(entries, walset.Entry{Number: n, Metadata: md})
	}
	slices.SortFunc(entries, func(a, b walset.Entry) int {
		switch {
		case a.Number < b.Number:
			return -1
		case a.Number > b.Number:
			return 1
		}
		return 0
	})
	return entries
}

// merge mirrors how a tracked open WAL absorbs an addition.
func merge(cur, update walset.Metadata) walset.Metadata {
	if size, ok := update.SyncedSize(); ok {
		cur.SetSyncedSize(size)
	}
	if update.IsClosed() {
		cur.SetClosed()
	}
	return cur
}

// randomMetadata returns metadata with a synced size about half the time.
func (r *RNG) randomMetadata(closed bool) walset.Metadata {
	var md walset.Metadata
	if r.rand.Intn(2) == 0 {
		md.SetSyncedSize(uint64(r.rand.Intn(1 << 20)))
	}
	if closed {
		md.SetClosed()
	}
	return md
}

// History generates n steps that are all legal in order: WALs are created
// open or closed, synced while open, closed, and deleted once closed. WAL
// numbers are allocated in increasing order, as a file-number allocator would.
func (r *RNG) History(n int) History {
	r.mu.Lock()
	defer r.mu.Unlock()

	h := History{Want: make(map[walset.Number]walset.Metadata)}
	var open, closed []walset.Number
	next := walset.Number(1)

	pick := func(list *[]walset.Number) walset.Number {
		i := r.rand.Intn(len(*list))
		num := (*list)[i]
		(*list)[i] = (*list)[len(*list)-1]
		*list = (*list)[:len(*list)-1]
		return num
	}

	for len(h.Steps) < n {
		switch op := r.rand.Intn(4); {
		case op == 0:
			num := next
			next += walset.Number(1 + r.rand.Intn(3))
			md := r.randomMetadata(r.rand.Intn(8) == 0)
			h.Steps = append(h.Steps, Step{Addition: walset.Addition{Number: num, Metadata: md}})
			h.Want[num] = md
			if md.IsClosed() {
				closed = append(closed, num)
			} else {
				open = append(open, num)
			}
		case op == 1 && len(open) > 0:
			num := open[r.rand.Intn(len(open))]
			md := walset.NewMetadata(uint64(r.rand.Intn(1 << 20)))
			h.Steps = append(h.Steps, Step{Addition: walset.Addition{Number: num, Metadata: md}})
			h.Want[num] = merge(h.Want[num], md)
		case op == 2 && len(open) > 0:
			num := pick(&open)
			md := r.randomMetadata(true)
			h.Steps = append(h.Steps, Step{Addition: walset.Addition{Number: num, Metadata: md}})
			h.Want[num] = merge(h.Want[num], md)
			closed = append(closed, num)
		case op == 3 && len(closed) > 0:
			num := pick(&closed)
			h.Steps = append(h.Steps, Step{Delete: true, Deletion: walset.Deletion{Number: num}})
			delete(h.Want, num)
		}
	}
	return h
}

// InvalidStep returns a step that must be rejected in the state h leads to:
// an addition to a closed WAL, a deletion of an open WAL, or a deletion of an
// untracked WAL. It reports false if h tracks no WAL to pick from and no
// untracked number is free, which cannot happen in practice.
func (r *RNG) InvalidStep(h History) (Step, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var open, closed []walset.Number
	for n, md := range h.Want {
		if md.IsClosed() {
			closed = append(closed, n)
		} else {
			open = append(open, n)
		}
	}
	slices.Sort(open)
	slices.Sort(closed)

	for range 16 {
		switch r.rand.Intn(3) {
		case 0:
			if len(closed) > 0 {
				num := closed[r.rand.Intn(len(closed))]
				return Step{Addition: walset.Addition{Number: num, Metadata: r.randomMetadata(r.rand.Intn(2) == 0)}}, true
			}
		case 1:
			if len(open) > 0 {
				return Step{Delete: true, Deletion: walset.Deletion{Number: open[r.rand.Intn(len(open))]}}, true
			}
		case 2:
			num := walset.Number(r.rand.Uint64())
			if _, tracked := h.Want[num]; !tracked {
				return Step{Delete: true, Deletion: walset.Deletion{Number: num}}, true
			}
		}
	}
	return Step{}, false
}
