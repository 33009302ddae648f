package walset

import "strconv"

// Number identifies a WAL file. Numbers are assigned monotonically by the
// engine's file-number allocator and never reused.
type Number uint64

// String implements fmt.Stringer.
func (n Number) String() string {
	return strconv.FormatUint(uint64(n), 10)
}

// Metadata describes the observable state of one WAL.
//
// The zero value has an unknown synced size and is open.
type Metadata struct {
	syncedSize    uint64
	hasSyncedSize bool
	closed        bool
}

// NewMetadata returns open metadata with a known synced size.
func NewMetadata(syncedSize uint64) Metadata {
	return Metadata{syncedSize: syncedSize, hasSyncedSize: true}
}

// IsClosed reports whether the WAL is closed.
func (m Metadata) IsClosed() bool { return m.closed }

// SetClosed marks the WAL closed. There is no way to reopen it.
func (m *Metadata) SetClosed() { m.closed = true }

// HasSyncedSize reports whether a synced size has been recorded.
func (m Metadata) HasSyncedSize() bool { return m.hasSyncedSize }

// SetSyncedSize records the number of bytes known to be synced.
func (m *Metadata) SetSyncedSize(n uint64) {
	m.syncedSize = n
	m.hasSyncedSize = true
}

// SyncedSize returns the synced size and whether it is known.
func (m Metadata) SyncedSize() (uint64, bool) {
	return m.syncedSize, m.hasSyncedSize
}

// merge folds an update for the same WAL into m. The closed flag only ever
// moves to true; a known synced size in the update replaces the current one.
func (m *Metadata) merge(update Metadata) {
	if update.closed {
		m.closed = true
	}
	if update.hasSyncedSize {
		m.syncedSize = update.syncedSize
		m.hasSyncedSize = true
	}
}
