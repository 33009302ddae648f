// Package walset tracks the write-ahead-log files known to a storage engine's
// manifest, and encodes the records that change that set.
//
// # Records
//
// An [Addition] announces that a WAL exists, or carries updated metadata for
// it (a new synced size, or that it is now closed). A [Deletion] retires a
// closed WAL. Both encode to a compact tagged binary form that is persisted
// inside manifest version edits:
//
//	Addition: varint64 number { varint32 tag [payload] } varint32 1
//	          tag 2 = synced size (varint64), tag 3 = closed (no payload)
//	Deletion: varint64 number
//
// Tags are part of the on-disk format. They are never renumbered; new ones
// are only appended. Decoders reject any tag they do not know.
//
// # Set
//
// [Set] applies additions and deletions in log order and rejects transitions
// that cannot come from a consistent manifest:
//
//   - adding to a WAL that is already closed
//   - deleting a WAL that is not tracked
//   - deleting a WAL that is still open
//
// Every rejection is a corruption error (see [ErrCorruption]). Callers replaying
// a manifest must treat it as fatal to recovery.
//
// # Thread Safety
//
// Set is not safe for concurrent use. It is meant to live inside a larger
// version state that is already guarded by a single lock, and callers must hold
// that lock across every call.
package walset
