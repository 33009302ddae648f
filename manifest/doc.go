// Package manifest persists changes to a walset.Set.
//
// # Overview
//
// An Edit is one version edit. It carries WAL additions and deletions plus a
// few bookkeeping fields. Edits are appended to a manifest log by a Writer and
// read back in order by a Reader. Recover rebuilds a Set from the log,
// optionally starting from the latest checkpoint.
//
// # Log Format
//
//	Header (12 bytes):
//	  Magic   (8 bytes) - "WALSETMF"
//	  Version (4 bytes) - Format version (currently 1)
//
//	Record:
//	  Checksum (4 bytes) - CRC32-IEEE of Length and Payload
//	  Length   (4 bytes) - Payload length in bytes
//	  Payload            - Encoded Edit
//
// All integers are little endian. A record that is cut short, fails its
// checksum or does not decode is reported as walset.ErrCorruption.
//
// # Checkpoints
//
// A CheckpointStore snapshots a Set into CHECKPOINT-NNNNNN.bin blobs and then
// updates the CURRENT pointer. Each checkpoint records the log offset it
// covers, so recovery only replays the log tail.
//
// # Thread Safety
//
// Writer and CheckpointStore methods are safe for concurrent use.
// Reader and Edit are not.
package manifest
