// Package blobstore provides the storage abstraction for walset checkpoints.
//
// BlobStore is the interface for reading and writing immutable blobs.
// Implementations must be safe for concurrent use.
//
// # Built-in Implementations
//
//   - MemoryStore: in-process map, for tests
//   - LocalStore: local filesystem, atomic Put via rename
//   - minio.Store: MinIO and other S3-compatible servers
//   - s3.Store: Amazon S3
//   - s3.DDBCommitStore: S3 plus a DynamoDB table for atomic CURRENT updates
//
// ThrottledStore wraps any of them to bound concurrency and throughput.
//
// # Custom Implementations
//
//	type BlobStore interface {
//	    Open(ctx, name) (Blob, error)
//	    Put(ctx, name, data) error  // Atomic write
//	    Delete(ctx, name) error     // Deleting a missing blob is not an error
//	    List(ctx, prefix) ([]string, error)
//	}
package blobstore
