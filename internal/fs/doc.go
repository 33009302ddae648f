// Package fs is the seam between the manifest log and the disk.
//
// [LocalFS] opens real files. [FaultyFS] wraps another FileSystem and makes
// matching files fail their writes, syncs or closes, which is how the log's
// torn-write and sync-failure paths are tested.
package fs
