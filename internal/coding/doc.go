// Package coding provides the varint and length-prefixed primitives used by
// the WAL record and manifest edit encodings.
//
// Varints are unsigned LEB128, the same layout as encoding/binary's Uvarint
// and as the manifest format of LevelDB-derived engines. Length-prefixed
// fields are a varint32 length followed by that many bytes.
//
// Writers are append-style helpers. Reader is a cursor with a sticky error:
// once a read fails every subsequent read returns a zero value and Err
// reports the first failure.
package coding
