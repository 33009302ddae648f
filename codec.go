package walset

import (
	"strconv"

	"github.com/hupe1980/walset/internal/coding"
)

// AdditionTag identifies an optional field of an encoded Addition.
//
// These values are persisted in manifests and MUST NOT change. New tags are
// appended; readers that do not know a tag reject the record.
type AdditionTag uint32

const (
	// TagTerminate ends the field list.
	TagTerminate AdditionTag = 1
	// TagSyncedSize is followed by the synced size in bytes as a varint64.
	TagSyncedSize AdditionTag = 2
	// TagClosed marks the WAL closed. It has no payload.
	TagClosed AdditionTag = 3
)

// String returns the tag name.
func (t AdditionTag) String() string {
	switch t {
	case TagTerminate:
		return "Terminate"
	case TagSyncedSize:
		return "SyncedSize"
	case TagClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

func appendAddition(dst []byte, a Addition) []byte {
	dst = coding.AppendUvarint64(dst, uint64(a.Number))
	if size, ok := a.Metadata.SyncedSize(); ok {
		dst = coding.AppendUvarint32(dst, uint32(TagSyncedSize))
		dst = coding.AppendUvarint64(dst, size)
	}
	if a.Metadata.IsClosed() {
		dst = coding.AppendUvarint32(dst, uint32(TagClosed))
	}
	return coding.AppendUvarint32(dst, uint32(TagTerminate))
}

func decodeAddition(src []byte) (Addition, []byte, error) {
	const op = "WalAddition"

	r := coding.NewReader(src)
	number := r.Uvarint64()
	if err := r.Err(); err != nil {
		return Addition{}, nil, NewCorruption(op, "error decoding WAL log number", err)
	}

	var meta Metadata
	for {
		tag := AdditionTag(r.Uvarint32())
		if err := r.Err(); err != nil {
			return Addition{}, nil, NewCorruption(op, "error decoding tag", err)
		}
		switch tag {
		case TagTerminate:
			return Addition{Number: Number(number), Metadata: meta}, r.Remaining(), nil
		case TagSyncedSize:
			size := r.Uvarint64()
			if err := r.Err(); err != nil {
				return Addition{}, nil, NewCorruption(op, "error decoding WAL file size", err)
			}
			meta.SetSyncedSize(size)
		case TagClosed:
			meta.SetClosed()
		default:
			return Addition{}, nil, NewCorruption(op, "unknown tag "+strconv.FormatUint(uint64(tag), 10), nil)
		}
	}
}

func appendDeletion(dst []byte, d Deletion) []byte {
	return coding.AppendUvarint64(dst, uint64(d.Number))
}

func decodeDeletion(src []byte) (Deletion, []byte, error) {
	r := coding.NewReader(src)
	number := r.Uvarint64()
	if err := r.Err(); err != nil {
		return Deletion{}, nil, NewCorruption("WalDeletion", "error decoding WAL log number", err)
	}
	return Deletion{Number: Number(number)}, r.Remaining(), nil
}
