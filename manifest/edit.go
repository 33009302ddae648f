package manifest

import (
	"fmt"
	"strings"

	"github.com/hupe1980/walset"
	"github.com/hupe1980/walset/internal/coding"
)

// Tags used in the version edit encoding.
const (
	tagLogNumber      uint32 = 2
	tagNextFileNumber uint32 = 3

	// Tags with this bit set are length-prefixed and may be skipped by
	// readers that do not know them.
	tagSafeIgnoreMask uint32 = 1 << 13

	tagComment     = tagSafeIgnoreMask | 3
	tagWalAddition = tagSafeIgnoreMask | 7
	tagWalDeletion = tagSafeIgnoreMask | 8
)

const opEdit = "manifest.Edit"

// Edit is a single version edit of the manifest.
type Edit struct {
	logNumber         walset.Number
	hasLogNumber      bool
	nextFileNumber    uint64
	hasNextFileNumber bool
	comment           string

	walAdditions walset.Additions
	walDeletions walset.Deletions
}

// SetLogNumber records the current WAL number.
func (e *Edit) SetLogNumber(n walset.Number) {
	e.logNumber = n
	e.hasLogNumber = true
}

// LogNumber returns the recorded WAL number, if any.
func (e *Edit) LogNumber() (walset.Number, bool) { return e.logNumber, e.hasLogNumber }

// SetNextFileNumber records the next file number to allocate.
func (e *Edit) SetNextFileNumber(n uint64) {
	e.nextFileNumber = n
	e.hasNextFileNumber = true
}

// NextFileNumber returns the recorded next file number, if any.
func (e *Edit) NextFileNumber() (uint64, bool) { return e.nextFileNumber, e.hasNextFileNumber }

// SetComment attaches a free-form comment.
func (e *Edit) SetComment(c string) { e.comment = c }

// Comment returns the comment.
func (e *Edit) Comment() string { return e.comment }

// AddWal appends a WAL addition.
func (e *Edit) AddWal(n walset.Number, md walset.Metadata) {
	e.walAdditions = append(e.walAdditions, walset.Addition{Number: n, Metadata: md})
}

// DeleteWal appends a WAL deletion.
func (e *Edit) DeleteWal(n walset.Number) {
	e.walDeletions = append(e.walDeletions, walset.Deletion{Number: n})
}

// WalAdditions returns the WAL additions in insertion order.
func (e *Edit) WalAdditions() walset.Additions { return e.walAdditions }

// WalDeletions returns the WAL deletions in insertion order.
func (e *Edit) WalDeletions() walset.Deletions { return e.walDeletions }

// IsWalManipulation reports whether the edit touches the WAL set.
func (e *Edit) IsWalManipulation() bool {
	return len(e.walAdditions) > 0 || len(e.walDeletions) > 0
}

// Apply applies the WAL additions and then the WAL deletions to set.
// It stops at the first error; edits already applied are not rolled back.
func (e *Edit) Apply(set *walset.Set) error {
	if err := set.AddWals(e.walAdditions); err != nil {
		return err
	}
	return set.DeleteWals(e.walDeletions)
}

// EncodeTo appends the encoded edit to dst.
func (e *Edit) EncodeTo(dst []byte) []byte {
	if e.hasLogNumber {
		dst = coding.AppendUvarint32(dst, tagLogNumber)
		dst = coding.AppendUvarint64(dst, uint64(e.logNumber))
	}
	if e.hasNextFileNumber {
		dst = coding.AppendUvarint32(dst, tagNextFileNumber)
		dst = coding.AppendUvarint64(dst, e.nextFileNumber)
	}
	if e.comment != "" {
		dst = coding.AppendUvarint32(dst, tagComment)
		dst = coding.AppendLengthPrefixed(dst, []byte(e.comment))
	}

	var scratch []byte
	for _, a := range e.walAdditions {
		scratch = a.EncodeTo(scratch[:0])
		dst = coding.AppendUvarint32(dst, tagWalAddition)
		dst = coding.AppendLengthPrefixed(dst, scratch)
	}
	for _, d := range e.walDeletions {
		scratch = d.EncodeTo(scratch[:0])
		dst = coding.AppendUvarint32(dst, tagWalDeletion)
		dst = coding.AppendLengthPrefixed(dst, scratch)
	}
	return dst
}

// DecodeFrom replaces e with the edit encoded in src.
// The whole input must be consumed. On error e is left unchanged.
func (e *Edit) DecodeFrom(src []byte) error {
	var out Edit
	r := coding.NewReader(src)

	for r.Len() > 0 {
		tag := r.Uvarint32()
		if err := r.Err(); err != nil {
			return walset.NewCorruption(opEdit, "error decoding tag", err)
		}

		switch tag {
		case tagLogNumber:
			out.logNumber = walset.Number(r.Uvarint64())
			out.hasLogNumber = true
			if err := r.Err(); err != nil {
				return walset.NewCorruption(opEdit, "error decoding log number", err)
			}
		case tagNextFileNumber:
			out.nextFileNumber = r.Uvarint64()
			out.hasNextFileNumber = true
			if err := r.Err(); err != nil {
				return walset.NewCorruption(opEdit, "error decoding next file number", err)
			}
		case tagComment:
			b := r.LengthPrefixed()
			if err := r.Err(); err != nil {
				return walset.NewCorruption(opEdit, "error decoding comment", err)
			}
			out.comment = string(b)
		case tagWalAddition:
			b := r.LengthPrefixed()
			if err := r.Err(); err != nil {
				return walset.NewCorruption(opEdit, "error decoding wal addition", err)
			}
			var a walset.Addition
			if err := a.UnmarshalBinary(b); err != nil {
				return err
			}
			out.walAdditions = append(out.walAdditions, a)
		case tagWalDeletion:
			b := r.LengthPrefixed()
			if err := r.Err(); err != nil {
				return walset.NewCorruption(opEdit, "error decoding wal deletion", err)
			}
			var d walset.Deletion
			if err := d.UnmarshalBinary(b); err != nil {
				return err
			}
			out.walDeletions = append(out.walDeletions, d)
		default:
			if tag&tagSafeIgnoreMask == 0 {
				return walset.NewCorruption(opEdit, fmt.Sprintf("unknown tag %d", tag), nil)
			}
			// Unknown but safe to ignore.
			r.LengthPrefixed()
			if err := r.Err(); err != nil {
				return walset.NewCorruption(opEdit, fmt.Sprintf("error skipping tag %d", tag), err)
			}
		}
	}

	*e = out
	return nil
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (e *Edit) MarshalBinary() ([]byte, error) {
	return e.EncodeTo(nil), nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (e *Edit) UnmarshalBinary(data []byte) error {
	return e.DecodeFrom(data)
}

// String returns a multi-line debug rendering of the edit.
func (e *Edit) String() string {
	var sb strings.Builder
	sb.WriteString("VersionEdit {")
	if e.hasLogNumber {
		fmt.Fprintf(&sb, "\n  LogNumber: %d", e.logNumber)
	}
	if e.hasNextFileNumber {
		fmt.Fprintf(&sb, "\n  NextFileNumber: %d", e.nextFileNumber)
	}
	if e.comment != "" {
		fmt.Fprintf(&sb, "\n  Comment: %q", e.comment)
	}
	for _, a := range e.walAdditions {
		fmt.Fprintf(&sb, "\n  WalAddition: %s", a)
	}
	for _, d := range e.walDeletions {
		fmt.Fprintf(&sb, "\n  WalDeletion: %s", d)
	}
	sb.WriteString("\n}\n")
	return sb.String()
}
