package walset

import (
	"log/slog"
	"strconv"

	gojson "github.com/goccy/go-json"
)

// Deletion records that a closed WAL was retired and should no longer be
// tracked.
type Deletion struct {
	Number Number
}

// Deletions is an ordered batch of deletions.
type Deletions []Deletion

// EncodeTo appends the encoded deletion to dst and returns the extended slice.
func (d Deletion) EncodeTo(dst []byte) []byte {
	return appendDeletion(dst, d)
}

// DecodeFrom decodes a deletion from the front of src and returns the bytes
// that follow it. On error d is left unchanged.
func (d *Deletion) DecodeFrom(src []byte) ([]byte, error) {
	decoded, rest, err := decodeDeletion(src)
	if err != nil {
		return nil, err
	}
	*d = decoded
	return rest, nil
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (d Deletion) MarshalBinary() ([]byte, error) {
	return d.EncodeTo(nil), nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (d *Deletion) UnmarshalBinary(data []byte) error {
	decoded, rest, err := decodeDeletion(data)
	if err != nil {
		return err
	}
	if len(rest) != 0 {
		return NewCorruption("WalDeletion", strconv.Itoa(len(rest))+" trailing bytes", nil)
	}
	*d = decoded
	return nil
}

func (d Deletion) String() string {
	return "log_number: " + d.Number.String()
}

// MarshalJSON renders the deletion for event logs.
func (d Deletion) MarshalJSON() ([]byte, error) {
	return gojson.Marshal(struct {
		LogNumber uint64 `json:"LogNumber"`
	}{LogNumber: uint64(d.Number)})
}

// LogValue implements slog.LogValuer.
func (d Deletion) LogValue() slog.Value {
	return slog.GroupValue(slog.Uint64("log_number", uint64(d.Number)))
}
