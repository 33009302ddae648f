package walset

import (
	"log/slog"
	"strconv"
	"strings"

	gojson "github.com/goccy/go-json"
)

// Addition records that a WAL was created, or that its metadata changed.
type Addition struct {
	Number   Number
	Metadata Metadata
}

// Additions is an ordered batch of additions.
type Additions []Addition

// EncodeTo appends the encoded addition to dst and returns the extended slice.
func (a Addition) EncodeTo(dst []byte) []byte {
	return appendAddition(dst, a)
}

// DecodeFrom decodes an addition from the front of src and returns the bytes
// that follow it. On error a is left unchanged.
func (a *Addition) DecodeFrom(src []byte) ([]byte, error) {
	decoded, rest, err := decodeAddition(src)
	if err != nil {
		return nil, err
	}
	*a = decoded
	return rest, nil
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (a Addition) MarshalBinary() ([]byte, error) {
	return a.EncodeTo(nil), nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler. Unlike DecodeFrom,
// data must hold exactly one addition.
func (a *Addition) UnmarshalBinary(data []byte) error {
	decoded, rest, err := decodeAddition(data)
	if err != nil {
		return err
	}
	if len(rest) != 0 {
		return NewCorruption("WalAddition", strconv.Itoa(len(rest))+" trailing bytes", nil)
	}
	*a = decoded
	return nil
}

// String renders the addition for debugging. It is not a stable format.
func (a Addition) String() string {
	var sb strings.Builder
	sb.WriteString("log_number: ")
	sb.WriteString(a.Number.String())
	sb.WriteString(" synced_size_in_bytes: ")
	if size, ok := a.Metadata.SyncedSize(); ok {
		sb.WriteString(strconv.FormatUint(size, 10))
	} else {
		sb.WriteString("unknown")
	}
	sb.WriteString(" closed: ")
	if a.Metadata.IsClosed() {
		sb.WriteString("1")
	} else {
		sb.WriteString("0")
	}
	return sb.String()
}

type additionJSON struct {
	LogNumber         uint64  `json:"LogNumber"`
	SyncedSizeInBytes *uint64 `json:"SyncedSizeInBytes,omitempty"`
	Closed            bool    `json:"Closed"`
}

// MarshalJSON renders the addition for event logs.
func (a Addition) MarshalJSON() ([]byte, error) {
	v := additionJSON{LogNumber: uint64(a.Number), Closed: a.Metadata.IsClosed()}
	if size, ok := a.Metadata.SyncedSize(); ok {
		v.SyncedSizeInBytes = &size
	}
	return gojson.Marshal(v)
}

// LogValue implements slog.LogValuer.
func (a Addition) LogValue() slog.Value {
	attrs := []slog.Attr{slog.Uint64("log_number", uint64(a.Number))}
	if size, ok := a.Metadata.SyncedSize(); ok {
		attrs = append(attrs, slog.Uint64("synced_size_in_bytes", size))
	}
	attrs = append(attrs, slog.Bool("closed", a.Metadata.IsClosed()))
	return slog.GroupValue(attrs...)
}
