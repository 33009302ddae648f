package walset

import (
	"errors"
	"fmt"
)

// ErrCorruption classifies errors caused by malformed encodings or by event
// sequences that no consistent manifest can produce.
//
// Use errors.Is(err, ErrCorruption) to test for it.
var ErrCorruption = errors.New("corruption")

// CorruptionError describes a corruption failure.
//
// The underlying decode error (if any) can be accessed via errors.Unwrap.
type CorruptionError struct {
	// Op names the component that detected the problem, e.g. "WalSet.AddWal".
	Op  string
	Msg string
	Err error
}

// NewCorruption returns a CorruptionError for op.
func NewCorruption(op, msg string, cause error) *CorruptionError {
	return &CorruptionError{Op: op, Msg: msg, Err: cause}
}

func (e *CorruptionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("corruption: %s: %s: %v", e.Op, e.Msg, e.Err)
	}
	return fmt.Sprintf("corruption: %s: %s", e.Op, e.Msg)
}

func (e *CorruptionError) Unwrap() error { return e.Err }

// Is makes every CorruptionError match ErrCorruption.
func (e *CorruptionError) Is(target error) bool { return target == ErrCorruption }

// IsCorruption reports whether err is a corruption error.
func IsCorruption(err error) bool {
	return errors.Is(err, ErrCorruption)
}
