package mergetree

import (
	"errors"
	"fmt"
)

// LogicError marks a broken internal invariant: the part build is defective,
// not unlucky. Callers must treat it as non-retryable.
type LogicError struct {
	Message string
}

func (e *LogicError) Error() string {
	return "logic error: " + e.Message
}

func logicErrorf(format string, args ...any) error {
	return &LogicError{Message: fmt.Sprintf(format, args...)}
}

// IsLogicError reports whether err is, or wraps, a LogicError.
func IsLogicError(err error) bool {
	var le *LogicError
	return errors.As(err, &le)
}

var (
	// ErrIncompletePart marks a part directory without a readable checksums
	// manifest. Such a directory never reached its commit point.
	ErrIncompletePart = errors.New("incomplete part: no readable checksums manifest")

	// ErrChecksumMismatch marks part content that does not match its
	// manifest entry.
	ErrChecksumMismatch = errors.New("checksum mismatch")
)
