package tracefmt

import (
	"errors"
	"fmt"
)

var (
	ErrTruncatedInput = errors.New("truncated input")
	ErrSizeMismatch   = errors.New("size mismatch")
)

// TruncatedInputError reports a buffer too short to hold a header and footer.
type TruncatedInputError struct {
	Expected int64
	Actual   int64
}

func (e *TruncatedInputError) Error() string {
	return fmt.Sprintf("tracefmt: these binary data are not large enough to hold a trace: "+
		"expected size = at least %d bytes, actual size = %d bytes", e.Expected, e.Actual)
}

func (e *TruncatedInputError) Is(target error) bool { return target == ErrTruncatedInput }

// SizeMismatchError reports a buffer whose length disagrees with the
// header's event count.
type SizeMismatchError struct {
	Expected int64
	Actual   int64
}

func (e *SizeMismatchError) Error() string {
	return fmt.Sprintf("tracefmt: these binary data do not represent a trace: "+
		"expected size = %d bytes, actual size = %d bytes", e.Expected, e.Actual)
}

func (e *SizeMismatchError) Is(target error) bool { return target == ErrSizeMismatch }
