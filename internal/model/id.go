// Package model defines the structured trace representation that every
// input kind is reconciled into.
package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidID is returned by ParseID for tokens that are not a 0x-prefixed
// hex number that fits in 64 bits.
var ErrInvalidID = errors.New("model: invalid id")

// ID is a 64-bit session, process, thread, or function identifier.
// Binary traces carry ids as raw integers; structured traces carry them as
// String() tokens so both origins compare equal.
type ID uint64

// String renders the canonical token: "0x" + 16 lowercase hex digits.
func (id ID) String() string {
	return fmt.Sprintf("0x%016x", uint64(id))
}

// ParseID parses a 0x-prefixed hex token. Shorter forms ("0xa") are accepted.
func ParseID(s string) (ID, error) {
	hex, ok := strings.CutPrefix(s, "0x")
	if !ok || hex == "" {
		return 0, fmt.Errorf("%w: %q", ErrInvalidID, s)
	}
	v, err := strconv.ParseUint(hex, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidID, s)
	}
	return ID(v), nil
}
