package bgpls

import (
	"errors"
	"fmt"
)

// Decode failure kinds. Callers discard the attribute on any of these;
// protocol-level consequences (notify, session handling) are out of scope
// here and belong to whatever produced the buffer.
var (
	// ErrTruncated: the buffer ran out before a declared or fixed-size
	// field could be read.
	ErrTruncated = errors.New("bgpls: truncated")

	// ErrLengthMismatch: a declared TLV length is outside the valid set
	// for that type (e.g. IGP Router-ID length not in {4,6,7,8}).
	ErrLengthMismatch = errors.New("bgpls: length mismatch")

	// ErrUnknownType: an unrecognized code where one cannot be skipped.
	ErrUnknownType = errors.New("bgpls: unknown type")

	// ErrStructural: the outer TLV type differs from what the entry
	// point expects.
	ErrStructural = errors.New("bgpls: structural mismatch")
)

func truncatedErr(what string, need, have int) error {
	return fmt.Errorf("%w: %s needs %d bytes, %d available", ErrTruncated, what, need, have)
}

func lengthErr(what string, got uint16) error {
	return fmt.Errorf("%w: %s has invalid length %d", ErrLengthMismatch, what, got)
}
