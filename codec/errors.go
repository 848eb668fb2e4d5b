package codec

import "errors"

var (
	// ErrTruncated is returned when fewer bytes remain than a field requires.
	ErrTruncated = errors.New("codec: truncated")
	// ErrNonCanonical is returned when a CompactSize uses a wider prefix than
	// its value requires (e.g. 0xFD for a value below 0xFD).
	ErrNonCanonical = errors.New("codec: non-canonical CompactSize")
	// ErrAmountOverflow is returned when a decompressed amount exceeds the
	// maximum representable satoshi value (2^63 - 1).
	ErrAmountOverflow = errors.New("codec: amount overflow")
	// ErrVarintOverflow is returned when a core varint's continuation run
	// is long enough that the next 7-bit shift would wrap past 2^64.
	ErrVarintOverflow = errors.New("codec: varint overflow")
)
