// Package codec implements the small set of binary-encoding primitives that
// Bitcoin Core's on-disk formats need but that consensus wire formats do not:
// CompactSize, the LevelDB-metadata "core" varint, amount (de)compression,
// and the chainstate/block-index XOR obfuscation scheme.
package codec

import "fmt"

// Reader is a forward-only cursor over an in-memory byte slice, in the
// style of a linear decoder that advances past each field it reads. It
// wraps the caller's slice without copying it; byte ranges returned by
// ReadBytes are fresh copies that do not alias it.
type Reader struct {
	b   []byte
	pos int
}

// NewReader wraps b for sequential decoding starting at offset 0.
func NewReader(b []byte) *Reader {
	return &Reader{b: b}
}

// Pos returns the current read offset.
func (r *Reader) Pos() int { return r.pos }

// Len returns the total length of the wrapped slice.
func (r *Reader) Len() int { return len(r.b) }

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int { return len(r.b) - r.pos }

// AtEnd reports whether the cursor has consumed the entire slice.
func (r *Reader) AtEnd() bool { return r.pos == len(r.b) }

// ReadByte reads a single byte, advancing the cursor by one.
func (r *Reader) ReadByte() (byte, error) {
	if r.Remaining() < 1 {
		return 0, fmt.Errorf("%w: expected 1 byte, have %d", ErrTruncated, r.Remaining())
	}
	b := r.b[r.pos]
	r.pos++
	return b, nil
}

// ReadBytes reads exactly n bytes and returns a fresh copy (so the caller
// may hold onto it independently of the Reader's backing slice).
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: negative length %d", ErrTruncated, n)
	}
	if r.Remaining() < n {
		return nil, fmt.Errorf("%w: expected %d bytes, have %d", ErrTruncated, n, r.Remaining())
	}
	out := make([]byte, n)
	copy(out, r.b[r.pos:r.pos+n])
	r.pos += n
	return out, nil
}

// ReadUint16LE reads a little-endian uint16.
func (r *Reader) ReadUint16LE() (uint16, error) {
	b, err := r.ReadBytes(2)
	if err != nil {
		return 0, err
	}
	return uint16(b[0]) | uint16(b[1])<<8, nil
}

// ReadUint32LE reads a little-endian uint32.
func (r *Reader) ReadUint32LE() (uint32, error) {
	b, err := r.ReadBytes(4)
	if err != nil {
		return 0, err
	}
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24, nil
}

// ReadUint64LE reads a little-endian uint64.
func (r *Reader) ReadUint64LE() (uint64, error) {
	b, err := r.ReadBytes(8)
	if err != nil {
		return 0, err
	}
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v, nil
}
