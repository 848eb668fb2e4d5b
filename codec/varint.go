package codec

import "math"

// maxVarintCoreShift is the largest value n may hold before another 7-bit
// shift would overflow uint64. A stream that demands a further shift past
// this point cannot represent a value below 2^64 and is rejected as
// corrupt rather than silently wrapped.
const maxVarintCoreShift = math.MaxUint64 >> 7

// ReadVarintCore reads Bitcoin Core's LevelDB-metadata variable-length
// integer (distinct from CompactSize): 7 payload bits per byte, MSB first,
// with the continuation bit (0x80) set on every byte but the last. Each
// continued byte contributes an implicit "+1", which is what makes the
// encoding canonical — without it, 0x80 0x00 and 0x00 would both decode
// to 0.
func (r *Reader) ReadVarintCore() (uint64, error) {
	var n uint64
	for {
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		if n > maxVarintCoreShift {
			return 0, ErrVarintOverflow
		}
		n = (n << 7) | uint64(b&0x7f)
		if b&0x80 != 0 {
			n++
		} else {
			return n, nil
		}
	}
}
