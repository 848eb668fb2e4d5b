package codec

// ReadCompactSize reads Bitcoin's self-delimiting CompactSize prefix: a
// leading byte selects whether the value is encoded in place (< 0xFD) or in
// a following 2/4/8-byte little-endian field (tags 0xFD/0xFE/0xFF). Each of
// the wide forms must encode a value that would not fit in a narrower form;
// otherwise the stream is rejected as non-canonical.
func (r *Reader) ReadCompactSize() (uint64, error) {
	tag, err := r.ReadByte()
	if err != nil {
		return 0, err
	}
	switch {
	case tag < 0xfd:
		return uint64(tag), nil
	case tag == 0xfd:
		v, err := r.ReadUint16LE()
		if err != nil {
			return 0, err
		}
		if v < 0xfd {
			return 0, ErrNonCanonical
		}
		return uint64(v), nil
	case tag == 0xfe:
		v, err := r.ReadUint32LE()
		if err != nil {
			return 0, err
		}
		if v < 0x10000 {
			return 0, ErrNonCanonical
		}
		return uint64(v), nil
	default: // tag == 0xff
		v, err := r.ReadUint64LE()
		if err != nil {
			return 0, err
		}
		if v < 0x100000000 {
			return 0, ErrNonCanonical
		}
		return v, nil
	}
}

// EncodeCompactSize is the inverse of ReadCompactSize, used only by tests
// to exercise the round-trip property (spec: encode(decode(v)) == v).
func EncodeCompactSize(v uint64) []byte {
	switch {
	case v < 0xfd:
		return []byte{byte(v)}
	case v <= 0xffff:
		return []byte{0xfd, byte(v), byte(v >> 8)}
	case v <= 0xffffffff:
		return []byte{0xfe, byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
	default:
		out := make([]byte, 9)
		out[0] = 0xff
		for i := 0; i < 8; i++ {
			out[1+i] = byte(v >> (8 * i))
		}
		return out
	}
}
