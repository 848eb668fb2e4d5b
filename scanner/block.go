package scanner

import (
	"encoding/binary"
	"os"
)

// readEnvelopeAndPayload reads the 8-byte magic+size envelope that
// precedes payloadOffset, then returns exactly size bytes starting at
// payloadOffset. Magic verification is optional; the consensus decoder
// that follows is self-delimiting and does not strictly need the size,
// but reading exactly that many bytes keeps decode failures from reading
// past the intended record.
func readEnvelopeAndPayload(f *os.File, path string, payloadOffset uint64, cfg Config) ([]byte, error) {
	if payloadOffset < 8 {
		return nil, newErr(Corrupt, path, nil, "payload offset too small for envelope", nil)
	}
	envelope := make([]byte, 8)
	if _, err := f.ReadAt(envelope, int64(payloadOffset-8)); err != nil {
		return nil, wrapIoErr(path, err)
	}
	if cfg.StrictMagic {
		var magic [4]byte
		copy(magic[:], envelope[:4])
		if magic != cfg.ExpectedMagic {
			return nil, newErr(Corrupt, path, nil, "network magic mismatch", nil)
		}
	}
	size := binary.LittleEndian.Uint32(envelope[4:8])

	payload := make([]byte, size)
	if _, err := f.ReadAt(payload, int64(payloadOffset)); err != nil {
		return nil, wrapIoErr(path, err)
	}
	return payload, nil
}
