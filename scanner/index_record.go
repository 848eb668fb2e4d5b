package scanner

import (
	"bytes"

	"github.com/btcsuite/btcd/wire"

	"bcscan.dev/scanner/codec"
)

// BlockStatus is the bit set stored alongside each block-index record.
// Its low three bits are an ordinal validity level, not independent
// flags; HAVE_DATA, HAVE_UNDO, FAILED_VALID, and FAILED_CHILD occupy
// higher, independent bits.
type BlockStatus uint64

const (
	StatusValidHeader       BlockStatus = 1
	StatusValidTree         BlockStatus = 2
	StatusValidTransactions BlockStatus = 3
	StatusValidChain        BlockStatus = 4
	StatusValidScripts      BlockStatus = 5

	statusValidityMask BlockStatus = 0x07

	StatusHaveData    BlockStatus = 1 << 3 // 8
	StatusHaveUndo    BlockStatus = 1 << 4 // 16
	StatusFailedValid BlockStatus = 1 << 5 // 32
	StatusFailedChild BlockStatus = 1 << 6 // 64
)

// ValidityLevel returns the ordinal validity level encoded in the low
// three bits of the status (0-7; the named levels go up to
// StatusValidScripts = 5).
func (s BlockStatus) ValidityLevel() BlockStatus { return s & statusValidityMask }

func (s BlockStatus) HaveData() bool    { return s&StatusHaveData != 0 }
func (s BlockStatus) HaveUndo() bool    { return s&StatusHaveUndo != 0 }
func (s BlockStatus) FailedValid() bool { return s&StatusFailedValid != 0 }
func (s BlockStatus) FailedChild() bool { return s&StatusFailedChild != 0 }

// hasFileInfo reports whether the file field follows num_transactions in
// the on-disk record; block_offset and undo_offset are each gated by their
// own flag.
func (s BlockStatus) hasFileInfo() bool { return s.HaveData() || s.HaveUndo() }

// BlockIndexRecord is the decoded form of one block-index value. File,
// BlockOffset, and UndoOffset are only meaningful when Status reports
// the corresponding presence flag; readers must check Status before
// trusting them.
type BlockIndexRecord struct {
	Version         uint64
	Height          uint32
	Status          BlockStatus
	NumTransactions uint32
	File            uint32
	BlockOffset     uint64
	UndoOffset      uint64
	Header          wire.BlockHeader
}

// decodeBlockIndexRecord decodes raw (already de-obfuscated) bytes per the
// block-index record encoding: a version floor check, then height,
// status, and num_transactions, then a variable-presence tail driven by
// status, then the 80-byte consensus header. The cursor must land exactly
// at the end of raw; any trailing byte means a corrupt or unsupported
// record.
func decodeBlockIndexRecord(raw []byte, versionFloor uint64) (*BlockIndexRecord, error) {
	r := codec.NewReader(raw)

	version, err := r.ReadVarintCore()
	if err != nil {
		return nil, newErr(Corrupt, "", nil, "read record version", err)
	}
	if version < versionFloor {
		return nil, newErr(UnsupportedVersion, "", nil, "block-index record version below floor", nil)
	}

	height, err := r.ReadVarintCore()
	if err != nil {
		return nil, newErr(Corrupt, "", nil, "read record height", err)
	}

	statusRaw, err := r.ReadVarintCore()
	if err != nil {
		return nil, newErr(Corrupt, "", nil, "read record status", err)
	}
	status := BlockStatus(statusRaw)

	numTx, err := r.ReadVarintCore()
	if err != nil {
		return nil, newErr(Corrupt, "", nil, "read record num_transactions", err)
	}

	rec := &BlockIndexRecord{
		Version:         version,
		Height:          uint32(height),
		Status:          status,
		NumTransactions: uint32(numTx),
	}

	if status.hasFileInfo() {
		file, err := r.ReadVarintCore()
		if err != nil {
			return nil, newErr(Corrupt, "", nil, "read record file index", err)
		}
		rec.File = uint32(file)
	}
	if status.HaveData() {
		off, err := r.ReadVarintCore()
		if err != nil {
			return nil, newErr(Corrupt, "", nil, "read record block offset", err)
		}
		rec.BlockOffset = off
	}
	if status.HaveUndo() {
		off, err := r.ReadVarintCore()
		if err != nil {
			return nil, newErr(Corrupt, "", nil, "read record undo offset", err)
		}
		rec.UndoOffset = off
	}

	headerBytes, err := r.ReadBytes(80)
	if err != nil {
		return nil, newErr(Corrupt, "", nil, "read record header", err)
	}
	if err := rec.Header.Deserialize(bytes.NewReader(headerBytes)); err != nil {
		return nil, newErr(Corrupt, "", nil, "decode record header", err)
	}

	if !r.AtEnd() {
		return nil, newErr(Corrupt, "", nil, "trailing bytes after block-index record", nil)
	}

	return rec, nil
}
