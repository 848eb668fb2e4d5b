// Package scanner is the top-level facade: it opens a Bitcoin Core
// datadir's two embedded stores, discovers the tip and genesis block, and
// materializes typed block-index records, blocks, and undo data from the
// (file, offset) pointers they carry.
package scanner

import (
	"bytes"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"bcscan.dev/scanner/store"
	"bcscan.dev/scanner/undo"
)

// BlockHash identifies a block. Internally it is the same 32-byte raw
// little-endian digest Bitcoin Core stores on disk; chainhash.Hash's own
// String method already renders the conventional big-endian display form.
type BlockHash = chainhash.Hash

// Block is a standard Bitcoin block: header plus transactions, decoded
// via consensus encoding.
type Block = wire.MsgBlock

// Scanner is a single-owner, read-only handle on one datadir. It holds
// exclusive locks on both embedded stores for its entire lifetime; the
// tip hash is sampled once at construction and never re-read.
type Scanner struct {
	cfg   Config
	store *store.Store

	blkCache *fileCache
	revCache *fileCache

	tipHash        BlockHash
	lastFileNumber uint32

	genesis     *Block
	genesisHash BlockHash
}

// New opens a Scanner against cfg.DataDir: both embedded stores, the tip
// hash, the last flat-file number, and the genesis block (always at the
// start of blk00000.dat). A store held by a running node fails fast with
// a StoreLocked error.
func New(cfg Config) (*Scanner, error) {
	if cfg.MaxOpenFlatFiles <= 0 {
		cfg.MaxOpenFlatFiles = 8
	}
	if cfg.VersionFloor == 0 {
		cfg.VersionFloor = 220000
	}

	st, err := store.Open(blocksIndexDir(cfg.DataDir), chainStateDir(cfg.DataDir))
	if err != nil {
		return nil, wrapStoreErr(err)
	}

	s := &Scanner{
		cfg:      cfg,
		store:    st,
		blkCache: newFileCache(cfg.DataDir, "blk", cfg.MaxOpenFlatFiles),
		revCache: newFileCache(cfg.DataDir, "rev", cfg.MaxOpenFlatFiles),
	}

	tip, err := st.TipHash()
	if err != nil {
		_ = s.Close()
		return nil, wrapStoreErr(err)
	}
	s.tipHash = BlockHash(tip)

	n, err := st.LastFileNumber()
	if err != nil {
		_ = s.Close()
		return nil, wrapStoreErr(err)
	}
	s.lastFileNumber = n

	genesis, genesisHash, err := s.readGenesis()
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	s.genesis = genesis
	s.genesisHash = genesisHash

	return s, nil
}

func (s *Scanner) readGenesis() (*Block, BlockHash, error) {
	path := flatFilePath(s.cfg.DataDir, "blk", 0)
	f, err := s.blkCache.get(0)
	if err != nil {
		return nil, BlockHash{}, wrapIoErr(path, err)
	}
	// The genesis payload starts at offset 8: the envelope occupies the
	// first 8 bytes of the file, with no bytes preceding it.
	payload, err := readEnvelopeAndPayload(f, path, 8, s.cfg)
	if err != nil {
		return nil, BlockHash{}, err
	}
	blk := &Block{}
	if err := blk.Deserialize(bytes.NewReader(payload)); err != nil {
		return nil, BlockHash{}, newErr(Corrupt, path, nil, "decode genesis block", err)
	}
	return blk, blk.Header.BlockHash(), nil
}

// BlockIndexRecord fetches and decodes the block-index record for hash.
func (s *Scanner) BlockIndexRecord(hash BlockHash) (*BlockIndexRecord, error) {
	raw, err := s.store.GetBlockIndexRecordBytes(hash)
	if err != nil {
		return nil, wrapStoreErr(err)
	}
	return decodeBlockIndexRecord(raw, s.cfg.VersionFloor)
}

// ReadBlock looks up hash's block-index record and reads the block it
// points at.
func (s *Scanner) ReadBlock(hash BlockHash) (*Block, error) {
	rec, err := s.BlockIndexRecord(hash)
	if err != nil {
		return nil, err
	}
	return s.ReadBlockFromRecord(rec)
}

// ReadBlockFromRecord reads the block a decoded record points at, without
// a fresh store lookup.
func (s *Scanner) ReadBlockFromRecord(rec *BlockIndexRecord) (*Block, error) {
	if !rec.Status.HaveData() {
		return nil, newErr(MissingData, "", nil, "record has no block data", nil)
	}
	path := flatFilePath(s.cfg.DataDir, "blk", rec.File)
	f, err := s.blkCache.get(rec.File)
	if err != nil {
		return nil, wrapIoErr(path, err)
	}
	payload, err := readEnvelopeAndPayload(f, path, rec.BlockOffset, s.cfg)
	if err != nil {
		return nil, err
	}
	blk := &Block{}
	if err := blk.Deserialize(bytes.NewReader(payload)); err != nil {
		return nil, newErr(Corrupt, path, nil, "decode block", err)
	}
	return blk, nil
}

// ReadUndo looks up hash's block-index record and reads the undo payload
// it points at, passing num_transactions as the decoder's consistency
// hint.
func (s *Scanner) ReadUndo(hash BlockHash) (*undo.BlockUndo, error) {
	rec, err := s.BlockIndexRecord(hash)
	if err != nil {
		return nil, err
	}
	if !rec.Status.HaveUndo() {
		return nil, newErr(MissingData, "", nil, "record has no undo data", nil)
	}
	path := flatFilePath(s.cfg.DataDir, "rev", rec.File)
	f, err := s.revCache.get(rec.File)
	if err != nil {
		return nil, wrapIoErr(path, err)
	}
	payload, err := readEnvelopeAndPayload(f, path, rec.UndoOffset, s.cfg)
	if err != nil {
		return nil, err
	}
	bu, err := undo.Decode(payload, int(rec.NumTransactions))
	if err != nil {
		return nil, newErr(Corrupt, path, nil, "decode undo", err)
	}
	if s.cfg.VerifyUndoChecksum {
		if len(payload) < 32 {
			return nil, newErr(Corrupt, path, nil, "undo payload too short for checksum trailer", nil)
		}
		sum := chainhash.DoubleHashH(payload[:len(payload)-32])
		if !bytes.Equal(sum[:], bu.Dsha[:]) {
			return nil, newErr(Corrupt, path, nil, "undo checksum mismatch", nil)
		}
	}
	return bu, nil
}

// Genesis returns the cached genesis block.
func (s *Scanner) Genesis() *Block { return s.genesis }

// GenesisHash returns the cached genesis block hash.
func (s *Scanner) GenesisHash() BlockHash { return s.genesisHash }

// TipHash returns the tip hash sampled at construction. It is never
// re-read.
func (s *Scanner) TipHash() BlockHash { return s.tipHash }

// LastFileNumber returns the highest blk/rev file index in use, per the
// block index's "l" key. Diagnostic only.
func (s *Scanner) LastFileNumber() uint32 { return s.lastFileNumber }

// KnownFlatFiles returns the blk*.dat paths from 0 up to LastFileNumber,
// inclusive, for callers that want to iterate flat files directly rather
// than walking the block index.
func (s *Scanner) KnownFlatFiles() []string {
	out := make([]string, 0, s.lastFileNumber+1)
	for n := uint32(0); n <= s.lastFileNumber; n++ {
		out = append(out, flatFilePath(s.cfg.DataDir, "blk", n))
	}
	return out
}

// ScanBlockIndex iterates every key-value pair of the block-index store,
// de-obfuscating values before invoking visit.
func (s *Scanner) ScanBlockIndex(visit func(key, value []byte) error) error {
	return s.store.ScanBlockIndex(visit)
}

// ScanChainState iterates every key-value pair of the chain-state store,
// de-obfuscating values before invoking visit.
func (s *Scanner) ScanChainState(visit func(key, value []byte) error) error {
	return s.store.ScanChainState(visit)
}

// Close releases both store locks and every cached flat-file handle.
// Once closed, every operation that reads a store or a flat file fails.
// Genesis, GenesisHash, TipHash, LastFileNumber and KnownFlatFiles do not
// fail: they keep returning the values sampled at construction.
func (s *Scanner) Close() error {
	var first error
	if err := s.blkCache.closeAll(); err != nil && first == nil {
		first = err
	}
	if err := s.revCache.closeAll(); err != nil && first == nil {
		first = err
	}
	if err := s.store.Close(); err != nil && first == nil {
		first = err
	}
	return first
}
