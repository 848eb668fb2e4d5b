// Package store opens Bitcoin Core's two embedded key-value stores (the
// block index under blocks/index, and the chain state under chainstate)
// and exposes typed, de-obfuscated access over them. It owns the LevelDB
// engine handles and their exclusive file locks; it does not decode the
// block-index record format or flat block/undo files -- that lives one
// layer up, in the scanner facade.
package store

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"

	"bcscan.dev/scanner/codec"
)

// obfuscateKeyName is the reserved LevelDB key Bitcoin Core uses for the
// store's XOR pad: a 0x0e discriminator byte, a NUL, then the literal
// ASCII bytes "obfuscate_key". The value's own first byte is the key's
// length prefix and is not part of the pad.
var obfuscateKeyName = []byte{0x0e, 0x00, 'o', 'b', 'f', 'u', 's', 'c', 'a', 't', 'e', '_', 'k', 'e', 'y'}

const (
	blockIndexRecordPrefix = 'b'
	lastFileNumberKey      = "l"
	tipHashKey             = "B"
)

// handle wraps one LevelDB engine open on one embedded store, plus the
// cached obfuscation pad for that store.
type handle struct {
	path string
	db   *leveldb.DB
	pad  []byte // nil means no obfuscation key was present
}

func openHandle(path string) (*handle, error) {
	// ReadOnly is deliberately not set here: goleveldb takes a shared
	// (LOCK_SH) flock for a read-only open rather than the exclusive
	// (LOCK_EX) one a read-write open takes, so two Scanners against the
	// same datadir would both succeed instead of the second failing fast.
	// Opening read-write with create_if_missing = false gets the
	// exclusive lock this engine's single-owner model requires, exactly
	// as the node itself does when it opens its own stores.
	opts := &opt.Options{
		ErrorIfMissing: true,
		Strict:         opt.StrictAll,
	}
	db, err := leveldb.OpenFile(path, opts)
	if err != nil {
		if isLockErr(err) {
			return nil, newErr(StoreLocked, path, nil, "store in use — stop the node first", err)
		}
		return nil, newErr(StoreUnavailable, path, nil, "open embedded store", err)
	}
	h := &handle{path: path, db: db}
	pad, found, err := h.rawGet(obfuscateKeyName)
	if err != nil {
		_ = db.Close()
		return nil, newErr(StoreUnavailable, path, obfuscateKeyName, "read obfuscation key", err)
	}
	if found && len(pad) > 1 {
		h.pad = pad[1:]
	}
	return h, nil
}

// rawGet reads key without de-obfuscation. Used only internally, for
// bootstrapping the obfuscation pad itself.
func (h *handle) rawGet(key []byte) (value []byte, found bool, err error) {
	v, err := h.db.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// get reads key and transparently de-obfuscates the value.
func (h *handle) get(key []byte) (value []byte, found bool, err error) {
	v, found, err := h.rawGet(key)
	if err != nil || !found {
		return nil, found, err
	}
	return codec.XOR(h.pad, v), true, nil
}

// scan iterates every key-value pair in order, de-obfuscating each value
// before invoking visit. It stops early if visit returns an error.
func (h *handle) scan(visit func(key, value []byte) error) error {
	iter := h.db.NewIterator(nil, nil)
	defer iter.Release()
	for iter.Next() {
		key := append([]byte(nil), iter.Key()...)
		value := codec.XOR(h.pad, iter.Value())
		if err := visit(key, value); err != nil {
			return err
		}
	}
	return iter.Error()
}

func (h *handle) close() error {
	return h.db.Close()
}

// Store is the opened pair of embedded key-value stores backing one
// datadir: the block index and the chain state.
type Store struct {
	blockIndex *handle
	chainState *handle
}

// Open opens both embedded stores with create_if_missing = false,
// acquiring the same exclusive lock a running node would hold. A lock
// already held by a running node (or another Scanner) surfaces as a
// StoreLocked error; any other open failure is StoreUnavailable. Store
// never issues a write to either engine handle -- the exclusivity is
// needed for correct lock semantics, not because this package writes.
func Open(blockIndexPath, chainStatePath string) (*Store, error) {
	bi, err := openHandle(blockIndexPath)
	if err != nil {
		return nil, err
	}
	cs, err := openHandle(chainStatePath)
	if err != nil {
		_ = bi.close()
		return nil, err
	}
	return &Store{blockIndex: bi, chainState: cs}, nil
}

// Close releases both store handles, and their underlying file locks.
// Once closed, all other methods fail.
func (s *Store) Close() error {
	err1 := s.blockIndex.close()
	err2 := s.chainState.close()
	if err1 != nil {
		return err1
	}
	return err2
}

// TipHash reads the chain-state tip hash, raw little-endian, as stored.
func (s *Store) TipHash() ([32]byte, error) {
	var out [32]byte
	v, found, err := s.chainState.get([]byte(tipHashKey))
	if err != nil {
		return out, newErr(StoreUnavailable, s.chainState.path, []byte(tipHashKey), "read tip hash", err)
	}
	if !found {
		return out, newErr(MissingKey, s.chainState.path, []byte(tipHashKey), "tip hash not present", nil)
	}
	if len(v) != 32 {
		return out, newErr(StoreUnavailable, s.chainState.path, []byte(tipHashKey), fmt.Sprintf("tip hash has unexpected length %d", len(v)), nil)
	}
	copy(out[:], v)
	return out, nil
}

// LastFileNumber reads the block index's "l" key: the highest blk/rev
// file index in use. Used only for diagnostics and pre-enumeration.
func (s *Store) LastFileNumber() (uint32, error) {
	v, found, err := s.blockIndex.get([]byte(lastFileNumberKey))
	if err != nil {
		return 0, newErr(StoreUnavailable, s.blockIndex.path, []byte(lastFileNumberKey), "read last file number", err)
	}
	if !found {
		return 0, newErr(MissingKey, s.blockIndex.path, []byte(lastFileNumberKey), "last file number not present", nil)
	}
	if len(v) < 4 {
		return 0, newErr(StoreUnavailable, s.blockIndex.path, []byte(lastFileNumberKey), fmt.Sprintf("last file number value too short: %d bytes", len(v)), nil)
	}
	n := uint32(v[0]) | uint32(v[1])<<8 | uint32(v[2])<<16 | uint32(v[3])<<24
	return n, nil
}

// GetBlockIndexRecordBytes reads the raw, de-obfuscated value for block
// hash (raw little-endian form), without decoding it. Decoding the
// variable-presence record format is the scanner facade's job.
func (s *Store) GetBlockIndexRecordBytes(hash [32]byte) ([]byte, error) {
	key := blockIndexKey(hash)
	v, found, err := s.blockIndex.get(key)
	if err != nil {
		return nil, newErr(StoreUnavailable, s.blockIndex.path, key, "read block index record", err)
	}
	if !found {
		return nil, newErr(MissingKey, s.blockIndex.path, key, "block index record not present", nil)
	}
	return v, nil
}

// ScanBlockIndex iterates every key-value pair of the block-index store
// in key order, de-obfuscating values before invoking visit. Only one
// scan at a time may run against the handle; the iterator holds the
// store's cursor for its whole lifetime.
func (s *Store) ScanBlockIndex(visit func(key, value []byte) error) error {
	return s.blockIndex.scan(visit)
}

// ScanChainState iterates every key-value pair of the chain-state store
// in key order, de-obfuscating values before invoking visit.
func (s *Store) ScanChainState(visit func(key, value []byte) error) error {
	return s.chainState.scan(visit)
}

func blockIndexKey(hash [32]byte) []byte {
	key := make([]byte, 0, 33)
	key = append(key, blockIndexRecordPrefix)
	key = append(key, hash[:]...)
	return key
}

// isLockErr recognizes goleveldb's lock-contention error. storage.ErrLocked
// is the documented sentinel; the string fallback covers wrapped forms from
// the OS-level flock syscall that don't preserve the sentinel through
// errors.Is on some platforms.
func isLockErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, storage.ErrLocked) {
		return true
	}
	msg := err.Error()
	return bytes.Contains([]byte(msg), []byte("already locked")) ||
		bytes.Contains([]byte(msg), []byte("resource temporarily unavailable"))
}
