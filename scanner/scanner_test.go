package scanner

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/syndtr/goleveldb/leveldb"

	"bcscan.dev/scanner/codec"
)

// encodeVarintCore is the inverse of codec.Reader.ReadVarintCore, used
// only to build test fixtures for the block-index record format.
func encodeVarintCore(n uint64) []byte {
	var tmp []byte
	length := 0
	for {
		b := byte(n & 0x7f)
		if length != 0 {
			b |= 0x80
		}
		tmp = append(tmp, b)
		if n <= 0x7f {
			break
		}
		n = (n >> 7) - 1
		length++
	}
	for i, j := 0, len(tmp)-1; i < j; i, j = i+1, j-1 {
		tmp[i], tmp[j] = tmp[j], tmp[i]
	}
	return tmp
}

func TestDecodeBlockIndexRecord_HaveDataOnly(t *testing.T) {
	var header wire.BlockHeader
	header.Version = 1
	header.Timestamp = time.Unix(1231006505, 0)
	var headerBuf bytes.Buffer
	if err := header.Serialize(&headerBuf); err != nil {
		t.Fatalf("serialize header: %v", err)
	}

	var raw bytes.Buffer
	raw.Write(encodeVarintCore(220000))    // version
	raw.Write(encodeVarintCore(100))       // height
	raw.Write(encodeVarintCore(uint64(StatusHaveData))) // status
	raw.Write(encodeVarintCore(1))         // num_transactions
	raw.Write(encodeVarintCore(3))         // file
	raw.Write(encodeVarintCore(12345))     // block_offset
	raw.Write(headerBuf.Bytes())

	rec, err := decodeBlockIndexRecord(raw.Bytes(), 220000)
	if err != nil {
		t.Fatalf("decodeBlockIndexRecord: %v", err)
	}
	if !rec.Status.HaveData() || rec.Status.HaveUndo() {
		t.Fatalf("unexpected status flags: %+v", rec.Status)
	}
	if rec.File != 3 || rec.BlockOffset != 12345 || rec.UndoOffset != 0 {
		t.Fatalf("unexpected file/offset fields: %+v", rec)
	}
	if rec.Height != 100 {
		t.Fatalf("height mismatch: %d", rec.Height)
	}
}

func TestDecodeBlockIndexRecord_VersionBelowFloorRejected(t *testing.T) {
	var raw bytes.Buffer
	raw.Write(encodeVarintCore(1000)) // below floor
	if _, err := decodeBlockIndexRecord(raw.Bytes(), 220000); err == nil {
		t.Fatalf("expected UnsupportedVersion error")
	}
}

func TestDecodeBlockIndexRecord_TrailingBytesRejected(t *testing.T) {
	var header wire.BlockHeader
	var headerBuf bytes.Buffer
	_ = header.Serialize(&headerBuf)

	var raw bytes.Buffer
	raw.Write(encodeVarintCore(220000))
	raw.Write(encodeVarintCore(0))
	raw.Write(encodeVarintCore(0)) // status: no flags
	raw.Write(encodeVarintCore(1))
	raw.Write(headerBuf.Bytes())
	raw.WriteByte(0xff) // trailing garbage

	if _, err := decodeBlockIndexRecord(raw.Bytes(), 220000); err == nil {
		t.Fatalf("expected Corrupt error for trailing bytes")
	}
}

func TestBlockStatus_ValidityLevelAndFlags(t *testing.T) {
	status := StatusValidScripts | StatusHaveData | StatusHaveUndo
	if status.ValidityLevel() != StatusValidScripts {
		t.Fatalf("validity level mismatch: %v", status.ValidityLevel())
	}
	if !status.HaveData() || !status.HaveUndo() {
		t.Fatalf("expected both HAVE_DATA and HAVE_UNDO set")
	}
	if status.FailedValid() || status.FailedChild() {
		t.Fatalf("unexpected failure flags set")
	}
}

// buildHeader constructs a minimal, self-consistent 80-byte block header.
func buildHeader(t *testing.T, prev chainhash.Hash, nonce uint32) wire.BlockHeader {
	t.Helper()
	return wire.BlockHeader{
		Version:    1,
		PrevBlock:  prev,
		MerkleRoot: chainhash.Hash{},
		Timestamp:  time.Unix(1231006505, 0),
		Bits:       0x1d00ffff,
		Nonce:      nonce,
	}
}

func buildCoinbaseTx(t *testing.T) *wire.MsgTx {
	t.Helper()
	tx := wire.NewMsgTx(1)
	tx.AddTxIn(&wire.TxIn{
		PreviousOutPoint: wire.OutPoint{Index: 0xffffffff},
		SignatureScript:  []byte{0x51},
		Sequence:         0xffffffff,
	})
	tx.AddTxOut(&wire.TxOut{
		Value:    5_000_000_000,
		PkScript: []byte{0x51},
	})
	return tx
}

func buildSpendingTx(t *testing.T) *wire.MsgTx {
	t.Helper()
	tx := wire.NewMsgTx(1)
	tx.AddTxIn(&wire.TxIn{
		PreviousOutPoint: wire.OutPoint{Index: 0},
		SignatureScript:  []byte{0x51},
		Sequence:         0xffffffff,
	})
	tx.AddTxOut(&wire.TxOut{
		Value:    100_000_000,
		PkScript: []byte{0x51},
	})
	return tx
}

func serializeBlock(t *testing.T, blk *wire.MsgBlock) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := blk.Serialize(&buf); err != nil {
		t.Fatalf("serialize block: %v", err)
	}
	return buf.Bytes()
}

func appendEnvelope(t *testing.T, buf *bytes.Buffer, payload []byte) (payloadOffset uint64) {
	t.Helper()
	buf.Write(MainnetMagic[:])
	var sizeBuf [4]byte
	binary.LittleEndian.PutUint32(sizeBuf[:], uint32(len(payload)))
	buf.Write(sizeBuf[:])
	offset := uint64(buf.Len())
	buf.Write(payload)
	return offset
}

func writeFixtureDB(t *testing.T, dir string, kvs map[string][]byte) {
	t.Helper()
	db, err := leveldb.OpenFile(dir, nil)
	if err != nil {
		t.Fatalf("leveldb.OpenFile(%s): %v", dir, err)
	}
	defer db.Close()
	for k, v := range kvs {
		if err := db.Put([]byte(k), v, nil); err != nil {
			t.Fatalf("Put(%q): %v", k, err)
		}
	}
}

func TestScanner_EndToEnd(t *testing.T) {
	dataDir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dataDir, "blocks"), 0o755); err != nil {
		t.Fatalf("mkdir blocks: %v", err)
	}

	genesisHeader := buildHeader(t, chainhash.Hash{}, 1)
	genesisBlock := wire.NewMsgBlock(&genesisHeader)
	genesisBlock.AddTransaction(buildCoinbaseTx(t))
	genesisHash := genesisBlock.Header.BlockHash()

	block1Header := buildHeader(t, genesisHash, 2)
	block1 := wire.NewMsgBlock(&block1Header)
	block1.AddTransaction(buildCoinbaseTx(t))
	block1.AddTransaction(buildSpendingTx(t))
	block1Hash := block1.Header.BlockHash()

	var blkFile bytes.Buffer
	genesisOffset := appendEnvelope(t, &blkFile, serializeBlock(t, genesisBlock))
	if genesisOffset != 8 {
		t.Fatalf("expected genesis payload at offset 8, got %d", genesisOffset)
	}
	block1Offset := appendEnvelope(t, &blkFile, serializeBlock(t, block1))
	if err := os.WriteFile(filepath.Join(dataDir, "blocks", "blk00000.dat"), blkFile.Bytes(), 0o644); err != nil {
		t.Fatalf("write blk00000.dat: %v", err)
	}

	var undoPayload bytes.Buffer
	undoPayload.Write(codec.EncodeCompactSize(1)) // ntxs - 1 = 1 (2 total)
	undoPayload.Write(codec.EncodeCompactSize(1)) // 1 input for tx[1]
	undoPayload.Write(encodeVarintCore(200 << 1)) // code: height 200, not coinbase
	undoPayload.Write(encodeVarintCore(0))        // txin-undo version
	undoPayload.Write(encodeVarintCore(codec.CompressAmount(100_000_000)))
	undoPayload.Write(encodeVarintCore(1)) // kind 1: P2SH
	undoPayload.Write(bytes.Repeat([]byte{0x24}, 20))
	undoPayload.Write(make([]byte, 32)) // dsha trailer, unchecked by default

	var revFile bytes.Buffer
	undoOffset := appendEnvelope(t, &revFile, undoPayload.Bytes())
	if err := os.WriteFile(filepath.Join(dataDir, "blocks", "rev00000.dat"), revFile.Bytes(), 0o644); err != nil {
		t.Fatalf("write rev00000.dat: %v", err)
	}

	var block1HeaderBuf bytes.Buffer
	if err := block1.Header.Serialize(&block1HeaderBuf); err != nil {
		t.Fatalf("serialize block1 header: %v", err)
	}
	var indexRecord bytes.Buffer
	status := StatusValidScripts | StatusHaveData | StatusHaveUndo
	indexRecord.Write(encodeVarintCore(220000))
	indexRecord.Write(encodeVarintCore(1)) // height
	indexRecord.Write(encodeVarintCore(uint64(status)))
	indexRecord.Write(encodeVarintCore(2)) // num_transactions
	indexRecord.Write(encodeVarintCore(0)) // file
	indexRecord.Write(encodeVarintCore(block1Offset))
	indexRecord.Write(encodeVarintCore(undoOffset))
	indexRecord.Write(block1HeaderBuf.Bytes())

	blockIndexDir := filepath.Join(dataDir, "blocks", "index")
	chainStateDir := filepath.Join(dataDir, "chainstate")
	writeFixtureDB(t, blockIndexDir, map[string][]byte{
		"l":                           {0, 0, 0, 0},
		"b" + string(block1Hash[:]):   indexRecord.Bytes(),
	})
	writeFixtureDB(t, chainStateDir, map[string][]byte{
		"B": block1Hash[:],
	})

	s, err := New(DefaultConfig(dataDir))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	if s.GenesisHash() != genesisHash {
		t.Fatalf("genesis hash mismatch: got %s want %s", s.GenesisHash(), genesisHash)
	}
	if s.TipHash() != block1Hash {
		t.Fatalf("tip hash mismatch: got %s want %s", s.TipHash(), block1Hash)
	}
	if s.LastFileNumber() != 0 {
		t.Fatalf("last file number mismatch: got %d", s.LastFileNumber())
	}

	rec, err := s.BlockIndexRecord(block1Hash)
	if err != nil {
		t.Fatalf("BlockIndexRecord: %v", err)
	}
	if rec.NumTransactions != 2 || !rec.Status.HaveData() || !rec.Status.HaveUndo() {
		t.Fatalf("unexpected record: %+v", rec)
	}

	gotBlock, err := s.ReadBlock(block1Hash)
	if err != nil {
		t.Fatalf("ReadBlock: %v", err)
	}
	if gotHash := gotBlock.Header.BlockHash(); gotHash != block1Hash {
		t.Fatalf("read-back block hash mismatch: got %s want %s", gotHash, block1Hash)
	}
	if len(gotBlock.Transactions) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(gotBlock.Transactions))
	}

	gotUndo, err := s.ReadUndo(block1Hash)
	if err != nil {
		t.Fatalf("ReadUndo: %v", err)
	}
	if len(gotUndo.Inner) != 2 {
		t.Fatalf("expected 2 tx undo slots, got %d", len(gotUndo.Inner))
	}
	if len(gotUndo.Inner[0].Inputs) != 0 {
		t.Fatalf("coinbase slot must be empty")
	}
	if len(gotUndo.Inner[1].Inputs) != 1 {
		t.Fatalf("expected 1 spent input, got %d", len(gotUndo.Inner[1].Inputs))
	}
	spent := gotUndo.Inner[1].Inputs[0]
	if spent.Amount != 100_000_000 || spent.Height != 200 || spent.Coinbase {
		t.Fatalf("unexpected spent-output fields: %+v", spent)
	}

	knownFiles := s.KnownFlatFiles()
	if len(knownFiles) != 1 || filepath.Base(knownFiles[0]) != "blk00000.dat" {
		t.Fatalf("unexpected KnownFlatFiles: %v", knownFiles)
	}
}

func TestScanner_ReadUndoUnindexedBlockFailsWithMissingKey(t *testing.T) {
	dataDir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dataDir, "blocks"), 0o755); err != nil {
		t.Fatalf("mkdir blocks: %v", err)
	}

	genesisHeader := buildHeader(t, chainhash.Hash{}, 1)
	genesisBlock := wire.NewMsgBlock(&genesisHeader)
	genesisBlock.AddTransaction(buildCoinbaseTx(t))

	var blkFile bytes.Buffer
	appendEnvelope(t, &blkFile, serializeBlock(t, genesisBlock))
	if err := os.WriteFile(filepath.Join(dataDir, "blocks", "blk00000.dat"), blkFile.Bytes(), 0o644); err != nil {
		t.Fatalf("write blk00000.dat: %v", err)
	}

	blockIndexDir := filepath.Join(dataDir, "blocks", "index")
	chainStateDir := filepath.Join(dataDir, "chainstate")
	writeFixtureDB(t, blockIndexDir, map[string][]byte{"l": {0, 0, 0, 0}})
	writeFixtureDB(t, chainStateDir, map[string][]byte{"B": genesisBlock.Header.BlockHash().CloneBytes()})

	s, err := New(DefaultConfig(dataDir))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	genesisHash := genesisBlock.Header.BlockHash()
	if _, err := s.ReadUndo(genesisHash); err == nil {
		t.Fatalf("expected MissingKey error looking up an unindexed block")
	}
}
