// Package undo decodes Bitcoin Core's per-block undo ("rev" file) payload:
// for every non-coinbase input of every transaction in a block, the spent
// output's creation height, coinbase flag, reconstructed script, and amount.
package undo

import (
	"fmt"

	"bcscan.dev/scanner/codec"
)

// TxInUndo describes one spent output, as recorded for rollback.
type TxInUndo struct {
	Coinbase bool
	Height   uint64
	Script   []byte
	Amount   uint64
}

// TxUndo is the ordered list of TxInUndo for one transaction's inputs.
// The coinbase transaction of a block always has an empty TxUndo.
type TxUndo struct {
	Inputs []TxInUndo
}

// BlockUndo is the full per-block undo record.
type BlockUndo struct {
	// Inner holds one TxUndo per transaction in the block, in order.
	// Inner[0] corresponds to the coinbase transaction and is always
	// empty -- callers must not read input entries from it.
	Inner []TxUndo
	// Dsha is the 32-byte trailer Bitcoin Core appends after the undo
	// payload (a double-SHA256 over the preceding bytes in its format).
	// It is captured verbatim; this package does not verify it.
	Dsha [32]byte
}

// Decode parses a BlockUndo from b. expectedNtxs, when non-negative, is the
// num_transactions field from the corresponding block-index record; if the
// transaction count recovered from the undo payload itself disagrees, Decode
// fails rather than silently using whichever count.
func Decode(b []byte, expectedNtxs int) (*BlockUndo, error) {
	r := codec.NewReader(b)

	k, err := r.ReadCompactSize()
	if err != nil {
		return nil, fmt.Errorf("undo: read tx count: %w", err)
	}
	ntxs := int(k) + 1
	if expectedNtxs >= 0 && ntxs != expectedNtxs {
		return nil, fmt.Errorf("undo: transaction-count mismatch: undo says %d, index says %d", ntxs, expectedNtxs)
	}

	inner := make([]TxUndo, ntxs)
	for i := 1; i < ntxs; i++ {
		m, err := r.ReadCompactSize()
		if err != nil {
			return nil, fmt.Errorf("undo: read input count for tx %d: %w", i, err)
		}
		inputs := make([]TxInUndo, m)
		for j := range inputs {
			in, err := decodeTxInUndo(r)
			if err != nil {
				return nil, fmt.Errorf("undo: tx %d input %d: %w", i, j, err)
			}
			inputs[j] = in
		}
		inner[i] = TxUndo{Inputs: inputs}
	}

	dshaBytes, err := r.ReadBytes(32)
	if err != nil {
		return nil, fmt.Errorf("undo: read checksum trailer: %w", err)
	}
	var dsha [32]byte
	copy(dsha[:], dshaBytes)

	return &BlockUndo{Inner: inner, Dsha: dsha}, nil
}

func decodeTxInUndo(r *codec.Reader) (TxInUndo, error) {
	code, err := r.ReadVarintCore()
	if err != nil {
		return TxInUndo{}, fmt.Errorf("read code: %w", err)
	}
	coinbase := code&1 != 0
	height := code >> 1

	version, err := r.ReadVarintCore()
	if err != nil {
		return TxInUndo{}, fmt.Errorf("read version: %w", err)
	}
	if version != 0 {
		return TxInUndo{}, fmt.Errorf("unsupported txin-undo version %d", version)
	}

	compressedAmount, err := r.ReadVarintCore()
	if err != nil {
		return TxInUndo{}, fmt.Errorf("read amount: %w", err)
	}
	amount, err := codec.DecompressAmount(compressedAmount)
	if err != nil {
		return TxInUndo{}, fmt.Errorf("decompress amount: %w", err)
	}

	kind, err := r.ReadVarintCore()
	if err != nil {
		return TxInUndo{}, fmt.Errorf("read script kind: %w", err)
	}
	script, err := reconstructScript(r, kind)
	if err != nil {
		return TxInUndo{}, fmt.Errorf("reconstruct script (kind=%d): %w", kind, err)
	}

	return TxInUndo{
		Coinbase: coinbase,
		Height:   height,
		Script:   script,
		Amount:   amount,
	}, nil
}

// reconstructScript rebuilds the spent output's scriptPubKey from its
// compressed on-disk form. kinds 0 and 1 are the P2PKH and P2SH templates
// Core stores as a bare 20-byte hash; kinds 2-5 are compressed secp256k1
// public keys that would expand to a P2PK script (point decompression is
// not performed here: the 32 stored bytes are returned as they are);
// anything else is an arbitrary script stored with an explicit length.
func reconstructScript(r *codec.Reader, kind uint64) ([]byte, error) {
	switch {
	case kind == 0: // P2PKH: OP_DUP OP_HASH160 <20> OP_EQUALVERIFY OP_CHECKSIG
		hash, err := r.ReadBytes(20)
		if err != nil {
			return nil, err
		}
		script := make([]byte, 0, 25)
		script = append(script, 0x76, 0xa9, 0x14)
		script = append(script, hash...)
		script = append(script, 0x88, 0xac)
		return script, nil
	case kind == 1: // P2SH: OP_HASH160 <20> OP_EQUAL
		hash, err := r.ReadBytes(20)
		if err != nil {
			return nil, err
		}
		script := make([]byte, 0, 23)
		script = append(script, 0xa9, 0x14)
		script = append(script, hash...)
		script = append(script, 0x87)
		return script, nil
	case kind >= 2 && kind <= 5: // compressed pubkey family, stored verbatim
		return r.ReadBytes(32)
	default:
		sz := kind - 6
		if sz > uint64(^uint(0)>>1) {
			return nil, fmt.Errorf("script length overflow: %d", sz)
		}
		return r.ReadBytes(int(sz))
	}
}
