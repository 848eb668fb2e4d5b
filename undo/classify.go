package undo

// ScriptKind is a non-authoritative classification of a reconstructed
// script, offered as a convenience for callers that want a rough shape
// without re-parsing opcodes themselves. It carries no decoding semantics:
// Decode never consults it.
type ScriptKind int

const (
	ScriptUnknown ScriptKind = iota
	ScriptP2PKH
	ScriptP2SH
	// ScriptCompressedPubkeyRaw marks a script that is actually the raw
	// 32-byte compressed-pubkey payload from undo kinds 2-5, not an
	// expanded P2PK script: Decode does no point decompression.
	ScriptCompressedPubkeyRaw
	ScriptOther
)

// ClassifyScript inspects a script's byte shape to guess which
// reconstructScript branch produced it. It is best-effort: a 32-byte
// "other" script with an arbitrary kind >= 6 and length 32 is
// indistinguishable from ScriptCompressedPubkeyRaw by shape alone, and this
// function does not attempt to disambiguate that case.
func ClassifyScript(script []byte) ScriptKind {
	switch {
	case len(script) == 25 && script[0] == 0x76 && script[1] == 0xa9 && script[2] == 0x14 &&
		script[23] == 0x88 && script[24] == 0xac:
		return ScriptP2PKH
	case len(script) == 23 && script[0] == 0xa9 && script[1] == 0x14 && script[22] == 0x87:
		return ScriptP2SH
	case len(script) == 32:
		return ScriptCompressedPubkeyRaw
	case len(script) == 0:
		return ScriptUnknown
	default:
		return ScriptOther
	}
}
