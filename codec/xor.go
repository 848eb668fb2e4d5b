package codec

// XOR de-obfuscates (or obfuscates — the operation is its own inverse)
// data against pad, cycling the pad when data is longer. An empty pad
// means the store carries no obfuscation key and values pass through
// unmodified.
func XOR(pad, data []byte) []byte {
	if len(pad) == 0 {
		out := make([]byte, len(data))
		copy(out, data)
		return out
	}
	out := make([]byte, len(data))
	for i, b := range data {
		out[i] = b ^ pad[i%len(pad)]
	}
	return out
}
