package codec

import "math"

// maxAmount is the largest representable satoshi value (2^63 - 1); amounts
// beyond this cannot be recorded consensus-side and indicate corruption.
const maxAmount = uint64(math.MaxInt64)

// DecompressAmount reverses Bitcoin Core's trailing-zero amount compression
// used in the undo format. The scheme exploits the fact that almost all
// amounts are round numbers of satoshis: it factors out the largest power
// of ten and stores the remaining non-zero digit separately.
func DecompressAmount(x uint64) (uint64, error) {
	if x == 0 {
		return 0, nil
	}
	x--
	e := x % 10
	x /= 10

	var n uint64
	if e < 9 {
		d := (x % 9) + 1
		x /= 9
		n = x*10 + d
	} else {
		n = x + 1
	}

	for i := uint64(0); i < e; i++ {
		if n > maxAmount/10 {
			return 0, ErrAmountOverflow
		}
		n *= 10
	}
	if n > maxAmount {
		return 0, ErrAmountOverflow
	}
	return n, nil
}

// CompressAmount is the inverse of DecompressAmount. The scanner never
// needs to re-encode an amount; this exists only so tests can assert the
// round-trip property decompress(compress(a)) == a.
func CompressAmount(n uint64) uint64 {
	if n == 0 {
		return 0
	}
	var e uint64
	for n%10 == 0 && e < 9 {
		n /= 10
		e++
	}
	if e < 9 {
		d := n % 10
		n /= 10
		return 1 + (n*9+d-1)*10 + e
	}
	return 1 + (n-1)*10 + 9
}
