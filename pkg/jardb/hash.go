package jardb

import "github.com/spaolacci/murmur3"

// DevilsSeed is the fixed seed MurmurHash3-x86-32 is parameterized with.
// It is a build-time constant, not a per-database option, matching the
// origin's treatment of the hash as a single process-wide oracle.
const DevilsSeed uint32 = 0xDEADC0DE

// KeySize is the fixed capacity, in bytes, of a stored key. Keys longer
// than this are silently truncated; a zero byte within the first KeySize
// bytes shortens the key further.
const KeySize = 250

// truncateKey returns the truncated form of key used for hashing, chain
// comparison, and storage: at most KeySize bytes, cut short at the first
// zero byte.
func truncateKey(key []byte) []byte {
	if len(key) > KeySize {
		key = key[:KeySize]
	}

	for i, b := range key {
		if b == 0 {
			return key[:i]
		}
	}

	return key
}

// fingerprint computes the 32-bit MurmurHash3-x86-32 fingerprint of an
// already-truncated key.
func fingerprint(truncated []byte) uint32 {
	return murmur3.Sum32WithSeed(truncated, DevilsSeed)
}

// slotFor returns the slot index for a given hash and slot count. slotCount
// must be a power of two.
func slotFor(hash uint32, slotCount int) int {
	return int(hash) & (slotCount - 1)
}

// isPow2 reports whether n is a positive power of two.
func isPow2(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// nextPow2 returns the smallest power of two >= n.
func nextPow2(n int) int {
	if n <= 1 {
		return 1
	}

	p := 1
	for p < n {
		p <<= 1
	}

	return p
}
