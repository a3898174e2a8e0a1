// Package fingerprint computes the two content signatures used for
// duplicate suppression: a keyed 64-bit BLAKE2b content hash for exact
// matches and a 64-bit SimHash for near matches within a source.
package fingerprint

import (
	"hash/fnv"
	"math/bits"
	"strings"
	"unicode"

	"golang.org/x/crypto/blake2b"
)

// hashKey separates our content hashes from any other BLAKE2b user of the
// same text. Changing it invalidates every stored content_hash.
var hashKey = []byte("veille.content.v1")

// NearDuplicateDistance is the maximum Hamming distance at which two
// articles of the same source are treated as near-duplicates.
const NearDuplicateDistance = 3

// ContentHash returns a keyed BLAKE2b digest of the text truncated to 64
// bits. Stable across runs and hosts.
func ContentHash(text string) uint64 {
	h, err := blake2b.New(8, hashKey)
	if err != nil {
		// New only fails on invalid key or size, both fixed here.
		panic(err)
	}
	h.Write([]byte(text))
	var sum [8]byte
	copy(sum[:], h.Sum(nil))
	var v uint64
	for _, b := range sum {
		v = v<<8 | uint64(b)
	}
	return v
}

// SimHash64 returns a 64-bit SimHash over the lowercased tokens of text.
// Tokens are maximal runs of letters and digits, so punctuation-only edits
// do not move the hash. An empty token set hashes to zero.
func SimHash64(text string) uint64 {
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return 0
	}

	var counts [64]int
	for _, tok := range tokens {
		h := fnv.New64a()
		h.Write([]byte(tok))
		tokenHash := h.Sum64()
		for i := 0; i < 64; i++ {
			if tokenHash&(1<<uint(i)) != 0 {
				counts[i]++
			} else {
				counts[i]--
			}
		}
	}

	var sim uint64
	for i := 0; i < 64; i++ {
		if counts[i] > 0 {
			sim |= 1 << uint(i)
		}
	}
	return sim
}

// Hamming returns the number of differing bits between two 64-bit hashes.
func Hamming(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// NearDuplicate reports whether two SimHash values fall within the
// near-duplicate threshold.
func NearDuplicate(a, b uint64) bool {
	return Hamming(a, b) <= NearDuplicateDistance
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
