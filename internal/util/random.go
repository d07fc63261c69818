package util

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// UnambiguousAlphabet omits glyphs that are easy to misread when a
// passphrase is copied by hand (0/O, 1/I/L, U/V).
const UnambiguousAlphabet = "23456789ABCDEFGHJKMNPQRSTWXYZ"

// RandomString returns n characters drawn uniformly from alphabet.
func RandomString(alphabet string, n int) (string, error) {
	if alphabet == "" {
		return "", fmt.Errorf("empty alphabet")
	}
	max := big.NewInt(int64(len(alphabet)))
	out := make([]byte, n)
	for i := range out {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generating random index: %w", err)
		}
		out[i] = alphabet[idx.Int64()]
	}
	return string(out), nil
}
