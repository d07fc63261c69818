// Package icrypto derives the per-record values that keep passphrases off
// the server: the lookup digest and the data sealing key.
package icrypto

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"

	"golang.org/x/text/unicode/norm"

	"github.com/jmcleod/visica/internal/util"
)

const dataKeyInfo = "visica:data-key:v1"

// normalize returns the NFKD form of a passphrase so visually identical
// input typed on different platforms hashes to the same value.
func normalize(passphrase string) []byte {
	return []byte(norm.NFKD.String(passphrase))
}

// LookupID returns the stable, log-safe index value for a passphrase. The
// passphrase itself is never persisted; records are found by this digest.
func LookupID(passphrase string) string {
	sum := sha256.Sum256(normalize(passphrase))
	return hex.EncodeToString(sum[:])
}

// MatchLookupID compares two lookup IDs in constant time.
func MatchLookupID(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// DeriveDataKey derives the key that seals a record's data blob from the
// account passphrase, salted with the record ID.
func DeriveDataKey(passphrase, recordID string) ([]byte, error) {
	seed := normalize(passphrase)
	defer clear(seed)
	return util.HKDF(seed, []byte(recordID), []byte(dataKeyInfo))
}
