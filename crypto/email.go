package crypto

import (
	"encoding/base64"
	"encoding/hex"

	"golang.org/x/crypto/scrypt"
)

var (
	scryptN   = 32768 // N = CPU/memory cost parameter
	scryptR   = 8     // r and p must satisfy r * p < 2^30
	scryptP   = 1
	scryptLen = 32 // 32 bytes long
)

// HashEmail hashes an email address with scrypt for the recipient lookup
// mapping, so the server never stores emails in the clear. saltHex may be
// empty, in which case the email itself salts the hash (lookups must stay
// deterministic per deployment).
func HashEmail(email string, saltHex string) (string, error) {
	salt := []byte(email)
	if saltHex != "" {
		decoded, err := hex.DecodeString(saltHex)
		if err != nil {
			return "", err
		}
		salt = append(decoded, []byte(email)...)
	}
	dk, err := scrypt.Key([]byte(email), salt, scryptN, scryptR, scryptP, scryptLen)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(dk), nil
}
