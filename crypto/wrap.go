package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"io"

	"github.com/john-matlock-eng/journal-vault/types"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

const (
	gcmNonceSize = 12
	wrapKeyInfo  = "journal-vault/key-wrap/v1"
)

// SealWithKey AEAD-encrypts plaintext under a 32-byte symmetric key with
// a fresh nonce. Output layout: base64(nonce || ciphertext+tag).
func SealWithKey(key []byte, plaintext []byte, aad []byte) (string, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcmNonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	sealed := gcm.Seal(nonce, nonce, plaintext, aad)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// OpenWithKey reverses SealWithKey. Any failure (truncated blob, bad
// base64, tag mismatch) surfaces as ErrUnwrapFailure so a wrong key
// and corrupted data stay indistinguishable.
func OpenWithKey(key []byte, sealedB64 string, aad []byte) ([]byte, error) {
	blob, err := base64.StdEncoding.DecodeString(sealedB64)
	if err != nil || len(blob) < gcmNonceSize {
		return nil, types.ErrUnwrapFailure
	}
	gcm, err := newGCM(key)
	if err != nil {
		return nil, types.ErrUnwrapFailure
	}
	plaintext, err := gcm.Open(nil, blob[:gcmNonceSize], blob[gcmNonceSize:], aad)
	if err != nil {
		return nil, types.ErrUnwrapFailure
	}
	return plaintext, nil
}

// WrapKey encrypts a symmetric key to a recipient's base64 X25519 public
// key using ephemeral ECDH + HKDF-SHA256 + AES-256-GCM.
// Blob layout: base64(ephemeral_pub[32] || nonce[12] || ciphertext+tag).
func WrapKey(publicKeyB64 string, key []byte) (string, error) {
	recipientPub, err := DecodePublicKey(publicKeyB64)
	if err != nil {
		return "", err
	}

	var ephPriv [32]byte
	if _, err := rand.Read(ephPriv[:]); err != nil {
		return "", err
	}
	defer Zero(ephPriv[:])

	ephPub, err := curve25519.X25519(ephPriv[:], curve25519.Basepoint)
	if err != nil {
		return "", err
	}
	shared, err := curve25519.X25519(ephPriv[:], recipientPub[:])
	if err != nil {
		return "", err
	}
	defer Zero(shared)

	wrapKey, err := deriveWrapKey(shared)
	if err != nil {
		return "", err
	}
	defer Zero(wrapKey)

	gcm, err := newGCM(wrapKey)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcmNonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}

	blob := make([]byte, 0, 32+gcmNonceSize+len(key)+16)
	blob = append(blob, ephPub...)
	blob = append(blob, nonce...)
	blob = gcm.Seal(blob, nonce, key, nil)
	return base64.StdEncoding.EncodeToString(blob), nil
}

// UnwrapKey decrypts a key wrapped with WrapKey. All failures surface as
// ErrUnwrapFailure.
func UnwrapKey(privateKey *[32]byte, wrappedB64 string) ([]byte, error) {
	blob, err := base64.StdEncoding.DecodeString(wrappedB64)
	if err != nil || len(blob) < 32+gcmNonceSize {
		return nil, types.ErrUnwrapFailure
	}
	ephPub := blob[:32]
	nonce := blob[32 : 32+gcmNonceSize]
	ciphertext := blob[32+gcmNonceSize:]

	shared, err := curve25519.X25519(privateKey[:], ephPub)
	if err != nil {
		return nil, types.ErrUnwrapFailure
	}
	defer Zero(shared)

	wrapKey, err := deriveWrapKey(shared)
	if err != nil {
		return nil, types.ErrUnwrapFailure
	}
	defer Zero(wrapKey)

	gcm, err := newGCM(wrapKey)
	if err != nil {
		return nil, types.ErrUnwrapFailure
	}
	key, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, types.ErrUnwrapFailure
	}
	return key, nil
}

func deriveWrapKey(shared []byte) ([]byte, error) {
	stream := hkdf.New(sha256.New, shared, nil, []byte(wrapKeyInfo))
	key := make([]byte, 32)
	if _, err := io.ReadFull(stream, key); err != nil {
		return nil, err
	}
	return key, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
