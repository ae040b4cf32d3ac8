package crypto

import (
	"crypto/rand"
	"encoding/base64"

	"github.com/john-matlock-eng/journal-vault/types"
)

const itemKeySize = 32

// EncryptContent encrypts a single record under a random per-item
// symmetric key, wraps the item key under the owner's public key and
// returns the complete EncryptedItem. Side-effect free beyond randomness.
func EncryptContent(itemID string, itemType string, plaintext []byte, ownerPublicKeyB64 string) (*types.EncryptedItem, error) {
	fingerprint, err := Fingerprint(ownerPublicKeyB64)
	if err != nil {
		return nil, err
	}

	itemKey := make([]byte, itemKeySize)
	if _, err := rand.Read(itemKey); err != nil {
		return nil, err
	}
	defer Zero(itemKey)

	iv := make([]byte, gcmNonceSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, err
	}

	gcm, err := newGCM(itemKey)
	if err != nil {
		return nil, err
	}
	// the item ID rides as AAD, binding ciphertext to its record
	ciphertext := gcm.Seal(nil, iv, plaintext, []byte(itemID))

	wrappedItemKey, err := WrapKey(ownerPublicKeyB64, itemKey)
	if err != nil {
		return nil, err
	}

	return &types.EncryptedItem{
		ItemID:           itemID,
		ItemType:         itemType,
		Ciphertext:       base64.StdEncoding.EncodeToString(ciphertext),
		IV:               base64.StdEncoding.EncodeToString(iv),
		WrappedItemKey:   wrappedItemKey,
		OwnerPublicKeyID: fingerprint,
	}, nil
}

// DecryptContent unwraps an item's key with the caller's private key and
// AEAD-decrypts the record. The fingerprint precondition is checked
// before any cryptographic unwrap is attempted: an item keyed to a
// different identity fails fast with ErrKeyMismatch instead of burning
// an unwrap on material that can never succeed.
func DecryptContent(item *types.EncryptedItem, privateKey *[32]byte, callerPublicKeyID string) ([]byte, error) {
	if item.OwnerPublicKeyID != callerPublicKeyID {
		return nil, types.ErrKeyMismatch
	}
	itemKey, err := UnwrapKey(privateKey, item.WrappedItemKey)
	if err != nil {
		return nil, types.ErrDecryptionFailure
	}
	defer Zero(itemKey)

	return decryptWithItemKey(item, itemKey)
}

// DecryptSharedContent decrypts an item whose key was re-wrapped for the
// caller by a share grant. No ownership precondition applies: the
// wrapped key comes from the grant, not from the item.
func DecryptSharedContent(item *types.EncryptedItem, privateKey *[32]byte, wrappedItemKeyB64 string) ([]byte, error) {
	itemKey, err := UnwrapKey(privateKey, wrappedItemKeyB64)
	if err != nil {
		return nil, types.ErrDecryptionFailure
	}
	defer Zero(itemKey)

	return decryptWithItemKey(item, itemKey)
}

func decryptWithItemKey(item *types.EncryptedItem, itemKey []byte) ([]byte, error) {
	iv, ivErr := base64.StdEncoding.DecodeString(item.IV)
	ciphertext, ctErr := base64.StdEncoding.DecodeString(item.Ciphertext)
	if ivErr != nil || ctErr != nil || len(iv) != gcmNonceSize {
		return nil, types.ErrDecryptionFailure
	}
	gcm, err := newGCM(itemKey)
	if err != nil {
		return nil, types.ErrDecryptionFailure
	}
	plaintext, err := gcm.Open(nil, iv, ciphertext, []byte(item.ItemID))
	if err != nil {
		// tag verification failed: tampering or wrong key
		return nil, types.ErrDecryptionFailure
	}
	return plaintext, nil
}
