package crypto

import (
	"encoding/base64"
	"testing"

	"github.com/john-matlock-eng/journal-vault/types"
	"github.com/tj/assert"
)

func TestEncryptDecryptContentRoundTrip(t *testing.T) {
	kp, err := GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	plaintext := []byte("dear diary, today everything stayed encrypted")

	item, err := EncryptContent("item-1", "journal", plaintext, kp.PublicKeyBase64())
	if err != nil {
		t.Fatal(err)
	}
	fingerprint, _ := Fingerprint(kp.PublicKeyBase64())
	assert.Equal(t, fingerprint, item.OwnerPublicKeyID)

	got, err := DecryptContent(item, &kp.Private, fingerprint)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, plaintext, got)
}

func TestDecryptContentKeyMismatchPrecondition(t *testing.T) {
	owner, _ := GenerateKeyPair()
	other, _ := GenerateKeyPair()

	item, err := EncryptContent("item-2", "journal", []byte("secret"), owner.PublicKeyBase64())
	if err != nil {
		t.Fatal(err)
	}
	otherFingerprint, _ := Fingerprint(other.PublicKeyBase64())

	// foreign-keyed item must fail before any unwrap is attempted
	_, err = DecryptContent(item, &other.Private, otherFingerprint)
	assert.Equal(t, types.ErrKeyMismatch, err)
}

func TestDecryptContentDetectsTampering(t *testing.T) {
	kp, _ := GenerateKeyPair()
	item, err := EncryptContent("item-3", "journal", []byte("untouched"), kp.PublicKeyBase64())
	if err != nil {
		t.Fatal(err)
	}

	raw, _ := base64.StdEncoding.DecodeString(item.Ciphertext)
	raw[0] ^= 0xff
	item.Ciphertext = base64.StdEncoding.EncodeToString(raw)

	fingerprint, _ := Fingerprint(kp.PublicKeyBase64())
	_, err = DecryptContent(item, &kp.Private, fingerprint)
	assert.Equal(t, types.ErrDecryptionFailure, err)
}

func TestDecryptSharedContent(t *testing.T) {
	owner, _ := GenerateKeyPair()
	recipient, _ := GenerateKeyPair()
	plaintext := []byte("shared entry")

	item, err := EncryptContent("item-4", "journal", plaintext, owner.PublicKeyBase64())
	if err != nil {
		t.Fatal(err)
	}

	// the owner recovers the item key and re-wraps it for the recipient
	itemKey, err := UnwrapKey(&owner.Private, item.WrappedItemKey)
	if err != nil {
		t.Fatal(err)
	}
	rewrapped, err := WrapKey(recipient.PublicKeyBase64(), itemKey)
	if err != nil {
		t.Fatal(err)
	}

	got, err := DecryptSharedContent(item, &recipient.Private, rewrapped)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, plaintext, got)
}
