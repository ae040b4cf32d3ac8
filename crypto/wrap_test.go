package crypto

import (
	"testing"

	"github.com/john-matlock-eng/journal-vault/types"
	"github.com/tj/assert"
)

func TestWrapUnwrapRoundTrip(t *testing.T) {
	kp, err := GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	itemKey := []byte("0123456789abcdef0123456789abcdef")

	wrapped, err := WrapKey(kp.PublicKeyBase64(), itemKey)
	if err != nil {
		t.Fatal(err)
	}
	unwrapped, err := UnwrapKey(&kp.Private, wrapped)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, itemKey, unwrapped)
}

func TestUnwrapWithWrongKeyFails(t *testing.T) {
	kp1, _ := GenerateKeyPair()
	kp2, _ := GenerateKeyPair()

	wrapped, err := WrapKey(kp1.PublicKeyBase64(), []byte("0123456789abcdef0123456789abcdef"))
	if err != nil {
		t.Fatal(err)
	}
	_, err = UnwrapKey(&kp2.Private, wrapped)
	assert.Equal(t, types.ErrUnwrapFailure, err)
}

func TestSealOpenUnderMasterKey(t *testing.T) {
	salt, _ := GenerateKdfSalt()
	master, err := DeriveMasterKey("Tr0ub4dor", salt, MinKdfIterations)
	if err != nil {
		t.Fatal(err)
	}
	kp, _ := GenerateKeyPair()

	sealed, err := SealWithKey(master, kp.Private[:], nil)
	if err != nil {
		t.Fatal(err)
	}
	opened, err := OpenWithKey(master, sealed, nil)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, kp.Private[:], opened)

	// a key derived from the wrong password must not open the blob
	wrongMaster, _ := DeriveMasterKey("hunter2", salt, MinKdfIterations)
	_, err = OpenWithKey(wrongMaster, sealed, nil)
	assert.Equal(t, types.ErrUnwrapFailure, err)
}

func TestOpenTruncatedBlobFails(t *testing.T) {
	salt, _ := GenerateKdfSalt()
	master, _ := DeriveMasterKey("pw123456", salt, MinKdfIterations)

	_, err := OpenWithKey(master, "AAAA", nil)
	assert.Equal(t, types.ErrUnwrapFailure, err)
}

func TestFingerprintStable(t *testing.T) {
	kp, _ := GenerateKeyPair()
	f1, err := Fingerprint(kp.PublicKeyBase64())
	if err != nil {
		t.Fatal(err)
	}
	f2, _ := Fingerprint(kp.PublicKeyBase64())
	assert.Equal(t, f1, f2)
	if len(f1) != 64 {
		t.Fatal("fingerprint is not a sha256 hex string")
	}
}
