package vault

import (
	"context"
	"sync"

	"github.com/john-matlock-eng/journal-vault/client"
	"github.com/john-matlock-eng/journal-vault/crypto"
	"github.com/john-matlock-eng/journal-vault/types"
	"golang.org/x/sync/singleflight"
)

// Session holds the single unlocked identity for one user on one
// device. The private key and master key live only in this struct;
// Lock wipes both. All unlock paths funnel through singleflight so a
// burst of concurrent triggers runs the KDF once.
type Session struct {
	client *client.Client
	userID string

	mu          sync.RWMutex
	sf          singleflight.Group
	privateKey  *[32]byte
	masterKey   []byte
	publicKey   string
	publicKeyID string
}

func NewSession(cl *client.Client, userID string) *Session {
	return &Session{client: cl, userID: userID}
}

// Setup generates a fresh identity, wraps the private key under the
// password-derived master key and registers it. Losing the setup race
// is a normal outcome: the locally generated keypair is destroyed,
// never re-pushed, and the winner's bundle is unlocked with the same
// password. A password that cannot unwrap the winner's bundle means the
// two devices set up with different passwords; that surfaces as
// ErrMismatchDetected for the caller to resolve.
func (s *Session) Setup(ctx context.Context, password string) error {
	kdfSalt, err := crypto.GenerateKdfSalt()
	if err != nil {
		return err
	}
	masterKey, err := crypto.DeriveMasterKey(password, kdfSalt, crypto.DefaultKdfIterations)
	if err != nil {
		return err
	}

	kp, err := crypto.GenerateKeyPair()
	if err != nil {
		crypto.Zero(masterKey)
		return err
	}
	wrappedPrivate, err := crypto.SealWithKey(masterKey, kp.Private[:], nil)
	if err != nil {
		crypto.Zero(masterKey)
		kp.Destroy()
		return err
	}

	result, err := s.client.Setup(ctx, &types.InputSetupEncryption{
		PublicKey:         kp.PublicKeyBase64(),
		WrappedPrivateKey: wrappedPrivate,
		KdfSalt:           kdfSalt,
		KdfIterations:     crypto.DefaultKdfIterations,
	})
	if err != nil {
		crypto.Zero(masterKey)
		kp.Destroy()
		return err
	}

	if result.Outcome == client.SetupConflict {
		// another device won; our keypair must never be used
		crypto.Zero(masterKey)
		kp.Destroy()
		if uErr := s.Unlock(ctx, password); uErr != nil {
			if uErr == types.ErrUnwrapFailure {
				return types.ErrMismatchDetected
			}
			return uErr
		}
		return nil
	}

	fingerprint, fErr := crypto.Fingerprint(kp.PublicKeyBase64())
	if fErr != nil {
		crypto.Zero(masterKey)
		kp.Destroy()
		return fErr
	}

	s.mu.Lock()
	s.install(&kp.Private, masterKey, kp.PublicKeyBase64(), fingerprint)
	s.mu.Unlock()
	return nil
}

// Unlock fetches the caller's bundle and unwraps the private key with
// the password. A wrong password and a corrupt bundle are deliberately
// indistinguishable: both are ErrUnwrapFailure.
func (s *Session) Unlock(ctx context.Context, password string) error {
	_, err, _ := s.sf.Do("unlock", func() (interface{}, error) {
		return nil, s.unlock(ctx, password)
	})
	return err
}

func (s *Session) unlock(ctx context.Context, password string) error {
	bundle, err := s.client.FetchUserBundle(ctx, s.userID, true)
	if err != nil {
		return err
	}
	if bundle.Completeness == types.BundleAbsent {
		return types.ErrNotFound
	}
	if !bundle.IsFull() {
		return types.ErrUnwrapFailure
	}

	masterKey, err := crypto.DeriveMasterKey(password, bundle.KdfSalt, bundle.KdfIterations)
	if err != nil {
		return err
	}

	privateBytes, err := crypto.OpenWithKey(masterKey, bundle.WrappedPrivateKey, nil)
	if err != nil {
		crypto.Zero(masterKey)
		return types.ErrUnwrapFailure
	}
	if len(privateBytes) != 32 {
		crypto.Zero(masterKey)
		crypto.Zero(privateBytes)
		return types.ErrUnwrapFailure
	}

	var privateKey [32]byte
	copy(privateKey[:], privateBytes)
	crypto.Zero(privateBytes)

	// the unwrapped key must reproduce the advertised public key
	derivedPub, dErr := crypto.PublicKeyFromPrivate(&privateKey)
	if dErr != nil || derivedPub != bundle.PublicKey {
		crypto.Zero(masterKey)
		crypto.Zero(privateKey[:])
		return types.ErrUnwrapFailure
	}

	s.mu.Lock()
	s.install(&privateKey, masterKey, bundle.PublicKey, bundle.PublicKeyID)
	s.mu.Unlock()
	return nil
}

// install replaces the unlocked slot, wiping whatever was there. Caller
// holds s.mu.
func (s *Session) install(privateKey *[32]byte, masterKey []byte, publicKey string, publicKeyID string) {
	if s.privateKey != nil {
		crypto.Zero(s.privateKey[:])
	}
	crypto.Zero(s.masterKey)
	s.privateKey = privateKey
	s.masterKey = masterKey
	s.publicKey = publicKey
	s.publicKeyID = publicKeyID
}

// Lock wipes the private key and master key.
func (s *Session) Lock() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.privateKey != nil {
		crypto.Zero(s.privateKey[:])
		s.privateKey = nil
	}
	crypto.Zero(s.masterKey)
	s.masterKey = nil
	s.publicKey = ""
	s.publicKeyID = ""
}

// Unlocked reports whether a private key is present.
func (s *Session) Unlocked() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.privateKey != nil
}

// PublicKeyID returns the fingerprint of the unlocked identity.
func (s *Session) PublicKeyID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.publicKeyID
}

// PublicKey returns the base64 public key of the unlocked identity.
func (s *Session) PublicKey() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.publicKey
}

// UserID returns the session owner.
func (s *Session) UserID() string {
	return s.userID
}

// rewrapIdentity seals the unlocked private key under a master key
// derived from password and a fresh salt, producing a setup input that
// keeps the existing identity. The interim master key is wiped before
// returning.
func (s *Session) rewrapIdentity(password string) (*types.InputSetupEncryption, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.privateKey == nil {
		return nil, types.ErrSessionLocked
	}

	kdfSalt, err := crypto.GenerateKdfSalt()
	if err != nil {
		return nil, err
	}
	masterKey, err := crypto.DeriveMasterKey(password, kdfSalt, crypto.DefaultKdfIterations)
	if err != nil {
		return nil, err
	}
	wrappedPrivate, err := crypto.SealWithKey(masterKey, s.privateKey[:], nil)
	crypto.Zero(masterKey)
	if err != nil {
		return nil, err
	}
	return &types.InputSetupEncryption{
		PublicKey:         s.publicKey,
		WrappedPrivateKey: wrappedPrivate,
		KdfSalt:           kdfSalt,
		KdfIterations:     crypto.DefaultKdfIterations,
	}, nil
}

func (s *Session) privateKeyRef() (*[32]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.privateKey == nil {
		return nil, types.ErrSessionLocked
	}
	return s.privateKey, nil
}

// EncryptItem encrypts plaintext under a fresh item key wrapped for the
// unlocked identity.
func (s *Session) EncryptItem(itemID string, itemType string, plaintext []byte) (*types.EncryptedItem, error) {
	s.mu.RLock()
	publicKey := s.publicKey
	s.mu.RUnlock()
	if publicKey == "" {
		return nil, types.ErrSessionLocked
	}
	return crypto.EncryptContent(itemID, itemType, plaintext, publicKey)
}

// DecryptItem recovers an item's plaintext. An item wrapped under a
// different identity fails up front with ErrKeyMismatch; a damaged
// ciphertext fails with ErrDecryptionFailure.
func (s *Session) DecryptItem(item *types.EncryptedItem) ([]byte, error) {
	privateKey, err := s.privateKeyRef()
	if err != nil {
		return nil, err
	}
	return crypto.DecryptContent(item, privateKey, s.PublicKeyID())
}

// ItemResult pairs one batch entry with its outcome.
type ItemResult struct {
	ItemID    string
	Plaintext []byte
	Err       error
}

// DecryptItems decrypts a batch. One undecryptable item never aborts
// the rest; each entry carries its own error.
func (s *Session) DecryptItems(items []*types.EncryptedItem) []ItemResult {
	results := make([]ItemResult, 0, len(items))
	for _, item := range items {
		plaintext, err := s.DecryptItem(item)
		results = append(results, ItemResult{ItemID: item.ItemID, Plaintext: plaintext, Err: err})
	}
	return results
}

// UnwrapItemKey recovers the raw item key for re-wrapping at share time.
// The caller must zero the returned key.
func (s *Session) UnwrapItemKey(item *types.EncryptedItem) ([]byte, error) {
	privateKey, err := s.privateKeyRef()
	if err != nil {
		return nil, err
	}
	if item.OwnerPublicKeyID != s.PublicKeyID() {
		return nil, types.ErrKeyMismatch
	}
	return crypto.UnwrapKey(privateKey, item.WrappedItemKey)
}
