package vault

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/john-matlock-eng/journal-vault/crypto"
	"github.com/john-matlock-eng/journal-vault/types"
)

const (
	// cacheKdfIterations is lower than the master key KDF on purpose:
	// the cache key input is a high-entropy device fingerprint, not a
	// human password.
	cacheKdfIterations = 10_000
)

// PasswordCache stores the vault password sealed under a device-bound
// key so short app restarts don't force a re-prompt. The cache file is
// useless off the device: the sealing key is derived from the device
// fingerprint, which includes a salt that never leaves local disk.
type PasswordCache struct {
	path          string
	fingerprinter DeviceFingerprinter
	ttl           time.Duration

	mu sync.Mutex
}

type cacheRecord struct {
	Sealed    string `json:"sealed"`
	KdfSalt   string `json:"kdfSalt"`
	ExpiresAt int64  `json:"expiresAt"`
	CreatedAt int64  `json:"createdAt"`
}

// NewPasswordCache stores its record inside dir, which should be a
// local, non-synced application data directory.
func NewPasswordCache(dir string, fingerprinter DeviceFingerprinter, ttl time.Duration) *PasswordCache {
	return &PasswordCache{
		path:          filepath.Join(dir, "password.cache"),
		fingerprinter: fingerprinter,
		ttl:           ttl,
	}
}

// Store seals the password under the device-bound key.
func (pc *PasswordCache) Store(password string) error {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	key, salt, err := pc.deriveKey("")
	if err != nil {
		return err
	}
	defer crypto.Zero(key)

	sealed, err := crypto.SealWithKey(key, []byte(password), nil)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	record := cacheRecord{
		Sealed:    sealed,
		KdfSalt:   salt,
		ExpiresAt: now.Add(pc.ttl).UnixMilli(),
		CreatedAt: now.UnixMilli(),
	}
	return pc.writeRecord(&record)
}

// Retrieve returns the cached password and refreshes the sliding
// expiry. An expired or missing cache returns types.ErrNotFound; a
// cache that cannot be opened on this device is treated the same after
// being cleared.
func (pc *PasswordCache) Retrieve() (string, error) {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	record, err := pc.readRecord()
	if err != nil {
		return "", types.ErrNotFound
	}

	now := time.Now().UTC()
	if now.UnixMilli() >= record.ExpiresAt {
		pc.clearLocked()
		return "", types.ErrNotFound
	}

	key, _, err := pc.deriveKey(record.KdfSalt)
	if err != nil {
		return "", err
	}
	defer crypto.Zero(key)

	password, err := crypto.OpenWithKey(key, record.Sealed, nil)
	if err != nil {
		// wrong device or damaged record; either way it is dead weight
		pc.clearLocked()
		return "", types.ErrNotFound
	}

	// sliding expiry
	record.ExpiresAt = now.Add(pc.ttl).UnixMilli()
	if wErr := pc.writeRecord(record); wErr != nil {
		return "", wErr
	}
	return string(password), nil
}

// Clear removes the cached password.
func (pc *PasswordCache) Clear() error {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.clearLocked()
}

func (pc *PasswordCache) clearLocked() error {
	err := os.Remove(pc.path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// deriveKey builds the device-bound sealing key. An empty salt asks for
// a fresh one.
func (pc *PasswordCache) deriveKey(saltB64 string) ([]byte, string, error) {
	fingerprint, err := pc.fingerprinter.Fingerprint()
	if err != nil {
		return nil, "", err
	}
	if saltB64 == "" {
		saltB64, err = crypto.GenerateKdfSalt()
		if err != nil {
			return nil, "", err
		}
	}
	key, err := crypto.DeriveLocalKey(fingerprint, saltB64, cacheKdfIterations)
	if err != nil {
		return nil, "", err
	}
	return key, saltB64, nil
}

func (pc *PasswordCache) readRecord() (*cacheRecord, error) {
	data, err := os.ReadFile(pc.path)
	if err != nil {
		return nil, err
	}
	var record cacheRecord
	if jErr := json.Unmarshal(data, &record); jErr != nil {
		return nil, jErr
	}
	return &record, nil
}

func (pc *PasswordCache) writeRecord(record *cacheRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	if mkErr := os.MkdirAll(filepath.Dir(pc.path), 0700); mkErr != nil {
		return mkErr
	}
	return os.WriteFile(pc.path, data, 0600)
}
