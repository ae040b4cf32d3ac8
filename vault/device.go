package vault

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// DeviceFingerprinter produces a stable identifier for the device the
// password cache is bound to. Implementations must be deterministic on
// the same device and must not include PII.
type DeviceFingerprinter interface {
	Fingerprint() (string, error)
}

// HostFingerprinter combines stable host attributes with a random salt
// persisted on first use. The salt means a copied cache file is useless
// on another machine even if the host attributes happen to collide.
type HostFingerprinter struct {
	saltPath string
}

func NewHostFingerprinter(dir string) *HostFingerprinter {
	return &HostFingerprinter{saltPath: filepath.Join(dir, "device.salt")}
}

func (hf *HostFingerprinter) Fingerprint() (string, error) {
	salt, err := hf.loadOrCreateSalt()
	if err != nil {
		return "", err
	}
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return fmt.Sprintf("%s|%s|%s|%s", hostname, runtime.GOOS, runtime.GOARCH, salt), nil
}

func (hf *HostFingerprinter) loadOrCreateSalt() (string, error) {
	data, err := os.ReadFile(hf.saltPath)
	if err == nil && len(data) > 0 {
		return string(data), nil
	}
	raw := make([]byte, 16)
	if _, rErr := rand.Read(raw); rErr != nil {
		return "", rErr
	}
	salt := hex.EncodeToString(raw)
	if mkErr := os.MkdirAll(filepath.Dir(hf.saltPath), 0700); mkErr != nil {
		return "", mkErr
	}
	if wErr := os.WriteFile(hf.saltPath, []byte(salt), 0600); wErr != nil {
		return "", wErr
	}
	return salt, nil
}
