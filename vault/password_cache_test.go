package vault

import (
	"testing"
	"time"

	"github.com/john-matlock-eng/journal-vault/types"
	"github.com/stretchr/testify/assert"
)

type fixedFingerprinter struct {
	fp string
}

func (f *fixedFingerprinter) Fingerprint() (string, error) {
	return f.fp, nil
}

func TestPasswordCacheRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cache := NewPasswordCache(dir, &fixedFingerprinter{fp: "device-a"}, time.Hour)

	if err := cache.Store("hunter2 but longer"); err != nil {
		t.Fatal(err)
	}
	got, err := cache.Retrieve()
	assert.NoError(t, err)
	assert.Equal(t, "hunter2 but longer", got)
}

func TestPasswordCacheMissing(t *testing.T) {
	cache := NewPasswordCache(t.TempDir(), &fixedFingerprinter{fp: "device-a"}, time.Hour)
	_, err := cache.Retrieve()
	assert.Equal(t, types.ErrNotFound, err)
}

func TestPasswordCacheExpiry(t *testing.T) {
	dir := t.TempDir()
	cache := NewPasswordCache(dir, &fixedFingerprinter{fp: "device-a"}, time.Millisecond)

	if err := cache.Store("short lived"); err != nil {
		t.Fatal(err)
	}
	time.Sleep(5 * time.Millisecond)
	_, err := cache.Retrieve()
	assert.Equal(t, types.ErrNotFound, err)

	// expiry cleared the record, not just denied it
	_, err = cache.Retrieve()
	assert.Equal(t, types.ErrNotFound, err)
}

func TestPasswordCacheSlidingExpiry(t *testing.T) {
	dir := t.TempDir()
	cache := NewPasswordCache(dir, &fixedFingerprinter{fp: "device-a"}, time.Hour)

	if err := cache.Store("pw"); err != nil {
		t.Fatal(err)
	}
	before, err := cache.readRecord()
	if err != nil {
		t.Fatal(err)
	}

	time.Sleep(2 * time.Millisecond)
	if _, err := cache.Retrieve(); err != nil {
		t.Fatal(err)
	}
	after, err := cache.readRecord()
	if err != nil {
		t.Fatal(err)
	}
	// successful use pushed the expiry forward
	assert.GreaterOrEqual(t, after.ExpiresAt, before.ExpiresAt)
	assert.Equal(t, before.CreatedAt, after.CreatedAt)
}

func TestPasswordCacheDeviceBound(t *testing.T) {
	dir := t.TempDir()
	cache := NewPasswordCache(dir, &fixedFingerprinter{fp: "device-a"}, time.Hour)
	if err := cache.Store("pw"); err != nil {
		t.Fatal(err)
	}

	// same file read on a different device fails and self-destructs
	other := NewPasswordCache(dir, &fixedFingerprinter{fp: "device-b"}, time.Hour)
	_, err := other.Retrieve()
	assert.Equal(t, types.ErrNotFound, err)

	_, err = cache.Retrieve()
	assert.Equal(t, types.ErrNotFound, err)
}

func TestPasswordCacheClear(t *testing.T) {
	dir := t.TempDir()
	cache := NewPasswordCache(dir, &fixedFingerprinter{fp: "device-a"}, time.Hour)
	if err := cache.Store("pw"); err != nil {
		t.Fatal(err)
	}
	assert.NoError(t, cache.Clear())
	_, err := cache.Retrieve()
	assert.Equal(t, types.ErrNotFound, err)
	// clearing an already empty cache is fine
	assert.NoError(t, cache.Clear())
}

func TestHostFingerprinterStableSalt(t *testing.T) {
	dir := t.TempDir()
	hf := NewHostFingerprinter(dir)
	first, err := hf.Fingerprint()
	if err != nil {
		t.Fatal(err)
	}
	second, err := hf.Fingerprint()
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, first, second)

	// a different directory means a different persisted salt
	other := NewHostFingerprinter(t.TempDir())
	otherFp, err := other.Fingerprint()
	if err != nil {
		t.Fatal(err)
	}
	assert.NotEqual(t, first, otherFp)
}
