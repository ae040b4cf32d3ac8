package types

import "errors"

var (
	// ErrNotFound is returned when a document does not exist
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when the resource conflicts (e.g. update of old revision)
	ErrConflict = errors.New("conflict")

	// ErrBadRequest is returned on malformed input
	ErrBadRequest = errors.New("bad request")

	// ErrInternal (for unhandled exceptions)
	ErrInternal = errors.New("internal error")

	// ErrKeyDerivation is returned on malformed KDF inputs. It is never
	// returned for a wrong password: a wrong password derives a different
	// but well-formed key, caught downstream by unwrap failure.
	ErrKeyDerivation = errors.New("key derivation failed: malformed salt or iterations")

	// ErrUnwrapFailure is returned when a wrapped key cannot be unwrapped.
	// Wrong password and corrupted bundle are indistinguishable here, so
	// the error cannot serve as a password-guess oracle.
	ErrUnwrapFailure = errors.New("unwrap failure")

	// ErrServerConflict is returned when setup races an already registered identity (HTTP 409)
	ErrServerConflict = errors.New("server identity already exists")

	// ErrMismatchDetected is returned when local and server key identities
	// diverge and the server bundle cannot be unlocked with the entered
	// password. Requires a user decision: adopt the server identity or reset.
	ErrMismatchDetected = errors.New("key identity mismatch detected")

	// ErrKeyMismatch is returned when an item is keyed to a different identity than the caller's
	ErrKeyMismatch = errors.New("item is wrapped for a different key identity")

	// ErrDecryptionFailure is returned on AEAD tag verification failure (tampering or wrong key)
	ErrDecryptionFailure = errors.New("decryption failure")

	// ErrGrantExpired is returned when a share grant is past its expiry
	ErrGrantExpired = errors.New("share grant expired")

	// ErrGrantRevoked is returned when a share grant has been revoked
	ErrGrantRevoked = errors.New("share grant revoked")

	// ErrGrantConsumed is returned when a single-use grant was already read once
	ErrGrantConsumed = errors.New("share grant already consumed")

	// ErrRecipientNotFound aborts a share before any cryptographic work
	ErrRecipientNotFound = errors.New("recipient not found")

	// ErrSessionLocked is returned when an operation requires an unlocked private key
	ErrSessionLocked = errors.New("session is locked")
)
