package types

// IdentityKeyBundle is the server-held record of a user's asymmetric
// identity: the public half in the clear and the private half wrapped
// under the user's password-derived master key. The server can never
// unwrap it. Document ID is the user ID (one identity per user).
type IdentityKeyBundle struct {
	BaseDocument `json:",inline"`
	UserID       string `json:"userId" validate:"required"`
	// PublicKey is the base64 X25519 public key
	PublicKey string `json:"publicKey" validate:"required,base64"`
	// PublicKeyID is the sha256 fingerprint of PublicKey, the authoritative identity token
	PublicKeyID string `json:"publicKeyId" validate:"required"`
	// WrappedPrivateKey is the private key AEAD-encrypted under the master key
	WrappedPrivateKey string `json:"wrappedPrivateKey" validate:"required,base64"`
	KdfSalt           string `json:"kdfSalt" validate:"required,base64"`
	KdfIterations     int    `json:"kdfIterations" validate:"required,min=100000"`
	Created           int64  `json:"created"` // unix milliseconds
}

// BundleCompleteness marks which view of a user bundle a fetch produced.
type BundleCompleteness int

const (
	// BundleAbsent means the server has no identity for the user
	BundleAbsent BundleCompleteness = iota
	// BundlePublicKeyOnly is the view other users get
	BundlePublicKeyOnly
	// BundleFull includes the wrapped private key and KDF inputs (self only)
	BundleFull
)

// UserKeyBundle is the client-side view of a server bundle. Completeness
// states which optional fields are meaningful; comparison logic must only
// match on the fields all variants share (the PublicKeyID fingerprint)
// and never infer a mismatch from absent optional fields.
type UserKeyBundle struct {
	Completeness      BundleCompleteness `json:"-"`
	UserID            string             `json:"userId"`
	PublicKey         string             `json:"publicKey,omitempty"`
	PublicKeyID       string             `json:"publicKeyId,omitempty"`
	KdfSalt           string             `json:"kdfSalt,omitempty"`
	KdfIterations     int                `json:"kdfIterations,omitempty"`
	WrappedPrivateKey string             `json:"wrappedPrivateKey,omitempty"`
}

// IsFull reports whether the bundle carries everything needed for unlock.
func (b *UserKeyBundle) IsFull() bool {
	return b != nil && b.Completeness == BundleFull
}

// EncryptedItem is a single record encrypted under a random per-item
// symmetric key; the item key travels wrapped under the owner's public key.
type EncryptedItem struct {
	ItemID     string `json:"itemId" validate:"required"`
	ItemType   string `json:"itemType,omitempty"`
	Ciphertext string `json:"ciphertext" validate:"required,base64"`
	IV         string `json:"iv" validate:"required,base64"`
	// WrappedItemKey is decryptable only by the private key matching OwnerPublicKeyID
	WrappedItemKey   string `json:"wrappedItemKey" validate:"required,base64"`
	OwnerPublicKeyID string `json:"ownerPublicKeyId" validate:"required"`
}
