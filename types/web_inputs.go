package types

// for POST /api/v1/encryption/setup
type InputSetupEncryption struct {
	PublicKey         string `json:"publicKey" validate:"required,base64"`
	WrappedPrivateKey string `json:"wrappedPrivateKey" validate:"required,base64"`
	KdfSalt           string `json:"kdfSalt" validate:"required,base64"`
	KdfIterations     int    `json:"kdfIterations" validate:"required,min=100000"`
}

// for POST /api/v1/encryption/shares
type InputCreateShare struct {
	ItemID                     string   `json:"itemId" validate:"required"`
	ItemType                   string   `json:"itemType,omitempty"`
	RecipientUserID            string   `json:"recipientUserId" validate:"required"`
	WrappedItemKeyForRecipient string   `json:"wrappedItemKeyForRecipient" validate:"required,base64"`
	Permissions                []string `json:"permissions" validate:"required,min=1,dive,oneof=read"`
	ExpiresAt                  int64    `json:"expiresAt" validate:"required"`
}

// for POST /api/v1/encryption/ai-shares
type InputCreateAIShare struct {
	ItemType     string   `json:"itemType" validate:"required"`
	ItemIDs      []string `json:"itemIds" validate:"required,min=1"`
	AnalysisType string   `json:"analysisType" validate:"required,oneof=sentiment themes summary patterns"`
	Context      string   `json:"context,omitempty"`
	// WrappedItemKeys carries, per item ID, the item key wrapped under the AI consumer's public key
	WrappedItemKeys map[string]string `json:"wrappedItemKeys" validate:"required,min=1"`
	// ExpiresAt is clamped server-side to the configured AI share ceiling
	ExpiresAt int64 `json:"expiresAt,omitempty"`
}

// for PUT /api/v1/users/email-mapping
type InputEmailMapping struct {
	Email string `json:"email" validate:"required,email"`
}
