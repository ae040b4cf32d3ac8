package types

// for POST /api/v1/encryption/setup
type OutputSetupEncryption struct {
	PublicKeyID string `json:"publicKeyId"`
	Created     int64  `json:"created"`
}

// for GET /api/v1/encryption/check
type OutputEncryptionCheck struct {
	HasEncryption bool `json:"hasEncryption"`
	// AIPublicKey is the base64 X25519 public key of the AI analysis consumer
	AIPublicKey string `json:"aiPublicKey,omitempty"`
	AIUserID    string `json:"aiUserId,omitempty"`
}

// for POST /api/v1/encryption/shares
type OutputShareCreated struct {
	ShareID   string `json:"shareId"`
	ExpiresAt int64  `json:"expiresAt"`
}

// for GET /api/v1/encryption/shares/{shareId}/key
type OutputShareKey struct {
	ShareID        string   `json:"shareId"`
	ItemID         string   `json:"itemId"`
	ItemType       string   `json:"itemType,omitempty"`
	WrappedItemKey string   `json:"wrappedItemKey"`
	Permissions    []string `json:"permissions"`
	AnalysisType   string   `json:"analysisType,omitempty"`
	ExpiresAt      int64    `json:"expiresAt"`
}

// for POST /api/v1/encryption/ai-shares
type OutputAIShare struct {
	AnalysisRequestID string   `json:"analysisRequestId"`
	ShareIDs          []string `json:"shareIds"`
	ExpiresAt         int64    `json:"expiresAt"`
}

// for GET /api/v1/users/by-email/{email}
type OutputUserID struct {
	UserID string `json:"userId"`
}
