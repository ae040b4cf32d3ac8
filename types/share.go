package types

import "time"

const (
	// Possible share permissions
	SHARE_PERMISSION_READ = "read"

	// Possible grant states
	GRANT_STATE_ACTIVE   = "active"
	GRANT_STATE_EXPIRED  = "expired"
	GRANT_STATE_REVOKED  = "revoked"
	GRANT_STATE_CONSUMED = "consumed"

	// Possible analysis types for AI share grants
	ANALYSIS_TYPE_SENTIMENT = "sentiment"
	ANALYSIS_TYPE_THEMES    = "themes"
	ANALYSIS_TYPE_SUMMARY   = "summary"
	ANALYSIS_TYPE_PATTERNS  = "patterns"
)

// ShareGrant authorizes a specific recipient to decrypt a specific item's
// key for a bounded time. The item key is re-wrapped under the recipient's
// public key at grant time; recipient key rotation is deliberately not
// propagated, so rotated-away grants become unreadable.
// Lifecycle: Active -> Revoked | Expired | Consumed, all terminal.
type ShareGrant struct {
	BaseDocument     `json:",inline"`
	ShareID          string `json:"shareId"`
	ItemID           string `json:"itemId" validate:"required"`
	ItemType         string `json:"itemType,omitempty"`
	OwnerUserID      string `json:"ownerUserId"`
	OwnerPublicKeyID string `json:"ownerPublicKeyId,omitempty"`
	RecipientUserID  string `json:"recipientUserId" validate:"required"`
	// WrappedItemKeyForRecipient is the item key wrapped under the recipient's public key at grant time
	WrappedItemKeyForRecipient string   `json:"wrappedItemKeyForRecipient" validate:"required,base64"`
	Permissions                []string `json:"permissions" validate:"required,min=1,dive,oneof=read"`
	CreatedAt                  int64    `json:"createdAt"` // unix milliseconds
	ExpiresAt                  int64    `json:"expiresAt" validate:"required"`
	Revoked                    bool     `json:"revoked"`

	// AI analysis grants only
	SingleUse    bool   `json:"singleUse,omitempty"`
	AnalysisType string `json:"analysisType,omitempty"`
	ConsumedAt   int64  `json:"consumedAt,omitempty"`

	// IdempotencyKey deduplicates retried share creation
	IdempotencyKey string `json:"idempotencyKey,omitempty"`
}

// State classifies the grant at the given instant. Revocation wins over
// expiry so an explicit revoke is reported even after the grant lapses.
func (g *ShareGrant) State(now time.Time) string {
	if g.Revoked {
		return GRANT_STATE_REVOKED
	}
	if g.SingleUse && g.ConsumedAt > 0 {
		return GRANT_STATE_CONSUMED
	}
	if now.UnixMilli() >= g.ExpiresAt {
		return GRANT_STATE_EXPIRED
	}
	return GRANT_STATE_ACTIVE
}

// AccessError maps a non-active grant state to its typed denial.
func (g *ShareGrant) AccessError(now time.Time) error {
	switch g.State(now) {
	case GRANT_STATE_REVOKED:
		return ErrGrantRevoked
	case GRANT_STATE_CONSUMED:
		return ErrGrantConsumed
	case GRANT_STATE_EXPIRED:
		return ErrGrantExpired
	}
	return nil
}

const (
	// Possible analysis request statuses
	ANALYSIS_STATUS_PENDING    = "pending"
	ANALYSIS_STATUS_PROCESSING = "processing"
	ANALYSIS_STATUS_EXPIRED    = "expired"
)

// AnalysisRequest groups the single-use AI grants issued for one analysis run.
type AnalysisRequest struct {
	BaseDocument `json:",inline"`
	RequestID    string   `json:"requestId"`
	UserID       string   `json:"userId"`
	ItemType     string   `json:"itemType"`
	ItemIDs      []string `json:"itemIds"`
	AnalysisType string   `json:"analysisType"`
	Context      string   `json:"context,omitempty"`
	ShareIDs     []string `json:"shareIds"`
	Status       string   `json:"status"`
	Created      int64    `json:"created"`
	ExpiresAt    int64    `json:"expiresAt"`
}
