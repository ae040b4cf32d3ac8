package vault

import (
	"context"
	"time"

	"github.com/john-matlock-eng/journal-vault/client"
	"github.com/john-matlock-eng/journal-vault/crypto"
	"github.com/john-matlock-eng/journal-vault/types"
)

const (
	// MaxAIShareTTL is the hard ceiling for analysis grants. Clamped
	// here and again server side.
	MaxAIShareTTL = 30 * time.Minute
)

// AIShareManager grants the AI analysis consumer single-use access to
// item keys. The keys are wrapped under the consumer's public key, so
// the server remains unable to read anything in transit.
type AIShareManager struct {
	session *Session
	client  *client.Client
}

func NewAIShareManager(session *Session, cl *client.Client) *AIShareManager {
	return &AIShareManager{session: session, client: cl}
}

// CreateAnalysisShares wraps each item's key for the AI consumer and
// requests the analysis. An item the session cannot unwrap fails the
// whole request up front; partially granted analysis runs are worse
// than none.
func (am *AIShareManager) CreateAnalysisShares(ctx context.Context, items []*types.EncryptedItem, analysisType string, analysisContext string, ttl time.Duration) (*types.OutputAIShare, error) {
	if len(items) == 0 || analysisType == "" {
		return nil, types.ErrBadRequest
	}

	check, err := am.client.Check(ctx)
	if err != nil {
		return nil, err
	}
	if check.AIPublicKey == "" {
		return nil, types.ErrRecipientNotFound
	}

	if ttl <= 0 || ttl > MaxAIShareTTL {
		ttl = MaxAIShareTTL
	}

	itemIDs := make([]string, 0, len(items))
	wrappedKeys := make(map[string]string, len(items))
	itemType := ""
	for _, item := range items {
		itemKey, uErr := am.session.UnwrapItemKey(item)
		if uErr != nil {
			return nil, uErr
		}
		wrapped, wErr := crypto.WrapKey(check.AIPublicKey, itemKey)
		crypto.Zero(itemKey)
		if wErr != nil {
			return nil, wErr
		}
		itemIDs = append(itemIDs, item.ItemID)
		wrappedKeys[item.ItemID] = wrapped
		if itemType == "" {
			itemType = item.ItemType
		}
	}

	input := &types.InputCreateAIShare{
		ItemType:        itemType,
		ItemIDs:         itemIDs,
		AnalysisType:    analysisType,
		Context:         analysisContext,
		WrappedItemKeys: wrappedKeys,
		ExpiresAt:       time.Now().UTC().Add(ttl).UnixMilli(),
	}
	return am.client.CreateAIShares(ctx, input)
}

// GetAnalysisRequest returns the status of a prior analysis request.
func (am *AIShareManager) GetAnalysisRequest(ctx context.Context, requestID string) (*types.AnalysisRequest, error) {
	return am.client.GetAnalysisRequest(ctx, requestID)
}
