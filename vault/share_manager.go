package vault

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/john-matlock-eng/journal-vault/client"
	"github.com/john-matlock-eng/journal-vault/crypto"
	"github.com/john-matlock-eng/journal-vault/types"
)

const (
	// MaxShareTTL caps user-to-user grants client side; the server
	// enforces its own configured ceiling independently.
	MaxShareTTL = 30 * 24 * time.Hour
)

// ShareManager wraps item keys for recipients at grant time. The wrap
// is a point-in-time snapshot of the recipient's public key: if the
// recipient later rotates their identity, existing grants become
// unreadable rather than silently re-wrapped.
type ShareManager struct {
	session *Session
	client  *client.Client
}

func NewShareManager(session *Session, cl *client.Client) *ShareManager {
	return &ShareManager{session: session, client: cl}
}

// CreateShare resolves the recipient by email, recovers the item key
// with the session's private key, re-wraps it under the recipient's
// public key and registers the grant. The idempotency key makes the
// POST safe to retry.
func (sm *ShareManager) CreateShare(ctx context.Context, item *types.EncryptedItem, recipientEmail string, permissions []string, ttl time.Duration) (*types.OutputShareCreated, error) {
	recipientID, err := sm.client.ResolveRecipient(ctx, recipientEmail)
	if err != nil {
		return nil, err
	}

	recipientBundle, err := sm.client.FetchUserBundle(ctx, recipientID, false)
	if err != nil {
		return nil, err
	}
	if recipientBundle.Completeness == types.BundleAbsent {
		// a resolvable user without keys cannot receive wrapped material
		return nil, types.ErrRecipientNotFound
	}

	itemKey, err := sm.session.UnwrapItemKey(item)
	if err != nil {
		return nil, err
	}
	defer crypto.Zero(itemKey)

	wrappedForRecipient, err := crypto.WrapKey(recipientBundle.PublicKey, itemKey)
	if err != nil {
		return nil, err
	}

	if ttl <= 0 || ttl > MaxShareTTL {
		ttl = MaxShareTTL
	}
	if len(permissions) == 0 {
		permissions = []string{types.SHARE_PERMISSION_READ}
	}

	input := &types.InputCreateShare{
		ItemID:                     item.ItemID,
		ItemType:                   item.ItemType,
		RecipientUserID:            recipientID,
		WrappedItemKeyForRecipient: wrappedForRecipient,
		Permissions:                permissions,
		ExpiresAt:                  time.Now().UTC().Add(ttl).UnixMilli(),
	}
	return sm.client.CreateShare(ctx, input, uuid.NewString())
}

// ListShares lists grants the session owner created.
func (sm *ShareManager) ListShares(ctx context.Context, itemType string, bookmark string, limit int) (*types.PagingResults, error) {
	return sm.client.ListShares(ctx, itemType, bookmark, limit)
}

// RevokeShare revokes a grant. Terminal; the recipient is denied on
// their next key fetch.
func (sm *ShareManager) RevokeShare(ctx context.Context, shareID string) error {
	return sm.client.RevokeShare(ctx, shareID)
}

// DecryptShared decrypts an item shared with the session owner, using
// the wrapped key fetched from the grant. Typed grant denials from the
// fetch pass through unchanged.
func (sm *ShareManager) DecryptShared(ctx context.Context, item *types.EncryptedItem, shareID string) ([]byte, error) {
	shareKey, err := sm.client.GetShareKey(ctx, shareID)
	if err != nil {
		return nil, err
	}
	privateKey, err := sm.session.privateKeyRef()
	if err != nil {
		return nil, err
	}
	return crypto.DecryptSharedContent(item, privateKey, shareKey.WrappedItemKey)
}
