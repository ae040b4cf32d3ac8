package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-kit/log/level"
	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/john-matlock-eng/journal-vault/global"
	"github.com/john-matlock-eng/journal-vault/repository"
	"github.com/john-matlock-eng/journal-vault/types"
)

// DefaultMaxShareTTL bounds user-to-user grants when the configured
// maximum is unset or non-positive.
const DefaultMaxShareTTL = 30 * 24 * time.Hour

// ShareService owns the grant lifecycle. Grants are immutable after
// creation except for the two terminal transitions (revoke, consume);
// the state checks run on every read, never only at grant time.
type ShareService struct {
	sharesRepo repository.Repository
	env        *types.Environment
}

func NewShareService(dbSelector repository.DBSelector, environment *types.Environment) *ShareService {
	sharesRepo, err := dbSelector.ChooseDB(repository.Shares)
	if err != nil {
		level.Error(global.Logger).Log("msg", "error while choosing db", "err", err)
		panic(err)
	}
	return &ShareService{sharesRepo: sharesRepo, env: environment}
}

// CreateShare stores a grant whose item key the owner wrapped under the
// recipient's public key. The expiry is clamped to maxTTL. Retries with
// the same idempotency key return the already created grant instead of
// issuing a duplicate.
func (ss *ShareService) CreateShare(ownerUserID string, ownerPublicKeyID string, input *types.InputCreateShare, idempotencyKey string, singleUse bool, analysisType string, maxTTL time.Duration) (*types.ShareGrant, error) {
	now := time.Now().UTC()

	if idempotencyKey != "" {
		existing, err := ss.findByIdempotencyKey(ownerUserID, idempotencyKey)
		if err != nil && err != types.ErrNotFound {
			return nil, err
		}
		if existing != nil {
			return existing, nil
		}
	}

	if maxTTL <= 0 {
		maxTTL = DefaultMaxShareTTL
	}
	expiresAt := input.ExpiresAt
	ceiling := now.Add(maxTTL).UnixMilli()
	if expiresAt <= now.UnixMilli() || expiresAt > ceiling {
		expiresAt = ceiling
	}

	grant := &types.ShareGrant{
		ShareID:                    uuid.NewString(),
		ItemID:                     input.ItemID,
		ItemType:                   input.ItemType,
		OwnerUserID:                ownerUserID,
		OwnerPublicKeyID:           ownerPublicKeyID,
		RecipientUserID:            input.RecipientUserID,
		WrappedItemKeyForRecipient: input.WrappedItemKeyForRecipient,
		Permissions:                input.Permissions,
		CreatedAt:                  now.UnixMilli(),
		ExpiresAt:                  expiresAt,
		SingleUse:                  singleUse,
		AnalysisType:               analysisType,
		IdempotencyKey:             idempotencyKey,
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	if err := ss.sharesRepo.Save(ctx, grant.ShareID, grant); err != nil {
		return nil, err
	}
	return grant, nil
}

// GetShareKey is the recipient read path. Revocation, expiry and
// single-use consumption are checked on every call; a single-use grant
// flips to Consumed on its first successful read via an optimistic
// revision update, so a racing second reader loses with ErrGrantConsumed.
func (ss *ShareService) GetShareKey(requesterID string, shareID string) (*types.ShareGrant, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	grant, err := ss.getGrant(ctx, shareID)
	if err != nil {
		return nil, err
	}
	if grant.RecipientUserID != requesterID {
		return nil, types.ErrNotFound
	}

	now := time.Now().UTC()
	if aErr := grant.AccessError(now); aErr != nil {
		return nil, aErr
	}

	if grant.SingleUse {
		grant.ConsumedAt = now.UnixMilli()
		// CouchDB rejects the stale revision of a concurrent consumer
		if uErr := ss.sharesRepo.Update(ctx, grant.ShareID, grant); uErr != nil {
			if uErr == types.ErrConflict {
				return nil, types.ErrGrantConsumed
			}
			return nil, uErr
		}
	}
	return grant, nil
}

// ListShares returns grants where the caller is the grantor; it never
// exposes other users' grants.
func (ss *ShareService) ListShares(ownerUserID string, itemType string, bookmark string, limit int) (*types.PagingResults, error) {
	selector := map[string]interface{}{
		"ownerUserId": ownerUserID,
	}
	if itemType != "" {
		selector["itemType"] = itemType
	}
	query := map[string]interface{}{
		"selector":  selector,
		"use_index": []string{"share-owner-created-index", "share-owner-created-index"},
		"limit":     limit,
		"sort":      []map[string]string{{"createdAt": "desc"}},
	}
	if bookmark != "" {
		query["bookmark"] = bookmark
	}

	var couchdbError types.CouchDBError
	cl := ss.sharesRepo.GetClient().(*resty.Client)
	response, err := cl.R().SetError(&couchdbError).SetBody(query).Post(fmt.Sprintf("%s/_find", ss.sharesRepo.GetDBName()))
	if err != nil {
		return nil, err
	}
	if response.IsError() {
		return nil, fmt.Errorf("error while listing shares: %s", couchdbError.Error)
	}

	var respObj struct {
		Docs     []types.ShareGrant `json:"docs"`
		Bookmark string             `json:"bookmark"`
	}
	if mErr := json.Unmarshal(response.Body(), &respObj); mErr != nil {
		return nil, mErr
	}

	docs := make([]interface{}, 0, len(respObj.Docs))
	for i := range respObj.Docs {
		docs = append(docs, respObj.Docs[i])
	}
	results := &types.PagingResults{Docs: docs}
	if respObj.Bookmark != "" && respObj.Bookmark != "nil" {
		results.Bookmark = respObj.Bookmark
	}
	return results, nil
}

// RevokeShare marks the grant revoked. Terminal: subsequent reads are
// denied even though expiresAt has not elapsed.
func (ss *ShareService) RevokeShare(ownerUserID string, shareID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	grant, err := ss.getGrant(ctx, shareID)
	if err != nil {
		return err
	}
	if grant.OwnerUserID != ownerUserID {
		return types.ErrNotFound
	}
	if grant.Revoked {
		return nil
	}
	grant.Revoked = true
	return ss.sharesRepo.Update(ctx, grant.ShareID, grant)
}

// InvalidateGrantsForIdentity revokes every grant wrapped under a
// destroyed identity. Invoked from the task queue after a reset. A pass
// that revokes nothing from a non-empty page returns the failure so the
// queue's retry policy takes over instead of spinning here.
func (ss *ShareService) InvalidateGrantsForIdentity(ctx context.Context, ownerUserID string, oldPublicKeyID string) (int, error) {
	cl := ss.sharesRepo.GetClient().(*resty.Client)
	revoked := 0
	for {
		if cErr := ctx.Err(); cErr != nil {
			return revoked, cErr
		}
		query := map[string]interface{}{
			"selector": map[string]interface{}{
				"ownerUserId":      ownerUserID,
				"ownerPublicKeyId": oldPublicKeyID,
				"revoked":          false,
			},
			"limit": 100,
		}
		var couchdbError types.CouchDBError
		response, err := cl.R().SetContext(ctx).SetError(&couchdbError).SetBody(query).Post(fmt.Sprintf("%s/_find", ss.sharesRepo.GetDBName()))
		if err != nil {
			return revoked, err
		}
		if response.IsError() {
			return revoked, fmt.Errorf("error while finding grants to invalidate: %s", couchdbError.Error)
		}
		var respObj struct {
			Docs []types.ShareGrant `json:"docs"`
		}
		if mErr := json.Unmarshal(response.Body(), &respObj); mErr != nil {
			return revoked, mErr
		}
		if len(respObj.Docs) == 0 {
			return revoked, nil
		}

		progressed := 0
		var updateErr error
		for i := range respObj.Docs {
			grant := respObj.Docs[i]
			grant.Revoked = true
			if uErr := ss.sharesRepo.Update(ctx, grant.ShareID, &grant); uErr != nil {
				level.Error(global.Logger).Log("msg", "failed to revoke grant", "shareId", grant.ShareID, "err", uErr)
				updateErr = uErr
				continue
			}
			progressed++
		}
		revoked += progressed
		if progressed == 0 {
			return revoked, updateErr
		}
	}
}

// RemoveExpiredGrants deletes grants long past expiry. Access control
// does not depend on this sweep; it is storage hygiene, run from cron.
func (ss *ShareService) RemoveExpiredGrants(olderThan time.Duration) {
	cutoff := time.Now().UTC().Add(-olderThan).UnixMilli()
	cl := ss.sharesRepo.GetClient().(*resty.Client)

	query := map[string]interface{}{
		"selector": map[string]interface{}{
			"expiresAt": map[string]interface{}{"$lt": cutoff},
		},
		"use_index": []string{"share-expiry-index", "share-expiry-index"},
		"limit":     100,
	}
	var couchdbError types.CouchDBError
	response, err := cl.R().SetError(&couchdbError).SetBody(query).Post(fmt.Sprintf("%s/_find", ss.sharesRepo.GetDBName()))
	if err != nil || response.IsError() {
		level.Error(global.Logger).Log("msg", "expired grant sweep failed", "err", err)
		return
	}
	var respObj struct {
		Docs []types.ShareGrant `json:"docs"`
	}
	if mErr := json.Unmarshal(response.Body(), &respObj); mErr != nil {
		level.Error(global.Logger).Log("msg", "expired grant sweep failed", "err", mErr)
		return
	}
	if len(respObj.Docs) == 0 {
		return
	}

	bulkDelete := []types.BaseDocument{}
	for _, doc := range respObj.Docs {
		bulkDelete = append(bulkDelete, types.BaseDocument{
			UnderscoreID:  doc.UnderscoreID,
			UnderscoreRev: doc.UnderscoreRev,
			Deleted:       true,
		})
	}
	body := map[string]interface{}{"docs": bulkDelete}
	if _, bErr := cl.R().SetBody(body).Post(fmt.Sprintf("%s/_bulk_docs", ss.sharesRepo.GetDBName())); bErr != nil {
		level.Error(global.Logger).Log("msg", "bulk delete of expired grants failed", "err", bErr)
	}
	global.Logger.Log("msg", "removed expired grants", "count", len(bulkDelete))
}

func (ss *ShareService) getGrant(ctx context.Context, shareID string) (*types.ShareGrant, error) {
	resp, err := ss.sharesRepo.GetByID(ctx, shareID)
	if err != nil {
		return nil, err
	}
	var grant types.ShareGrant
	if mErr := repository.MapToObject(resp, &grant); mErr != nil {
		return nil, mErr
	}
	return &grant, nil
}

func (ss *ShareService) findByIdempotencyKey(ownerUserID string, idempotencyKey string) (*types.ShareGrant, error) {
	query := map[string]interface{}{
		"selector": map[string]interface{}{
			"ownerUserId":    ownerUserID,
			"idempotencyKey": idempotencyKey,
		},
		"use_index": []string{"share-idempotency-index", "share-idempotency-index"},
		"limit":     1,
	}
	var couchdbError types.CouchDBError
	cl := ss.sharesRepo.GetClient().(*resty.Client)
	response, err := cl.R().SetError(&couchdbError).SetBody(query).Post(fmt.Sprintf("%s/_find", ss.sharesRepo.GetDBName()))
	if err != nil {
		return nil, err
	}
	if response.IsError() {
		return nil, fmt.Errorf("error while checking idempotency key: %s", couchdbError.Error)
	}
	var respObj struct {
		Docs []types.ShareGrant `json:"docs"`
	}
	if mErr := json.Unmarshal(response.Body(), &respObj); mErr != nil {
		return nil, mErr
	}
	if len(respObj.Docs) == 0 {
		return nil, types.ErrNotFound
	}
	return &respObj.Docs[0], nil
}
