package services

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/john-matlock-eng/journal-vault/repository"
	"github.com/john-matlock-eng/journal-vault/types"
	"github.com/stretchr/testify/assert"
)

var testURL = "http://localhost:5689"

func initMockSelector(t *testing.T, dbNames ...string) repository.DBSelector {
	t.Helper()
	httpmock.Activate()

	selector := repository.NewCouchDBSelector()
	for _, dbName := range dbNames {
		mr, _ := httpmock.NewJsonResponder(201, types.OK{IsOK: true})
		httpmock.RegisterResponder("HEAD", fmt.Sprintf("%s/%s", testURL, dbName), mr)
		httpmock.RegisterResponder("PUT", fmt.Sprintf("%s/%s", testURL, dbName), mr)

		db, err := repository.NewCouchDBRepository(testURL, dbName, "test", "test", true)
		if err != nil {
			t.Fatal(err)
		}
		selector.AddDB(db)
	}
	return selector
}

func emptyFindResponder() httpmock.Responder {
	return httpmock.NewStringResponder(200, `{"docs":[],"bookmark":"nil"}`)
}

func TestCreateShareClampsTTL(t *testing.T) {
	selector := initMockSelector(t, repository.Shares)
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("POST", fmt.Sprintf("%s/%s/_find", testURL, repository.Shares), emptyFindResponder())
	saved, _ := httpmock.NewJsonResponder(201, types.OK{IsOK: true})
	httpmock.RegisterResponder("PUT", fmt.Sprintf(`=~^%s/%s/.+`, testURL, repository.Shares), saved)

	ss := NewShareService(selector, types.NewEnvironment(nil))

	// a requested expiry far past the ceiling is clamped down
	farFuture := time.Now().UTC().Add(90 * 24 * time.Hour).UnixMilli()
	input := &types.InputCreateShare{
		ItemID:                     "item-1",
		RecipientUserID:            "bob",
		WrappedItemKeyForRecipient: "d3JhcHBlZA==",
		Permissions:                []string{types.SHARE_PERMISSION_READ},
		ExpiresAt:                  farFuture,
	}
	grant, err := ss.CreateShare("alice", "fp-alice", input, "idem-1", false, "", 30*24*time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	ceiling := time.Now().UTC().Add(30*24*time.Hour + time.Minute).UnixMilli()
	assert.LessOrEqual(t, grant.ExpiresAt, ceiling)
	assert.Equal(t, "alice", grant.OwnerUserID)
	assert.NotEmpty(t, grant.ShareID)
}

func TestCreateShareIdempotencyDedup(t *testing.T) {
	selector := initMockSelector(t, repository.Shares)
	defer httpmock.DeactivateAndReset()

	existing := types.ShareGrant{
		ShareID:         "share-existing",
		ItemID:          "item-1",
		OwnerUserID:     "alice",
		RecipientUserID: "bob",
		IdempotencyKey:  "idem-dup",
	}
	httpmock.RegisterResponder("POST", fmt.Sprintf("%s/%s/_find", testURL, repository.Shares),
		httpmock.NewStringResponder(200, fmt.Sprintf(`{"docs":[{"shareId":"%s","itemId":"item-1","ownerUserId":"alice","recipientUserId":"bob","idempotencyKey":"idem-dup"}]}`, existing.ShareID)))

	ss := NewShareService(selector, types.NewEnvironment(nil))

	input := &types.InputCreateShare{
		ItemID:                     "item-1",
		RecipientUserID:            "bob",
		WrappedItemKeyForRecipient: "d3JhcHBlZA==",
		Permissions:                []string{types.SHARE_PERMISSION_READ},
		ExpiresAt:                  time.Now().UTC().Add(time.Hour).UnixMilli(),
	}
	grant, err := ss.CreateShare("alice", "fp-alice", input, "idem-dup", false, "", 30*24*time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	// retried creation returns the already stored grant, no duplicate PUT
	assert.Equal(t, "share-existing", grant.ShareID)
	info := httpmock.GetCallCountInfo()
	assert.Zero(t, info[fmt.Sprintf("PUT %s/%s/share-existing", testURL, repository.Shares)])
}

func registerGrant(t *testing.T, grant *types.ShareGrant) {
	t.Helper()
	mk, err := httpmock.NewJsonResponder(200, grant)
	if err != nil {
		t.Fatal(err)
	}
	httpmock.RegisterResponder("GET", fmt.Sprintf("%s/%s/%s", testURL, repository.Shares, grant.ShareID), mk)
}

func TestGetShareKeyDeniedStates(t *testing.T) {
	selector := initMockSelector(t, repository.Shares)
	defer httpmock.DeactivateAndReset()

	ss := NewShareService(selector, types.NewEnvironment(nil))
	now := time.Now().UTC()

	revoked := &types.ShareGrant{
		BaseDocument:    types.BaseDocument{UnderscoreID: "share-revoked", UnderscoreRev: "2-a"},
		ShareID:         "share-revoked",
		RecipientUserID: "bob",
		ExpiresAt:       now.Add(time.Hour).UnixMilli(),
		Revoked:         true,
	}
	registerGrant(t, revoked)
	_, err := ss.GetShareKey("bob", "share-revoked")
	assert.Equal(t, types.ErrGrantRevoked, err)

	expired := &types.ShareGrant{
		BaseDocument:    types.BaseDocument{UnderscoreID: "share-expired", UnderscoreRev: "1-a"},
		ShareID:         "share-expired",
		RecipientUserID: "bob",
		ExpiresAt:       now.Add(-time.Minute).UnixMilli(),
	}
	registerGrant(t, expired)
	_, err = ss.GetShareKey("bob", "share-expired")
	assert.Equal(t, types.ErrGrantExpired, err)

	consumed := &types.ShareGrant{
		BaseDocument:    types.BaseDocument{UnderscoreID: "share-consumed", UnderscoreRev: "2-b"},
		ShareID:         "share-consumed",
		RecipientUserID: "bob",
		ExpiresAt:       now.Add(time.Hour).UnixMilli(),
		SingleUse:       true,
		ConsumedAt:      now.Add(-time.Minute).UnixMilli(),
	}
	registerGrant(t, consumed)
	_, err = ss.GetShareKey("bob", "share-consumed")
	assert.Equal(t, types.ErrGrantConsumed, err)

	// a grant addressed to someone else is invisible, not denied
	foreign := &types.ShareGrant{
		BaseDocument:    types.BaseDocument{UnderscoreID: "share-foreign", UnderscoreRev: "1-c"},
		ShareID:         "share-foreign",
		RecipientUserID: "carol",
		ExpiresAt:       now.Add(time.Hour).UnixMilli(),
	}
	registerGrant(t, foreign)
	_, err = ss.GetShareKey("bob", "share-foreign")
	assert.Equal(t, types.ErrNotFound, err)
}

func TestGetShareKeySingleUseConsumption(t *testing.T) {
	selector := initMockSelector(t, repository.Shares)
	defer httpmock.DeactivateAndReset()

	ss := NewShareService(selector, types.NewEnvironment(nil))
	now := time.Now().UTC()

	grant := &types.ShareGrant{
		BaseDocument:    types.BaseDocument{UnderscoreID: "share-ai", UnderscoreRev: "1-a"},
		ShareID:         "share-ai",
		RecipientUserID: "ai-analysis",
		ExpiresAt:       now.Add(15 * time.Minute).UnixMilli(),
		SingleUse:       true,
		AnalysisType:    types.ANALYSIS_TYPE_SENTIMENT,
	}
	registerGrant(t, grant)
	saved, _ := httpmock.NewJsonResponder(201, types.OK{IsOK: true})
	httpmock.RegisterResponder("PUT", fmt.Sprintf("%s/%s/share-ai", testURL, repository.Shares), saved)

	got, err := ss.GetShareKey("ai-analysis", "share-ai")
	if err != nil {
		t.Fatal(err)
	}
	assert.NotZero(t, got.ConsumedAt)

	// a racing second consumer loses the revision race
	httpmock.RegisterResponder("PUT", fmt.Sprintf("%s/%s/share-ai", testURL, repository.Shares),
		httpmock.NewStringResponder(409, `{"error":"conflict","reason":"Document update conflict."}`))
	_, err = ss.GetShareKey("ai-analysis", "share-ai")
	assert.Equal(t, types.ErrGrantConsumed, err)
}

func TestRevokeShareOwnerOnly(t *testing.T) {
	selector := initMockSelector(t, repository.Shares)
	defer httpmock.DeactivateAndReset()

	ss := NewShareService(selector, types.NewEnvironment(nil))

	grant := &types.ShareGrant{
		BaseDocument:    types.BaseDocument{UnderscoreID: "share-1", UnderscoreRev: "1-a"},
		ShareID:         "share-1",
		OwnerUserID:     "alice",
		RecipientUserID: "bob",
		ExpiresAt:       time.Now().UTC().Add(time.Hour).UnixMilli(),
	}
	registerGrant(t, grant)

	err := ss.RevokeShare("mallory", "share-1")
	assert.Equal(t, types.ErrNotFound, err)

	saved, _ := httpmock.NewJsonResponder(201, types.OK{IsOK: true})
	httpmock.RegisterResponder("PUT", fmt.Sprintf("%s/%s/share-1", testURL, repository.Shares), saved)
	err = ss.RevokeShare("alice", "share-1")
	assert.NoError(t, err)
}

func TestCreateShareDefaultTTLWhenUnconfigured(t *testing.T) {
	selector := initMockSelector(t, repository.Shares)
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("POST", fmt.Sprintf("%s/%s/_find", testURL, repository.Shares), emptyFindResponder())
	saved, _ := httpmock.NewJsonResponder(201, types.OK{IsOK: true})
	httpmock.RegisterResponder("PUT", fmt.Sprintf(`=~^%s/%s/.+`, testURL, repository.Shares), saved)

	ss := NewShareService(selector, types.NewEnvironment(nil))

	requested := time.Now().UTC().Add(24 * time.Hour).UnixMilli()
	input := &types.InputCreateShare{
		ItemID:                     "item-1",
		RecipientUserID:            "bob",
		WrappedItemKeyForRecipient: "d3JhcHBlZA==",
		Permissions:                []string{types.SHARE_PERMISSION_READ},
		ExpiresAt:                  requested,
	}
	// a zero max TTL falls back to the default instead of clamping
	// everything to now
	grant, err := ss.CreateShare("alice", "fp-alice", input, "", false, "", 0)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, requested, grant.ExpiresAt)
	assert.NoError(t, grant.AccessError(time.Now().UTC().Add(time.Minute)))
}

func TestInvalidateGrantsRevokesAndTerminates(t *testing.T) {
	selector := initMockSelector(t, repository.Shares)
	defer httpmock.DeactivateAndReset()

	page := `{"docs":[{"_id":"share-1","_rev":"1-a","shareId":"share-1","ownerUserId":"alice","ownerPublicKeyId":"fp-old","revoked":false}]}`
	calls := 0
	httpmock.RegisterResponder("POST", fmt.Sprintf("%s/%s/_find", testURL, repository.Shares),
		func(req *http.Request) (*http.Response, error) {
			calls++
			if calls == 1 {
				return httpmock.NewStringResponse(200, page), nil
			}
			return httpmock.NewStringResponse(200, `{"docs":[]}`), nil
		})
	saved, _ := httpmock.NewJsonResponder(201, types.OK{IsOK: true})
	httpmock.RegisterResponder("PUT", fmt.Sprintf("%s/%s/share-1", testURL, repository.Shares), saved)

	ss := NewShareService(selector, types.NewEnvironment(nil))

	revoked, err := ss.InvalidateGrantsForIdentity(context.Background(), "alice", "fp-old")
	assert.NoError(t, err)
	assert.Equal(t, 1, revoked)
	assert.Equal(t, 2, calls)
}

func TestInvalidateGrantsStopsWithoutProgress(t *testing.T) {
	selector := initMockSelector(t, repository.Shares)
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("POST", fmt.Sprintf("%s/%s/_find", testURL, repository.Shares),
		httpmock.NewStringResponder(200, `{"docs":[{"_id":"share-1","_rev":"1-a","shareId":"share-1","ownerUserId":"alice","ownerPublicKeyId":"fp-old","revoked":false}]}`))
	httpmock.RegisterResponder("PUT", fmt.Sprintf("%s/%s/share-1", testURL, repository.Shares),
		httpmock.NewStringResponder(500, `{"error":"internal_server_error"}`))

	ss := NewShareService(selector, types.NewEnvironment(nil))

	// a page that cannot be revoked must surface the failure, not spin
	revoked, err := ss.InvalidateGrantsForIdentity(context.Background(), "alice", "fp-old")
	assert.Error(t, err)
	assert.Equal(t, 0, revoked)

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = ss.InvalidateGrantsForIdentity(cancelled, "alice", "fp-old")
	assert.Equal(t, context.Canceled, err)
}
