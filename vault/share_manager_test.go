package vault

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/john-matlock-eng/journal-vault/crypto"
	"github.com/john-matlock-eng/journal-vault/types"
	"github.com/stretchr/testify/assert"
)

func TestCreateShareWrapsForRecipient(t *testing.T) {
	cl := newMockClient(t)
	ownerBundle, _ := serverBundle(t, "alice", "pw")
	registerBundle("alice", ownerBundle)
	recipientBundle, recipientKp := serverBundle(t, "bob", "their pw")
	registerBundle("bob", recipientBundle)
	httpmock.RegisterResponder("GET", serverURL+"/api/v1/users/by-email/bob@example.com",
		httpmock.NewJsonResponderOrPanic(200, json.RawMessage(`{"userId":"bob"}`)))

	var captured types.InputCreateShare
	httpmock.RegisterResponder("POST", serverURL+"/api/v1/encryption/shares",
		func(req *http.Request) (*http.Response, error) {
			if err := json.NewDecoder(req.Body).Decode(&captured); err != nil {
				return httpmock.NewStringResponse(400, "bad body"), nil
			}
			if req.Header.Get("X-Idempotency-Key") == "" {
				return httpmock.NewStringResponse(400, "missing idempotency key"), nil
			}
			return httpmock.NewJsonResponse(201, json.RawMessage(`{"shareId":"share-1","expiresAt":123}`))
		})

	session := NewSession(cl, "alice")
	if err := session.Unlock(context.Background(), "pw"); err != nil {
		t.Fatal(err)
	}
	item, err := session.EncryptItem("item-1", "journal", []byte("shared entry"))
	if err != nil {
		t.Fatal(err)
	}

	sm := NewShareManager(session, cl)
	out, err := sm.CreateShare(context.Background(), item, "bob@example.com", nil, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, "share-1", out.ShareID)
	assert.Equal(t, "bob", captured.RecipientUserID)
	assert.Equal(t, []string{types.SHARE_PERMISSION_READ}, captured.Permissions)

	// the posted wrapped key opens with the recipient's private key and
	// decrypts the item
	plaintext, err := crypto.DecryptSharedContent(item, &recipientKp.Private, captured.WrappedItemKeyForRecipient)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, []byte("shared entry"), plaintext)
}

func TestCreateShareUnknownRecipient(t *testing.T) {
	cl := newMockClient(t)
	ownerBundle, _ := serverBundle(t, "alice", "pw")
	registerBundle("alice", ownerBundle)
	httpmock.RegisterResponder("GET", serverURL+"/api/v1/users/by-email/nobody@example.com",
		httpmock.NewStringResponder(404, `{"code":404,"message":"no user with that email"}`))

	session := NewSession(cl, "alice")
	if err := session.Unlock(context.Background(), "pw"); err != nil {
		t.Fatal(err)
	}
	item, _ := session.EncryptItem("item-1", "journal", []byte("x"))

	sm := NewShareManager(session, cl)
	_, err := sm.CreateShare(context.Background(), item, "nobody@example.com", nil, time.Hour)
	assert.Equal(t, types.ErrRecipientNotFound, err)
}

func TestCreateShareForeignItem(t *testing.T) {
	cl := newMockClient(t)
	ownerBundle, _ := serverBundle(t, "alice", "pw")
	registerBundle("alice", ownerBundle)
	recipientBundle, _ := serverBundle(t, "bob", "their pw")
	registerBundle("bob", recipientBundle)
	httpmock.RegisterResponder("GET", serverURL+"/api/v1/users/by-email/bob@example.com",
		httpmock.NewJsonResponderOrPanic(200, json.RawMessage(`{"userId":"bob"}`)))

	session := NewSession(cl, "alice")
	if err := session.Unlock(context.Background(), "pw"); err != nil {
		t.Fatal(err)
	}
	item, _ := session.EncryptItem("item-1", "journal", []byte("x"))
	item.OwnerPublicKeyID = "not-our-fingerprint"

	sm := NewShareManager(session, cl)
	// cannot share an item wrapped under a different identity
	_, err := sm.CreateShare(context.Background(), item, "bob@example.com", nil, time.Hour)
	assert.Equal(t, types.ErrKeyMismatch, err)
}

func TestDecryptSharedGrantDenied(t *testing.T) {
	cl := newMockClient(t)
	ownerBundle, _ := serverBundle(t, "bob", "pw")
	registerBundle("bob", ownerBundle)
	httpmock.RegisterResponder("GET", serverURL+"/api/v1/encryption/shares/share-1/key",
		httpmock.NewJsonResponderOrPanic(403, json.RawMessage(`{"code":403,"message":"grant revoked"}`)))

	session := NewSession(cl, "bob")
	if err := session.Unlock(context.Background(), "pw"); err != nil {
		t.Fatal(err)
	}

	sm := NewShareManager(session, cl)
	item := &types.EncryptedItem{ItemID: "item-1"}
	_, err := sm.DecryptShared(context.Background(), item, "share-1")
	assert.Equal(t, types.ErrGrantRevoked, err)
}

func TestAISharesWrapForConsumer(t *testing.T) {
	cl := newMockClient(t)
	ownerBundle, _ := serverBundle(t, "alice", "pw")
	registerBundle("alice", ownerBundle)

	aiKp, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	httpmock.RegisterResponder("GET", serverURL+"/api/v1/encryption/check",
		httpmock.NewJsonResponderOrPanic(200, json.RawMessage(`{"hasEncryption":true,"aiPublicKey":"`+aiKp.PublicKeyBase64()+`","aiUserId":"ai-analysis"}`)))

	var captured types.InputCreateAIShare
	httpmock.RegisterResponder("POST", serverURL+"/api/v1/encryption/ai-shares",
		func(req *http.Request) (*http.Response, error) {
			if err := json.NewDecoder(req.Body).Decode(&captured); err != nil {
				return httpmock.NewStringResponse(400, "bad body"), nil
			}
			return httpmock.NewJsonResponse(201, json.RawMessage(`{"analysisRequestId":"req-1","shareIds":["s1","s2"],"expiresAt":123}`))
		})

	session := NewSession(cl, "alice")
	if err := session.Unlock(context.Background(), "pw"); err != nil {
		t.Fatal(err)
	}
	item1, _ := session.EncryptItem("item-1", "journal", []byte("one"))
	item2, _ := session.EncryptItem("item-2", "journal", []byte("two"))

	am := NewAIShareManager(session, cl)
	out, err := am.CreateAnalysisShares(context.Background(), []*types.EncryptedItem{item1, item2}, types.ANALYSIS_TYPE_SENTIMENT, "last week", 2*time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, "req-1", out.AnalysisRequestID)
	assert.Len(t, captured.WrappedItemKeys, 2)

	// requested two hours; the posted expiry respects the 30 minute ceiling
	ceiling := time.Now().UTC().Add(MaxAIShareTTL + time.Minute).UnixMilli()
	assert.LessOrEqual(t, captured.ExpiresAt, ceiling)

	// the AI consumer's private key opens the wrapped item key
	plaintext, err := crypto.DecryptSharedContent(item1, &aiKp.Private, captured.WrappedItemKeys["item-1"])
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, []byte("one"), plaintext)
}
