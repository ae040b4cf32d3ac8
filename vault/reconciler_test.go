package vault

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/john-matlock-eng/journal-vault/crypto"
	"github.com/john-matlock-eng/journal-vault/types"
	"github.com/stretchr/testify/assert"
)

func TestReconcileInSync(t *testing.T) {
	cl := newMockClient(t)
	bundle, _ := serverBundle(t, "alice", "pw")
	registerBundle("alice", bundle)

	session := NewSession(cl, "alice")
	r := NewReconciler(session, cl, t.TempDir())
	if err := r.writeLocal(&localIdentity{PublicKey: bundle.PublicKey, PublicKeyID: bundle.PublicKeyID}); err != nil {
		t.Fatal(err)
	}

	state, err := r.Reconcile(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, SyncInSync, state)
}

func TestReconcileFreshDeviceIsMismatched(t *testing.T) {
	cl := newMockClient(t)
	bundle, _ := serverBundle(t, "alice", "pw")
	registerBundle("alice", bundle)

	session := NewSession(cl, "alice")
	r := NewReconciler(session, cl, t.TempDir())

	// a server identity this device never adopted needs the password
	state, err := r.Reconcile(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, SyncMismatched, state)
}

func TestReconcileServerWipeIsLocalStale(t *testing.T) {
	cl := newMockClient(t)
	httpmock.RegisterResponder("GET", serverURL+"/api/v1/encryption/keys/alice",
		httpmock.NewStringResponder(404, `{"code":404,"message":"no encryption keys for user: alice"}`))

	session := NewSession(cl, "alice")
	r := NewReconciler(session, cl, t.TempDir())
	if err := r.writeLocal(&localIdentity{PublicKey: "cHVi", PublicKeyID: "fp-local"}); err != nil {
		t.Fatal(err)
	}

	state, err := r.Reconcile(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, SyncLocalStale, state)
}

func TestReconcileMismatch(t *testing.T) {
	cl := newMockClient(t)
	bundle, _ := serverBundle(t, "alice", "pw")
	registerBundle("alice", bundle)

	session := NewSession(cl, "alice")
	r := NewReconciler(session, cl, t.TempDir())
	if err := r.writeLocal(&localIdentity{PublicKey: "cHVi", PublicKeyID: "some-other-fingerprint"}); err != nil {
		t.Fatal(err)
	}

	state, err := r.Reconcile(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, SyncMismatched, state)
}

func TestReconcileNetworkFailureIsUnknown(t *testing.T) {
	cl := newMockClient(t)
	// no responder registered: the fetch fails outright

	session := NewSession(cl, "alice")
	r := NewReconciler(session, cl, t.TempDir())
	if err := r.writeLocal(&localIdentity{PublicKey: "cHVi", PublicKeyID: "fp-local"}); err != nil {
		t.Fatal(err)
	}

	state, err := r.Reconcile(context.Background())
	assert.Error(t, err)
	// a failed fetch is never evidence of staleness or mismatch
	assert.Equal(t, SyncUnknown, state)
}

func TestReconcileBothAbsent(t *testing.T) {
	cl := newMockClient(t)
	httpmock.RegisterResponder("GET", serverURL+"/api/v1/encryption/keys/alice",
		httpmock.NewStringResponder(404, `{"code":404,"message":"no encryption keys for user: alice"}`))

	session := NewSession(cl, "alice")
	r := NewReconciler(session, cl, t.TempDir())

	state, err := r.Reconcile(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, SyncInSync, state)
}

// registerPartialBundle serves the public-key-only view another user
// would get, stripped of the wrapped key and salt.
func registerPartialBundle(userID string, bundle *types.UserKeyBundle) {
	partial := &types.UserKeyBundle{
		UserID:      bundle.UserID,
		PublicKey:   bundle.PublicKey,
		PublicKeyID: bundle.PublicKeyID,
	}
	resp, _ := httpmock.NewJsonResponder(200, partial)
	httpmock.RegisterResponder("GET", serverURL+"/api/v1/encryption/keys/"+userID, resp)
}

func TestReconcilePartialViewEqualIsInSync(t *testing.T) {
	cl := newMockClient(t)
	bundle, _ := serverBundle(t, "alice", "pw")
	registerPartialBundle("alice", bundle)

	session := NewSession(cl, "alice")
	r := NewReconciler(session, cl, t.TempDir())
	if err := r.writeLocal(&localIdentity{PublicKey: bundle.PublicKey, PublicKeyID: bundle.PublicKeyID}); err != nil {
		t.Fatal(err)
	}

	// byte-equal fingerprints agree even through a partial view
	state, err := r.Reconcile(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, SyncInSync, state)
}

func TestReconcilePartialViewRefetchedBeforeMismatch(t *testing.T) {
	cl := newMockClient(t)
	bundle, _ := serverBundle(t, "alice", "pw")
	partial := &types.UserKeyBundle{
		UserID:      bundle.UserID,
		PublicKey:   bundle.PublicKey,
		PublicKeyID: bundle.PublicKeyID,
	}
	calls := 0
	httpmock.RegisterResponder("GET", serverURL+"/api/v1/encryption/keys/alice",
		func(req *http.Request) (*http.Response, error) {
			calls++
			if calls == 1 {
				return httpmock.NewJsonResponse(200, partial)
			}
			return httpmock.NewJsonResponse(200, bundle)
		})

	session := NewSession(cl, "alice")
	r := NewReconciler(session, cl, t.TempDir())
	if err := r.writeLocal(&localIdentity{PublicKey: "cHVi", PublicKeyID: "some-other-fingerprint"}); err != nil {
		t.Fatal(err)
	}

	state, err := r.Reconcile(context.Background())
	assert.NoError(t, err)
	// only the full refetch counts as mismatch evidence
	assert.Equal(t, SyncMismatched, state)
	assert.Equal(t, 2, calls)
}

func TestReconcilePartialViewOnlyStaysUnknown(t *testing.T) {
	cl := newMockClient(t)
	bundle, _ := serverBundle(t, "alice", "pw")
	registerPartialBundle("alice", bundle)

	session := NewSession(cl, "alice")
	r := NewReconciler(session, cl, t.TempDir())
	if err := r.writeLocal(&localIdentity{PublicKey: "cHVi", PublicKeyID: "some-other-fingerprint"}); err != nil {
		t.Fatal(err)
	}

	state, err := r.Reconcile(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, SyncUnknown, state)
}

func TestAdoptServerResolvesMismatch(t *testing.T) {
	cl := newMockClient(t)
	bundle, _ := serverBundle(t, "alice", "server pw")
	registerBundle("alice", bundle)

	session := NewSession(cl, "alice")
	r := NewReconciler(session, cl, t.TempDir())
	if err := r.writeLocal(&localIdentity{PublicKey: "cHVi", PublicKeyID: "old-local-fp"}); err != nil {
		t.Fatal(err)
	}
	if state, _ := r.Reconcile(context.Background()); state != SyncMismatched {
		t.Fatalf("expected mismatch, got %s", state)
	}

	// wrong password leaves the mismatch standing
	err := r.AdoptServer(context.Background(), "wrong pw")
	assert.Equal(t, types.ErrUnwrapFailure, err)
	assert.Equal(t, SyncMismatched, r.State())

	err = r.AdoptServer(context.Background(), "server pw")
	assert.NoError(t, err)
	assert.Equal(t, SyncResolved, r.State())

	local, lErr := r.readLocal()
	if lErr != nil {
		t.Fatal(lErr)
	}
	assert.Equal(t, bundle.PublicKeyID, local.PublicKeyID)
}

func TestRepublishRestoresWipedIdentity(t *testing.T) {
	cl := newMockClient(t)
	bundle, kp := serverBundle(t, "alice", "pw")
	registerBundle("alice", bundle)

	session := NewSession(cl, "alice")
	if err := session.Unlock(context.Background(), "pw"); err != nil {
		t.Fatal(err)
	}
	r := NewReconciler(session, cl, t.TempDir())
	if err := r.RememberSession(); err != nil {
		t.Fatal(err)
	}

	// the server loses its record while the session stays unlocked
	httpmock.RegisterResponder("GET", serverURL+"/api/v1/encryption/keys/alice",
		httpmock.NewStringResponder(404, `{"code":404,"message":"no encryption keys for user: alice"}`))
	if state, _ := r.Reconcile(context.Background()); state != SyncLocalStale {
		t.Fatalf("expected local_stale, got %s", state)
	}

	var captured types.InputSetupEncryption
	httpmock.RegisterResponder("POST", serverURL+"/api/v1/encryption/setup",
		func(req *http.Request) (*http.Response, error) {
			if err := json.NewDecoder(req.Body).Decode(&captured); err != nil {
				return httpmock.NewStringResponse(400, "bad body"), nil
			}
			return httpmock.NewStringResponse(201, `{"publicKeyId":"server-echo","created":1}`), nil
		})

	err := r.Republish(context.Background(), "pw")
	assert.NoError(t, err)
	assert.Equal(t, SyncResolved, r.State())

	// the identity is preserved, not regenerated
	assert.Equal(t, bundle.PublicKey, captured.PublicKey)
	assert.NotEqual(t, bundle.KdfSalt, captured.KdfSalt)

	master, err := crypto.DeriveMasterKey("pw", captured.KdfSalt, captured.KdfIterations)
	if err != nil {
		t.Fatal(err)
	}
	privateBytes, err := crypto.OpenWithKey(master, captured.WrappedPrivateKey, nil)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, kp.Private[:], privateBytes)
}

func TestRepublishNeedsUnlockedSession(t *testing.T) {
	cl := newMockClient(t)

	session := NewSession(cl, "alice")
	r := NewReconciler(session, cl, t.TempDir())

	err := r.Republish(context.Background(), "pw")
	assert.Equal(t, types.ErrSessionLocked, err)
}

func TestResetCreatesNewIdentity(t *testing.T) {
	cl := newMockClient(t)
	bundle, _ := serverBundle(t, "alice", "old pw")
	registerBundle("alice", bundle)
	httpmock.RegisterResponder("DELETE", serverURL+"/api/v1/encryption/keys",
		httpmock.NewStringResponder(204, ""))
	httpmock.RegisterResponder("POST", serverURL+"/api/v1/encryption/setup",
		httpmock.NewStringResponder(201, `{"publicKeyId":"new","created":1}`))

	session := NewSession(cl, "alice")
	r := NewReconciler(session, cl, t.TempDir())
	if err := r.writeLocal(&localIdentity{PublicKey: "cHVi", PublicKeyID: "old-local-fp"}); err != nil {
		t.Fatal(err)
	}

	err := r.Reset(context.Background(), "brand new pw")
	assert.NoError(t, err)
	assert.Equal(t, SyncResolved, r.State())
	assert.True(t, session.Unlocked())

	local, lErr := r.readLocal()
	if lErr != nil {
		t.Fatal(lErr)
	}
	// the reset identity is fresh, not the old server one
	assert.NotEqual(t, bundle.PublicKeyID, local.PublicKeyID)
	assert.Equal(t, session.PublicKeyID(), local.PublicKeyID)
}
