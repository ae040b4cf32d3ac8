package vault

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/john-matlock-eng/journal-vault/client"
	"github.com/john-matlock-eng/journal-vault/types"
)

// SyncState classifies the relationship between the identity stored
// locally and the one the server holds.
type SyncState int

const (
	// SyncUnknown means no comparison has completed, including network failure
	SyncUnknown SyncState = iota
	// SyncChecking means a comparison is in flight
	SyncChecking
	// SyncInSync means local and server agree on the key fingerprint
	SyncInSync
	// SyncLocalStale means the server lost the identity this device still
	// holds; Republish restores it
	SyncLocalStale
	// SyncServerStale means the server's record is behind the device's
	SyncServerStale
	// SyncMismatched means both sides hold different identities
	SyncMismatched
	// SyncResolved means a mismatch was resolved this session
	SyncResolved
)

func (s SyncState) String() string {
	switch s {
	case SyncChecking:
		return "checking"
	case SyncInSync:
		return "in_sync"
	case SyncLocalStale:
		return "local_stale"
	case SyncServerStale:
		return "server_stale"
	case SyncMismatched:
		return "mismatched"
	case SyncResolved:
		return "resolved"
	}
	return "unknown"
}

type localIdentity struct {
	PublicKey   string `json:"publicKey"`
	PublicKeyID string `json:"publicKeyId"`
}

// Reconciler compares the locally remembered identity against the
// server bundle and drives mismatch resolution. It never declares a
// mismatch from a partial bundle view: only a full self fetch counts as
// evidence that the server identity really differs.
type Reconciler struct {
	session *Session
	client  *client.Client
	path    string

	mu    sync.Mutex
	state SyncState
}

// NewReconciler persists its local identity record inside dir.
func NewReconciler(session *Session, cl *client.Client, dir string) *Reconciler {
	return &Reconciler{
		session: session,
		client:  cl,
		path:    filepath.Join(dir, "identity.json"),
		state:   SyncUnknown,
	}
}

// State returns the last computed sync state.
func (r *Reconciler) State() SyncState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Reconcile fetches the server bundle and classifies the relationship.
// A fetch failure leaves the state Unknown; absence of server data is
// only meaningful when the server positively reported it.
func (r *Reconciler) Reconcile(ctx context.Context) (SyncState, error) {
	r.mu.Lock()
	r.state = SyncChecking
	r.mu.Unlock()

	local, localErr := r.readLocal()

	bundle, err := r.client.FetchUserBundle(ctx, r.session.UserID(), true)
	if err != nil {
		return r.setState(SyncUnknown), err
	}

	if bundle.Completeness == types.BundleAbsent {
		if localErr != nil || local == nil {
			// neither side has an identity; nothing to reconcile
			return r.setState(SyncInSync), nil
		}
		// the server wiped its record; the local identity can be republished
		return r.setState(SyncLocalStale), nil
	}

	if localErr != nil || local == nil {
		// a server identity this device has never adopted; resolution
		// requires the password (adopt) or an explicit reset
		return r.setState(SyncMismatched), nil
	}

	if local.PublicKeyID == bundle.PublicKeyID {
		return r.setState(SyncInSync), nil
	}

	// the fingerprints differ; before declaring a mismatch the evidence
	// must be a full bundle, not a partial view missing optional fields
	if !bundle.IsFull() {
		refetched, rErr := r.client.FetchUserBundle(ctx, r.session.UserID(), true)
		if rErr != nil {
			return r.setState(SyncUnknown), rErr
		}
		if !refetched.IsFull() {
			return r.setState(SyncUnknown), nil
		}
		bundle = refetched
		if local.PublicKeyID == bundle.PublicKeyID {
			return r.setState(SyncInSync), nil
		}
	}
	return r.setState(SyncMismatched), nil
}

// AdoptServer resolves a mismatch by unlocking against the server
// bundle and making it the local identity. The password must be the one
// protecting the server bundle; an unwrap failure leaves the mismatch
// standing.
func (r *Reconciler) AdoptServer(ctx context.Context, password string) error {
	if err := r.session.Unlock(ctx, password); err != nil {
		return err
	}
	if err := r.writeLocal(&localIdentity{
		PublicKey:   r.session.PublicKey(),
		PublicKeyID: r.session.PublicKeyID(),
	}); err != nil {
		return err
	}
	r.setState(SyncResolved)
	return nil
}

// Republish restores a wiped server record by re-wrapping the session's
// unlocked private key under the entered password and pushing the
// existing identity, so items encrypted under it stay readable. If the
// server acquired an identity in the meantime the setup race rules
// apply: the push is abandoned and the server bundle is unlocked
// instead; an unwrap failure there surfaces ErrMismatchDetected.
func (r *Reconciler) Republish(ctx context.Context, password string) error {
	input, err := r.session.rewrapIdentity(password)
	if err != nil {
		return err
	}

	result, err := r.client.Setup(ctx, input)
	if err != nil {
		return err
	}
	if result.Outcome == client.SetupConflict {
		if uErr := r.session.Unlock(ctx, password); uErr != nil {
			if uErr == types.ErrUnwrapFailure {
				r.setState(SyncMismatched)
				return types.ErrMismatchDetected
			}
			return uErr
		}
	}

	if err := r.writeLocal(&localIdentity{
		PublicKey:   r.session.PublicKey(),
		PublicKeyID: r.session.PublicKeyID(),
	}); err != nil {
		return err
	}
	r.setState(SyncResolved)
	return nil
}

// Reset resolves a mismatch destructively: the server identity is
// deleted (invalidating outstanding grants), a new identity is set up
// with the given password, and the local record follows. Items
// encrypted under the old identity stay orphaned.
func (r *Reconciler) Reset(ctx context.Context, password string) error {
	if err := r.client.ResetIdentity(ctx); err != nil && err != types.ErrNotFound {
		return err
	}
	r.session.Lock()
	if err := r.session.Setup(ctx, password); err != nil {
		return err
	}
	if err := r.writeLocal(&localIdentity{
		PublicKey:   r.session.PublicKey(),
		PublicKeyID: r.session.PublicKeyID(),
	}); err != nil {
		return err
	}
	r.setState(SyncResolved)
	return nil
}

// RememberSession records the currently unlocked identity as the local
// one; called after a successful first setup or unlock.
func (r *Reconciler) RememberSession() error {
	if !r.session.Unlocked() {
		return types.ErrSessionLocked
	}
	return r.writeLocal(&localIdentity{
		PublicKey:   r.session.PublicKey(),
		PublicKeyID: r.session.PublicKeyID(),
	})
}

func (r *Reconciler) setState(s SyncState) SyncState {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = s
	return s
}

func (r *Reconciler) readLocal() (*localIdentity, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return nil, err
	}
	var local localIdentity
	if jErr := json.Unmarshal(data, &local); jErr != nil {
		return nil, jErr
	}
	if local.PublicKeyID == "" {
		return nil, types.ErrNotFound
	}
	return &local, nil
}

func (r *Reconciler) writeLocal(local *localIdentity) error {
	data, err := json.Marshal(local)
	if err != nil {
		return err
	}
	if mkErr := os.MkdirAll(filepath.Dir(r.path), 0700); mkErr != nil {
		return mkErr
	}
	return os.WriteFile(r.path, data, 0600)
}
