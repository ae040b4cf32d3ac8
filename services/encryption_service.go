package services

import (
	"context"
	"time"

	"github.com/go-kit/log/level"
	"github.com/john-matlock-eng/journal-vault/crypto"
	"github.com/john-matlock-eng/journal-vault/global"
	"github.com/john-matlock-eng/journal-vault/repository"
	"github.com/john-matlock-eng/journal-vault/types"
)

// EncryptionService owns the server-held identity key bundles. The
// server stores the wrapped private key but can never unwrap it; the
// only invariants enforced here are "one identity per user" and
// "publicKeyId matches publicKey".
type EncryptionService struct {
	keysRepo repository.Repository
	env      *types.Environment
}

func NewEncryptionService(dbSelector repository.DBSelector, environment *types.Environment) *EncryptionService {
	keysRepo, err := dbSelector.ChooseDB(repository.EncryptionKeys)
	if err != nil {
		level.Error(global.Logger).Log("msg", "error while choosing db", "err", err)
		panic(err)
	}
	return &EncryptionService{keysRepo: keysRepo, env: environment}
}

// SetupIdentity registers a new identity bundle for the user. The
// document ID is the user ID, so a concurrent second setup loses with
// types.ErrConflict from CouchDB. That 409 is the serialization point
// of the multi-device setup race, not a failure to be papered over.
func (es *EncryptionService) SetupIdentity(userID string, input *types.InputSetupEncryption) (*types.IdentityKeyBundle, error) {
	fingerprint, fErr := crypto.Fingerprint(input.PublicKey)
	if fErr != nil {
		return nil, types.ErrBadRequest
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	// cheap pre-check so the common retry case doesn't round-trip a full PUT
	if _, err := es.keysRepo.GetByID(ctx, userID); err == nil {
		return nil, types.ErrConflict
	} else if err != types.ErrNotFound {
		return nil, err
	}

	bundle := &types.IdentityKeyBundle{
		UserID:            userID,
		PublicKey:         input.PublicKey,
		PublicKeyID:       fingerprint,
		WrappedPrivateKey: input.WrappedPrivateKey,
		KdfSalt:           input.KdfSalt,
		KdfIterations:     input.KdfIterations,
		Created:           time.Now().UTC().UnixMilli(),
	}
	if err := es.keysRepo.Save(ctx, userID, bundle); err != nil {
		return nil, err
	}
	return bundle, nil
}

// HasEncryption reports whether the user has a registered identity.
func (es *EncryptionService) HasEncryption(userID string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	_, err := es.keysRepo.GetByID(ctx, userID)
	if err == types.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// GetUserBundle returns the identity bundle for userID. Only the owner
// gets the full bundle (wrapped private key and KDF inputs); anyone else
// gets the public-key-only view needed to address shares to the user.
func (es *EncryptionService) GetUserBundle(requesterID string, userID string) (*types.UserKeyBundle, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	resp, err := es.keysRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	var bundle types.IdentityKeyBundle
	if mErr := repository.MapToObject(resp, &bundle); mErr != nil {
		return nil, mErr
	}

	out := &types.UserKeyBundle{
		UserID:      userID,
		PublicKey:   bundle.PublicKey,
		PublicKeyID: bundle.PublicKeyID,
	}
	if requesterID == userID {
		out.Completeness = types.BundleFull
		out.KdfSalt = bundle.KdfSalt
		out.KdfIterations = bundle.KdfIterations
		out.WrappedPrivateKey = bundle.WrappedPrivateKey
	} else {
		out.Completeness = types.BundlePublicKeyOnly
	}
	return out, nil
}

// ResetIdentity destroys the user's identity bundle and queues
// invalidation of every grant wrapped under it. The wrapped item keys of
// those grants can never be recovered under a replacement keypair.
func (es *EncryptionService) ResetIdentity(userID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	resp, err := es.keysRepo.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	var bundle types.IdentityKeyBundle
	if mErr := repository.MapToObject(resp, &bundle); mErr != nil {
		return mErr
	}

	if err := es.keysRepo.Delete(ctx, userID); err != nil {
		return err
	}

	if es.env != nil && es.env.TaskClient != nil {
		task, tErr := types.NewGrantInvalidateTask(&types.GrantInvalidateTask{
			OwnerUserID:    userID,
			OldPublicKeyID: bundle.PublicKeyID,
		})
		if tErr != nil {
			return tErr
		}
		if _, qErr := es.env.TaskClient.Enqueue(task); qErr != nil {
			level.Error(global.Logger).Log("msg", "failed to enqueue grant invalidation", "err", qErr)
			return qErr
		}
	}
	return nil
}
