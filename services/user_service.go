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

// UserService resolves share recipients. Emails are stored only as
// scrypt hashes, so resolution works without the server keeping
// addresses in the clear.
type UserService struct {
	mappingRepo repository.Repository
}

func NewUserService(dbSelector repository.DBSelector) *UserService {
	mappingRepo, err := dbSelector.ChooseDB(repository.EmailMappings)
	if err != nil {
		level.Error(global.Logger).Log("msg", "error while choosing db", "err", err)
		panic(err)
	}
	return &UserService{mappingRepo: mappingRepo}
}

// MapEmail registers (or refreshes) the caller's email-to-user mapping.
func (us *UserService) MapEmail(userID string, email string) error {
	hashed, hErr := crypto.HashEmail(email, global.Conf.Encryption.EmailSaltHex)
	if hErr != nil {
		return hErr
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	mapping := &types.EmailMapping{
		HashedEmail: hashed,
		UserID:      userID,
	}
	// carry the revision forward if the mapping already exists
	existingResp, eErr := us.mappingRepo.GetByID(ctx, hashed)
	if eErr != nil && eErr != types.ErrNotFound {
		return eErr
	}
	if eErr == nil {
		var existing types.EmailMapping
		if mErr := repository.MapToObject(existingResp, &existing); mErr != nil {
			return mErr
		}
		mapping.BaseDocument = existing.BaseDocument
	}
	return us.mappingRepo.Save(ctx, hashed, mapping)
}

// ResolveEmail returns the user ID registered for an email address.
func (us *UserService) ResolveEmail(email string) (string, error) {
	hashed, hErr := crypto.HashEmail(email, global.Conf.Encryption.EmailSaltHex)
	if hErr != nil {
		return "", hErr
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	resp, err := us.mappingRepo.GetByID(ctx, hashed)
	if err != nil {
		if err == types.ErrNotFound {
			return "", types.ErrRecipientNotFound
		}
		return "", err
	}
	var mapping types.EmailMapping
	if mErr := repository.MapToObject(resp, &mapping); mErr != nil {
		return "", mErr
	}
	return mapping.UserID, nil
}
