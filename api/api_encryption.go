package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/john-matlock-eng/journal-vault/global"
	"github.com/john-matlock-eng/journal-vault/metrics"
	"github.com/john-matlock-eng/journal-vault/services"
	"github.com/john-matlock-eng/journal-vault/types"
)

type EncryptionApi struct {
	encryptionService *services.EncryptionService
	validate          *validator.Validate
}

func NewEncryptionApi(encryptionService *services.EncryptionService) *EncryptionApi {
	return &EncryptionApi{
		encryptionService: encryptionService,
		validate:          validator.New(),
	}
}

// Setup encryption for the logged in user
// @Security Bearer
// @Summary Register the user's identity key bundle
// @Description Stores the public key and the password-wrapped private key. Fails with 409 if an identity already exists; the caller must re-fetch and unwrap the stored bundle instead.
// @Tags Encryption
// @Accept json
// @Produce json
// @Param setup body types.InputSetupEncryption true "Identity key bundle"
// @Success 201 {object} types.OutputSetupEncryption
// @Failure 400 {object} ApiError "invalid input"
// @Failure 409 {object} ApiError "identity already exists"
// @Router /api/v1/encryption/setup [post]
func (ea *EncryptionApi) Setup(c *gin.Context) {
	userID, exists := c.Get("subjectUserID")
	if !exists {
		ApiErrorf(c, http.StatusUnauthorized, "jwt invalid")
		return
	}

	var input types.InputSetupEncryption
	if err := c.ShouldBindJSON(&input); err != nil {
		ApiErrorf(c, http.StatusBadRequest, "invalid input: %s", err)
		return
	}
	if err := ea.validate.Struct(input); err != nil {
		var verr validator.ValidationErrors
		if errors.As(err, &verr) {
			ApiErrorf(c, http.StatusBadRequest, "%s", ValidatorErrorToUser(verr))
			return
		}
		ApiErrorf(c, http.StatusBadRequest, "invalid input: %s", err)
		return
	}

	bundle, err := ea.encryptionService.SetupIdentity(userID.(string), &input)
	if err != nil {
		if err == types.ErrConflict {
			metrics.SetupConflicts.Inc()
			ApiErrorf(c, http.StatusConflict, "encryption already set up")
			return
		}
		if err == types.ErrBadRequest {
			ApiErrorf(c, http.StatusBadRequest, "invalid public key")
			return
		}
		ApiErrorf(c, http.StatusInternalServerError, "error while setting up encryption: %s", err)
		return
	}
	c.JSON(http.StatusCreated, types.OutputSetupEncryption{
		PublicKeyID: bundle.PublicKeyID,
		Created:     bundle.Created,
	})
}

// Check whether encryption is set up
// @Security Bearer
// @Summary Check encryption status for the logged in user
// @Description Returns whether an identity exists, plus the AI consumer identity clients wrap analysis keys for
// @Tags Encryption
// @Produce json
// @Success 200 {object} types.OutputEncryptionCheck
// @Router /api/v1/encryption/check [get]
func (ea *EncryptionApi) Check(c *gin.Context) {
	userID, exists := c.Get("subjectUserID")
	if !exists {
		ApiErrorf(c, http.StatusUnauthorized, "jwt invalid")
		return
	}
	has, err := ea.encryptionService.HasEncryption(userID.(string))
	if err != nil {
		ApiErrorf(c, http.StatusInternalServerError, "error while checking encryption: %s", err)
		return
	}
	c.JSON(http.StatusOK, types.OutputEncryptionCheck{
		HasEncryption: has,
		AIPublicKey:   global.Conf.Encryption.AIPublicKey,
		AIUserID:      global.Conf.Encryption.AIUserID,
	})
}

// Get a user's key bundle
// @Security Bearer
// @Summary Get a user's key bundle
// @Description Owners get the full bundle including the wrapped private key; everyone else gets the public key only
// @Tags Encryption
// @Param userId path string true "User ID"
// @Produce json
// @Success 200 {object} types.UserKeyBundle
// @Failure 404 {object} ApiError "no identity for user"
// @Router /api/v1/encryption/keys/{userId} [get]
func (ea *EncryptionApi) GetUserBundle(c *gin.Context) {
	requesterID, exists := c.Get("subjectUserID")
	if !exists {
		ApiErrorf(c, http.StatusUnauthorized, "jwt invalid")
		return
	}
	userID := c.Param("userId")
	if userID == "" {
		ApiErrorf(c, http.StatusBadRequest, "invalid user id")
		return
	}
	bundle, err := ea.encryptionService.GetUserBundle(requesterID.(string), userID)
	if err != nil {
		if err == types.ErrNotFound {
			ApiErrorf(c, http.StatusNotFound, "no encryption keys for user: %s", userID)
			return
		}
		ApiErrorf(c, http.StatusInternalServerError, "error while getting key bundle: %s", err)
		return
	}
	c.JSON(http.StatusOK, bundle)
}

// Reset encryption
// @Security Bearer
// @Summary Destroy the user's identity and invalidate dependent grants
// @Description Deletes the identity bundle. Previously encrypted items become unrecoverable and outstanding grants are invalidated asynchronously.
// @Tags Encryption
// @Success 204
// @Failure 404 {object} ApiError "no identity for user"
// @Router /api/v1/encryption/keys [delete]
func (ea *EncryptionApi) Reset(c *gin.Context) {
	userID, exists := c.Get("subjectUserID")
	if !exists {
		ApiErrorf(c, http.StatusUnauthorized, "jwt invalid")
		return
	}
	if err := ea.encryptionService.ResetIdentity(userID.(string)); err != nil {
		if err == types.ErrNotFound {
			ApiErrorf(c, http.StatusNotFound, "no encryption keys for user")
			return
		}
		ApiErrorf(c, http.StatusInternalServerError, "error while resetting encryption: %s", err)
		return
	}
	c.Status(http.StatusNoContent)
}
