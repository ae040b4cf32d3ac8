package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/john-matlock-eng/journal-vault/global"
	"github.com/john-matlock-eng/journal-vault/metrics"
	"github.com/john-matlock-eng/journal-vault/services"
	"github.com/john-matlock-eng/journal-vault/types"
)

type ShareApi struct {
	shareService      *services.ShareService
	encryptionService *services.EncryptionService
	validate          *validator.Validate
}

func NewShareApi(shareService *services.ShareService, encryptionService *services.EncryptionService) *ShareApi {
	return &ShareApi{
		shareService:      shareService,
		encryptionService: encryptionService,
		validate:          validator.New(),
	}
}

// Create a share grant
// @Security Bearer
// @Summary Share an item's key with another user
// @Description The caller wraps the item key under the recipient's public key client side; the server only stores the opaque wrapped blob. Expiry is clamped to the configured maximum. Retried requests with the same X-Idempotency-Key return the original grant.
// @Tags Shares
// @Accept json
// @Produce json
// @Param share body types.InputCreateShare true "Share grant"
// @Param X-Idempotency-Key header string false "Idempotency key for safe retries"
// @Success 201 {object} types.OutputShareCreated
// @Failure 400 {object} ApiError "invalid input"
// @Failure 404 {object} ApiError "caller has no identity"
// @Router /api/v1/encryption/shares [post]
func (sa *ShareApi) CreateShare(c *gin.Context) {
	userID, exists := c.Get("subjectUserID")
	if !exists {
		ApiErrorf(c, http.StatusUnauthorized, "jwt invalid")
		return
	}

	var input types.InputCreateShare
	if err := c.ShouldBindJSON(&input); err != nil {
		ApiErrorf(c, http.StatusBadRequest, "invalid input: %s", err)
		return
	}
	if err := sa.validate.Struct(input); err != nil {
		var verr validator.ValidationErrors
		if errors.As(err, &verr) {
			ApiErrorf(c, http.StatusBadRequest, "%s", ValidatorErrorToUser(verr))
			return
		}
		ApiErrorf(c, http.StatusBadRequest, "invalid input: %s", err)
		return
	}
	if input.RecipientUserID == userID.(string) {
		ApiErrorf(c, http.StatusBadRequest, "cannot share an item with yourself")
		return
	}

	// the grant records which of the owner's keys wrapped the item key
	ownerBundle, obErr := sa.encryptionService.GetUserBundle(userID.(string), userID.(string))
	if obErr != nil {
		if obErr == types.ErrNotFound {
			ApiErrorf(c, http.StatusNotFound, "encryption not set up")
			return
		}
		ApiErrorf(c, http.StatusInternalServerError, "error while creating share: %s", obErr)
		return
	}

	idempotencyKey := c.GetHeader("X-Idempotency-Key")
	maxTTL := time.Duration(global.Conf.Encryption.MaxShareTTLHours) * time.Hour

	grant, err := sa.shareService.CreateShare(userID.(string), ownerBundle.PublicKeyID, &input, idempotencyKey, false, "", maxTTL)
	if err != nil {
		ApiErrorf(c, http.StatusInternalServerError, "error while creating share: %s", err)
		return
	}
	metrics.SharesCreated.Inc()
	c.JSON(http.StatusCreated, types.OutputShareCreated{
		ShareID:   grant.ShareID,
		ExpiresAt: grant.ExpiresAt,
	})
}

// List shares created by the logged in user
// @Security Bearer
// @Summary List share grants where the caller is the grantor
// @Description Lists grants the caller created, newest first
// @Tags Shares
// @Param itemType query string false "filter by item type"
// @Param limit query integer false "max number of results"
// @Param bookmark query string false "paging token"
// @Produce json
// @Success 200 {object} types.PagingResults
// @Router /api/v1/encryption/shares [get]
func (sa *ShareApi) ListShares(c *gin.Context) {
	userID, exists := c.Get("subjectUserID")
	if !exists {
		ApiErrorf(c, http.StatusUnauthorized, "jwt invalid")
		return
	}
	limitStr := c.DefaultQuery("limit", "10")
	limit, err := strconv.Atoi(limitStr)
	if err != nil {
		ApiErrorf(c, http.StatusBadRequest, "invalid limit: %s", limitStr)
		return
	}
	itemType := c.DefaultQuery("itemType", "")
	bookmark := c.DefaultQuery("bookmark", "")

	shares, err := sa.shareService.ListShares(userID.(string), itemType, bookmark, limit)
	if err != nil {
		ApiErrorf(c, http.StatusInternalServerError, "error while listing shares: %s", err)
		return
	}
	c.JSON(http.StatusOK, shares)
}

// Get the wrapped key for a share grant
// @Security Bearer
// @Summary Fetch the wrapped item key as the recipient of a grant
// @Description Only the grant's recipient may call this. Revocation, expiry and single-use consumption are checked on every call; a single-use grant is consumed by its first successful read.
// @Tags Shares
// @Param shareId path string true "Share ID"
// @Produce json
// @Success 200 {object} types.OutputShareKey
// @Failure 403 {object} ApiError "grant expired, revoked or consumed"
// @Failure 404 {object} ApiError "no such grant for caller"
// @Router /api/v1/encryption/shares/{shareId}/key [get]
func (sa *ShareApi) GetShareKey(c *gin.Context) {
	userID, exists := c.Get("subjectUserID")
	if !exists {
		ApiErrorf(c, http.StatusUnauthorized, "jwt invalid")
		return
	}
	shareID := c.Param("shareId")
	if shareID == "" {
		ApiErrorf(c, http.StatusBadRequest, "invalid share id")
		return
	}

	grant, err := sa.shareService.GetShareKey(userID.(string), shareID)
	if err != nil {
		switch err {
		case types.ErrNotFound:
			ApiErrorf(c, http.StatusNotFound, "share not found: %s", shareID)
		case types.ErrGrantExpired:
			metrics.GrantDenials.WithLabelValues("expired").Inc()
			ApiErrorf(c, http.StatusForbidden, "grant expired")
		case types.ErrGrantRevoked:
			metrics.GrantDenials.WithLabelValues("revoked").Inc()
			ApiErrorf(c, http.StatusForbidden, "grant revoked")
		case types.ErrGrantConsumed:
			metrics.GrantDenials.WithLabelValues("consumed").Inc()
			ApiErrorf(c, http.StatusForbidden, "grant consumed")
		default:
			ApiErrorf(c, http.StatusInternalServerError, "error while fetching share key: %s", err)
		}
		return
	}
	c.JSON(http.StatusOK, types.OutputShareKey{
		ShareID:        grant.ShareID,
		ItemID:         grant.ItemID,
		ItemType:       grant.ItemType,
		WrappedItemKey: grant.WrappedItemKeyForRecipient,
		Permissions:    grant.Permissions,
		AnalysisType:   grant.AnalysisType,
		ExpiresAt:      grant.ExpiresAt,
	})
}

// Revoke a share grant
// @Security Bearer
// @Summary Revoke a grant the caller created
// @Description Revocation is terminal; the recipient loses access on their next read
// @Tags Shares
// @Param shareId path string true "Share ID"
// @Success 204
// @Failure 404 {object} ApiError "no such grant for caller"
// @Router /api/v1/encryption/shares/{shareId} [delete]
func (sa *ShareApi) RevokeShare(c *gin.Context) {
	userID, exists := c.Get("subjectUserID")
	if !exists {
		ApiErrorf(c, http.StatusUnauthorized, "jwt invalid")
		return
	}
	shareID := c.Param("shareId")
	if shareID == "" {
		ApiErrorf(c, http.StatusBadRequest, "invalid share id")
		return
	}
	if err := sa.shareService.RevokeShare(userID.(string), shareID); err != nil {
		if err == types.ErrNotFound {
			ApiErrorf(c, http.StatusNotFound, "share not found: %s", shareID)
			return
		}
		ApiErrorf(c, http.StatusInternalServerError, "error while revoking share: %s", err)
		return
	}
	metrics.SharesRevoked.Inc()
	c.Status(http.StatusNoContent)
}
