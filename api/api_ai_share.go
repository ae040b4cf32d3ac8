package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/john-matlock-eng/journal-vault/metrics"
	"github.com/john-matlock-eng/journal-vault/services"
	"github.com/john-matlock-eng/journal-vault/types"
)

type AIShareApi struct {
	aiShareService    *services.AIShareService
	encryptionService *services.EncryptionService
	validate          *validator.Validate
}

func NewAIShareApi(aiShareService *services.AIShareService, encryptionService *services.EncryptionService) *AIShareApi {
	return &AIShareApi{
		aiShareService:    aiShareService,
		encryptionService: encryptionService,
		validate:          validator.New(),
	}
}

// Create single-use AI analysis shares
// @Security Bearer
// @Summary Grant the AI analysis service one-time access to item keys
// @Description Creates one single-use grant per item, addressed to the AI consumer identity. The caller wraps each item key under the AI consumer's public key (from /encryption/check). Expiry is capped at 30 minutes regardless of the requested value.
// @Tags AI Shares
// @Accept json
// @Produce json
// @Param share body types.InputCreateAIShare true "Analysis share request"
// @Success 201 {object} types.OutputAIShare
// @Failure 400 {object} ApiError "invalid input or missing wrapped keys"
// @Failure 404 {object} ApiError "caller has no identity"
// @Router /api/v1/encryption/ai-shares [post]
func (aa *AIShareApi) CreateAIShares(c *gin.Context) {
	userID, exists := c.Get("subjectUserID")
	if !exists {
		ApiErrorf(c, http.StatusUnauthorized, "jwt invalid")
		return
	}

	var input types.InputCreateAIShare
	if err := c.ShouldBindJSON(&input); err != nil {
		ApiErrorf(c, http.StatusBadRequest, "invalid input: %s", err)
		return
	}
	if err := aa.validate.Struct(input); err != nil {
		var verr validator.ValidationErrors
		if errors.As(err, &verr) {
			ApiErrorf(c, http.StatusBadRequest, "%s", ValidatorErrorToUser(verr))
			return
		}
		ApiErrorf(c, http.StatusBadRequest, "invalid input: %s", err)
		return
	}

	ownerBundle, obErr := aa.encryptionService.GetUserBundle(userID.(string), userID.(string))
	if obErr != nil {
		if obErr == types.ErrNotFound {
			ApiErrorf(c, http.StatusNotFound, "encryption not set up")
			return
		}
		ApiErrorf(c, http.StatusInternalServerError, "error while creating analysis shares: %s", obErr)
		return
	}

	out, err := aa.aiShareService.CreateAnalysisShares(userID.(string), ownerBundle.PublicKeyID, &input)
	if err != nil {
		if err == types.ErrBadRequest {
			ApiErrorf(c, http.StatusBadRequest, "every item needs a wrapped key for the analysis consumer")
			return
		}
		ApiErrorf(c, http.StatusInternalServerError, "error while creating analysis shares: %s", err)
		return
	}
	metrics.AISharesCreated.Add(float64(len(out.ShareIDs)))
	c.JSON(http.StatusCreated, out)
}

// Get an analysis request
// @Security Bearer
// @Summary Get the status of an analysis request the caller created
// @Tags AI Shares
// @Param requestId path string true "Analysis request ID"
// @Produce json
// @Success 200 {object} types.AnalysisRequest
// @Failure 404 {object} ApiError "no such request for caller"
// @Router /api/v1/encryption/ai-shares/{requestId} [get]
func (aa *AIShareApi) GetAnalysisRequest(c *gin.Context) {
	userID, exists := c.Get("subjectUserID")
	if !exists {
		ApiErrorf(c, http.StatusUnauthorized, "jwt invalid")
		return
	}
	requestID := c.Param("requestId")
	if requestID == "" {
		ApiErrorf(c, http.StatusBadRequest, "invalid request id")
		return
	}
	request, err := aa.aiShareService.GetAnalysisRequest(userID.(string), requestID)
	if err != nil {
		if err == types.ErrNotFound {
			ApiErrorf(c, http.StatusNotFound, "analysis request not found: %s", requestID)
			return
		}
		ApiErrorf(c, http.StatusInternalServerError, "error while fetching analysis request: %s", err)
		return
	}
	c.JSON(http.StatusOK, request)
}
