package services

import (
	"context"
	"time"

	"github.com/go-kit/log/level"
	"github.com/google/uuid"
	"github.com/john-matlock-eng/journal-vault/global"
	"github.com/john-matlock-eng/journal-vault/repository"
	"github.com/john-matlock-eng/journal-vault/types"
)

// AIShareService issues the very-short-lived, single-use grants consumed
// by the AI analysis service. The TTL ceiling is enforced here regardless
// of what the caller asked for; analysisType is advisory scoping, and
// enforcement of use is outside cryptographic scope.
type AIShareService struct {
	shareService *ShareService
	analysisRepo repository.Repository
	env          *types.Environment
}

func NewAIShareService(dbSelector repository.DBSelector, shareService *ShareService, environment *types.Environment) *AIShareService {
	analysisRepo, err := dbSelector.ChooseDB(repository.AnalysisRequests)
	if err != nil {
		level.Error(global.Logger).Log("msg", "error while choosing db", "err", err)
		panic(err)
	}
	return &AIShareService{shareService: shareService, analysisRepo: analysisRepo, env: environment}
}

// CreateAnalysisShares creates one single-use grant per item, addressed
// to the configured AI consumer identity, and records the analysis
// request that groups them.
func (as *AIShareService) CreateAnalysisShares(userID string, userPublicKeyID string, input *types.InputCreateAIShare) (*types.OutputAIShare, error) {
	ttlMinutes := global.Conf.Encryption.AIShareTTLMinutes
	if ttlMinutes <= 0 || ttlMinutes > 30 {
		ttlMinutes = 30
	}
	maxTTL := time.Duration(ttlMinutes) * time.Minute
	expiresAt := time.Now().UTC().Add(maxTTL).UnixMilli()

	shareIDs := make([]string, 0, len(input.ItemIDs))
	for _, itemID := range input.ItemIDs {
		wrappedKey, ok := input.WrappedItemKeys[itemID]
		if !ok || wrappedKey == "" {
			return nil, types.ErrBadRequest
		}
		shareInput := &types.InputCreateShare{
			ItemID:                     itemID,
			ItemType:                   input.ItemType,
			RecipientUserID:            global.Conf.Encryption.AIUserID,
			WrappedItemKeyForRecipient: wrappedKey,
			Permissions:                []string{types.SHARE_PERMISSION_READ},
			ExpiresAt:                  expiresAt,
		}
		grant, err := as.shareService.CreateShare(userID, userPublicKeyID, shareInput, "", true, input.AnalysisType, maxTTL)
		if err != nil {
			return nil, err
		}
		shareIDs = append(shareIDs, grant.ShareID)
	}

	request := &types.AnalysisRequest{
		RequestID:    uuid.NewString(),
		UserID:       userID,
		ItemType:     input.ItemType,
		ItemIDs:      input.ItemIDs,
		AnalysisType: input.AnalysisType,
		Context:      input.Context,
		ShareIDs:     shareIDs,
		Status:       types.ANALYSIS_STATUS_PENDING,
		Created:      time.Now().UTC().UnixMilli(),
		ExpiresAt:    expiresAt,
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()
	if err := as.analysisRepo.Save(ctx, request.RequestID, request); err != nil {
		return nil, err
	}

	if as.env != nil && as.env.TaskClient != nil {
		task, tErr := types.NewAnalysisProcessTask(&types.AnalysisProcessTask{AnalysisRequestID: request.RequestID})
		if tErr == nil {
			if _, qErr := as.env.TaskClient.Enqueue(task); qErr != nil {
				level.Error(global.Logger).Log("msg", "failed to enqueue analysis task", "err", qErr)
			}
		}
	}

	return &types.OutputAIShare{
		AnalysisRequestID: request.RequestID,
		ShareIDs:          shareIDs,
		ExpiresAt:         expiresAt,
	}, nil
}

// GetAnalysisRequest returns an analysis request owned by the user.
func (as *AIShareService) GetAnalysisRequest(userID string, requestID string) (*types.AnalysisRequest, error) {
	request, err := as.GetAnalysisRequestByID(requestID)
	if err != nil {
		return nil, err
	}
	if request.UserID != userID {
		return nil, types.ErrNotFound
	}
	return request, nil
}

// GetAnalysisRequestByID skips the owner check; only the queue handler uses it.
func (as *AIShareService) GetAnalysisRequestByID(requestID string) (*types.AnalysisRequest, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	resp, err := as.analysisRepo.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	var request types.AnalysisRequest
	if mErr := repository.MapToObject(resp, &request); mErr != nil {
		return nil, mErr
	}
	return &request, nil
}

// MarkAnalysisStatus transitions an analysis request; used by the queue handler.
func (as *AIShareService) MarkAnalysisStatus(requestID string, status string) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	resp, err := as.analysisRepo.GetByID(ctx, requestID)
	if err != nil {
		return err
	}
	var request types.AnalysisRequest
	if mErr := repository.MapToObject(resp, &request); mErr != nil {
		return mErr
	}
	request.Status = status
	return as.analysisRepo.Update(ctx, requestID, &request)
}
