package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-kit/log/level"
	"github.com/hibiken/asynq"
	"github.com/john-matlock-eng/journal-vault/global"
	"github.com/john-matlock-eng/journal-vault/metrics"
	"github.com/john-matlock-eng/journal-vault/repository"
	"github.com/john-matlock-eng/journal-vault/services"
	"github.com/john-matlock-eng/journal-vault/types"
)

// TaskQueue processes the background work the API only enqueues:
// grant invalidation after identity resets and analysis request
// lifecycle transitions.
type TaskQueue struct {
	shareService   *services.ShareService
	aiShareService *services.AIShareService
	env            *types.Environment
}

func NewTaskQueue(dbSelector *repository.CouchDBSelector, env *types.Environment) *TaskQueue {
	shareService := services.NewShareService(dbSelector, env)
	aiShareService := services.NewAIShareService(dbSelector, shareService, env)

	return &TaskQueue{
		shareService:   shareService,
		aiShareService: aiShareService,
		env:            env,
	}
}

// ProcessGrantInvalidateTask revokes every grant wrapped under a
// destroyed identity. Retried by asynq on transient failures; a revoke
// already applied is a no-op on retry.
func (tq *TaskQueue) ProcessGrantInvalidateTask(ctx context.Context, t *asynq.Task) error {
	var task types.GrantInvalidateTask
	if err := json.Unmarshal(t.Payload(), &task); err != nil {
		return fmt.Errorf("json.Unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}
	if task.OwnerUserID == "" || task.OldPublicKeyID == "" {
		return fmt.Errorf("grant invalidation task missing identity: %w", asynq.SkipRetry)
	}

	revoked, err := tq.shareService.InvalidateGrantsForIdentity(ctx, task.OwnerUserID, task.OldPublicKeyID)
	if err != nil {
		level.Error(global.Logger).Log("msg", "grant invalidation failed", "userId", task.OwnerUserID, "err", err)
		return err
	}
	metrics.GrantsInvalidated.Add(float64(revoked))
	global.Logger.Log("msg", "invalidated grants for reset identity", "userId", task.OwnerUserID, "count", revoked)
	return nil
}

// ProcessAnalysisTask moves an analysis request to processing and
// expires it once its grants have lapsed. The analysis itself runs in
// an external service that consumes the single-use grants.
func (tq *TaskQueue) ProcessAnalysisTask(ctx context.Context, t *asynq.Task) error {
	var task types.AnalysisProcessTask
	if err := json.Unmarshal(t.Payload(), &task); err != nil {
		return fmt.Errorf("json.Unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}

	request, err := tq.aiShareService.GetAnalysisRequestByID(task.AnalysisRequestID)
	if err != nil {
		if err == types.ErrNotFound {
			return fmt.Errorf("analysis request gone: %w", asynq.SkipRetry)
		}
		return err
	}

	now := time.Now().UTC().UnixMilli()
	if now >= request.ExpiresAt {
		return tq.aiShareService.MarkAnalysisStatus(request.RequestID, types.ANALYSIS_STATUS_EXPIRED)
	}
	if request.Status == types.ANALYSIS_STATUS_PENDING {
		if mErr := tq.aiShareService.MarkAnalysisStatus(request.RequestID, types.ANALYSIS_STATUS_PROCESSING); mErr != nil {
			return mErr
		}
	}
	// re-check after the grants expire so the request never sticks in processing
	delay := time.Duration(request.ExpiresAt-now) * time.Millisecond
	retryAt, tErr := types.NewAnalysisProcessTask(&types.AnalysisProcessTask{AnalysisRequestID: request.RequestID})
	if tErr == nil && tq.env != nil && tq.env.TaskClient != nil {
		tq.env.TaskClient.Enqueue(retryAt, asynq.ProcessIn(delay))
	}
	return nil
}
