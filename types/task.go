package types

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

var (
	QueueTypeGrantInvalidate = "grant:invalidate"
	QueueTypeAnalysisProcess = "analysis:process"
)

// GrantInvalidateTask revokes every outstanding grant wrapped under a
// destroyed identity. Those wrapped keys can never be recovered under
// the replacement keypair, so the grants must not stay readable.
type GrantInvalidateTask struct {
	OwnerUserID    string `json:"ownerUserId" validate:"required"`
	OldPublicKeyID string `json:"oldPublicKeyId" validate:"required"`
}

func NewGrantInvalidateTask(task *GrantInvalidateTask) (*asynq.Task, error) {
	payload, err := json.Marshal(task)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(QueueTypeGrantInvalidate, payload), nil
}

// AnalysisProcessTask drives the lifecycle of one AI analysis request.
type AnalysisProcessTask struct {
	AnalysisRequestID string `json:"analysisRequestId" validate:"required"`
}

func NewAnalysisProcessTask(task *AnalysisProcessTask) (*asynq.Task, error) {
	payload, err := json.Marshal(task)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(QueueTypeAnalysisProcess, payload), nil
}
