package models

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/receipts_backend/config"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type ReceiptJobStatus string

const (
	ReceiptJobStatusPending    ReceiptJobStatus = "pending"
	ReceiptJobStatusProcessing ReceiptJobStatus = "processing"
	ReceiptJobStatusCompleted  ReceiptJobStatus = "completed"
	ReceiptJobStatusFailed     ReceiptJobStatus = "failed"
)

type ReceiptJobPayload struct {
	IntegrationId   string `json:"integration_id"`
	SourceMessageId string `json:"source_message_id"`
	CursorToken     string `json:"cursor_token,omitempty"`
}

type ReceiptJobResult struct {
	ReceiptId string `json:"receipt_id"`
}

// ReceiptProcessingJob is one unit of ingestion work. Jobs are created by the
// webhook side, claimed by exactly one worker via a conditional update on the
// observed status, and are terminal once completed or failed. A stale
// processing job (lock older than the lease timeout) may be reclaimed by
// another worker; it is never reverted to pending.
type ReceiptProcessingJob struct {
	ID          uuid.UUID        `gorm:"type:char(36);primary_key" json:"id"`
	UserId      string           `gorm:"index;size:36;not null" json:"user_id"`
	ReceiptId   *uuid.UUID       `gorm:"type:char(36)" json:"receipt_id"`
	Status      ReceiptJobStatus `gorm:"index;size:20;not null;default:pending" json:"status"`
	Progress    int              `gorm:"not null;default:0" json:"progress"`
	PayloadJSON []byte           `gorm:"type:json;not null" json:"payload"`
	ResultJSON  []byte           `gorm:"type:json" json:"result"`
	Error       string           `gorm:"type:text" json:"error"`
	LockedAt    *time.Time       `gorm:"index" json:"locked_at"`
	LockedBy    *string          `gorm:"size:100" json:"locked_by"`
	CreatedAt   time.Time        `gorm:"index;autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

func (j *ReceiptProcessingJob) Payload() ReceiptJobPayload {
	var payload ReceiptJobPayload
	if len(j.PayloadJSON) > 0 {
		_ = json.Unmarshal(j.PayloadJSON, &payload)
	}
	return payload
}

func (j *ReceiptProcessingJob) SetResult(result ReceiptJobResult) {
	b, err := json.Marshal(result)
	if err != nil {
		return
	}
	j.ResultJSON = b
}

func (j *ReceiptProcessingJob) Result() ReceiptJobResult {
	var result ReceiptJobResult
	if len(j.ResultJSON) > 0 {
		_ = json.Unmarshal(j.ResultJSON, &result)
	}
	return result
}

// AdvanceProgress moves progress forward only; within one run it never decreases.
func (j *ReceiptProcessingJob) AdvanceProgress(progress int) {
	if progress > j.Progress {
		j.Progress = progress
	}
}

// EnqueueReceiptJob creates a pending job for an inbound message.
func EnqueueReceiptJob(ctx context.Context, userId string, payload ReceiptJobPayload) (*ReceiptProcessingJob, error) {
	if payload.SourceMessageId == "" {
		return nil, errors.New("source message id is required")
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	job := ReceiptProcessingJob{
		ID:          uuid.New(),
		UserId:      userId,
		Status:      ReceiptJobStatusPending,
		PayloadJSON: b,
	}
	if err := config.GetDB().WithContext(ctx).Create(&job).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

// GormJobStore persists processing jobs. It satisfies gmailingest.JobStore.
type GormJobStore struct {
	db  *gorm.DB
	log *logrus.Logger
}

func NewJobStore(db *gorm.DB, log *logrus.Logger) *GormJobStore {
	return &GormJobStore{db: db, log: log}
}

// NextEligible returns the oldest pending job, or the oldest processing job
// whose lock expired before now - lockTimeout. Returns nil, nil when no job
// is eligible.
func (s *GormJobStore) NextEligible(ctx context.Context, now time.Time, lockTimeout time.Duration) (*ReceiptProcessingJob, error) {
	staleBefore := now.Add(-lockTimeout)

	var job ReceiptProcessingJob
	err := s.db.WithContext(ctx).
		Where("status = ? OR (status = ? AND locked_at < ?)",
			ReceiptJobStatusPending, ReceiptJobStatusProcessing, staleBefore).
		Order("created_at ASC").
		Take(&job).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &job, nil
}

// Claim performs the compare-and-swap lock: the update is guarded by the
// status observed when the job was selected, so of two concurrent claimers
// exactly one affects a row. Returns false when the race was lost.
func (s *GormJobStore) Claim(ctx context.Context, job *ReceiptProcessingJob, workerId string, now time.Time) (bool, error) {
	observed := job.Status

	res := s.db.WithContext(ctx).
		Model(&ReceiptProcessingJob{}).
		Where("id = ? AND status = ?", job.ID, observed).
		Updates(map[string]interface{}{
			"status":    ReceiptJobStatusProcessing,
			"locked_at": now,
			"locked_by": workerId,
		})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}

	job.Status = ReceiptJobStatusProcessing
	job.LockedAt = &now
	job.LockedBy = &workerId
	return true, nil
}

func (s *GormJobStore) Save(ctx context.Context, job *ReceiptProcessingJob) error {
	if err := s.db.WithContext(ctx).Save(job).Error; err != nil {
		config.LogError(s.log, "models", "Save", "receipt job", job.ID, err)
		return err
	}
	return nil
}
