package gmailingest

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/receipts_backend/models"
	"github.com/google/uuid"
)

// MessageSource fetches messages and attachments from the mail provider.
// OAuth token acquisition and refresh belong to the integrations service;
// implementations only consume tokens.
type MessageSource interface {
	GetMessage(ctx context.Context, userId, messageId string) (*SourceMessage, error)
	// DownloadAttachment stores the attachment on local disk and returns the path.
	DownloadAttachment(ctx context.Context, userId, messageId, attachmentId, filename string) (string, error)
}

// ReceiptParser turns an attachment file into structured receipt fields.
// A nil result with a nil error means the parser could not read the document.
type ReceiptParser interface {
	Parse(ctx context.Context, filePath string) (*models.ParsedReceiptData, error)
}

type ReceiptStore interface {
	FindBySourceMessageID(ctx context.Context, workspaceId, messageId string) (*models.Receipt, error)
	Create(ctx context.Context, receipt *models.Receipt) error
	Save(ctx context.Context, receipt *models.Receipt) error
	ListUnresolvedInWindow(ctx context.Context, workspaceId string, from, to time.Time, excludeId uuid.UUID) ([]*models.Receipt, error)
}

type JobStore interface {
	NextEligible(ctx context.Context, now time.Time, lockTimeout time.Duration) (*models.ReceiptProcessingJob, error)
	Claim(ctx context.Context, job *models.ReceiptProcessingJob, workerId string, now time.Time) (bool, error)
	Save(ctx context.Context, job *models.ReceiptProcessingJob) error
}

type CategoryStore interface {
	ListForWorkspace(ctx context.Context, workspaceId string) ([]*models.Category, error)
}

type TransactionHistoryStore interface {
	SearchCategorized(ctx context.Context, workspaceId, vendorSubstring string, limit int) ([]*models.Transaction, error)
}

type IntegrationStore interface {
	Get(ctx context.Context, id string) (*models.IntegrationConnection, error)
}

type AuditSink interface {
	RecordImport(ctx context.Context, receipt *models.Receipt, integrationId string) error
}

// PipelineRunner is what the job processor hands a claimed job to.
type PipelineRunner interface {
	Process(ctx context.Context, job *models.ReceiptProcessingJob)
}
