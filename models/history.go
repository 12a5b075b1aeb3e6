package models

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/receipts_backend/config"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	HistoryActionImport = "import"
)

// History is the audit trail. Rows are append-only.
type History struct {
	ID            int       `gorm:"primary_key" json:"id"`
	WorkspaceId   string    `gorm:"index;size:36;not null" json:"workspace_id"`
	ActionType    string    `gorm:"size:10;not null" json:"action_type" binding:"required"`
	Before        string    `gorm:"type:text" json:"before"`
	After         string    `gorm:"type:text" json:"after"`
	Description   string    `gorm:"type:text;not null" json:"description"`
	ReferenceId   string    `gorm:"index;size:36" json:"reference_id"`
	ReferenceType string    `gorm:"size:255" json:"reference_type"`
	UserId        string    `gorm:"index;size:36;not null" json:"user_id"`
	UserName      string    `gorm:"size:100" json:"user_name"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// HistoryAuditSink records pipeline events into the history table.
// It satisfies gmailingest.AuditSink.
type HistoryAuditSink struct {
	db  *gorm.DB
	log *logrus.Logger
}

func NewAuditSink(db *gorm.DB, log *logrus.Logger) *HistoryAuditSink {
	return &HistoryAuditSink{db: db, log: log}
}

// RecordImport writes one audit row for a receipt imported from the mail
// integration. The actor is the integration, labeled for operators.
func (s *HistoryAuditSink) RecordImport(ctx context.Context, receipt *Receipt, integrationId string) error {
	after, err := json.Marshal(receipt)
	if err != nil {
		return err
	}
	history := History{
		WorkspaceId:   receipt.WorkspaceId,
		ActionType:    HistoryActionImport,
		After:         string(after),
		Description:   fmt.Sprintf("Receipt imported from mail message %s.", receipt.SourceMessageId),
		ReferenceId:   receipt.ID.String(),
		ReferenceType: "receipt",
		UserId:        receipt.UserId,
		UserName:      "Mail Import",
	}
	if err := s.db.WithContext(ctx).Create(&history).Error; err != nil {
		config.LogError(s.log, "models", "RecordImport", "audit event", receipt.ID, err)
		return err
	}
	return nil
}
