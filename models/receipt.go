package models

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/receipts_backend/config"
	"bitbucket.org/mmdatafocus/receipts_backend/utils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type ReceiptStatus string

const (
	ReceiptStatusNew         ReceiptStatus = "new"
	ReceiptStatusParsed      ReceiptStatus = "parsed"
	ReceiptStatusNeedsReview ReceiptStatus = "needs_review"
	ReceiptStatusDraft       ReceiptStatus = "draft"
	ReceiptStatusApproved    ReceiptStatus = "approved"
	ReceiptStatusFailed      ReceiptStatus = "failed"
)

// ReceiptAttachment describes one attachment discovered on the source message.
type ReceiptAttachment struct {
	Id       string `json:"id"`
	Filename string `json:"filename"`
	MimeType string `json:"mime_type"`
	Size     int64  `json:"size"`
}

type ReceiptMetadata struct {
	Attachments         []ReceiptAttachment `json:"attachments,omitempty"`
	Labels              []string            `json:"labels,omitempty"`
	Snippet             string              `json:"snippet,omitempty"`
	PotentialDuplicates []string            `json:"potential_duplicates,omitempty"`
}

type ReceiptLineItem struct {
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
}

// ParsedReceiptData is what the external parser produced for a receipt.
// All money fields are pointers: absent means the parser could not read them.
type ParsedReceiptData struct {
	Amount     *decimal.Decimal  `json:"amount,omitempty"`
	Currency   string            `json:"currency,omitempty"`
	Vendor     string            `json:"vendor,omitempty"`
	Date       string            `json:"date,omitempty"`
	Category   string            `json:"category,omitempty"`
	CategoryId string            `json:"category_id,omitempty"`
	Tax        *decimal.Decimal  `json:"tax,omitempty"`
	TaxRate    *decimal.Decimal  `json:"tax_rate,omitempty"`
	Subtotal   *decimal.Decimal  `json:"subtotal,omitempty"`
	LineItems  []ReceiptLineItem `json:"line_items,omitempty"`
	Confidence float64           `json:"confidence,omitempty"`
}

type Receipt struct {
	ID                  uuid.UUID       `gorm:"type:char(36);primary_key" json:"id"`
	WorkspaceId         string          `gorm:"uniqueIndex:idx_receipts_workspace_message,priority:1;size:36;not null" json:"workspace_id"`
	UserId              string          `gorm:"index;size:36;not null" json:"user_id"`
	SourceMessageId     string          `gorm:"uniqueIndex:idx_receipts_workspace_message,priority:2;size:128;not null" json:"source_message_id"`
	ThreadId            string          `gorm:"size:128" json:"thread_id"`
	Subject             string          `gorm:"size:500" json:"subject"`
	Sender              string          `gorm:"size:320" json:"sender"`
	ReceivedAt          time.Time       `gorm:"index;not null" json:"received_at"`
	Status              ReceiptStatus   `gorm:"index;size:20;not null" json:"status"`
	MetadataJSON        []byte          `gorm:"type:json" json:"metadata"`
	ParsedJSON          []byte          `gorm:"type:json" json:"parsed_data"`
	AttachmentPathsJSON []byte          `gorm:"type:json" json:"attachment_paths"`
	TaxAmount           decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"tax_amount"`
	TransactionId       *uuid.UUID      `gorm:"type:char(36);index" json:"transaction_id"`
	DuplicateOfId       *uuid.UUID      `gorm:"type:char(36);index" json:"duplicate_of_id"`
	IsDuplicate         bool            `gorm:"index;default:false" json:"is_duplicate"`
	CreatedAt           time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (r *Receipt) Metadata() ReceiptMetadata {
	var meta ReceiptMetadata
	if len(r.MetadataJSON) > 0 {
		_ = json.Unmarshal(r.MetadataJSON, &meta)
	}
	return meta
}

func (r *Receipt) SetMetadata(meta ReceiptMetadata) {
	b, err := json.Marshal(meta)
	if err != nil {
		return
	}
	r.MetadataJSON = b
}

// ParsedData returns nil when the receipt has no parser output yet.
func (r *Receipt) ParsedData() *ParsedReceiptData {
	if len(r.ParsedJSON) == 0 {
		return nil
	}
	var parsed ParsedReceiptData
	if err := json.Unmarshal(r.ParsedJSON, &parsed); err != nil {
		return nil
	}
	return &parsed
}

func (r *Receipt) SetParsedData(parsed *ParsedReceiptData) {
	if parsed == nil {
		r.ParsedJSON = nil
		return
	}
	b, err := json.Marshal(parsed)
	if err != nil {
		return
	}
	r.ParsedJSON = b
}

func (r *Receipt) AttachmentPaths() []string {
	var paths []string
	if len(r.AttachmentPathsJSON) > 0 {
		_ = json.Unmarshal(r.AttachmentPathsJSON, &paths)
	}
	return paths
}

func (r *Receipt) SetAttachmentPaths(paths []string) {
	b, err := json.Marshal(paths)
	if err != nil {
		return
	}
	r.AttachmentPathsJSON = b
}

// GormReceiptStore persists receipts. It satisfies gmailingest.ReceiptStore.
type GormReceiptStore struct {
	db  *gorm.DB
	log *logrus.Logger
}

func NewReceiptStore(db *gorm.DB, log *logrus.Logger) *GormReceiptStore {
	return &GormReceiptStore{db: db, log: log}
}

// FindBySourceMessageID returns nil, nil when no receipt exists for the message.
func (s *GormReceiptStore) FindBySourceMessageID(ctx context.Context, workspaceId, messageId string) (*Receipt, error) {
	var receipt Receipt
	err := s.db.WithContext(ctx).
		Where("workspace_id = ? AND source_message_id = ?", workspaceId, messageId).
		Take(&receipt).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &receipt, nil
}

func (s *GormReceiptStore) Create(ctx context.Context, receipt *Receipt) error {
	if receipt.ID == uuid.Nil {
		receipt.ID = uuid.New()
	}
	if err := s.db.WithContext(ctx).Create(receipt).Error; err != nil {
		config.LogError(s.log, "models", "Create", "receipt", receipt.SourceMessageId, err)
		return err
	}
	return nil
}

func (s *GormReceiptStore) Save(ctx context.Context, receipt *Receipt) error {
	return s.db.WithContext(ctx).Save(receipt).Error
}

func (s *GormReceiptStore) Get(ctx context.Context, id uuid.UUID) (*Receipt, error) {
	var receipt Receipt
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&receipt).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &receipt, nil
}

// ListUnresolvedInWindow returns the duplicate-candidate pool: receipts in the
// same workspace received inside [from, to], not already marked duplicate and
// not the receipt itself.
func (s *GormReceiptStore) ListUnresolvedInWindow(ctx context.Context, workspaceId string, from, to time.Time, excludeId uuid.UUID) ([]*Receipt, error) {
	var receipts []*Receipt
	err := s.db.WithContext(ctx).
		Where("workspace_id = ?", workspaceId).
		Where("id != ?", excludeId).
		Where("is_duplicate = ?", false).
		Where("received_at BETWEEN ? AND ?", from, to).
		Find(&receipts).Error
	if err != nil {
		return nil, err
	}
	return receipts, nil
}

// MarkReceiptAsDuplicate links a receipt to the original it duplicates.
// The original must exist in the same workspace and must not itself be a
// duplicate, so duplicate chains cannot form.
func MarkReceiptAsDuplicate(ctx context.Context, receiptId, originalId uuid.UUID) (*Receipt, error) {
	if receiptId == originalId {
		return nil, errors.New("receipt cannot duplicate itself")
	}

	db := config.GetDB().WithContext(ctx)

	var receipt Receipt
	if err := db.Where("id = ?", receiptId).Take(&receipt).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}

	var original Receipt
	if err := db.Where("id = ?", originalId).Take(&original).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}

	if receipt.WorkspaceId != original.WorkspaceId {
		return nil, errors.New("original receipt belongs to another workspace")
	}
	if original.IsDuplicate {
		return nil, errors.New("original receipt is itself marked as a duplicate")
	}

	receipt.IsDuplicate = true
	receipt.DuplicateOfId = &original.ID
	if err := db.Save(&receipt).Error; err != nil {
		return nil, err
	}
	return &receipt, nil
}

func UnmarkReceiptDuplicate(ctx context.Context, receiptId uuid.UUID) (*Receipt, error) {
	db := config.GetDB().WithContext(ctx)

	var receipt Receipt
	if err := db.Where("id = ?", receiptId).Take(&receipt).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}

	receipt.IsDuplicate = false
	receipt.DuplicateOfId = nil
	if err := db.Model(&receipt).Select("is_duplicate", "duplicate_of_id").Updates(map[string]interface{}{
		"is_duplicate":    false,
		"duplicate_of_id": nil,
	}).Error; err != nil {
		return nil, err
	}
	return &receipt, nil
}
