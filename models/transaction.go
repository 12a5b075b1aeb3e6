package models

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Transaction is a categorized bank-statement line. The suggestion engine
// mines these for how the workspace labeled a vendor in the past.
type Transaction struct {
	ID               uuid.UUID       `gorm:"type:char(36);primary_key" json:"id"`
	WorkspaceId      string          `gorm:"index;size:36;not null" json:"workspace_id"`
	StatementId      *uuid.UUID      `gorm:"type:char(36);index" json:"statement_id"`
	TransactionDate  time.Time       `gorm:"index;not null" json:"transaction_date"`
	CounterpartyName string          `gorm:"size:500" json:"counterparty_name"`
	PaymentPurpose   string          `gorm:"type:text" json:"payment_purpose"`
	Amount           decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount"`
	Currency         string          `gorm:"size:10" json:"currency"`
	CategoryId       *uuid.UUID      `gorm:"type:char(36);index" json:"category_id"`
	CreatedAt        time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// GormTransactionHistoryStore satisfies gmailingest.TransactionHistoryStore.
type GormTransactionHistoryStore struct {
	db  *gorm.DB
	log *logrus.Logger
}

func NewTransactionHistoryStore(db *gorm.DB, log *logrus.Logger) *GormTransactionHistoryStore {
	return &GormTransactionHistoryStore{db: db, log: log}
}

// SearchCategorized returns up to limit categorized transactions whose
// counterparty or payment purpose contains the vendor substring,
// case-insensitively, oldest first.
func (s *GormTransactionHistoryStore) SearchCategorized(ctx context.Context, workspaceId, vendorSubstring string, limit int) ([]*Transaction, error) {
	pattern := "%" + strings.ToLower(vendorSubstring) + "%"

	var transactions []*Transaction
	err := s.db.WithContext(ctx).
		Where("workspace_id = ?", workspaceId).
		Where("category_id IS NOT NULL").
		Where("(LOWER(counterparty_name) LIKE ? OR LOWER(payment_purpose) LIKE ?)", pattern, pattern).
		Order("transaction_date ASC").
		Limit(limit).
		Find(&transactions).Error
	if err != nil {
		return nil, err
	}
	return transactions, nil
}
