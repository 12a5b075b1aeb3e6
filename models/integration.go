package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/receipts_backend/utils"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	IntegrationProviderGmail = "gmail"
)

const (
	IntegrationStatusConnected    = "connected"
	IntegrationStatusDisconnected = "disconnected"
	IntegrationStatusNeedsReauth  = "needs_reauth"
	IntegrationStatusError        = "error"
)

// IntegrationConnection ties a workspace to its mail provider account.
// OAuth credentials live with the integrations service; the worker only reads
// the connection to resolve the workspace and cursor state.
type IntegrationConnection struct {
	ID                uuid.UUID  `gorm:"type:char(36);primary_key" json:"id"`
	WorkspaceId       string     `gorm:"index;size:36;not null" json:"workspace_id"`
	Provider          string     `gorm:"index;size:50;not null" json:"provider"`
	Status            string     `gorm:"size:20;not null" json:"status"`
	ConnectedByUserId *string    `gorm:"size:36" json:"connected_by_user_id"`
	CursorStateJSON   []byte     `gorm:"type:json" json:"cursor_state"`
	LastSyncAt        *time.Time `json:"last_sync_at"`
	CreatedAt         time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// GormIntegrationStore satisfies gmailingest.IntegrationStore.
type GormIntegrationStore struct {
	db  *gorm.DB
	log *logrus.Logger
}

func NewIntegrationStore(db *gorm.DB, log *logrus.Logger) *GormIntegrationStore {
	return &GormIntegrationStore{db: db, log: log}
}

func (s *GormIntegrationStore) Get(ctx context.Context, id string) (*IntegrationConnection, error) {
	var conn IntegrationConnection
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&conn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &conn, nil
}
