package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/receipts_backend/config"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type CategoryType string

const (
	CategoryTypeIncome  CategoryType = "income"
	CategoryTypeExpense CategoryType = "expense"
)

type Category struct {
	ID          uuid.UUID    `gorm:"type:char(36);primary_key" json:"id"`
	WorkspaceId string       `gorm:"index;size:36;not null" json:"workspace_id"`
	UserId      *string      `gorm:"size:36" json:"user_id"`
	Name        string       `gorm:"size:255;not null" json:"name" binding:"required"`
	Type        CategoryType `gorm:"size:10;not null" json:"type" binding:"required"`
	ParentId    *uuid.UUID   `gorm:"type:char(36)" json:"parent_id"`
	CreatedAt   time.Time    `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time    `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewCategory struct {
	WorkspaceId string       `json:"workspace_id" binding:"required"`
	UserId      *string      `json:"user_id"`
	Name        string       `json:"name" binding:"required"`
	Type        CategoryType `json:"type" binding:"required"`
	ParentId    *uuid.UUID   `json:"parent_id"`
}

func categoryListCacheKey(workspaceId string) string {
	return "CategoryList:" + workspaceId
}

func CreateCategory(ctx context.Context, input *NewCategory) (*Category, error) {
	if input == nil || input.Name == "" || input.WorkspaceId == "" {
		return nil, errors.New("workspace id and name are required")
	}
	category := Category{
		ID:          uuid.New(),
		WorkspaceId: input.WorkspaceId,
		UserId:      input.UserId,
		Name:        input.Name,
		Type:        input.Type,
		ParentId:    input.ParentId,
	}
	if err := config.GetDB().WithContext(ctx).Create(&category).Error; err != nil {
		return nil, err
	}
	_ = config.RemoveRedisKey(categoryListCacheKey(input.WorkspaceId))
	return &category, nil
}

// GormCategoryStore lists workspace categories with a short redis cache in
// front of the table; the suggestion engine hits the list on every job.
// It satisfies gmailingest.CategoryStore.
type GormCategoryStore struct {
	db  *gorm.DB
	log *logrus.Logger
}

func NewCategoryStore(db *gorm.DB, log *logrus.Logger) *GormCategoryStore {
	return &GormCategoryStore{db: db, log: log}
}

func (s *GormCategoryStore) ListForWorkspace(ctx context.Context, workspaceId string) ([]*Category, error) {
	key := categoryListCacheKey(workspaceId)

	var categories []*Category
	if ok, err := config.GetRedisObject(key, &categories); err == nil && ok {
		return categories, nil
	}

	err := s.db.WithContext(ctx).
		Where("workspace_id = ?", workspaceId).
		Order("name ASC").
		Find(&categories).Error
	if err != nil {
		return nil, err
	}

	if err := config.SetRedisObject(key, categories, 10*time.Minute); err != nil {
		s.log.WithFields(logrus.Fields{
			"module":       "models",
			"workspace_id": workspaceId,
		}).Warn("category cache set failed: " + err.Error())
	}
	return categories, nil
}
