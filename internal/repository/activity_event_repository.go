package repository

import (
	"fmt"

	"gorm.io/gorm"

	"docuchat/internal/model"
)

type ActivityEventRepository struct {
	db *gorm.DB
}

func NewActivityEventRepository(db *gorm.DB) *ActivityEventRepository {
	return &ActivityEventRepository{db: db}
}

func (r *ActivityEventRepository) Create(event *model.ActivityEvent) error {
	if err := r.db.Create(event).Error; err != nil {
		return fmt.Errorf("create activity event failed: %w", err)
	}
	return nil
}

func (r *ActivityEventRepository) ListByUserID(userID uint, limit int) ([]model.ActivityEvent, error) {
	if limit <= 0 || limit > 200 {
		limit = 100
	}
	var events []model.ActivityEvent
	if err := r.db.Where("user_id = ?", userID).Order("created_at DESC").Limit(limit).Find(&events).Error; err != nil {
		return nil, fmt.Errorf("list activity events failed: %w", err)
	}
	return events, nil
}
