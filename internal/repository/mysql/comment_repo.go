package mysql

import (
	"context"

	"commUnity/internal/model"

	"gorm.io/gorm"
)

type CommentRepository struct {
	DB *gorm.DB
}

func (r *CommentRepository) Create(ctx context.Context, c *model.Comment) error {
	return r.DB.WithContext(ctx).Create(c).Error
}

func (r *CommentRepository) FindByID(ctx context.Context, id uint64) (*model.Comment, error) {
	var c model.Comment
	err := r.DB.WithContext(ctx).First(&c, id).Error
	return &c, err
}

func (r *CommentRepository) ListByEvent(ctx context.Context, eventID uint64) ([]model.Comment, error) {
	list := []model.Comment{}
	err := r.DB.WithContext(ctx).Where("event_id = ?", eventID).
		Order("created_at DESC, id DESC").Find(&list).Error
	return list, err
}

func (r *CommentRepository) Delete(ctx context.Context, id uint64) error {
	return r.DB.WithContext(ctx).Delete(&model.Comment{}, id).Error
}
