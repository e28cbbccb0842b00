package mysql

import (
	"context"

	"commUnity/internal/model"

	"gorm.io/gorm"
)

type NoticeRepository struct {
	DB *gorm.DB
}

func (r *NoticeRepository) Create(ctx context.Context, n *model.Notice) error {
	return r.DB.WithContext(ctx).Create(n).Error
}

func (r *NoticeRepository) FindByID(ctx context.Context, id uint64) (*model.Notice, error) {
	var n model.Notice
	err := r.DB.WithContext(ctx).First(&n, id).Error
	return &n, err
}

func (r *NoticeRepository) ListByCommunity(ctx context.Context, communityID uint64) ([]model.Notice, error) {
	list := []model.Notice{}
	err := r.DB.WithContext(ctx).Where("community_id = ?", communityID).
		Order("created_at DESC, id DESC").Find(&list).Error
	return list, err
}

func (r *NoticeRepository) Delete(ctx context.Context, id uint64) error {
	return r.DB.WithContext(ctx).Delete(&model.Notice{}, id).Error
}
