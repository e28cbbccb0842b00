package mysql

import (
	"context"

	"commUnity/internal/model"

	"gorm.io/gorm"
)

type EventRepository struct {
	DB *gorm.DB
}

func (r *EventRepository) Create(ctx context.Context, e *model.Event) error {
	return r.DB.WithContext(ctx).Create(e).Error
}

func (r *EventRepository) FindByID(ctx context.Context, id uint64) (*model.Event, error) {
	var e model.Event
	err := r.DB.WithContext(ctx).First(&e, id).Error
	return &e, err
}

// ListAll 最新的在前
func (r *EventRepository) ListAll(ctx context.Context) ([]model.Event, error) {
	list := []model.Event{}
	err := r.DB.WithContext(ctx).Order("created_at DESC, id DESC").Find(&list).Error
	return list, err
}

// ListByCommunities 查询若干社区下的活动，走 (community_id, created_at) 索引
func (r *EventRepository) ListByCommunities(ctx context.Context, communityIDs ...uint64) ([]model.Event, error) {
	list := []model.Event{}
	if len(communityIDs) == 0 {
		return list, nil
	}
	err := r.DB.WithContext(ctx).
		Where("community_id IN ?", communityIDs).
		Order("created_at DESC, id DESC").
		Find(&list).Error
	return list, err
}

// Delete 级联删除活动的评论和点赞
func (r *EventRepository) Delete(ctx context.Context, id uint64) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("event_id = ?", id).Delete(&model.EventReaction{}).Error; err != nil {
			return err
		}
		if err := tx.Where("event_id = ?", id).Delete(&model.Comment{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&model.Event{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}
