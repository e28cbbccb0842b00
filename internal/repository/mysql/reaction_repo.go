package mysql

import (
	"context"
	"errors"

	"commUnity/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ReactionRepository struct {
	DB *gorm.DB
}

// Toggle 切换用户对活动的态度，返回切换后的状态（like / dislike / 空字符串表示无）
// 同一动作点两次即取消；点相反动作会替换原有态度
func (r *ReactionRepository) Toggle(ctx context.Context, eventID, userID uint64, kind string) (string, error) {
	var state string
	op := func(tx *gorm.DB) error {
		var cur model.EventReaction
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("event_id = ? AND user_id = ?", eventID, userID).
			First(&cur).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			state = kind
			return tx.Create(&model.EventReaction{EventID: eventID, UserID: userID, Kind: kind}).Error
		case err != nil:
			return err
		case cur.Kind == kind:
			state = ""
			return tx.Delete(&model.EventReaction{}, cur.ID).Error
		default:
			state = kind
			return tx.Model(&model.EventReaction{}).Where("id = ?", cur.ID).Update("kind", kind).Error
		}
	}

	err := r.DB.WithContext(ctx).Transaction(op)
	// 并发首次点赞时唯一索引冲突，重读一次即可
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		err = r.DB.WithContext(ctx).Transaction(op)
	}
	return state, err
}

func (r *ReactionRepository) ListByEvents(ctx context.Context, eventIDs []uint64) ([]model.EventReaction, error) {
	list := []model.EventReaction{}
	if len(eventIDs) == 0 {
		return list, nil
	}
	err := r.DB.WithContext(ctx).Where("event_id IN ?", eventIDs).Order("id ASC").Find(&list).Error
	return list, err
}
