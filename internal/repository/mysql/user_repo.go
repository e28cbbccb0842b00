package mysql

import (
	"context"

	"commUnity/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type UserRepository struct {
	DB *gorm.DB
}

func (r *UserRepository) Create(ctx context.Context, user *model.User) error {
	return r.DB.WithContext(ctx).Create(user).Error
}

func (r *UserRepository) FindByID(ctx context.Context, id uint64) (*model.User, error) {
	var user model.User
	err := r.DB.WithContext(ctx).First(&user, id).Error
	return &user, err
}

func (r *UserRepository) FindByIDs(ctx context.Context, ids []uint64) ([]model.User, error) {
	list := []model.User{}
	if len(ids) == 0 {
		return list, nil
	}
	err := r.DB.WithContext(ctx).Where("id IN ?", ids).Find(&list).Error
	return list, err
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	var usr model.User
	err := r.DB.WithContext(ctx).Where("email = ?", email).First(&usr).Error
	return &usr, err
}

func (r *UserRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var n int64
	err := r.DB.WithContext(ctx).Model(&model.User{}).Where("email = ?", email).Count(&n).Error
	return n > 0, err
}

func (r *UserRepository) UpdatePassword(ctx context.Context, id uint64, hash string) error {
	return r.update(ctx, id, "password", hash)
}

func (r *UserRepository) UpdateUsername(ctx context.Context, id uint64, username string) error {
	return r.update(ctx, id, "username", username)
}

func (r *UserRepository) UpdateProfilePic(ctx context.Context, id uint64, url string) error {
	return r.update(ctx, id, "profile_pic", url)
}

func (r *UserRepository) update(ctx context.Context, id uint64, column string, value any) error {
	res := r.DB.WithContext(ctx).Model(&model.User{}).Where("id = ?", id).Update(column, value)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DeleteCascade 删除用户：
// 1. 其拥有的社区交给最早加入的其他成员，无人则置空
// 2. 移除成员关系和点赞记录，并同步社区热度
// 3. 其发布的活动、评论、公告保留，作者置空
// 全部在同一事务内完成
func (r *UserRepository) DeleteCascade(ctx context.Context, userID uint64) ([]OwnerChange, error) {
	changes := []OwnerChange{}
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user model.User
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&user, userID).Error; err != nil {
			return err
		}

		owned, joined, err := lockAffectedCommunities(tx, userID)
		if err != nil {
			return err
		}
		for _, cid := range owned {
			newOwner, err := handOverOwnership(tx, cid, userID)
			if err != nil {
				return err
			}
			changes = append(changes, OwnerChange{CommunityID: cid, NewOwnerID: newOwner})
		}

		if err := decrementPopularity(tx, joined...); err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", userID).Delete(&model.CommunityMember{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", userID).Delete(&model.EventReaction{}).Error; err != nil {
			return err
		}
		for _, m := range []any{&model.Event{}, &model.Comment{}, &model.Notice{}} {
			if err := tx.Model(m).Where("author_id = ?", userID).
				UpdateColumn("author_id", gorm.Expr("NULL")).Error; err != nil {
				return err
			}
		}
		if err := tx.Delete(&model.User{}, userID).Error; err != nil {
			return err
		}
		return insertOutbox(tx, EventUserDeleted, userID, map[string]any{
			"user_id":        userID,
			"owner_changes":  changes,
			"left_community": joined,
		})
	})
	if err != nil {
		return nil, err
	}
	return changes, nil
}

// lockAffectedCommunities 先按 id 顺序锁住用户拥有或加入的社区，再加锁读取最新的归属
// 与 Join/Leave 一样先锁社区行；等锁期间归属可能变化，有新社区就补锁后重读
func lockAffectedCommunities(tx *gorm.DB, userID uint64) (owned, joined []uint64, err error) {
	var candidates []uint64
	if err = tx.Model(&model.Community{}).Where("owner_id = ?", userID).Pluck("id", &candidates).Error; err != nil {
		return nil, nil, err
	}
	var memberOf []uint64
	if err = tx.Model(&model.CommunityMember{}).Where("user_id = ?", userID).Pluck("community_id", &memberOf).Error; err != nil {
		return nil, nil, err
	}
	candidates = append(candidates, memberOf...)

	locked := map[uint64]bool{}
	pending := unlocked(locked, candidates)
	for {
		if len(pending) > 0 {
			var rows []model.Community
			if err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).Select("id").
				Where("id IN ?", pending).Order("id ASC").Find(&rows).Error; err != nil {
				return nil, nil, err
			}
		}

		owned, joined = nil, nil
		if err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).Model(&model.Community{}).
			Where("owner_id = ?", userID).Order("id ASC").Pluck("id", &owned).Error; err != nil {
			return nil, nil, err
		}
		if err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).Model(&model.CommunityMember{}).
			Where("user_id = ?", userID).Order("community_id ASC").Pluck("community_id", &joined).Error; err != nil {
			return nil, nil, err
		}
		if pending = unlocked(locked, append(append([]uint64{}, owned...), joined...)); len(pending) == 0 {
			return owned, joined, nil
		}
	}
}

func unlocked(locked map[uint64]bool, ids []uint64) []uint64 {
	out := []uint64{}
	for _, id := range ids {
		if !locked[id] {
			locked[id] = true
			out = append(out, id)
		}
	}
	return out
}
