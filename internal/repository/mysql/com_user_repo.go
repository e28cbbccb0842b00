package mysql

import (
	"context"
	"errors"

	"commUnity/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrNotMember = errors.New("user is not a member of the community")

type CommunityMemberRepository struct {
	DB *gorm.DB
}

// OwnerChange 原所有者离开后社区所有权的变更；没有成员可接任时 NewOwnerID 为 nil
type OwnerChange struct {
	CommunityID uint64  `json:"communityId"`
	NewOwnerID  *uint64 `json:"newOwnerId"`
}

// Join 幂等加入；首次加入返回 joined=true 并增加热度
func (r *CommunityMemberRepository) Join(ctx context.Context, communityID, userID uint64) (bool, error) {
	var joined bool
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var c model.Community
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Select("id").First(&c, communityID).Error; err != nil {
			return err
		}
		var err error
		joined, err = joinTx(tx, communityID, userID)
		return err
	})
	return joined, err
}

func joinTx(tx *gorm.DB, communityID, userID uint64) (bool, error) {
	res := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "community_id"}, {Name: "user_id"}},
		DoNothing: true,
	}).Create(&model.CommunityMember{CommunityID: communityID, UserID: userID})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	err := tx.Model(&model.Community{}).Where("id = ?", communityID).
		UpdateColumn("popularity", gorm.Expr("popularity + 1")).Error
	return true, err
}

// Leave 退出社区；若退出者是社区所有者，则把所有权交给最早加入的其余成员
func (r *CommunityMemberRepository) Leave(ctx context.Context, communityID, userID uint64) (*OwnerChange, error) {
	var change *OwnerChange
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var c model.Community
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&c, communityID).Error; err != nil {
			return err
		}
		res := tx.Where("community_id = ? AND user_id = ?", communityID, userID).Delete(&model.CommunityMember{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotMember
		}
		if err := decrementPopularity(tx, communityID); err != nil {
			return err
		}
		if !c.IsOwnedBy(userID) {
			return nil
		}
		newOwner, err := handOverOwnership(tx, communityID, userID)
		if err != nil {
			return err
		}
		change = &OwnerChange{CommunityID: communityID, NewOwnerID: newOwner}
		return nil
	})
	return change, err
}

func (r *CommunityMemberRepository) IsMember(ctx context.Context, communityID, userID uint64) (bool, error) {
	var count int64
	err := r.DB.WithContext(ctx).Model(&model.CommunityMember{}).
		Where("community_id = ? AND user_id = ?", communityID, userID).
		Count(&count).Error
	return count > 0, err
}

// MemberIDs 按加入顺序返回成员 id
func (r *CommunityMemberRepository) MemberIDs(ctx context.Context, communityID uint64) ([]uint64, error) {
	ids := []uint64{}
	err := r.DB.WithContext(ctx).Model(&model.CommunityMember{}).
		Where("community_id = ?", communityID).
		Order("id ASC").
		Pluck("user_id", &ids).Error
	return ids, err
}

// CommunityIDs 返回用户加入的全部社区 id
func (r *CommunityMemberRepository) CommunityIDs(ctx context.Context, userID uint64) ([]uint64, error) {
	ids := []uint64{}
	err := r.DB.WithContext(ctx).Model(&model.CommunityMember{}).
		Where("user_id = ?", userID).
		Order("id ASC").
		Pluck("community_id", &ids).Error
	return ids, err
}

// handOverOwnership 由最早加入的剩余成员接任，无人则置空
// 必须在移除 leavingUserID 的同一事务内调用
func handOverOwnership(tx *gorm.DB, communityID, leavingUserID uint64) (*uint64, error) {
	var next model.CommunityMember
	// 加锁读取，读到已提交的最新成员关系而不是事务快照
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("community_id = ? AND user_id <> ?", communityID, leavingUserID).
		Order("id ASC").
		First(&next).Error

	var newOwner *uint64
	switch {
	case err == nil:
		id := next.UserID
		newOwner = &id
	case errors.Is(err, gorm.ErrRecordNotFound):
	default:
		return nil, err
	}

	var value any = gorm.Expr("NULL")
	if newOwner != nil {
		value = *newOwner
	}
	if err = tx.Model(&model.Community{}).Where("id = ?", communityID).
		UpdateColumn("owner_id", value).Error; err != nil {
		return nil, err
	}

	err = insertOutbox(tx, EventOwnerReassigned, communityID, map[string]any{
		"community_id":   communityID,
		"previous_owner": leavingUserID,
		"new_owner":      newOwner,
	})
	return newOwner, err
}

func decrementPopularity(tx *gorm.DB, communityIDs ...uint64) error {
	if len(communityIDs) == 0 {
		return nil
	}
	return tx.Model(&model.Community{}).Where("id IN ?", communityIDs).
		UpdateColumn("popularity", gorm.Expr("CASE WHEN popularity > 0 THEN popularity - 1 ELSE 0 END")).Error
}

// MemberIDsByCommunities 批量查询成员，避免列表接口 N+1
func (r *CommunityMemberRepository) MemberIDsByCommunities(ctx context.Context, communityIDs []uint64) (map[uint64][]uint64, error) {
	out := make(map[uint64][]uint64, len(communityIDs))
	if len(communityIDs) == 0 {
		return out, nil
	}
	var rows []model.CommunityMember
	if err := r.DB.WithContext(ctx).Where("community_id IN ?", communityIDs).
		Order("id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, m := range rows {
		out[m.CommunityID] = append(out[m.CommunityID], m.UserID)
	}
	return out, nil
}
