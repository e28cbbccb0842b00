package mysql

import (
	"context"
	"strings"

	"commUnity/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type CommunityRepository struct {
	DB *gorm.DB
}

// Create 创建社区，创建者同时成为所有者和第一个成员
func (r *CommunityRepository) Create(ctx context.Context, c *model.Community, ownerID uint64) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		c.OwnerID = &ownerID
		c.Popularity = 0
		if err := tx.Create(c).Error; err != nil {
			return err
		}
		if _, err := joinTx(tx, c.ID, ownerID); err != nil {
			return err
		}
		c.Popularity = 1
		return insertOutbox(tx, EventCommunityCreated, c.ID, map[string]any{
			"community_id": c.ID,
			"owner":        ownerID,
			"name":         c.Name,
		})
	})
}

func (r *CommunityRepository) FindByID(ctx context.Context, id uint64) (*model.Community, error) {
	var community model.Community
	err := r.DB.WithContext(ctx).First(&community, id).Error
	return &community, err
}

func (r *CommunityRepository) FindByIDs(ctx context.Context, ids []uint64) ([]model.Community, error) {
	list := []model.Community{}
	if len(ids) == 0 {
		return list, nil
	}
	err := r.DB.WithContext(ctx).Where("id IN ?", ids).Order("id ASC").Find(&list).Error
	return list, err
}

// Update 部分更新，fields 的 key 为列名
func (r *CommunityRepository) Update(ctx context.Context, id uint64, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	return r.DB.WithContext(ctx).Model(&model.Community{}).Where("id = ?", id).Updates(fields).Error
}

// Delete 级联删除社区下的活动、评论、点赞、公告和成员关系
func (r *CommunityRepository) Delete(ctx context.Context, id uint64) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var c model.Community
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&c, id).Error; err != nil {
			return err
		}
		events := tx.Model(&model.Event{}).Select("id").Where("community_id = ?", id)
		if err := tx.Where("event_id IN (?)", events).Delete(&model.EventReaction{}).Error; err != nil {
			return err
		}
		if err := tx.Where("event_id IN (?)", events).Delete(&model.Comment{}).Error; err != nil {
			return err
		}
		if err := tx.Where("community_id = ?", id).Delete(&model.Event{}).Error; err != nil {
			return err
		}
		if err := tx.Where("community_id = ?", id).Delete(&model.Notice{}).Error; err != nil {
			return err
		}
		if err := tx.Where("community_id = ?", id).Delete(&model.CommunityMember{}).Error; err != nil {
			return err
		}
		if err := tx.Delete(&model.Community{}, id).Error; err != nil {
			return err
		}
		return insertOutbox(tx, EventCommunityDeleted, id, map[string]any{
			"community_id": id,
			"name":         c.Name,
		})
	})
}

func (r *CommunityRepository) ListByOwner(ctx context.Context, ownerID uint64) ([]model.Community, error) {
	list := []model.Community{}
	err := r.DB.WithContext(ctx).Where("owner_id = ?", ownerID).Order("id DESC").Find(&list).Error
	return list, err
}

// ListByMember 按加入时间倒序
func (r *CommunityRepository) ListByMember(ctx context.Context, userID uint64) ([]model.Community, error) {
	list := []model.Community{}
	err := r.DB.WithContext(ctx).
		Joins("JOIN community_members m ON m.community_id = communities.id").
		Where("m.user_id = ?", userID).
		Order("m.id DESC").
		Find(&list).Error
	return list, err
}

// Top 按热度倒序，热度相同按 id 升序
func (r *CommunityRepository) Top(ctx context.Context, n int) ([]model.Community, error) {
	list := []model.Community{}
	err := r.DB.WithContext(ctx).Order("popularity DESC").Order("id ASC").Limit(n).Find(&list).Error
	return list, err
}

// Search 名称或描述中包含 q（不区分大小写）
func (r *CommunityRepository) Search(ctx context.Context, q string) ([]model.Community, error) {
	list := []model.Community{}
	db := r.DB.WithContext(ctx)
	if q = strings.TrimSpace(q); q != "" {
		like := containsPattern(q)
		db = db.Where("LOWER(name) LIKE ? ESCAPE '!' OR LOWER(description) LIKE ? ESCAPE '!'", like, like)
	}
	err := db.Order("popularity DESC").Order("id ASC").Find(&list).Error
	return list, err
}

// 用户输入里的 % 和 _ 按字面匹配；用 ! 转义，MySQL 和 SQLite 写法一致
var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

func containsPattern(s string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(s)) + "%"
}

// Filter 对传入的每个字段做包含匹配，空字段忽略
func (r *CommunityRepository) Filter(ctx context.Context, name, location string) ([]model.Community, error) {
	list := []model.Community{}
	db := r.DB.WithContext(ctx)
	if name = strings.TrimSpace(name); name != "" {
		db = db.Where("LOWER(name) LIKE ? ESCAPE '!'", containsPattern(name))
	}
	if location = strings.TrimSpace(location); location != "" {
		db = db.Where("LOWER(location) LIKE ? ESCAPE '!'", containsPattern(location))
	}
	err := db.Order("popularity DESC").Order("id ASC").Find(&list).Error
	return list, err
}
