package model

import "time"

type Community struct {
	ID          uint64    `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"size:64;not null;index" json:"name"`
	Description string    `gorm:"type:text" json:"description"`
	Location    string    `gorm:"size:128;index" json:"location"`
	Image       string    `gorm:"size:255" json:"image"`
	OwnerID     *uint64   `gorm:"index" json:"owner"` // nil once the last member is gone
	Popularity  int64     `gorm:"not null;default:0;index" json:"popularity"`
	Members     []uint64  `gorm:"-" json:"members"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type CommunityMember struct {
	ID          uint64 `gorm:"primaryKey"` // join order, oldest first
	CommunityID uint64 `gorm:"not null;index;uniqueIndex:uk_community_user"`
	UserID      uint64 `gorm:"not null;index;uniqueIndex:uk_community_user"`
	CreatedAt   time.Time
}

// IsOwnedBy 判断 userID 是否为当前所有者
func (c *Community) IsOwnedBy(userID uint64) bool {
	return c.OwnerID != nil && *c.OwnerID == userID
}
