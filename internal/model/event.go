package model

import "time"

const (
	ReactionLike    = "like"
	ReactionDislike = "dislike"
)

type Event struct {
	ID          uint64    `gorm:"primaryKey" json:"id"`
	CommunityID uint64    `gorm:"not null;index:idx_event_comm_time,priority:1" json:"communityId"`
	AuthorID    *uint64   `gorm:"index" json:"authorId"`
	Name        string    `gorm:"size:200;not null" json:"name"`
	Body        string    `gorm:"type:text" json:"body"`
	Image       string    `gorm:"size:255" json:"image"`
	CreatedAt   time.Time `gorm:"index:idx_event_comm_time,priority:2" json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// EventReaction 每个 (event, user) 至多一行：用户要么点赞，要么点踩，要么都没有
type EventReaction struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement"`
	EventID   uint64 `gorm:"not null;uniqueIndex:uk_event_user"`
	UserID    uint64 `gorm:"not null;index;uniqueIndex:uk_event_user"`
	Kind      string `gorm:"size:8;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (EventReaction) TableName() string {
	return "event_reactions"
}

type Comment struct {
	ID        uint64    `gorm:"primaryKey" json:"id"`
	EventID   uint64    `gorm:"not null;index" json:"eventId"`
	AuthorID  *uint64   `gorm:"index" json:"authorId"`
	Body      string    `gorm:"type:text;not null" json:"body"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
