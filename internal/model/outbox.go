package model

import "time"

const (
	OutboxPending = 0
	OutboxSent    = 1
	OutboxFailed  = 2
)

// ActivityOutbox 记录需要对外投递的领域事件，与业务写入同一事务提交
type ActivityOutbox struct {
	ID          uint64 `gorm:"primaryKey"`
	EventType   string `gorm:"size:32;not null"` // community.created / community.deleted / owner.reassigned / user.deleted
	AggregateID uint64 `gorm:"not null;index"`
	Payload     string `gorm:"type:text;not null"`
	Status      int8   `gorm:"not null;default:0;index"`
	Retry       int    `gorm:"not null;default:0"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (ActivityOutbox) TableName() string { return "activity_outbox" }

// All 需要建表的全部模型，按迁移顺序
func All() []any {
	return []any{
		&User{},
		&Community{},
		&CommunityMember{},
		&Event{},
		&EventReaction{},
		&Comment{},
		&Notice{},
		&ActivityOutbox{},
	}
}
