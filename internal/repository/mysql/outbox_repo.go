package mysql

import (
	"context"
	"encoding/json"
	"time"

	"commUnity/internal/model"

	"gorm.io/gorm"
)

const (
	EventCommunityCreated = "community.created"
	EventCommunityDeleted = "community.deleted"
	EventOwnerReassigned  = "owner.reassigned"
	EventUserDeleted      = "user.deleted"

	MaxOutboxRetry = 5
)

type OutboxRepository struct {
	DB *gorm.DB
}

// insertOutbox 必须使用业务事务的 tx，保证事件与数据同时提交
func insertOutbox(tx *gorm.DB, event string, aggregateID uint64, fields map[string]any) error {
	if fields == nil {
		fields = map[string]any{}
	}
	fields["event_time"] = time.Now().UTC().Format(time.RFC3339Nano)
	payload, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	return tx.Create(&model.ActivityOutbox{
		EventType:   event,
		AggregateID: aggregateID,
		Payload:     string(payload),
		Status:      model.OutboxPending,
	}).Error
}

// List 查询待投递记录，失败的记录在重试次数内继续投递
func (r *OutboxRepository) List(ctx context.Context, batchSize int) ([]model.ActivityOutbox, error) {
	var list []model.ActivityOutbox
	if err := r.DB.WithContext(ctx).
		Where("status = ? OR (status = ? AND retry < ?)", model.OutboxPending, model.OutboxFailed, MaxOutboxRetry).
		Order("id ASC").
		Limit(batchSize).
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

// RetryUpdate outbox记录消息失败重试
func (r *OutboxRepository) RetryUpdate(ctx context.Context, id uint64) error {
	return r.DB.WithContext(ctx).Model(&model.ActivityOutbox{}).Where("id = ?", id).
		Updates(map[string]any{"status": model.OutboxFailed, "retry": gorm.Expr("retry + 1")}).Error
}

// SuccessUpdate outbox成功记录消息更新
func (r *OutboxRepository) SuccessUpdate(ctx context.Context, id uint64) error {
	return r.DB.WithContext(ctx).Model(&model.ActivityOutbox{}).Where("id = ?", id).
		Update("status", model.OutboxSent).Error
}
