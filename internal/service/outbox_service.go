package service

import (
	"context"
	"log/slog"
	"time"

	"commUnity/internal/model"
	"commUnity/internal/pkg"
	"commUnity/internal/repository/mysql"

	"gorm.io/gorm"
)

type Sender func(ctx context.Context, ob *model.ActivityOutbox) error

// OutboxRelayer 定时把 activity_outbox 中待投递的事件交给 sender
type OutboxRelayer struct {
	repo      *mysql.OutboxRepository
	batchSize int
	interval  time.Duration
	sender    Sender
	logger    *slog.Logger
}

func NewOutboxRelayer(db *gorm.DB, sender Sender) *OutboxRelayer {
	return &OutboxRelayer{
		repo:      &mysql.OutboxRepository{DB: db},
		batchSize: 200,
		interval:  time.Second,
		sender:    sender,
		logger:    pkg.Component("outbox"),
	}
}

// Run outbox启动器
func (r *OutboxRelayer) Run(ctx context.Context) {
	t := time.NewTicker(r.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			r.DrainOnce(ctx)
		}
	}
}

// DrainOnce 投递一批，返回成功条数
// 某条失败后，同一聚合在本批中的后续事件不再投递，保持分区内顺序
func (r *OutboxRelayer) DrainOnce(ctx context.Context) int {
	rows, err := r.repo.List(ctx, r.batchSize)
	if err != nil {
		r.logger.ErrorContext(ctx, "outbox query failed", "error", err)
		return 0
	}
	sent := 0
	blocked := map[uint64]bool{}
	for i := range rows {
		ob := rows[i]
		if blocked[ob.AggregateID] {
			continue
		}
		if err = r.sender(ctx, &ob); err != nil {
			r.logger.WarnContext(ctx, "outbox send failed", "id", ob.ID, "type", ob.EventType, "retry", ob.Retry, "error", err)
			blocked[ob.AggregateID] = true
			if err = r.repo.RetryUpdate(ctx, ob.ID); err != nil {
				r.logger.ErrorContext(ctx, "outbox retry update failed", "id", ob.ID, "error", err)
			}
			continue
		}
		if err = r.repo.SuccessUpdate(ctx, ob.ID); err != nil {
			r.logger.ErrorContext(ctx, "outbox success update failed", "id", ob.ID, "error", err)
			blocked[ob.AggregateID] = true
			continue
		}
		sent++
	}
	return sent
}

// KafkaSender 以聚合 id 作为 key，同一社区/用户的事件进入同一分区
func KafkaSender(p *pkg.KafkaProducer) Sender {
	return func(ctx context.Context, ob *model.ActivityOutbox) error {
		return p.Send(ctx, pkg.MakeKeyFromID(ob.AggregateID), []byte(ob.Payload), map[string]string{
			"event_type": ob.EventType,
		})
	}
}

// LogSender 未配置 Kafka 时使用，只打印
func LogSender(logger *slog.Logger) Sender {
	return func(ctx context.Context, ob *model.ActivityOutbox) error {
		logger.InfoContext(ctx, "activity event",
			slog.String("type", ob.EventType),
			slog.Uint64("aggregate_id", ob.AggregateID),
			slog.String("payload", ob.Payload),
		)
		return nil
	}
}
