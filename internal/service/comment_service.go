package service

import (
	"context"
	"strings"
	"time"

	"commUnity/internal/model"
	"commUnity/internal/pkg"
	"commUnity/internal/repository/mysql"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

type CommentView struct {
	ID        uint64         `json:"id"`
	EventID   uint64         `json:"eventId"`
	Body      string         `json:"body"`
	Author    *model.UserRef `json:"author"`
	CreatedAt time.Time      `json:"createdAt"`
}

type CommentService struct {
	repo   *mysql.CommentRepository
	events *EventService
	users  *mysql.UserRepository
}

func NewCommentService(db *gorm.DB, events *EventService) *CommentService {
	return &CommentService{
		repo:   &mysql.CommentRepository{DB: db},
		events: events,
		users:  &mysql.UserRepository{DB: db},
	}
}

func (s *CommentService) CreateComment(ctx context.Context, authorID, eventID uint64, body string) (*CommentView, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, pkg.NewValidationError("comment body is required")
	}
	if _, err := s.events.repo.FindByID(ctx, eventID); err != nil {
		return nil, storeErr(err, "event")
	}
	c := &model.Comment{EventID: eventID, AuthorID: &authorID, Body: body}
	if err := s.repo.Create(ctx, c); err != nil {
		return nil, errors.Wrap(err, "create comment")
	}
	views, err := s.views(ctx, []model.Comment{*c})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

// ListByEvent 最新评论在前
func (s *CommentService) ListByEvent(ctx context.Context, eventID uint64) ([]CommentView, error) {
	list, err := s.repo.ListByEvent(ctx, eventID)
	if err != nil {
		return nil, errors.Wrap(err, "list comments")
	}
	return s.views(ctx, list)
}

// DeleteComment 评论作者、活动作者或社区所有者可删除
func (s *CommentService) DeleteComment(ctx context.Context, userID, commentID uint64) error {
	c, err := s.repo.FindByID(ctx, commentID)
	if err != nil {
		return storeErr(err, "comment")
	}
	if c.AuthorID != nil && *c.AuthorID == userID {
		return storeErr(s.repo.Delete(ctx, commentID), "comment")
	}

	e, err := s.events.repo.FindByID(ctx, c.EventID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return errors.Wrap(err, "load event")
	}
	if err == nil {
		allowed, err := s.events.isAuthorOrOwner(ctx, userID, e.AuthorID, e.CommunityID)
		if err != nil {
			return err
		}
		if allowed {
			return storeErr(s.repo.Delete(ctx, commentID), "comment")
		}
	}
	return pkg.NewForbiddenError("you cannot delete this comment")
}

func (s *CommentService) views(ctx context.Context, list []model.Comment) ([]CommentView, error) {
	var ids []uint64
	for _, c := range list {
		if c.AuthorID != nil {
			ids = append(ids, *c.AuthorID)
		}
	}
	authors, err := userRefs(ctx, s.users, ids)
	if err != nil {
		return nil, err
	}
	out := make([]CommentView, 0, len(list))
	for _, c := range list {
		v := CommentView{ID: c.ID, EventID: c.EventID, Body: c.Body, CreatedAt: c.CreatedAt}
		if c.AuthorID != nil {
			v.Author = authors[*c.AuthorID]
		}
		out = append(out, v)
	}
	return out, nil
}
