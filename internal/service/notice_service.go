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

type NoticeView struct {
	ID          uint64         `json:"id"`
	CommunityID uint64         `json:"communityId"`
	Body        string         `json:"body"`
	Author      *model.UserRef `json:"author"`
	CreatedAt   time.Time      `json:"createdAt"`
}

type NoticeService struct {
	repo        *mysql.NoticeRepository
	users       *mysql.UserRepository
	communitySv *CommunityService
}

func NewNoticeService(db *gorm.DB, communitySv *CommunityService) *NoticeService {
	return &NoticeService{
		repo:        &mysql.NoticeRepository{DB: db},
		users:       &mysql.UserRepository{DB: db},
		communitySv: communitySv,
	}
}

// CreateNotice 只有社区成员可以发布公告
func (s *NoticeService) CreateNotice(ctx context.Context, authorID, communityID uint64, body string) (*NoticeView, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, pkg.NewValidationError("notice body is required")
	}
	if _, err := s.communitySv.RequireMember(ctx, communityID, authorID); err != nil {
		return nil, err
	}
	n := &model.Notice{CommunityID: communityID, AuthorID: &authorID, Body: body}
	if err := s.repo.Create(ctx, n); err != nil {
		return nil, errors.Wrap(err, "create notice")
	}
	views, err := s.views(ctx, []model.Notice{*n})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

func (s *NoticeService) ListNotices(ctx context.Context, communityID uint64) ([]NoticeView, error) {
	list, err := s.repo.ListByCommunity(ctx, communityID)
	if err != nil {
		return nil, errors.Wrap(err, "list notices")
	}
	return s.views(ctx, list)
}

// DeleteNotice 公告作者或社区所有者可删除
func (s *NoticeService) DeleteNotice(ctx context.Context, userID, noticeID uint64) error {
	n, err := s.repo.FindByID(ctx, noticeID)
	if err != nil {
		return storeErr(err, "notice")
	}
	if n.AuthorID == nil || *n.AuthorID != userID {
		c, err := s.communitySv.repo.FindByID(ctx, n.CommunityID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return errors.Wrap(err, "load community")
		}
		if err != nil || !c.IsOwnedBy(userID) {
			return pkg.NewForbiddenError("only the author or the community owner can delete this notice")
		}
	}
	return storeErr(s.repo.Delete(ctx, noticeID), "notice")
}

func (s *NoticeService) views(ctx context.Context, list []model.Notice) ([]NoticeView, error) {
	var ids []uint64
	for _, n := range list {
		if n.AuthorID != nil {
			ids = append(ids, *n.AuthorID)
		}
	}
	authors, err := userRefs(ctx, s.users, ids)
	if err != nil {
		return nil, err
	}
	out := make([]NoticeView, 0, len(list))
	for _, n := range list {
		v := NoticeView{ID: n.ID, CommunityID: n.CommunityID, Body: n.Body, CreatedAt: n.CreatedAt}
		if n.AuthorID != nil {
			v.Author = authors[*n.AuthorID]
		}
		out = append(out, v)
	}
	return out, nil
}
