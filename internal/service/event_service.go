package service

import (
	"context"
	"mime/multipart"
	"strings"
	"time"

	"commUnity/internal/model"
	"commUnity/internal/pkg"
	"commUnity/internal/repository/mysql"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

type EventScope int

const (
	ScopeAll EventScope = iota
	ScopeCommunity
	ScopeMemberships
)

type EventFilter struct {
	Scope       EventScope
	CommunityID uint64
	UserID      uint64
}

type CommunityRef struct {
	ID   uint64 `json:"id"`
	Name string `json:"name"`
}

type EventView struct {
	ID        uint64         `json:"id"`
	Name      string         `json:"name"`
	Body      string         `json:"body"`
	Image     string         `json:"image"`
	Author    *model.UserRef `json:"author"`
	Community *CommunityRef  `json:"community"`
	Likes     []uint64       `json:"likes"`
	Dislikes  []uint64       `json:"dislikes"`
	CreatedAt time.Time      `json:"createdAt"`
}

type EventInput struct {
	CommunityID uint64
	Name        string
	Body        string
}

type EventService struct {
	repo        *mysql.EventRepository
	reactions   *mysql.ReactionRepository
	users       *mysql.UserRepository
	communities *mysql.CommunityRepository
	members     *mysql.CommunityMemberRepository
	communitySv *CommunityService
	assets      pkg.AssetStore
}

func NewEventService(db *gorm.DB, communitySv *CommunityService, assets pkg.AssetStore) *EventService {
	return &EventService{
		repo:        &mysql.EventRepository{DB: db},
		reactions:   &mysql.ReactionRepository{DB: db},
		users:       &mysql.UserRepository{DB: db},
		communities: &mysql.CommunityRepository{DB: db},
		members:     &mysql.CommunityMemberRepository{DB: db},
		communitySv: communitySv,
		assets:      assets,
	}
}

// CreateEvent 只有社区成员可以发布活动
func (s *EventService) CreateEvent(ctx context.Context, authorID uint64, in EventInput, image *multipart.FileHeader) (*EventView, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, pkg.NewValidationError("event name is required")
	}
	if _, err := s.communitySv.RequireMember(ctx, in.CommunityID, authorID); err != nil {
		return nil, err
	}

	e := &model.Event{
		CommunityID: in.CommunityID,
		AuthorID:    &authorID,
		Name:        name,
		Body:        strings.TrimSpace(in.Body),
	}
	if image != nil {
		url, err := s.assets.Save(ctx, image)
		if err != nil {
			return nil, err
		}
		e.Image = url
	}
	if err := s.repo.Create(ctx, e); err != nil {
		if e.Image != "" {
			discardAsset(ctx, s.assets, e.Image)
		}
		return nil, errors.Wrap(err, "create event")
	}
	return s.view(ctx, e)
}

func (s *EventService) ListEvents(ctx context.Context, f EventFilter) ([]EventView, error) {
	var (
		events []model.Event
		err    error
	)
	switch f.Scope {
	case ScopeCommunity:
		events, err = s.repo.ListByCommunities(ctx, f.CommunityID)
	case ScopeMemberships:
		var ids []uint64
		if ids, err = s.members.CommunityIDs(ctx, f.UserID); err != nil {
			return nil, errors.Wrap(err, "load memberships")
		}
		events, err = s.repo.ListByCommunities(ctx, ids...)
	default:
		events, err = s.repo.ListAll(ctx)
	}
	if err != nil {
		return nil, errors.Wrap(err, "list events")
	}
	return s.views(ctx, events)
}

// ToggleReaction 同一动作两次即取消，相反动作会替换原态度
func (s *EventService) ToggleReaction(ctx context.Context, userID, eventID uint64, action string) (*EventView, error) {
	if action != model.ReactionLike && action != model.ReactionDislike {
		return nil, pkg.NewValidationError("action must be like or dislike")
	}
	e, err := s.repo.FindByID(ctx, eventID)
	if err != nil {
		return nil, storeErr(err, "event")
	}
	if _, err = s.reactions.Toggle(ctx, eventID, userID, action); err != nil {
		return nil, errors.Wrap(err, "toggle reaction")
	}
	return s.view(ctx, e)
}

// DeleteEvent 作者或社区所有者可删除，评论与点赞一并删除
func (s *EventService) DeleteEvent(ctx context.Context, userID, eventID uint64) error {
	e, err := s.repo.FindByID(ctx, eventID)
	if err != nil {
		return storeErr(err, "event")
	}
	allowed, err := s.isAuthorOrOwner(ctx, userID, e.AuthorID, e.CommunityID)
	if err != nil {
		return err
	}
	if !allowed {
		return pkg.NewForbiddenError("only the author or the community owner can delete this event")
	}
	return storeErr(s.repo.Delete(ctx, eventID), "event")
}

func (s *EventService) isAuthorOrOwner(ctx context.Context, userID uint64, authorID *uint64, communityID uint64) (bool, error) {
	if authorID != nil && *authorID == userID {
		return true, nil
	}
	c, err := s.communities.FindByID(ctx, communityID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "load community")
	}
	return c.IsOwnedBy(userID), nil
}

func (s *EventService) view(ctx context.Context, e *model.Event) (*EventView, error) {
	views, err := s.views(ctx, []model.Event{*e})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

// views 批量补齐作者、社区和点赞信息
func (s *EventService) views(ctx context.Context, events []model.Event) ([]EventView, error) {
	eventIDs := make([]uint64, 0, len(events))
	var authorIDs, communityIDs []uint64
	for _, e := range events {
		eventIDs = append(eventIDs, e.ID)
		if e.AuthorID != nil {
			authorIDs = append(authorIDs, *e.AuthorID)
		}
		communityIDs = append(communityIDs, e.CommunityID)
	}

	authors, err := userRefs(ctx, s.users, authorIDs)
	if err != nil {
		return nil, err
	}
	communities, err := s.communities.FindByIDs(ctx, uniq(communityIDs))
	if err != nil {
		return nil, errors.Wrap(err, "load communities")
	}
	names := make(map[uint64]string, len(communities))
	for _, c := range communities {
		names[c.ID] = c.Name
	}
	reactions, err := s.reactions.ListByEvents(ctx, eventIDs)
	if err != nil {
		return nil, errors.Wrap(err, "load reactions")
	}
	likes := map[uint64][]uint64{}
	dislikes := map[uint64][]uint64{}
	for _, r := range reactions {
		if r.Kind == model.ReactionLike {
			likes[r.EventID] = append(likes[r.EventID], r.UserID)
		} else {
			dislikes[r.EventID] = append(dislikes[r.EventID], r.UserID)
		}
	}

	out := make([]EventView, 0, len(events))
	for _, e := range events {
		v := EventView{
			ID:        e.ID,
			Name:      e.Name,
			Body:      e.Body,
			Image:     e.Image,
			Likes:     orEmpty(likes[e.ID]),
			Dislikes:  orEmpty(dislikes[e.ID]),
			CreatedAt: e.CreatedAt,
		}
		if e.AuthorID != nil {
			v.Author = authors[*e.AuthorID]
		}
		if name, ok := names[e.CommunityID]; ok {
			v.Community = &CommunityRef{ID: e.CommunityID, Name: name}
		}
		out = append(out, v)
	}
	return out, nil
}

func userRefs(ctx context.Context, users *mysql.UserRepository, ids []uint64) (map[uint64]*model.UserRef, error) {
	list, err := users.FindByIDs(ctx, uniq(ids))
	if err != nil {
		return nil, errors.Wrap(err, "load users")
	}
	out := make(map[uint64]*model.UserRef, len(list))
	for i := range list {
		out[list[i].ID] = list[i].Ref()
	}
	return out, nil
}

func uniq(ids []uint64) []uint64 {
	seen := make(map[uint64]struct{}, len(ids))
	out := make([]uint64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func orEmpty(ids []uint64) []uint64 {
	if ids == nil {
		return []uint64{}
	}
	return ids
}
