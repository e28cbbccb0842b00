package service

import (
	"context"
	"mime/multipart"
	"strings"

	"commUnity/internal/model"
	"commUnity/internal/pkg"
	"commUnity/internal/repository/mysql"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

const (
	RoleOwner  = "owner"
	RoleMember = "member"
)

// RoomEvictor 成员关系结束时同步实时聊天房间
type RoomEvictor interface {
	Evict(communityID, userID uint64)
	CloseRoom(communityID uint64)
	EvictUser(userID uint64)
}

type noopEvictor struct{}

func (noopEvictor) Evict(uint64, uint64) {}
func (noopEvictor) CloseRoom(uint64)     {}
func (noopEvictor) EvictUser(uint64)     {}

type CommunityService struct {
	repo    *mysql.CommunityRepository
	members *mysql.CommunityMemberRepository
	users   *mysql.UserRepository
	assets  pkg.AssetStore
	evictor RoomEvictor
}

type CommunityInput struct {
	Name        string
	Description string
	Location    string
}

// CommunityPatch 只更新非 nil 字段
type CommunityPatch struct {
	Name        *string
	Description *string
	Location    *string
}

type AssociatedCommunity struct {
	model.Community
	Role string `json:"role"`
}

type CommunityDetail struct {
	model.Community
	OwnerRef   *model.UserRef  `json:"ownerRef"`
	MemberRefs []model.UserRef `json:"memberRefs"`
}

func NewCommunityService(db *gorm.DB, assets pkg.AssetStore) *CommunityService {
	return &CommunityService{
		repo:    &mysql.CommunityRepository{DB: db},
		members: &mysql.CommunityMemberRepository{DB: db},
		users:   &mysql.UserRepository{DB: db},
		assets:  assets,
		evictor: noopEvictor{},
	}
}

func (s *CommunityService) SetEvictor(e RoomEvictor) {
	s.evictor = e
}

func (s *CommunityService) CreateCommunity(ctx context.Context, ownerID uint64, in CommunityInput, image *multipart.FileHeader) (*model.Community, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, pkg.NewValidationError("community name is required")
	}
	c := &model.Community{
		Name:        name,
		Description: strings.TrimSpace(in.Description),
		Location:    strings.TrimSpace(in.Location),
	}
	if image != nil {
		url, err := s.assets.Save(ctx, image)
		if err != nil {
			return nil, err
		}
		c.Image = url
	}
	if err := s.repo.Create(ctx, c, ownerID); err != nil {
		if c.Image != "" {
			discardAsset(ctx, s.assets, c.Image)
		}
		return nil, errors.Wrap(err, "create community")
	}
	c.Members = []uint64{ownerID}
	return c, nil
}

// loadOwned 加载社区并校验 userID 是所有者
func (s *CommunityService) loadOwned(ctx context.Context, communityID, userID uint64) (*model.Community, error) {
	c, err := s.repo.FindByID(ctx, communityID)
	if err != nil {
		return nil, storeErr(err, "community")
	}
	if !c.IsOwnedBy(userID) {
		return nil, pkg.NewForbiddenError("only the community owner can do this")
	}
	return c, nil
}

func (s *CommunityService) EditCommunity(ctx context.Context, userID, communityID uint64, patch CommunityPatch, image *multipart.FileHeader) (*CommunityDetail, error) {
	if _, err := s.loadOwned(ctx, communityID, userID); err != nil {
		return nil, err
	}

	fields := map[string]any{}
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return nil, pkg.NewValidationError("community name cannot be empty")
		}
		fields["name"] = name
	}
	if patch.Description != nil {
		fields["description"] = strings.TrimSpace(*patch.Description)
	}
	if patch.Location != nil {
		fields["location"] = strings.TrimSpace(*patch.Location)
	}
	if image != nil {
		url, err := s.assets.Save(ctx, image)
		if err != nil {
			return nil, err
		}
		fields["image"] = url
	}
	if err := s.repo.Update(ctx, communityID, fields); err != nil {
		if url, ok := fields["image"].(string); ok {
			discardAsset(ctx, s.assets, url)
		}
		return nil, storeErr(err, "community")
	}
	return s.Explore(ctx, communityID)
}

func (s *CommunityService) DeleteCommunity(ctx context.Context, userID, communityID uint64) error {
	if _, err := s.loadOwned(ctx, communityID, userID); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, communityID); err != nil {
		return storeErr(err, "community")
	}
	s.evictor.CloseRoom(communityID)
	return nil
}

// JoinCommunity 幂等，已是成员时返回 false
func (s *CommunityService) JoinCommunity(ctx context.Context, userID, communityID uint64) (bool, error) {
	joined, err := s.members.Join(ctx, communityID, userID)
	if err != nil {
		return false, storeErr(err, "community")
	}
	return joined, nil
}

func (s *CommunityService) LeaveCommunity(ctx context.Context, userID, communityID uint64) (*mysql.OwnerChange, error) {
	change, err := s.members.Leave(ctx, communityID, userID)
	if errors.Is(err, mysql.ErrNotMember) {
		return nil, pkg.NewValidationError("you are not a member of this community")
	}
	if err != nil {
		return nil, storeErr(err, "community")
	}
	s.evictor.Evict(communityID, userID)
	return change, nil
}

// RemoveMember 所有者移除成员，规则与成员主动退出相同
func (s *CommunityService) RemoveMember(ctx context.Context, ownerID, communityID, memberID uint64) (*mysql.OwnerChange, error) {
	if _, err := s.loadOwned(ctx, communityID, ownerID); err != nil {
		return nil, err
	}
	change, err := s.members.Leave(ctx, communityID, memberID)
	if errors.Is(err, mysql.ErrNotMember) {
		return nil, pkg.NewNotFoundError("member")
	}
	if err != nil {
		return nil, storeErr(err, "community")
	}
	s.evictor.Evict(communityID, memberID)
	return change, nil
}

func (s *CommunityService) IsMember(ctx context.Context, communityID, userID uint64) (bool, error) {
	ok, err := s.members.IsMember(ctx, communityID, userID)
	return ok, errors.Wrap(err, "check membership")
}

// RequireMember 社区不存在返回 NotFound，不是成员返回 Forbidden
func (s *CommunityService) RequireMember(ctx context.Context, communityID, userID uint64) (*model.Community, error) {
	c, err := s.repo.FindByID(ctx, communityID)
	if err != nil {
		return nil, storeErr(err, "community")
	}
	ok, err := s.IsMember(ctx, communityID, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, pkg.NewForbiddenError("join the community first")
	}
	return c, nil
}

func (s *CommunityService) ListOwned(ctx context.Context, userID uint64) ([]model.Community, error) {
	list, err := s.repo.ListByOwner(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "list owned communities")
	}
	return s.withMembers(ctx, list)
}

func (s *CommunityService) ListJoined(ctx context.Context, userID uint64) ([]model.Community, error) {
	list, err := s.repo.ListByMember(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "list joined communities")
	}
	return s.withMembers(ctx, list)
}

// ListAssociated 用户加入的全部社区，并标注身份
func (s *CommunityService) ListAssociated(ctx context.Context, userID uint64) ([]AssociatedCommunity, error) {
	list, err := s.ListJoined(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]AssociatedCommunity, 0, len(list))
	for _, c := range list {
		role := RoleMember
		if c.IsOwnedBy(userID) {
			role = RoleOwner
		}
		out = append(out, AssociatedCommunity{Community: c, Role: role})
	}
	return out, nil
}

// Explore 社区详情，带所有者和成员的展示字段
func (s *CommunityService) Explore(ctx context.Context, communityID uint64) (*CommunityDetail, error) {
	c, err := s.repo.FindByID(ctx, communityID)
	if err != nil {
		return nil, storeErr(err, "community")
	}
	if c.Members, err = s.members.MemberIDs(ctx, communityID); err != nil {
		return nil, errors.Wrap(err, "load members")
	}
	users, err := s.users.FindByIDs(ctx, c.Members)
	if err != nil {
		return nil, errors.Wrap(err, "load members")
	}
	byID := make(map[uint64]*model.User, len(users))
	for i := range users {
		byID[users[i].ID] = &users[i]
	}

	detail := &CommunityDetail{Community: *c, MemberRefs: make([]model.UserRef, 0, len(c.Members))}
	for _, id := range c.Members {
		if u, ok := byID[id]; ok {
			detail.MemberRefs = append(detail.MemberRefs, *u.Ref())
		}
	}
	if c.OwnerID != nil {
		detail.OwnerRef = byID[*c.OwnerID].Ref()
	}
	return detail, nil
}

func (s *CommunityService) Top(ctx context.Context, n int) ([]model.Community, error) {
	if n <= 0 {
		n = 10
	}
	list, err := s.repo.Top(ctx, n)
	if err != nil {
		return nil, errors.Wrap(err, "top communities")
	}
	return s.withMembers(ctx, list)
}

func (s *CommunityService) Search(ctx context.Context, q string) ([]model.Community, error) {
	list, err := s.repo.Search(ctx, q)
	if err != nil {
		return nil, errors.Wrap(err, "search communities")
	}
	return s.withMembers(ctx, list)
}

func (s *CommunityService) Filter(ctx context.Context, name, location string) ([]model.Community, error) {
	list, err := s.repo.Filter(ctx, name, location)
	if err != nil {
		return nil, errors.Wrap(err, "filter communities")
	}
	return s.withMembers(ctx, list)
}

func (s *CommunityService) withMembers(ctx context.Context, list []model.Community) ([]model.Community, error) {
	ids := make([]uint64, len(list))
	for i := range list {
		ids[i] = list[i].ID
	}
	members, err := s.members.MemberIDsByCommunities(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "load members")
	}
	for i := range list {
		list[i].Members = members[list[i].ID]
		if list[i].Members == nil {
			list[i].Members = []uint64{}
		}
	}
	return list, nil
}
