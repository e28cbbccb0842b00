package mysql

import (
	"context"
	"testing"

	"commUnity/internal/model"
	"commUnity/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestUserRepository_DuplicateEmail(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	repo := &UserRepository{DB: db}

	require.NoError(t, repo.Create(ctx, &model.User{Username: "a", Email: "a@x.com", Password: "h"}))
	err := repo.Create(ctx, &model.User{Username: "b", Email: "a@x.com", Password: "h"})
	assert.ErrorIs(t, err, gorm.ErrDuplicatedKey)

	exists, err := repo.ExistsByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.True(t, exists)

	var n int64
	require.NoError(t, db.Model(&model.User{}).Count(&n).Error)
	assert.EqualValues(t, 1, n)
}

func TestUserRepository_DeleteCascade(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	owner := testutil.SeedUser(t, db, "owner", "owner@x.com")
	member := testutil.SeedUser(t, db, "member", "member@x.com")

	shared := newCommunity(t, db, "Shared", owner.ID)
	solo := newCommunity(t, db, "Solo", owner.ID)
	joinedOnly := newCommunity(t, db, "Other", member.ID)
	members := &CommunityMemberRepository{DB: db}
	_, err := members.Join(ctx, shared.ID, member.ID)
	require.NoError(t, err)
	_, err = members.Join(ctx, joinedOnly.ID, owner.ID)
	require.NoError(t, err)

	e := &model.Event{CommunityID: shared.ID, AuthorID: &owner.ID, Name: "meetup"}
	require.NoError(t, db.Create(e).Error)
	require.NoError(t, db.Create(&model.EventReaction{EventID: e.ID, UserID: owner.ID, Kind: model.ReactionLike}).Error)
	require.NoError(t, db.Create(&model.Comment{EventID: e.ID, AuthorID: &owner.ID, Body: "c"}).Error)

	changes, err := (&UserRepository{DB: db}).DeleteCascade(ctx, owner.ID)
	require.NoError(t, err)
	require.Len(t, changes, 2)

	communities := &CommunityRepository{DB: db}
	got, err := communities.FindByID(ctx, shared.ID)
	require.NoError(t, err)
	require.NotNil(t, got.OwnerID)
	assert.Equal(t, member.ID, *got.OwnerID)

	got, err = communities.FindByID(ctx, solo.ID)
	require.NoError(t, err)
	assert.Nil(t, got.OwnerID)

	got, err = communities.FindByID(ctx, joinedOnly.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, got.Popularity)

	var ev model.Event
	require.NoError(t, db.First(&ev, e.ID).Error)
	assert.Nil(t, ev.AuthorID)

	var n int64
	require.NoError(t, db.Model(&model.EventReaction{}).Where("user_id = ?", owner.ID).Count(&n).Error)
	assert.Zero(t, n)
	require.NoError(t, db.Model(&model.CommunityMember{}).Where("user_id = ?", owner.ID).Count(&n).Error)
	assert.Zero(t, n)
	require.NoError(t, db.Model(&model.Comment{}).Where("event_id = ?", e.ID).Count(&n).Error)
	assert.EqualValues(t, 1, n)

	_, err = (&UserRepository{DB: db}).FindByID(ctx, owner.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	var types []string
	require.NoError(t, db.Model(&model.ActivityOutbox{}).Order("id ASC").Pluck("event_type", &types).Error)
	assert.Contains(t, types, EventOwnerReassigned)
	assert.Equal(t, EventUserDeleted, types[len(types)-1])
}

func TestUserRepository_DeleteCascadeLocksCommunitiesBeforeWriting(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	owner := testutil.SeedUser(t, db, "owner", "owner@x.com")
	member := testutil.SeedUser(t, db, "member", "member@x.com")
	shared := newCommunity(t, db, "Shared", owner.ID)
	other := newCommunity(t, db, "Other", member.ID)
	members := &CommunityMemberRepository{DB: db}
	_, err := members.Join(ctx, shared.ID, member.ID)
	require.NoError(t, err)
	_, err = members.Join(ctx, other.ID, owner.ID)
	require.NoError(t, err)

	// sqlite 不输出 FOR UPDATE，这里直接记录语句上的加锁子句
	var trace []string
	require.NoError(t, db.Callback().Query().Before("gorm:query").Register("test:trace_lock", func(tx *gorm.DB) {
		if _, ok := tx.Statement.Clauses["FOR"]; ok {
			trace = append(trace, "lock "+tx.Statement.Table)
		}
	}))
	require.NoError(t, db.Callback().Update().Before("gorm:update").Register("test:trace_update", func(tx *gorm.DB) {
		trace = append(trace, "update "+tx.Statement.Table)
	}))

	_, err = (&UserRepository{DB: db}).DeleteCascade(ctx, owner.ID)
	require.NoError(t, err)

	require.GreaterOrEqual(t, len(trace), 3)
	assert.Equal(t, "lock users", trace[0])
	assert.Equal(t, "lock communities", trace[1])

	firstUpdate, memberLocks := -1, 0
	for i, step := range trace {
		if step == "lock community_members" {
			memberLocks++
		}
		if firstUpdate < 0 && step == "update communities" {
			firstUpdate = i
		}
	}
	assert.Greater(t, firstUpdate, 1)
	// 刷新成员关系一次，挑选新所有者一次
	assert.GreaterOrEqual(t, memberLocks, 2)
}

func TestUserRepository_DeleteCascadeAfterOwnerLeft(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	y := testutil.SeedUser(t, db, "y", "y@x.com")
	x := testutil.SeedUser(t, db, "x", "x@x.com")
	z := testutil.SeedUser(t, db, "z", "z@x.com")
	c := newCommunity(t, db, "Club", y.ID)
	members := &CommunityMemberRepository{DB: db}
	_, err := members.Join(ctx, c.ID, x.ID)
	require.NoError(t, err)
	_, err = members.Join(ctx, c.ID, z.ID)
	require.NoError(t, err)

	change, err := members.Leave(ctx, c.ID, y.ID)
	require.NoError(t, err)
	require.NotNil(t, change)
	require.NotNil(t, change.NewOwnerID)
	assert.Equal(t, x.ID, *change.NewOwnerID)

	changes, err := (&UserRepository{DB: db}).DeleteCascade(ctx, x.ID)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	require.NotNil(t, changes[0].NewOwnerID)
	assert.Equal(t, z.ID, *changes[0].NewOwnerID)

	got, err := (&CommunityRepository{DB: db}).FindByID(ctx, c.ID)
	require.NoError(t, err)
	require.NotNil(t, got.OwnerID)
	isMember, err := members.IsMember(ctx, c.ID, *got.OwnerID)
	require.NoError(t, err)
	assert.True(t, isMember)
	assert.EqualValues(t, 1, got.Popularity)
}
