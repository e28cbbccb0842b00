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

func newCommunity(t *testing.T, db *gorm.DB, name string, ownerID uint64) *model.Community {
	t.Helper()
	repo := &CommunityRepository{DB: db}
	c := &model.Community{Name: name, Description: name + " description", Location: "Pune"}
	require.NoError(t, repo.Create(context.Background(), c, ownerID))
	return c
}

func TestCommunityRepository_CreateMakesOwnerMember(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	owner := testutil.SeedUser(t, db, "owner", "owner@x.com")

	c := newCommunity(t, db, "Hikers", owner.ID)

	members := &CommunityMemberRepository{DB: db}
	ids, err := members.MemberIDs(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, []uint64{owner.ID}, ids)

	got, err := (&CommunityRepository{DB: db}).FindByID(ctx, c.ID)
	require.NoError(t, err)
	require.NotNil(t, got.OwnerID)
	assert.Equal(t, owner.ID, *got.OwnerID)
	assert.EqualValues(t, 1, got.Popularity)

	var outbox []model.ActivityOutbox
	require.NoError(t, db.Find(&outbox).Error)
	require.Len(t, outbox, 1)
	assert.Equal(t, EventCommunityCreated, outbox[0].EventType)
}

func TestCommunityMemberRepository_JoinIsIdempotent(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	owner := testutil.SeedUser(t, db, "owner", "owner@x.com")
	u := testutil.SeedUser(t, db, "u", "u@x.com")
	c := newCommunity(t, db, "Hikers", owner.ID)
	repo := &CommunityMemberRepository{DB: db}

	joined, err := repo.Join(ctx, c.ID, u.ID)
	require.NoError(t, err)
	assert.True(t, joined)

	joined, err = repo.Join(ctx, c.ID, u.ID)
	require.NoError(t, err)
	assert.False(t, joined)

	got, err := (&CommunityRepository{DB: db}).FindByID(ctx, c.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, got.Popularity)

	_, err = repo.Join(ctx, 999, u.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestCommunityMemberRepository_LeaveHandsOverToEarliestMember(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	owner := testutil.SeedUser(t, db, "owner", "owner@x.com")
	first := testutil.SeedUser(t, db, "first", "first@x.com")
	second := testutil.SeedUser(t, db, "second", "second@x.com")
	c := newCommunity(t, db, "Hikers", owner.ID)
	repo := &CommunityMemberRepository{DB: db}

	_, err := repo.Join(ctx, c.ID, first.ID)
	require.NoError(t, err)
	_, err = repo.Join(ctx, c.ID, second.ID)
	require.NoError(t, err)

	change, err := repo.Leave(ctx, c.ID, owner.ID)
	require.NoError(t, err)
	require.NotNil(t, change)
	require.NotNil(t, change.NewOwnerID)
	assert.Equal(t, first.ID, *change.NewOwnerID)

	got, err := (&CommunityRepository{DB: db}).FindByID(ctx, c.ID)
	require.NoError(t, err)
	require.NotNil(t, got.OwnerID)
	assert.Equal(t, first.ID, *got.OwnerID)
	assert.EqualValues(t, 2, got.Popularity)

	isMember, err := repo.IsMember(ctx, c.ID, *got.OwnerID)
	require.NoError(t, err)
	assert.True(t, isMember)

	// 非所有者退出不影响所有权
	change, err = repo.Leave(ctx, c.ID, second.ID)
	require.NoError(t, err)
	assert.Nil(t, change)

	_, err = repo.Leave(ctx, c.ID, second.ID)
	assert.ErrorIs(t, err, ErrNotMember)
}

func TestCommunityMemberRepository_LastMemberLeavesClearsOwner(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	owner := testutil.SeedUser(t, db, "owner", "owner@x.com")
	c := newCommunity(t, db, "Solo", owner.ID)

	change, err := (&CommunityMemberRepository{DB: db}).Leave(ctx, c.ID, owner.ID)
	require.NoError(t, err)
	require.NotNil(t, change)
	assert.Nil(t, change.NewOwnerID)

	got, err := (&CommunityRepository{DB: db}).FindByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Nil(t, got.OwnerID)
	assert.EqualValues(t, 0, got.Popularity)
}

func TestCommunityRepository_DeleteCascades(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	owner := testutil.SeedUser(t, db, "owner", "owner@x.com")
	c := newCommunity(t, db, "Hikers", owner.ID)
	other := newCommunity(t, db, "Bikers", owner.ID)

	e := &model.Event{CommunityID: c.ID, AuthorID: &owner.ID, Name: "walk"}
	require.NoError(t, db.Create(e).Error)
	keep := &model.Event{CommunityID: other.ID, AuthorID: &owner.ID, Name: "ride"}
	require.NoError(t, db.Create(keep).Error)
	require.NoError(t, db.Create(&model.Comment{EventID: e.ID, AuthorID: &owner.ID, Body: "hi"}).Error)
	require.NoError(t, db.Create(&model.EventReaction{EventID: e.ID, UserID: owner.ID, Kind: model.ReactionLike}).Error)
	require.NoError(t, db.Create(&model.Notice{CommunityID: c.ID, AuthorID: &owner.ID, Body: "n"}).Error)

	require.NoError(t, (&CommunityRepository{DB: db}).Delete(ctx, c.ID))

	count := func(m any, where string, args ...any) int64 {
		var n int64
		require.NoError(t, db.Model(m).Where(where, args...).Count(&n).Error)
		return n
	}
	assert.Zero(t, count(&model.Community{}, "id = ?", c.ID))
	assert.Zero(t, count(&model.Event{}, "community_id = ?", c.ID))
	assert.Zero(t, count(&model.Comment{}, "event_id = ?", e.ID))
	assert.Zero(t, count(&model.EventReaction{}, "event_id = ?", e.ID))
	assert.Zero(t, count(&model.Notice{}, "community_id = ?", c.ID))
	assert.Zero(t, count(&model.CommunityMember{}, "community_id = ?", c.ID))
	assert.EqualValues(t, 1, count(&model.Event{}, "id = ?", keep.ID))

	err := (&CommunityRepository{DB: db}).Delete(ctx, c.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestCommunityRepository_TopSearchFilter(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	owner := testutil.SeedUser(t, db, "owner", "owner@x.com")
	u := testutil.SeedUser(t, db, "u", "u@x.com")
	a := newCommunity(t, db, "Chess Club", owner.ID)
	b := newCommunity(t, db, "Go Players", owner.ID)
	require.NoError(t, db.Model(&model.Community{}).Where("id = ?", b.ID).Update("location", "Mumbai").Error)
	_, err := (&CommunityMemberRepository{DB: db}).Join(ctx, b.ID, u.ID)
	require.NoError(t, err)

	repo := &CommunityRepository{DB: db}
	top, err := repo.Top(ctx, 10)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, b.ID, top[0].ID)
	assert.Equal(t, a.ID, top[1].ID)

	top, err = repo.Top(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, top, 1)

	found, err := repo.Search(ctx, "CHESS")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, a.ID, found[0].ID)

	found, err = repo.Search(ctx, "")
	require.NoError(t, err)
	assert.Len(t, found, 2)

	found, err = repo.Filter(ctx, "", "mum")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, b.ID, found[0].ID)

	found, err = repo.Filter(ctx, "chess", "mumbai")
	require.NoError(t, err)
	assert.Empty(t, found)

	joined, err := repo.ListByMember(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, joined, 1)
	assert.Equal(t, b.ID, joined[0].ID)

	owned, err := repo.ListByOwner(ctx, owner.ID)
	require.NoError(t, err)
	assert.Len(t, owned, 2)
}

func TestCommunityRepository_SearchTreatsWildcardsLiterally(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	owner := testutil.SeedUser(t, db, "owner", "owner@x.com")
	newCommunity(t, db, "Chess Club", owner.ID)
	discount := newCommunity(t, db, "100% Runners", owner.ID)
	snake := newCommunity(t, db, "snake_case fans", owner.ID)
	bang := newCommunity(t, db, "Hello! World", owner.ID)

	repo := &CommunityRepository{DB: db}
	cases := []struct {
		q    string
		want []uint64
	}{
		{"%", []uint64{discount.ID}},
		{"_", []uint64{snake.ID}},
		{"!", []uint64{bang.ID}},
		{"e_c", []uint64{snake.ID}},
		{"0%", []uint64{discount.ID}},
	}
	for _, tc := range cases {
		found, err := repo.Search(ctx, tc.q)
		require.NoError(t, err)
		ids := []uint64{}
		for _, c := range found {
			ids = append(ids, c.ID)
		}
		assert.ElementsMatch(t, tc.want, ids, tc.q)
	}

	found, err := repo.Filter(ctx, "%", "")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, discount.ID, found[0].ID)

	found, err = repo.Filter(ctx, "", "_")
	require.NoError(t, err)
	assert.Empty(t, found)
}
