package service

import (
	"context"
	"testing"

	"commUnity/internal/model"
	"commUnity/internal/pkg"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventService_CreateRequiresMembership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.register(t, "owner", "owner@x.com")
	outsider := f.register(t, "outsider", "out@x.com")
	c := f.community(t, owner.ID, "Runners")

	_, err := f.events.CreateEvent(ctx, outsider.ID, EventInput{CommunityID: c.ID, Name: "5k"}, nil)
	requireKind(t, err, pkg.KindForbidden)
	_, err = f.events.CreateEvent(ctx, owner.ID, EventInput{CommunityID: 999, Name: "5k"}, nil)
	requireKind(t, err, pkg.KindNotFound)
	_, err = f.events.CreateEvent(ctx, owner.ID, EventInput{CommunityID: c.ID}, nil)
	requireKind(t, err, pkg.KindValidation)

	e, err := f.events.CreateEvent(ctx, owner.ID, EventInput{CommunityID: c.ID, Name: " 5k ", Body: "Sunday"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "5k", e.Name)
	require.NotNil(t, e.Author)
	assert.Equal(t, "owner", e.Author.Username)
	require.NotNil(t, e.Community)
	assert.Equal(t, "Runners", e.Community.Name)
	assert.Empty(t, e.Likes)
}

func TestEventService_ToggleReaction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.register(t, "u", "u@x.com")
	c := f.community(t, u.ID, "Runners")
	e, err := f.events.CreateEvent(ctx, u.ID, EventInput{CommunityID: c.ID, Name: "5k"}, nil)
	require.NoError(t, err)

	v, err := f.events.ToggleReaction(ctx, u.ID, e.ID, model.ReactionLike)
	require.NoError(t, err)
	assert.Equal(t, []uint64{u.ID}, v.Likes)

	// 切换为 dislike
	v, err = f.events.ToggleReaction(ctx, u.ID, e.ID, model.ReactionDislike)
	require.NoError(t, err)
	assert.Empty(t, v.Likes)
	assert.Equal(t, []uint64{u.ID}, v.Dislikes)

	// 再点一次取消
	v, err = f.events.ToggleReaction(ctx, u.ID, e.ID, model.ReactionDislike)
	require.NoError(t, err)
	assert.Empty(t, v.Likes)
	assert.Empty(t, v.Dislikes)

	_, err = f.events.ToggleReaction(ctx, u.ID, e.ID, "love")
	requireKind(t, err, pkg.KindValidation)
	_, err = f.events.ToggleReaction(ctx, u.ID, 999, model.ReactionLike)
	requireKind(t, err, pkg.KindNotFound)
}

func TestEventService_ListScopes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "a", "a@x.com")
	b := f.register(t, "b", "b@x.com")
	ca := f.community(t, a.ID, "A")
	cb := f.community(t, b.ID, "B")
	_, err := f.events.CreateEvent(ctx, a.ID, EventInput{CommunityID: ca.ID, Name: "a1"}, nil)
	require.NoError(t, err)
	_, err = f.events.CreateEvent(ctx, b.ID, EventInput{CommunityID: cb.ID, Name: "b1"}, nil)
	require.NoError(t, err)

	all, err := f.events.ListEvents(ctx, EventFilter{Scope: ScopeAll})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	mine, err := f.events.ListEvents(ctx, EventFilter{Scope: ScopeMemberships, UserID: a.ID})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "a1", mine[0].Name)

	inB, err := f.events.ListEvents(ctx, EventFilter{Scope: ScopeCommunity, CommunityID: cb.ID})
	require.NoError(t, err)
	require.Len(t, inB, 1)
	assert.Equal(t, "b1", inB[0].Name)

	none, err := f.events.ListEvents(ctx, EventFilter{Scope: ScopeMemberships, UserID: 999})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestEventService_DeletePermissions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.register(t, "owner", "owner@x.com")
	author := f.register(t, "author", "author@x.com")
	other := f.register(t, "other", "other@x.com")
	c := f.community(t, owner.ID, "Runners")
	f.join(t, author.ID, c.ID)
	f.join(t, other.ID, c.ID)

	e1, err := f.events.CreateEvent(ctx, author.ID, EventInput{CommunityID: c.ID, Name: "one"}, nil)
	require.NoError(t, err)
	e2, err := f.events.CreateEvent(ctx, author.ID, EventInput{CommunityID: c.ID, Name: "two"}, nil)
	require.NoError(t, err)

	requireKind(t, f.events.DeleteEvent(ctx, other.ID, e1.ID), pkg.KindForbidden)
	require.NoError(t, f.events.DeleteEvent(ctx, author.ID, e1.ID))
	require.NoError(t, f.events.DeleteEvent(ctx, owner.ID, e2.ID))
	requireKind(t, f.events.DeleteEvent(ctx, owner.ID, e2.ID), pkg.KindNotFound)
}

func TestCommentService_Permissions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.register(t, "owner", "owner@x.com")
	author := f.register(t, "author", "author@x.com")
	commenter := f.register(t, "commenter", "c@x.com")
	other := f.register(t, "other", "other@x.com")
	c := f.community(t, owner.ID, "Runners")
	f.join(t, author.ID, c.ID)
	e, err := f.events.CreateEvent(ctx, author.ID, EventInput{CommunityID: c.ID, Name: "5k"}, nil)
	require.NoError(t, err)

	// 评论不要求是社区成员
	c1, err := f.comments.CreateComment(ctx, commenter.ID, e.ID, "count me in")
	require.NoError(t, err)
	require.NotNil(t, c1.Author)
	assert.Equal(t, "commenter", c1.Author.Username)
	c2, err := f.comments.CreateComment(ctx, commenter.ID, e.ID, "second")
	require.NoError(t, err)
	c3, err := f.comments.CreateComment(ctx, commenter.ID, e.ID, "third")
	require.NoError(t, err)

	_, err = f.comments.CreateComment(ctx, commenter.ID, e.ID, " ")
	requireKind(t, err, pkg.KindValidation)
	_, err = f.comments.CreateComment(ctx, commenter.ID, 999, "hi")
	requireKind(t, err, pkg.KindNotFound)

	requireKind(t, f.comments.DeleteComment(ctx, other.ID, c1.ID), pkg.KindForbidden)
	require.NoError(t, f.comments.DeleteComment(ctx, commenter.ID, c1.ID))
	require.NoError(t, f.comments.DeleteComment(ctx, author.ID, c2.ID))
	require.NoError(t, f.comments.DeleteComment(ctx, owner.ID, c3.ID))
	requireKind(t, f.comments.DeleteComment(ctx, owner.ID, c3.ID), pkg.KindNotFound)

	list, err := f.comments.ListByEvent(ctx, e.ID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestNoticeService_Permissions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.register(t, "owner", "owner@x.com")
	member := f.register(t, "member", "member@x.com")
	outsider := f.register(t, "outsider", "out@x.com")
	c := f.community(t, owner.ID, "Runners")
	f.join(t, member.ID, c.ID)

	_, err := f.notices.CreateNotice(ctx, outsider.ID, c.ID, "spam")
	requireKind(t, err, pkg.KindForbidden)

	n1, err := f.notices.CreateNotice(ctx, member.ID, c.ID, "track closed")
	require.NoError(t, err)
	n2, err := f.notices.CreateNotice(ctx, member.ID, c.ID, "new shoes")
	require.NoError(t, err)

	list, err := f.notices.ListNotices(ctx, c.ID)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	requireKind(t, f.notices.DeleteNotice(ctx, outsider.ID, n1.ID), pkg.KindForbidden)
	require.NoError(t, f.notices.DeleteNotice(ctx, member.ID, n1.ID))
	require.NoError(t, f.notices.DeleteNotice(ctx, owner.ID, n2.ID))
	requireKind(t, f.notices.DeleteNotice(ctx, owner.ID, n2.ID), pkg.KindNotFound)
}
