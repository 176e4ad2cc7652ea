package social

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShareRoute(t *testing.T) {
	h := newSocialHarness(t)
	me, friend := uuid.New(), uuid.New()
	h.seedProfile(t, me, "me")
	h.seedProfile(t, friend, "friend")

	routes := NewRoutes(h.as(t, me))
	created, err := routes.Share(context.Background(), &Route{
		SenderID:   me,
		ReceiverID: &friend,
		Title:      "Sunrise loop",
		DistanceKM: 24.5,
	})
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, created.ID, "server assigns the row id")
	assert.False(t, created.CreatedAt.IsZero(), "server assigns the timestamp")
	assert.Equal(t, me, created.SenderID)
	require.NotNil(t, created.ReceiverID)
	assert.Equal(t, friend, *created.ReceiverID)
	assert.Equal(t, "Sunrise loop", created.Title)
}

func TestShareSecondRoute(t *testing.T) {
	h := newSocialHarness(t)
	me := uuid.New()
	h.seedProfile(t, me, "me")

	routes := NewRoutes(h.as(t, me))
	first, err := routes.Share(context.Background(), &Route{SenderID: me, Title: "Morning spin"})
	require.NoError(t, err)

	second, err := routes.Share(context.Background(), &Route{SenderID: me, Title: "Evening climb"})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	own, err := routes.Own(context.Background(), me)
	require.NoError(t, err)
	assert.Len(t, own, 2)
}

func TestReceivedEmbedsSender(t *testing.T) {
	h := newSocialHarness(t)
	me, friend := uuid.New(), uuid.New()
	h.seedProfile(t, me, "me")
	h.seedProfile(t, friend, "friend")

	_, err := NewRoutes(h.as(t, friend)).Share(context.Background(), &Route{
		SenderID:   friend,
		ReceiverID: &me,
		Title:      "Coastal ride",
	})
	require.NoError(t, err)

	received, err := NewRoutes(h.as(t, me)).Received(context.Background(), me)
	require.NoError(t, err)
	require.Len(t, received, 1)
	require.NotNil(t, received[0].Sender, "received routes embed the sender profile")
	assert.Equal(t, "friend", received[0].Sender.Username)
}

func TestPublicFeed(t *testing.T) {
	h := newSocialHarness(t)
	me, other := uuid.New(), uuid.New()
	h.seedProfile(t, me, "me")
	h.seedProfile(t, other, "other")

	mine := NewRoutes(h.as(t, me))
	_, err := mine.Share(context.Background(), &Route{SenderID: me, Title: "Secret training loop"})
	require.NoError(t, err)
	_, err = mine.Share(context.Background(), &Route{SenderID: me, Title: "Open gravel tour", Public: true})
	require.NoError(t, err)

	feed, err := NewRoutes(h.as(t, other)).PublicFeed(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, feed, 1, "private routes stay out of the feed")
	assert.Equal(t, "Open gravel tour", feed[0].Title)
	assert.True(t, feed[0].Public)
}

func TestDeleteRouteScopedToSender(t *testing.T) {
	h := newSocialHarness(t)
	me, other := uuid.New(), uuid.New()
	h.seedProfile(t, me, "me")
	h.seedProfile(t, other, "other")

	mine := NewRoutes(h.as(t, me))
	created, err := mine.Share(context.Background(), &Route{SenderID: me, Title: "Keep this one"})
	require.NoError(t, err)

	// Another user deleting my route matches nothing.
	require.NoError(t, NewRoutes(h.as(t, other)).Delete(context.Background(), me, created.ID))
	own, err := mine.Own(context.Background(), me)
	require.NoError(t, err)
	require.Len(t, own, 1)

	require.NoError(t, mine.Delete(context.Background(), me, created.ID))
	own, err = mine.Own(context.Background(), me)
	require.NoError(t, err)
	assert.Empty(t, own)
}
