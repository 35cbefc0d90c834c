package lifecycle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/bililive-go/livearchiver/src/ingest"
	"github.com/bililive-go/livearchiver/src/store"
)

func TestAdmission_UnknownKeyIsRejected(t *testing.T) {
	env := newTestEnv(t)
	ctrl := gomock.NewController(t)
	engine := NewMockEngine(ctrl)
	engine.EXPECT().RejectSession(gomock.Any(), "sess-1").Return(nil)

	a := NewAdmission(env.store, engine, env.thumbs, env.urls)
	err := a.HandleStart(context.Background(), ingest.Session{ID: "sess-1", Path: "/live/stranger"})

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAdmissionRejected))
	assert.Equal(t, KindAdmissionRejected, KindOf(err))
	_, err = env.store.FindLiveStreamByKey(context.Background(), "stranger")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Empty(t, env.thumbs.calls())
}

func TestAdmission_EmptyKeyIsRejected(t *testing.T) {
	env := newTestEnv(t)
	ctrl := gomock.NewController(t)
	engine := NewMockEngine(ctrl)
	engine.EXPECT().RejectSession(gomock.Any(), "sess-2").Return(nil)

	err := NewAdmission(env.store, engine, env.thumbs, env.urls).
		HandleStart(context.Background(), ingest.Session{ID: "sess-2", Path: "/live/"})
	assert.Equal(t, KindAdmissionRejected, KindOf(err))
}

func TestAdmission_RejectFailureIsTransient(t *testing.T) {
	env := newTestEnv(t)
	ctrl := gomock.NewController(t)
	engine := NewMockEngine(ctrl)
	engine.EXPECT().RejectSession(gomock.Any(), "sess-3").Return(errors.New("engine down"))

	err := NewAdmission(env.store, engine, env.thumbs, env.urls).
		HandleStart(context.Background(), ingest.Session{ID: "sess-3", Path: "/live/stranger"})
	assert.Equal(t, KindTransientIO, KindOf(err))
}

func TestAdmission_KnownKeyIsActivatedAndCleaned(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	live := env.seedLive(t, "key-1", false)
	other := env.seedLive(t, "key-2", false)

	require.NoError(t, env.store.InsertChatMessage(ctx, &store.ChatMessage{LiveID: live.ID, Content: "stale", CreatedAt: time.Now()}))
	require.NoError(t, env.store.InsertChatMessage(ctx, &store.ChatMessage{LiveID: other.ID, Content: "keep", CreatedAt: time.Now()}))
	require.NoError(t, env.store.InsertLike(ctx, &store.Like{UserID: "u1", LiveID: live.ID}))
	require.NoError(t, env.store.InsertLike(ctx, &store.Like{UserID: "u1", LiveID: other.ID}))

	ctrl := gomock.NewController(t)
	engine := NewMockEngine(ctrl)

	a := NewAdmission(env.store, engine, env.thumbs, env.urls)
	require.NoError(t, a.HandleStart(ctx, ingest.Session{ID: "sess-1", Path: "/live/key-1"}))

	got, err := env.store.FindLiveStreamByKey(ctx, "key-1")
	require.NoError(t, err)
	assert.True(t, got.IsActive)
	assert.Zero(t, got.Views)
	assert.Zero(t, got.Likes)
	assert.Zero(t, got.NumOfMessages)
	assert.Zero(t, got.CurrentlyWatching)
	assert.Equal(t, "https://live.example.com/live/key-1/image.png", got.Thumbnail)
	assert.Equal(t, []string{"key-1"}, env.thumbs.calls())

	msgs, _ := env.store.ListChatMessages(ctx, live.ID)
	assert.Empty(t, msgs)
	likes, _ := env.store.CountLikes(ctx, live.ID)
	assert.Zero(t, likes)

	msgs, _ = env.store.ListChatMessages(ctx, other.ID)
	assert.Len(t, msgs, 1)
	likes, _ = env.store.CountLikes(ctx, other.ID)
	assert.EqualValues(t, 1, likes)
}

func TestAdmission_ThumbnailFailureDoesNotBlock(t *testing.T) {
	env := newTestEnv(t)
	env.seedLive(t, "key-1", false)
	env.thumbs.err = errors.New("no frames yet")

	ctrl := gomock.NewController(t)
	a := NewAdmission(env.store, NewMockEngine(ctrl), env.thumbs, env.urls)
	require.NoError(t, a.HandleStart(context.Background(), ingest.Session{ID: "s", Path: "/live/key-1"}))

	got, err := env.store.FindLiveStreamByKey(context.Background(), "key-1")
	require.NoError(t, err)
	assert.True(t, got.IsActive)
}
