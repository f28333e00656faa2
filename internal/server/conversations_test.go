package server

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/npezzotti/go-chathub/internal/database"
	"github.com/npezzotti/go-chathub/internal/stats"
	"github.com/npezzotti/go-chathub/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestChatServer_Conversations(t *testing.T) {
	db := newMemoryRepo(alice, bob, carol)
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	db.AddRoom(database.Room{
		Id:             "single-ab",
		Kind:           types.RoomKindSingle,
		ParticipantIds: []string{alice.Id, bob.Id},
		CreatedAt:      base,
		UpdatedAt:      base,
	})
	db.AddRoom(database.Room{
		Id:             "group",
		Kind:           types.RoomKindGroup,
		ParticipantIds: []string{alice.Id, bob.Id, carol.Id},
		Name:           "Team",
		Photo:          "team.png",
		CreatedAt:      base.Add(time.Minute),
		UpdatedAt:      base.Add(time.Minute),
	})
	db.AddRoom(database.Room{
		Id:             "single-ac",
		Kind:           types.RoomKindSingle,
		ParticipantIds: []string{carol.Id, alice.Id},
		CreatedAt:      base.Add(2 * time.Minute),
		UpdatedAt:      base.Add(2 * time.Minute),
	})
	db.AddRoom(database.Room{
		Id:             "single-ghost",
		Kind:           types.RoomKindSingle,
		ParticipantIds: []string{alice.Id, "ghost"},
		CreatedAt:      base.Add(-time.Hour),
		UpdatedAt:      base.Add(-time.Hour),
	})

	ctx := context.Background()
	_, err := db.AppendMessage(ctx, database.CreateMessageParams{
		RoomId: "single-ab", SenderId: bob.Id, Content: "hello", CreatedAt: base.Add(3 * time.Minute),
	})
	require.NoError(t, err)
	_, err = db.AppendMessage(ctx, database.CreateMessageParams{
		RoomId: "single-ab", SenderId: bob.Id, FileUrl: "cat.png", CreatedAt: base.Add(4 * time.Minute),
	})
	require.NoError(t, err)
	_, err = db.AppendMessage(ctx, database.CreateMessageParams{
		RoomId: "group", SenderId: alice.Id, Content: "mine", CreatedAt: base.Add(5 * time.Minute),
	})
	require.NoError(t, err)

	cs := newTestChatServer(t, db, newTestStats())
	bobConn := NewClient(bob.Identity(), nil, cs, cs.log)
	cs.registry.Register(bobConn)

	views, err := cs.Conversations(ctx, alice.Id)
	require.NoError(t, err)
	require.Len(t, views, 4)

	assert.Equal(t, []string{"group", "single-ab", "single-ac", "single-ghost"},
		[]string{views[0].RoomId, views[1].RoomId, views[2].RoomId, views[3].RoomId},
		"expected conversations ordered by last activity")

	group := views[0]
	assert.Equal(t, "Team", group.Name)
	assert.Equal(t, "team.png", group.Photo)
	assert.Equal(t, 0, group.UnreadCount, "expected own messages not to count as unread")
	assert.True(t, group.IsActive, "expected group with an online member to be active")
	assert.Equal(t, "mine", group.LastMessage.Content)

	ab := views[1]
	assert.Equal(t, "Bob Jones", ab.Name)
	assert.Equal(t, 2, ab.UnreadCount)
	assert.True(t, ab.IsActive)
	assert.Equal(t, "sent file", ab.LastMessage.Content)
	assert.Equal(t, base.Add(4*time.Minute), ab.LastMessage.CreatedAt)

	ac := views[2]
	assert.Equal(t, "Carol", ac.Name)
	assert.False(t, ac.IsActive)
	assert.Nil(t, ac.LastMessage)
	assert.Equal(t, 0, ac.UnreadCount)

	assert.Equal(t, unknownUser, views[3].Name)

	t.Run("presence follows the registry", func(t *testing.T) {
		cs.registry.Unregister(bobConn)

		views, err := cs.Conversations(ctx, alice.Id)
		require.NoError(t, err)
		for _, v := range views {
			assert.False(t, v.IsActive, "expected %q to be inactive", v.RoomId)
		}
	})

	t.Run("no rooms", func(t *testing.T) {
		views, err := cs.Conversations(ctx, "nobody")
		assert.NoError(t, err)
		assert.Empty(t, views)
	})
}

func TestChatServer_Conversations_StoreFailure(t *testing.T) {
	t.Run("rooms", func(t *testing.T) {
		db := &database.MockChatRepository{}
		defer db.AssertExpectations(t)
		db.On("RoomsForUser", mock.Anything, alice.Id).Return(nil, errors.New("connection refused")).Once()

		cs := newTestChatServer(t, db, &stats.MockStatsUpdater{})
		views, err := cs.Conversations(context.Background(), alice.Id)
		assert.Nil(t, views)
		assert.ErrorContains(t, err, "connection refused")
	})

	t.Run("peers", func(t *testing.T) {
		db := &database.MockChatRepository{}
		defer db.AssertExpectations(t)
		db.On("RoomsForUser", mock.Anything, alice.Id).Return([]database.RoomSummary{
			{Room: database.Room{Id: "r1", Kind: types.RoomKindSingle, ParticipantIds: []string{alice.Id, bob.Id}}},
		}, nil).Once()
		db.On("GetUsers", mock.Anything, []string{bob.Id}).Return(nil, errors.New("timeout")).Once()

		cs := newTestChatServer(t, db, &stats.MockStatsUpdater{})
		_, err := cs.Conversations(context.Background(), alice.Id)
		assert.ErrorContains(t, err, "get users: timeout")
	})
}

func Test_recipientView(t *testing.T) {
	ts := time.Now().UTC()
	msg := types.Message{Id: "m1", RoomId: "r1", SenderId: alice.Id, FileUrl: "doc.pdf", CreatedAt: ts}

	single := recipientView(database.Room{Id: "r1", Kind: types.RoomKindSingle, CreatedAt: ts}, alice.Identity(), msg)
	assert.Equal(t, "Alice Smith", single.Name)
	assert.Equal(t, "alice.png", single.Photo)
	assert.Equal(t, 1, single.CountIncreaseBy)
	assert.True(t, single.IsActive)
	assert.Equal(t, &types.MessagePreview{Content: "sent file", CreatedAt: ts}, single.LastMessage)

	group := recipientView(database.Room{Id: "r1", Kind: types.RoomKindGroup, Name: "Team"}, alice.Identity(), msg)
	assert.Equal(t, "Team", group.Name)
	assert.Empty(t, group.Photo)
}
