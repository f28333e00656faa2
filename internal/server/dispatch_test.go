package server

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/npezzotti/go-chathub/internal/database"
	"github.com/npezzotti/go-chathub/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func subscribeTo(t *testing.T, cs *ChatServer, c *Client, raw string) *PastMessages {
	t.Helper()

	send(cs, c, raw)
	msg := receive(t, c)
	past, ok := msg.(*PastMessages)
	require.True(t, ok, "expected past-messages, got %#v", msg)
	return past
}

func TestDispatch_Subscribe(t *testing.T) {
	t.Run("receiver creates a single room once", func(t *testing.T) {
		cs := newTestChatServer(t, newMemoryRepo(alice, bob), newTestStats())
		a := connect(t, cs, alice)
		b := connect(t, cs, bob)

		pastA := subscribeTo(t, cs, a, `{"type":"subscribe","receiverId":"bob"}`)
		pastB := subscribeTo(t, cs, b, `{"type":"subscribe","receiverId":"alice"}`)

		assert.NotEmpty(t, pastA.RoomId)
		assert.Equal(t, pastA.RoomId, pastB.RoomId, "expected both users to share one room")
		assert.Empty(t, pastA.Messages)
		assert.ElementsMatch(t, []*Client{a, b}, cs.registry.MembersOf(pastA.RoomId))
	})

	t.Run("resubscribing moves the connection", func(t *testing.T) {
		cs := newTestChatServer(t, newMemoryRepo(alice, bob, carol), newTestStats())
		a := connect(t, cs, alice)

		first := subscribeTo(t, cs, a, `{"type":"subscribe","receiverId":"bob"}`)
		second := subscribeTo(t, cs, a, `{"type":"subscribe","receiverId":"carol"}`)

		assert.NotEqual(t, first.RoomId, second.RoomId)
		assert.Empty(t, cs.registry.MembersOf(first.RoomId))
		assert.Equal(t, []*Client{a}, cs.registry.MembersOf(second.RoomId))
	})

	t.Run("room id marks history read", func(t *testing.T) {
		db := newMemoryRepo(alice, bob)
		room, err := db.FindOrCreateSingleRoom(context.Background(), alice.Id, bob.Id)
		require.NoError(t, err)
		for _, content := range []string{"one", "two"} {
			_, err := db.AppendMessage(context.Background(), database.CreateMessageParams{
				RoomId: room.Id, SenderId: alice.Id, Content: content,
			})
			require.NoError(t, err)
		}

		cs := newTestChatServer(t, db, newTestStats())
		b := connect(t, cs, bob)

		past := subscribeTo(t, cs, b, `{"type":"subscribe","roomId":"`+room.Id+`"}`)
		require.Len(t, past.Messages, 2)
		assert.Equal(t, "two", past.Messages[0].Content, "expected newest message first")
		assert.Equal(t, "Alice Smith", past.Messages[0].Sender.DisplayName)

		n, err := db.MarkRead(context.Background(), room.Id, bob.Id)
		assert.NoError(t, err)
		assert.Zero(t, n, "expected subscribe to have marked the history read")
	})

	tcases := []struct {
		name    string
		raw     string
		message string
	}{
		{"no target", `{"type":"subscribe"}`, "receiverId or roomId is required"},
		{"blank target", `{"type":"subscribe","roomId":"  "}`, "receiverId or roomId is required"},
		{"both targets", `{"type":"subscribe","roomId":"r1","receiverId":"bob"}`, "only one of receiverId or roomId may be set"},
		{"self", `{"type":"subscribe","receiverId":"alice"}`, "cannot start a conversation with yourself"},
		{"unknown receiver", `{"type":"subscribe","receiverId":"nobody"}`, "receiver not found"},
		{"unknown room", `{"type":"subscribe","roomId":"missing"}`, "room not found"},
		{"not a participant", `{"type":"subscribe","roomId":"bob-carol"}`, "room not found"},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			db := newMemoryRepo(alice, bob, carol)
			db.AddRoom(database.Room{Id: "bob-carol", Kind: types.RoomKindSingle, ParticipantIds: []string{bob.Id, carol.Id}})

			cs := newTestChatServer(t, db, newTestStats())
			a := connect(t, cs, alice)

			send(cs, a, tc.raw)
			assert.Equal(t, tc.message, receiveError(t, a))
			assertNoMessage(t, a)
			assert.Equal(t, authenticated(), cs.registry.State(a), "expected failed subscribe to leave state unchanged")
		})
	}
}

func TestDispatch_RequiresSubscription(t *testing.T) {
	for _, raw := range []string{
		`{"type":"send-message","content":"hi"}`,
		`{"type":"read-message"}`,
		`{"type":"send-candidate","content":{"candidate":"x"}}`,
	} {
		cs := newTestChatServer(t, newMemoryRepo(alice), newTestStats())
		a := connect(t, cs, alice)

		send(cs, a, raw)
		assert.Equal(t, "you must join a room first", receiveError(t, a), raw)
	}
}

func TestDispatch_InvalidFrames(t *testing.T) {
	cs := newTestChatServer(t, newMemoryRepo(alice), newTestStats())
	a := connect(t, cs, alice)

	send(cs, a, `not json`)
	assert.Equal(t, "invalid message format", receiveError(t, a))

	send(cs, a, `{"type":"typing"}`)
	assert.Equal(t, "invalid message type", receiveError(t, a))

	assert.Equal(t, 1, cs.registry.Len(), "expected connection to stay registered")
}

func TestDispatch_SendMessage_FanOut(t *testing.T) {
	cs := newTestChatServer(t, newMemoryRepo(alice, bob), newTestStats())
	a1 := connect(t, cs, alice)
	a2 := connect(t, cs, alice)
	b1 := connect(t, cs, bob)

	roomId := subscribeTo(t, cs, a1, `{"type":"subscribe","receiverId":"bob"}`).RoomId
	subscribeTo(t, cs, b1, `{"type":"subscribe","roomId":"`+roomId+`"}`)

	send(cs, a1, `{"type":"send-message","content":"hi"}`)

	// sender's connection in the room
	msg, ok := receive(t, a1).(*NewMessage)
	require.True(t, ok, "expected new-message for sender")
	assert.Equal(t, roomId, msg.RoomId)
	assert.Equal(t, "hi", msg.Message.Content)
	assert.Equal(t, alice.Id, msg.Message.SenderId)
	require.NotNil(t, msg.Message.Sender)
	assert.Equal(t, "Alice Smith", msg.Message.Sender.DisplayName)
	assertNoMessage(t, a1)

	// recipient in the room
	bMsg, ok := receive(t, b1).(*NewMessage)
	require.True(t, ok, "expected new-message for recipient")
	assert.Equal(t, msg.Message.Id, bMsg.Message.Id)

	bConv, ok := receive(t, b1).(*NewConversation)
	require.True(t, ok, "expected new-conversation for recipient")
	assert.Equal(t, roomId, bConv.Conversations.RoomId)
	assert.Equal(t, "Alice Smith", bConv.Conversations.Name)
	assert.Equal(t, "alice.png", bConv.Conversations.Photo)
	assert.Equal(t, 1, bConv.Conversations.CountIncreaseBy)
	assert.True(t, bConv.Conversations.IsActive)
	assert.Equal(t, "hi", bConv.Conversations.LastMessage.Content)
	assertNoMessage(t, b1)

	// sender's other connection, outside the room
	aConv, ok := receive(t, a2).(*NewConversation)
	require.True(t, ok, "expected new-conversation for sender's other connection")
	assert.Equal(t, "Bob Jones", aConv.Conversations.Name)
	assert.Equal(t, 0, aConv.Conversations.UnreadCount)
	assert.Equal(t, 0, aConv.Conversations.CountIncreaseBy)
	assert.True(t, aConv.Conversations.IsActive)
	assert.Equal(t, "hi", aConv.Conversations.LastMessage.Content)
	assertNoMessage(t, a2)
}

func TestDispatch_SendMessage_FileOnly(t *testing.T) {
	cs := newTestChatServer(t, newMemoryRepo(alice, bob), newTestStats())
	a := connect(t, cs, alice)
	b := connect(t, cs, bob)
	subscribeTo(t, cs, a, `{"type":"subscribe","receiverId":"bob"}`)

	send(cs, a, `{"type":"send-message","fileUrl":"https://cdn/cat.png"}`)

	msg, ok := receive(t, a).(*NewMessage)
	require.True(t, ok)
	assert.Equal(t, "https://cdn/cat.png", msg.Message.FileUrl)

	conv, ok := receive(t, b).(*NewConversation)
	require.True(t, ok, "expected recipient outside the room to get new-conversation")
	assert.Equal(t, "sent file", conv.Conversations.LastMessage.Content)
	assertNoMessage(t, b)

	send(cs, a, `{"type":"send-message","content":"   "}`)
	assert.Equal(t, "content or fileUrl is required", receiveError(t, a))
}

func TestDispatch_ReadMessage(t *testing.T) {
	cs := newTestChatServer(t, newMemoryRepo(alice, bob), newTestStats())
	a := connect(t, cs, alice)
	b := connect(t, cs, bob)

	roomId := subscribeTo(t, cs, a, `{"type":"subscribe","receiverId":"bob"}`).RoomId
	subscribeTo(t, cs, b, `{"type":"subscribe","roomId":"`+roomId+`"}`)

	send(cs, a, `{"type":"send-message","content":"one"}`)
	send(cs, a, `{"type":"send-message","content":"two"}`)
	for len(b.send) > 0 {
		<-b.send
	}

	send(cs, b, `{"type":"read-message"}`)
	assert.Equal(t, NewSuccess(msgMarkedRead, &ReadResult{Count: 2}), receive(t, b))

	send(cs, b, `{"type":"read-message"}`)
	assert.Equal(t, NewSuccess(msgMarkedRead, &ReadResult{Count: 0}), receive(t, b), "expected read-message to be idempotent")

	for len(a.send) > 0 {
		<-a.send
	}
	send(cs, a, `{"type":"read-message"}`)
	assert.Equal(t, NewSuccess(msgMarkedRead, &ReadResult{Count: 0}), receive(t, a), "expected own messages to be excluded")
}

func TestDispatch_ConversationList(t *testing.T) {
	cs := newTestChatServer(t, newMemoryRepo(alice, bob), newTestStats())
	a := connect(t, cs, alice)
	subscribeTo(t, cs, a, `{"type":"subscribe","receiverId":"bob"}`)

	send(cs, a, `{"type":"conversation-list"}`)
	list, ok := receive(t, a).(*ConversationList)
	require.True(t, ok)
	require.Len(t, list.Conversations, 1)
	assert.Equal(t, "Bob Jones", list.Conversations[0].Name)
	assert.False(t, list.Conversations[0].IsActive)
}

func TestDispatch_SendCandidate(t *testing.T) {
	cs := newTestChatServer(t, newMemoryRepo(alice, bob, carol), newTestStats())
	a := connect(t, cs, alice)
	b := connect(t, cs, bob)
	c := connect(t, cs, carol)
	// a participant of the room whose connection never subscribes
	b2 := connect(t, cs, bob)

	roomId := subscribeTo(t, cs, a, `{"type":"subscribe","receiverId":"bob"}`).RoomId
	subscribeTo(t, cs, b, `{"type":"subscribe","roomId":"`+roomId+`"}`)
	subscribeTo(t, cs, c, `{"type":"subscribe","receiverId":"alice"}`)

	send(cs, a, `{"type":"send-candidate","content":{"candidate":"candidate:1 1 UDP","sdpMid":"0"}}`)

	relay, ok := receive(t, b).(*ReceiveCandidate)
	require.True(t, ok)
	assert.Equal(t, alice.Id, relay.UserId)
	assert.JSONEq(t, `{"candidate":"candidate:1 1 UDP","sdpMid":"0"}`, string(relay.Candidate))

	assertNoMessage(t, a)
	assertNoMessage(t, b2)
	assertNoMessage(t, c)

	send(cs, a, `{"type":"send-candidate"}`)
	assert.Equal(t, "content is required", receiveError(t, a))
	assertNoMessage(t, b)
}

func TestDispatch_RoomRecreatedAfterEmpty(t *testing.T) {
	cs := newTestChatServer(t, newMemoryRepo(alice, bob), newTestStats())
	a := connect(t, cs, alice)

	roomId := subscribeTo(t, cs, a, `{"type":"subscribe","receiverId":"bob"}`).RoomId
	send(cs, a, `{"type":"send-message","content":"hi"}`)
	_, ok := receive(t, a).(*NewMessage)
	require.True(t, ok, "expected new-message for sender")
	require.Equal(t, 1, cs.registry.RoomCount())

	cs.Unregister(a)
	assert.Equal(t, 0, cs.registry.RoomCount(), "expected empty room entry to be dropped")
	assert.Empty(t, cs.registry.MembersOf(roomId))

	again := connect(t, cs, alice)
	past := subscribeTo(t, cs, again, `{"type":"subscribe","roomId":"`+roomId+`"}`)

	assert.Equal(t, roomId, past.RoomId)
	require.Len(t, past.Messages, 1)
	assert.Equal(t, "hi", past.Messages[0].Content)
	assert.Equal(t, 1, cs.registry.RoomCount())
	assert.Equal(t, []*Client{again}, cs.registry.MembersOf(roomId))
}

func TestDispatch_PersistenceFailure(t *testing.T) {
	room := database.Room{Id: "r1", Kind: types.RoomKindSingle, ParticipantIds: []string{alice.Id, bob.Id}}

	setup := func(t *testing.T, db *database.MockChatRepository) (*ChatServer, *Client, *Client) {
		cs := newTestChatServer(t, db, newTestStats())
		a := NewClient(alice.Identity(), nil, cs, cs.log)
		b := NewClient(bob.Identity(), nil, cs, cs.log)
		for _, c := range []*Client{a, b} {
			cs.registry.Register(c)
			require.NoError(t, cs.registry.Subscribe(c, room.Id))
		}
		return cs, a, b
	}

	t.Run("room lookup fails", func(t *testing.T) {
		db := &database.MockChatRepository{}
		defer db.AssertExpectations(t)
		db.On("MarkRead", mock.Anything, room.Id, alice.Id).Return(int64(0), nil).Once()
		db.On("GetRoom", mock.Anything, room.Id).Return(database.Room{}, errors.New("db down")).Once()

		cs, a, b := setup(t, db)
		send(cs, a, `{"type":"send-message","content":"hi"}`)

		assert.Equal(t, "something went wrong", receiveError(t, a))
		assertNoMessage(t, b)
	})

	t.Run("append fails", func(t *testing.T) {
		db := &database.MockChatRepository{}
		defer db.AssertExpectations(t)
		db.On("MarkRead", mock.Anything, room.Id, alice.Id).Return(int64(0), nil).Once()
		db.On("GetRoom", mock.Anything, room.Id).Return(room, nil).Once()
		db.On("GetUsers", mock.Anything, []string{bob.Id}).Return([]database.User{bob}, nil).Once()
		db.On("AppendMessage", mock.Anything, mock.MatchedBy(func(p database.CreateMessageParams) bool {
			return p.RoomId == room.Id && p.SenderId == alice.Id && p.Content == "hi"
		})).Return(database.Message{}, context.DeadlineExceeded).Once()

		cs, a, b := setup(t, db)
		send(cs, a, `{"type":"send-message","content":"hi"}`)

		assert.Equal(t, "something went wrong", receiveError(t, a))
		assertNoMessage(t, a)
		assertNoMessage(t, b)
		assert.Len(t, cs.registry.MembersOf(room.Id), 2, "expected connections to stay subscribed")
	})

	t.Run("read fails", func(t *testing.T) {
		db := &database.MockChatRepository{}
		defer db.AssertExpectations(t)
		db.On("MarkRead", mock.Anything, room.Id, bob.Id).Return(int64(0), errors.New("db down")).Once()

		cs, _, b := setup(t, db)
		send(cs, b, `{"type":"read-message"}`)

		assert.Equal(t, "something went wrong", receiveError(t, b))
	})
}

func TestChatServer_Register(t *testing.T) {
	db := newMemoryRepo(alice, bob)
	_, err := db.FindOrCreateSingleRoom(context.Background(), alice.Id, bob.Id)
	require.NoError(t, err)

	cs := newTestChatServer(t, db, newTestStats())
	b := NewClient(bob.Identity(), nil, cs, cs.log)
	require.NoError(t, cs.Register(b))

	list, ok := receive(t, b).(*ConversationList)
	require.True(t, ok)
	require.Len(t, list.Conversations, 1)
	assert.Equal(t, "Alice Smith", list.Conversations[0].Name)

	bytes, err := serializeMessage(list)
	require.NoError(t, err)

	var decoded map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(bytes, &decoded))
	assert.JSONEq(t, `"conversation-list"`, string(decoded["type"]))
}
