package server

import (
	"errors"
	"strings"

	"github.com/npezzotti/go-chathub/internal/database"
	"github.com/npezzotti/go-chathub/internal/stats"
	"github.com/npezzotti/go-chathub/internal/types"
)

const msgMarkedRead = "messages marked as read"

// dispatch handles one inbound frame. Failures are reported to the sending
// connection only and never end it.
func (cs *ChatServer) dispatch(c *Client, raw []byte) {
	msg, err := ParseClientMessage(raw)
	if err != nil {
		cs.reportError(c, err)
		return
	}

	switch m := msg.(type) {
	case *Subscribe:
		err = cs.handleSubscribe(c, m)
	case *SendMessage:
		err = cs.handleSendMessage(c, m)
	case *ReadMessage:
		err = cs.handleReadMessage(c)
	case *ConversationListRequest:
		err = cs.handleConversationList(c)
	case *SendCandidate:
		err = cs.handleSendCandidate(c, m)
	}

	if err != nil {
		cs.reportError(c, err)
	}
}

func (cs *ChatServer) reportError(c *Client, err error) {
	var herr *HubError
	if !errors.As(err, &herr) {
		herr = ErrPersistence(err)
	}

	cs.log.Printf("connection %s (user %q): %v", c.id, c.user.Id, herr)
	c.queueMessage(herr.Event())
}

func (cs *ChatServer) handleSubscribe(c *Client, m *Subscribe) error {
	roomId := strings.TrimSpace(m.RoomId)
	receiverId := strings.TrimSpace(m.ReceiverId)

	switch {
	case roomId == "" && receiverId == "":
		return ErrMissingSubscribeTarget()
	case roomId != "" && receiverId != "":
		return ErrAmbiguousSubscribeTarget()
	case receiverId == c.user.Id:
		return ErrSelfConversation()
	}

	ctx, cancel := cs.storeContext()
	defer cancel()

	var room database.Room
	if roomId != "" {
		r, err := cs.db.GetRoom(ctx, roomId)
		if err != nil {
			return storeError(err, ErrRoomNotFound())
		}
		if !r.ToType().HasParticipant(c.user.Id) {
			return ErrRoomNotFound()
		}

		if _, err := cs.db.MarkRead(ctx, r.Id, c.user.Id); err != nil {
			return ErrPersistence(err)
		}
		room = r
	} else {
		if _, err := cs.db.GetUser(ctx, receiverId); err != nil {
			return storeError(err, ErrUserNotFound())
		}

		r, err := cs.db.FindOrCreateSingleRoom(ctx, c.user.Id, receiverId)
		if err != nil {
			return ErrPersistence(err)
		}
		room = r
	}

	if err := cs.registry.Subscribe(c, room.Id); err != nil {
		// connection went away while the room was being resolved
		return nil
	}

	history, err := cs.db.RoomMessages(ctx, room.Id, cs.opts.HistoryLimit)
	if err != nil {
		return ErrPersistence(err)
	}

	messages := make([]types.Message, 0, len(history))
	for _, msg := range history {
		messages = append(messages, msg.ToType())
	}

	c.queueMessage(NewPastMessages(room.Id, messages))

	return nil
}

func (cs *ChatServer) handleSendMessage(c *Client, m *SendMessage) error {
	roomId, ok := cs.registry.State(c).subscribedTo()
	if !ok {
		return ErrNotSubscribed()
	}

	if strings.TrimSpace(m.Content) == "" && strings.TrimSpace(m.FileUrl) == "" {
		return ErrEmptyMessage()
	}

	ctx, cancel := cs.storeContext()
	defer cancel()

	if _, err := cs.db.MarkRead(ctx, roomId, c.user.Id); err != nil {
		return ErrPersistence(err)
	}

	room, err := cs.db.GetRoom(ctx, roomId)
	if err != nil {
		return storeError(err, ErrRoomNotFound())
	}

	peers, err := cs.peers(ctx, c.user.Id, room)
	if err != nil {
		return ErrPersistence(err)
	}

	created, err := cs.db.AppendMessage(ctx, database.CreateMessageParams{
		RoomId:   roomId,
		SenderId: c.user.Id,
		Content:  m.Content,
		FileUrl:  m.FileUrl,
	})
	if err != nil {
		return ErrPersistence(err)
	}
	cs.stats.Incr(stats.NumMessagesSent)

	msg := created.ToType()
	if msg.Sender == nil {
		sender := c.user
		msg.Sender = &sender
	}

	cs.sendToRoom(roomId, NewMessageEvent(roomId, msg), nil)

	own := conversationView(room, c.user.Id, peers, cs.presence.ActiveUserIds())
	own.LastMessage = preview(msg)
	cs.sendToUser(c.user.Id, NewConversationEvent(own), c)

	theirs := NewConversationEvent(recipientView(room, c.user, msg))
	for _, id := range room.ToType().OtherParticipants(c.user.Id) {
		cs.sendToUser(id, theirs, nil)
	}

	return nil
}

func (cs *ChatServer) handleReadMessage(c *Client) error {
	roomId, ok := cs.registry.State(c).subscribedTo()
	if !ok {
		return ErrNotSubscribed()
	}

	ctx, cancel := cs.storeContext()
	defer cancel()

	n, err := cs.db.MarkRead(ctx, roomId, c.user.Id)
	if err != nil {
		return ErrPersistence(err)
	}

	c.queueMessage(NewSuccess(msgMarkedRead, &ReadResult{Count: n}))

	return nil
}

func (cs *ChatServer) handleConversationList(c *Client) error {
	ctx, cancel := cs.storeContext()
	defer cancel()

	conversations, err := cs.Conversations(ctx, c.user.Id)
	if err != nil {
		return ErrPersistence(err)
	}

	c.queueMessage(NewConversationList(conversations))

	return nil
}

func (cs *ChatServer) handleSendCandidate(c *Client, m *SendCandidate) error {
	roomId, ok := cs.registry.State(c).subscribedTo()
	if !ok {
		return ErrNotSubscribed()
	}

	if m.empty() {
		return ErrMissingCandidate()
	}

	cs.sendToRoom(roomId, NewReceiveCandidate(m.Content, c.user.Id), c)

	return nil
}
