package server

import (
	"context"
	"fmt"
	"slices"

	"github.com/npezzotti/go-chathub/internal/database"
	"github.com/npezzotti/go-chathub/internal/types"
)

const unknownUser = "Unknown User"

// Conversations lists the rooms userId participates in as that user sees
// them, most recent activity first.
func (cs *ChatServer) Conversations(ctx context.Context, userId string) ([]types.ConversationView, error) {
	summaries, err := cs.db.RoomsForUser(ctx, userId)
	if err != nil {
		return nil, fmt.Errorf("rooms for user: %w", err)
	}

	rooms := make([]database.Room, 0, len(summaries))
	for _, s := range summaries {
		rooms = append(rooms, s.Room)
	}

	peers, err := cs.peers(ctx, userId, rooms...)
	if err != nil {
		return nil, err
	}

	active := cs.presence.ActiveUserIds()

	views := make([]types.ConversationView, 0, len(summaries))
	for _, s := range summaries {
		cv := conversationView(s.Room, userId, peers, active)
		cv.UnreadCount = s.UnreadCount
		if s.LastMessage != nil {
			cv.LastMessage = preview(s.LastMessage.ToType())
		}
		views = append(views, cv)
	}

	sortConversations(views)

	return views, nil
}

// peers loads the other participant of every SINGLE room, keyed by user id.
func (cs *ChatServer) peers(ctx context.Context, viewerId string, rooms ...database.Room) (map[string]database.User, error) {
	var ids []string
	for _, room := range rooms {
		if room.Kind != types.RoomKindSingle {
			continue
		}
		for _, id := range room.ToType().OtherParticipants(viewerId) {
			if !slices.Contains(ids, id) {
				ids = append(ids, id)
			}
		}
	}

	peers := make(map[string]database.User, len(ids))
	if len(ids) == 0 {
		return peers, nil
	}

	users, err := cs.db.GetUsers(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("get users: %w", err)
	}
	for _, u := range users {
		peers[u.Id] = u
	}

	return peers, nil
}

// conversationView names the room from the viewer's side: the peer for SINGLE
// rooms, the room's own name and photo for GROUP rooms.
func conversationView(room database.Room, viewerId string, peers map[string]database.User, active map[string]struct{}) types.ConversationView {
	others := room.ToType().OtherParticipants(viewerId)

	cv := types.ConversationView{
		RoomId:    room.Id,
		CreatedAt: room.CreatedAt,
		IsActive:  anyActive(active, others),
	}

	if room.Kind == types.RoomKindSingle {
		cv.Name = unknownUser
		for _, id := range others {
			if u, ok := peers[id]; ok {
				cv.Name = u.DisplayName()
				cv.Photo = u.ProfilePhoto
				break
			}
		}
	} else {
		cv.Name = room.Name
		cv.Photo = room.Photo
	}

	return cv
}

// recipientView is what participants other than the sender see after a new
// message: the sender is by definition online.
func recipientView(room database.Room, sender types.Identity, msg types.Message) types.ConversationView {
	cv := types.ConversationView{
		RoomId:          room.Id,
		CreatedAt:       room.CreatedAt,
		LastMessage:     preview(msg),
		IsActive:        true,
		CountIncreaseBy: 1,
	}

	if room.Kind == types.RoomKindSingle {
		cv.Name = sender.DisplayName
		cv.Photo = sender.PhotoUrl
	} else {
		cv.Name = room.Name
		cv.Photo = room.Photo
	}

	return cv
}

func preview(msg types.Message) *types.MessagePreview {
	return &types.MessagePreview{
		Content:   msg.Preview(),
		CreatedAt: msg.CreatedAt,
	}
}

func sortConversations(views []types.ConversationView) {
	slices.SortStableFunc(views, func(a, b types.ConversationView) int {
		return b.LastActivity().Compare(a.LastActivity())
	})
}
