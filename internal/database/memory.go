package database

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/npezzotti/go-chathub/internal/types"
	"github.com/teris-io/shortid"
)

// MemoryChatRepository keeps users, rooms and messages in process memory.
// It is used for local development and tests.
type MemoryChatRepository struct {
	mu       sync.RWMutex
	users    map[string]User
	rooms    map[string]Room
	pairs    map[string]string
	messages map[string][]Message
}

func NewMemoryChatRepository() *MemoryChatRepository {
	return &MemoryChatRepository{
		users:    make(map[string]User),
		rooms:    make(map[string]Room),
		pairs:    make(map[string]string),
		messages: make(map[string][]Message),
	}
}

// AddUser inserts or replaces a user.
func (m *MemoryChatRepository) AddUser(u User) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if u.Status == "" {
		u.Status = UserStatusActive
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
		u.UpdatedAt = u.CreatedAt
	}
	m.users[u.Id] = u
}

// AddRoom inserts or replaces a room, typically a GROUP room.
func (m *MemoryChatRepository) AddRoom(r Room) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
		r.UpdatedAt = r.CreatedAt
	}
	r.ParticipantIds = append([]string(nil), r.ParticipantIds...)
	m.rooms[r.Id] = r
	if r.Kind == types.RoomKindSingle && len(r.ParticipantIds) == 2 {
		m.pairs[pairKey(r.ParticipantIds[0], r.ParticipantIds[1])] = r.Id
	}
}

func (m *MemoryChatRepository) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (m *MemoryChatRepository) GetUser(ctx context.Context, id string) (User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return User{}, sql.ErrNoRows
	}
	return u, nil
}

func (m *MemoryChatRepository) GetUsers(ctx context.Context, ids []string) ([]User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	users := make([]User, 0, len(ids))
	for _, id := range ids {
		if u, ok := m.users[id]; ok {
			users = append(users, u)
		}
	}
	return users, nil
}

func (m *MemoryChatRepository) GetRoom(ctx context.Context, roomId string) (Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.rooms[roomId]
	if !ok {
		return Room{}, sql.ErrNoRows
	}
	return copyRoom(r), nil
}

func (m *MemoryChatRepository) FindOrCreateSingleRoom(ctx context.Context, userA, userB string) (Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := pairKey(userA, userB)
	if id, ok := m.pairs[key]; ok {
		return copyRoom(m.rooms[id]), nil
	}

	id, err := shortid.Generate()
	if err != nil {
		return Room{}, fmt.Errorf("generate room id: %w", err)
	}

	now := time.Now().UTC()
	r := Room{
		Id:             id,
		Kind:           types.RoomKindSingle,
		ParticipantIds: []string{userA, userB},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	m.rooms[id] = r
	m.pairs[key] = id

	return copyRoom(r), nil
}

func (m *MemoryChatRepository) RoomMessages(ctx context.Context, roomId string, limit int) ([]Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stored := m.messages[roomId]
	if limit <= 0 || limit > len(stored) {
		limit = len(stored)
	}

	messages := make([]Message, 0, limit)
	for i := len(stored) - 1; i >= 0 && len(messages) < limit; i-- {
		messages = append(messages, m.withSender(stored[i]))
	}
	return messages, nil
}

func (m *MemoryChatRepository) AppendMessage(ctx context.Context, params CreateMessageParams) (Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rooms[params.RoomId]
	if !ok {
		return Message{}, sql.ErrNoRows
	}
	if _, ok := m.users[params.SenderId]; !ok {
		return Message{}, fmt.Errorf("get sender: %w", sql.ErrNoRows)
	}

	if params.CreatedAt.IsZero() {
		params.CreatedAt = time.Now().UTC()
	}

	msg := Message{
		Id:        uuid.NewString(),
		RoomId:    params.RoomId,
		SenderId:  params.SenderId,
		Content:   params.Content,
		FileUrl:   params.FileUrl,
		CreatedAt: params.CreatedAt,
	}
	m.messages[r.Id] = append(m.messages[r.Id], msg)

	r.UpdatedAt = msg.CreatedAt
	m.rooms[r.Id] = r

	return m.withSender(msg), nil
}

func (m *MemoryChatRepository) MarkRead(ctx context.Context, roomId, readerId string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	stored := m.messages[roomId]
	for i := range stored {
		if !stored[i].IsRead && stored[i].SenderId != readerId {
			stored[i].IsRead = true
			n++
		}
	}
	return n, nil
}

func (m *MemoryChatRepository) RoomsForUser(ctx context.Context, userId string) ([]RoomSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	summaries := make([]RoomSummary, 0)
	for _, r := range m.rooms {
		if !r.ToType().HasParticipant(userId) {
			continue
		}

		summary := RoomSummary{Room: copyRoom(r)}
		stored := m.messages[r.Id]
		if len(stored) > 0 {
			last := stored[len(stored)-1]
			summary.LastMessage = &last
		}
		for _, msg := range stored {
			if !msg.IsRead && msg.SenderId != userId {
				summary.UnreadCount++
			}
		}
		summaries = append(summaries, summary)
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].Room.UpdatedAt.After(summaries[j].Room.UpdatedAt)
	})

	return summaries, nil
}

func (m *MemoryChatRepository) withSender(msg Message) Message {
	if u, ok := m.users[msg.SenderId]; ok {
		msg.Sender = &u
	}
	return msg
}

func copyRoom(r Room) Room {
	r.ParticipantIds = append([]string(nil), r.ParticipantIds...)
	return r
}
