package database

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type MockChatRepository struct {
	mock.Mock
}

func (m *MockChatRepository) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
func (m *MockChatRepository) GetUser(ctx context.Context, id string) (User, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockChatRepository) GetUsers(ctx context.Context, ids []string) ([]User, error) {
	args := m.Called(ctx, ids)
	if users, ok := args.Get(0).([]User); ok {
		return users, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockChatRepository) GetRoom(ctx context.Context, roomId string) (Room, error) {
	args := m.Called(ctx, roomId)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockChatRepository) FindOrCreateSingleRoom(ctx context.Context, userA, userB string) (Room, error) {
	args := m.Called(ctx, userA, userB)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockChatRepository) RoomMessages(ctx context.Context, roomId string, limit int) ([]Message, error) {
	args := m.Called(ctx, roomId, limit)
	if messages, ok := args.Get(0).([]Message); ok {
		return messages, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockChatRepository) AppendMessage(ctx context.Context, params CreateMessageParams) (Message, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockChatRepository) MarkRead(ctx context.Context, roomId, readerId string) (int64, error) {
	args := m.Called(ctx, roomId, readerId)
	return args.Get(0).(int64), args.Error(1)
}
func (m *MockChatRepository) RoomsForUser(ctx context.Context, userId string) ([]RoomSummary, error) {
	args := m.Called(ctx, userId)
	if summaries, ok := args.Get(0).([]RoomSummary); ok {
		return summaries, args.Error(1)
	}
	return nil, args.Error(1)
}
