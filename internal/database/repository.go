package database

import "context"

// ChatRepository is the persistence port consumed by the hub and the HTTP api.
// Adapters report missing rows with sql.ErrNoRows.
type ChatRepository interface {
	Ping(ctx context.Context) error
	GetUser(ctx context.Context, id string) (User, error)
	GetUsers(ctx context.Context, ids []string) ([]User, error)
	GetRoom(ctx context.Context, roomId string) (Room, error)
	FindOrCreateSingleRoom(ctx context.Context, userA, userB string) (Room, error)
	RoomMessages(ctx context.Context, roomId string, limit int) ([]Message, error)
	AppendMessage(ctx context.Context, params CreateMessageParams) (Message, error)
	MarkRead(ctx context.Context, roomId, readerId string) (int64, error)
	RoomsForUser(ctx context.Context, userId string) ([]RoomSummary, error)
}
