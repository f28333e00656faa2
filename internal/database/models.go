package database

import (
	"time"

	"github.com/npezzotti/go-chathub/internal/types"
)

type UserStatus string

const (
	UserStatusActive  UserStatus = "ACTIVE"
	UserStatusBlocked UserStatus = "BLOCKED"
)

type User struct {
	Id              string
	FirstName       string
	LastName        string
	EmailAddress    string
	ProfilePhoto    string
	Status          UserStatus
	IsDeleted       bool
	IsEmailVerified bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (u User) DisplayName() string {
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

func (u User) Identity() types.Identity {
	return types.Identity{
		Id:          u.Id,
		DisplayName: u.DisplayName(),
		PhotoUrl:    u.ProfilePhoto,
	}
}

type Room struct {
	Id             string
	Kind           types.RoomKind
	ParticipantIds []string
	Name           string
	Photo          string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (r Room) ToType() types.Room {
	return types.Room{
		Id:             r.Id,
		Kind:           r.Kind,
		ParticipantIds: append([]string(nil), r.ParticipantIds...),
		Name:           r.Name,
		Photo:          r.Photo,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

type Message struct {
	Id        string
	RoomId    string
	SenderId  string
	Sender    *User
	Content   string
	FileUrl   string
	IsRead    bool
	CreatedAt time.Time
}

func (m Message) ToType() types.Message {
	msg := types.Message{
		Id:        m.Id,
		RoomId:    m.RoomId,
		SenderId:  m.SenderId,
		Content:   m.Content,
		FileUrl:   m.FileUrl,
		CreatedAt: m.CreatedAt,
		IsRead:    m.IsRead,
	}
	if m.Sender != nil {
		sender := m.Sender.Identity()
		msg.Sender = &sender
	}
	return msg
}

// RoomSummary is a room a user participates in together with its most recent
// message and the number of messages the user has not read yet.
type RoomSummary struct {
	Room        Room
	LastMessage *Message
	UnreadCount int
}

type CreateMessageParams struct {
	RoomId    string
	SenderId  string
	Content   string
	FileUrl   string
	CreatedAt time.Time
}

// pairKey is the order-independent key of a SINGLE room between two users.
func pairKey(userA, userB string) string {
	if userB < userA {
		userA, userB = userB, userA
	}
	return userA + ":" + userB
}
