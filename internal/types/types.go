package types

import (
	"time"
)

type RoomKind string

const (
	RoomKindSingle RoomKind = "SINGLE"
	RoomKindGroup  RoomKind = "GROUP"
)

// Identity is the trusted view of an authenticated user. It is resolved once
// per connection and never changes for the connection's lifetime.
type Identity struct {
	Id          string `json:"id"`
	DisplayName string `json:"displayName"`
	PhotoUrl    string `json:"photoUrl,omitempty"`
}

type Room struct {
	Id             string    `json:"id"`
	Kind           RoomKind  `json:"roomType"`
	ParticipantIds []string  `json:"participants"`
	Name           string    `json:"name,omitempty"`
	Photo          string    `json:"photo,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// HasParticipant reports whether userId is one of the room's participants.
func (r Room) HasParticipant(userId string) bool {
	for _, id := range r.ParticipantIds {
		if id == userId {
			return true
		}
	}
	return false
}

// OtherParticipants returns the participant ids excluding userId.
func (r Room) OtherParticipants(userId string) []string {
	others := make([]string, 0, len(r.ParticipantIds))
	for _, id := range r.ParticipantIds {
		if id != userId {
			others = append(others, id)
		}
	}
	return others
}

type Message struct {
	Id        string    `json:"id"`
	RoomId    string    `json:"roomId"`
	SenderId  string    `json:"senderId"`
	Sender    *Identity `json:"sender,omitempty"`
	Content   string    `json:"content,omitempty"`
	FileUrl   string    `json:"fileUrl,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	IsRead    bool      `json:"isRead"`
}

const filePreview = "sent file"

// Preview returns the text shown in a conversation list for the message.
func (m Message) Preview() string {
	if m.Content != "" {
		return m.Content
	}
	return filePreview
}

type MessagePreview struct {
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// ConversationView is a per-user summary of a room. It is derived on demand
// and never stored.
type ConversationView struct {
	RoomId          string          `json:"id"`
	Name            string          `json:"name"`
	Photo           string          `json:"photo,omitempty"`
	LastMessage     *MessagePreview `json:"lastMessage"`
	CreatedAt       time.Time       `json:"createdAt"`
	UnreadCount     int             `json:"unreadCount"`
	IsActive        bool            `json:"isActive"`
	CountIncreaseBy int             `json:"countIncreaseBy,omitempty"`
}

// LastActivity is the time used to order conversations: the last message if
// there is one, otherwise the room's creation time.
func (cv ConversationView) LastActivity() time.Time {
	if cv.LastMessage != nil {
		return cv.LastMessage.CreatedAt
	}
	return cv.CreatedAt
}
