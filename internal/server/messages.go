package server

import (
	"bytes"
	"encoding/json"

	"github.com/npezzotti/go-chathub/internal/types"
)

// Inbound envelope types.
const (
	TypeSubscribe        = "subscribe"
	TypeSendMessage      = "send-message"
	TypeReadMessage      = "read-message"
	TypeConversationList = "conversation-list"
	TypeSendCandidate    = "send-candidate"
)

// Outbound envelope types. conversation-list is shared with the request.
const (
	TypePastMessages     = "past-messages"
	TypeNewMessage       = "new-message"
	TypeNewConversation  = "new-conversation"
	TypeReceiveCandidate = "receive-candidate"
	TypeSuccess          = "success"
	TypeError            = "error"
)

// ClientMessage is one of the inbound variants: *Subscribe, *SendMessage,
// *ReadMessage, *ConversationListRequest or *SendCandidate.
type ClientMessage interface {
	clientMessage()
}

type Subscribe struct {
	RoomId     string `json:"roomId"`
	ReceiverId string `json:"receiverId"`
}

type SendMessage struct {
	Content string `json:"content"`
	FileUrl string `json:"fileUrl"`
}

type ReadMessage struct{}

type ConversationListRequest struct{}

type SendCandidate struct {
	Content json.RawMessage `json:"content"`
}

func (*Subscribe) clientMessage()               {}
func (*SendMessage) clientMessage()             {}
func (*ReadMessage) clientMessage()             {}
func (*ConversationListRequest) clientMessage() {}
func (*SendCandidate) clientMessage()           {}

type envelope struct {
	Type string `json:"type"`
}

// ParseClientMessage decodes a flat JSON envelope into its variant. Errors
// are always *HubError protocol errors.
func ParseClientMessage(raw []byte) (ClientMessage, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, ErrInvalidMessage(err)
	}

	var msg ClientMessage
	switch env.Type {
	case TypeSubscribe:
		msg = &Subscribe{}
	case TypeSendMessage:
		msg = &SendMessage{}
	case TypeReadMessage:
		return &ReadMessage{}, nil
	case TypeConversationList:
		return &ConversationListRequest{}, nil
	case TypeSendCandidate:
		msg = &SendCandidate{}
	default:
		return nil, ErrInvalidType(env.Type)
	}

	if err := json.Unmarshal(raw, msg); err != nil {
		return nil, ErrInvalidMessage(err)
	}

	return msg, nil
}

func (sc *SendCandidate) empty() bool {
	trimmed := bytes.TrimSpace(sc.Content)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// ServerMessage is one of the outbound variants. Each carries its own type
// discriminator and is built by its constructor.
type ServerMessage interface {
	serverMessage()
}

type ConversationList struct {
	Type          string                   `json:"type"`
	Conversations []types.ConversationView `json:"conversations"`
}

type PastMessages struct {
	Type     string          `json:"type"`
	RoomId   string          `json:"roomId"`
	Messages []types.Message `json:"messages"`
}

type NewMessage struct {
	Type    string        `json:"type"`
	RoomId  string        `json:"roomId"`
	Message types.Message `json:"message"`
}

type NewConversation struct {
	Type          string                 `json:"type"`
	Conversations types.ConversationView `json:"conversations"`
}

type ReceiveCandidate struct {
	Type      string          `json:"type"`
	Candidate json.RawMessage `json:"candidate"`
	UserId    string          `json:"userId"`
}

type ReadResult struct {
	Count int64 `json:"count"`
}

type Success struct {
	Type    string      `json:"type"`
	Message string      `json:"message"`
	Result  *ReadResult `json:"result,omitempty"`
}

type Error struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (*ConversationList) serverMessage() {}
func (*PastMessages) serverMessage()     {}
func (*NewMessage) serverMessage()       {}
func (*NewConversation) serverMessage()  {}
func (*ReceiveCandidate) serverMessage() {}
func (*Success) serverMessage()          {}
func (*Error) serverMessage()            {}

func NewConversationList(conversations []types.ConversationView) *ConversationList {
	if conversations == nil {
		conversations = []types.ConversationView{}
	}
	return &ConversationList{Type: TypeConversationList, Conversations: conversations}
}

func NewPastMessages(roomId string, messages []types.Message) *PastMessages {
	if messages == nil {
		messages = []types.Message{}
	}
	return &PastMessages{Type: TypePastMessages, RoomId: roomId, Messages: messages}
}

func NewMessageEvent(roomId string, msg types.Message) *NewMessage {
	return &NewMessage{Type: TypeNewMessage, RoomId: roomId, Message: msg}
}

func NewConversationEvent(cv types.ConversationView) *NewConversation {
	return &NewConversation{Type: TypeNewConversation, Conversations: cv}
}

func NewReceiveCandidate(candidate json.RawMessage, userId string) *ReceiveCandidate {
	return &ReceiveCandidate{Type: TypeReceiveCandidate, Candidate: candidate, UserId: userId}
}

func NewSuccess(message string, result *ReadResult) *Success {
	return &Success{Type: TypeSuccess, Message: message, Result: result}
}

func NewError(message string) *Error {
	return &Error{Type: TypeError, Message: message}
}

func serializeMessage(msg ServerMessage) ([]byte, error) {
	return json.Marshal(msg)
}
