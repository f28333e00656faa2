package server

import (
	"database/sql"
	"errors"
	"fmt"
)

type ErrorKind int

const (
	KindProtocol ErrorKind = iota
	KindNotFound
	KindPersistence
	KindAuth
)

func (k ErrorKind) String() string {
	return [...]string{
		"protocol",
		"not found",
		"persistence",
		"auth",
	}[k]
}

// HubError is a failure local to one connection. Only auth failures end the
// connection; everything else is reported and the connection stays open.
type HubError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *HubError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Message, e.Err.Error())
	}

	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *HubError) Unwrap() error {
	return e.Err
}

func (e *HubError) Fatal() bool {
	return e.Kind == KindAuth
}

// Event is the envelope reported to the client. Causes are never exposed.
func (e *HubError) Event() *Error {
	return NewError(e.Message)
}

func ErrInvalidMessage(err error) *HubError {
	return &HubError{Kind: KindProtocol, Message: "invalid message format", Err: err}
}

func ErrInvalidType(t string) *HubError {
	return &HubError{Kind: KindProtocol, Message: "invalid message type", Err: fmt.Errorf("type %q", t)}
}

func ErrMissingSubscribeTarget() *HubError {
	return &HubError{Kind: KindProtocol, Message: "receiverId or roomId is required"}
}

func ErrAmbiguousSubscribeTarget() *HubError {
	return &HubError{Kind: KindProtocol, Message: "only one of receiverId or roomId may be set"}
}

func ErrSelfConversation() *HubError {
	return &HubError{Kind: KindProtocol, Message: "cannot start a conversation with yourself"}
}

func ErrNotSubscribed() *HubError {
	return &HubError{Kind: KindProtocol, Message: "you must join a room first"}
}

func ErrEmptyMessage() *HubError {
	return &HubError{Kind: KindProtocol, Message: "content or fileUrl is required"}
}

func ErrMissingCandidate() *HubError {
	return &HubError{Kind: KindProtocol, Message: "content is required"}
}

func ErrRateLimited() *HubError {
	return &HubError{Kind: KindProtocol, Message: "rate limit exceeded"}
}

func ErrRoomNotFound() *HubError {
	return &HubError{Kind: KindNotFound, Message: "room not found"}
}

func ErrUserNotFound() *HubError {
	return &HubError{Kind: KindNotFound, Message: "receiver not found"}
}

func ErrPersistence(err error) *HubError {
	return &HubError{Kind: KindPersistence, Message: "something went wrong", Err: err}
}

func ErrAuth(message string, err error) *HubError {
	return &HubError{Kind: KindAuth, Message: message, Err: err}
}

// storeError maps a persistence port error, reporting missing rows as notFound.
func storeError(err error, notFound *HubError) *HubError {
	if errors.Is(err, sql.ErrNoRows) {
		notFound.Err = err
		return notFound
	}
	return ErrPersistence(err)
}
