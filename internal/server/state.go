package server

import "errors"

var errConnectionClosed = errors.New("connection closed")

type phase int

const (
	phaseAuthenticated phase = iota
	phaseSubscribed
	phaseClosed
)

func (p phase) String() string {
	return [...]string{
		"authenticated",
		"subscribed",
		"closed",
	}[p]
}

// connState is the protocol state of one connection: Authenticated with no
// room, Subscribed to exactly one room, or Closed.
type connState struct {
	phase  phase
	roomId string
}

func authenticated() connState {
	return connState{phase: phaseAuthenticated}
}

func (s connState) subscribedTo() (string, bool) {
	if s.phase != phaseSubscribed {
		return "", false
	}
	return s.roomId, true
}

func (s connState) subscribe(roomId string) (connState, error) {
	if s.phase == phaseClosed {
		return s, errConnectionClosed
	}
	return connState{phase: phaseSubscribed, roomId: roomId}, nil
}

func (s connState) close() connState {
	return connState{phase: phaseClosed}
}

func (s connState) String() string {
	if s.phase == phaseSubscribed {
		return s.phase.String() + "(" + s.roomId + ")"
	}
	return s.phase.String()
}
