package database

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/npezzotti/go-chathub/internal/types"
)

type seedUser struct {
	Id           string     `json:"id"`
	FirstName    string     `json:"firstName"`
	LastName     string     `json:"lastName"`
	EmailAddress string     `json:"email"`
	ProfilePhoto string     `json:"profilePhoto"`
	Status       UserStatus `json:"status"`
	Unverified   bool       `json:"unverified"`
}

type seedRoom struct {
	Id             string         `json:"id"`
	Kind           types.RoomKind `json:"roomType"`
	ParticipantIds []string       `json:"participants"`
	Name           string         `json:"name"`
	Photo          string         `json:"photo"`
}

type seed struct {
	Users []seedUser `json:"users"`
	Rooms []seedRoom `json:"rooms"`
}

// LoadSeed adds the users and rooms described by a JSON document of the form
// {"users": [...], "rooms": [...]}. Users are verified unless marked
// otherwise.
func (m *MemoryChatRepository) LoadSeed(r io.Reader) error {
	var s seed
	if err := json.NewDecoder(r).Decode(&s); err != nil {
		return fmt.Errorf("decode seed: %w", err)
	}

	for _, u := range s.Users {
		if u.Id == "" {
			return fmt.Errorf("seed user without id")
		}
		m.AddUser(User{
			Id:              u.Id,
			FirstName:       u.FirstName,
			LastName:        u.LastName,
			EmailAddress:    u.EmailAddress,
			ProfilePhoto:    u.ProfilePhoto,
			Status:          u.Status,
			IsEmailVerified: !u.Unverified,
		})
	}

	if err := m.validateSeedRooms(s.Rooms); err != nil {
		return err
	}

	for _, r := range s.Rooms {
		m.AddRoom(Room{
			Id:             r.Id,
			Kind:           r.Kind,
			ParticipantIds: r.ParticipantIds,
			Name:           r.Name,
			Photo:          r.Photo,
		})
	}

	return nil
}

// validateSeedRooms defaults the room kind and checks that every SINGLE room
// joins two distinct users with no other SINGLE room between them.
func (m *MemoryChatRepository) validateSeedRooms(rooms []seedRoom) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	pairs := make(map[string]string)
	for i := range rooms {
		r := &rooms[i]
		if r.Id == "" || len(r.ParticipantIds) == 0 {
			return fmt.Errorf("seed room needs an id and participants")
		}
		if r.Kind == "" {
			r.Kind = types.RoomKindGroup
		}

		switch r.Kind {
		case types.RoomKindGroup:
		case types.RoomKindSingle:
			if len(r.ParticipantIds) != 2 || r.ParticipantIds[0] == r.ParticipantIds[1] {
				return fmt.Errorf("seed room %q: single room needs exactly two distinct participants", r.Id)
			}
			key := pairKey(r.ParticipantIds[0], r.ParticipantIds[1])
			if id, ok := pairs[key]; ok {
				return fmt.Errorf("seed room %q: users already share single room %q", r.Id, id)
			}
			if id, ok := m.pairs[key]; ok && id != r.Id {
				return fmt.Errorf("seed room %q: users already share single room %q", r.Id, id)
			}
			pairs[key] = r.Id
		default:
			return fmt.Errorf("seed room %q: unknown room type %q", r.Id, r.Kind)
		}
	}

	return nil
}
