package server

import "github.com/npezzotti/go-chathub/internal/stats"

// Subscribe moves c into roomId, leaving any previous room in the same step.
// A connection that is closed or was never registered cannot subscribe.
func (r *Registry) Subscribe(c *Client, roomId string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.clients[c]; !ok {
		return errConnectionClosed
	}

	next, err := c.state.subscribe(roomId)
	if err != nil {
		return err
	}

	if current, ok := c.state.subscribedTo(); ok && current == roomId {
		return nil
	}

	r.leaveRoom(c)

	members, ok := r.rooms[roomId]
	if !ok {
		members = make(map[*Client]struct{})
		r.rooms[roomId] = members
		r.stats.Incr(stats.NumActiveRooms)
	}
	members[c] = struct{}{}
	c.state = next

	return nil
}

// Unsubscribe returns c to the Authenticated state.
func (r *Registry) Unsubscribe(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := c.state.subscribedTo(); !ok {
		return
	}

	r.leaveRoom(c)
	c.state = authenticated()
}

// MembersOf returns a snapshot of the connections subscribed to roomId.
func (r *Registry) MembersOf(roomId string) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return snapshot(r.rooms[roomId])
}

func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.rooms)
}

// leaveRoom drops c from its current room, deleting the room entry once it has
// no members. Callers hold mu and update c.state themselves.
func (r *Registry) leaveRoom(c *Client) {
	roomId, ok := c.state.subscribedTo()
	if !ok {
		return
	}

	members, ok := r.rooms[roomId]
	if !ok {
		return
	}

	delete(members, c)
	if len(members) == 0 {
		delete(r.rooms, roomId)
		r.stats.Decr(stats.NumActiveRooms)
	}
}
