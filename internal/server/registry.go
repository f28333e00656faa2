package server

import (
	"sync"

	"github.com/npezzotti/go-chathub/internal/stats"
)

// Registry tracks live connections by owner and by subscribed room. Every
// connection state transition happens under mu so the two views never
// disagree.
type Registry struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	userMap map[string]map[*Client]struct{}
	rooms   map[string]map[*Client]struct{}
	stats   stats.StatsProvider
}

func NewRegistry(su stats.StatsProvider) *Registry {
	return &Registry{
		clients: make(map[*Client]struct{}),
		userMap: make(map[string]map[*Client]struct{}),
		rooms:   make(map[string]map[*Client]struct{}),
		stats:   su,
	}
}

// Register adds an authenticated connection. It reports whether the owner had
// no other live connection. A connection is registered at most once and never
// after it has been closed.
func (r *Registry) Register(c *Client) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.clients[c]; ok {
		return false, ErrAlreadyRegistered
	}
	if c.state.phase == phaseClosed {
		return false, errConnectionClosed
	}

	c.state = authenticated()
	r.clients[c] = struct{}{}
	r.stats.Incr(stats.NumActiveClients)

	conns, ok := r.userMap[c.user.Id]
	if !ok {
		conns = make(map[*Client]struct{})
		r.userMap[c.user.Id] = conns
		r.stats.Incr(stats.NumActiveUsers)
	}
	conns[c] = struct{}{}

	return !ok, nil
}

// Unregister removes the connection from every index and marks it Closed. It
// reports whether the connection was registered. Calling it again is a no-op.
func (r *Registry) Unregister(c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.clients[c]
	r.leaveRoom(c)
	c.state = c.state.close()
	if !ok {
		return false
	}

	delete(r.clients, c)
	r.stats.Decr(stats.NumActiveClients)

	if conns, ok := r.userMap[c.user.Id]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(r.userMap, c.user.Id)
			r.stats.Decr(stats.NumActiveUsers)
		}
	}

	return true
}

// ActiveUserIds returns the set of users owning at least one live connection.
func (r *Registry) ActiveUserIds() map[string]struct{} {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make(map[string]struct{}, len(r.userMap))
	for id := range r.userMap {
		ids[id] = struct{}{}
	}
	return ids
}

func (r *Registry) IsActive(userId string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.userMap[userId]
	return ok
}

// ClientsForUser returns a snapshot of the user's live connections.
func (r *Registry) ClientsForUser(userId string) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return snapshot(r.userMap[userId])
}

func (r *Registry) Clients() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return snapshot(r.clients)
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.clients)
}

func (r *Registry) State(c *Client) connState {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return c.state
}

func snapshot(set map[*Client]struct{}) []*Client {
	clients := make([]*Client, 0, len(set))
	for c := range set {
		clients = append(clients, c)
	}
	return clients
}
