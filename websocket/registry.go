package websocket

import (
	"log"
	"sync"

	"github.com/google/uuid"
)

// Registry tracks which users currently hold live connections and which
// rooms those connections joined. It is process-local and ephemeral: on
// restart everyone is simply offline until they reconnect.
//
// The registry is owned by the server process and injected into whatever
// needs to fan out events; it is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	conns map[uuid.UUID]map[*Client]struct{}
	rooms map[string]map[*Client]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[uuid.UUID]map[*Client]struct{}),
		rooms: make(map[string]map[*Client]struct{}),
	}
}

// Register adds a connection to its user's set and reports whether it is
// the user's first live connection (the "user came online" edge).
func (r *Registry) Register(c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.conns[c.UserID]
	if !ok {
		set = make(map[*Client]struct{})
		r.conns[c.UserID] = set
	}
	set[c] = struct{}{}
	return len(set) == 1
}

// Unregister removes a connection from its user's set and from every room
// it joined, and reports whether the user now has no connections left (the
// "user went offline" edge).
func (r *Registry) Unregister(c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.conns[c.UserID]
	if !ok {
		return false
	}
	if _, member := set[c]; !member {
		return false
	}
	delete(set, c)
	for room, members := range r.rooms {
		delete(members, c)
		if len(members) == 0 {
			delete(r.rooms, room)
		}
	}
	if len(set) == 0 {
		delete(r.conns, c.UserID)
		return true
	}
	return false
}

func (r *Registry) Join(room string, c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	members, ok := r.rooms[room]
	if !ok {
		members = make(map[*Client]struct{})
		r.rooms[room] = members
	}
	members[c] = struct{}{}
}

func (r *Registry) Leave(room string, c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if members, ok := r.rooms[room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(r.rooms, room)
		}
	}
}

func (r *Registry) IsOnline(userID uuid.UUID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns[userID]) > 0
}

// OnlineUsers returns the ids of every user with at least one connection.
func (r *Registry) OnlineUsers() []uuid.UUID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]uuid.UUID, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	return ids
}

// BroadcastToUser delivers an event to every connection of a user and
// returns how many connections it reached. Zero is a normal outcome, not an
// error: an offline user catches up over the REST history.
func (r *Registry) BroadcastToUser(userID uuid.UUID, e Event) int {
	r.mu.RLock()
	targets := r.snapshotUser(userID)
	r.mu.RUnlock()

	delivered := 0
	for _, c := range targets {
		if err := c.Send(e); err != nil {
			log.Printf("Dropping connection for user %s: write failed: %v", userID, err)
			c.Close()
			continue
		}
		delivered++
	}
	return delivered
}

// BroadcastToRoom delivers an event to every member of a room, skipping
// connections owned by the excluded user.
func (r *Registry) BroadcastToRoom(room string, e Event, except uuid.UUID) {
	r.mu.RLock()
	targets := make([]*Client, 0, len(r.rooms[room]))
	for c := range r.rooms[room] {
		if c.UserID == except {
			continue
		}
		targets = append(targets, c)
	}
	r.mu.RUnlock()

	for _, c := range targets {
		if err := c.Send(e); err != nil {
			log.Printf("Dropping connection for user %s: write failed: %v", c.UserID, err)
			c.Close()
		}
	}
}

// BroadcastAll delivers an event to every connected user except one. Used
// for the user_online / user_offline presence edges.
func (r *Registry) BroadcastAll(e Event, except uuid.UUID) {
	r.mu.RLock()
	targets := make([]*Client, 0)
	for userID, set := range r.conns {
		if userID == except {
			continue
		}
		for c := range set {
			targets = append(targets, c)
		}
	}
	r.mu.RUnlock()

	for _, c := range targets {
		if err := c.Send(e); err != nil {
			log.Printf("Dropping connection for user %s: write failed: %v", c.UserID, err)
			c.Close()
		}
	}
}

func (r *Registry) snapshotUser(userID uuid.UUID) []*Client {
	targets := make([]*Client, 0, len(r.conns[userID]))
	for c := range r.conns[userID] {
		targets = append(targets, c)
	}
	return targets
}
