package core

import (
	"sort"
	"sync"

	"github.com/samber/lo"
)

// Room groups connections subscribed to the same conversation.
type Room struct {
	Name  string
	conns map[string]Conn
}

// NewRoom constructs a room with no connections.
func NewRoom(name string) *Room {
	return &Room{
		Name:  name,
		conns: make(map[string]Conn),
	}
}

// AddConn inserts a connection into the room. Returns true if newly added.
func (r *Room) AddConn(c Conn) bool {
	if _, exists := r.conns[c.ID()]; exists {
		return false
	}
	r.conns[c.ID()] = c
	return true
}

// RemoveConn deletes a connection from the room. Returns true if removed.
func (r *Room) RemoveConn(id string) bool {
	if _, exists := r.conns[id]; !exists {
		return false
	}
	delete(r.conns, id)
	return true
}

// Empty returns true if no connections are in the room.
func (r *Room) Empty() bool {
	return len(r.conns) == 0
}

// Info returns the member count and sorted connection ids.
func (r *Room) Info() RoomInfo {
	ids := lo.Keys(r.conns)
	sort.Strings(ids)
	return RoomInfo{Count: len(ids), ConnectionIDs: ids}
}

// RoomManager tracks conversation rooms with a reverse index from connection
// to rooms, so a closing connection leaves all its rooms in one step.
// Rooms are created on first join and discarded when empty.
type RoomManager struct {
	mu     sync.RWMutex
	rooms  map[string]*Room
	byConn map[string]map[string]struct{}
}

// NewRoomManager returns an empty manager.
func NewRoomManager() *RoomManager {
	return &RoomManager{
		rooms:  make(map[string]*Room),
		byConn: make(map[string]map[string]struct{}),
	}
}

// Join adds conn to the room. Returns the resulting room info and whether
// conn was newly added.
func (m *RoomManager) Join(conversationID string, conn Conn) (RoomInfo, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	room, ok := m.rooms[conversationID]
	if !ok {
		room = NewRoom(conversationID)
		m.rooms[conversationID] = room
	}
	added := room.AddConn(conn)
	if added {
		joined, ok := m.byConn[conn.ID()]
		if !ok {
			joined = make(map[string]struct{})
			m.byConn[conn.ID()] = joined
		}
		joined[conversationID] = struct{}{}
	}
	return room.Info(), added
}

// Leave removes conn from the room. Unknown rooms and non-members are a no-op
// and report false.
func (m *RoomManager) Leave(conversationID, connID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.leaveLocked(conversationID, connID)
}

func (m *RoomManager) leaveLocked(conversationID, connID string) bool {
	room, ok := m.rooms[conversationID]
	if !ok || !room.RemoveConn(connID) {
		return false
	}
	if room.Empty() {
		delete(m.rooms, conversationID)
	}
	if joined, ok := m.byConn[connID]; ok {
		delete(joined, conversationID)
		if len(joined) == 0 {
			delete(m.byConn, connID)
		}
	}
	return true
}

// RemoveConn drops connID from every room and returns the rooms it left.
func (m *RoomManager) RemoveConn(connID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	joined := lo.Keys(m.byConn[connID])
	for _, conversationID := range joined {
		m.leaveLocked(conversationID, connID)
	}
	sort.Strings(joined)
	return joined
}

// Info returns the membership of a room. Unknown rooms report zero members.
func (m *RoomManager) Info(conversationID string) RoomInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	room, ok := m.rooms[conversationID]
	if !ok {
		return RoomInfo{ConnectionIDs: []string{}}
	}
	return room.Info()
}

// Members returns a snapshot of the room's connections.
func (m *RoomManager) Members(conversationID string) []Conn {
	m.mu.RLock()
	defer m.mu.RUnlock()

	room, ok := m.rooms[conversationID]
	if !ok {
		return nil
	}
	return lo.Values(room.conns)
}

// RoomsOf returns the sorted rooms conn is a member of.
func (m *RoomManager) RoomsOf(connID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rooms := lo.Keys(m.byConn[connID])
	sort.Strings(rooms)
	return rooms
}

// Count returns the number of non-empty rooms.
func (m *RoomManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms)
}
