package core

import (
	"sort"

	"github.com/samber/lo"
)

// Registry maps users to their presence-authoritative connection and back.
// Entries are always added and removed as pairs. Registry is not safe for
// concurrent use; the Gateway serializes access.
type Registry struct {
	byUser map[string]string
	byConn map[string]string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byUser: make(map[string]string),
		byConn: make(map[string]string),
	}
}

// Bind makes conn the connection of user. A previous connection of the user
// is dropped silently, as is a previous user of conn.
func (r *Registry) Bind(user, conn string) {
	if old, ok := r.byUser[user]; ok {
		delete(r.byConn, old)
	}
	if prev, ok := r.byConn[conn]; ok {
		delete(r.byUser, prev)
	}
	r.byUser[user] = conn
	r.byConn[conn] = user
}

// UnbindByConnection removes the pair containing conn.
func (r *Registry) UnbindByConnection(conn string) (string, bool) {
	user, ok := r.byConn[conn]
	if !ok {
		return "", false
	}
	delete(r.byConn, conn)
	delete(r.byUser, user)
	return user, true
}

// UnbindByUser removes the pair for user, if present.
func (r *Registry) UnbindByUser(user string) {
	conn, ok := r.byUser[user]
	if !ok {
		return
	}
	delete(r.byUser, user)
	delete(r.byConn, conn)
}

// IsOnline reports whether user has a bound connection.
func (r *Registry) IsOnline(user string) bool {
	_, ok := r.byUser[user]
	return ok
}

// ConnectionOf returns the bound connection of user.
func (r *Registry) ConnectionOf(user string) (string, bool) {
	conn, ok := r.byUser[user]
	return conn, ok
}

// UserOf returns the user bound to conn.
func (r *Registry) UserOf(conn string) (string, bool) {
	user, ok := r.byConn[conn]
	return user, ok
}

// Count returns the number of bound users.
func (r *Registry) Count() int {
	return len(r.byUser)
}

// Users returns a sorted snapshot of bound user ids.
func (r *Registry) Users() []string {
	users := lo.Keys(r.byUser)
	sort.Strings(users)
	return users
}
