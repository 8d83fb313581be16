package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a referenced record does not exist.
var ErrNotFound = errors.New("not found")

// User represents a chat user. IsOnline is the persisted presence flag.
type User struct {
	ID        string
	Username  string
	Name      string
	IsBot     bool
	IsOnline  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DisplayName returns Name, falling back to Username.
func (u *User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Username
}

// Conversation groups participants and their messages.
type Conversation struct {
	ID        string
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// MessageType classifies message content.
type MessageType string

const (
	MessageTypeText  MessageType = "text"
	MessageTypeImage MessageType = "image"
	MessageTypeFile  MessageType = "file"
)

// Message represents a persisted chat message.
type Message struct {
	ID             string
	ConversationID string
	SenderID       string
	Content        string
	Type           MessageType
	CreatedAt      time.Time
}

// PresenceStore is the narrow surface the gateway needs for durable presence.
type PresenceStore interface {
	// GetUser returns ErrNotFound when the user does not exist.
	GetUser(ctx context.Context, id string) (*User, error)

	// SetOnline writes the persisted online flag.
	SetOnline(ctx context.Context, id string, online bool) error

	// ListOnline returns every user whose persisted flag is online, bots included.
	ListOnline(ctx context.Context) ([]*User, error)
}

// UserStore handles user persistence.
type UserStore interface {
	PresenceStore

	// CreateUser inserts a user with a generated id.
	CreateUser(ctx context.Context, username, name string, isBot bool) (*User, error)

	// GetUserByUsername returns ErrNotFound when no user has that username.
	GetUserByUsername(ctx context.Context, username string) (*User, error)

	// UpdateUserName changes the display name.
	UpdateUserName(ctx context.Context, id, name string) (*User, error)

	// ListUsers returns up to limit users after skipping offset, newest first.
	ListUsers(ctx context.Context, offset, limit int) ([]*User, error)

	// CountUsers returns the number of users.
	CountUsers(ctx context.Context) (int, error)
}

// ConversationStore handles conversation persistence.
type ConversationStore interface {
	// CreateConversation inserts a conversation and its participants.
	CreateConversation(ctx context.Context, title string, participantIDs []string) (*Conversation, error)

	// GetConversation returns ErrNotFound when the conversation does not exist.
	GetConversation(ctx context.Context, id string) (*Conversation, error)

	// TouchConversation bumps updated_at to now.
	TouchConversation(ctx context.Context, id string) error

	// ListParticipants returns the users taking part in a conversation.
	ListParticipants(ctx context.Context, conversationID string) ([]*User, error)

	// FindDirectConversation returns the conversation whose participants are
	// exactly a and b. It returns ErrNotFound when there is none.
	FindDirectConversation(ctx context.Context, a, b string) (*Conversation, error)

	// ListUserConversations returns the conversations userID takes part in,
	// most recently updated first.
	ListUserConversations(ctx context.Context, userID string) ([]*Conversation, error)
}

// MessageStore handles message persistence.
type MessageStore interface {
	// CreateMessage persists msg. ID and CreatedAt are filled when empty.
	CreateMessage(ctx context.Context, msg *Message) error

	// ListMessages returns the latest limit messages, oldest first.
	ListMessages(ctx context.Context, conversationID string, limit int) ([]*Message, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	ConversationStore
	MessageStore

	// Close closes the underlying database connection.
	Close() error
}
