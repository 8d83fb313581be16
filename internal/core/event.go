package core

import (
	"time"

	"github.com/vovakirdan/presence-gateway/internal/store"
)

// Inbound event names (client to gateway).
const (
	InboundUserOnline        = "user:online"
	InboundUserOffline       = "user:offline"
	InboundConversationJoin  = "conversation:join"
	InboundConversationLeave = "conversation:leave"
	InboundOnlineUsers       = "request:online_users"
)

// Outbound event names (gateway to clients).
const (
	EventOnlineConfirmed  = "user:online_confirmed"
	EventOfflineConfirmed = "user:offline_confirmed"
	EventUserError        = "user:error"
	EventStatusChanged    = "user:status_changed"
	EventJoined           = "conversation:joined"
	EventUserJoined       = "conversation:user_joined"
	EventUserLeft         = "conversation:user_left"
	EventConversationErr  = "conversation:error"
	EventMessageNew       = "message:new"
	EventOnlineUsers      = "online_users:current"
)

// Event is a named notification stamped with its delivery time.
// One Event value is shared by every recipient of a broadcast; treat it as immutable.
type Event struct {
	Name      string
	Data      any
	Timestamp time.Time
}

// UserStatus is carried by the confirmation and status_changed events.
type UserStatus struct {
	UserID   string
	IsOnline bool
}

// RoomInfo describes the current membership of a room.
type RoomInfo struct {
	Count         int
	ConnectionIDs []string
}

// RoomJoined acknowledges a conversation:join.
type RoomJoined struct {
	ConversationID string
	Room           RoomInfo
}

// RoomMember is carried by user_joined and user_left.
type RoomMember struct {
	ConversationID string
	UserID         string
}

// NewMessage is carried by message:new.
type NewMessage struct {
	ConversationID string
	Message        *store.Message
}

// OnlineUsers answers request:online_users.
type OnlineUsers struct {
	UserIDs         []string
	SocketConnected []string
	DBOnline        []string
}
