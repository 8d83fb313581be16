package proto

import "encoding/json"

// Inbound is the envelope for events coming from the client.
type Inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// UserData is carried by user:online and user:offline.
type UserData struct {
	UserID string `json:"userId"`
}

// ConversationData is carried by conversation:join and conversation:leave.
type ConversationData struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
}

// Outbound is the envelope for events sent to the client.
type Outbound struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// UserStatus answers user:online and user:offline and is broadcast as
// user:status_changed.
type UserStatus struct {
	UserID    string `json:"userId"`
	IsOnline  bool   `json:"isOnline"`
	Timestamp string `json:"timestamp"`
}

// RoomInfo describes room membership.
type RoomInfo struct {
	Count         int      `json:"count"`
	ConnectionIDs []string `json:"connectionIds"`
}

// Joined acknowledges conversation:join.
type Joined struct {
	ConversationID string   `json:"conversationId"`
	RoomInfo       RoomInfo `json:"roomInfo"`
	Timestamp      string   `json:"timestamp"`
}

// Member is carried by conversation:user_joined and conversation:user_left.
type Member struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
	Timestamp      string `json:"timestamp"`
}

// Message is the wire form of a persisted chat message.
type Message struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversationId"`
	SenderID       string `json:"senderId"`
	Content        string `json:"content"`
	MessageType    string `json:"messageType"`
	CreatedAt      string `json:"createdAt"`
}

// NewMessage is carried by message:new.
type NewMessage struct {
	ConversationID string   `json:"conversationId"`
	Message        *Message `json:"message"`
	Timestamp      string   `json:"timestamp"`
}

// OnlineUsers is carried by online_users:current.
type OnlineUsers struct {
	UserIDs         []string `json:"userIds"`
	SocketConnected []string `json:"socketConnected"`
	DBOnline        []string `json:"dbOnline"`
	Timestamp       string   `json:"timestamp"`
}

// Error is carried by user:error and conversation:error.
type Error struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}
