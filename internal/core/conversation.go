package core

import (
	"context"
	"sort"

	"github.com/samber/lo"

	"github.com/vovakirdan/presence-gateway/internal/store"
)

// JoinConversation subscribes conn to a conversation room. Other members are
// told about the newcomer; the joiner gets the room info.
func (g *Gateway) JoinConversation(conn Conn, conversationID, userID string) RoomInfo {
	info, added := g.rooms.Join(conversationID, conn)
	g.updateGauges()

	if added {
		g.dispatch.BroadcastRoomExcept(conversationID, conn.ID(), EventUserJoined, RoomMember{
			ConversationID: conversationID,
			UserID:         userID,
		})
	}

	g.log.Info().Str("user_id", userID).Str("conversation_id", conversationID).Int("members", info.Count).Msg("joined conversation")
	g.dispatch.Send(conn, EventJoined, RoomJoined{ConversationID: conversationID, Room: info})
	return info
}

// LeaveConversation unsubscribes conn from a conversation room. Leaving a room
// conn is not in is a no-op.
func (g *Gateway) LeaveConversation(conn Conn, conversationID, userID string) bool {
	if !g.rooms.Leave(conversationID, conn.ID()) {
		g.log.Debug().Str("conn_id", conn.ID()).Str("conversation_id", conversationID).Msg("leave for non-member ignored")
		return false
	}
	g.updateGauges()

	g.log.Info().Str("user_id", userID).Str("conversation_id", conversationID).Msg("left conversation")
	if len(g.rooms.Members(conversationID)) > 0 {
		g.dispatch.BroadcastRoom(conversationID, EventUserLeft, RoomMember{
			ConversationID: conversationID,
			UserID:         userID,
		})
	}
	return true
}

// PublishMessage fans a created message out to the conversation room.
func (g *Gateway) PublishMessage(conversationID string, msg *store.Message) int {
	return g.dispatch.BroadcastRoom(conversationID, EventMessageNew, NewMessage{
		ConversationID: conversationID,
		Message:        msg,
	})
}

// SendOnlineUsers answers request:online_users with the registry view, the
// store view and their union.
func (g *Gateway) SendOnlineUsers(ctx context.Context, conn Conn) error {
	socket := g.OnlineUsers()

	records, err := g.store.ListOnline(ctx)
	if err != nil {
		g.log.Error().Err(err).Msg("failed to list online users")
		g.dispatch.Send(conn, EventUserError, coreError(ErrCodeStoreFailure, "Failed to get online users"))
		return err
	}
	db := lo.Map(records, func(u *store.User, _ int) string { return u.ID })
	sort.Strings(db)

	union := lo.Union(socket, db)
	sort.Strings(union)

	g.dispatch.Send(conn, EventOnlineUsers, OnlineUsers{
		UserIDs:         union,
		SocketConnected: socket,
		DBOnline:        db,
	})
	return nil
}
