package http

import (
	"context"
	"encoding/json"
	"time"

	"github.com/vovakirdan/presence-gateway/internal/auth"
	"github.com/vovakirdan/presence-gateway/internal/core"
	"github.com/vovakirdan/presence-gateway/internal/proto"
	"github.com/vovakirdan/presence-gateway/internal/store"
)

// isoTimestamp matches the millisecond ISO-8601 form clients parse.
const isoTimestamp = "2006-01-02T15:04:05.000Z07:00"

// handleInbound routes one client event to the gateway. Failures are reported
// to this connection only.
func (h *WSHandler) handleInbound(ctx context.Context, s *session, in proto.Inbound) {
	switch in.Event {
	case core.InboundUserOnline, core.InboundUserOffline:
		var data proto.UserData
		if err := decode(in.Data, &data); err != nil || data.UserID == "" {
			h.reply(s, core.EventUserError, core.NewError(core.ErrCodeBadRequest, "userId is required"))
			return
		}
		if err := auth.CheckSubject(s.claims, data.UserID); err != nil {
			h.log.Warn().Err(err).Str("conn_id", s.client.ID()).Msg("presence event for foreign user")
			h.reply(s, core.EventUserError, core.NewError(core.ErrCodeUnauthorized, "Token does not match user"))
			return
		}
		var err error
		if in.Event == core.InboundUserOnline {
			err = h.gateway.Online(ctx, s.client, data.UserID)
		} else {
			err = h.gateway.Offline(ctx, s.client, data.UserID)
		}
		if err != nil {
			h.log.Debug().Err(err).Str("event", in.Event).Str("user_id", data.UserID).Msg("presence event failed")
		}

	case core.InboundConversationJoin, core.InboundConversationLeave:
		var data proto.ConversationData
		if err := decode(in.Data, &data); err != nil || data.ConversationID == "" || data.UserID == "" {
			h.reply(s, core.EventConversationErr, core.NewError(core.ErrCodeBadRequest, "conversationId and userId are required"))
			return
		}
		if err := auth.CheckSubject(s.claims, data.UserID); err != nil {
			h.reply(s, core.EventConversationErr, core.NewError(core.ErrCodeUnauthorized, "Token does not match user"))
			return
		}
		if in.Event == core.InboundConversationJoin {
			h.gateway.JoinConversation(s.client, data.ConversationID, data.UserID)
		} else {
			h.gateway.LeaveConversation(s.client, data.ConversationID, data.UserID)
		}

	case core.InboundOnlineUsers:
		_ = h.gateway.SendOnlineUsers(ctx, s.client)

	default:
		h.reply(s, core.EventUserError, core.NewError(core.ErrCodeBadRequest, "unknown event"))
	}
}

func decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return core.ErrBadRequest
	}
	return json.Unmarshal(raw, v)
}

func outboundFromEvent(ev *core.Event) proto.Outbound {
	ts := formatTime(ev.Timestamp)

	switch data := ev.Data.(type) {
	case core.UserStatus:
		return proto.Outbound{Event: ev.Name, Data: proto.UserStatus{
			UserID:    data.UserID,
			IsOnline:  data.IsOnline,
			Timestamp: ts,
		}}
	case core.RoomJoined:
		return proto.Outbound{Event: ev.Name, Data: proto.Joined{
			ConversationID: data.ConversationID,
			RoomInfo:       roomInfoToProto(data.Room),
			Timestamp:      ts,
		}}
	case core.RoomMember:
		return proto.Outbound{Event: ev.Name, Data: proto.Member{
			ConversationID: data.ConversationID,
			UserID:         data.UserID,
			Timestamp:      ts,
		}}
	case core.NewMessage:
		return proto.Outbound{Event: ev.Name, Data: proto.NewMessage{
			ConversationID: data.ConversationID,
			Message:        messageToProto(data.Message),
			Timestamp:      ts,
		}}
	case core.OnlineUsers:
		return proto.Outbound{Event: ev.Name, Data: proto.OnlineUsers{
			UserIDs:         nonNil(data.UserIDs),
			SocketConnected: nonNil(data.SocketConnected),
			DBOnline:        nonNil(data.DBOnline),
			Timestamp:       ts,
		}}
	case *core.CoreError:
		return proto.Outbound{Event: ev.Name, Data: proto.Error{Message: data.Message, Code: data.Code}}
	default:
		return proto.Outbound{Event: ev.Name, Data: data}
	}
}

func roomInfoToProto(info core.RoomInfo) proto.RoomInfo {
	return proto.RoomInfo{Count: info.Count, ConnectionIDs: nonNil(info.ConnectionIDs)}
}

func messageToProto(msg *store.Message) *proto.Message {
	if msg == nil {
		return nil
	}
	return &proto.Message{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		Content:        msg.Content,
		MessageType:    string(msg.Type),
		CreatedAt:      formatTime(msg.CreatedAt),
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(isoTimestamp)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
