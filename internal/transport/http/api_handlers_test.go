package http

import (
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/presence-gateway/internal/auth"
	"github.com/vovakirdan/presence-gateway/internal/proto"
)

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t, "")

	resp := env.get(t, "/health", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	require.Equal(t, "ok", string(body))
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, "")

	resp := env.get(t, "/metrics", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	require.Contains(t, string(body), "gateway_active_connections")
}

func TestLoginOrRegister(t *testing.T) {
	env := newTestEnv(t, "")

	resp := env.postJSON(t, "/api/users/login", LoginRequest{Username: "alice", Name: "Alice"}, "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	first := decodeBody[LoginResponse](t, resp)
	require.True(t, first.Created)
	require.Equal(t, "alice", first.User.Username)
	require.Empty(t, first.Token, "no token without a secret")

	resp = env.postJSON(t, "/api/users/login", LoginRequest{Username: "alice"}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	again := decodeBody[LoginResponse](t, resp)
	require.False(t, again.Created)
	require.Equal(t, first.User.ID, again.User.ID)

	resp = env.postJSON(t, "/api/users/login", map[string]string{"name": "x"}, "")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestLoginIssuesTokenAndGuardsAPI(t *testing.T) {
	env := newTestEnv(t, "api-secret")

	resp := env.get(t, "/api/presence", "")
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = env.postJSON(t, "/api/users/login", LoginRequest{Username: "alice"}, "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	login := decodeBody[LoginResponse](t, resp)
	require.NotEmpty(t, login.Token)

	claims, err := auth.ValidateToken(env.jwt, login.Token)
	require.NoError(t, err)
	require.Equal(t, login.User.ID, claims.UserID)

	resp = env.get(t, "/api/presence", login.Token)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.get(t, "/api/presence", "not-a-token")
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestMessagesAPI(t *testing.T) {
	env := newTestEnv(t, "")
	ctx := context.Background()

	alice, err := env.store.CreateUser(ctx, "alice", "", false)
	require.NoError(t, err)
	bob, err := env.store.CreateUser(ctx, "bob", "", false)
	require.NoError(t, err)

	resp := env.postJSON(t, "/api/conversations", CreateConversationRequest{
		Title:          "pair",
		ParticipantIDs: []string{alice.ID, bob.ID},
	}, "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	conv := decodeBody[ConversationResponse](t, resp)

	// Nobody is in the room; creation still succeeds.
	resp = env.postJSON(t, "/api/messages", CreateMessageRequest{
		ConversationID: conv.ID,
		SenderID:       alice.ID,
		Content:        "first",
	}, "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decodeBody[proto.Message](t, resp)
	require.Equal(t, "first", created.Content)
	require.NotEmpty(t, created.CreatedAt)

	resp = env.postJSON(t, "/api/messages", CreateMessageRequest{
		ConversationID: conv.ID,
		SenderID:       bob.ID,
		Content:        "second",
		MessageType:    "image",
	}, "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = env.get(t, "/api/conversations/"+conv.ID+"/messages", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decodeBody[[]proto.Message](t, resp)
	require.Len(t, list, 2)
	require.Equal(t, "first", list[0].Content)
	require.Equal(t, "image", list[1].MessageType)

	resp = env.get(t, "/api/conversations/"+conv.ID+"/messages?limit=1", "")
	require.Len(t, decodeBody[[]proto.Message](t, resp), 1)

	resp = env.get(t, "/api/conversations/"+conv.ID+"/messages?limit=abc", "")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.get(t, "/api/conversations/missing/messages", "")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = env.postJSON(t, "/api/messages", CreateMessageRequest{
		ConversationID: "missing",
		SenderID:       alice.ID,
		Content:        "x",
	}, "")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = env.postJSON(t, "/api/messages", CreateMessageRequest{
		ConversationID: conv.ID,
		SenderID:       alice.ID,
		Content:        "x",
		MessageType:    "video",
	}, "")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPresenceAndRoomEndpoints(t *testing.T) {
	env := newTestEnv(t, "")

	resp := env.get(t, "/api/presence", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	presence := decodeBody[PresenceResponse](t, resp)
	require.Zero(t, presence.Count)
	require.NotNil(t, presence.UserIDs)

	resp = env.get(t, "/api/presence/someone", "")
	user := decodeBody[UserPresenceResponse](t, resp)
	require.Equal(t, "someone", user.UserID)
	require.False(t, user.IsOnline)

	resp = env.get(t, "/api/rooms/empty-room", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	room := decodeBody[proto.RoomInfo](t, resp)
	require.Zero(t, room.Count)
	require.Empty(t, room.ConnectionIDs)
}

func TestUserEndpoints(t *testing.T) {
	env := newTestEnv(t, "")
	ctx := context.Background()

	alice, err := env.store.CreateUser(ctx, "alice", "Alice", false)
	require.NoError(t, err)
	for _, name := range []string{"bob", "carol"} {
		_, err := env.store.CreateUser(ctx, name, "", false)
		require.NoError(t, err)
	}

	resp := env.get(t, "/api/username/alice/taken", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.True(t, decodeBody[UsernameTakenResponse](t, resp).Taken)

	resp = env.get(t, "/api/username/dave/taken", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.False(t, decodeBody[UsernameTakenResponse](t, resp).Taken)

	resp = env.get(t, "/api/users/"+alice.ID, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decodeBody[UserResponse](t, resp)
	require.Equal(t, "Alice", got.Name)

	resp = env.get(t, "/api/users/ghost", "")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = env.get(t, "/api/users?page=1&limit=2", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	page := decodeBody[UserListResponse](t, resp)
	require.Len(t, page.Users, 2)
	require.Equal(t, Pagination{Page: 1, Limit: 2, Total: 3, TotalPages: 2, HasNext: true}, page.Pagination)

	resp = env.get(t, "/api/users", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	page = decodeBody[UserListResponse](t, resp)
	require.Len(t, page.Users, 3)
	require.Equal(t, 10, page.Pagination.Limit)

	resp = env.get(t, "/api/users?page=x", "")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestConversationEndpoints(t *testing.T) {
	env := newTestEnv(t, "")
	ctx := context.Background()

	alice, err := env.store.CreateUser(ctx, "alice", "", false)
	require.NoError(t, err)
	bob, err := env.store.CreateUser(ctx, "bob", "", false)
	require.NoError(t, err)

	resp := env.postJSON(t, "/api/conversations/find-or-create", FindOrCreateConversationRequest{
		CurrentUserID: alice.ID,
		OtherUserID:   bob.ID,
	}, "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	direct := decodeBody[ConversationResponse](t, resp)

	resp = env.postJSON(t, "/api/conversations/find-or-create", FindOrCreateConversationRequest{
		CurrentUserID: bob.ID,
		OtherUserID:   alice.ID,
	}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, direct.ID, decodeBody[ConversationResponse](t, resp).ID)

	resp = env.postJSON(t, "/api/conversations/find-or-create", FindOrCreateConversationRequest{
		CurrentUserID: alice.ID,
		OtherUserID:   alice.ID,
	}, "")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.postJSON(t, "/api/conversations/find-or-create", FindOrCreateConversationRequest{
		CurrentUserID: alice.ID,
		OtherUserID:   "ghost",
	}, "")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = env.postJSON(t, "/api/conversations", CreateConversationRequest{
		ParticipantIDs: []string{alice.ID, "ghost"},
	}, "")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = env.get(t, "/api/conversations/user/"+bob.ID, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decodeBody[[]ConversationResponse](t, resp)
	require.Len(t, list, 1)
	require.Equal(t, direct.ID, list[0].ID)

	// The static segment does not shadow the message listing route.
	resp = env.get(t, "/api/conversations/"+direct.ID+"/messages", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.get(t, "/api/conversations/user/ghost", "")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}
