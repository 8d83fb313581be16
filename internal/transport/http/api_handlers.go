package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/presence-gateway/internal/auth"
	"github.com/vovakirdan/presence-gateway/internal/core"
	"github.com/vovakirdan/presence-gateway/internal/proto"
	"github.com/vovakirdan/presence-gateway/internal/service/conversations"
	"github.com/vovakirdan/presence-gateway/internal/service/messages"
	"github.com/vovakirdan/presence-gateway/internal/service/users"
	"github.com/vovakirdan/presence-gateway/internal/store"
)

// APIHandlers provides HTTP handlers for REST API endpoints.
type APIHandlers struct {
	gateway  *core.Gateway
	messages *messages.Service
	users    *users.Service
	convs    *conversations.Service
	jwt      *auth.JWTConfig
	log      *zerolog.Logger
}

// NewAPIHandlers creates a new API handlers instance.
func NewAPIHandlers(deps Deps, logger *zerolog.Logger) *APIHandlers {
	return &APIHandlers{
		gateway:  deps.Gateway,
		messages: deps.Messages,
		users:    deps.Users,
		convs:    deps.Convs,
		jwt:      deps.JWT,
		log:      logger,
	}
}

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// LoginRequest represents the login-or-register request body.
type LoginRequest struct {
	Username string `json:"username" binding:"required,max=64"`
	Name     string `json:"name" binding:"max=128"`
}

// UserResponse is the wire form of a user.
type UserResponse struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Name      string `json:"name"`
	IsBot     bool   `json:"isBot"`
	IsOnline  bool   `json:"isOnline"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
}

// LoginResponse carries the user and, when auth is enabled, a token.
type LoginResponse struct {
	User    UserResponse `json:"user"`
	Created bool         `json:"created"`
	Token   string       `json:"token,omitempty"`
}

// CreateConversationRequest represents the conversation creation body.
type CreateConversationRequest struct {
	Title          string   `json:"title"`
	ParticipantIDs []string `json:"participantIds" binding:"required,min=1"`
}

// FindOrCreateConversationRequest names the two users of a direct conversation.
type FindOrCreateConversationRequest struct {
	CurrentUserID string `json:"currentUserId" binding:"required"`
	OtherUserID   string `json:"otherUserId" binding:"required"`
}

// ConversationResponse is the wire form of a conversation.
type ConversationResponse struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
}

// UsernameTakenResponse reports whether a username is in use.
type UsernameTakenResponse struct {
	Taken bool `json:"taken"`
}

// Pagination describes the position of a page in a listing.
type Pagination struct {
	Page       int  `json:"page"`
	Limit      int  `json:"limit"`
	Total      int  `json:"total"`
	TotalPages int  `json:"totalPages"`
	HasNext    bool `json:"hasNext"`
	HasPrev    bool `json:"hasPrev"`
}

// UserListResponse is one page of users.
type UserListResponse struct {
	Users      []UserResponse `json:"users"`
	Pagination Pagination     `json:"pagination"`
}

// CreateMessageRequest represents the message creation body.
type CreateMessageRequest struct {
	ConversationID string `json:"conversationId" binding:"required"`
	SenderID       string `json:"senderId" binding:"required"`
	Content        string `json:"content" binding:"required"`
	MessageType    string `json:"messageType"`
}

// PresenceResponse lists users with a live connection.
type PresenceResponse struct {
	Count   int      `json:"count"`
	UserIDs []string `json:"userIds"`
}

// UserPresenceResponse reports one user's live presence.
type UserPresenceResponse struct {
	UserID   string `json:"userId"`
	IsOnline bool   `json:"isOnline"`
}

// Health handles GET /health.
func (h *APIHandlers) Health(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

// Login signs a user in by username, creating the account on first use.
// POST /api/users/login
func (h *APIHandlers) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid login request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	user, created, err := h.users.LoginOrRegister(c.Request.Context(), req.Username, req.Name)
	if err != nil {
		if errors.Is(err, users.ErrInvalidUsername) {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
			return
		}
		h.log.Error().Err(err).Str("username", req.Username).Msg("failed to log in user")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	resp := LoginResponse{User: userToResponse(user), Created: created}
	if h.jwt.Enabled() {
		token, err := auth.GenerateToken(h.jwt, user.ID, user.Username)
		if err != nil {
			h.log.Error().Err(err).Str("user_id", user.ID).Msg("failed to sign token")
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
			return
		}
		resp.Token = token
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, resp)
}

// UsernameTaken handles GET /api/username/:username/taken.
func (h *APIHandlers) UsernameTaken(c *gin.Context) {
	taken, err := h.users.UsernameTaken(c.Request.Context(), c.Param("username"))
	if err != nil {
		h.writeUserError(c, err)
		return
	}
	c.JSON(http.StatusOK, UsernameTakenResponse{Taken: taken})
}

// ListUsers handles GET /api/users?page=&limit=.
func (h *APIHandlers) ListUsers(c *gin.Context) {
	page, ok := queryInt(c, "page")
	if !ok {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid page"})
		return
	}
	limit, ok := queryInt(c, "limit")
	if !ok {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid limit"})
		return
	}

	result, err := h.users.List(c.Request.Context(), page, limit)
	if err != nil {
		h.writeUserError(c, err)
		return
	}

	out := make([]UserResponse, 0, len(result.Users))
	for _, u := range result.Users {
		out = append(out, userToResponse(u))
	}
	c.JSON(http.StatusOK, UserListResponse{
		Users: out,
		Pagination: Pagination{
			Page:       result.Page,
			Limit:      result.Limit,
			Total:      result.Total,
			TotalPages: result.TotalPages,
			HasNext:    result.HasNext(),
			HasPrev:    result.HasPrev(),
		},
	})
}

// GetUser handles GET /api/users/:id.
func (h *APIHandlers) GetUser(c *gin.Context) {
	user, err := h.users.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeUserError(c, err)
		return
	}
	c.JSON(http.StatusOK, userToResponse(user))
}

// CreateConversation handles POST /api/conversations.
func (h *APIHandlers) CreateConversation(c *gin.Context) {
	var req CreateConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	conv, err := h.convs.Create(c.Request.Context(), req.Title, req.ParticipantIDs)
	if err != nil {
		h.writeConversationError(c, err)
		return
	}
	c.JSON(http.StatusCreated, conversationToResponse(conv))
}

// FindOrCreateConversation handles POST /api/conversations/find-or-create.
// It answers 201 when the conversation was opened and 200 when it existed.
func (h *APIHandlers) FindOrCreateConversation(c *gin.Context) {
	var req FindOrCreateConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	conv, created, err := h.convs.FindOrCreateDirect(c.Request.Context(), req.CurrentUserID, req.OtherUserID)
	if err != nil {
		h.writeConversationError(c, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, conversationToResponse(conv))
}

// UserConversations handles GET /api/conversations/user/:userId.
func (h *APIHandlers) UserConversations(c *gin.Context) {
	list, err := h.convs.ListForUser(c.Request.Context(), c.Param("userId"))
	if err != nil {
		h.writeConversationError(c, err)
		return
	}

	out := make([]ConversationResponse, 0, len(list))
	for _, conv := range list {
		out = append(out, conversationToResponse(conv))
	}
	c.JSON(http.StatusOK, out)
}

// CreateMessage handles POST /api/messages.
func (h *APIHandlers) CreateMessage(c *gin.Context) {
	var req CreateMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	msg, err := h.messages.Create(c.Request.Context(), messages.CreateInput{
		ConversationID: req.ConversationID,
		SenderID:       req.SenderID,
		Content:        req.Content,
		Type:           store.MessageType(req.MessageType),
	})
	if err != nil {
		h.writeMessageError(c, err)
		return
	}
	c.JSON(http.StatusCreated, messageToProto(msg))
}

// ListMessages handles GET /api/conversations/:id/messages.
func (h *APIHandlers) ListMessages(c *gin.Context) {
	limit, ok := queryInt(c, "limit")
	if !ok {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid limit"})
		return
	}

	list, err := h.messages.List(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		h.writeMessageError(c, err)
		return
	}

	out := make([]*proto.Message, 0, len(list))
	for _, msg := range list {
		out = append(out, messageToProto(msg))
	}
	c.JSON(http.StatusOK, out)
}

// OnlineUsers handles GET /api/presence.
func (h *APIHandlers) OnlineUsers(c *gin.Context) {
	ids := h.gateway.OnlineUsers()
	c.JSON(http.StatusOK, PresenceResponse{Count: len(ids), UserIDs: nonNil(ids)})
}

// UserPresence handles GET /api/presence/:userId.
func (h *APIHandlers) UserPresence(c *gin.Context) {
	userID := c.Param("userId")
	c.JSON(http.StatusOK, UserPresenceResponse{UserID: userID, IsOnline: h.gateway.IsOnline(userID)})
}

// RoomInfo handles GET /api/rooms/:id.
func (h *APIHandlers) RoomInfo(c *gin.Context) {
	c.JSON(http.StatusOK, roomInfoToProto(h.gateway.RoomInfo(c.Param("id"))))
}

func (h *APIHandlers) writeUserError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, users.ErrInvalidUsername):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	case errors.Is(err, users.ErrUserNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
	default:
		h.log.Error().Err(err).Msg("user request failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
	}
}

func (h *APIHandlers) writeConversationError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, conversations.ErrInvalidConversation):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	case errors.Is(err, conversations.ErrUserNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
	default:
		h.log.Error().Err(err).Msg("conversation request failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
	}
}

func (h *APIHandlers) writeMessageError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, messages.ErrInvalidMessage):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	case errors.Is(err, messages.ErrConversationNotFound), errors.Is(err, messages.ErrSenderNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
	default:
		h.log.Error().Err(err).Msg("message request failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
	}
}

func userToResponse(u *store.User) UserResponse {
	return UserResponse{
		ID:        u.ID,
		Username:  u.Username,
		Name:      u.Name,
		IsBot:     u.IsBot,
		IsOnline:  u.IsOnline,
		CreatedAt: formatTime(u.CreatedAt),
		UpdatedAt: formatTime(u.UpdatedAt),
	}
}

func conversationToResponse(conv *store.Conversation) ConversationResponse {
	return ConversationResponse{
		ID:        conv.ID,
		Title:     conv.Title,
		CreatedAt: formatTime(conv.CreatedAt),
		UpdatedAt: formatTime(conv.UpdatedAt),
	}
}

// queryInt reads a non-negative integer query parameter. Absent means 0.
func queryInt(c *gin.Context, key string) (int, bool) {
	raw := c.Query(key)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
