package messages

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/presence-gateway/internal/store"
)

const (
	defaultListLimit    = 50
	defaultReplyTimeout = 30 * time.Second
)

var (
	ErrInvalidMessage       = errors.New("invalid message")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrSenderNotFound       = errors.New("sender not found")
)

// Store is the persistence surface the message service needs.
type Store interface {
	GetUser(ctx context.Context, id string) (*store.User, error)
	GetConversation(ctx context.Context, id string) (*store.Conversation, error)
	TouchConversation(ctx context.Context, id string) error
	CreateMessage(ctx context.Context, msg *store.Message) error
	ListMessages(ctx context.Context, conversationID string, limit int) ([]*store.Message, error)
}

// Publisher fans a message out to the conversation room.
type Publisher interface {
	PublishMessage(conversationID string, msg *store.Message) int
}

// Replier may answer a user message on behalf of a bot participant.
type Replier interface {
	MaybeReply(ctx context.Context, conversationID, senderID string) (*store.Message, error)
}

// CreateInput is a request to post a message.
type CreateInput struct {
	ConversationID string
	SenderID       string
	Content        string
	Type           store.MessageType
}

// Service creates messages and triggers bot replies.
type Service struct {
	store        Store
	publisher    Publisher
	replier      Replier
	replyTimeout time.Duration
	log          *zerolog.Logger

	wg sync.WaitGroup
}

// NewService builds a message service. replier may be nil to disable replies.
func NewService(st Store, publisher Publisher, replier Replier, replyTimeout time.Duration, logger *zerolog.Logger) *Service {
	if replyTimeout <= 0 {
		replyTimeout = defaultReplyTimeout
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Service{
		store:        st,
		publisher:    publisher,
		replier:      replier,
		replyTimeout: replyTimeout,
		log:          logger,
	}
}

// Create validates and persists a message, broadcasts it to the room and
// starts reply generation in the background.
func (s *Service) Create(ctx context.Context, in CreateInput) (*store.Message, error) {
	msgType, err := validate(&in)
	if err != nil {
		return nil, err
	}

	if _, err := s.store.GetConversation(ctx, in.ConversationID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("conversation %s: %w", in.ConversationID, ErrConversationNotFound)
		}
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	if _, err := s.store.GetUser(ctx, in.SenderID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("sender %s: %w", in.SenderID, ErrSenderNotFound)
		}
		return nil, fmt.Errorf("get sender: %w", err)
	}

	msg := &store.Message{
		ConversationID: in.ConversationID,
		SenderID:       in.SenderID,
		Content:        in.Content,
		Type:           msgType,
	}
	if err := s.store.CreateMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}
	if err := s.store.TouchConversation(ctx, in.ConversationID); err != nil {
		s.log.Warn().Err(err).Str("conversation_id", in.ConversationID).Msg("failed to touch conversation")
	}

	delivered := s.publisher.PublishMessage(in.ConversationID, msg)
	s.log.Debug().
		Str("conversation_id", in.ConversationID).
		Str("message_id", msg.ID).
		Int("delivered", delivered).
		Msg("message created")

	if s.replier != nil {
		s.wg.Add(1)
		go s.reply(in.ConversationID, in.SenderID)
	}
	return msg, nil
}

// List returns the latest messages of a conversation, oldest first.
func (s *Service) List(ctx context.Context, conversationID string, limit int) ([]*store.Message, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if _, err := s.store.GetConversation(ctx, conversationID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("conversation %s: %w", conversationID, ErrConversationNotFound)
		}
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return s.store.ListMessages(ctx, conversationID, limit)
}

// Wait blocks until every background reply has finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

// reply runs detached from the request that created the message.
func (s *Service) reply(conversationID, senderID string) {
	defer s.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), s.replyTimeout)
	defer cancel()

	msg, err := s.replier.MaybeReply(ctx, conversationID, senderID)
	if err != nil {
		s.log.Error().Err(err).Str("conversation_id", conversationID).Msg("reply generation failed")
		return
	}
	if msg == nil {
		return
	}
	s.publisher.PublishMessage(conversationID, msg)
}

func validate(in *CreateInput) (store.MessageType, error) {
	in.ConversationID = strings.TrimSpace(in.ConversationID)
	in.SenderID = strings.TrimSpace(in.SenderID)
	switch {
	case in.ConversationID == "":
		return "", fmt.Errorf("%w: conversationId is required", ErrInvalidMessage)
	case in.SenderID == "":
		return "", fmt.Errorf("%w: senderId is required", ErrInvalidMessage)
	case strings.TrimSpace(in.Content) == "":
		return "", fmt.Errorf("%w: content is required", ErrInvalidMessage)
	}

	switch in.Type {
	case "":
		return store.MessageTypeText, nil
	case store.MessageTypeText, store.MessageTypeImage, store.MessageTypeFile:
		return in.Type, nil
	default:
		return "", fmt.Errorf("%w: unknown message type %q", ErrInvalidMessage, in.Type)
	}
}
