package conversations

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/samber/lo"

	"github.com/vovakirdan/presence-gateway/internal/store"
)

var (
	ErrInvalidConversation = errors.New("invalid conversation")
	ErrUserNotFound        = errors.New("user not found")
)

// Store is the persistence surface the conversation service needs.
type Store interface {
	GetUser(ctx context.Context, id string) (*store.User, error)
	CreateConversation(ctx context.Context, title string, participantIDs []string) (*store.Conversation, error)
	FindDirectConversation(ctx context.Context, a, b string) (*store.Conversation, error)
	ListUserConversations(ctx context.Context, userID string) ([]*store.Conversation, error)
}

// Service creates and looks up conversations.
type Service struct {
	store Store

	// directMu keeps concurrent find-or-create calls from opening two
	// conversations for the same pair.
	directMu sync.Mutex
}

// NewService creates a conversation service.
func NewService(st Store) *Service {
	return &Service{store: st}
}

// Create opens a conversation between participantIDs. Blank and repeated ids
// are dropped and every remaining participant must exist.
func (s *Service) Create(ctx context.Context, title string, participantIDs []string) (*store.Conversation, error) {
	ids := lo.Uniq(lo.Filter(lo.Map(participantIDs, func(id string, _ int) string {
		return strings.TrimSpace(id)
	}), func(id string, _ int) bool { return id != "" }))
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: at least one participant is required", ErrInvalidConversation)
	}
	if err := s.requireUsers(ctx, ids...); err != nil {
		return nil, err
	}

	conv, err := s.store.CreateConversation(ctx, strings.TrimSpace(title), ids)
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	return conv, nil
}

// FindOrCreateDirect returns the two-person conversation between currentID
// and otherID, opening one when none exists. created reports which happened.
func (s *Service) FindOrCreateDirect(ctx context.Context, currentID, otherID string) (*store.Conversation, bool, error) {
	currentID = strings.TrimSpace(currentID)
	otherID = strings.TrimSpace(otherID)
	if currentID == "" || otherID == "" {
		return nil, false, fmt.Errorf("%w: both users are required", ErrInvalidConversation)
	}
	if currentID == otherID {
		return nil, false, fmt.Errorf("%w: users must differ", ErrInvalidConversation)
	}
	if err := s.requireUsers(ctx, currentID, otherID); err != nil {
		return nil, false, err
	}

	s.directMu.Lock()
	defer s.directMu.Unlock()

	conv, err := s.store.FindDirectConversation(ctx, currentID, otherID)
	switch {
	case err == nil:
		return conv, false, nil
	case !errors.Is(err, store.ErrNotFound):
		return nil, false, fmt.Errorf("find direct conversation: %w", err)
	}

	conv, err = s.store.CreateConversation(ctx, "", []string{currentID, otherID})
	if err != nil {
		return nil, false, fmt.Errorf("create conversation: %w", err)
	}
	return conv, true, nil
}

// ListForUser returns the conversations userID takes part in, most recently
// updated first.
func (s *Service) ListForUser(ctx context.Context, userID string) ([]*store.Conversation, error) {
	if err := s.requireUsers(ctx, userID); err != nil {
		return nil, err
	}
	convs, err := s.store.ListUserConversations(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return convs, nil
}

func (s *Service) requireUsers(ctx context.Context, ids ...string) error {
	for _, id := range ids {
		if _, err := s.store.GetUser(ctx, id); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("%w: %s", ErrUserNotFound, id)
			}
			return fmt.Errorf("get user: %w", err)
		}
	}
	return nil
}
