package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/vovakirdan/presence-gateway/internal/store"
)

const (
	defaultPage  = 1
	defaultLimit = 10
	maxLimit     = 100
)

var (
	// ErrInvalidUsername is returned for blank usernames.
	ErrInvalidUsername = errors.New("username is required")
	ErrUserNotFound    = errors.New("user not found")
)

// Store is the persistence surface for user sign-in.
type Store interface {
	CreateUser(ctx context.Context, username, name string, isBot bool) (*store.User, error)
	GetUserByUsername(ctx context.Context, username string) (*store.User, error)
	UpdateUserName(ctx context.Context, id, name string) (*store.User, error)
	GetUser(ctx context.Context, id string) (*store.User, error)
	ListUsers(ctx context.Context, offset, limit int) ([]*store.User, error)
	CountUsers(ctx context.Context) (int, error)
}

// Page is one page of users with its position in the full listing.
type Page struct {
	Users      []*store.User
	Page       int
	Limit      int
	Total      int
	TotalPages int
}

// HasNext reports whether a later page exists.
func (p *Page) HasNext() bool { return p.Page < p.TotalPages }

// HasPrev reports whether an earlier page exists.
func (p *Page) HasPrev() bool { return p.Page > 1 }

// Service signs users in by username.
type Service struct {
	store Store
}

// NewService creates a users service.
func NewService(st Store) *Service {
	return &Service{store: st}
}

// LoginOrRegister returns the user with username, creating it when absent.
// A non-empty name that differs from the stored one replaces it.
func (s *Service) LoginOrRegister(ctx context.Context, username, name string) (*store.User, bool, error) {
	username = strings.TrimSpace(username)
	name = strings.TrimSpace(name)
	if username == "" {
		return nil, false, ErrInvalidUsername
	}

	existing, err := s.store.GetUserByUsername(ctx, username)
	switch {
	case err == nil:
		if name != "" && name != existing.Name {
			updated, err := s.store.UpdateUserName(ctx, existing.ID, name)
			if err != nil {
				return nil, false, fmt.Errorf("update name: %w", err)
			}
			return updated, false, nil
		}
		return existing, false, nil
	case errors.Is(err, store.ErrNotFound):
		created, err := s.store.CreateUser(ctx, username, name, false)
		if err != nil {
			return nil, false, fmt.Errorf("create user: %w", err)
		}
		return created, true, nil
	default:
		return nil, false, fmt.Errorf("get user: %w", err)
	}
}

// Get returns the user with id.
func (s *Service) Get(ctx context.Context, id string) (*store.User, error) {
	user, err := s.store.GetUser(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUserNotFound, id)
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

// UsernameTaken reports whether some user already holds username.
func (s *Service) UsernameTaken(ctx context.Context, username string) (bool, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return false, ErrInvalidUsername
	}
	_, err := s.store.GetUserByUsername(ctx, username)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, store.ErrNotFound):
		return false, nil
	default:
		return false, fmt.Errorf("get user: %w", err)
	}
}

// List returns the page-th page of users, newest first. Pages count from 1
// and non-positive arguments fall back to the first page of ten.
func (s *Service) List(ctx context.Context, page, limit int) (*Page, error) {
	if page <= 0 {
		page = defaultPage
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	limit = min(limit, maxLimit)

	total, err := s.store.CountUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("count users: %w", err)
	}
	list, err := s.store.ListUsers(ctx, (page-1)*limit, limit)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	return &Page{
		Users:      list,
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: (total + limit - 1) / limit,
	}, nil
}
