package core

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/vovakirdan/presence-gateway/internal/store"
)

func mustEvent(t *testing.T, c *Client, name string) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-c.Events:
			if ev == nil {
				continue
			}
			if ev.Name == name {
				return ev
			}
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
	t.Fatalf("expected event %s not received by %s", name, c.ID())
	return nil
}

// drain returns every event currently buffered for c.
func drain(c *Client) []*Event {
	var out []*Event
	for {
		select {
		case ev := <-c.Events:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func named(events []*Event, name string) []*Event {
	var out []*Event
	for _, ev := range events {
		if ev.Name == name {
			out = append(out, ev)
		}
	}
	return out
}

type presenceWrite struct {
	UserID string
	Online bool
}

// fakeStore is an in-memory store.PresenceStore with failure injection.
type fakeStore struct {
	mu      sync.Mutex
	users   map[string]*store.User
	writes  []presenceWrite
	failSet map[string]error
	failGet map[string]error
	listErr error
}

func newFakeStore(users ...*store.User) *fakeStore {
	st := &fakeStore{
		users:   make(map[string]*store.User),
		failSet: make(map[string]error),
		failGet: make(map[string]error),
	}
	for _, u := range users {
		st.users[u.ID] = u
	}
	return st
}

func human(id string) *store.User { return &store.User{ID: id, Username: id} }

func bot(id string) *store.User { return &store.User{ID: id, Username: id, IsBot: true} }

func (f *fakeStore) GetUser(_ context.Context, id string) (*store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failGet[id]; err != nil {
		return nil, err
	}
	u, ok := f.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, store.ErrNotFound)
	}
	cp := *u
	return &cp, nil
}

func (f *fakeStore) SetOnline(_ context.Context, id string, online bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failSet[id]; err != nil {
		return err
	}
	u, ok := f.users[id]
	if !ok {
		return fmt.Errorf("user %s: %w", id, store.ErrNotFound)
	}
	u.IsOnline = online
	f.writes = append(f.writes, presenceWrite{UserID: id, Online: online})
	return nil
}

func (f *fakeStore) ListOnline(_ context.Context) ([]*store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []*store.User
	for _, u := range f.users {
		if u.IsOnline {
			cp := *u
			out = append(out, &cp)
		}
	}
	return out, nil
}

// setFlag changes the persisted flag without recording a write.
func (f *fakeStore) setFlag(id string, online bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[id].IsOnline = online
}

func (f *fakeStore) failWrites(id string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failSet[id] = err
}

func (f *fakeStore) writesFor(id string) []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []bool
	for _, w := range f.writes {
		if w.UserID == id {
			out = append(out, w.Online)
		}
	}
	return out
}

func (f *fakeStore) writeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.writes)
}

func newTestGateway(t testing.TB, st store.PresenceStore) (*Gateway, *clock.Mock) {
	t.Helper()

	mock := clock.NewMock()
	g := NewGateway(st, Options{
		GracePeriod:       5 * time.Second,
		ReconcileInterval: 30 * time.Second,
		Clock:             mock,
	})
	return g, mock
}

func connect(g *Gateway, id string) *Client {
	c := NewClient(id, 64)
	g.Connect(c)
	return c
}
