package core

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/presence-gateway/internal/metrics"
	"github.com/vovakirdan/presence-gateway/internal/store"
)

const (
	DefaultGracePeriod       = 5 * time.Second
	DefaultReconcileInterval = 30 * time.Second
	DefaultStoreTimeout      = 5 * time.Second
)

// Options configures a Gateway. Zero values fall back to defaults.
type Options struct {
	GracePeriod       time.Duration
	ReconcileInterval time.Duration
	// StoreTimeout bounds store calls made outside a request, such as grace
	// period expiry.
	StoreTimeout time.Duration
	Clock        clock.Clock
	Logger       *zerolog.Logger
	Metrics      *metrics.Metrics
}

// Gateway owns the process-wide presence state: the connection registry,
// pending-offline timers, rooms and the dispatcher.
type Gateway struct {
	store store.PresenceStore

	// mu guards registry, pending and stopped. In-memory transitions complete
	// under mu before any store call is issued.
	mu       sync.Mutex
	registry *Registry
	pending  map[string]*pendingOffline
	stopped  bool

	// writeMu serializes persisted presence writes so that a grace expiry and
	// a reconciliation correction for the same user cannot both commit.
	writeMu sync.Mutex

	rooms    *RoomManager
	dispatch *Dispatcher

	grace        time.Duration
	interval     time.Duration
	storeTimeout time.Duration
	clock        clock.Clock
	log          *zerolog.Logger
	metrics      *metrics.Metrics

	running atomic.Bool
}

// NewGateway creates a gateway backed by the given presence store.
func NewGateway(st store.PresenceStore, opts Options) *Gateway {
	if opts.GracePeriod <= 0 {
		opts.GracePeriod = DefaultGracePeriod
	}
	if opts.ReconcileInterval <= 0 {
		opts.ReconcileInterval = DefaultReconcileInterval
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = DefaultStoreTimeout
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger == nil {
		nop := zerolog.Nop()
		opts.Logger = &nop
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}

	rooms := NewRoomManager()
	return &Gateway{
		store:        st,
		registry:     NewRegistry(),
		pending:      make(map[string]*pendingOffline),
		rooms:        rooms,
		dispatch:     NewDispatcher(rooms, opts.Clock, opts.Logger, opts.Metrics),
		grace:        opts.GracePeriod,
		interval:     opts.ReconcileInterval,
		storeTimeout: opts.StoreTimeout,
		clock:        opts.Clock,
		log:          opts.Logger,
		metrics:      opts.Metrics,
	}
}

// Dispatcher exposes the broadcast dispatcher.
func (g *Gateway) Dispatcher() *Dispatcher {
	return g.dispatch
}

// Run drives the reconciliation loop until ctx is cancelled. Only one Run may
// be active per gateway; extra calls return immediately.
func (g *Gateway) Run(ctx context.Context) {
	if !g.running.CompareAndSwap(false, true) {
		g.log.Warn().Msg("reconciliation loop already running")
		return
	}
	defer g.running.Store(false)

	g.mu.Lock()
	g.stopped = false
	g.mu.Unlock()

	ticker := g.clock.Ticker(g.interval)
	defer ticker.Stop()

	g.log.Info().Dur("interval", g.interval).Dur("grace_period", g.grace).Msg("presence gateway started")
	for {
		select {
		case <-ctx.Done():
			g.stopPending()
			g.log.Info().Msg("presence gateway stopped")
			return
		case <-ticker.C:
			g.Reconcile(ctx)
		}
	}
}

// Connect registers a new transport connection.
func (g *Gateway) Connect(c Conn) {
	g.dispatch.Add(c)
	g.log.Debug().Str("conn_id", c.ID()).Msg("client connected")
}

// Disconnect handles a transport-level close without an explicit offline
// event. The connection leaves all rooms; if it was bound to a user, that user
// enters the grace period.
func (g *Gateway) Disconnect(c Conn) {
	g.dispatch.Remove(c.ID())
	left := g.rooms.RemoveConn(c.ID())

	g.mu.Lock()
	user, ok := g.registry.UnbindByConnection(c.ID())
	if ok {
		g.schedulePendingLocked(user)
	}
	g.mu.Unlock()
	g.updateGauges()

	ev := g.log.Debug().Str("conn_id", c.ID()).Strs("rooms", left)
	if ok {
		ev = ev.Str("user_id", user)
	}
	ev.Msg("client disconnected")
}

// IsOnline reports whether user has a live bound connection.
func (g *Gateway) IsOnline(user string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.registry.IsOnline(user)
}

// OnlineUsers returns the sorted users with a bound connection.
func (g *Gateway) OnlineUsers() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.registry.Users()
}

// OnlineCount returns the number of bound users.
func (g *Gateway) OnlineCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.registry.Count()
}

// PendingCount returns the number of users inside the grace period.
func (g *Gateway) PendingCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.pending)
}

// RoomInfo returns the membership of a conversation room.
func (g *Gateway) RoomInfo(conversationID string) RoomInfo {
	return g.rooms.Info(conversationID)
}

func (g *Gateway) updateGauges() {
	g.mu.Lock()
	bound, pending := g.registry.Count(), len(g.pending)
	g.mu.Unlock()

	g.metrics.BoundUsers.Set(float64(bound))
	g.metrics.PendingOffline.Set(float64(pending))
	g.metrics.Rooms.Set(float64(g.rooms.Count()))
}

func (g *Gateway) detachedContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), g.storeTimeout)
}
