package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/benbjohnson/clock"

	"github.com/vovakirdan/presence-gateway/internal/store"
)

// pendingOffline is a cancellable grace-period task for one user. The map entry
// identity is the cancellation token: an expiring timer whose entry was
// removed or replaced does nothing.
type pendingOffline struct {
	timer *clock.Timer
}

// schedulePendingLocked starts the grace timer for user. Caller holds g.mu.
// Once the gateway has stopped no timer is started.
func (g *Gateway) schedulePendingLocked(user string) {
	g.cancelPendingLocked(user)
	if g.stopped {
		g.log.Debug().Str("user_id", user).Msg("gateway stopped, grace period not started")
		return
	}

	p := &pendingOffline{}
	p.timer = g.clock.AfterFunc(g.grace, func() { g.expirePending(user, p) })
	g.pending[user] = p
}

// cancelPendingLocked stops and forgets the grace timer for user. Caller holds g.mu.
func (g *Gateway) cancelPendingLocked(user string) bool {
	p, ok := g.pending[user]
	if !ok {
		return false
	}
	p.timer.Stop()
	delete(g.pending, user)
	return true
}

func (g *Gateway) expirePending(user string, p *pendingOffline) {
	g.mu.Lock()
	if g.pending[user] != p {
		g.mu.Unlock()
		return
	}
	delete(g.pending, user)
	rebound := g.registry.IsOnline(user)
	g.mu.Unlock()
	g.updateGauges()

	if rebound {
		g.log.Debug().Str("user_id", user).Msg("grace period expired after reconnect")
		return
	}

	ctx, cancel := g.detachedContext()
	defer cancel()
	if err := g.commitOffline(ctx, user, true); err != nil {
		g.log.Error().Err(err).Str("user_id", user).Msg("failed to commit offline after grace period")
	}
}

// stopPending cancels every grace timer and refuses new ones.
func (g *Gateway) stopPending() {
	g.mu.Lock()
	g.stopped = true
	for user := range g.pending {
		g.cancelPendingLocked(user)
	}
	g.mu.Unlock()
	g.updateGauges()
}

// Online binds conn to user and marks the user online.
func (g *Gateway) Online(ctx context.Context, conn Conn, userID string) error {
	user, err := g.store.GetUser(ctx, userID)
	if err != nil {
		return g.reportUserLookup(conn, userID, err, "Failed to set user online")
	}

	g.mu.Lock()
	g.cancelPendingLocked(userID)
	g.registry.Bind(userID, conn.ID())
	g.mu.Unlock()
	g.updateGauges()

	if !user.IsBot {
		g.writeMu.Lock()
		err := g.store.SetOnline(ctx, userID, true)
		g.writeMu.Unlock()
		if err != nil {
			g.log.Error().Err(err).Str("user_id", userID).Msg("failed to persist online status")
			g.dispatch.Send(conn, EventUserError, coreError(ErrCodeStoreFailure, "Failed to set user online"))
			return fmt.Errorf("set online %s: %w", userID, ErrStoreFailure)
		}
		g.broadcastStatus(conn.ID(), userID, true)
	}

	g.log.Info().Str("user_id", userID).Str("conn_id", conn.ID()).Bool("bot", user.IsBot).Msg("user is now online")
	g.dispatch.Send(conn, EventOnlineConfirmed, UserStatus{UserID: userID, IsOnline: true})
	return nil
}

// Offline commits user offline immediately, without a grace period.
func (g *Gateway) Offline(ctx context.Context, conn Conn, userID string) error {
	g.mu.Lock()
	g.cancelPendingLocked(userID)
	g.registry.UnbindByUser(userID)
	g.mu.Unlock()
	g.updateGauges()

	if err := g.commitOffline(ctx, userID, false); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			g.dispatch.Send(conn, EventUserError, coreError(ErrCodeNotFound, "User not found"))
		} else {
			g.dispatch.Send(conn, EventUserError, coreError(ErrCodeStoreFailure, "Failed to set user offline"))
		}
		return err
	}

	g.log.Info().Str("user_id", userID).Msg("user is now offline")
	g.dispatch.Send(conn, EventOfflineConfirmed, UserStatus{UserID: userID, IsOnline: false})
	return nil
}

// commitOffline persists offline and broadcasts it to every connection.
// Bots are exempt. With onlyIfOnline, a user already offline in the store is
// left alone, so a correction that got there first is not repeated, and so is
// a user who rebound while the commit waited for writeMu.
func (g *Gateway) commitOffline(ctx context.Context, userID string, onlyIfOnline bool) error {
	g.writeMu.Lock()
	defer g.writeMu.Unlock()

	if onlyIfOnline && g.IsOnline(userID) {
		g.log.Debug().Str("user_id", userID).Msg("user rebound before offline commit")
		return nil
	}

	user, err := g.store.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			g.log.Warn().Str("user_id", userID).Msg("offline commit for unknown user")
			return fmt.Errorf("commit offline %s: %w", userID, ErrUserNotFound)
		}
		return fmt.Errorf("commit offline %s: %w: %w", userID, ErrStoreFailure, err)
	}
	if user.IsBot {
		return nil
	}
	if onlyIfOnline && !user.IsOnline {
		g.log.Debug().Str("user_id", userID).Msg("user already offline in store")
		return nil
	}

	if err := g.store.SetOnline(ctx, userID, false); err != nil {
		return fmt.Errorf("commit offline %s: %w: %w", userID, ErrStoreFailure, err)
	}
	g.broadcastStatus("", userID, false)
	return nil
}

// broadcastStatus sends user:status_changed to every connection but exceptID.
func (g *Gateway) broadcastStatus(exceptID, userID string, online bool) {
	g.dispatch.BroadcastAllExcept(exceptID, EventStatusChanged, UserStatus{UserID: userID, IsOnline: online})
	state := "offline"
	if online {
		state = "online"
	}
	g.metrics.StatusBroadcasts.WithLabelValues(state).Inc()
}

func (g *Gateway) reportUserLookup(conn Conn, userID string, err error, failMsg string) error {
	if errors.Is(err, store.ErrNotFound) {
		g.log.Warn().Str("user_id", userID).Str("conn_id", conn.ID()).Msg("unknown user")
		g.dispatch.Send(conn, EventUserError, coreError(ErrCodeNotFound, "User not found"))
		return fmt.Errorf("user %s: %w", userID, ErrUserNotFound)
	}
	g.log.Error().Err(err).Str("user_id", userID).Msg("failed to load user")
	g.dispatch.Send(conn, EventUserError, coreError(ErrCodeStoreFailure, failMsg))
	return fmt.Errorf("load user %s: %w: %w", userID, ErrStoreFailure, err)
}
