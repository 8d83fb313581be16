package core

import (
	"context"
	"errors"
	"sort"

	"github.com/samber/lo"

	"github.com/vovakirdan/presence-gateway/internal/store"
)

// ReconcileResult reports the corrections applied by one tick.
type ReconcileResult struct {
	MarkedOffline []string
	MarkedOnline  []string
	Failed        []string
}

// Corrections returns the number of successful corrections.
func (r ReconcileResult) Corrections() int {
	return len(r.MarkedOffline) + len(r.MarkedOnline)
}

// Reconcile repairs drift between the registry and the persisted online flag.
// Users inside the grace period are already unbound and count as offline.
func (g *Gateway) Reconcile(ctx context.Context) ReconcileResult {
	var result ReconcileResult

	socketOnline := g.OnlineUsers()

	records, err := g.store.ListOnline(ctx)
	if err != nil {
		g.log.Error().Err(err).Msg("reconcile: failed to list online users")
		return result
	}
	dbOnline := lo.FilterMap(records, func(u *store.User, _ int) (string, bool) {
		return u.ID, !u.IsBot
	})

	staleOnline, unpersisted := lo.Difference(dbOnline, socketOnline)
	sort.Strings(staleOnline)
	sort.Strings(unpersisted)

	for _, userID := range staleOnline {
		changed, err := g.correct(ctx, userID, false)
		switch {
		case err != nil:
			g.log.Error().Err(err).Str("user_id", userID).Msg("reconcile: failed to mark offline")
			result.Failed = append(result.Failed, userID)
		case changed:
			result.MarkedOffline = append(result.MarkedOffline, userID)
		}
	}

	for _, userID := range unpersisted {
		changed, err := g.correct(ctx, userID, true)
		switch {
		case err != nil:
			g.log.Error().Err(err).Str("user_id", userID).Msg("reconcile: failed to mark online")
			result.Failed = append(result.Failed, userID)
		case changed:
			result.MarkedOnline = append(result.MarkedOnline, userID)
		}
	}

	if result.Corrections() > 0 || len(result.Failed) > 0 {
		g.log.Info().
			Strs("marked_offline", result.MarkedOffline).
			Strs("marked_online", result.MarkedOnline).
			Int("failed", len(result.Failed)).
			Msg("reconcile: presence drift corrected")
	}
	return result
}

// correct forces the persisted flag of one user to the given state. It re-checks the
// registry and the record first, since a live event may have fixed the drift
// after the tick took its snapshot. Bots are never written.
func (g *Gateway) correct(ctx context.Context, userID string, online bool) (bool, error) {
	g.writeMu.Lock()
	defer g.writeMu.Unlock()

	if g.IsOnline(userID) != online {
		return false, nil
	}

	user, err := g.store.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, ErrUserNotFound
		}
		return false, err
	}
	if user.IsBot || user.IsOnline == online {
		return false, nil
	}

	if err := g.store.SetOnline(ctx, userID, online); err != nil {
		return false, err
	}
	direction := "offline"
	if online {
		direction = "online"
	}
	g.metrics.Corrections.WithLabelValues(direction).Inc()
	g.broadcastStatus("", userID, online)
	return true, nil
}
