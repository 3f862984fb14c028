// Package alerting turns sweep findings into notifications. Every trigger
// passes the deduplication gate, is rendered once, dispatched on the rule's
// channels and recorded in the notification log.
package alerting

import (
	"context"
	"fmt"
	"time"

	"github.com/hamed0406/domainguard/internal/domain"
	"github.com/hamed0406/domainguard/internal/repo"
)

// Cooldown is the minimum spacing between two notifications for the same
// (target, alert type) pair. Channels are not part of the key.
const Cooldown = 24 * time.Hour

// Gate answers whether a trigger must be suppressed, using the notification
// log as its only state.
type Gate struct {
	Log repo.NotificationLog
	Now func() time.Time
}

func NewGate(log repo.NotificationLog) *Gate {
	return &Gate{Log: log, Now: time.Now}
}

func (g *Gate) now() time.Time {
	if g.Now == nil {
		return time.Now().UTC()
	}
	return g.Now().UTC()
}

// Suppressed reports whether a notification for (id, t) was logged within
// the last Cooldown.
func (g *Gate) Suppressed(ctx context.Context, id domain.TargetID, t domain.AlertType) (bool, error) {
	since := g.now().Add(-Cooldown)
	recent, err := g.Log.HasRecentNotification(ctx, id, t, since)
	if err != nil {
		return false, fmt.Errorf("recent notification lookup for %s/%s: %w", id, t, err)
	}
	return recent, nil
}
