package scheduler

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/hamed0406/domainguard/internal/alerting"
	"github.com/hamed0406/domainguard/internal/domain"
)

var errNoExpiryDate = errors.New("target has no expiry date")

// sweepExpiry moves lapsed targets to expired and raises domain_expiry for
// targets inside a rule's threshold. A lapsed target gets a one-off expired
// notice through its domain_expiry rules and is marked expired only once
// that notice went through or was already logged.
func (s *Sweeper) sweepExpiry(ctx context.Context) (Summary, error) {
	targets, err := s.Store.ListActiveTargets(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("list active targets: %w", err)
	}
	now := s.now()

	t := &tally{}
	s.forEach(ctx, JobExpiry, t, len(targets),
		func(i int) (string, string) { return string(targets[i].ID), targets[i].Name },
		func(ctx context.Context, i int) error {
			tgt := targets[i]
			if tgt.ExpiresAt.IsZero() {
				return errNoExpiryDate
			}
			days := domain.DaysRemaining(tgt.ExpiresAt, now)
			expired := days <= 0

			tr := alerting.Trigger{
				Target:    tgt,
				Type:      domain.AlertDomainExpiry,
				Days:      days,
				ExpiresAt: tgt.ExpiresAt,
				Expired:   expired,
			}
			if err := s.fireRules(ctx, t, tr, func(rule domain.AlertRule) bool {
				return expired || days <= rule.DaysBeforeExpiry
			}); err != nil {
				// Leave the target active so the next run retries the notice;
				// expired targets drop out of ListActiveTargets.
				return err
			}

			if expired {
				if err := s.Store.MarkTargetExpired(ctx, tgt.ID); err != nil {
					return fmt.Errorf("mark expired: %w", err)
				}
				s.Logger.Info("target_marked_expired",
					zap.String("target_id", string(tgt.ID)),
					zap.String("domain", tgt.Name),
					zap.Int("days", days),
				)
			}
			return nil
		})
	return t.summary(len(targets))
}
