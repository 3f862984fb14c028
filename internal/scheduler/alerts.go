package scheduler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/hamed0406/domainguard/internal/alerting"
	"github.com/hamed0406/domainguard/internal/domain"
)

// sweepAlerts matches domain_expiry rules against the registration date and
// ssl_expiry rules against the stored certificate. Only the expiring window
// 0 < days <= threshold fires here; lapsed dates belong to the expiry and
// certificate sweeps.
func (s *Sweeper) sweepAlerts(ctx context.Context) (Summary, error) {
	list, err := s.Store.ListTargetsWithCertificates(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("list targets with certificates: %w", err)
	}
	now := s.now()

	t := &tally{}
	s.forEach(ctx, JobAlerts, t, len(list),
		func(i int) (string, string) { return string(list[i].Target.ID), list[i].Target.Name },
		func(ctx context.Context, i int) error {
			tgt, cert := list[i].Target, list[i].Certificate
			var errs error

			if !tgt.ExpiresAt.IsZero() {
				errs = multierr.Append(errs, s.matchWindow(ctx, t, tgt, domain.AlertDomainExpiry, tgt.ExpiresAt, now))
			}
			if cert != nil && !cert.ValidUntil.IsZero() {
				errs = multierr.Append(errs, s.matchWindow(ctx, t, tgt, domain.AlertSSLExpiry, cert.ValidUntil, now))
			}
			return errs
		})
	return t.summary(len(list))
}

func (s *Sweeper) matchWindow(ctx context.Context, t *tally, tgt domain.Target, typ domain.AlertType, date, now time.Time) error {
	days := domain.DaysRemaining(date, now)
	if days <= 0 {
		return nil
	}
	return s.fireRules(ctx, t, alerting.Trigger{
		Target:    tgt,
		Type:      typ,
		Days:      days,
		ExpiresAt: date,
	}, func(rule domain.AlertRule) bool {
		return domain.EvaluateExpiry(date, now, rule.DaysBeforeExpiry).Urgency == domain.UrgencyExpiring
	})
}
