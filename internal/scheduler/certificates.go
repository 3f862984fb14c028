package scheduler

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/hamed0406/domainguard/internal/alerting"
	"github.com/hamed0406/domainguard/internal/domain"
	"github.com/hamed0406/domainguard/internal/metrics"
	"github.com/hamed0406/domainguard/internal/probe"
)

// sweepCertificates probes every active target and overwrites its stored
// certificate. An unreadable or already expired certificate raises
// ssl_invalid; the previous record is kept when nothing could be read.
func (s *Sweeper) sweepCertificates(ctx context.Context) (Summary, error) {
	list, err := s.Store.ListTargetsWithCertificates(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("list targets with certificates: %w", err)
	}

	t := &tally{}
	s.forEach(ctx, JobCertificates, t, len(list),
		func(i int) (string, string) { return string(list[i].Target.ID), list[i].Target.Name },
		func(ctx context.Context, i int) error {
			tgt := list[i].Target
			cert, err := s.Certs.Probe(ctx, tgt.Name)
			if err != nil {
				var cu *probe.CertificateUnavailableError
				if !errors.As(err, &cu) {
					return fmt.Errorf("certificate probe: %w", err)
				}
				metrics.ProbeResults.WithLabelValues("tls", string(cu.Reason)).Inc()
				s.Logger.Info("certificate_unavailable",
					zap.String("target_id", string(tgt.ID)),
					zap.String("domain", tgt.Name),
					zap.String("reason", string(cu.Reason)),
					zap.Error(cu.Err),
				)
				return s.fireRules(ctx, t, alerting.Trigger{
					Target: tgt,
					Type:   domain.AlertSSLInvalid,
					Reason: cu.Error(),
				}, nil)
			}
			metrics.ProbeResults.WithLabelValues("tls", string(cert.Status)).Inc()

			rec := domain.CertificateRecord{
				TargetID:   tgt.ID,
				Issuer:     cert.Issuer,
				ValidFrom:  cert.NotBefore.UTC(),
				ValidUntil: cert.NotAfter.UTC(),
				Status:     cert.Status,
				CheckedAt:  s.now(),
			}
			var errs error
			if err := s.Store.UpsertCertificate(ctx, rec); err != nil {
				errs = fmt.Errorf("upsert certificate: %w", err)
			}
			s.Logger.Debug("certificate_checked",
				zap.String("target_id", string(tgt.ID)),
				zap.String("domain", tgt.Name),
				zap.String("issuer", rec.Issuer),
				zap.Time("valid_until", rec.ValidUntil),
				zap.String("status", string(rec.Status)),
			)

			if cert.Status == domain.CertExpired {
				errs = multierr.Append(errs, s.fireRules(ctx, t, alerting.Trigger{
					Target:    tgt,
					Type:      domain.AlertSSLInvalid,
					Days:      domain.DaysRemaining(rec.ValidUntil, s.now()),
					ExpiresAt: rec.ValidUntil,
					Reason:    "certificate expired on " + rec.ValidUntil.Format("2006-01-02"),
				}, nil))
			}
			return errs
		})
	return t.summary(len(list))
}
