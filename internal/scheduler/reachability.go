package scheduler

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hamed0406/domainguard/internal/alerting"
	"github.com/hamed0406/domainguard/internal/domain"
	"github.com/hamed0406/domainguard/internal/metrics"
)

// sweepReachability issues one GET per active target (retries belong to the
// Checker) and raises domain_downtime for every target that is down.
func (s *Sweeper) sweepReachability(ctx context.Context) (Summary, error) {
	targets, err := s.Store.ListActiveTargets(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("list active targets: %w", err)
	}

	t := &tally{}
	s.forEach(ctx, JobReachability, t, len(targets),
		func(i int) (string, string) { return string(targets[i].ID), targets[i].Name },
		func(ctx context.Context, i int) error {
			tgt := targets[i]
			out := s.Checker.Check(ctx, tgt.Name)

			result := "down"
			if out.Up {
				result = "up"
			}
			metrics.ProbeResults.WithLabelValues("http", result).Inc()
			s.Logger.Debug("reachability_checked",
				zap.String("target_id", string(tgt.ID)),
				zap.String("domain", tgt.Name),
				zap.Int("status", out.StatusCode),
				zap.Bool("up", out.Up),
				zap.Float64("latency_ms", out.LatencyMS),
				zap.String("reason", out.Message),
			)
			if out.Up {
				return nil
			}

			return s.fireRules(ctx, t, alerting.Trigger{
				Target: tgt,
				Type:   domain.AlertDomainDowntime,
				Reason: out.Message,
			}, nil)
		})
	return t.summary(len(targets))
}
