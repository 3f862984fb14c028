package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/hamed0406/domainguard/internal/alerting"
	"github.com/hamed0406/domainguard/internal/domain"
	"github.com/hamed0406/domainguard/internal/metrics"
	"github.com/hamed0406/domainguard/internal/probe"
	"github.com/hamed0406/domainguard/internal/repo"
)

type Job string

const (
	JobExpiry       Job = "expiry"
	JobCertificates Job = "certificates"
	JobReachability Job = "reachability"
	JobAlerts       Job = "alerts"
)

// Jobs lists every job in a stable order.
var Jobs = []Job{JobExpiry, JobCertificates, JobReachability, JobAlerts}

func ParseJob(s string) (Job, error) {
	for _, j := range Jobs {
		if string(j) == s {
			return j, nil
		}
	}
	return "", fmt.Errorf("unknown job %q", s)
}

// AlertTrigger is satisfied by *alerting.Pipeline.
type AlertTrigger interface {
	Trigger(ctx context.Context, tr alerting.Trigger) (alerting.Result, error)
}

// CertificateProber is satisfied by *probe.TLSProber.
type CertificateProber interface {
	Probe(ctx context.Context, host string) (probe.Certificate, error)
}

// Summary describes one finished sweep.
type Summary struct {
	Job        Job           `json:"job"`
	Targets    int           `json:"targets"`
	Failed     int           `json:"failed"`
	Dispatched int           `json:"dispatched"`
	Suppressed int           `json:"suppressed"`
	Duration   time.Duration `json:"duration_ns"`
	Error      string        `json:"error,omitempty"`
}

// Sweeper holds the collaborators shared by all four sweeps.
type Sweeper struct {
	Logger      *zap.Logger
	Store       repo.Store
	Alerts      AlertTrigger
	Certs       CertificateProber
	Checker     probe.Checker
	Concurrency int
	Now         func() time.Time
}

func NewSweeper(
	logger *zap.Logger,
	store repo.Store,
	alerts AlertTrigger,
	certs CertificateProber,
	checker probe.Checker,
	concurrency int,
) *Sweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	if concurrency < 1 {
		concurrency = 1
	}
	return &Sweeper{
		Logger:      logger,
		Store:       store,
		Alerts:      alerts,
		Certs:       certs,
		Checker:     checker,
		Concurrency: concurrency,
		Now:         time.Now,
	}
}

func (s *Sweeper) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}

// Run executes one sweep. The returned error aggregates every per-target
// failure; Summary is valid even when err is non-nil.
func (s *Sweeper) Run(ctx context.Context, job Job) (Summary, error) {
	start := time.Now()
	s.Logger.Info("sweep_started", zap.String("job", string(job)))

	var (
		sum Summary
		err error
	)
	switch job {
	case JobExpiry:
		sum, err = s.sweepExpiry(ctx)
	case JobCertificates:
		sum, err = s.sweepCertificates(ctx)
	case JobReachability:
		sum, err = s.sweepReachability(ctx)
	case JobAlerts:
		sum, err = s.sweepAlerts(ctx)
	default:
		return Summary{Job: job}, fmt.Errorf("unknown job %q", job)
	}
	sum.Job = job
	sum.Duration = time.Since(start)

	result := "ok"
	switch {
	case err != nil && sum.Failed == 0:
		result = "failed"
	case err != nil:
		result = "partial"
	}
	if err != nil {
		sum.Error = err.Error()
	}
	metrics.SweepRuns.WithLabelValues(string(job), result).Inc()
	metrics.SweepDuration.WithLabelValues(string(job)).Observe(sum.Duration.Seconds())

	s.Logger.Info("sweep_finished",
		zap.String("job", string(job)),
		zap.String("result", result),
		zap.Int("targets", sum.Targets),
		zap.Int("failed", sum.Failed),
		zap.Int("dispatched", sum.Dispatched),
		zap.Int("suppressed", sum.Suppressed),
		zap.Duration("duration", sum.Duration),
	)
	return sum, err
}

// tally collects per-target results from concurrent workers.
type tally struct {
	mu         sync.Mutex
	failed     int
	dispatched int
	suppressed int
	err        error
}

func (t *tally) alert(res alerting.Result) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch res.Outcome {
	case alerting.OutcomeDispatched:
		t.dispatched++
	case alerting.OutcomeSuppressed:
		t.suppressed++
	}
}

func (t *tally) fail(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failed++
	t.err = multierr.Append(t.err, err)
}

func (t *tally) summary(n int) (Summary, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Summary{Targets: n, Failed: t.failed, Dispatched: t.dispatched, Suppressed: t.suppressed}, t.err
}

// forEach runs fn for indexes 0..n-1 on at most s.Concurrency workers.
// A failing or panicking item is logged and recorded; the loop moves on.
// Cancellation is honored between items, never inside one.
func (s *Sweeper) forEach(ctx context.Context, job Job, t *tally, n int, name func(i int) (id, host string), fn func(ctx context.Context, i int) error) {
	sem := make(chan struct{}, s.Concurrency)
	var wg sync.WaitGroup

	for i := 0; i < n; i++ {
		select {
		case <-ctx.Done():
		case sem <- struct{}{}:
		}
		if err := ctx.Err(); err != nil {
			s.Logger.Warn("sweep_interrupted",
				zap.String("job", string(job)),
				zap.Int("processed", i),
				zap.Int("total", n),
			)
			t.mu.Lock()
			t.err = multierr.Append(t.err, fmt.Errorf("%s sweep interrupted after %d of %d targets: %w", job, i, n, err))
			t.mu.Unlock()
			break
		}

		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()

			id, host := name(i)
			if err := safeCall(func() error { return fn(ctx, i) }); err != nil {
				metrics.TargetFailures.WithLabelValues(string(job)).Inc()
				s.Logger.Warn("target_failed",
					zap.String("job", string(job)),
					zap.String("target_id", id),
					zap.String("domain", host),
					zap.Error(err),
				)
				t.fail(fmt.Errorf("%s: %w", host, err))
			}
		}(i)
	}

	wg.Wait()
}

// fireRules fires tr once for every rule of tr.Type on the target that
// match accepts. A nil match accepts every rule.
func (s *Sweeper) fireRules(ctx context.Context, t *tally, tr alerting.Trigger, match func(domain.AlertRule) bool) error {
	rules, err := s.Store.ListAlertRules(ctx, tr.Target.ID, tr.Type)
	if err != nil {
		return fmt.Errorf("list %s rules: %w", tr.Type, err)
	}
	var errs error
	for _, rule := range rules {
		if match != nil && !match(rule) {
			continue
		}
		tr.Rule = rule
		errs = multierr.Append(errs, s.fire(ctx, t, tr))
	}
	return errs
}

// fire hands one trigger to the alert pipeline and counts its outcome.
func (s *Sweeper) fire(ctx context.Context, t *tally, tr alerting.Trigger) error {
	res, err := s.Alerts.Trigger(ctx, tr)
	t.alert(res)
	if err != nil {
		return fmt.Errorf("%s alert: %w", tr.Type, err)
	}
	return nil
}

func safeCall(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}
