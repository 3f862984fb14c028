package alerting

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hamed0406/domainguard/internal/domain"
	"github.com/hamed0406/domainguard/internal/metrics"
	"github.com/hamed0406/domainguard/internal/notify"
	"github.com/hamed0406/domainguard/internal/repo"
)

// Trigger is one observed condition for one rule of one target.
type Trigger struct {
	Target domain.Target
	Type   domain.AlertType
	Rule   domain.AlertRule

	Days      int       // days remaining for the expiry types
	ExpiresAt time.Time // domain expiry or certificate validUntil, if known
	Expired   bool      // domain_expiry only: the date has already passed
	Reason    string    // probe detail for ssl_invalid and domain_downtime
}

type Outcome string

const (
	OutcomeDispatched Outcome = "dispatched"
	OutcomeSuppressed Outcome = "suppressed"
	OutcomeNoChannels Outcome = "no_channels"
)

type Result struct {
	Outcome    Outcome
	Deliveries []notify.Outcome
	Entry      *domain.NotificationLogEntry
}

// Dispatcher is satisfied by *notify.Dispatcher.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg notify.Message, channels []domain.Channel) []notify.Outcome
}

type Pipeline struct {
	Gate       *Gate
	Dispatcher Dispatcher
	Log        repo.NotificationLog
	Logger     *zap.Logger
	Now        func() time.Time

	locks keyedMutex
}

func NewPipeline(log repo.NotificationLog, d Dispatcher, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		Gate:       NewGate(log),
		Dispatcher: d,
		Log:        log,
		Logger:     logger,
		Now:        time.Now,
	}
}

func (p *Pipeline) now() time.Time {
	if p.Now == nil {
		return time.Now().UTC()
	}
	return p.Now().UTC()
}

// Trigger runs gate, dispatch and log for tr. Calls for the same
// (target, type) are serialized so the gate always sees the previous entry.
// A gate lookup error fails closed: nothing is sent.
func (p *Pipeline) Trigger(ctx context.Context, tr Trigger) (Result, error) {
	key := string(tr.Target.ID) + "|" + string(tr.Type)
	unlock := p.locks.lock(key)
	defer unlock()

	fields := []zap.Field{
		zap.String("target_id", string(tr.Target.ID)),
		zap.String("domain", tr.Target.Name),
		zap.String("alert_type", string(tr.Type)),
	}

	suppressed, err := p.Gate.Suppressed(ctx, tr.Target.ID, tr.Type)
	if err != nil {
		return Result{}, err
	}
	if suppressed {
		p.Logger.Debug("alert_suppressed", fields...)
		metrics.AlertTriggers.WithLabelValues(string(tr.Type), string(OutcomeSuppressed)).Inc()
		return Result{Outcome: OutcomeSuppressed}, nil
	}

	msg, err := Render(tr, p.now())
	if err != nil {
		return Result{}, err
	}

	deliveries := p.Dispatcher.Dispatch(ctx, msg, tr.Rule.Channels())
	if len(deliveries) == 0 {
		p.Logger.Debug("alert_no_channels", fields...)
		metrics.AlertTriggers.WithLabelValues(string(tr.Type), string(OutcomeNoChannels)).Inc()
		return Result{Outcome: OutcomeNoChannels}, nil
	}

	methods := make([]string, 0, len(deliveries))
	var failures []string
	for _, d := range deliveries {
		methods = append(methods, string(d.Channel))
		if d.Status == notify.OutcomeFailed {
			failures = append(failures, fmt.Sprintf("%s: %s", d.Channel, d.Error))
		}
	}

	entry := &domain.NotificationLogEntry{
		ID:        uuid.NewString(),
		TargetID:  tr.Target.ID,
		AlertType: tr.Type,
		Method:    strings.Join(methods, ","),
		Status:    domain.LogSent,
		Error:     strings.Join(failures, "; "),
		// Stamped after dispatch so entries appended later never carry an
		// earlier time than ones already in the log.
		CreatedAt: p.now(),
	}
	if err := p.Log.AppendNotificationLog(ctx, entry); err != nil {
		return Result{Outcome: OutcomeDispatched, Deliveries: deliveries},
			fmt.Errorf("append notification log for %s/%s: %w", tr.Target.ID, tr.Type, err)
	}

	metrics.AlertTriggers.WithLabelValues(string(tr.Type), string(OutcomeDispatched)).Inc()
	p.Logger.Info("alert_dispatched", append(fields,
		zap.String("method", entry.Method),
		zap.Int("failed_channels", len(failures)),
	)...)
	return Result{Outcome: OutcomeDispatched, Deliveries: deliveries, Entry: entry}, nil
}

// keyedMutex hands out one mutex per key and forgets it when the last
// holder releases.
type keyedMutex struct {
	mu sync.Mutex
	m  map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key string) (unlock func()) {
	k.mu.Lock()
	if k.m == nil {
		k.m = make(map[string]*refMutex)
	}
	l, ok := k.m[key]
	if !ok {
		l = &refMutex{}
		k.m[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.m, key)
		}
		k.mu.Unlock()
	}
}
