package alerting

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hamed0406/domainguard/internal/domain"
	"github.com/hamed0406/domainguard/internal/notify"
	"github.com/hamed0406/domainguard/internal/repo/memory"
)

type recordingDispatcher struct {
	mu    sync.Mutex
	calls []notify.Message
	fail  map[domain.Channel]string
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, msg notify.Message, channels []domain.Channel) []notify.Outcome {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, msg)
	var out []notify.Outcome
	for _, ch := range channels {
		if ch == domain.ChannelSMS && msg.ToPhone == "" {
			continue
		}
		o := notify.Outcome{Channel: ch, Status: notify.OutcomeSuccess}
		if e, ok := d.fail[ch]; ok {
			o.Status, o.Error = notify.OutcomeFailed, e
		}
		out = append(out, o)
	}
	return out
}

func (d *recordingDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.calls)
}

type brokenLog struct{}

func (brokenLog) HasRecentNotification(context.Context, domain.TargetID, domain.AlertType, time.Time) (bool, error) {
	return false, errors.New("db down")
}

func (brokenLog) AppendNotificationLog(context.Context, *domain.NotificationLogEntry) error {
	return errors.New("db down")
}

// appendOnlyLog keeps entries in arrival order exactly as handed over,
// with no clamping, so tests can see the times the pipeline stamps.
type appendOnlyLog struct {
	mu      sync.Mutex
	entries []domain.NotificationLogEntry
}

func (l *appendOnlyLog) HasRecentNotification(context.Context, domain.TargetID, domain.AlertType, time.Time) (bool, error) {
	return false, nil
}

func (l *appendOnlyLog) AppendNotificationLog(_ context.Context, e *domain.NotificationLogEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, *e)
	return nil
}

// gatedDispatcher blocks dispatches for one target until release is closed.
type gatedDispatcher struct {
	recordingDispatcher
	hold    domain.TargetID
	entered chan struct{}
	release chan struct{}
}

func (d *gatedDispatcher) Dispatch(ctx context.Context, msg notify.Message, channels []domain.Channel) []notify.Outcome {
	if msg.TargetID == d.hold {
		close(d.entered)
		<-d.release
	}
	return d.recordingDispatcher.Dispatch(ctx, msg, channels)
}

// tickingClock advances one second on every read.
type tickingClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *tickingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

var fixedNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newPipeline(t *testing.T, d Dispatcher) (*Pipeline, *memory.Store) {
	t.Helper()
	store := memory.New()
	p := NewPipeline(store, d, zap.NewNop())
	p.Now = func() time.Time { return fixedNow }
	p.Gate.Now = p.Now
	return p, store
}

func expiryTrigger(days int) Trigger {
	tgt := domain.Target{
		ID:        "t1",
		Name:      "example.com",
		Owner:     domain.Owner{Email: "owner@example.com"},
		ExpiresAt: fixedNow.AddDate(0, 0, days),
		Status:    domain.StatusActive,
	}
	return Trigger{
		Target:    tgt,
		Type:      domain.AlertDomainExpiry,
		Rule:      domain.AlertRule{TargetID: tgt.ID, Type: domain.AlertDomainExpiry, DaysBeforeExpiry: 30, EmailEnabled: true},
		Days:      days,
		ExpiresAt: tgt.ExpiresAt,
	}
}

func TestPipeline_DispatchesAndLogsOnce(t *testing.T) {
	d := &recordingDispatcher{}
	p, store := newPipeline(t, d)

	res, err := p.Trigger(context.Background(), expiryTrigger(10))
	require.NoError(t, err)
	assert.Equal(t, OutcomeDispatched, res.Outcome)

	logs := store.Notifications()
	require.Len(t, logs, 1)
	assert.Equal(t, domain.LogSent, logs[0].Status)
	assert.Equal(t, "email", logs[0].Method)
	assert.Equal(t, domain.AlertDomainExpiry, logs[0].AlertType)
	assert.Empty(t, logs[0].Error)
	assert.Equal(t, 1, d.count())
}

func TestPipeline_RecentEntrySuppresses(t *testing.T) {
	d := &recordingDispatcher{}
	p, store := newPipeline(t, d)
	require.NoError(t, store.AppendNotificationLog(context.Background(), &domain.NotificationLogEntry{
		TargetID: "t1", AlertType: domain.AlertDomainExpiry, Method: "email", Status: domain.LogSent,
		CreatedAt: fixedNow.Add(-time.Hour),
	}))

	res, err := p.Trigger(context.Background(), expiryTrigger(10))
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuppressed, res.Outcome)
	assert.Len(t, store.Notifications(), 1)
	assert.Zero(t, d.count(), "no channel may be contacted while suppressed")
}

func TestPipeline_CooldownIsPerType(t *testing.T) {
	p, store := newPipeline(t, &recordingDispatcher{})
	require.NoError(t, store.AppendNotificationLog(context.Background(), &domain.NotificationLogEntry{
		TargetID: "t1", AlertType: domain.AlertSSLExpiry, Method: "email", Status: domain.LogSent,
		CreatedAt: fixedNow.Add(-time.Hour),
	}))

	res, err := p.Trigger(context.Background(), expiryTrigger(10))
	require.NoError(t, err)
	assert.Equal(t, OutcomeDispatched, res.Outcome)
}

func TestPipeline_CooldownLapses(t *testing.T) {
	p, store := newPipeline(t, &recordingDispatcher{})
	require.NoError(t, store.AppendNotificationLog(context.Background(), &domain.NotificationLogEntry{
		TargetID: "t1", AlertType: domain.AlertDomainExpiry, Method: "email", Status: domain.LogSent,
		CreatedAt: fixedNow.Add(-Cooldown - time.Minute),
	}))

	res, err := p.Trigger(context.Background(), expiryTrigger(10))
	require.NoError(t, err)
	assert.Equal(t, OutcomeDispatched, res.Outcome)
	assert.Len(t, store.Notifications(), 2)
}

func TestPipeline_TwoTriggersWithin24hAppendOneEntry(t *testing.T) {
	p, store := newPipeline(t, &recordingDispatcher{})
	ctx := context.Background()

	first, err := p.Trigger(ctx, expiryTrigger(10))
	require.NoError(t, err)
	p.Now = func() time.Time { return fixedNow.Add(23 * time.Hour) }
	p.Gate.Now = p.Now
	second, err := p.Trigger(ctx, expiryTrigger(9))
	require.NoError(t, err)

	assert.Equal(t, OutcomeDispatched, first.Outcome)
	assert.Equal(t, OutcomeSuppressed, second.Outcome)
	assert.Len(t, store.Notifications(), 1)
}

func TestPipeline_ConcurrentTriggersSameKeyAreLinearizable(t *testing.T) {
	d := &recordingDispatcher{}
	p, store := newPipeline(t, d)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.Trigger(context.Background(), expiryTrigger(10))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Len(t, store.Notifications(), 1)
	assert.Equal(t, 1, d.count())
	assert.Empty(t, p.locks.m, "lock table must be released")
}

func TestPipeline_ChannelFailuresStillLogSent(t *testing.T) {
	d := &recordingDispatcher{fail: map[domain.Channel]string{domain.ChannelEmail: "smtp auth failed"}}
	p, store := newPipeline(t, d)

	tr := expiryTrigger(5)
	tr.Target.Owner.Phone = "+15550100"
	tr.Rule.SMSEnabled = true

	res, err := p.Trigger(context.Background(), tr)
	require.NoError(t, err)
	require.Len(t, res.Deliveries, 2)

	logs := store.Notifications()
	require.Len(t, logs, 1)
	assert.Equal(t, domain.LogSent, logs[0].Status)
	assert.Equal(t, "email,sms", logs[0].Method)
	assert.Equal(t, "email: smtp auth failed", logs[0].Error)
}

func TestPipeline_NoAttemptedChannelLogsNothing(t *testing.T) {
	d := &recordingDispatcher{}
	p, store := newPipeline(t, d)

	tr := expiryTrigger(5)
	tr.Rule.EmailEnabled = false
	tr.Rule.SMSEnabled = true // owner has no phone

	res, err := p.Trigger(context.Background(), tr)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoChannels, res.Outcome)
	assert.Empty(t, store.Notifications())
}

func TestPipeline_GateErrorFailsClosed(t *testing.T) {
	d := &recordingDispatcher{}
	p := NewPipeline(brokenLog{}, d, zap.NewNop())

	_, err := p.Trigger(context.Background(), expiryTrigger(5))
	require.Error(t, err)
	assert.Zero(t, d.count())
}

func TestPipeline_SlowDispatchDoesNotBackdateLog(t *testing.T) {
	log := &appendOnlyLog{}
	d := &gatedDispatcher{hold: "slow", entered: make(chan struct{}), release: make(chan struct{})}
	clock := &tickingClock{t: fixedNow}
	p := NewPipeline(log, d, zap.NewNop())
	p.Now = clock.Now
	p.Gate.Now = clock.Now

	slow := expiryTrigger(10)
	slow.Target.ID, slow.Rule.TargetID = "slow", "slow"
	fast := expiryTrigger(10)
	fast.Target.ID, fast.Rule.TargetID = "fast", "fast"

	done := make(chan error, 1)
	go func() {
		_, err := p.Trigger(context.Background(), slow)
		done <- err
	}()
	<-d.entered

	_, err := p.Trigger(context.Background(), fast)
	require.NoError(t, err)
	close(d.release)
	require.NoError(t, <-done)

	log.mu.Lock()
	defer log.mu.Unlock()
	require.Len(t, log.entries, 2)
	assert.Equal(t, domain.TargetID("fast"), log.entries[0].TargetID)
	assert.Equal(t, domain.TargetID("slow"), log.entries[1].TargetID)
	assert.False(t, log.entries[1].CreatedAt.Before(log.entries[0].CreatedAt),
		"entry appended second carries %v, earlier than %v", log.entries[1].CreatedAt, log.entries[0].CreatedAt)
}
