package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hamed0406/domainguard/internal/domain"
	"github.com/hamed0406/domainguard/internal/repo"
)

var (
	_ repo.Store  = (*Store)(nil)
	_ repo.Seeder = (*Store)(nil)
)

type Store struct {
	mu      sync.RWMutex
	targets map[domain.TargetID]*domain.Target
	certs   map[domain.TargetID]domain.CertificateRecord
	rules   []domain.AlertRule
	logs    []domain.NotificationLogEntry
}

func New() *Store {
	return &Store{
		targets: make(map[domain.TargetID]*domain.Target),
		certs:   make(map[domain.TargetID]domain.CertificateRecord),
		logs:    make([]domain.NotificationLogEntry, 0, 128),
	}
}

// ---- Seeder ----

func (m *Store) AddTarget(ctx context.Context, t *domain.Target) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.ID == "" {
		t.ID = domain.TargetID(uuid.NewString())
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	if t.Status == "" {
		t.Status = domain.StatusActive
	}
	cp := *t
	m.targets[t.ID] = &cp
	return nil
}

func (m *Store) AddAlertRule(ctx context.Context, r *domain.AlertRule) error {
	if err := r.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.targets[r.TargetID]; !ok {
		return fmt.Errorf("alert rule target %s: %w", r.TargetID, repo.ErrNotFound)
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	m.rules = append(m.rules, *r)
	return nil
}

// ---- TargetStore ----

func (m *Store) ListActiveTargets(ctx context.Context) ([]domain.Target, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Target, 0, len(m.targets))
	for _, t := range m.targets {
		if t.Status == domain.StatusActive {
			out = append(out, *t)
		}
	}
	sortTargets(out)
	return out, nil
}

func (m *Store) ListTargetsWithCertificates(ctx context.Context) ([]repo.TargetCertificate, error) {
	active, err := m.ListActiveTargets(ctx)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]repo.TargetCertificate, 0, len(active))
	for _, t := range active {
		tc := repo.TargetCertificate{Target: t}
		if c, ok := m.certs[t.ID]; ok {
			cp := c
			tc.Certificate = &cp
		}
		out = append(out, tc)
	}
	return out, nil
}

func (m *Store) MarkTargetExpired(ctx context.Context, id domain.TargetID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.targets[id]
	if !ok {
		return fmt.Errorf("target %s: %w", id, repo.ErrNotFound)
	}
	t.Status = domain.StatusExpired
	return nil
}

// ---- CertificateStore ----

func (m *Store) UpsertCertificate(ctx context.Context, rec domain.CertificateRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.targets[rec.TargetID]; !ok {
		return fmt.Errorf("certificate target %s: %w", rec.TargetID, repo.ErrNotFound)
	}
	m.certs[rec.TargetID] = rec
	return nil
}

// Certificate returns the live record for id, if any.
func (m *Store) Certificate(id domain.TargetID) (domain.CertificateRecord, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.certs[id]
	return c, ok
}

// ---- RuleStore ----

func (m *Store) ListAlertRules(ctx context.Context, id domain.TargetID, t domain.AlertType) ([]domain.AlertRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.AlertRule
	for _, r := range m.rules {
		if r.TargetID == id && r.Type == t {
			out = append(out, r)
		}
	}
	return out, nil
}

// ---- NotificationLog ----

func (m *Store) HasRecentNotification(ctx context.Context, id domain.TargetID, t domain.AlertType, since time.Time) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i := len(m.logs) - 1; i >= 0; i-- {
		e := m.logs[i]
		if e.TargetID == id && e.AlertType == t && e.CreatedAt.After(since) {
			return true, nil
		}
	}
	return false, nil
}

func (m *Store) AppendNotificationLog(ctx context.Context, e *domain.NotificationLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	// Timestamps never go backwards in insertion order.
	if n := len(m.logs); n > 0 && e.CreatedAt.Before(m.logs[n-1].CreatedAt) {
		e.CreatedAt = m.logs[n-1].CreatedAt
	}
	m.logs = append(m.logs, *e)
	return nil
}

// Notifications returns a copy of the log in insertion order.
func (m *Store) Notifications() []domain.NotificationLogEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.NotificationLogEntry, len(m.logs))
	copy(out, m.logs)
	return out
}

func sortTargets(ts []domain.Target) {
	sort.Slice(ts, func(i, j int) bool {
		if ts[i].CreatedAt.Equal(ts[j].CreatedAt) {
			return ts[i].ID < ts[j].ID
		}
		return ts[i].CreatedAt.Before(ts[j].CreatedAt)
	})
}
