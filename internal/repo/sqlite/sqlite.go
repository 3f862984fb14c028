// Package sqlite is a single-file storage collaborator for deployments
// without Postgres. It uses gorm with the cgo sqlite driver.
package sqlite

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	gormsqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/hamed0406/domainguard/internal/domain"
	"github.com/hamed0406/domainguard/internal/repo"
)

var (
	_ repo.Store  = (*Store)(nil)
	_ repo.Seeder = (*Store)(nil)
)

type Store struct {
	db  *gorm.DB
	log *zap.Logger

	appendMu sync.Mutex
}

// Open creates or opens the database file at path and migrates the schema.
func Open(path string, log *zap.Logger) (*Store, error) {
	db, err := gorm.Open(gormsqlite.Open(path), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Silent),
		NowFunc:                                  func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if err := db.AutoMigrate(&userRow{}, &domainRow{}, &certificateRow{}, &alertRuleRow{}, &notificationRow{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	log.Debug("sqlite_migrated", zap.String("path", path))
	return &Store{db: db, log: log}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ---- Seeder ----

func (s *Store) AddTarget(ctx context.Context, t *domain.Target) error {
	if t.ID == "" {
		t.ID = domain.TargetID(uuid.NewString())
	}
	if t.Owner.ID == "" {
		t.Owner.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	if t.Status == "" {
		t.Status = domain.StatusActive
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		u := userRow{ID: t.Owner.ID, Name: t.Owner.Name, Email: t.Owner.Email, Phone: t.Owner.Phone}
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&u).Error; err != nil {
			return fmt.Errorf("upsert owner: %w", err)
		}
		d := domainRow{
			ID:         string(t.ID),
			Name:       t.Name,
			UserID:     t.Owner.ID,
			ExpiryDate: t.ExpiresAt.UTC(),
			Status:     string(t.Status),
			CreatedAt:  t.CreatedAt.UTC(),
		}
		if err := tx.Omit(clause.Associations).Create(&d).Error; err != nil {
			return fmt.Errorf("insert domain: %w", err)
		}
		return nil
	})
}

func (s *Store) AddAlertRule(ctx context.Context, r *domain.AlertRule) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	row := alertRuleRow{
		ID:               r.ID,
		DomainID:         string(r.TargetID),
		AlertType:        string(r.Type),
		DaysBeforeExpiry: r.DaysBeforeExpiry,
		EmailEnabled:     r.EmailEnabled,
		SMSEnabled:       r.SMSEnabled,
		CreatedAt:        r.CreatedAt.UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("insert alert rule: %w", err)
	}
	return nil
}

// ---- TargetStore ----

func (s *Store) activeDomains(ctx context.Context, withCert bool) ([]domainRow, error) {
	q := s.db.WithContext(ctx).Preload("User")
	if withCert {
		q = q.Preload("Certificate")
	}
	var rows []domainRow
	err := q.Where("status = ?", string(domain.StatusActive)).
		Order("created_at, id").
		Find(&rows).Error
	return rows, err
}

func (s *Store) ListActiveTargets(ctx context.Context) ([]domain.Target, error) {
	rows, err := s.activeDomains(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}
	out := make([]domain.Target, 0, len(rows))
	for _, r := range rows {
		out = append(out, toTarget(r))
	}
	return out, nil
}

func (s *Store) ListTargetsWithCertificates(ctx context.Context) ([]repo.TargetCertificate, error) {
	rows, err := s.activeDomains(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("list targets with certificates: %w", err)
	}
	out := make([]repo.TargetCertificate, 0, len(rows))
	for _, r := range rows {
		tc := repo.TargetCertificate{Target: toTarget(r)}
		if c := r.Certificate; c != nil {
			tc.Certificate = &domain.CertificateRecord{
				TargetID:   domain.TargetID(c.DomainID),
				Issuer:     c.Issuer,
				ValidFrom:  c.ValidFrom,
				ValidUntil: c.ValidUntil,
				Status:     domain.CertStatus(c.Status),
				CheckedAt:  c.LastChecked,
			}
		}
		out = append(out, tc)
	}
	return out, nil
}

func (s *Store) MarkTargetExpired(ctx context.Context, id domain.TargetID) error {
	res := s.db.WithContext(ctx).Model(&domainRow{}).
		Where("id = ?", string(id)).
		Update("status", string(domain.StatusExpired))
	if res.Error != nil {
		return fmt.Errorf("mark expired: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("target %s: %w", id, repo.ErrNotFound)
	}
	return nil
}

// ---- CertificateStore ----

func (s *Store) UpsertCertificate(ctx context.Context, rec domain.CertificateRecord) error {
	row := certificateRow{
		DomainID:    string(rec.TargetID),
		Issuer:      rec.Issuer,
		ValidFrom:   rec.ValidFrom.UTC(),
		ValidUntil:  rec.ValidUntil.UTC(),
		Status:      string(rec.Status),
		LastChecked: rec.CheckedAt.UTC(),
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "domain_id"}}, UpdateAll: true}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("upsert certificate: %w", err)
	}
	return nil
}

// ---- RuleStore ----

func (s *Store) ListAlertRules(ctx context.Context, id domain.TargetID, t domain.AlertType) ([]domain.AlertRule, error) {
	var rows []alertRuleRow
	err := s.db.WithContext(ctx).
		Where("domain_id = ? AND alert_type = ?", string(id), string(t)).
		Order("created_at, id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list alert rules: %w", err)
	}
	out := make([]domain.AlertRule, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.AlertRule{
			ID:               r.ID,
			TargetID:         domain.TargetID(r.DomainID),
			Type:             domain.AlertType(r.AlertType),
			DaysBeforeExpiry: r.DaysBeforeExpiry,
			EmailEnabled:     r.EmailEnabled,
			SMSEnabled:       r.SMSEnabled,
			CreatedAt:        r.CreatedAt,
		})
	}
	return out, nil
}

// ---- NotificationLog ----

func (s *Store) HasRecentNotification(ctx context.Context, id domain.TargetID, t domain.AlertType, since time.Time) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&notificationRow{}).
		Where("domain_id = ? AND alert_type = ? AND created_at > ?", string(id), string(t), since.UTC()).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("recent notification: %w", err)
	}
	return n > 0, nil
}

func (s *Store) AppendNotificationLog(ctx context.Context, e *domain.NotificationLogEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	row := notificationRow{
		ID:           e.ID,
		DomainID:     string(e.TargetID),
		AlertType:    string(e.AlertType),
		Method:       e.Method,
		Status:       string(e.Status),
		ErrorMessage: e.Error,
		CreatedAt:    e.CreatedAt.UTC(),
	}
	// Entries never land before the newest row; appends are serialized so
	// the read of the tail and the insert agree.
	s.appendMu.Lock()
	defer s.appendMu.Unlock()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var last []notificationRow
		if err := tx.Order("created_at DESC").Limit(1).Find(&last).Error; err != nil {
			return err
		}
		if len(last) == 1 && row.CreatedAt.Before(last[0].CreatedAt) {
			row.CreatedAt = last[0].CreatedAt.UTC()
		}
		return tx.Create(&row).Error
	})
	if err != nil {
		return fmt.Errorf("insert notification log: %w", err)
	}
	e.CreatedAt = row.CreatedAt
	return nil
}

func toTarget(r domainRow) domain.Target {
	return domain.Target{
		ID:   domain.TargetID(r.ID),
		Name: r.Name,
		Owner: domain.Owner{
			ID:    r.User.ID,
			Name:  r.User.Name,
			Email: r.User.Email,
			Phone: r.User.Phone,
		},
		ExpiresAt: r.ExpiryDate,
		Status:    domain.LifecycleStatus(r.Status),
		CreatedAt: r.CreatedAt,
	}
}
