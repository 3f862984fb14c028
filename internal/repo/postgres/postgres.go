package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hamed0406/domainguard/internal/domain"
	"github.com/hamed0406/domainguard/internal/repo"
)

var (
	_ repo.Store  = (*Store)(nil)
	_ repo.Seeder = (*Store)(nil)
)

type Store struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

func New(ctx context.Context, dsn string, log *zap.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	ctxPing, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctxPing); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &Store{pool: pool, log: log}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
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
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx,
		`INSERT INTO users (id, name, email, phone)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE SET name=EXCLUDED.name, email=EXCLUDED.email, phone=EXCLUDED.phone`,
		t.Owner.ID, t.Owner.Name, t.Owner.Email, t.Owner.Phone)
	if err != nil {
		return fmt.Errorf("upsert owner: %w", err)
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO domains (id, name, user_id, expiry_date, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		string(t.ID), t.Name, t.Owner.ID, t.ExpiresAt.UTC(), string(t.Status), t.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert domain: %w", err)
	}
	return tx.Commit(ctx)
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
	_, err := s.pool.Exec(ctx,
		`INSERT INTO alerts (id, domain_id, alert_type, days_before_expiry, email_enabled, sms_enabled, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		r.ID, string(r.TargetID), string(r.Type), r.DaysBeforeExpiry, r.EmailEnabled, r.SMSEnabled, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert alert rule: %w", err)
	}
	return nil
}

// ---- TargetStore ----

const selectTargets = `
SELECT d.id, d.name, d.expiry_date, d.status, d.created_at,
       u.id, u.name, u.email, u.phone`

func (s *Store) ListActiveTargets(ctx context.Context) ([]domain.Target, error) {
	rows, err := s.pool.Query(ctx, selectTargets+`
	  FROM domains d
	  JOIN users u ON u.id = d.user_id
	 WHERE d.status = 'active'
	 ORDER BY d.created_at, d.id`)
	if err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}
	defer rows.Close()

	var out []domain.Target
	for rows.Next() {
		var t domain.Target
		if err := scanTarget(rows, &t); err != nil {
			return nil, fmt.Errorf("scan target: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) ListTargetsWithCertificates(ctx context.Context) ([]repo.TargetCertificate, error) {
	rows, err := s.pool.Query(ctx, selectTargets+`,
       c.issuer, c.valid_from, c.valid_until, c.status, c.last_checked
	  FROM domains d
	  JOIN users u ON u.id = d.user_id
	  LEFT JOIN ssl_certificates c ON c.domain_id = d.id
	 WHERE d.status = 'active'
	 ORDER BY d.created_at, d.id`)
	if err != nil {
		return nil, fmt.Errorf("list targets with certificates: %w", err)
	}
	defer rows.Close()

	var out []repo.TargetCertificate
	for rows.Next() {
		var (
			t                      domain.Target
			status                 string
			issuer, certStatus     *string
			from, until, lastCheck *time.Time
		)
		err := rows.Scan(&t.ID, &t.Name, &t.ExpiresAt, &status, &t.CreatedAt,
			&t.Owner.ID, &t.Owner.Name, &t.Owner.Email, &t.Owner.Phone,
			&issuer, &from, &until, &certStatus, &lastCheck)
		if err != nil {
			return nil, fmt.Errorf("scan target certificate: %w", err)
		}
		t.Status = domain.LifecycleStatus(status)
		tc := repo.TargetCertificate{Target: t}
		if issuer != nil {
			tc.Certificate = &domain.CertificateRecord{
				TargetID:   t.ID,
				Issuer:     *issuer,
				ValidFrom:  deref(from),
				ValidUntil: deref(until),
				Status:     domain.CertStatus(*certStatus),
				CheckedAt:  deref(lastCheck),
			}
		}
		out = append(out, tc)
	}
	return out, rows.Err()
}

func (s *Store) MarkTargetExpired(ctx context.Context, id domain.TargetID) error {
	tag, err := s.pool.Exec(ctx, `UPDATE domains SET status = 'expired' WHERE id = $1`, string(id))
	if err != nil {
		return fmt.Errorf("mark expired: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("target %s: %w", id, repo.ErrNotFound)
	}
	return nil
}

// ---- CertificateStore ----

func (s *Store) UpsertCertificate(ctx context.Context, rec domain.CertificateRecord) error {
	const q = `
		INSERT INTO ssl_certificates (domain_id, issuer, valid_from, valid_until, status, last_checked)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (domain_id)
		DO UPDATE SET issuer=EXCLUDED.issuer, valid_from=EXCLUDED.valid_from,
		              valid_until=EXCLUDED.valid_until, status=EXCLUDED.status,
		              last_checked=EXCLUDED.last_checked
	`
	_, err := s.pool.Exec(ctx, q, string(rec.TargetID), rec.Issuer, rec.ValidFrom.UTC(),
		rec.ValidUntil.UTC(), string(rec.Status), rec.CheckedAt.UTC())
	if err != nil {
		return fmt.Errorf("upsert certificate: %w", err)
	}
	return nil
}

// ---- RuleStore ----

func (s *Store) ListAlertRules(ctx context.Context, id domain.TargetID, t domain.AlertType) ([]domain.AlertRule, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, days_before_expiry, email_enabled, sms_enabled, created_at
		   FROM alerts
		  WHERE domain_id = $1 AND alert_type = $2
		  ORDER BY created_at, id`, string(id), string(t))
	if err != nil {
		return nil, fmt.Errorf("list alert rules: %w", err)
	}
	defer rows.Close()

	var out []domain.AlertRule
	for rows.Next() {
		r := domain.AlertRule{TargetID: id, Type: t}
		if err := rows.Scan(&r.ID, &r.DaysBeforeExpiry, &r.EmailEnabled, &r.SMSEnabled, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan alert rule: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ---- NotificationLog ----

func (s *Store) HasRecentNotification(ctx context.Context, id domain.TargetID, t domain.AlertType, since time.Time) (bool, error) {
	var one int
	err := s.pool.QueryRow(ctx,
		`SELECT 1 FROM notification_logs
		  WHERE domain_id = $1 AND alert_type = $2 AND created_at > $3
		  LIMIT 1`, string(id), string(t), since.UTC()).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("recent notification: %w", err)
	}
	return true, nil
}

func (s *Store) AppendNotificationLog(ctx context.Context, e *domain.NotificationLogEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	// The log is append-only in time order: an entry never lands with a
	// created_at earlier than the newest row. The advisory lock serializes
	// concurrent appenders so the max() read and the insert see the same tail.
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, notificationLogLockKey); err != nil {
			return err
		}
		return tx.QueryRow(ctx,
			`INSERT INTO notification_logs (id, domain_id, alert_type, method, status, error_message, created_at)
			 SELECT $1, $2, $3, $4, $5, $6, GREATEST($7::timestamptz, COALESCE(MAX(created_at), $7::timestamptz))
			   FROM notification_logs
			 RETURNING created_at`,
			e.ID, string(e.TargetID), string(e.AlertType), e.Method, string(e.Status), e.Error, e.CreatedAt.UTC()).
			Scan(&e.CreatedAt)
	})
	if err != nil {
		return fmt.Errorf("insert notification log: %w", err)
	}
	e.CreatedAt = e.CreatedAt.UTC()
	return nil
}

// notificationLogLockKey is the pg_advisory_xact_lock key guarding appends.
const notificationLogLockKey int64 = 0x646f6d61696e

func scanTarget(rows pgx.Rows, t *domain.Target) error {
	var status string
	if err := rows.Scan(&t.ID, &t.Name, &t.ExpiresAt, &status, &t.CreatedAt,
		&t.Owner.ID, &t.Owner.Name, &t.Owner.Email, &t.Owner.Phone); err != nil {
		return err
	}
	t.Status = domain.LifecycleStatus(status)
	return nil
}

func deref(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
