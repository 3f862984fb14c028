package postgres

import (
	"context"
	"fmt"
)

// Schema is applied by Migrate. The CRUD service owns these tables in
// production; the statements are idempotent so the engine can bootstrap
// a fresh database on its own.
const Schema = `
CREATE TABLE IF NOT EXISTS users (
  id     TEXT PRIMARY KEY,
  name   TEXT NOT NULL DEFAULT '',
  email  TEXT NOT NULL,
  phone  TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS domains (
  id          TEXT PRIMARY KEY,
  name        TEXT NOT NULL UNIQUE,
  user_id     TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
  expiry_date TIMESTAMPTZ NOT NULL,
  status      TEXT NOT NULL DEFAULT 'active'
              CHECK (status IN ('active','expired','inactive','suspended')),
  created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS ssl_certificates (
  domain_id    TEXT PRIMARY KEY REFERENCES domains(id) ON DELETE CASCADE,
  issuer       TEXT NOT NULL,
  valid_from   TIMESTAMPTZ NOT NULL,
  valid_until  TIMESTAMPTZ NOT NULL,
  status       TEXT NOT NULL CHECK (status IN ('valid','expiring_soon','expired','unknown')),
  last_checked TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS alerts (
  id                 TEXT PRIMARY KEY,
  domain_id          TEXT NOT NULL REFERENCES domains(id) ON DELETE CASCADE,
  alert_type         TEXT NOT NULL,
  days_before_expiry INTEGER NOT NULL CHECK (days_before_expiry BETWEEN 1 AND 365),
  email_enabled      BOOLEAN NOT NULL DEFAULT true,
  sms_enabled        BOOLEAN NOT NULL DEFAULT false,
  created_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS notification_logs (
  seq           BIGSERIAL PRIMARY KEY,
  id            TEXT NOT NULL UNIQUE,
  domain_id     TEXT NOT NULL REFERENCES domains(id) ON DELETE CASCADE,
  alert_type    TEXT NOT NULL,
  method        TEXT NOT NULL,
  status        TEXT NOT NULL,
  error_message TEXT NOT NULL DEFAULT '',
  created_at    TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_alerts_domain_type ON alerts (domain_id, alert_type);
CREATE INDEX IF NOT EXISTS idx_notification_logs_recent ON notification_logs (domain_id, alert_type, created_at DESC);
`

func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
