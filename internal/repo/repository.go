package repo

import (
	"context"
	"errors"
	"time"

	"github.com/hamed0406/domainguard/internal/domain"
)

var ErrNotFound = errors.New("not found")

// TargetCertificate pairs an active target with its live certificate record,
// nil when the target has never been probed successfully.
type TargetCertificate struct {
	Target      domain.Target
	Certificate *domain.CertificateRecord
}

// Ports (interfaces). The engine only talks to storage through these.
type TargetStore interface {
	ListActiveTargets(ctx context.Context) ([]domain.Target, error)
	ListTargetsWithCertificates(ctx context.Context) ([]TargetCertificate, error)
	MarkTargetExpired(ctx context.Context, id domain.TargetID) error
}

type CertificateStore interface {
	// UpsertCertificate replaces the target's record; there is never more than one.
	UpsertCertificate(ctx context.Context, rec domain.CertificateRecord) error
}

type RuleStore interface {
	ListAlertRules(ctx context.Context, id domain.TargetID, t domain.AlertType) ([]domain.AlertRule, error)
}

type NotificationLog interface {
	HasRecentNotification(ctx context.Context, id domain.TargetID, t domain.AlertType, since time.Time) (bool, error)
	// AppendNotificationLog fills in ID and CreatedAt when they are empty.
	AppendNotificationLog(ctx context.Context, e *domain.NotificationLogEntry) error
}

type Store interface {
	TargetStore
	CertificateStore
	RuleStore
	NotificationLog
}

// Seeder writes the records the CRUD API owns in production. Stores implement
// it so the CLI and tests can populate them.
type Seeder interface {
	AddTarget(ctx context.Context, t *domain.Target) error
	AddAlertRule(ctx context.Context, r *domain.AlertRule) error
}
