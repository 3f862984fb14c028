package domain

import (
	"fmt"
	"time"
)

type TargetID string

// LifecycleStatus is owned by the CRUD layer; the engine only reads it and
// moves a target to StatusExpired once its expiry date has passed.
type LifecycleStatus string

const (
	StatusActive    LifecycleStatus = "active"
	StatusExpired   LifecycleStatus = "expired"
	StatusInactive  LifecycleStatus = "inactive"
	StatusSuspended LifecycleStatus = "suspended"
)

func (s LifecycleStatus) Valid() bool {
	switch s {
	case StatusActive, StatusExpired, StatusInactive, StatusSuspended:
		return true
	}
	return false
}

// Owner is the recipient of every alert raised for a target.
type Owner struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

// Target is a monitored domain.
type Target struct {
	ID        TargetID        `json:"id"`
	Name      string          `json:"name"` // bare hostname, e.g. "example.com"
	Owner     Owner           `json:"owner"`
	ExpiresAt time.Time       `json:"expires_at"`
	Status    LifecycleStatus `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
}

type CertStatus string

const (
	CertValid        CertStatus = "valid"
	CertExpiringSoon CertStatus = "expiring_soon"
	CertExpired      CertStatus = "expired"
	CertUnknown      CertStatus = "unknown"
)

func (s CertStatus) Valid() bool {
	switch s {
	case CertValid, CertExpiringSoon, CertExpired, CertUnknown:
		return true
	}
	return false
}

// CertificateRecord is the single live certificate snapshot of a target.
// It is overwritten on every successful probe.
type CertificateRecord struct {
	TargetID   TargetID   `json:"target_id"`
	Issuer     string     `json:"issuer"`
	ValidFrom  time.Time  `json:"valid_from"`
	ValidUntil time.Time  `json:"valid_until"`
	Status     CertStatus `json:"status"`
	CheckedAt  time.Time  `json:"checked_at"`
}

type AlertType string

const (
	AlertDomainExpiry   AlertType = "domain_expiry"
	AlertSSLExpiry      AlertType = "ssl_expiry"
	AlertSSLInvalid     AlertType = "ssl_invalid"
	AlertDomainDowntime AlertType = "domain_downtime"
)

func (a AlertType) Valid() bool {
	switch a {
	case AlertDomainExpiry, AlertSSLExpiry, AlertSSLInvalid, AlertDomainDowntime:
		return true
	}
	return false
}

// UsesThreshold reports whether DaysBeforeExpiry affects when a rule of
// this type fires.
func (a AlertType) UsesThreshold() bool {
	return a == AlertDomainExpiry || a == AlertSSLExpiry
}

type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// MaxDaysBeforeExpiry bounds AlertRule.DaysBeforeExpiry.
const MaxDaysBeforeExpiry = 365

type AlertRule struct {
	ID               string    `json:"id"`
	TargetID         TargetID  `json:"target_id"`
	Type             AlertType `json:"type"`
	DaysBeforeExpiry int       `json:"days_before_expiry"`
	EmailEnabled     bool      `json:"email_enabled"`
	SMSEnabled       bool      `json:"sms_enabled"`
	CreatedAt        time.Time `json:"created_at"`
}

// Channels returns the enabled channels in a stable order.
func (r AlertRule) Channels() []Channel {
	var out []Channel
	if r.EmailEnabled {
		out = append(out, ChannelEmail)
	}
	if r.SMSEnabled {
		out = append(out, ChannelSMS)
	}
	return out
}

// Validate is applied when a rule is created. The engine does not re-check it.
func (r AlertRule) Validate() error {
	if r.TargetID == "" {
		return fmt.Errorf("alert rule: target id is required")
	}
	return r.CheckDefinition()
}

// CheckDefinition validates type and threshold, leaving the target
// binding aside so rules can be checked before their target exists.
func (r AlertRule) CheckDefinition() error {
	if !r.Type.Valid() {
		return fmt.Errorf("alert rule: unknown type %q", r.Type)
	}
	if r.DaysBeforeExpiry < 1 || r.DaysBeforeExpiry > MaxDaysBeforeExpiry {
		return fmt.Errorf("alert rule: days_before_expiry must be in [1,%d], got %d", MaxDaysBeforeExpiry, r.DaysBeforeExpiry)
	}
	return nil
}

type LogStatus string

// LogSent means an alert was triggered and delivery attempted, not that every
// channel succeeded.
const LogSent LogStatus = "sent"

// NotificationLogEntry is append-only. It is both the audit trail and the
// deduplication oracle.
type NotificationLogEntry struct {
	ID        string    `json:"id"`
	TargetID  TargetID  `json:"target_id"`
	AlertType AlertType `json:"alert_type"`
	Method    string    `json:"method"` // attempted channels, comma separated
	Status    LogStatus `json:"status"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
