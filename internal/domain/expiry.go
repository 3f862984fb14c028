package domain

import "time"

// CertExpiringWindow is how close NotAfter must be before a certificate is
// reported as expiring soon.
const CertExpiringWindow = 30 * 24 * time.Hour

type Urgency string

const (
	UrgencyOK       Urgency = "ok"
	UrgencyExpiring Urgency = "expiring"
	UrgencyExpired  Urgency = "expired"
)

type Evaluation struct {
	Days    int
	Urgency Urgency
}

// DaysRemaining counts whole UTC calendar days from now to target. Zero means
// target falls on today's date, negative means it is already behind us.
func DaysRemaining(target, now time.Time) int {
	return int(dateUTC(target).Sub(dateUTC(now)) / (24 * time.Hour))
}

// EvaluateExpiry classifies target against a rule threshold: expired when
// Days <= 0, expiring when 0 < Days <= threshold, ok otherwise.
func EvaluateExpiry(target, now time.Time, threshold int) Evaluation {
	days := DaysRemaining(target, now)
	switch {
	case days <= 0:
		return Evaluation{Days: days, Urgency: UrgencyExpired}
	case days <= threshold:
		return Evaluation{Days: days, Urgency: UrgencyExpiring}
	default:
		return Evaluation{Days: days, Urgency: UrgencyOK}
	}
}

// ClassifyCertificate derives the health status from NotAfter alone.
func ClassifyCertificate(validUntil, now time.Time) CertStatus {
	switch {
	case validUntil.Before(now):
		return CertExpired
	case validUntil.Before(now.Add(CertExpiringWindow)):
		return CertExpiringSoon
	default:
		return CertValid
	}
}

func dateUTC(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
