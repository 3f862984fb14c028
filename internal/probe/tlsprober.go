package probe

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/hamed0406/domainguard/internal/domain"
)

const defaultTLSPort = "443"

// ErrCertificateUnavailable matches every *CertificateUnavailableError via errors.Is.
var ErrCertificateUnavailable = errors.New("certificate unavailable")

type UnavailableReason string

const (
	ReasonUnreachable   UnavailableReason = "unreachable"      // TCP connect failed
	ReasonHandshake     UnavailableReason = "handshake_failed" // connected, TLS failed
	ReasonNoCertificate UnavailableReason = "no_certificate"   // handshake ok, no peer cert
)

// CertificateUnavailableError is the only error TLSProber.Probe returns.
type CertificateUnavailableError struct {
	Host   string
	Reason UnavailableReason
	Err    error
}

func (e *CertificateUnavailableError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("certificate unavailable for %s: %s", e.Host, e.Reason)
	}
	return fmt.Sprintf("certificate unavailable for %s: %s: %v", e.Host, e.Reason, e.Err)
}

func (e *CertificateUnavailableError) Unwrap() error { return e.Err }

func (e *CertificateUnavailableError) Is(target error) bool {
	return target == ErrCertificateUnavailable
}

// Certificate describes the leaf certificate a host presented.
type Certificate struct {
	Host      string
	Issuer    string
	Subject   string
	NotBefore time.Time
	NotAfter  time.Time
	Status    domain.CertStatus
}

// TLSProber reads whatever certificate a host presents. It never validates
// the chain: self-signed and untrusted certificates are inspected like any other.
type TLSProber struct {
	Timeout time.Duration
	Now     func() time.Time
}

func NewTLSProber(timeout time.Duration) *TLSProber {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &TLSProber{Timeout: timeout, Now: time.Now}
}

// Probe handshakes with host on port 443 unless host carries its own port.
func (p *TLSProber) Probe(ctx context.Context, host string) (Certificate, error) {
	name, addr := splitTarget(host)

	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	var d net.Dialer
	raw, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return Certificate{}, &CertificateUnavailableError{Host: name, Reason: ReasonUnreachable, Err: err}
	}
	conn := tls.Client(raw, &tls.Config{
		ServerName:         name,
		InsecureSkipVerify: true, //nolint:gosec // expiry monitoring, not trust enforcement
	})
	defer conn.Close()

	if err := conn.HandshakeContext(ctx); err != nil {
		return Certificate{}, &CertificateUnavailableError{Host: name, Reason: ReasonHandshake, Err: err}
	}

	peers := conn.ConnectionState().PeerCertificates
	if len(peers) == 0 {
		return Certificate{}, &CertificateUnavailableError{Host: name, Reason: ReasonNoCertificate}
	}

	// Index 0 is always the leaf.
	leaf := peers[0]
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	return Certificate{
		Host:      name,
		Issuer:    issuerName(leaf),
		Subject:   leaf.Subject.CommonName,
		NotBefore: leaf.NotBefore,
		NotAfter:  leaf.NotAfter,
		Status:    domain.ClassifyCertificate(leaf.NotAfter, now()),
	}, nil
}

func issuerName(c *x509.Certificate) string {
	if c.Issuer.CommonName != "" {
		return c.Issuer.CommonName
	}
	if len(c.Issuer.Organization) > 0 && c.Issuer.Organization[0] != "" {
		return c.Issuer.Organization[0]
	}
	return "Unknown"
}

// splitTarget accepts "example.com", "example.com:8443" or a full URL and
// returns the SNI name plus the address to dial.
func splitTarget(raw string) (name, addr string) {
	s := strings.TrimSpace(raw)
	if strings.Contains(s, "://") {
		if u, err := url.Parse(s); err == nil && u.Host != "" {
			s = u.Host
		}
	}
	if h, port, err := net.SplitHostPort(s); err == nil {
		return h, net.JoinHostPort(h, port)
	}
	return s, net.JoinHostPort(s, defaultTLSPort)
}
