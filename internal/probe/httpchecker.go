package probe

import (
	"context"
	"crypto/tls"
	"net/http"
	"strings"
	"time"
)

type HTTPChecker struct {
	Client *http.Client
}

// NewHTTPChecker builds a checker whose client never reuses connections, so
// each probe releases its socket when the response body is closed.
// Certificate trust is not enforced here; certificate health has its own probe.
func NewHTTPChecker(timeout time.Duration) *HTTPChecker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPChecker{
		Client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				TLSClientConfig:     &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // reachability only
				TLSHandshakeTimeout: timeout,
				DisableKeepAlives:   true,
			},
		},
	}
}

func (h *HTTPChecker) Check(ctx context.Context, target string) CheckResult {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, NormalizeURL(target), nil)
	if err != nil {
		return CheckResult{Up: false, Message: err.Error()}
	}

	resp, err := h.Client.Do(req)
	latency := time.Since(start).Seconds() * 1000 // ms
	if err != nil {
		return CheckResult{Up: false, Message: err.Error(), LatencyMS: latency}
	}
	defer resp.Body.Close()

	return CheckResult{
		Up:         resp.StatusCode >= 200 && resp.StatusCode < 400,
		StatusCode: resp.StatusCode,
		Message:    resp.Status,
		LatencyMS:  latency,
	}
}

// NormalizeURL turns a bare hostname into an https URL. Values that already
// carry a scheme are returned trimmed but otherwise untouched.
func NormalizeURL(target string) string {
	t := strings.TrimSpace(target)
	if t == "" || strings.Contains(t, "://") {
		return t
	}
	return "https://" + t
}
