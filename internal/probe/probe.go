package probe

import (
	"context"
	"time"
)

// DefaultTimeout bounds every network probe.
const DefaultTimeout = 10 * time.Second

// CheckResult is the outcome of a single reachability probe.
//
// Fields:
//   - Up: true for any HTTP response in the 200-399 range.
//   - StatusCode: HTTP status code when available; 0 for transport/DNS errors and timeouts.
//   - Message: status line on response, error text otherwise.
type CheckResult struct {
	Up         bool
	StatusCode int
	LatencyMS  float64
	Message    string
}

// Checker performs a single reachability check against a host or URL.
// Implementations never return errors; every failure is a down result.
type Checker interface {
	Check(ctx context.Context, target string) CheckResult
}
