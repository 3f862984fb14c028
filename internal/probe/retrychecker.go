package probe

import (
	"context"
	"fmt"
	"time"
)

// RetryChecker re-runs Inner until it reports up. Probers themselves never
// retry; the reachability sweep opts in by wrapping its checker.
type RetryChecker struct {
	Inner    Checker
	Attempts int
	Backoff  time.Duration
}

func (r *RetryChecker) Check(ctx context.Context, target string) CheckResult {
	attempts := r.Attempts
	if attempts < 1 {
		attempts = 1
	}
	var last CheckResult
	for i := 0; i < attempts; i++ {
		last = r.Inner.Check(ctx, target)
		if last.Up {
			return last
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			last.Message = fmt.Sprintf("%s (retry aborted: %v)", last.Message, ctx.Err())
			return last
		case <-time.After(r.Backoff):
		}
	}
	if attempts > 1 {
		last.Message = fmt.Sprintf("%s (after %d attempts)", last.Message, attempts)
	}
	return last
}
