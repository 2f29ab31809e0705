package deployment

import "time"

// =============================================================================
// Retry Backoff
// =============================================================================

// MaxAttempts is how many times a transient deploy step is tried before the
// deployment fails. Build failures and invalid specs are never retried.
const MaxAttempts = 3

// Backoff returns the delay before the given attempt number. Attempt 1 has
// no delay; each subsequent attempt doubles the base delay.
//
//	Backoff(1, time.Second) // 0
//	Backoff(2, time.Second) // 1s
//	Backoff(3, time.Second) // 2s
func Backoff(attempt int, base time.Duration) time.Duration {
	if attempt <= 1 {
		return 0
	}
	return base << (attempt - 2)
}
