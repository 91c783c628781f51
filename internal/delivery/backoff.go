package delivery

import "time"

const (
	minBackoff = 60 * time.Second
	maxBackoff = time.Hour
)

// BackoffDelay is 60s doubled per prior failure, capped at one hour.
func BackoffDelay(failures int) time.Duration {
	if failures < 0 {
		failures = 0
	}
	if failures > 16 {
		failures = 16
	}
	delay := minBackoff * time.Duration(1<<failures)
	if delay < minBackoff {
		return minBackoff
	}
	if delay > maxBackoff {
		return maxBackoff
	}
	return delay
}
