package scheduler

import "time"

const (
	DefaultRetryBackoff = 15 * time.Minute
	MaxRetryBackoff     = 24 * time.Hour
)

// Backoff is the wait before retrying a record that has failed `failures`
// times: base doubled per earlier failure, capped at MaxRetryBackoff.
func Backoff(base time.Duration, failures int) time.Duration {
	if base <= 0 {
		base = DefaultRetryBackoff
	}
	d := base
	for i := 1; i < failures; i++ {
		d *= 2
		if d >= MaxRetryBackoff {
			return MaxRetryBackoff
		}
	}
	if d > MaxRetryBackoff {
		return MaxRetryBackoff
	}
	return d
}
