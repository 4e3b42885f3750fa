package watcher

import "time"

// Backoff returns the delay before reconnect attempt k (zero based):
// min(base*2^k, max).
func Backoff(k int, base, max time.Duration) time.Duration {
	if k < 0 {
		k = 0
	}
	d := base
	for i := 0; i < k; i++ {
		if d >= max {
			return max
		}
		d *= 2
	}
	if d > max {
		return max
	}
	return d
}
