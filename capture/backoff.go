package capture

import "time"

// BackoffConfig is the exponential reconnection schedule shared by every
// Frame Source backend that can lose its capture handle, grounded on
// e7canasta-orion-care-sensor's rtsp.ReconnectConfig.
type BackoffConfig struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultBackoffConfig matches spec.md §4.4: N_retry=5, 1s -> 30s.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		MaxRetries:   5,
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
	}
}

// Delay returns the backoff delay before reconnection attempt number
// attempt (1-indexed).
func (c BackoffConfig) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := c.InitialDelay << uint(attempt-1)
	if delay > c.MaxDelay || delay <= 0 {
		delay = c.MaxDelay
	}
	return delay
}
