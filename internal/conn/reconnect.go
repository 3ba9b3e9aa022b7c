package conn

import "time"

// ReconnectConfig bounds dial retries with exponential backoff.
type ReconnectConfig struct {
	MaxRetries    int           // attempts after the first failure
	RetryDelay    time.Duration // delay before the first retry
	MaxRetryDelay time.Duration // backoff cap
}

func DefaultReconnectConfig() ReconnectConfig {
	return ReconnectConfig{
		MaxRetries:    5,
		RetryDelay:    time.Second,
		MaxRetryDelay: 30 * time.Second,
	}
}

// calculateBackoff returns RetryDelay * 2^(attempt-1), capped at MaxRetryDelay.
func calculateBackoff(attempt int, cfg ReconnectConfig) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 30 {
		return cfg.MaxRetryDelay
	}
	delay := cfg.RetryDelay * time.Duration(1<<uint(attempt-1))
	if cfg.MaxRetryDelay > 0 && delay > cfg.MaxRetryDelay {
		delay = cfg.MaxRetryDelay
	}
	return delay
}
