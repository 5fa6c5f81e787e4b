package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/gyaneshwarpardhi/posthogfwd/internal/logging"
)

// ErrConfig marks every configuration error. Startup should abort on it.
var ErrConfig = errors.New("invalid configuration")

// Validate checks required fields and value ranges, reporting every problem
// at once.
func Validate(cfg *Config) error {
	var errs []string

	if strings.TrimSpace(cfg.APIKey) == "" {
		errs = append(errs, "api_key is required (set "+EnvAPIKey+")")
	}
	if u, err := url.Parse(cfg.Endpoint); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Sprintf("endpoint %q must be an absolute http(s) URL", cfg.Endpoint))
	}
	if cfg.TimeoutMs < 0 {
		errs = append(errs, "timeout_ms must not be negative")
	}

	q := cfg.Queue
	if q.RetryDelaySeconds < 0 {
		errs = append(errs, "queue.retry_delay_seconds must not be negative")
	}
	if q.IdleIntervalMs < 0 {
		errs = append(errs, "queue.idle_interval_ms must not be negative")
	}
	if q.MaxSize < 0 {
		errs = append(errs, "queue.max_size must not be negative")
	}
	if q.MaxRetries < 0 {
		errs = append(errs, "queue.max_retries must not be negative")
	}
	if q.BackoffMultiplier < 1 {
		errs = append(errs, fmt.Sprintf("queue.backoff_multiplier %v must be >= 1", q.BackoffMultiplier))
	}
	if q.MaxRetryDelaySeconds < 0 {
		errs = append(errs, "queue.max_retry_delay_seconds must not be negative")
	}
	if q.FlushTimeoutMs < 0 {
		errs = append(errs, "queue.flush_timeout_ms must not be negative")
	}

	if _, err := logging.ParseLevel(cfg.Log.Level); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w:\n  - %s", ErrConfig, strings.Join(errs, "\n  - "))
	}
	return nil
}
