package llm

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// RetryConfig defines backoff behavior for provider rate limit handling.
// Defaults are sized for per-minute token quota windows.
type RetryConfig struct {
	MaxRetries        int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
}

const (
	defaultMaxRetries        = 3
	defaultInitialBackoff    = 20 * time.Second
	defaultMaxBackoff        = 90 * time.Second
	defaultBackoffMultiplier = 1.5
)

// NewDefaultRetryConfig returns a RetryConfig with defaults suited to the
// supported cloud providers.
func NewDefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries:        defaultMaxRetries,
		InitialBackoff:    defaultInitialBackoff,
		MaxBackoff:        defaultMaxBackoff,
		BackoffMultiplier: defaultBackoffMultiplier,
	}
}

// IsRateLimitError reports whether an error looks like a provider rate limit.
// Matches 429 status codes, RESOURCE_EXHAUSTED and quota errors.
func IsRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "RESOURCE_EXHAUSTED") ||
		strings.Contains(errStr, "rate_limit") ||
		strings.Contains(errStr, "quota")
}

// retryDelayRegex matches "Please retry in Xs" or "retryDelay:Xs" patterns
var retryDelayRegex = regexp.MustCompile(`(?i)(?:Please retry in |retryDelay[:\s]+)(\d+(?:\.\d+)?)\s*s`)

// ExtractRetryDelay parses the API-suggested retry delay from a provider
// error message. Returns 0 if no delay is present.
func ExtractRetryDelay(err error) time.Duration {
	if err == nil {
		return 0
	}

	matches := retryDelayRegex.FindStringSubmatch(err.Error())
	if len(matches) < 2 {
		return 0
	}

	seconds, parseErr := strconv.ParseFloat(matches[1], 64)
	if parseErr != nil {
		return 0
	}

	return time.Duration(seconds * float64(time.Second))
}

// CalculateBackoff computes the wait before the given retry attempt.
// An API-provided delay takes precedence over InitialBackoff; the result is
// capped at MaxBackoff.
func (c *RetryConfig) CalculateBackoff(attempt int, apiDelay time.Duration) time.Duration {
	base := c.InitialBackoff
	if apiDelay > 0 {
		base = apiDelay + 2*time.Second
	}

	multiplier := 1.0
	for i := 0; i < attempt; i++ {
		multiplier *= c.BackoffMultiplier
	}

	backoff := time.Duration(float64(base) * multiplier)
	if backoff > c.MaxBackoff {
		backoff = c.MaxBackoff
	}

	return backoff
}
