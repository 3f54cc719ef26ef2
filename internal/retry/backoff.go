package retry

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"
)

// Config defines retry behavior.
type Config struct {
	MaxRetries    int           `yaml:"maxRetries"`
	InitialDelay  time.Duration `yaml:"initialDelay"`
	MaxDelay      time.Duration `yaml:"maxDelay"`
	Multiplier    float64       `yaml:"multiplier"`
	JitterEnabled bool          `yaml:"jitter"`
}

// Single performs exactly one attempt.
func Single() Config {
	return Config{MaxRetries: 1}
}

// DefaultConfig returns bounded settings suitable for attestation relayers.
func DefaultConfig() Config {
	return Config{
		MaxRetries:    4,
		InitialDelay:  500 * time.Millisecond,
		MaxDelay:      10 * time.Second,
		Multiplier:    2.0,
		JitterEnabled: true,
	}
}

// WithBackoff executes fn with exponential backoff and optional jitter.
func WithBackoff(ctx context.Context, cfg Config, logger *slog.Logger, operation string, fn func() error) error {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 1
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return fmt.Errorf("retry cancelled: %w", ctx.Err())
		default:
		}

		lastErr = fn()
		if lastErr == nil {
			if attempt > 1 && logger != nil {
				logger.Info("operation succeeded after retries", "operation", operation, "attempts", attempt)
			}
			return nil
		}

		if attempt == cfg.MaxRetries {
			if cfg.MaxRetries == 1 {
				return lastErr
			}
			return fmt.Errorf("%s failed after %d attempts: %w", operation, cfg.MaxRetries, lastErr)
		}

		delay := calculateBackoff(cfg, attempt)
		if logger != nil {
			logger.Warn("operation failed, retrying",
				"operation", operation,
				"attempt", attempt,
				"max_retries", cfg.MaxRetries,
				"retry_in", delay,
				"error", lastErr)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-timer.C:
		}
	}

	return lastErr
}

func calculateBackoff(cfg Config, attempt int) time.Duration {
	multiplier := cfg.Multiplier
	if multiplier < 1 {
		multiplier = 1
	}
	delay := float64(cfg.InitialDelay) * math.Pow(multiplier, float64(attempt-1))

	if cfg.MaxDelay > 0 && delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}

	if cfg.JitterEnabled {
		jitter := rand.Float64() * 0.3 * delay
		delay = delay + jitter - (0.15 * delay)
	}

	return time.Duration(delay)
}
