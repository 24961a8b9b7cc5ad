package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/Gurpartap/promptchain/chain"
)

// ErrInvalidConfig is returned before any attempt when the config cannot run.
var ErrInvalidConfig = errors.New("invalid retry config")

// DefaultMarkers are matched case-insensitively against error text by the
// default retry predicate.
var DefaultMarkers = []string{"rate_limit", "timeout", "overloaded", "api_error"}

// Config controls attempts, backoff, and retry classification.
type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// Multiplier is the exponential growth factor; values below 1 are treated as 1.
	Multiplier float64
	// Jitter scales each delay by a uniform factor in [0.5, 1.5).
	Jitter bool
	// ShouldRetry overrides the default classification when set.
	ShouldRetry func(error) bool
	// Markers overrides DefaultMarkers for the default classification.
	Markers []string
	// Sleep waits between attempts; nil uses a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
	// OnRetry observes every failed attempt that will be retried after delay.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultConfig returns three attempts with 1s base, 60s cap, doubling, and jitter.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    time.Minute,
		Multiplier:  2,
		Jitter:      true,
	}
}

func (c Config) Validate() error {
	if c.MaxAttempts < 1 {
		return fmt.Errorf("%w: max_attempts=%d must be >= 1", ErrInvalidConfig, c.MaxAttempts)
	}
	if c.BaseDelay < 0 || c.MaxDelay < 0 {
		return fmt.Errorf("%w: delays must not be negative", ErrInvalidConfig)
	}
	return nil
}

// Backoff returns the un-jittered wait before retry i (0-indexed after the
// first failure): min(BaseDelay * Multiplier^i, MaxDelay).
func (c Config) Backoff(retry int) time.Duration {
	multiplier := c.Multiplier
	if multiplier < 1 {
		multiplier = 1
	}
	delay := float64(c.BaseDelay) * math.Pow(multiplier, float64(retry))
	if c.MaxDelay > 0 && delay > float64(c.MaxDelay) {
		return c.MaxDelay
	}
	if delay > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(delay)
}

func (c Config) delay(retry int) time.Duration {
	d := c.Backoff(retry)
	if c.Jitter {
		d = time.Duration(float64(d) * (0.5 + rand.Float64())) //nolint:gosec // jitter does not need crypto rand
	}
	return d
}

func (c Config) shouldRetry(err error) bool {
	if c.ShouldRetry != nil {
		return c.ShouldRetry(err)
	}
	markers := c.Markers
	if len(markers) == 0 {
		markers = DefaultMarkers
	}
	return IsRetryable(err, markers...)
}

// IsRetryable reports whether err belongs to a transient upstream category or
// its text contains one of markers, ignoring case. Context cancellation is
// never retryable.
func IsRetryable(err error, markers ...string) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, chain.ErrRateLimited) ||
		errors.Is(err, chain.ErrTimeout) ||
		errors.Is(err, chain.ErrOverloaded) ||
		errors.Is(err, chain.ErrUpstreamAPI) {
		return true
	}
	text := strings.ToLower(err.Error())
	for _, marker := range markers {
		if marker != "" && strings.Contains(text, strings.ToLower(marker)) {
			return true
		}
	}
	return false
}

// Do runs work until it succeeds, fails with a non-retryable error, or the
// attempt budget is spent. The last error is returned with attempt context.
func Do[T any](ctx context.Context, cfg Config, work func(context.Context) (T, error)) (T, error) {
	var zero T
	if ctx == nil {
		return zero, chain.ErrContextNil
	}
	if err := cfg.Validate(); err != nil {
		return zero, err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return zero, ctxErr
	}
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	start := time.Now()
	var lastErr error
	attempt := 0
	for attempt < cfg.MaxAttempts {
		attempt++
		value, err := work(ctx)
		if err == nil {
			return value, nil
		}
		lastErr = err
		if attempt == cfg.MaxAttempts || ctx.Err() != nil || !cfg.shouldRetry(err) {
			break
		}
		delay := cfg.delay(attempt - 1)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err, delay)
		}
		if sleepErr := sleep(ctx, delay); sleepErr != nil {
			return zero, errors.Join(sleepErr, annotate(lastErr, attempt, cfg.MaxAttempts, start))
		}
	}
	return zero, annotate(lastErr, attempt, cfg.MaxAttempts, start)
}

func annotate(err error, attempt, maxAttempts int, start time.Time) error {
	return fmt.Errorf(
		"attempt %d/%d elapsed=%s: %w",
		attempt,
		maxAttempts,
		time.Since(start).Round(time.Millisecond),
		err,
	)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// WrapGenerator wraps a generator with retries governed by cfg.
func WrapGenerator(generator chain.Generator, cfg Config) chain.Generator {
	if generator == nil {
		return nil
	}
	return &generatorWrapper{
		next: generator,
		cfg:  cfg,
	}
}

type generatorWrapper struct {
	next chain.Generator
	cfg  Config
}

func (w *generatorWrapper) Generate(ctx context.Context, request chain.GenerateRequest) (chain.Generation, error) {
	return Do(ctx, w.cfg, func(ctx context.Context) (chain.Generation, error) {
		return w.next.Generate(ctx, request)
	})
}

// Func adapts cfg to the runner's retry hook so each attempt stays visible
// to the runner's telemetry.
func Func(cfg Config) chain.RetryFunc {
	return func(ctx context.Context, attempt func(context.Context) error) error {
		_, err := Do(ctx, cfg, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, attempt(ctx)
		})
		return err
	}
}
