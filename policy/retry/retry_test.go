package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gurpartap/promptchain/chain"
)

type generatorFunc func(context.Context, chain.GenerateRequest) (chain.Generation, error)

func (f generatorFunc) Generate(ctx context.Context, request chain.GenerateRequest) (chain.Generation, error) {
	return f(ctx, request)
}

// recordSleep captures requested delays without waiting.
func recordSleep(delays *[]time.Duration) func(context.Context, time.Duration) error {
	return func(_ context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	}
}

func fastConfig(maxAttempts int, delays *[]time.Duration) Config {
	return Config{
		MaxAttempts: maxAttempts,
		BaseDelay:   10 * time.Millisecond,
		MaxDelay:    time.Second,
		Multiplier:  2,
		Sleep:       recordSleep(delays),
	}
}

func failingKTimes(k int, calls *int) func(context.Context) (string, error) {
	return func(context.Context) (string, error) {
		*calls++
		if *calls <= k {
			return "", fmt.Errorf("call %d: %w", *calls, chain.ErrRateLimited)
		}
		return "ok", nil
	}
}

func TestDo_FailsKTimesThenSucceeds(t *testing.T) {
	t.Parallel()

	for k := 0; k <= 4; k++ {
		calls := 0
		var delays []time.Duration
		got, err := Do(context.Background(), fastConfig(k+1, &delays), failingKTimes(k, &calls))
		require.NoError(t, err, "k=%d", k)
		assert.Equal(t, "ok", got)
		assert.Equal(t, k+1, calls, "k=%d", k)
		assert.Len(t, delays, k, "no wait before the first attempt or after success")
	}
}

func TestDo_ExhaustsAfterExactlyMaxAttempts(t *testing.T) {
	t.Parallel()

	for k := 1; k <= 4; k++ {
		calls := 0
		var delays []time.Duration
		_, err := Do(context.Background(), fastConfig(k, &delays), failingKTimes(k, &calls))
		require.Error(t, err)
		assert.ErrorIs(t, err, chain.ErrRateLimited)
		assert.Contains(t, err.Error(), fmt.Sprintf("call %d:", k), "last error surfaces")
		assert.Contains(t, err.Error(), fmt.Sprintf("attempt %d/%d", k, k))
		assert.Equal(t, k, calls)
		assert.Len(t, delays, k-1, "no wait after the final attempt")
	}
}

func TestDo_NonRetryableStopsImmediately(t *testing.T) {
	t.Parallel()

	calls := 0
	boom := errors.New("invalid request body")
	var delays []time.Duration
	_, err := Do(context.Background(), fastConfig(5, &delays), func(context.Context) (int, error) {
		calls++
		return 0, boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
	assert.Empty(t, delays)
}

func TestDo_ZeroAttemptsIsConfigError(t *testing.T) {
	t.Parallel()

	for _, attempts := range []int{0, -1} {
		calls := 0
		_, err := Do(context.Background(), Config{MaxAttempts: attempts}, func(context.Context) (int, error) {
			calls++
			return 1, nil
		})
		require.ErrorIs(t, err, ErrInvalidConfig)
		assert.Zero(t, calls)
	}
}

func TestDo_NilAndDoneContexts(t *testing.T) {
	t.Parallel()

	calls := 0
	work := func(context.Context) (int, error) {
		calls++
		return 1, nil
	}

	//nolint:staticcheck // nil context is the case under test
	_, err := Do(nil, DefaultConfig(), work)
	require.ErrorIs(t, err, chain.ErrContextNil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Do(ctx, DefaultConfig(), work)
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)
}

func TestDo_CancelDuringBackoffReturnsBothErrors(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cfg := Config{
		MaxAttempts: 5,
		BaseDelay:   time.Hour,
		Multiplier:  2,
		Sleep: func(ctx context.Context, _ time.Duration) error {
			cancel()
			<-ctx.Done()
			return ctx.Err()
		},
	}
	calls := 0
	_, err := Do(ctx, cfg, func(context.Context) (int, error) {
		calls++
		return 0, chain.ErrOverloaded
	})
	require.ErrorIs(t, err, context.Canceled)
	require.ErrorIs(t, err, chain.ErrOverloaded)
	assert.Equal(t, 1, calls)
}

func TestDo_OnRetryObservesEachRetriedFailure(t *testing.T) {
	t.Parallel()

	var seen []int
	var delays []time.Duration
	cfg := fastConfig(3, &delays)
	cfg.OnRetry = func(attempt int, err error, _ time.Duration) {
		require.ErrorIs(t, err, chain.ErrRateLimited)
		seen = append(seen, attempt)
	}
	calls := 0
	_, err := Do(context.Background(), cfg, failingKTimes(10, &calls))
	require.Error(t, err)
	assert.Equal(t, []int{1, 2}, seen)
}

func TestBackoff_ExponentialCappedAtMax(t *testing.T) {
	t.Parallel()

	cfg := Config{BaseDelay: time.Second, MaxDelay: 10 * time.Second, Multiplier: 2}
	tests := []struct {
		retry int
		want  time.Duration
	}{
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 10 * time.Second},
		{40, 10 * time.Second},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, cfg.Backoff(tc.retry), "retry %d", tc.retry)
	}
}

func TestBackoff_SequenceRecordedByDo(t *testing.T) {
	t.Parallel()

	var delays []time.Duration
	calls := 0
	_, err := Do(context.Background(), fastConfig(4, &delays), failingKTimes(10, &calls))
	require.Error(t, err)
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 40 * time.Millisecond}, delays)
}

func TestDelay_JitterStaysInHalfToOneAndAHalf(t *testing.T) {
	t.Parallel()

	cfg := Config{BaseDelay: time.Second, MaxDelay: time.Minute, Multiplier: 3, Jitter: true}
	for retry := range 4 {
		base := cfg.Backoff(retry)
		for range 200 {
			d := cfg.delay(retry)
			require.GreaterOrEqual(t, d, base/2)
			require.Less(t, d, base+base/2)
		}
	}
}

func TestIsRetryable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		err     error
		markers []string
		want    bool
	}{
		{"nil", nil, DefaultMarkers, false},
		{"structured rate limit", fmt.Errorf("wrapped: %w", chain.ErrRateLimited), nil, true},
		{"structured timeout", chain.ErrTimeout, nil, true},
		{"structured overload", chain.ErrOverloaded, nil, true},
		{"structured api error", chain.ErrUpstreamAPI, nil, true},
		{"marker upper case", errors.New("Request TIMEOUT while reading"), DefaultMarkers, true},
		{"marker overloaded", errors.New("upstream Overloaded_error"), DefaultMarkers, true},
		{"marker api_error", errors.New("type=api_error"), DefaultMarkers, true},
		{"no marker", errors.New("invalid prompt"), DefaultMarkers, false},
		{"custom marker", errors.New("503 service unavailable"), []string{"unavailable"}, true},
		{"custom markers replace defaults", errors.New("timeout"), []string{"unavailable"}, false},
		{"context canceled", fmt.Errorf("timeout: %w", context.Canceled), DefaultMarkers, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, IsRetryable(tc.err, tc.markers...))
		})
	}
}

func TestConfig_MarkersAndShouldRetryOverride(t *testing.T) {
	t.Parallel()

	custom := Config{MaxAttempts: 3, Markers: []string{"busy"}}
	assert.True(t, custom.shouldRetry(errors.New("server BUSY")))
	assert.False(t, custom.shouldRetry(errors.New("rate_limit")))

	never := Config{MaxAttempts: 3, ShouldRetry: func(error) bool { return false }}
	assert.False(t, never.shouldRetry(chain.ErrRateLimited))
}

func TestWrapGenerator_RetriesAndPreservesCategory(t *testing.T) {
	t.Parallel()

	assert.Nil(t, WrapGenerator(nil, DefaultConfig()))

	calls := 0
	var delays []time.Duration
	generator := generatorFunc(func(_ context.Context, request chain.GenerateRequest) (chain.Generation, error) {
		calls++
		if calls < 3 {
			return chain.Generation{}, chain.ErrTimeout
		}
		return chain.Generation{Text: "echo:" + request.Prompt, InputTokens: 3, OutputTokens: 4}, nil
	})
	wrapped := WrapGenerator(generator, fastConfig(3, &delays))

	got, err := wrapped.Generate(context.Background(), chain.GenerateRequest{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "echo:hi", got.Text)
	assert.Equal(t, 3, calls)

	calls = -10
	_, err = wrapped.Generate(context.Background(), chain.GenerateRequest{Prompt: "hi"})
	require.ErrorIs(t, err, chain.ErrTimeout)
}

func TestFunc_RunsAttemptsUnderPolicy(t *testing.T) {
	t.Parallel()

	var delays []time.Duration
	hook := Func(fastConfig(3, &delays))
	calls := 0
	err := hook(context.Background(), func(context.Context) error {
		calls++
		if calls == 1 {
			return chain.ErrOverloaded
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Len(t, delays, 1)

	calls = 0
	err = hook(context.Background(), func(context.Context) error {
		calls++
		return chain.ErrTimeout
	})
	require.ErrorIs(t, err, chain.ErrTimeout)
	assert.Equal(t, 3, calls)
}
