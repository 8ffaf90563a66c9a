package pattern

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRetry(t *testing.T) {
	boom := errors.New("boom")
	fatal := errors.New("fatal")

	cases := []struct {
		name         string
		failures     int
		failWith     error
		opts         []RetryOption
		wantErr      error
		wantAttempts int
	}{
		{name: "first_try", failures: 0, wantAttempts: 1},
		{name: "succeeds_after_retries", failures: 2, failWith: boom, wantAttempts: 3},
		{name: "exhausts_attempts", failures: 10, failWith: boom, opts: []RetryOption{WithMaxAttempts(3)}, wantErr: boom, wantAttempts: 3},
		{
			name:         "should_retry_rejects",
			failures:     10,
			failWith:     fatal,
			opts:         []RetryOption{WithShouldRetry(func(err error) bool { return !errors.Is(err, fatal) })},
			wantErr:      fatal,
			wantAttempts: 1,
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			attempts := 0
			opts := append([]RetryOption{WithInitialDelay(time.Millisecond), WithMaxDelay(2 * time.Millisecond)}, tc.opts...)
			err := Retry(context.Background(), func(int) error {
				attempts++
				if attempts <= tc.failures {
					return tc.failWith
				}
				return nil
			}, opts...)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
			} else {
				require.NoError(t, err)
			}
			require.Equal(t, tc.wantAttempts, attempts)
		})
	}
}

func TestRetry_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := Retry(ctx, func(int) error { return errors.New("down") },
		WithInfiniteAttempts(),
		WithInitialDelay(5*time.Millisecond),
	)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRetry_OnRetryHook(t *testing.T) {
	var seen []int
	err := Retry(context.Background(), func(attempt int) error {
		if attempt < 3 {
			return errors.New("again")
		}
		return nil
	},
		WithInitialDelay(time.Millisecond),
		WithJitter(0),
		WithOnRetry(func(attempt int, _ error, delay time.Duration) {
			seen = append(seen, attempt)
			require.Greater(t, delay, time.Duration(0))
		}),
	)
	require.NoError(t, err)
	require.Equal(t, []int{1, 2}, seen)
}

func TestRetryConfig_Backoff(t *testing.T) {
	cfg := defaultRetryConfig([]RetryOption{
		WithInitialDelay(100 * time.Millisecond),
		WithMaxDelay(time.Second),
		WithMultiplier(2),
	})
	require.Equal(t, 100*time.Millisecond, cfg.Backoff(1))
	require.Equal(t, 200*time.Millisecond, cfg.Backoff(2))
	require.Equal(t, 800*time.Millisecond, cfg.Backoff(4))
	require.Equal(t, time.Second, cfg.Backoff(10))
	require.Equal(t, 100*time.Millisecond, cfg.Backoff(0))
}
