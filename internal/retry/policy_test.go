package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/sitebuilder/internal/config"
)

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()
	require.Equal(t, config.RetryBackoffLinear, p.Mode)
	require.Equal(t, config.DefaultRetryDelay, p.Initial)
	require.Equal(t, 10*time.Second, p.Max)
	require.Equal(t, config.DefaultRetries, p.MaxRetries)
	require.NoError(t, p.Validate())
}

// Initial above Max is clamped.
func TestNewPolicyOverrides(t *testing.T) {
	p := NewPolicy(config.RetryBackoffFixed, 5*time.Second, 2*time.Second, 5)
	require.Equal(t, 2*time.Second, p.Initial)
	require.Equal(t, 2*time.Second, p.Max)
	require.Equal(t, config.RetryBackoffFixed, p.Mode)
	require.Equal(t, 5, p.MaxRetries)

	require.Equal(t, config.RetryBackoffLinear, NewPolicy("bogus", 0, 0, -1).Mode)
}

func TestFromNotify(t *testing.T) {
	cfg := config.Default()
	cfg.Notify.Backoff = config.RetryBackoffExponential
	cfg.Notify.Retries = 4
	p := FromNotify(cfg.Notify)
	require.Equal(t, config.RetryBackoffExponential, p.Mode)
	require.Equal(t, 4, p.MaxRetries)
	require.Equal(t, config.DefaultRetryDelay, p.Initial)
}

func TestDelayModes(t *testing.T) {
	tests := []struct {
		name   string
		policy Policy
		want   []time.Duration
	}{
		{"fixed", NewPolicy(config.RetryBackoffFixed, 100*time.Millisecond, 500*time.Millisecond, 3),
			[]time.Duration{100 * time.Millisecond, 100 * time.Millisecond, 100 * time.Millisecond}},
		{"linear", NewPolicy(config.RetryBackoffLinear, 100*time.Millisecond, 250*time.Millisecond, 5),
			[]time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 250 * time.Millisecond, 250 * time.Millisecond}},
		{"exponential", NewPolicy(config.RetryBackoffExponential, 50*time.Millisecond, 160*time.Millisecond, 5),
			[]time.Duration{50 * time.Millisecond, 100 * time.Millisecond, 160 * time.Millisecond, 160 * time.Millisecond}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for i, want := range tt.want {
				require.Equal(t, want, tt.policy.Delay(i+1), "attempt %d", i+1)
			}
		})
	}
}

func TestDelayEdgeCases(t *testing.T) {
	p := NewPolicy(config.RetryBackoffExponential, 10*time.Millisecond, 20*time.Millisecond, 1)
	require.Zero(t, p.Delay(0))
	require.Zero(t, p.Delay(-1))
	require.Equal(t, 20*time.Millisecond, p.Delay(64))
}

func TestDo(t *testing.T) {
	p := NewPolicy(config.RetryBackoffFixed, time.Millisecond, time.Millisecond, 3)
	errFlaky := errors.New("flaky")

	calls := 0
	var retried []int
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errFlaky
		}
		return nil
	}, func(attempt int, _ error) { retried = append(retried, attempt) })
	require.NoError(t, err)
	require.Equal(t, 3, calls)
	require.Equal(t, []int{1, 2}, retried)

	calls = 0
	err = p.Do(context.Background(), func(context.Context) error { calls++; return errFlaky }, nil)
	require.ErrorIs(t, err, errFlaky)
	require.Equal(t, 4, calls)
}

func TestDo_Canceled(t *testing.T) {
	p := NewPolicy(config.RetryBackoffFixed, time.Hour, time.Hour, 3)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := p.Do(ctx, func(context.Context) error { return errors.New("down") }, nil)
	require.ErrorIs(t, err, context.Canceled)
}
