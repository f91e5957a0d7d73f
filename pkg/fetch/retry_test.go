package fetch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetrier_SucceedsFirstTry(t *testing.T) {
	retrier := NewRetrier(3, time.Millisecond, 10*time.Millisecond)

	calls := 0
	err := retrier.Do(context.Background(), func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetrier_RetriesTransient(t *testing.T) {
	retrier := NewRetrier(3, time.Millisecond, 10*time.Millisecond)

	calls := 0
	err := retrier.Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return &TransientError{Domain: "example.com", Status: 503, Err: errors.New("server error")}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetrier_StopsOnTerminal(t *testing.T) {
	retrier := NewRetrier(5, time.Millisecond, 10*time.Millisecond)

	calls := 0
	err := retrier.Do(context.Background(), func() error {
		calls++
		return &TerminalError{Err: errors.New("page not found")}
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls, "terminal errors are not retried")

	var te *TerminalError
	assert.ErrorAs(t, err, &te, "original error type survives")
}

func TestRetrier_StopsOnTerminalMessagePattern(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		retried bool
	}{
		{"http 404", errors.New("request failed with 404"), false},
		{"not found", errors.New("page Not Found"), false},
		{"invalid url", errors.New("invalid URL escape"), false},
		{"malformed", errors.New("malformed response"), false},
		{"unauthorized", errors.New("401 Unauthorized"), false},
		{"timeout", errors.New("context deadline exceeded on dial"), true},
		{"refused", errors.New("connection refused"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			retrier := NewRetrier(3, time.Millisecond, 10*time.Millisecond)
			calls := 0
			err := retrier.Do(context.Background(), func() error {
				calls++
				return tt.err
			})
			require.Error(t, err)
			if tt.retried {
				assert.Equal(t, 3, calls)
			} else {
				assert.Equal(t, 1, calls)
			}
		})
	}
}

func TestRetrier_StopsOnProtection(t *testing.T) {
	retrier := NewRetrier(5, time.Millisecond, 10*time.Millisecond)

	calls := 0
	err := retrier.Do(context.Background(), func() error {
		calls++
		return &ProtectionError{Domain: "example.com", Method: "http", Reason: "cloudflare"}
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls, "block pages are escalated, not retried")

	var pe *ProtectionError
	assert.ErrorAs(t, err, &pe)
}

func TestRetrier_ExhaustsAttempts(t *testing.T) {
	retrier := NewRetrier(3, time.Millisecond, 10*time.Millisecond)

	calls := 0
	err := retrier.Do(context.Background(), func() error {
		calls++
		return errors.New("boom")
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestIsRateLimited(t *testing.T) {
	assert.True(t, IsRateLimited(&TransientError{Domain: "d", Status: 429, Err: errors.New("x")}))
	assert.True(t, IsRateLimited(errors.New("got 429 from upstream")))
	assert.True(t, IsRateLimited(errors.New("rate limit exceeded")))
	assert.False(t, IsRateLimited(errors.New("connection reset")))
	assert.False(t, IsRateLimited(nil))
}
