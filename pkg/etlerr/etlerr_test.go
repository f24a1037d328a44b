package etlerr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeNetError struct{}

func (fakeNetError) Error() string   { return "fake net error" }
func (fakeNetError) Timeout() bool   { return true }
func (fakeNetError) Temporary() bool { return true }

var _ net.Error = fakeNetError{}

func TestETL_Etlerr_Classify(t *testing.T) {
	t.Parallel()

	t.Run("explicit code wins over patterns", func(t *testing.T) {
		t.Parallel()
		err := New(CodeDataShape, errors.New("connection refused"))
		require.Equal(t, CodeDataShape, Classify(err))
	})

	t.Run("explicit code survives wrapping", func(t *testing.T) {
		t.Parallel()
		err := fmt.Errorf("failed to decode snapshot: %w", New(CodeDataShape, errors.New("missing columns")))
		require.Equal(t, CodeDataShape, Classify(err))
	})

	t.Run("net.Error is transient", func(t *testing.T) {
		t.Parallel()
		require.Equal(t, CodeTransientIO, Classify(fakeNetError{}))
	})

	t.Run("connectivity patterns are transient", func(t *testing.T) {
		t.Parallel()
		for _, msg := range []string{
			"dial tcp 10.0.0.1:5432: connection refused",
			"read: connection reset by peer",
			"i/o timeout",
			"503 Service Unavailable",
		} {
			require.Equal(t, CodeTransientIO, Classify(errors.New(msg)), msg)
		}
	})

	t.Run("credential patterns are config", func(t *testing.T) {
		t.Parallel()
		for _, msg := range []string{
			"pq: password authentication failed for user \"etl\"",
			"InvalidAccessKeyId: The AWS Access Key Id you provided does not exist",
			"access denied",
		} {
			require.Equal(t, CodeConfig, Classify(errors.New(msg)), msg)
		}
	})

	t.Run("unmatched errors are unknown", func(t *testing.T) {
		t.Parallel()
		require.Equal(t, CodeUnknown, Classify(errors.New("something odd")))
		require.Equal(t, CodeUnknown, Classify(nil))
	})
}

func TestETL_Etlerr_IsTransient(t *testing.T) {
	t.Parallel()

	t.Run("transient errors are retryable", func(t *testing.T) {
		t.Parallel()
		require.True(t, IsTransient(errors.New("connection refused")))
	})

	t.Run("context cancellation is not retryable", func(t *testing.T) {
		t.Parallel()
		require.False(t, IsTransient(context.Canceled))
		require.False(t, IsTransient(context.DeadlineExceeded))

		ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
		defer cancel()
		<-ctx.Done()
		require.False(t, IsTransient(ctx.Err()))
	})

	t.Run("data shape is not retryable", func(t *testing.T) {
		t.Parallel()
		require.False(t, IsTransient(New(CodeDataShape, errors.New("missing columns"))))
	})

	t.Run("nil is not retryable", func(t *testing.T) {
		t.Parallel()
		require.False(t, IsTransient(nil))
	})
}

func TestETL_Etlerr_ErrorString(t *testing.T) {
	t.Parallel()

	err := New(CodeTransientIO, errors.New("connection refused"))
	require.Equal(t, "transient_io: connection refused", err.Error())
	require.Equal(t, "connection refused", errors.Unwrap(err).Error())
}
