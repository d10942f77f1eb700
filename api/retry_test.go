package api

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/warp/payroll-engine/generic"
)

func TestRetryPolicy_Do(t *testing.T) {
	transient := generic.Unavailable("load", errors.New("database is locked"))
	policy := RetryPolicy{Attempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}

	tests := []struct {
		name      string
		failures  int
		err       error
		wantCalls int
		wantErr   error
	}{
		{"succeeds first time", 0, nil, 1, nil},
		{"recovers after transient failures", 2, transient, 3, nil},
		{"gives up after attempts", 10, transient, 3, generic.ErrStorageUnavailable},
		{"does not retry domain errors", 10, generic.ErrInvalidPeriod, 1, generic.ErrInvalidPeriod},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := policy.Do(context.Background(), func(context.Context) error {
				calls++
				if calls <= tt.failures {
					return tt.err
				}
				return nil
			})
			assert.Equal(t, tt.wantCalls, calls)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestRetryPolicy_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := RetryPolicy{Attempts: 5, BaseDelay: time.Hour}

	calls := 0
	err := policy.Do(ctx, func(context.Context) error {
		calls++
		cancel()
		return generic.Unavailable("load", errors.New("i/o timeout"))
	})
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, generic.ErrStorageUnavailable)
}
