package closes

import (
	"context"
	"fmt"
	"testing"

	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// TestStageError tests matching of stage errors against their categories.
func TestStageError(t *testing.T) {
	tests := []struct {
		stage    Stage
		expected error
		other    error
	}{
		{
			stage:    StageCredentials,
			expected: ErrSession,
			other:    ErrChainLookup,
		},
		{
			stage:    StageSession,
			expected: ErrSession,
			other:    ErrChainLookup,
		},
		{
			stage:    StageClosedList,
			expected: ErrChainLookup,
			other:    ErrSession,
		},
		{
			stage:    StageHeight,
			expected: ErrChainLookup,
			other:    ErrSession,
		},
		{
			stage:    StageResolve,
			expected: ErrChainLookup,
			other:    ErrSession,
		},
	}

	for _, test := range tests {
		t.Run(string(test.stage), func(t *testing.T) {
			t.Parallel()

			err := newStageError(test.stage, nil, errMock)
			require.ErrorIs(t, err, test.expected)
			require.ErrorIs(t, err, errMock)
			require.NotErrorIs(t, err, test.other)

			// Wrapping a stage error again keeps the original
			// stage.
			rewrapped := newStageError(StageResolve, nil, err)
			require.Equal(t, err, rewrapped)
		})
	}
}

// TestStageErrorString tests that our errors identify the channel that we
// failed on.
func TestStageErrorString(t *testing.T) {
	chanPoint := &wire.OutPoint{Index: 3}

	err := newStageError(StageResolve, chanPoint, errMock)
	require.Equal(t, fmt.Sprintf("resolve stage failed for channel %v: "+
		"mock error", chanPoint), err.Error())

	err = newStageError(StageHeight, nil, errMock)
	require.Equal(t, "height stage failed: mock error", err.Error())
}

// TestIsTransient tests identification of transient errors.
func TestIsTransient(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		transient bool
	}{
		{
			name:      "nil",
			err:       nil,
			transient: false,
		},
		{
			name:      "plain error",
			err:       errMock,
			transient: false,
		},
		{
			name:      "unavailable",
			err:       status.Error(codes.Unavailable, "down"),
			transient: true,
		},
		{
			name: "wrapped in stage error",
			err: newStageError(
				StageHeight, nil,
				status.Error(codes.ResourceExhausted, "busy"),
			),
			transient: true,
		},
		{
			name: "wrapped with context",
			err: fmt.Errorf("lookup: %w", status.Error(
				codes.Aborted, "aborted",
			)),
			transient: true,
		},
		{
			name:      "permission denied",
			err:       status.Error(codes.PermissionDenied, "no"),
			transient: false,
		},
		{
			name:      "deadline",
			err:       fmt.Errorf("wait: %w", context.DeadlineExceeded),
			transient: true,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			require.Equal(t, test.transient, IsTransient(test.err))
		})
	}
}
