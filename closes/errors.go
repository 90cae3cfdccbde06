package closes

import (
	"context"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/wire"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	// ErrSession is matched by errors that occurred while loading
	// credentials or opening a session with the node. These failures are
	// usually configuration problems.
	ErrSession = errors.New("session unavailable")

	// ErrChainLookup is matched by errors that occurred while querying
	// channel or chain state through an open session.
	ErrChainLookup = errors.New("chain lookup failed")

	// errStageCycle is returned if our stages have dependencies that can
	// never be satisfied.
	errStageCycle = errors.New("stage dependencies cannot be satisfied")
)

// Stage identifies a step of our pipeline.
type Stage string

const (
	// StageCredentials loads the credentials for the node requested.
	StageCredentials Stage = "credentials"

	// StageSession opens a session with the node.
	StageSession Stage = "session"

	// StageClosedList fetches the node's closed channels.
	StageClosedList Stage = "closedList"

	// StageHeight fetches the current best block height.
	StageHeight Stage = "height"

	// StageResolve classifies the outputs of each selected close.
	StageResolve Stage = "resolve"
)

// StageError is returned when a stage of our pipeline fails. It matches
// ErrSession or ErrChainLookup depending on the stage that failed.
type StageError struct {
	// Stage is the stage that failed.
	Stage Stage

	// ChannelPoint is the channel we were resolving when the error
	// occurred. It is only set for the resolve stage.
	ChannelPoint *wire.OutPoint

	// Err is the underlying error.
	Err error
}

// newStageError wraps an error in a stage error, unless it is already one.
func newStageError(stage Stage, chanPoint *wire.OutPoint,
	err error) error {

	var stageErr *StageError
	if errors.As(err, &stageErr) {
		return err
	}

	return &StageError{
		Stage:        stage,
		ChannelPoint: chanPoint,
		Err:          err,
	}
}

// Error returns a string representation of a stage error.
func (s *StageError) Error() string {
	if s.ChannelPoint != nil {
		return fmt.Sprintf("%v stage failed for channel %v: %v",
			s.Stage, s.ChannelPoint, s.Err)
	}

	return fmt.Sprintf("%v stage failed: %v", s.Stage, s.Err)
}

// Unwrap returns the underlying error.
func (s *StageError) Unwrap() error {
	return s.Err
}

// Is matches our stage error against the error category of its stage.
func (s *StageError) Is(target error) bool {
	switch s.Stage {
	case StageCredentials, StageSession:
		return target == ErrSession

	default:
		return target == ErrChainLookup
	}
}

// IsTransient returns true if an error was caused by a failure that may
// succeed if the request is retried, such as a node that is temporarily
// unreachable.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded,
		codes.ResourceExhausted, codes.Aborted:

		return true

	default:
		return false
	}
}
