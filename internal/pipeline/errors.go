package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/famomatic/dyextract/internal/types"
)

// StageError is a stage-aware failure. Step names the stage that failed.
type StageError struct {
	Step    Stage
	Message string
	Err     error
	// Fatal marks failures a retry by the user cannot fix (unparseable input).
	Fatal bool
}

func (e *StageError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Step, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Step, e.Message, e.Err)
}

func (e *StageError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Recoverable is the hint carried on error events.
func (e *StageError) Recoverable() bool { return !e.Fatal }

// cancelled is the terminal outcome of a cancelled run. It matches both
// types.ErrCancelled and the context's own error.
func cancelled(ctx context.Context) error {
	cause := context.Cause(ctx)
	if cause == nil {
		cause = context.Canceled
	}
	return fmt.Errorf("%w: %w", types.ErrCancelled, cause)
}

// IsCancelled reports whether err is a cancelled outcome rather than a failure.
func IsCancelled(err error) bool {
	return errors.Is(err, types.ErrCancelled)
}

func errorPayload(err error) ErrorPayload {
	p := ErrorPayload{Message: err.Error(), Recoverable: true}
	var se *StageError
	if errors.As(err, &se) {
		p.Step = se.Step
		p.Message = se.Message
		p.Recoverable = se.Recoverable()
		if se.Err != nil {
			p.Cause = se.Err.Error()
		}
	}
	var rl *types.RateLimitError
	if errors.As(err, &rl) {
		p.Message = rl.FriendlyMessage()
	}
	return p
}
