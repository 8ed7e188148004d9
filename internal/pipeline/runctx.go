package pipeline

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/famomatic/dyextract/internal/types"
)

// RunContext is the per-invocation state of one run. It is owned by a single
// orchestrator call and discarded when the run ends.
type RunContext struct {
	ID        string
	Input     string
	Stage     Stage
	StartedAt time.Time

	transcript strings.Builder
	markdown   strings.Builder
}

func newRunContext(input string) *RunContext {
	return &RunContext{
		ID:        uuid.NewString(),
		Input:     input,
		StartedAt: time.Now(),
	}
}

// Transcript is the text accumulated from transcript partials.
func (rc *RunContext) Transcript() string { return rc.transcript.String() }

// Markdown is the text accumulated from markdown partials.
func (rc *RunContext) Markdown() string { return rc.markdown.String() }

func (rc *RunContext) appendTranscript(s string) { rc.transcript.WriteString(s) }

func (rc *RunContext) appendMarkdown(s string) { rc.markdown.WriteString(s) }

// run drives a RunContext through its stages.
type run struct {
	ctx    context.Context
	rc     *RunContext
	em     *emitter
	spans  map[Stage]span
	logger Logger
}

func newRun(ctx context.Context, input string, sink Sink, source Source, spans map[Stage]span, logger Logger) *run {
	rc := newRunContext(input)
	ctx = types.WithRunID(ctx, rc.ID)
	if logger == nil {
		logger = nopLogger{}
	}
	return &run{
		ctx:    ctx,
		rc:     rc,
		em:     newEmitter(ctx, sink, rc.ID, source),
		spans:  spans,
		logger: logger,
	}
}

// stage runs fn as stage st. A stage is skipped when the run is already
// cancelled, and a failure observed after cancellation is reported as
// cancellation.
func (r *run) stage(st Stage, message string, fn func(ctx context.Context) error) error {
	if r.ctx.Err() != nil {
		return cancelled(r.ctx)
	}
	r.rc.Stage = st
	sp := r.spans[st]
	r.logger.Debugf("run %s: stage %s started", r.rc.ID, st)
	r.em.progress(st, sp.start, StatusActive, "")

	if err := fn(r.ctx); err != nil {
		if r.ctx.Err() != nil {
			return cancelled(r.ctx)
		}
		var se *StageError
		if errors.As(err, &se) {
			return se
		}
		return &StageError{Step: st, Message: message, Err: err}
	}
	if r.ctx.Err() != nil {
		return cancelled(r.ctx)
	}
	r.em.progress(st, sp.end, StatusDone, "")
	r.logger.Debugf("run %s: stage %s done", r.rc.ID, st)
	return nil
}

// finish emits the terminal event. Cancelled runs emit nothing.
func (r *run) finish(result Artifact, err error) error {
	switch {
	case err == nil:
		r.rc.Stage = StageDone
		r.em.progress(StageDone, 100, StatusDone, "")
		r.em.done(result)
		r.logger.Infof("run %s: done in %v", r.rc.ID, time.Since(r.rc.StartedAt).Round(time.Millisecond))
		return nil
	case IsCancelled(err):
		r.logger.Infof("run %s: cancelled during %s", r.rc.ID, r.rc.Stage)
		return err
	default:
		r.em.fail(errorPayload(err))
		r.logger.Warnf("run %s: failed: %v", r.rc.ID, err)
		return err
	}
}
