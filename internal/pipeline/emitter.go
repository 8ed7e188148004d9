package pipeline

import (
	"context"
	"sync"
	"time"
)

// emitter stamps and filters one run's events: percentages never go down,
// nothing follows a terminal event and nothing is sent once ctx is done.
type emitter struct {
	mu       sync.Mutex
	ctx      context.Context
	sink     Sink
	runID    string
	source   Source
	now      func() time.Time
	seq      int64
	lastPct  float64
	terminal bool
}

func newEmitter(ctx context.Context, sink Sink, runID string, source Source) *emitter {
	if sink == nil {
		sink = Discard
	}
	return &emitter{ctx: ctx, sink: sink, runID: runID, source: source, now: time.Now}
}

// emit reports whether ev was delivered.
func (e *emitter) emit(ev Event) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.terminal || e.ctx.Err() != nil {
		return false
	}
	if ev.Progress != nil {
		p := *ev.Progress
		if p.Percentage < e.lastPct {
			p.Percentage = e.lastPct
		}
		if p.Percentage > 100 {
			p.Percentage = 100
		}
		e.lastPct = p.Percentage
		ev.Progress = &p
	}
	e.seq++
	ev.Seq = e.seq
	ev.Timestamp = e.now().UTC()
	ev.RunID = e.runID
	ev.Source = e.source
	if ev.Type.Terminal() {
		e.terminal = true
	}
	e.sink.Emit(ev)
	return true
}

func (e *emitter) progress(stage Stage, pct float64, status Status, detail string) {
	e.emit(Event{Type: EventProgress, Progress: &Progress{
		Stage:      stage,
		Label:      stageLabels[stage],
		Percentage: pct,
		Status:     status,
		Detail:     detail,
	}})
}

func (e *emitter) info(stage Stage, msg string, payload any) {
	e.emit(Event{Type: EventInfo, Info: &Info{Stage: stage, Message: msg, Payload: payload}})
}

func (e *emitter) partial(key PartialKey, data string) {
	if data == "" {
		return
	}
	e.emit(Event{Type: EventPartial, Partial: &Partial{Key: key, Data: data}})
}

func (e *emitter) done(result Artifact) {
	e.emit(Event{Type: EventDone, Done: &Done{Result: result}})
}

func (e *emitter) fail(payload ErrorPayload) {
	e.emit(Event{Type: EventError, Error: &payload})
}
