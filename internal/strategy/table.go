// Package strategy chooses which pipeline handles a piece of user input.
package strategy

import (
	"errors"
	"fmt"

	"github.com/famomatic/dyextract/internal/pipeline"
	"github.com/famomatic/dyextract/internal/tokens"
)

// Strategy is one row of the dispatch table. Detect must be a pure function
// of the input text.
type Strategy struct {
	Name string
	// Priority orders the table; a lower number wins.
	Priority int
	// EventPrefix names the source stamped on every event the pipeline
	// emits, so raw names read "<prefix>-<type>". Empty keeps the
	// pipeline's own source.
	EventPrefix string
	Detect      func(input string) bool
	Pipeline    pipeline.Runner
	// EstimateTokens sizes the LLM budget a run on input will need.
	EstimateTokens func(input string) tokens.Estimate
}

// Table is an immutable, priority-ordered list of strategies.
type Table struct {
	rows []Strategy
}

var (
	ErrDuplicatePriority = errors.New("duplicate strategy priority")
	ErrUnordered         = errors.New("strategies not ordered by priority")
	ErrIncomplete        = errors.New("strategy missing name, detector or pipeline")
)

// Validate checks the table invariants: every row is complete, priorities are
// unique and rows are sorted ascending by priority.
func Validate(rows []Strategy) error {
	seen := make(map[int]string, len(rows))
	for i, s := range rows {
		if s.Name == "" || s.Detect == nil || s.Pipeline == nil {
			return fmt.Errorf("%w: row %d (%q)", ErrIncomplete, i, s.Name)
		}
		if other, dup := seen[s.Priority]; dup {
			return fmt.Errorf("%w: %q and %q share priority %d", ErrDuplicatePriority, other, s.Name, s.Priority)
		}
		seen[s.Priority] = s.Name
		if i > 0 && rows[i-1].Priority > s.Priority {
			return fmt.Errorf("%w: %q (%d) listed after %q (%d)", ErrUnordered, s.Name, s.Priority, rows[i-1].Name, rows[i-1].Priority)
		}
	}
	return nil
}

// NewTable validates rows and copies them into a Table.
func NewTable(rows ...Strategy) (Table, error) {
	if err := Validate(rows); err != nil {
		return Table{}, err
	}
	return Table{rows: append([]Strategy(nil), rows...)}, nil
}

// MustTable is NewTable for statically known tables; it panics on an invalid
// table at startup.
func MustTable(rows ...Strategy) Table {
	t, err := NewTable(rows...)
	if err != nil {
		panic(err)
	}
	return t
}

// Select returns the first strategy, in priority order, whose detector
// matches input.
func (t Table) Select(input string) (Strategy, bool) {
	for _, s := range t.rows {
		if s.Detect(input) {
			return s, true
		}
	}
	return Strategy{}, false
}

// Strategies returns a copy of the rows in priority order.
func (t Table) Strategies() []Strategy {
	return append([]Strategy(nil), t.rows...)
}

// Sink wraps sink so events leave under the row's EventPrefix.
func (s Strategy) Sink(sink pipeline.Sink) pipeline.Sink {
	if sink == nil {
		sink = pipeline.Discard
	}
	if s.EventPrefix == "" {
		return sink
	}
	source := pipeline.Source(s.EventPrefix)
	return pipeline.SinkFunc(func(ev pipeline.Event) {
		ev.Source = source
		sink.Emit(ev)
	})
}
