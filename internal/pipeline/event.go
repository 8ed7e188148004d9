// Package pipeline sequences the video extraction and comment analysis runs
// and reports their progress as an ordered event stream.
package pipeline

import "time"

// EventType is the variant tag of Event.
type EventType string

const (
	EventProgress EventType = "progress"
	EventInfo     EventType = "info"
	EventPartial  EventType = "partial"
	EventDone     EventType = "done"
	EventError    EventType = "error"
)

// Terminal reports whether no event may follow t.
func (t EventType) Terminal() bool { return t == EventDone || t == EventError }

// Source names the orchestrator that produced an event.
type Source string

const (
	SourceVideo    Source = "douyin"
	SourceComments Source = "comments"
)

// Stage is one state of a run.
type Stage string

const (
	StageResolving        Stage = "Resolving"
	StageFetchingInfo     Stage = "FetchingInfo"
	StageDownloading      Stage = "Downloading"
	StageExtractingAudio  Stage = "ExtractingAudio"
	StageTranscribing     Stage = "Transcribing"
	StageOptimizing       Stage = "Optimizing"
	StageFormatting       Stage = "Formatting"
	StageFetchingComments Stage = "FetchingComments"
	StageAggregatingStats Stage = "AggregatingStats"
	StageAnalyzingWithLLM Stage = "AnalyzingWithLLM"
	StageDone             Stage = "Done"
)

// Status of a progress event.
type Status string

const (
	StatusActive Status = "active"
	StatusDone   Status = "done"
)

// PartialKey names the logical field a partial fragment belongs to.
type PartialKey string

const (
	PartialTranscript PartialKey = "transcript"
	PartialOptimized  PartialKey = "optimized"
	PartialMarkdown   PartialKey = "markdown"
	PartialWarn       PartialKey = "warn"
	PartialAnalysis   PartialKey = "analysis"
)

// Event is the unit of progress communication. Exactly one payload pointer
// matching Type is set.
type Event struct {
	Seq       int64     `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
	RunID     string    `json:"runId"`
	Source    Source    `json:"source"`
	Type      EventType `json:"type"`

	Progress *Progress     `json:"progress,omitempty"`
	Info     *Info         `json:"info,omitempty"`
	Partial  *Partial      `json:"partial,omitempty"`
	Done     *Done         `json:"done,omitempty"`
	Error    *ErrorPayload `json:"error,omitempty"`
}

type Progress struct {
	Stage      Stage   `json:"stage"`
	Label      string  `json:"label"`
	Percentage float64 `json:"percentage"`
	Status     Status  `json:"status"`
	Detail     string  `json:"detail,omitempty"`
}

type Info struct {
	Stage   Stage  `json:"stage"`
	Message string `json:"message"`
	Payload any    `json:"payload,omitempty"`
}

type Partial struct {
	Key  PartialKey `json:"key"`
	Data string     `json:"data"`
}

type Done struct {
	Result Artifact `json:"result"`
}

type ErrorPayload struct {
	Message     string `json:"message"`
	Step        Stage  `json:"step,omitempty"`
	Cause       string `json:"cause,omitempty"`
	Recoverable bool   `json:"recoverable"`
}

// TaskInfo is the info payload announcing a comment analysis task.
type TaskInfo struct {
	TaskID string `json:"taskId"`
}

// Sink receives a run's events in emission order. Emit is never called
// concurrently for one run.
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

func (f SinkFunc) Emit(e Event) { f(e) }

// Discard drops every event.
var Discard Sink = SinkFunc(func(Event) {})
