// Package events maps orchestrator events onto the unified client-facing
// schema and frames them for Server-Sent Events.
package events

import (
	"github.com/famomatic/dyextract/internal/pipeline"
)

// RawName is a source-specific event name.
type RawName string

// The closed set of raw names the normalizer understands.
const (
	DouyinProgress RawName = "douyin-progress"
	DouyinInfo     RawName = "douyin-info"
	DouyinPartial  RawName = "douyin-partial"
	DouyinDone     RawName = "douyin-done"
	DouyinError    RawName = "douyin-error"

	CommentsProgress RawName = "comments-progress"
	CommentsInfo     RawName = "comments-info"
	CommentsPartial  RawName = "comments-partial"
	CommentsDone     RawName = "comments-done"
	CommentsError    RawName = "comments-error"

	ChatChunk RawName = "chat-chunk"
	ChatWarn  RawName = "chat-warn"
	ChatError RawName = "chat-error"
	ChatDone  RawName = "chat-done"
)

// Category is the top-level kind of a unified event.
type Category string

const (
	CategoryPipeline Category = "pipeline"
	CategoryChat     Category = "chat"
)

// Kind is the unified event type within a category.
type Kind string

const (
	KindProgress Kind = "progress"
	KindInfo     Kind = "info"
	KindPartial  Kind = "partial"
	KindDone     Kind = "done"
	KindError    Kind = "error"
	KindChunk    Kind = "chunk"
	KindWarn     Kind = "warn"
)

// Event is the unified client-facing event. Recoverable is set on every
// error event and only there.
type Event struct {
	Category    Category `json:"category"`
	Kind        Kind     `json:"type"`
	Source      string   `json:"source,omitempty"`
	Stage       string   `json:"stage,omitempty"`
	RunID       string   `json:"runId,omitempty"`
	Seq         int64    `json:"seq,omitempty"`
	Payload     any      `json:"payload,omitempty"`
	Recoverable *bool    `json:"recoverable,omitempty"`
}

// Raw is an event before normalization.
type Raw struct {
	Name RawName
	// Data is a pipeline.Event for pipeline names; for chat names it is the
	// text content or a ChatMessage.
	Data any
}

// ChatMessage is the data of a chat overlay event.
type ChatMessage struct {
	Content string `json:"content,omitempty"`
	// Fatal marks a chat error the user cannot retry.
	Fatal bool `json:"-"`
}

type route struct {
	category Category
	kind     Kind
	source   string
}

var routes = map[RawName]route{
	DouyinProgress:   {CategoryPipeline, KindProgress, string(pipeline.SourceVideo)},
	DouyinInfo:       {CategoryPipeline, KindInfo, string(pipeline.SourceVideo)},
	DouyinPartial:    {CategoryPipeline, KindPartial, string(pipeline.SourceVideo)},
	DouyinDone:       {CategoryPipeline, KindDone, string(pipeline.SourceVideo)},
	DouyinError:      {CategoryPipeline, KindError, string(pipeline.SourceVideo)},
	CommentsProgress: {CategoryPipeline, KindProgress, string(pipeline.SourceComments)},
	CommentsInfo:     {CategoryPipeline, KindInfo, string(pipeline.SourceComments)},
	CommentsPartial:  {CategoryPipeline, KindPartial, string(pipeline.SourceComments)},
	CommentsDone:     {CategoryPipeline, KindDone, string(pipeline.SourceComments)},
	CommentsError:    {CategoryPipeline, KindError, string(pipeline.SourceComments)},
	ChatChunk:        {CategoryChat, KindChunk, ""},
	ChatWarn:         {CategoryChat, KindWarn, ""},
	ChatError:        {CategoryChat, KindError, ""},
	ChatDone:         {CategoryChat, KindDone, ""},
}

// Known reports whether name belongs to the closed vocabulary.
func (n RawName) Known() bool {
	_, ok := routes[n]
	return ok
}

// RawFrom names a pipeline event "<source>-<type>".
func RawFrom(ev pipeline.Event) Raw {
	return Raw{Name: RawName(string(ev.Source) + "-" + string(ev.Type)), Data: ev}
}

// Normalize maps raw onto the unified schema. Unknown names yield nil.
func Normalize(raw Raw) *Event {
	r, ok := routes[raw.Name]
	if !ok {
		return nil
	}
	out := &Event{Category: r.category, Kind: r.kind, Source: r.source}
	switch r.category {
	case CategoryPipeline:
		ev, ok := raw.Data.(pipeline.Event)
		if !ok {
			if p, isPtr := raw.Data.(*pipeline.Event); isPtr && p != nil {
				ev, ok = *p, true
			}
		}
		if ok {
			fillPipeline(out, ev)
		} else {
			out.Payload = raw.Data
		}
	case CategoryChat:
		switch d := raw.Data.(type) {
		case string:
			out.Payload = ChatMessage{Content: d}
		case ChatMessage:
			out.Payload = d
			if d.Fatal {
				out.Recoverable = boolPtr(false)
			}
		default:
			out.Payload = raw.Data
		}
	}
	if out.Kind == KindError && out.Recoverable == nil {
		out.Recoverable = boolPtr(true)
	}
	return out
}

func fillPipeline(out *Event, ev pipeline.Event) {
	out.RunID = ev.RunID
	out.Seq = ev.Seq
	switch {
	case ev.Progress != nil:
		out.Stage = string(ev.Progress.Stage)
		out.Payload = ev.Progress
	case ev.Info != nil:
		out.Stage = string(ev.Info.Stage)
		out.Payload = ev.Info
	case ev.Partial != nil:
		out.Payload = ev.Partial
	case ev.Done != nil:
		out.Stage = string(pipeline.StageDone)
		out.Payload = ev.Done
	case ev.Error != nil:
		out.Stage = string(ev.Error.Step)
		out.Payload = ev.Error
		out.Recoverable = boolPtr(ev.Error.Recoverable)
	}
}

func boolPtr(b bool) *bool { return &b }
