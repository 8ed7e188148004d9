package events

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/famomatic/dyextract/internal/pipeline"
)

// Name is the SSE event name: the unified kind for pipeline events and
// "chat" for the chat overlay.
func (e *Event) Name() string {
	if e.Category == CategoryChat {
		return string(CategoryChat)
	}
	return string(e.Kind)
}

// WriteSSE frames ev as `event: <name>\ndata: <json>\n\n` and flushes w when
// it supports flushing.
func WriteSSE(w io.Writer, ev *Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Name(), data); err != nil {
		return err
	}
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	return nil
}

// SSESink normalizes pipeline events and writes them to w. Events the
// normalizer does not know are dropped. The first write error is kept and
// later events are discarded.
//
// Once a pipeline terminal event (done or error) is written
// the only frame still accepted is chat-done, which closes the stream.
type SSESink struct {
	mu       sync.Mutex
	w        io.Writer
	err      error
	terminal bool
	closed   bool
}

func NewSSESink(w io.Writer) *SSESink {
	return &SSESink{w: w}
}

func (s *SSESink) Emit(ev pipeline.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil || s.terminal || s.closed {
		return
	}
	unified := Normalize(RawFrom(ev))
	if unified == nil {
		return
	}
	s.err = WriteSSE(s.w, unified)
	if unified.Kind == KindDone || unified.Kind == KindError {
		s.terminal = true
	}
}

// Err returns the first write error.
func (s *SSESink) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Chat writes a chat overlay event (chat-chunk, chat-warn, chat-error or
// chat-done) through the same writer. Other names are ignored. chat-done is
// the closing frame: nothing is written after it.
func (s *SSESink) Chat(name RawName, data any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil || s.closed || (s.terminal && name != ChatDone) {
		return
	}
	ev := Normalize(Raw{Name: name, Data: data})
	if ev == nil || ev.Category != CategoryChat {
		return
	}
	s.err = WriteSSE(s.w, ev)
	if name == ChatDone {
		s.closed = true
	}
}
