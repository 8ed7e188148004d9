// Package llm is the streaming boundary to a text generation model.
package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/famomatic/dyextract/internal/types"
)

// Model starts a streaming completion for prompt.
type Model interface {
	Stream(ctx context.Context, prompt string) (Stream, error)
}

// Stream yields text deltas. Recv returns io.EOF after the last delta.
type Stream interface {
	Recv() (string, error)
}

// Collect drains s, calling onDelta for every non-empty delta, and returns the
// concatenated text. Failures are wrapped with types.ErrLLM.
func Collect(ctx context.Context, s Stream, onDelta func(string)) (string, error) {
	var b strings.Builder
	for {
		if err := ctx.Err(); err != nil {
			return b.String(), err
		}
		delta, err := s.Recv()
		if errors.Is(err, io.EOF) {
			return b.String(), nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return b.String(), ctx.Err()
			}
			return b.String(), fmt.Errorf("%w: %v", types.ErrLLM, err)
		}
		if delta == "" {
			continue
		}
		b.WriteString(delta)
		if onDelta != nil {
			onDelta(delta)
		}
	}
}

// Generate opens a stream on m and collects it.
func Generate(ctx context.Context, m Model, prompt string, onDelta func(string)) (string, error) {
	s, err := m.Stream(ctx, prompt)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: %v", types.ErrLLM, err)
	}
	if c, ok := s.(io.Closer); ok {
		defer c.Close()
	}
	return Collect(ctx, s, onDelta)
}
