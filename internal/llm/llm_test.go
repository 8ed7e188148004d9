package llm

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"

	"github.com/famomatic/dyextract/internal/retry"
	"github.com/famomatic/dyextract/internal/types"
)

type sliceStream struct {
	deltas []string
	err    error
}

func (s *sliceStream) Recv() (string, error) {
	if len(s.deltas) == 0 {
		if s.err != nil {
			return "", s.err
		}
		return "", io.EOF
	}
	d := s.deltas[0]
	s.deltas = s.deltas[1:]
	return d, nil
}

type modelFunc func(ctx context.Context, prompt string) (Stream, error)

func (f modelFunc) Stream(ctx context.Context, prompt string) (Stream, error) { return f(ctx, prompt) }

func TestCollectConcatenatesDeltas(t *testing.T) {
	var seen []string
	text, err := Collect(context.Background(), &sliceStream{deltas: []string{"a", "", "b", "c"}}, func(d string) {
		seen = append(seen, d)
	})
	if err != nil || text != "abc" {
		t.Fatalf("Collect() = %q, %v", text, err)
	}
	if len(seen) != 3 {
		t.Fatalf("deltas=%v", seen)
	}
}

func TestCollectWrapsStreamError(t *testing.T) {
	text, err := Collect(context.Background(), &sliceStream{deltas: []string{"part"}, err: errors.New("boom")}, nil)
	if !errors.Is(err, types.ErrLLM) {
		t.Fatalf("error = %v, want ErrLLM", err)
	}
	if text != "part" {
		t.Fatalf("text=%q", text)
	}
}

func TestGenerateCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m := modelFunc(func(ctx context.Context, prompt string) (Stream, error) {
		return &sliceStream{deltas: []string{"x"}}, nil
	})
	if _, err := Generate(ctx, m, "p", nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v", err)
	}
}

type fakeIter struct {
	resps []*genai.GenerateContentResponse
	err   error
}

func (f *fakeIter) Next() (*genai.GenerateContentResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(f.resps) == 0 {
		return nil, iterator.Done
	}
	r := f.resps[0]
	f.resps = f.resps[1:]
	return r, nil
}

func textResponse(parts ...string) *genai.GenerateContentResponse {
	content := &genai.Content{}
	for _, p := range parts {
		content.Parts = append(content.Parts, genai.Text(p))
	}
	return &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{Content: content}}}
}

func TestGeminiStreamRetriesBeforeFirstDelta(t *testing.T) {
	opens := 0
	policy := retry.DefaultPolicy()
	policy.InitialDelay = time.Millisecond
	policy.MaxDelay = time.Millisecond
	s := &geminiStream{
		ctx:    context.Background(),
		cancel: func() {},
		policy: policy,
		open: func(ctx context.Context) responseIterator {
			opens++
			if opens == 1 {
				return &fakeIter{err: errors.New("unavailable")}
			}
			return &fakeIter{resps: []*genai.GenerateContentResponse{textResponse("Hel", "lo"), textResponse(" world")}}
		},
	}
	s.iter = s.open(s.ctx)

	text, err := Collect(context.Background(), s, nil)
	if err != nil || text != "Hello world" {
		t.Fatalf("Collect() = %q, %v", text, err)
	}
	if opens != 2 {
		t.Fatalf("opens=%d", opens)
	}
}

func TestGeminiStreamDoesNotRetryAfterText(t *testing.T) {
	calls := 0
	s := &geminiStream{
		ctx:    context.Background(),
		cancel: func() {},
		policy: retry.DefaultPolicy(),
		open: func(ctx context.Context) responseIterator {
			calls++
			return &scriptedIter{steps: []func() (*genai.GenerateContentResponse, error){
				func() (*genai.GenerateContentResponse, error) { return textResponse("partial"), nil },
				func() (*genai.GenerateContentResponse, error) { return nil, errors.New("reset") },
			}}
		},
	}
	s.iter = s.open(s.ctx)

	_, err := Collect(context.Background(), s, nil)
	if !errors.Is(err, types.ErrLLM) || calls != 1 {
		t.Fatalf("err=%v calls=%d", err, calls)
	}
}

type scriptedIter struct {
	steps []func() (*genai.GenerateContentResponse, error)
}

func (s *scriptedIter) Next() (*genai.GenerateContentResponse, error) {
	if len(s.steps) == 0 {
		return nil, iterator.Done
	}
	step := s.steps[0]
	s.steps = s.steps[1:]
	return step()
}

func TestPromptsCarryInput(t *testing.T) {
	if p := OptimizePrompt("原文"); !strings.Contains(p, "原文") {
		t.Fatalf("optimize prompt missing transcript")
	}
	if p := FormatPrompt("标题", "作者", "正文"); !strings.Contains(p, "标题") || !strings.Contains(p, "正文") {
		t.Fatalf("format prompt = %q", p)
	}
	if p := AnalyzePrompt("t", "total: 2", []string{"好看", "一般"}); !strings.Contains(p, "2. 一般") {
		t.Fatalf("analyze prompt = %q", p)
	}
}
