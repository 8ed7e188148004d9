package llm

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/famomatic/dyextract/internal/retry"
)

const DefaultTimeout = 180 * time.Second

// GeminiConfig configures the Gemini model.
type GeminiConfig struct {
	APIKey      string
	Model       string
	Temperature float32
	// Policy retries a stream that fails before producing any text.
	Policy  retry.Policy
	Timeout time.Duration
}

// Gemini streams completions from Google's Gemini API.
type Gemini struct {
	client *genai.Client
	model  *genai.GenerativeModel
	config GeminiConfig
}

func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	if cfg.Model == "" {
		cfg.Model = "gemini-1.5-flash"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, err
	}
	model := client.GenerativeModel(cfg.Model)
	if cfg.Temperature > 0 {
		model.SetTemperature(cfg.Temperature)
	}
	return &Gemini{client: client, model: model, config: cfg}, nil
}

// Close releases the underlying client.
func (g *Gemini) Close() error { return g.client.Close() }

func (g *Gemini) Stream(ctx context.Context, prompt string) (Stream, error) {
	ctx, cancel := context.WithTimeout(ctx, g.config.Timeout)
	s := &geminiStream{
		ctx:    ctx,
		cancel: cancel,
		open: func(ctx context.Context) responseIterator {
			return g.model.GenerateContentStream(ctx, genai.Text(prompt))
		},
		policy: g.config.Policy,
	}
	s.iter = s.open(ctx)
	return s, nil
}

type responseIterator interface {
	Next() (*genai.GenerateContentResponse, error)
}

type geminiStream struct {
	ctx     context.Context
	cancel  context.CancelFunc
	open    func(ctx context.Context) responseIterator
	iter    responseIterator
	policy  retry.Policy
	started bool
	retries int
	pending []string
}

func (s *geminiStream) Recv() (string, error) {
	for len(s.pending) == 0 {
		resp, err := s.iter.Next()
		if errors.Is(err, iterator.Done) {
			return "", io.EOF
		}
		if err != nil {
			if s.started || s.ctx.Err() != nil || s.retries >= s.policy.MaxRetries {
				return "", err
			}
			s.retries++
			if werr := retry.Wait(s.ctx, s.policy.Delay(s.retries)); werr != nil {
				return "", werr
			}
			s.iter = s.open(s.ctx)
			continue
		}
		s.pending = textParts(resp)
	}
	s.started = true
	delta := s.pending[0]
	s.pending = s.pending[1:]
	return delta, nil
}

func (s *geminiStream) Close() error {
	s.cancel()
	return nil
}

func textParts(resp *genai.GenerateContentResponse) []string {
	if resp == nil {
		return nil
	}
	var out []string
	for _, c := range resp.Candidates {
		if c.Content == nil {
			continue
		}
		for _, part := range c.Content.Parts {
			if text, ok := part.(genai.Text); ok && text != "" {
				out = append(out, string(text))
			}
		}
	}
	return out
}
