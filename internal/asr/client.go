// Package asr calls a speech-to-text HTTP endpoint with extracted audio.
package asr

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/famomatic/dyextract/internal/retry"
	"github.com/famomatic/dyextract/internal/types"
)

const DefaultTimeout = 300 * time.Second

// Transcriber produces raw transcript text from audio.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

// Config describes an OpenAI-compatible /audio/transcriptions endpoint.
type Config struct {
	Endpoint string
	APIKey   string
	Model    string
	Language string
	Policy   retry.Policy
	// Timeout bounds one attempt, including reading the response.
	Timeout time.Duration
}

// Client is the HTTP Transcriber.
type Client struct {
	http     *http.Client
	executor *retry.Executor
	config   Config
}

func New(httpClient *http.Client, cfg Config) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Model == "" {
		cfg.Model = "whisper-1"
	}
	return &Client{http: httpClient, executor: retry.NewExecutor(), config: cfg}
}

// Transcribe uploads audio as multipart form data and returns the text.
func (c *Client) Transcribe(ctx context.Context, audio []byte) (string, error) {
	if c.config.Endpoint == "" {
		return "", &ProviderError{Code: "not_configured", Message: "asr endpoint is not configured"}
	}
	body, contentType, err := buildForm(audio, c.config.Model, c.config.Language)
	if err != nil {
		return "", fmt.Errorf("%w: %v", types.ErrTranscription, err)
	}

	var payload []byte
	out := c.executor.Execute(ctx, c.config.Policy, func(ctx context.Context) (*http.Response, error) {
		ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", contentType)
		if c.config.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		// read under the attempt deadline; the outcome keeps a replayable body
		payload, err = io.ReadAll(io.LimitReader(resp.Body, 32<<20))
		if err != nil {
			return nil, err
		}
		resp.Body = io.NopCloser(bytes.NewReader(payload))
		return resp, nil
	})

	switch out.Kind {
	case retry.KindOK:
		return decodeTranscript(payload)
	case retry.KindNetworkFailure:
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: %v", types.ErrTranscription, out.Err)
	default:
		resp := out.Response
		if resp.StatusCode == http.StatusTooManyRequests {
			return "", &types.RateLimitError{
				StatusCode: resp.StatusCode,
				RetryAfter: retry.ParseRetryAfter(resp.Header.Get("Retry-After")),
				Service:    "transcription",
			}
		}
		perr := providerErrorFrom(payload)
		perr.HTTPStatus = resp.StatusCode
		return "", perr
	}
}

func buildForm(audio []byte, model, language string) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", "audio.wav")
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(audio); err != nil {
		return nil, "", err
	}
	_ = w.WriteField("model", model)
	_ = w.WriteField("response_format", "json")
	if language != "" {
		_ = w.WriteField("language", language)
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}
