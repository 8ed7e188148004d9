// Package client is the entry point for Douyin video extraction and comment
// analysis. It wires the resolver, downloader, audio, ASR and LLM boundaries
// into the two pipelines and dispatches input through the strategy table.
package client

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/famomatic/dyextract/internal/asr"
	"github.com/famomatic/dyextract/internal/audio"
	"github.com/famomatic/dyextract/internal/config"
	"github.com/famomatic/dyextract/internal/cookies"
	"github.com/famomatic/dyextract/internal/douyin"
	"github.com/famomatic/dyextract/internal/downloader"
	"github.com/famomatic/dyextract/internal/llm"
	"github.com/famomatic/dyextract/internal/pipeline"
	"github.com/famomatic/dyextract/internal/retry"
	"github.com/famomatic/dyextract/internal/strategy"
	"github.com/famomatic/dyextract/internal/tokens"
)

// Client is the high-level extraction client. It is safe for concurrent use.
type Client struct {
	config    Config
	logger    Logger
	resolver  *douyin.Resolver
	video     *pipeline.VideoPipeline
	comments  *pipeline.CommentsPipeline
	table     strategy.Table
	estimator tokens.Estimator
	closers   []io.Closer
}

// RunResult is what Run produced and which strategy produced it.
type RunResult struct {
	Strategy string
	Estimate tokens.Estimate
	Artifact pipeline.Artifact
}

// New builds a Client. It only dials out when a Gemini key is configured.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Settings.Download.ChunkSize == 0 {
		cfg.Settings = config.Default()
	}
	s := cfg.Settings
	logger := cfg.Logger
	if logger == nil {
		logger = nopLogger{}
	}
	c := &Client{config: cfg, logger: logger}

	hc := cfg.HTTPClient
	if hc == nil {
		hc = defaultHTTPClient(cfg.ProxyURL)
	}
	jar := cfg.CookieJar
	if jar == nil && s.CookiesFile != "" {
		list, err := cookies.LoadFile(s.CookiesFile)
		if err != nil {
			return nil, err
		}
		if jar, err = cookies.NewJar(list, time.Now()); err != nil {
			return nil, fmt.Errorf("cookie jar: %w", err)
		}
	}
	hc = withJar(hc, jar)

	var cache douyin.Cache
	rdb := cfg.Redis
	if rdb == nil && s.Resolve.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     s.Resolve.RedisAddr,
			Password: s.Resolve.RedisPassword,
			DB:       s.Resolve.RedisDB,
		})
		c.closers = append(c.closers, rdb)
	}
	if rdb != nil {
		cache = douyin.NewRedisCache(rdb, s.Resolve.CacheTTL)
	} else {
		cache = douyin.NewMemoryCache(s.Resolve.CacheTTL)
	}

	c.resolver = douyin.NewResolver(hc, cache, douyin.ResolverConfig{
		UserAgent: s.Resolve.UserAgent,
		Policy:    c.policy("resolve", s.Retry.Resolve),
		Timeout:   s.Resolve.Timeout,
	})
	dl := downloader.New(hc, downloader.Config{
		Headers:       c.resolver.MediaHeaders(),
		ProbePolicy:   c.policy("probe", s.Retry.Probe),
		ChunkPolicy:   c.policy("chunk", s.Retry.Chunk),
		ProbeTimeout:  s.Download.ProbeTimeout,
		ChunkTimeout:  s.Download.ChunkTimeout,
		SingleTimeout: s.Download.SingleTimeout,
	})
	commentSource := douyin.NewCommentSource(hc, douyin.CommentConfig{
		UserAgent:      s.Resolve.UserAgent,
		Policy:         c.policy("comments", s.Retry.Comments),
		Timeout:        s.Comments.Timeout,
		PageSize:       s.Comments.PageSize,
		RequestsPerSec: s.Comments.RequestsPerSec,
	})

	extractor := cfg.Extractor
	if extractor == nil {
		ff := audio.NewFFmpeg(s.FFmpegPath)
		if !ff.Available() {
			logger.Warnf("ffmpeg not found at %q; video extraction will fail at audio extraction", ff.Path)
		}
		extractor = ff
	}
	transcriber := cfg.Transcriber
	if transcriber == nil {
		transcriber = asr.New(hc, asr.Config{
			Endpoint: s.ASR.Endpoint,
			APIKey:   s.ASR.APIKey,
			Model:    s.ASR.Model,
			Language: s.ASR.Language,
			Policy:   c.policy("asr", s.Retry.ASR),
			Timeout:  s.ASR.Timeout,
		})
	}
	model := cfg.Model
	if model == nil && s.LLM.APIKey != "" {
		g, err := llm.NewGemini(ctx, llm.GeminiConfig{
			APIKey:      s.LLM.APIKey,
			Model:       s.LLM.Model,
			Temperature: s.LLM.Temperature,
			Policy:      c.policy("llm", s.Retry.LLM),
			Timeout:     s.LLM.Timeout,
		})
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("gemini: %w", err)
		}
		c.closers = append(c.closers, g)
		model = g
	}
	if model == nil {
		logger.Infof("no language model configured; transcripts are formatted without optimization")
	}

	c.video = pipeline.NewVideoPipeline(pipeline.VideoDeps{
		Resolver:    c.resolver,
		Downloader:  dl,
		Extractor:   extractor,
		Transcriber: transcriber,
		LLM:         model,
		Logger:      logger,
	}, pipeline.VideoOptions{
		ChunkSize:   s.Download.ChunkSize,
		Concurrency: s.Download.Concurrency,
	})
	c.comments = pipeline.NewCommentsPipeline(pipeline.CommentDeps{
		Resolver: c.resolver,
		Comments: commentSource,
		LLM:      model,
		Logger:   logger,
	}, pipeline.CommentOptions{
		MaxPages:    s.Comments.MaxPages,
		MaxComments: s.Comments.MaxComments,
		TopN:        s.Comments.TopN,
		SampleSize:  s.Comments.SampleSize,
	})
	c.estimator = tokens.New(s.Tokens)
	c.table = strategy.Douyin(c.video, c.comments, c.estimator, s.Comments.MaxComments)
	return c, nil
}

// policy attaches a logging retry observer to the configured policy.
func (c *Client) policy(site string, p config.RetryPolicy) retry.Policy {
	return p.Policy().WithOnRetry(func(attempt int, delay time.Duration, reason string) {
		c.logger.Warnf("%s: retry %d in %s (%s)", site, attempt, delay, reason)
	})
}

// Close releases the redis connection and model client, if any.
func (c *Client) Close() error {
	var first error
	for _, cl := range c.closers {
		if err := cl.Close(); err != nil && first == nil {
			first = err
		}
	}
	c.closers = nil
	return first
}

// Select reports which strategy would handle input.
func (c *Client) Select(input string) (strategy.Strategy, error) {
	s, ok := c.table.Select(input)
	if !ok {
		return strategy.Strategy{}, fmt.Errorf("%w: %q", ErrNoStrategy, truncate(input, 80))
	}
	return s, nil
}

// Run selects a strategy for input and runs its pipeline, streaming events to
// sink. A nil sink discards events.
func (c *Client) Run(ctx context.Context, input string, sink pipeline.Sink) (*RunResult, error) {
	s, err := c.Select(input)
	if err != nil {
		return nil, err
	}
	if sink == nil {
		sink = pipeline.Discard
	}
	est := s.EstimateTokens(input)
	c.logger.Debugf("strategy %s selected, estimated %d tokens", s.Name, est.Total())
	art, err := s.Pipeline.Run(ctx, input, s.Sink(sink))
	if err != nil {
		return nil, err
	}
	return &RunResult{Strategy: s.Name, Estimate: est, Artifact: art}, nil
}

// ExtractVideo runs the video pipeline directly.
func (c *Client) ExtractVideo(ctx context.Context, input string, sink pipeline.Sink) (*pipeline.VideoResult, error) {
	if sink == nil {
		sink = pipeline.Discard
	}
	return c.video.Extract(ctx, input, sink)
}

// AnalyzeComments runs the comments pipeline directly.
func (c *Client) AnalyzeComments(ctx context.Context, input string, sink pipeline.Sink) (*pipeline.CommentsResult, error) {
	if sink == nil {
		sink = pipeline.Discard
	}
	return c.comments.Analyze(ctx, input, sink)
}

// EstimateTokens sizes the model budget for input under the selected strategy.
func (c *Client) EstimateTokens(input string) (tokens.Estimate, string, error) {
	s, err := c.Select(input)
	if err != nil {
		return tokens.Estimate{}, "", err
	}
	return s.EstimateTokens(input), s.Name, nil
}

// EstimateText sizes the model budget for an arbitrary prompt.
func (c *Client) EstimateText(text string) tokens.Estimate {
	return c.estimator.Estimate(text)
}

// Strategies lists the dispatch table in priority order.
func (c *Client) Strategies() []string {
	rows := c.table.Strategies()
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.Name
	}
	return out
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
