// Package config loads pipeline settings from an optional YAML file and
// DYEXTRACT_* environment variables. The result is read-only at request time.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/famomatic/dyextract/internal/retry"
	"github.com/famomatic/dyextract/internal/tokens"
)

// RetryPolicy is the file form of retry.Policy.
type RetryPolicy struct {
	MaxRetries   int           `yaml:"max_retries"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
	Multiplier   float64       `yaml:"multiplier"`
	StatusCodes  []int         `yaml:"status_codes"`
	// NoNetworkRetry disables retrying transport errors.
	NoNetworkRetry bool `yaml:"no_network_retry"`
}

func (p RetryPolicy) Policy() retry.Policy {
	return retry.Policy{
		MaxRetries:         p.MaxRetries,
		InitialDelay:       p.InitialDelay,
		MaxDelay:           p.MaxDelay,
		BackoffMultiplier:  p.Multiplier,
		RetryStatusCodes:   append([]int(nil), p.StatusCodes...),
		RetryNetworkErrors: !p.NoNetworkRetry,
	}
}

// RetryPolicies holds one policy per call site.
type RetryPolicies struct {
	Resolve  RetryPolicy `yaml:"resolve"`
	Probe    RetryPolicy `yaml:"probe"`
	Chunk    RetryPolicy `yaml:"chunk"`
	ASR      RetryPolicy `yaml:"asr"`
	LLM      RetryPolicy `yaml:"llm"`
	Comments RetryPolicy `yaml:"comments"`
}

type Download struct {
	ChunkSize    int64         `yaml:"chunk_size"`
	Concurrency  int           `yaml:"concurrency"`
	ProbeTimeout time.Duration `yaml:"probe_timeout"`
	ChunkTimeout time.Duration `yaml:"chunk_timeout"`
	// SingleTimeout bounds one whole-body attempt when ranges are unavailable.
	SingleTimeout time.Duration `yaml:"single_timeout"`
}

type Resolve struct {
	Timeout   time.Duration `yaml:"timeout"`
	UserAgent string        `yaml:"user_agent"`
	CacheTTL  time.Duration `yaml:"cache_ttl"`
	// RedisAddr switches the resolution cache from memory to redis.
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
}

type Comments struct {
	Timeout        time.Duration `yaml:"timeout"`
	PageSize       int           `yaml:"page_size"`
	MaxPages       int           `yaml:"max_pages"`
	MaxComments    int           `yaml:"max_comments"`
	RequestsPerSec float64       `yaml:"requests_per_second"`
	TopN           int           `yaml:"top_n"`
	SampleSize     int           `yaml:"sample_size"`
}

type ASR struct {
	Endpoint string        `yaml:"endpoint"`
	APIKey   string        `yaml:"api_key"`
	Model    string        `yaml:"model"`
	Language string        `yaml:"language"`
	Timeout  time.Duration `yaml:"timeout"`
}

type LLM struct {
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	Temperature float32       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
}

// Config is the full pipeline configuration.
type Config struct {
	Retry       RetryPolicies `yaml:"retry"`
	Download    Download      `yaml:"download"`
	Resolve     Resolve       `yaml:"resolve"`
	Comments    Comments      `yaml:"comments"`
	ASR         ASR           `yaml:"asr"`
	LLM         LLM           `yaml:"llm"`
	Tokens      tokens.Config `yaml:"tokens"`
	FFmpegPath  string        `yaml:"ffmpeg_path"`
	CookiesFile string        `yaml:"cookies_file"`
}

func defaultRetry() RetryPolicy {
	p := retry.DefaultPolicy()
	return RetryPolicy{
		MaxRetries:   p.MaxRetries,
		InitialDelay: p.InitialDelay,
		MaxDelay:     p.MaxDelay,
		Multiplier:   p.BackoffMultiplier,
		StatusCodes:  p.RetryStatusCodes,
	}
}

// Default returns the built-in configuration.
func Default() Config {
	llmRetry := defaultRetry()
	llmRetry.MaxRetries = 2
	return Config{
		Retry: RetryPolicies{
			Resolve:  defaultRetry(),
			Probe:    RetryPolicy{MaxRetries: 1, InitialDelay: 500 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2, StatusCodes: defaultRetry().StatusCodes},
			Chunk:    defaultRetry(),
			ASR:      defaultRetry(),
			LLM:      llmRetry,
			Comments: defaultRetry(),
		},
		Download: Download{
			ChunkSize:     4 << 20,
			Concurrency:   4,
			ProbeTimeout:  10 * time.Second,
			ChunkTimeout:  60 * time.Second,
			SingleTimeout: 5 * time.Minute,
		},
		Resolve: Resolve{
			Timeout:  15 * time.Second,
			CacheTTL: 30 * time.Minute,
		},
		Comments: Comments{
			Timeout:        15 * time.Second,
			PageSize:       20,
			MaxPages:       10,
			MaxComments:    200,
			RequestsPerSec: 2,
			TopN:           10,
			SampleSize:     100,
		},
		ASR: ASR{
			Model:    "whisper-1",
			Language: "zh",
			Timeout:  300 * time.Second,
		},
		LLM: LLM{
			Model:   "gemini-1.5-flash",
			Timeout: 180 * time.Second,
		},
		Tokens:     tokens.DefaultConfig(),
		FFmpegPath: "ffmpeg",
	}
}

// Load starts from Default, overlays the YAML file at path (when non-empty)
// and then the environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	var err error

	c.ASR.Endpoint = envString("DYEXTRACT_ASR_ENDPOINT", c.ASR.Endpoint)
	c.ASR.APIKey = envString("DYEXTRACT_ASR_API_KEY", c.ASR.APIKey)
	c.ASR.Model = envString("DYEXTRACT_ASR_MODEL", c.ASR.Model)
	c.ASR.Language = envString("DYEXTRACT_ASR_LANGUAGE", c.ASR.Language)
	c.ASR.Timeout, err = envDuration("DYEXTRACT_ASR_TIMEOUT", c.ASR.Timeout)
	collect(err)

	c.LLM.APIKey = envString("DYEXTRACT_LLM_API_KEY", envString("GEMINI_API_KEY", c.LLM.APIKey))
	c.LLM.Model = envString("DYEXTRACT_LLM_MODEL", c.LLM.Model)
	c.LLM.Timeout, err = envDuration("DYEXTRACT_LLM_TIMEOUT", c.LLM.Timeout)
	collect(err)

	c.Download.ChunkSize, err = envInt64("DYEXTRACT_CHUNK_SIZE", c.Download.ChunkSize)
	collect(err)
	c.Download.Concurrency, err = envInt("DYEXTRACT_CONCURRENCY", c.Download.Concurrency)
	collect(err)
	c.Download.SingleTimeout, err = envDuration("DYEXTRACT_SINGLE_TIMEOUT", c.Download.SingleTimeout)
	collect(err)

	c.Resolve.RedisAddr = envString("DYEXTRACT_REDIS_ADDR", c.Resolve.RedisAddr)
	c.Resolve.RedisPassword = envString("DYEXTRACT_REDIS_PASSWORD", c.Resolve.RedisPassword)

	c.Comments.MaxComments, err = envInt("DYEXTRACT_COMMENTS_MAX", c.Comments.MaxComments)
	collect(err)
	c.Comments.RequestsPerSec, err = envFloat("DYEXTRACT_COMMENTS_RPS", c.Comments.RequestsPerSec)
	collect(err)

	c.Tokens.SafetyMultiplier, err = envFloat("DYEXTRACT_TOKEN_SAFETY_MULTIPLIER", c.Tokens.SafetyMultiplier)
	collect(err)
	c.Tokens.MaxTokensPerChar, err = envFloat("DYEXTRACT_TOKEN_MAX_PER_CHAR", c.Tokens.MaxTokensPerChar)
	collect(err)

	if _, ok := os.LookupEnv("DYEXTRACT_MAX_RETRIES"); ok {
		n, err := envInt("DYEXTRACT_MAX_RETRIES", 0)
		collect(err)
		if err == nil {
			for _, p := range []*RetryPolicy{&c.Retry.Resolve, &c.Retry.Probe, &c.Retry.Chunk, &c.Retry.ASR, &c.Retry.LLM, &c.Retry.Comments} {
				p.MaxRetries = n
			}
		}
	}

	c.FFmpegPath = envString("DYEXTRACT_FFMPEG", c.FFmpegPath)
	c.CookiesFile = envString("DYEXTRACT_COOKIES", c.CookiesFile)
	return errors.Join(errs...)
}

// Validate rejects settings the pipelines cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Download.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("download.chunk_size must be positive, got %d", c.Download.ChunkSize))
	}
	if c.Download.Concurrency <= 0 || c.Download.Concurrency > 32 {
		errs = append(errs, fmt.Errorf("download.concurrency must be in [1,32], got %d", c.Download.Concurrency))
	}
	for name, p := range map[string]RetryPolicy{
		"resolve": c.Retry.Resolve, "probe": c.Retry.Probe, "chunk": c.Retry.Chunk,
		"asr": c.Retry.ASR, "llm": c.Retry.LLM, "comments": c.Retry.Comments,
	} {
		if p.MaxRetries < 0 {
			errs = append(errs, fmt.Errorf("retry.%s.max_retries must not be negative", name))
		}
		if p.Multiplier != 0 && p.Multiplier < 1 {
			errs = append(errs, fmt.Errorf("retry.%s.multiplier must be >= 1", name))
		}
	}
	if c.Tokens.SafetyMultiplier != 0 && c.Tokens.SafetyMultiplier < 1 {
		errs = append(errs, errors.New("tokens.safety_multiplier must be >= 1"))
	}
	return errors.Join(errs...)
}

// WorstCase documents the longest a call site can take: every attempt times
// out and every retry waits its full backoff.
func (c Config) WorstCase() map[string]time.Duration {
	return map[string]time.Duration{
		"resolve":      c.Retry.Resolve.Policy().WorstCase(c.Resolve.Timeout),
		"probe":        c.Retry.Probe.Policy().WorstCase(c.Download.ProbeTimeout),
		"chunk":        c.Retry.Chunk.Policy().WorstCase(c.Download.ChunkTimeout),
		"single":       c.Retry.Chunk.Policy().WorstCase(c.Download.SingleTimeout),
		"asr":          c.Retry.ASR.Policy().WorstCase(c.ASR.Timeout),
		"llm":          c.Retry.LLM.Policy().WorstCase(c.LLM.Timeout),
		"comment_page": c.Retry.Comments.Policy().WorstCase(c.Comments.Timeout),
	}
}
