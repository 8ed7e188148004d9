// Package downloader fetches a resolved media URL into memory, choosing
// between one plain GET and concurrent byte-range chunks.
package downloader

import (
	"net/http"
	"time"

	"github.com/famomatic/dyextract/internal/retry"
)

// Strategy names how a download was performed.
type Strategy string

const (
	StrategySingle  Strategy = "single"
	StrategyChunked Strategy = "chunked"
)

const (
	DefaultChunkSize    int64 = 4 << 20
	DefaultConcurrency        = 4
	DefaultProbeTimeout       = 10 * time.Second
	DefaultChunkTimeout       = 60 * time.Second
	// DefaultSingleTimeout bounds one whole-body GET.
	DefaultSingleTimeout = 5 * time.Minute
)

// ProgressReporter is an interface for reporting download progress.
// OnProgress may be called from several goroutines.
type ProgressReporter interface {
	OnProgress(bytesWritten int64, totalBytes int64)
}

// ProgressFunc adapts a function to ProgressReporter.
type ProgressFunc func(bytesWritten, totalBytes int64)

func (f ProgressFunc) OnProgress(bytesWritten, totalBytes int64) { f(bytesWritten, totalBytes) }

// MediaInfo is what a probe learns about a media URL.
type MediaInfo struct {
	SupportsRangeRequests bool
	ContentLength         int64
}

// Config controls transport behavior shared by every download.
type Config struct {
	// Headers are sent on every probe and media request (Referer, User-Agent),
	// replacing the built-in media defaults key by key.
	Headers      http.Header
	ProbePolicy  retry.Policy
	ChunkPolicy  retry.Policy
	ProbeTimeout time.Duration
	ChunkTimeout time.Duration
	// SingleTimeout bounds one attempt of a single-shot download, body included.
	SingleTimeout time.Duration
}

// Options tune one download call.
type Options struct {
	ChunkSize   int64
	Concurrency int
	Progress    ProgressReporter
}

// Result is the assembled media and how it was fetched.
type Result struct {
	Data       []byte
	Strategy   Strategy
	ChunkCount int
}

// Downloader probes and downloads media over HTTP.
type Downloader struct {
	client   *http.Client
	executor *retry.Executor
	config   Config
}

// New returns a Downloader. A nil client uses http.DefaultClient.
func New(client *http.Client, cfg Config) *Downloader {
	if client == nil {
		client = http.DefaultClient
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = DefaultProbeTimeout
	}
	if cfg.ChunkTimeout <= 0 {
		cfg.ChunkTimeout = DefaultChunkTimeout
	}
	if cfg.SingleTimeout <= 0 {
		cfg.SingleTimeout = DefaultSingleTimeout
	}
	cfg.Headers = mediaHeaders(cfg.Headers)
	return &Downloader{
		client:   client,
		executor: retry.NewExecutor(),
		config:   cfg,
	}
}

func normalizeOptions(opts Options) Options {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	return opts
}
