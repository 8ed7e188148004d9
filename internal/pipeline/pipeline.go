package pipeline

import (
	"context"

	"github.com/famomatic/dyextract/internal/downloader"
	"github.com/famomatic/dyextract/internal/douyin"
	"github.com/famomatic/dyextract/internal/types"
)

// Artifact is the final result of a run.
type Artifact interface {
	Markdown() string
}

// Runner is one orchestrator. Run returns an error matching
// types.ErrCancelled when ctx is cancelled, and a *StageError on failure.
type Runner interface {
	Run(ctx context.Context, input string, sink Sink) (Artifact, error)
}

// Resolver is the video resolution service.
type Resolver interface {
	ResolveID(ctx context.Context, text string) (string, error)
	VideoInfo(ctx context.Context, id string) (types.VideoInfo, error)
}

// MediaDownloader probes and fetches media bytes.
type MediaDownloader interface {
	Probe(ctx context.Context, rawURL string) downloader.MediaInfo
	Download(ctx context.Context, rawURL string, info downloader.MediaInfo, opts downloader.Options) (*downloader.Result, error)
}

// CommentFetcher pages through a video's comments.
type CommentFetcher interface {
	FetchAll(ctx context.Context, awemeID string, opts douyin.FetchOptions) ([]types.Comment, int64, error)
}

var (
	_ Resolver        = (*douyin.Resolver)(nil)
	_ MediaDownloader = (*downloader.Downloader)(nil)
	_ CommentFetcher  = (*douyin.CommentSource)(nil)
)
