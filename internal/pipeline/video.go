package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/famomatic/dyextract/internal/asr"
	"github.com/famomatic/dyextract/internal/audio"
	"github.com/famomatic/dyextract/internal/downloader"
	"github.com/famomatic/dyextract/internal/douyin"
	"github.com/famomatic/dyextract/internal/llm"
	"github.com/famomatic/dyextract/internal/types"
)

// VideoDeps are the boundaries the video pipeline drives. LLM may be nil.
type VideoDeps struct {
	Resolver    Resolver
	Downloader  MediaDownloader
	Extractor   audio.Extractor
	Transcriber asr.Transcriber
	LLM         llm.Model
	Logger      Logger
}

// VideoOptions tune one pipeline instance.
type VideoOptions struct {
	ChunkSize   int64
	Concurrency int
}

// VideoResult is the outcome of a video extraction run.
type VideoResult struct {
	RunID      string          `json:"runId"`
	VideoInfo  types.VideoInfo `json:"videoInfo"`
	Transcript string          `json:"transcript"`
	Optimized  string          `json:"optimized"`
	Text       string          `json:"markdown"`
	Strategy   string          `json:"downloadStrategy"`
	Elapsed    time.Duration   `json:"elapsed"`
}

func (r *VideoResult) Markdown() string { return r.Text }

// VideoPipeline runs Resolving through Formatting for one share link.
type VideoPipeline struct {
	deps VideoDeps
	opts VideoOptions
}

func NewVideoPipeline(deps VideoDeps, opts VideoOptions) *VideoPipeline {
	if deps.Logger == nil {
		deps.Logger = nopLogger{}
	}
	return &VideoPipeline{deps: deps, opts: opts}
}

func (p *VideoPipeline) Run(ctx context.Context, input string, sink Sink) (Artifact, error) {
	res, err := p.Extract(ctx, input, sink)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Extract runs the pipeline and returns the typed result.
func (p *VideoPipeline) Extract(ctx context.Context, input string, sink Sink) (*VideoResult, error) {
	r := newRun(ctx, input, sink, SourceVideo, videoSpans, p.deps.Logger)
	res, err := p.extract(r)
	if err != nil {
		return nil, r.finish(nil, err)
	}
	return res, r.finish(res, nil)
}

func (p *VideoPipeline) extract(r *run) (*VideoResult, error) {
	var (
		id        string
		info      types.VideoInfo
		media     downloader.MediaInfo
		video     *downloader.Result
		wav       []byte
		optimized string
	)

	err := r.stage(StageResolving, "could not resolve share link", func(ctx context.Context) error {
		if !douyin.HasShareLink(r.rc.Input) {
			return &StageError{Step: StageResolving, Message: "no Douyin share link or video id found", Err: types.ErrLinkResolution, Fatal: true}
		}
		var err error
		id, err = p.deps.Resolver.ResolveID(ctx, r.rc.Input)
		return err
	})
	if err != nil {
		return nil, err
	}

	err = r.stage(StageFetchingInfo, "could not fetch video info", func(ctx context.Context) error {
		var err error
		info, err = p.deps.Resolver.VideoInfo(ctx, id)
		if err != nil {
			return err
		}
		media = p.deps.Downloader.Probe(ctx, info.MediaURL)
		info = info.WithMedia(media.SupportsRangeRequests, media.ContentLength)
		r.em.info(StageFetchingInfo, info.Title, info)
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = r.stage(StageDownloading, "video download failed", func(ctx context.Context) error {
		var err error
		video, err = p.deps.Downloader.Download(ctx, info.MediaURL, media, downloader.Options{
			ChunkSize:   p.opts.ChunkSize,
			Concurrency: p.opts.Concurrency,
			Progress:    downloadProgress(r.em, videoSpans[StageDownloading]),
		})
		if err != nil {
			return err
		}
		p.deps.Logger.Debugf("run %s: downloaded %d bytes (%s, %d chunks)", r.rc.ID, len(video.Data), video.Strategy, video.ChunkCount)
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = r.stage(StageExtractingAudio, "audio extraction failed", func(ctx context.Context) error {
		var err error
		wav, err = p.deps.Extractor.Extract(ctx, video.Data)
		video.Data = nil
		return err
	})
	if err != nil {
		return nil, err
	}

	err = r.stage(StageTranscribing, "transcription failed", func(ctx context.Context) error {
		text, err := p.deps.Transcriber.Transcribe(ctx, wav)
		if err != nil {
			return err
		}
		sp := videoSpans[StageTranscribing]
		fragments := splitSentences(text)
		for i, frag := range fragments {
			r.rc.appendTranscript(frag)
			r.em.partial(PartialTranscript, frag)
			r.em.progress(StageTranscribing, sp.at(float64(i+1)/float64(len(fragments))), StatusActive, "")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = r.stage(StageOptimizing, "transcript optimization failed", func(ctx context.Context) error {
		transcript := r.rc.Transcript()
		if p.deps.LLM == nil {
			optimized = transcript
			r.em.partial(PartialWarn, "no language model configured; transcript left as recognized")
			return nil
		}
		var err error
		optimized, err = llm.Generate(ctx, p.deps.LLM, llm.OptimizePrompt(transcript), func(delta string) {
			r.em.partial(PartialOptimized, delta)
		})
		optimized = strings.TrimSpace(optimized)
		return err
	})
	if err != nil {
		return nil, err
	}

	err = r.stage(StageFormatting, "markdown formatting failed", func(ctx context.Context) error {
		emit := func(delta string) {
			r.rc.appendMarkdown(delta)
			r.em.partial(PartialMarkdown, delta)
		}
		if p.deps.LLM == nil {
			for _, para := range splitParagraphs(videoMarkdown(info, optimized)) {
				emit(para)
			}
			return nil
		}
		_, err := llm.Generate(ctx, p.deps.LLM, llm.FormatPrompt(info.Title, info.Author, optimized), emit)
		return err
	})
	if err != nil {
		return nil, err
	}

	strategy := ""
	if video != nil {
		strategy = string(video.Strategy)
	}
	return &VideoResult{
		RunID:      r.rc.ID,
		VideoInfo:  info,
		Transcript: r.rc.Transcript(),
		Optimized:  optimized,
		Text:       r.rc.Markdown(),
		Strategy:   strategy,
		Elapsed:    time.Since(r.rc.StartedAt),
	}, nil
}

// downloadProgress maps bytes onto the Downloading span, emitting only when
// the whole-number percentage moves.
func downloadProgress(em *emitter, sp span) downloader.ProgressReporter {
	var (
		mu   sync.Mutex
		last = -1
	)
	return downloader.ProgressFunc(func(written, total int64) {
		if total <= 0 {
			return
		}
		pct := sp.at(float64(written) / float64(total))
		mu.Lock()
		if int(pct) == last {
			mu.Unlock()
			return
		}
		last = int(pct)
		mu.Unlock()
		em.progress(StageDownloading, pct, StatusActive, fmt.Sprintf("%.1f/%.1f MB", mib(written), mib(total)))
	})
}

func mib(n int64) float64 { return float64(n) / (1 << 20) }
