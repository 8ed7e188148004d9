package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/famomatic/dyextract/internal/douyin"
	"github.com/famomatic/dyextract/internal/llm"
	"github.com/famomatic/dyextract/internal/types"
)

// CommentDeps are the boundaries the comments pipeline drives. LLM may be nil.
type CommentDeps struct {
	Resolver Resolver
	Comments CommentFetcher
	LLM      llm.Model
	Logger   Logger
}

type CommentOptions struct {
	MaxPages    int
	MaxComments int
	// TopN bounds the top comment list in the report.
	TopN int
	// SampleSize bounds how many comments are sent to the language model.
	SampleSize int
}

// CommentsResult is the outcome of a comment analysis run.
type CommentsResult struct {
	RunID     string          `json:"runId"`
	TaskID    string          `json:"taskId"`
	VideoInfo types.VideoInfo `json:"videoInfo"`
	Stats     Stats           `json:"stats"`
	Analysis  string          `json:"analysis"`
	Text      string          `json:"markdown"`
	Elapsed   time.Duration   `json:"elapsed"`
}

func (r *CommentsResult) Markdown() string { return r.Text }

// CommentsPipeline collects comments and analyses them.
type CommentsPipeline struct {
	deps CommentDeps
	opts CommentOptions
}

func NewCommentsPipeline(deps CommentDeps, opts CommentOptions) *CommentsPipeline {
	if deps.Logger == nil {
		deps.Logger = nopLogger{}
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = douyin.DefaultMaxPages
	}
	if opts.MaxComments <= 0 {
		opts.MaxComments = douyin.DefaultMaxComments
	}
	if opts.TopN <= 0 {
		opts.TopN = 10
	}
	if opts.SampleSize <= 0 {
		opts.SampleSize = 100
	}
	return &CommentsPipeline{deps: deps, opts: opts}
}

func (p *CommentsPipeline) Run(ctx context.Context, input string, sink Sink) (Artifact, error) {
	res, err := p.Analyze(ctx, input, sink)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Analyze runs the pipeline and returns the typed result.
func (p *CommentsPipeline) Analyze(ctx context.Context, input string, sink Sink) (*CommentsResult, error) {
	r := newRun(ctx, input, sink, SourceComments, commentSpans, p.deps.Logger)
	res, err := p.analyze(r)
	if err != nil {
		return nil, r.finish(nil, err)
	}
	return res, r.finish(res, nil)
}

func (p *CommentsPipeline) analyze(r *run) (*CommentsResult, error) {
	var (
		taskID   = uuid.NewString()
		info     types.VideoInfo
		comments []types.Comment
		reported int64
		stats    Stats
		analysis string
	)

	err := r.stage(StageResolving, "could not resolve share link", func(ctx context.Context) error {
		if !douyin.HasShareLink(r.rc.Input) {
			return &StageError{Step: StageResolving, Message: "no Douyin share link or video id found", Err: types.ErrLinkResolution, Fatal: true}
		}
		r.em.info(StageResolving, "comment analysis task created", TaskInfo{TaskID: taskID})
		id, err := p.deps.Resolver.ResolveID(ctx, r.rc.Input)
		if err != nil {
			return err
		}
		info, err = p.deps.Resolver.VideoInfo(ctx, id)
		if err != nil {
			// the report only needs the id when metadata is unavailable
			p.deps.Logger.Warnf("run %s: video info for %s unavailable: %v", r.rc.ID, id, err)
			if ctx.Err() != nil {
				return err
			}
			info = types.VideoInfo{VideoID: id, ShareURL: "https://www.douyin.com/video/" + id}
		}
		r.em.info(StageResolving, info.Title, info)
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = r.stage(StageFetchingComments, "could not fetch comments", func(ctx context.Context) error {
		sp := commentSpans[StageFetchingComments]
		var err error
		comments, reported, err = p.deps.Comments.FetchAll(ctx, info.VideoID, douyin.FetchOptions{
			MaxPages:    p.opts.MaxPages,
			MaxComments: p.opts.MaxComments,
			OnPage: func(page, fetched int) {
				frac := max(float64(page)/float64(p.opts.MaxPages), float64(fetched)/float64(p.opts.MaxComments))
				r.em.progress(StageFetchingComments, sp.at(frac), StatusActive, fmt.Sprintf("%d comments", fetched))
			},
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	err = r.stage(StageAggregatingStats, "could not aggregate comments", func(ctx context.Context) error {
		stats = aggregate(comments, reported, p.opts.TopN)
		r.em.info(StageAggregatingStats, fmt.Sprintf("%d comments analyzed", stats.Fetched), stats)
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = r.stage(StageAnalyzingWithLLM, "comment analysis failed", func(ctx context.Context) error {
		if p.deps.LLM == nil {
			r.em.partial(PartialWarn, "no language model configured; report contains statistics only")
			return nil
		}
		sample := make([]string, 0, min(len(comments), p.opts.SampleSize))
		for _, c := range stats.Top {
			if len(sample) >= p.opts.SampleSize {
				break
			}
			sample = append(sample, oneLine(c.Text))
		}
		for _, c := range comments {
			if len(sample) >= p.opts.SampleSize {
				break
			}
			if !containsComment(stats.Top, c.ID) {
				sample = append(sample, oneLine(c.Text))
			}
		}
		var err error
		analysis, err = llm.Generate(ctx, p.deps.LLM, llm.AnalyzePrompt(info.Title, stats.summary(), sample), func(delta string) {
			r.em.partial(PartialAnalysis, delta)
		})
		analysis = strings.TrimSpace(analysis)
		return err
	})
	if err != nil {
		return nil, err
	}

	err = r.stage(StageFormatting, "report formatting failed", func(ctx context.Context) error {
		for _, para := range splitParagraphs(commentsMarkdown(info, stats, analysis)) {
			r.rc.appendMarkdown(para)
			r.em.partial(PartialMarkdown, para)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &CommentsResult{
		RunID:     r.rc.ID,
		TaskID:    taskID,
		VideoInfo: info,
		Stats:     stats,
		Analysis:  analysis,
		Text:      r.rc.Markdown(),
		Elapsed:   time.Since(r.rc.StartedAt),
	}, nil
}

func containsComment(list []types.Comment, id string) bool {
	for _, c := range list {
		if c.ID == id {
			return true
		}
	}
	return false
}
