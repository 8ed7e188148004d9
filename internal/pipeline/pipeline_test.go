package pipeline

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/famomatic/dyextract/internal/downloader"
	"github.com/famomatic/dyextract/internal/douyin"
	"github.com/famomatic/dyextract/internal/llm"
	"github.com/famomatic/dyextract/internal/types"
)

const testID = "7301234567890123456"

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Emit(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

type fakeResolver struct {
	err error
}

func (f *fakeResolver) ResolveID(ctx context.Context, text string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return testID, nil
}

func (f *fakeResolver) VideoInfo(ctx context.Context, id string) (types.VideoInfo, error) {
	return types.VideoInfo{
		VideoID:         id,
		Title:           "今天学习Go并发",
		Author:          "码农小王",
		DurationSeconds: 75,
		MediaURL:        "https://media.example/v.mp4",
		ShareURL:        "https://www.douyin.com/video/" + id,
	}, nil
}

type fakeDownloader struct {
	onDownload func(ctx context.Context) error
}

func (f *fakeDownloader) Probe(ctx context.Context, rawURL string) downloader.MediaInfo {
	return downloader.MediaInfo{SupportsRangeRequests: true, ContentLength: 8}
}

func (f *fakeDownloader) Download(ctx context.Context, rawURL string, info downloader.MediaInfo, opts downloader.Options) (*downloader.Result, error) {
	if f.onDownload != nil {
		if err := f.onDownload(ctx); err != nil {
			return nil, err
		}
	}
	if opts.Progress != nil {
		opts.Progress.OnProgress(4, 8)
		opts.Progress.OnProgress(8, 8)
	}
	return &downloader.Result{Data: []byte("mp4bytes"), Strategy: downloader.StrategySingle, ChunkCount: 1}, nil
}

type extractorFunc func(ctx context.Context, video []byte) ([]byte, error)

func (f extractorFunc) Extract(ctx context.Context, video []byte) ([]byte, error) { return f(ctx, video) }

type transcriberFunc func(ctx context.Context, audio []byte) (string, error)

func (f transcriberFunc) Transcribe(ctx context.Context, audio []byte) (string, error) {
	return f(ctx, audio)
}

type scriptedStream struct{ deltas []string }

func (s *scriptedStream) Recv() (string, error) {
	if len(s.deltas) == 0 {
		return "", io.EOF
	}
	d := s.deltas[0]
	s.deltas = s.deltas[1:]
	return d, nil
}

type fakeModel struct {
	mu      sync.Mutex
	prompts []string
	reply   func(prompt string) []string
}

func (m *fakeModel) Stream(ctx context.Context, prompt string) (llm.Stream, error) {
	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	m.mu.Unlock()
	return &scriptedStream{deltas: m.reply(prompt)}, nil
}

func videoDeps() VideoDeps {
	return VideoDeps{
		Resolver:   &fakeResolver{},
		Downloader: &fakeDownloader{},
		Extractor: extractorFunc(func(ctx context.Context, video []byte) ([]byte, error) {
			return []byte("wav"), nil
		}),
		Transcriber: transcriberFunc(func(ctx context.Context, audio []byte) (string, error) {
			return "大家好。今天聊聊Go的并发！goroutine很轻量。", nil
		}),
	}
}

func assertOrdered(t *testing.T, events []Event) {
	t.Helper()
	last := -1.0
	terminals := 0
	for i, e := range events {
		if e.Seq != int64(i+1) {
			t.Fatalf("event %d has seq %d", i, e.Seq)
		}
		if e.Progress != nil {
			if e.Progress.Percentage < last {
				t.Fatalf("percentage went from %v to %v at event %d", last, e.Progress.Percentage, i)
			}
			last = e.Progress.Percentage
		}
		if e.Type.Terminal() {
			terminals++
			if i != len(events)-1 {
				t.Fatalf("terminal event %s at %d of %d", e.Type, i, len(events))
			}
		}
	}
	if terminals != 1 {
		t.Fatalf("terminal events=%d, want 1", terminals)
	}
}

func partials(events []Event, key PartialKey) string {
	var b strings.Builder
	for _, e := range events {
		if e.Partial != nil && e.Partial.Key == key {
			b.WriteString(e.Partial.Data)
		}
	}
	return b.String()
}

func TestVideoPipelineWithoutLLM(t *testing.T) {
	rec := &recorder{}
	res, err := NewVideoPipeline(videoDeps(), VideoOptions{}).Extract(context.Background(), "https://v.douyin.com/iRNBho6u/", rec)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	events := rec.all()
	assertOrdered(t, events)

	var stages []Stage
	for _, e := range events {
		if e.Progress != nil && e.Progress.Status == StatusActive && (len(stages) == 0 || stages[len(stages)-1] != e.Progress.Stage) {
			stages = append(stages, e.Progress.Stage)
		}
	}
	if len(stages) != len(videoStages) {
		t.Fatalf("stages=%v", stages)
	}
	for i := range videoStages {
		if stages[i] != videoStages[i] {
			t.Fatalf("stages=%v", stages)
		}
	}

	last := events[len(events)-1]
	if last.Type != EventDone || last.Done.Result.(*VideoResult) != res {
		t.Fatalf("last event=%+v", last)
	}
	if got := partials(events, PartialTranscript); got != res.Transcript || got != "大家好。今天聊聊Go的并发！goroutine很轻量。" {
		t.Fatalf("transcript partials=%q result=%q", got, res.Transcript)
	}
	if partials(events, PartialWarn) == "" {
		t.Fatalf("expected a warn partial without a language model")
	}
	if got := partials(events, PartialMarkdown); got != res.Markdown() {
		t.Fatalf("markdown partials do not add up to the result")
	}
	if !strings.HasPrefix(res.Markdown(), "# 今天学习Go并发") || !strings.Contains(res.Markdown(), "1:15") {
		t.Fatalf("markdown=%q", res.Markdown())
	}
	if !res.VideoInfo.SupportsRangeRequests || res.VideoInfo.ContentLength != 8 {
		t.Fatalf("video info=%+v", res.VideoInfo)
	}
	if res.RunID == "" || last.RunID != res.RunID {
		t.Fatalf("run id=%q event run id=%q", res.RunID, last.RunID)
	}
}

func TestVideoPipelineStreamsLLMOutput(t *testing.T) {
	model := &fakeModel{reply: func(prompt string) []string {
		if strings.Contains(prompt, "proofreading") {
			return []string{"大家好。", "今天聊聊 Go 的并发！"}
		}
		return []string{"# 今天学习Go并发\n\n", "- goroutine\n"}
	}}
	deps := videoDeps()
	deps.LLM = model
	rec := &recorder{}
	res, err := NewVideoPipeline(deps, VideoOptions{}).Extract(context.Background(), testID, rec)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	events := rec.all()
	assertOrdered(t, events)
	if res.Optimized != "大家好。今天聊聊 Go 的并发！" || partials(events, PartialOptimized) != "大家好。今天聊聊 Go 的并发！" {
		t.Fatalf("optimized=%q", res.Optimized)
	}
	if res.Markdown() != "# 今天学习Go并发\n\n- goroutine\n" {
		t.Fatalf("markdown=%q", res.Markdown())
	}
	if len(model.prompts) != 2 || !strings.Contains(model.prompts[1], "今天聊聊 Go 的并发") {
		t.Fatalf("prompts=%q", model.prompts)
	}
}

func TestVideoPipelineCancelledDuringDownload(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	deps := videoDeps()
	extracted := false
	deps.Downloader = &fakeDownloader{onDownload: func(ctx context.Context) error {
		cancel()
		<-ctx.Done()
		return ctx.Err()
	}}
	deps.Extractor = extractorFunc(func(ctx context.Context, video []byte) ([]byte, error) {
		extracted = true
		return nil, nil
	})

	rec := &recorder{}
	res, err := NewVideoPipeline(deps, VideoOptions{}).Extract(ctx, testID, rec)
	if res != nil {
		t.Fatalf("result returned for cancelled run")
	}
	if !errors.Is(err, types.ErrCancelled) || !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want cancelled", err)
	}
	var se *StageError
	if errors.As(err, &se) {
		t.Fatalf("cancellation reported as stage failure: %v", se)
	}
	if extracted {
		t.Fatalf("audio extraction ran after cancel")
	}

	events := rec.all()
	last := events[len(events)-1]
	if last.Progress == nil || last.Progress.Stage != StageDownloading || last.Progress.Status != StatusActive {
		t.Fatalf("last event=%+v", last)
	}
	for _, e := range events {
		if e.Type == EventError || e.Type == EventDone {
			t.Fatalf("terminal event %s emitted for cancelled run", e.Type)
		}
	}
}

func TestVideoPipelineCancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rec := &recorder{}
	_, err := NewVideoPipeline(videoDeps(), VideoOptions{}).Extract(ctx, testID, rec)
	if !IsCancelled(err) || len(rec.all()) != 0 {
		t.Fatalf("err=%v events=%d", err, len(rec.all()))
	}
}

func TestVideoPipelineTranscriptionFailure(t *testing.T) {
	deps := videoDeps()
	deps.Transcriber = transcriberFunc(func(ctx context.Context, audio []byte) (string, error) {
		return "", &types.RateLimitError{StatusCode: 429, RetryAfter: 20 * time.Second, Service: "transcription"}
	})
	rec := &recorder{}
	_, err := NewVideoPipeline(deps, VideoOptions{}).Extract(context.Background(), testID, rec)

	var se *StageError
	if !errors.As(err, &se) || se.Step != StageTranscribing {
		t.Fatalf("error = %v, want Transcribing stage error", err)
	}
	if !errors.Is(err, types.ErrRateLimited) {
		t.Fatalf("error lost its cause: %v", err)
	}
	events := rec.all()
	assertOrdered(t, events)
	last := events[len(events)-1]
	if last.Type != EventError || last.Error.Step != StageTranscribing || !last.Error.Recoverable {
		t.Fatalf("last event=%+v", last.Error)
	}
	if !strings.Contains(last.Error.Message, "20 seconds") {
		t.Fatalf("message=%q", last.Error.Message)
	}
	for _, e := range events {
		if e.Progress != nil && e.Progress.Stage == StageOptimizing {
			t.Fatalf("stage after failure was started")
		}
	}
}

func TestVideoPipelineRejectsInputWithoutLink(t *testing.T) {
	rec := &recorder{}
	_, err := NewVideoPipeline(videoDeps(), VideoOptions{}).Extract(context.Background(), "just some words", rec)
	if !errors.Is(err, types.ErrLinkResolution) {
		t.Fatalf("error = %v", err)
	}
	events := rec.all()
	last := events[len(events)-1]
	if last.Type != EventError || last.Error.Step != StageResolving || last.Error.Recoverable {
		t.Fatalf("last event=%+v", last.Error)
	}
}

type fakeComments struct {
	comments []types.Comment
	err      error
}

func (f *fakeComments) FetchAll(ctx context.Context, awemeID string, opts douyin.FetchOptions) ([]types.Comment, int64, error) {
	if f.err != nil {
		return nil, 0, f.err
	}
	if opts.OnPage != nil {
		opts.OnPage(1, len(f.comments))
	}
	return f.comments, 120, nil
}

func sampleComments() []types.Comment {
	return []types.Comment{
		{ID: "1", Text: "讲得清楚", Likes: 5, ReplyCount: 1, IPLabel: "广东"},
		{ID: "2", Text: "学到了", Likes: 30, ReplyCount: 2, IPLabel: "北京"},
		{ID: "3", Text: "求源码", Likes: 30, IPLabel: "广东"},
		{ID: "4", Text: "一般", Likes: 0},
	}
}

func TestCommentsPipeline(t *testing.T) {
	model := &fakeModel{reply: func(string) []string { return []string{"整体评价积极。", "观众想要源码。"} }}
	rec := &recorder{}
	p := NewCommentsPipeline(CommentDeps{
		Resolver: &fakeResolver{},
		Comments: &fakeComments{comments: sampleComments()},
		LLM:      model,
	}, CommentOptions{TopN: 2})

	res, err := p.Analyze(context.Background(), "看看评论 https://v.douyin.com/iRNBho6u/", rec)
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	events := rec.all()
	assertOrdered(t, events)

	var task *TaskInfo
	for _, e := range events {
		if e.Info != nil {
			if ti, ok := e.Info.Payload.(TaskInfo); ok {
				task = &ti
			}
		}
		if e.Source != SourceComments {
			t.Fatalf("source=%q", e.Source)
		}
	}
	if task == nil || task.TaskID != res.TaskID {
		t.Fatalf("task info=%v result task=%q", task, res.TaskID)
	}
	if res.Stats.TotalLikes != 65 || res.Stats.ReportedTotal != 120 || len(res.Stats.Top) != 2 || res.Stats.Top[0].ID != "2" {
		t.Fatalf("stats=%+v", res.Stats)
	}
	if res.Analysis != "整体评价积极。观众想要源码。" || partials(events, PartialAnalysis) != res.Analysis {
		t.Fatalf("analysis=%q", res.Analysis)
	}
	if !strings.Contains(res.Markdown(), "| total likes | 65 |") || !strings.Contains(res.Markdown(), "## Analysis") {
		t.Fatalf("markdown=%q", res.Markdown())
	}
	if partials(events, PartialMarkdown) != res.Markdown() {
		t.Fatalf("markdown partials do not add up to the result")
	}
}

func TestCommentsPipelineFetchFailure(t *testing.T) {
	rec := &recorder{}
	p := NewCommentsPipeline(CommentDeps{
		Resolver: &fakeResolver{},
		Comments: &fakeComments{err: types.ErrCommentsUnavailable},
	}, CommentOptions{})
	_, err := p.Analyze(context.Background(), testID, rec)
	var se *StageError
	if !errors.As(err, &se) || se.Step != StageFetchingComments {
		t.Fatalf("error = %v", err)
	}
	assertOrdered(t, rec.all())
}

func TestAggregate(t *testing.T) {
	s := aggregate(sampleComments(), 0, 3)
	if s.Fetched != 4 || s.TotalLikes != 65 || s.TotalReplies != 3 || s.AverageLikes != 16.25 {
		t.Fatalf("stats=%+v", s)
	}
	if s.Top[0].ID != "2" || s.Top[1].ID != "3" || s.Top[2].ID != "1" {
		t.Fatalf("top=%v", s.Top)
	}
	want := []LabelCount{{"广东", 2}, {"unknown", 1}, {"北京", 1}}
	for i, l := range want {
		if s.Locations[i] != l {
			t.Fatalf("locations=%v", s.Locations)
		}
	}
}

func TestEmitterGuards(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rec := &recorder{}
	em := newEmitter(ctx, rec, "run", SourceVideo)

	em.progress(StageResolving, 20, StatusActive, "")
	em.progress(StageResolving, 10, StatusDone, "")
	em.fail(ErrorPayload{Message: "x", Recoverable: true})
	em.progress(StageFetchingInfo, 30, StatusActive, "")

	events := rec.all()
	if len(events) != 3 {
		t.Fatalf("events=%d, want 3", len(events))
	}
	if events[1].Progress.Percentage != 20 {
		t.Fatalf("percentage=%v, want clamp to 20", events[1].Progress.Percentage)
	}

	rec2 := &recorder{}
	em2 := newEmitter(ctx, rec2, "run", SourceVideo)
	cancel()
	em2.progress(StageResolving, 0, StatusActive, "")
	if len(rec2.all()) != 0 {
		t.Fatalf("event delivered after cancel")
	}
}

func TestSplitSentencesRoundTrip(t *testing.T) {
	in := "第一句。第二句！Third one? tail without end"
	parts := splitSentences(in)
	if strings.Join(parts, "") != in || len(parts) != 4 {
		t.Fatalf("parts=%q", parts)
	}
	long := strings.Repeat("字", 300)
	if got := strings.Join(splitSentences(long), ""); got != long {
		t.Fatalf("long text changed")
	}
	if got := strings.Join(splitParagraphs("a\n\nb\n\nc"), ""); got != "a\n\nb\n\nc" {
		t.Fatalf("paragraphs=%q", got)
	}
}
