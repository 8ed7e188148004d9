package douyin

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/famomatic/dyextract/internal/retry"
	"github.com/famomatic/dyextract/internal/types"
)

const testID = "7301234567890123456"

func fastPolicy() retry.Policy {
	p := retry.DefaultPolicy()
	p.InitialDelay = time.Millisecond
	p.MaxDelay = 2 * time.Millisecond
	return p
}

func TestParseInput(t *testing.T) {
	tests := []struct {
		in    string
		id    string
		short string
	}{
		{testID, testID, ""},
		{"https://www.douyin.com/video/" + testID + "?previous_page=app", testID, ""},
		{"https://www.iesdouyin.com/share/video/" + testID + "/?region=CN", testID, ""},
		{"https://www.douyin.com/discover?modal_id=" + testID, testID, ""},
		{"7.43 复制打开抖音，看看【猫咪的作品】好可爱 https://v.douyin.com/iRNBho6u/ a@b.com 02/27", "", "https://v.douyin.com/iRNBho6u/"},
		{"看看这个 " + testID + " 怎么样", testID, ""},
	}
	for _, tc := range tests {
		got, err := ParseInput(tc.in)
		if err != nil {
			t.Fatalf("ParseInput(%q) error = %v", tc.in, err)
		}
		if got.ID != tc.id || got.ShortURL != tc.short {
			t.Fatalf("ParseInput(%q) = %+v", tc.in, got)
		}
	}
}

func TestParseInputRejectsUnknown(t *testing.T) {
	for _, in := range []string{"", "   ", "hello world", "https://www.youtube.com/watch?v=dQw4w9WgXcQ", "12345"} {
		if _, err := ParseInput(in); !errors.Is(err, types.ErrLinkResolution) {
			t.Fatalf("ParseInput(%q) error = %v", in, err)
		}
	}
}

func TestAsksForComments(t *testing.T) {
	if !AsksForComments("分析一下评论 https://v.douyin.com/iRNBho6u/") {
		t.Fatalf("expected comments request")
	}
	if AsksForComments("https://v.douyin.com/iRNBho6u/") {
		t.Fatalf("plain link is not a comments request")
	}
	if AsksForComments("评论区好热闹") {
		t.Fatalf("keyword without link is not a comments request")
	}
}

func TestWantsTranscript(t *testing.T) {
	link := "https://v.douyin.com/iRNBho6u/"
	cases := []struct {
		text string
		want bool
	}{
		{"提取文案并分析评论 " + link, true},
		{"帮我转录一下 " + link, true},
		{"Transcript please " + link, true},
		{link, false},
		{"分析评论 " + link, false},
		{"提取文案", false},
	}
	for _, tc := range cases {
		if got := WantsTranscript(tc.text); got != tc.want {
			t.Fatalf("WantsTranscript(%q) = %v, want %v", tc.text, got, tc.want)
		}
	}
}

func sharePage(id string) string {
	return `<html><head><script>window._ROUTER_DATA = {"loaderData":{"video_layout":{"x":undefined},"video_(id)/page":{"videoInfoRes":{"item_list":[{"aweme_id":"` + id + `","desc":" 今天学习Go并发 ","author":{"nickname":"码农小王"},"video":{"play_addr":{"uri":"v0200fg","url_list":["https://aweme.snssdk.com/aweme/v1/playwm/?video_id=v0200fg&ratio=720p&line=0"]},"cover":{"url_list":["https://p3.douyinpic.com/cover.jpeg"]},"duration":61490}}]}}}};</script></head></html>`
}

func TestResolverFollowsShortLinkAndReadsRouterData(t *testing.T) {
	var pageHits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/iRNBho6u/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/share/video/"+testID+"/?region=CN", http.StatusFound)
	})
	mux.HandleFunc("/share/video/"+testID+"/", func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("User-Agent"), "iPhone") {
			t.Errorf("user agent=%q", r.Header.Get("User-Agent"))
		}
		if pageHits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(sharePage(testID)))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	r := NewResolver(srv.Client(), nil, ResolverConfig{BaseURL: srv.URL, Policy: fastPolicy()})
	ctx := context.Background()

	// the test server is not v.douyin.com, so drive the short-link path directly
	id, err := r.followShortLink(ctx, srv.URL+"/iRNBho6u/")
	if err != nil || id != testID {
		t.Fatalf("followShortLink() = %q, %v", id, err)
	}

	info, err := r.VideoInfo(ctx, id)
	if err != nil {
		t.Fatalf("VideoInfo() error = %v", err)
	}
	if info.Title != "今天学习Go并发" || info.Author != "码农小王" || info.DurationSeconds != 61 {
		t.Fatalf("info=%+v", info)
	}
	if !strings.Contains(info.MediaURL, "/aweme/v1/play/") || strings.Contains(info.MediaURL, "playwm") {
		t.Fatalf("media url=%q", info.MediaURL)
	}
	if info.CoverURL == "" || info.ShareURL != "https://www.douyin.com/video/"+testID {
		t.Fatalf("info=%+v", info)
	}

	if _, err := r.VideoInfo(ctx, id); err != nil {
		t.Fatalf("cached VideoInfo() error = %v", err)
	}
	if pageHits.Load() != 2 {
		t.Fatalf("page hits=%d, want 2 (one retry, then cached)", pageHits.Load())
	}
}

func TestResolveWithDirectID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(sharePage(testID)))
	}))
	defer srv.Close()

	r := NewResolver(srv.Client(), NewMemoryCache(time.Minute), ResolverConfig{BaseURL: srv.URL, Policy: fastPolicy()})
	info, err := r.Resolve(context.Background(), "https://www.douyin.com/video/"+testID)
	if err != nil || info.VideoID != testID {
		t.Fatalf("Resolve() = %+v, %v", info, err)
	}
}

func TestVideoInfoFilteredVideo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<script>window._ROUTER_DATA = {loaderData:{"video_(id)/page":{videoInfoRes:{item_list:[],filter_list:[{filter_reason:"status_self_see",detail_msg:"作品已删除"}]}}}}</script>`))
	}))
	defer srv.Close()

	r := NewResolver(srv.Client(), nil, ResolverConfig{BaseURL: srv.URL, Policy: fastPolicy()})
	_, err := r.VideoInfo(context.Background(), testID)
	if !errors.Is(err, types.ErrLinkResolution) || !strings.Contains(err.Error(), "作品已删除") {
		t.Fatalf("error = %v", err)
	}
}

func TestEvalRouterDataMissing(t *testing.T) {
	if _, err := evalRouterData([]byte("<html>nothing</html>")); !errors.Is(err, errNoRouterData) {
		t.Fatalf("error = %v", err)
	}
}

func TestMemoryCacheExpires(t *testing.T) {
	c := NewMemoryCache(time.Minute).(*memoryCache)
	now := time.Unix(1700000000, 0)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	c.Set(ctx, "a", types.VideoInfo{VideoID: "a"})
	if _, ok := c.Get(ctx, "a"); !ok {
		t.Fatalf("expected hit")
	}
	now = now.Add(2 * time.Minute)
	if _, ok := c.Get(ctx, "a"); ok {
		t.Fatalf("expected expiry")
	}
}

func commentPage(start, n int, hasMore bool, total int) string {
	var items []string
	for i := start; i < start+n; i++ {
		items = append(items, fmt.Sprintf(`{"cid":"c%d","text":"评论%d","digg_count":%d,"reply_comment_total":1,"create_time":1700000000,"ip_label":"广东","user":{"nickname":"u%d"}}`, i, i, i*10, i))
	}
	more := 0
	if hasMore {
		more = 1
	}
	return fmt.Sprintf(`{"status_code":0,"comments":[%s],"cursor":%d,"has_more":%d,"total":%d}`, strings.Join(items, ","), start+n, more, total)
}

func TestFetchAllPagesUntilDone(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Path != "/aweme/v1/web/comment/list/" || r.URL.Query().Get("aweme_id") != testID {
			t.Errorf("request=%s", r.URL)
		}
		cursor, _ := strconv.Atoi(r.URL.Query().Get("cursor"))
		if cursor == 20 && calls.Load() == 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(commentPage(cursor, 20, cursor < 40, 60)))
	}))
	defer srv.Close()

	src := NewCommentSource(srv.Client(), CommentConfig{BaseURL: srv.URL, Policy: fastPolicy(), RequestsPerSec: 1000})
	var pages []int
	comments, total, err := src.FetchAll(context.Background(), testID, FetchOptions{
		MaxPages:    10,
		MaxComments: 1000,
		OnPage:      func(page, fetched int) { pages = append(pages, fetched) },
	})
	if err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}
	if len(comments) != 60 || total != 60 {
		t.Fatalf("comments=%d total=%d", len(comments), total)
	}
	if len(pages) != 3 || pages[2] != 60 {
		t.Fatalf("pages=%v", pages)
	}
	if calls.Load() != 4 {
		t.Fatalf("calls=%d, want 4 (one page retried)", calls.Load())
	}
	if comments[5].Likes != 50 || comments[5].IPLabel != "广东" {
		t.Fatalf("comment=%+v", comments[5])
	}
}

func TestFetchAllStopsAtMaxComments(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cursor, _ := strconv.Atoi(r.URL.Query().Get("cursor"))
		_, _ = w.Write([]byte(commentPage(cursor, 20, true, 1000)))
	}))
	defer srv.Close()

	src := NewCommentSource(srv.Client(), CommentConfig{BaseURL: srv.URL, Policy: fastPolicy(), RequestsPerSec: 1000})
	comments, _, err := src.FetchAll(context.Background(), testID, FetchOptions{MaxComments: 30})
	if err != nil || len(comments) != 30 {
		t.Fatalf("FetchAll() = %d, %v", len(comments), err)
	}
}

func TestFetchPageUpstreamStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status_code":8,"status_msg":"need login"}`))
	}))
	defer srv.Close()

	src := NewCommentSource(srv.Client(), CommentConfig{BaseURL: srv.URL, Policy: fastPolicy(), RequestsPerSec: 1000})
	if _, _, err := src.FetchAll(context.Background(), testID, FetchOptions{}); !errors.Is(err, types.ErrCommentsUnavailable) {
		t.Fatalf("error = %v", err)
	}
}

func TestFetchPageRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := fastPolicy()
	p.MaxRetries = 0
	src := NewCommentSource(srv.Client(), CommentConfig{BaseURL: srv.URL, Policy: p, RequestsPerSec: 1000})
	_, err := src.FetchPage(context.Background(), testID, 0)
	var rl *types.RateLimitError
	if !errors.As(err, &rl) || rl.RetryAfter != 30*time.Second {
		t.Fatalf("error = %v", err)
	}
}
