package douyin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/famomatic/dyextract/internal/retry"
	"github.com/famomatic/dyextract/internal/types"
)

const (
	DefaultCommentsBaseURL = "https://www.douyin.com"
	DefaultPageSize        = 20
	DefaultMaxPages        = 10
	DefaultMaxComments     = 200
	DefaultRequestsPerSec  = 2.0
)

// CommentConfig tunes comment paging.
type CommentConfig struct {
	BaseURL        string
	UserAgent      string
	Headers        http.Header
	Policy         retry.Policy
	Timeout        time.Duration
	PageSize       int
	RequestsPerSec float64
}

// Page is one upstream comment page.
type Page struct {
	Comments []types.Comment
	Cursor   int64
	HasMore  bool
	Total    int64
}

// FetchOptions bound a FetchAll call.
type FetchOptions struct {
	MaxPages    int
	MaxComments int
	// OnPage is called after each page with the 1-based page index and the
	// running comment count.
	OnPage func(page, fetched int)
}

// CommentSource pages through a video's top-level comments.
type CommentSource struct {
	client   *http.Client
	executor *retry.Executor
	limiter  *rate.Limiter
	config   CommentConfig
}

func NewCommentSource(client *http.Client, cfg CommentConfig) *CommentSource {
	if client == nil {
		client = http.DefaultClient
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultCommentsBaseURL
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultMobileUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.RequestsPerSec <= 0 {
		cfg.RequestsPerSec = DefaultRequestsPerSec
	}
	return &CommentSource{
		client:   client,
		executor: retry.NewExecutor(),
		limiter:  rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), 1),
		config:   cfg,
	}
}

// FetchAll pages until the upstream runs out or a bound is hit. A page that
// exhausts its retries fails the whole call; earlier pages are not refetched.
func (s *CommentSource) FetchAll(ctx context.Context, awemeID string, opts FetchOptions) ([]types.Comment, int64, error) {
	if opts.MaxPages <= 0 {
		opts.MaxPages = DefaultMaxPages
	}
	if opts.MaxComments <= 0 {
		opts.MaxComments = DefaultMaxComments
	}

	var (
		all    []types.Comment
		total  int64
		cursor int64
		seen   = make(map[string]struct{})
	)
	for page := 1; page <= opts.MaxPages; page++ {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		p, err := s.FetchPage(ctx, awemeID, cursor)
		if err != nil {
			return nil, 0, err
		}
		if p.Total > total {
			total = p.Total
		}
		for _, c := range p.Comments {
			if _, dup := seen[c.ID]; dup && c.ID != "" {
				continue
			}
			seen[c.ID] = struct{}{}
			all = append(all, c)
			if len(all) >= opts.MaxComments {
				break
			}
		}
		if opts.OnPage != nil {
			opts.OnPage(page, len(all))
		}
		if !p.HasMore || len(all) >= opts.MaxComments || p.Cursor == cursor {
			break
		}
		cursor = p.Cursor
	}
	if len(all) == 0 {
		return nil, total, types.ErrCommentsUnavailable
	}
	return all, total, nil
}

// FetchPage fetches one page starting at cursor, waiting on the rate limiter
// first and retrying transient failures.
func (s *CommentSource) FetchPage(ctx context.Context, awemeID string, cursor int64) (Page, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return Page{}, err
	}

	endpoint := s.pageURL(awemeID, cursor)
	var body []byte
	out := s.executor.Execute(ctx, s.config.Policy, func(ctx context.Context) (*http.Response, error) {
		ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
		defer cancel()
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", s.config.UserAgent)
		req.Header.Set("Referer", "https://www.douyin.com/video/"+awemeID)
		for k, values := range s.config.Headers {
			for _, v := range values {
				req.Header.Add(k, v)
			}
		}
		resp, err := s.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		body, err = io.ReadAll(io.LimitReader(resp.Body, 8<<20))
		if err != nil {
			return nil, err
		}
		resp.Body = io.NopCloser(bytes.NewReader(nil))
		return resp, nil
	})
	if out.Kind != retry.KindOK {
		if ctx.Err() != nil {
			return Page{}, ctx.Err()
		}
		if out.Response != nil && out.Response.StatusCode == http.StatusTooManyRequests {
			return Page{}, &types.RateLimitError{
				StatusCode: out.Response.StatusCode,
				RetryAfter: retry.ParseRetryAfter(out.Response.Header.Get("Retry-After")),
				Service:    "comments",
			}
		}
		return Page{}, fmt.Errorf("%w: cursor %d: %v", types.ErrCommentsUnavailable, cursor, out.AsError())
	}
	return decodePage(body)
}

func (s *CommentSource) pageURL(awemeID string, cursor int64) string {
	q := url.Values{}
	q.Set("aweme_id", awemeID)
	q.Set("cursor", strconv.FormatInt(cursor, 10))
	q.Set("count", strconv.Itoa(s.config.PageSize))
	q.Set("item_type", "0")
	q.Set("device_platform", "webapp")
	q.Set("aid", "6383")
	return strings.TrimRight(s.config.BaseURL, "/") + "/aweme/v1/web/comment/list/?" + q.Encode()
}

type commentListResponse struct {
	StatusCode int    `json:"status_code"`
	StatusMsg  string `json:"status_msg"`
	Comments   []struct {
		CID        string `json:"cid"`
		Text       string `json:"text"`
		DiggCount  int64  `json:"digg_count"`
		ReplyTotal int64  `json:"reply_comment_total"`
		CreateTime int64  `json:"create_time"`
		IPLabel    string `json:"ip_label"`
		User       struct {
			Nickname string `json:"nickname"`
		} `json:"user"`
	} `json:"comments"`
	Cursor  int64 `json:"cursor"`
	HasMore int   `json:"has_more"`
	Total   int64 `json:"total"`
}

func decodePage(body []byte) (Page, error) {
	var r commentListResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return Page{}, fmt.Errorf("%w: decode page: %v", types.ErrCommentsUnavailable, err)
	}
	if r.StatusCode != 0 {
		return Page{}, fmt.Errorf("%w: status_code=%d %s", types.ErrCommentsUnavailable, r.StatusCode, r.StatusMsg)
	}
	p := Page{Cursor: r.Cursor, HasMore: r.HasMore == 1, Total: r.Total}
	for _, c := range r.Comments {
		text := strings.TrimSpace(c.Text)
		if text == "" {
			continue
		}
		p.Comments = append(p.Comments, types.Comment{
			ID:         c.CID,
			Text:       text,
			Author:     c.User.Nickname,
			Likes:      c.DiggCount,
			ReplyCount: c.ReplyTotal,
			IPLabel:    c.IPLabel,
			CreatedAt:  time.Unix(c.CreateTime, 0).UTC(),
		})
	}
	return p, nil
}
