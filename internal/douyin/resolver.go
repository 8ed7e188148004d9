package douyin

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/famomatic/dyextract/internal/retry"
	"github.com/famomatic/dyextract/internal/types"
)

const (
	DefaultShareBaseURL = "https://www.iesdouyin.com"
	DefaultTimeout      = 15 * time.Second

	defaultMobileUserAgent = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1"
)

// ResolverConfig contains externally tunable settings for share page fetches.
type ResolverConfig struct {
	BaseURL   string
	UserAgent string
	Headers   http.Header
	Policy    retry.Policy
	Timeout   time.Duration
}

// Resolver turns share text into VideoInfo.
type Resolver struct {
	client   *http.Client
	cache    Cache
	executor *retry.Executor
	config   ResolverConfig
}

// NewResolver returns a Resolver. A nil cache uses an in-memory TTL cache.
func NewResolver(client *http.Client, cache Cache, cfg ResolverConfig) *Resolver {
	if client == nil {
		client = http.DefaultClient
	}
	if cache == nil {
		cache = NewMemoryCache(DefaultCacheTTL)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultShareBaseURL
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultMobileUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Resolver{client: client, cache: cache, executor: retry.NewExecutor(), config: cfg}
}

// Resolve parses text, follows short links and fetches metadata.
func (r *Resolver) Resolve(ctx context.Context, text string) (types.VideoInfo, error) {
	id, err := r.ResolveID(ctx, text)
	if err != nil {
		return types.VideoInfo{}, err
	}
	return r.VideoInfo(ctx, id)
}

// ResolveID returns the aweme id named by text, following a v.douyin.com
// redirect when needed.
func (r *Resolver) ResolveID(ctx context.Context, text string) (string, error) {
	in, err := ParseInput(text)
	if err != nil {
		return "", err
	}
	if in.ID != "" {
		return in.ID, nil
	}
	return r.followShortLink(ctx, in.ShortURL)
}

func (r *Resolver) followShortLink(ctx context.Context, shortURL string) (string, error) {
	var id string
	out := r.executor.Execute(ctx, r.config.Policy, func(ctx context.Context) (*http.Response, error) {
		resp, err := r.get(ctx, shortURL)
		if err != nil {
			return nil, err
		}
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
		_ = resp.Body.Close()
		if resp.Request != nil {
			id = idFromURL(resp.Request.URL)
		}
		return resp, nil
	})
	if err := out.AsError(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: follow %s: %v", types.ErrLinkResolution, shortURL, err)
	}
	if id == "" {
		return "", fmt.Errorf("%w: %s did not redirect to a video", types.ErrLinkResolution, shortURL)
	}
	return id, nil
}

// VideoInfo fetches the mobile share page for id and reads its router data.
func (r *Resolver) VideoInfo(ctx context.Context, id string) (types.VideoInfo, error) {
	if info, ok := r.cache.Get(ctx, id); ok {
		return info, nil
	}

	pageURL := strings.TrimRight(r.config.BaseURL, "/") + "/share/video/" + id + "/"
	var page []byte
	out := r.executor.Execute(ctx, r.config.Policy, func(ctx context.Context) (*http.Response, error) {
		resp, err := r.get(ctx, pageURL)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		page, err = io.ReadAll(io.LimitReader(resp.Body, 8<<20))
		if err != nil {
			return nil, err
		}
		resp.Body = io.NopCloser(bytes.NewReader(nil))
		return resp, nil
	})
	if err := out.AsError(); err != nil {
		if ctx.Err() != nil {
			return types.VideoInfo{}, ctx.Err()
		}
		return types.VideoInfo{}, fmt.Errorf("%w: share page: %v", types.ErrLinkResolution, err)
	}

	raw, err := evalRouterData(page)
	if err != nil {
		return types.VideoInfo{}, fmt.Errorf("%w: %v", types.ErrLinkResolution, err)
	}
	item, err := firstItem(raw)
	if err != nil {
		return types.VideoInfo{}, fmt.Errorf("%w: %v", types.ErrLinkResolution, err)
	}
	info := types.VideoInfo{
		VideoID:         id,
		Title:           strings.TrimSpace(item.Desc),
		Author:          item.Author.Nickname,
		DurationSeconds: (item.Video.Duration + 500) / 1000,
		MediaURL:        item.mediaURL(),
		ShareURL:        "https://www.douyin.com/video/" + id,
	}
	if item.AwemeID != "" {
		info.VideoID = item.AwemeID
	}
	if len(item.Video.Cover.URLList) > 0 {
		info.CoverURL = item.Video.Cover.URLList[0]
	}
	if info.MediaURL == "" {
		return types.VideoInfo{}, fmt.Errorf("%w: no playable address for %s", types.ErrLinkResolution, id)
	}
	r.cache.Set(ctx, id, info)
	return info, nil
}

// MediaHeaders are the headers the CDN expects on media requests.
func (r *Resolver) MediaHeaders() http.Header {
	h := http.Header{}
	h.Set("User-Agent", r.config.UserAgent)
	h.Set("Referer", "https://www.douyin.com/")
	return h
}

func (r *Resolver) get(ctx context.Context, rawURL string) (*http.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		cancel()
		return nil, err
	}
	req.Header.Set("User-Agent", r.config.UserAgent)
	for k, values := range r.config.Headers {
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}
	resp, err := r.client.Do(req)
	if err != nil {
		cancel()
		return nil, err
	}
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}
