package downloader

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
)

// Probe discovers range support and size with a HEAD request, falling back to
// a one-byte ranged GET. Any failure yields a zero MediaInfo, which plans a
// single-shot download.
func (d *Downloader) Probe(ctx context.Context, rawURL string) MediaInfo {
	if info, ok := d.probeHead(ctx, rawURL); ok {
		return info
	}
	if info, ok := d.probeRange(ctx, rawURL); ok {
		return info
	}
	return MediaInfo{}
}

func (d *Downloader) probeHead(ctx context.Context, rawURL string) (MediaInfo, bool) {
	out := d.executor.Execute(ctx, d.config.ProbePolicy, func(ctx context.Context) (*http.Response, error) {
		ctx, cancel := context.WithTimeout(ctx, d.config.ProbeTimeout)
		defer cancel()
		req, err := d.newRequest(ctx, http.MethodHead, rawURL)
		if err != nil {
			return nil, err
		}
		resp, err := d.client.Do(req)
		if err != nil {
			return nil, err
		}
		_ = resp.Body.Close()
		return resp, nil
	})
	if out.AsError() != nil {
		return MediaInfo{}, false
	}
	resp := out.Response
	return MediaInfo{
		SupportsRangeRequests: strings.EqualFold(strings.TrimSpace(resp.Header.Get("Accept-Ranges")), "bytes"),
		ContentLength:         max(resp.ContentLength, 0),
	}, true
}

func (d *Downloader) probeRange(ctx context.Context, rawURL string) (MediaInfo, bool) {
	out := d.executor.Execute(ctx, d.config.ProbePolicy, func(ctx context.Context) (*http.Response, error) {
		ctx, cancel := context.WithTimeout(ctx, d.config.ProbeTimeout)
		defer cancel()
		req, err := d.newRequest(ctx, http.MethodGet, rawURL)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Range", "bytes=0-0")
		resp, err := d.client.Do(req)
		if err != nil {
			return nil, err
		}
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<10))
		_ = resp.Body.Close()
		return resp, nil
	})
	if out.AsError() != nil {
		return MediaInfo{}, false
	}
	resp := out.Response
	if resp.StatusCode != http.StatusPartialContent {
		return MediaInfo{ContentLength: max(resp.ContentLength, 0)}, true
	}
	total := parseContentRangeTotal(resp.Header.Get("Content-Range"))
	return MediaInfo{SupportsRangeRequests: total > 0, ContentLength: total}, true
}

// parseContentRangeTotal reads the size from "bytes 0-0/12345".
func parseContentRangeTotal(raw string) int64 {
	cr := strings.TrimSpace(raw)
	slash := strings.LastIndex(cr, "/")
	if slash < 0 || slash == len(cr)-1 {
		return 0
	}
	total, err := strconv.ParseInt(cr[slash+1:], 10, 64)
	if err != nil || total <= 0 {
		return 0
	}
	return total
}

// contentRangeStart reads the first byte from "bytes 4096-8191/20971520".
func contentRangeStart(raw string) (int64, bool) {
	cr := strings.TrimSpace(raw)
	unit, rest, ok := strings.Cut(cr, " ")
	if !ok || !strings.EqualFold(unit, "bytes") {
		return 0, false
	}
	first, _, ok := strings.Cut(rest, "-")
	if !ok {
		return 0, false
	}
	start, err := strconv.ParseInt(strings.TrimSpace(first), 10, 64)
	if err != nil || start < 0 {
		return 0, false
	}
	return start, true
}

func (d *Downloader) newRequest(ctx context.Context, method, rawURL string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header = d.config.Headers.Clone()
	return req, nil
}
