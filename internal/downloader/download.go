package downloader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// Download fetches rawURL according to the plan derived from info. The
// returned buffer is complete or absent; partial data is never returned.
func (d *Downloader) Download(ctx context.Context, rawURL string, info MediaInfo, opts Options) (*Result, error) {
	opts = normalizeOptions(opts)
	plan := NewPlan(info, opts)
	if plan.Strategy == StrategyChunked {
		data, err := d.downloadChunked(ctx, rawURL, info.ContentLength, plan, opts.Progress)
		switch {
		case err == nil:
			return &Result{Data: data, Strategy: StrategyChunked, ChunkCount: plan.ChunkCount}, nil
		case errors.Is(err, errRangeNotSupported) && ctx.Err() == nil:
			// server advertised ranges but answered 200; refetch whole body
		default:
			return nil, err
		}
	}

	data, err := d.downloadSingle(ctx, rawURL, info.ContentLength, opts.Progress)
	if err != nil {
		return nil, err
	}
	return &Result{Data: data, Strategy: StrategySingle, ChunkCount: 1}, nil
}

func (d *Downloader) downloadSingle(ctx context.Context, rawURL string, expected int64, progress ProgressReporter) ([]byte, error) {
	var body []byte
	out := d.executor.Execute(ctx, d.config.ChunkPolicy, func(ctx context.Context) (*http.Response, error) {
		ctx, cancel := context.WithTimeout(ctx, d.config.SingleTimeout)
		defer cancel()
		req, err := d.newRequest(ctx, http.MethodGet, rawURL)
		if err != nil {
			return nil, err
		}
		resp, err := d.client.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusOK {
			drainBody(resp)
			return resp, nil
		}
		defer resp.Body.Close()
		total := resp.ContentLength
		if total <= 0 {
			total = expected
		}
		var buf bytes.Buffer
		if total > 0 {
			buf.Grow(int(total))
		}
		counter := &countingWriter{progress: progress, total: total}
		if _, err := io.Copy(io.MultiWriter(&buf, counter), resp.Body); err != nil {
			return nil, err
		}
		body = buf.Bytes()
		resp.Body = http.NoBody
		return resp, nil
	})
	if err := out.AsError(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &DownloadError{Start: 0, End: -1, Err: err}
	}
	return body, nil
}

func (d *Downloader) downloadChunked(ctx context.Context, rawURL string, total int64, plan Plan, progress ProgressReporter) ([]byte, error) {
	buf := make([]byte, total)
	chunks := buildChunks(total, plan.ChunkSize)
	var written atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(plan.Concurrency)
	for _, chunk := range chunks {
		// cancellation is observed between chunks, never inside one
		if gctx.Err() != nil {
			break
		}
		chunk := chunk
		g.Go(func() error {
			if err := d.fetchChunk(gctx, rawURL, chunk, buf[chunk.start:chunk.end+1]); err != nil {
				if errors.Is(err, errRangeNotSupported) {
					return err
				}
				return &DownloadError{Start: chunk.start, End: chunk.end, Err: err}
			}
			n := written.Add(chunk.end - chunk.start + 1)
			if progress != nil {
				progress.OnProgress(n, total)
			}
			return nil
		})
	}

	err := g.Wait()
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	return buf, nil
}

// fetchChunk fills dst (already sliced at the chunk's offset) from one ranged
// GET, so assembly order never depends on completion order.
func (d *Downloader) fetchChunk(ctx context.Context, rawURL string, chunk byteRange, dst []byte) error {
	var misplaced bool
	out := d.executor.Execute(ctx, d.config.ChunkPolicy, func(ctx context.Context) (*http.Response, error) {
		ctx, cancel := context.WithTimeout(ctx, d.config.ChunkTimeout)
		defer cancel()
		req, err := d.newRequest(ctx, http.MethodGet, rawURL)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", chunk.start, chunk.end))
		resp, err := d.client.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusPartialContent {
			drainBody(resp)
			return resp, nil
		}
		defer resp.Body.Close()
		// a window other than the one asked for would land at the wrong offset
		if start, ok := contentRangeStart(resp.Header.Get("Content-Range")); !ok || start != chunk.start {
			misplaced = true
			resp.Body = http.NoBody
			return resp, nil
		}
		if _, err := io.ReadFull(resp.Body, dst); err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
				return nil, errShortChunk
			}
			return nil, err
		}
		resp.Body = http.NoBody
		return resp, nil
	})
	if err := out.AsError(); err != nil {
		return err
	}
	if misplaced || out.Response.StatusCode == http.StatusOK {
		return errRangeNotSupported
	}
	return nil
}

// drainBody empties and closes resp's body while the attempt's timeout is
// still live; callers of the executor only read status and headers.
func drainBody(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
	resp.Body = http.NoBody
}

type countingWriter struct {
	progress ProgressReporter
	total    int64
	written  int64
}

func (w *countingWriter) Write(p []byte) (int, error) {
	w.written += int64(len(p))
	if w.progress != nil {
		w.progress.OnProgress(w.written, w.total)
	}
	return len(p), nil
}
