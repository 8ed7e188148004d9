package cli

import (
	"io"
	"testing"
)

func TestParseFlags(t *testing.T) {
	opts, err := ParseFlags([]string{
		"-o", "out.md", "-mode", "comments", "-chunk-size", "1048576", "-retries", "0",
		"复制打开抖音", "https://v.douyin.com/iRNBho6u/",
	}, io.Discard)
	if err != nil {
		t.Fatalf("ParseFlags() error = %v", err)
	}
	if opts.Input != "复制打开抖音 https://v.douyin.com/iRNBho6u/" {
		t.Fatalf("Input=%q", opts.Input)
	}
	if opts.OutputPath != "out.md" || opts.Mode != ModeComments || opts.ChunkSize != 1<<20 || opts.Retries != 0 {
		t.Fatalf("opts=%+v", opts)
	}
}

func TestParseFlagsRejectsMissingInputAndBadMode(t *testing.T) {
	if _, err := ParseFlags(nil, io.Discard); err == nil {
		t.Fatalf("ParseFlags() without input should fail")
	}
	if _, err := ParseFlags([]string{"-mode", "audio", "x"}, io.Discard); err == nil {
		t.Fatalf("ParseFlags() with bad mode should fail")
	}
	opts, err := ParseFlags([]string{"-serve", ":8080"}, io.Discard)
	if err != nil || opts.ServeAddr != ":8080" {
		t.Fatalf("ParseFlags(-serve) = %+v, %v", opts, err)
	}
}

func TestToClientConfigAppliesOverrides(t *testing.T) {
	cfg, err := ToClientConfig(Options{Input: "x", ChunkSize: 2 << 20, Concurrency: 8, Retries: 1, MaxComments: 50, ProxyURL: "http://127.0.0.1:3128"})
	if err != nil {
		t.Fatalf("ToClientConfig() error = %v", err)
	}
	s := cfg.Settings
	if s.Download.ChunkSize != 2<<20 || s.Download.Concurrency != 8 || s.Comments.MaxComments != 50 {
		t.Fatalf("settings=%+v", s)
	}
	if s.Retry.ASR.MaxRetries != 1 || s.Retry.Chunk.MaxRetries != 1 {
		t.Fatalf("retries not applied: %+v", s.Retry)
	}
	if cfg.ProxyURL != "http://127.0.0.1:3128" {
		t.Fatalf("proxy=%q", cfg.ProxyURL)
	}
}

func TestToClientConfigRejectsInvalidConcurrency(t *testing.T) {
	if _, err := ToClientConfig(Options{Input: "x", Concurrency: 64}); err == nil {
		t.Fatalf("ToClientConfig() should reject concurrency 64")
	}
}
