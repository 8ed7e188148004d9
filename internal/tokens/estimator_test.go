package tokens

import (
	"strings"
	"testing"
)

func TestEstimateIsPureAndBounded(t *testing.T) {
	e := New(Config{})
	cfg := e.Config()
	inputs := []string{
		"",
		"hi",
		"大家好，今天我们来聊一聊抖音视频的文案提取。",
		strings.Repeat("Go is fun. ", 500),
		strings.Repeat("测试", 4000) + strings.Repeat("mixed text ", 300),
	}
	for _, in := range inputs {
		a, b := e.Estimate(in), e.Estimate(in)
		if a != b {
			t.Fatalf("Estimate(%q) not deterministic: %+v vs %+v", in, a, b)
		}
		chars := len([]rune(in))
		upper := max(cfg.MinTokens, int(float64(chars)*cfg.MaxTokensPerChar))
		for _, v := range []int{a.PromptTokens, a.CompletionTokens} {
			if v < cfg.MinTokens || v > upper || v > cfg.UpperBound {
				t.Fatalf("Estimate(%d chars) = %+v, bounds [%d, %d]", chars, a, cfg.MinTokens, upper)
			}
		}
	}
}

func TestEstimateCountsCJKDenser(t *testing.T) {
	e := New(Config{MinTokens: 1})
	zh := e.Estimate(strings.Repeat("字", 400))
	en := e.Estimate(strings.Repeat("a", 400))
	if zh.PromptTokens <= en.PromptTokens {
		t.Fatalf("cjk=%d latin=%d", zh.PromptTokens, en.PromptTokens)
	}
	// 400 han at 1 char/token, doubled
	if zh.PromptTokens != 800 {
		t.Fatalf("cjk prompt=%d, want 800", zh.PromptTokens)
	}
}

func TestEstimateUpperBound(t *testing.T) {
	e := New(Config{MinTokens: 10, UpperBound: 500})
	got := e.Estimate(strings.Repeat("字", 10000))
	if got.PromptTokens != 500 || got.CompletionTokens != 500 {
		t.Fatalf("Estimate() = %+v, want capped at 500", got)
	}
}

func TestEstimateLength(t *testing.T) {
	e := New(Config{MinTokens: 1})
	if got := e.EstimateLength(100); got.PromptTokens != 200 {
		t.Fatalf("EstimateLength(100) = %+v", got)
	}
	if got := e.EstimateLength(-5); got.PromptTokens != 1 {
		t.Fatalf("EstimateLength(-5) = %+v", got)
	}
}
