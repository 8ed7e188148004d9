// Package tokens estimates LLM token usage for quota reservation.
package tokens

import (
	"math"
	"unicode"
	"unicode/utf8"
)

// Estimate is a conservative prompt/completion token count.
type Estimate struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
}

// Total returns prompt plus completion tokens.
func (e Estimate) Total() int { return e.PromptTokens + e.CompletionTokens }

// Config holds the heuristic ratios. Zero fields take DefaultConfig values.
type Config struct {
	CJKCharsPerToken   float64 `yaml:"cjk_chars_per_token"`
	LatinCharsPerToken float64 `yaml:"latin_chars_per_token"`
	SafetyMultiplier   float64 `yaml:"safety_multiplier"`
	// CompletionRatio sizes the expected output relative to the prompt.
	CompletionRatio  float64 `yaml:"completion_ratio"`
	MinTokens        int     `yaml:"min_tokens"`
	MaxTokensPerChar float64 `yaml:"max_tokens_per_char"`
	// UpperBound caps any single estimate.
	UpperBound int `yaml:"upper_bound"`
}

func DefaultConfig() Config {
	return Config{
		CJKCharsPerToken:   1.0,
		LatinCharsPerToken: 4.0,
		SafetyMultiplier:   2.0,
		CompletionRatio:    1.0,
		MinTokens:          256,
		MaxTokensPerChar:   4.0,
		UpperBound:         1_000_000,
	}
}

// Estimator is safe for concurrent use; it holds no mutable state.
type Estimator struct {
	config Config
}

func New(cfg Config) Estimator {
	def := DefaultConfig()
	if cfg.CJKCharsPerToken <= 0 {
		cfg.CJKCharsPerToken = def.CJKCharsPerToken
	}
	if cfg.LatinCharsPerToken <= 0 {
		cfg.LatinCharsPerToken = def.LatinCharsPerToken
	}
	if cfg.SafetyMultiplier < 1 {
		cfg.SafetyMultiplier = def.SafetyMultiplier
	}
	if cfg.CompletionRatio <= 0 {
		cfg.CompletionRatio = def.CompletionRatio
	}
	if cfg.MinTokens <= 0 {
		cfg.MinTokens = def.MinTokens
	}
	if cfg.MaxTokensPerChar <= 0 {
		cfg.MaxTokensPerChar = def.MaxTokensPerChar
	}
	if cfg.UpperBound <= 0 {
		cfg.UpperBound = def.UpperBound
	}
	if cfg.UpperBound < cfg.MinTokens {
		cfg.UpperBound = cfg.MinTokens
	}
	return Estimator{config: cfg}
}

// Config returns the normalized configuration.
func (e Estimator) Config() Config { return e.config }

// Estimate counts CJK and other runes separately. Both fields land in
// [MinTokens, max(MinTokens, chars*MaxTokensPerChar)] and never exceed UpperBound.
func (e Estimator) Estimate(text string) Estimate {
	var cjk, other int
	for _, r := range text {
		if isCJK(r) {
			cjk++
		} else if !unicode.IsSpace(r) {
			other++
		}
	}
	raw := float64(cjk)/e.config.CJKCharsPerToken + float64(other)/e.config.LatinCharsPerToken
	return e.finish(raw, utf8.RuneCountInString(text))
}

// EstimateLength estimates from a character count alone, assuming the denser
// of the two ratios.
func (e Estimator) EstimateLength(chars int) Estimate {
	if chars < 0 {
		chars = 0
	}
	perToken := math.Min(e.config.CJKCharsPerToken, e.config.LatinCharsPerToken)
	return e.finish(float64(chars)/perToken, chars)
}

func (e Estimator) finish(raw float64, chars int) Estimate {
	prompt := math.Ceil(raw * e.config.SafetyMultiplier)
	completion := math.Ceil(prompt * e.config.CompletionRatio)
	return Estimate{
		PromptTokens:     e.clamp(prompt, chars),
		CompletionTokens: e.clamp(completion, chars),
	}
}

func (e Estimator) clamp(v float64, chars int) int {
	ceiling := math.Floor(float64(chars) * e.config.MaxTokensPerChar)
	ceiling = math.Min(ceiling, float64(e.config.UpperBound))
	ceiling = math.Max(ceiling, float64(e.config.MinTokens))
	v = math.Max(v, float64(e.config.MinTokens))
	v = math.Min(v, ceiling)
	return int(v)
}

func isCJK(r rune) bool {
	return unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Hangul) ||
		(r >= 0x3000 && r <= 0x303F) || (r >= 0xFF00 && r <= 0xFFEF)
}
