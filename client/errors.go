package client

import (
	"errors"

	"github.com/famomatic/dyextract/internal/types"
)

var (
	ErrLinkResolution      = types.ErrLinkResolution
	ErrDownload            = types.ErrDownload
	ErrAudioExtraction     = types.ErrAudioExtraction
	ErrTranscription       = types.ErrTranscription
	ErrLLM                 = types.ErrLLM
	ErrCommentsUnavailable = types.ErrCommentsUnavailable
	ErrRateLimited         = types.ErrRateLimited
	ErrCancelled           = types.ErrCancelled
	ErrNoStrategy          = types.ErrNoStrategy
)

// RateLimitError is returned (wrapped) when an upstream answered 429.
type RateLimitError = types.RateLimitError

// ErrorCategory is a stable, machine readable failure class.
type ErrorCategory string

const (
	ErrorCategoryCancelled           ErrorCategory = "cancelled"
	ErrorCategoryRateLimited         ErrorCategory = "rate_limited"
	ErrorCategoryLinkResolution      ErrorCategory = "link_resolution"
	ErrorCategoryDownload            ErrorCategory = "download"
	ErrorCategoryAudioExtraction     ErrorCategory = "audio_extraction"
	ErrorCategoryTranscription       ErrorCategory = "transcription"
	ErrorCategoryLLM                 ErrorCategory = "llm"
	ErrorCategoryCommentsUnavailable ErrorCategory = "comments_unavailable"
	ErrorCategoryNoStrategy          ErrorCategory = "no_strategy"
	ErrorCategoryUnknown             ErrorCategory = "unknown"
)

var categoryOrder = []struct {
	err error
	cat ErrorCategory
}{
	{ErrCancelled, ErrorCategoryCancelled},
	{ErrRateLimited, ErrorCategoryRateLimited},
	{ErrNoStrategy, ErrorCategoryNoStrategy},
	{ErrLinkResolution, ErrorCategoryLinkResolution},
	{ErrDownload, ErrorCategoryDownload},
	{ErrAudioExtraction, ErrorCategoryAudioExtraction},
	{ErrTranscription, ErrorCategoryTranscription},
	{ErrLLM, ErrorCategoryLLM},
	{ErrCommentsUnavailable, ErrorCategoryCommentsUnavailable},
}

// ClassifyError maps err onto an ErrorCategory. Cancellation and rate limits
// win over the stage that reported them.
func ClassifyError(err error) ErrorCategory {
	if err == nil {
		return ""
	}
	for _, c := range categoryOrder {
		if errors.Is(err, c.err) {
			return c.cat
		}
	}
	return ErrorCategoryUnknown
}

// FriendlyMessage returns text suitable for end users.
func FriendlyMessage(err error) string {
	var rl *types.RateLimitError
	if errors.As(err, &rl) {
		return rl.FriendlyMessage()
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
