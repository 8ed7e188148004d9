package types

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrLinkResolution indicates the input carries no recognizable share link or
	// the upstream resolution failed after retries.
	ErrLinkResolution = errors.New("link resolution failed")

	// ErrDownload indicates media download failed (a chunk exhausted its retries).
	ErrDownload = errors.New("download failed")

	// ErrAudioExtraction indicates the audio conversion tool failed.
	ErrAudioExtraction = errors.New("audio extraction failed")

	// ErrTranscription indicates the ASR call failed or returned an error code.
	ErrTranscription = errors.New("transcription failed")

	// ErrLLM indicates the formatting/analysis model failed mid-stream.
	ErrLLM = errors.New("llm request failed")

	// ErrCommentsUnavailable indicates the comment source returned nothing usable.
	ErrCommentsUnavailable = errors.New("comments unavailable")

	// ErrRateLimited indicates the upstream explicitly signalled HTTP 429.
	ErrRateLimited = errors.New("rate limited")

	// ErrCancelled marks a cooperative cancellation. It is a terminal outcome,
	// not a failure.
	ErrCancelled = errors.New("run cancelled")

	// ErrNoStrategy indicates no strategy detector matched the input.
	ErrNoStrategy = errors.New("no matching strategy")
)

// RateLimitError carries the upstream's retry hint for a 429 response.
type RateLimitError struct {
	StatusCode int
	RetryAfter time.Duration
	Service    string
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s rate limited (status %d): retry after %v", e.Service, e.StatusCode, e.RetryAfter)
	}
	return fmt.Sprintf("%s rate limited (status %d)", e.Service, e.StatusCode)
}

func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// FriendlyMessage is the user-facing text for a rate limit.
func (e *RateLimitError) FriendlyMessage() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("The %s service is busy. Please wait about %d seconds and try again.", e.Service, int(e.RetryAfter.Round(time.Second)/time.Second))
	}
	return fmt.Sprintf("The %s service is busy. Please wait a moment and try again.", e.Service)
}
