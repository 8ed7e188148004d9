package asr

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/famomatic/dyextract/internal/types"
)

// ProviderError is a failure reported by the ASR provider, either as an HTTP
// status or as a non-zero code inside a 200 body.
type ProviderError struct {
	HTTPStatus int
	Code       string
	Message    string
}

func (e *ProviderError) Error() string {
	msg := "transcription failed"
	if e.HTTPStatus != 0 {
		msg += fmt.Sprintf(" (status %d)", e.HTTPStatus)
	}
	if e.Code != "" {
		msg += ": " + e.Code
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

// Is maps provider codes onto the shared taxonomy. Quota and rate codes
// also match ErrRateLimited.
func (e *ProviderError) Is(target error) bool {
	switch target {
	case types.ErrTranscription:
		return true
	case types.ErrRateLimited:
		return e.HTTPStatus == http.StatusTooManyRequests || isRateCode(e.Code)
	}
	return false
}

func isRateCode(code string) bool {
	switch strings.ToLower(code) {
	case "429", "rate_limit_exceeded", "insufficient_quota", "throttled":
		return true
	}
	return false
}

// code accepts a JSON number or string.
type code string

func (c *code) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*c = ""
		return nil
	}
	if unq, err := strconv.Unquote(s); err == nil {
		*c = code(unq)
		return nil
	}
	*c = code(s)
	return nil
}

type response struct {
	Text    string `json:"text"`
	Code    code   `json:"code"`
	Message string `json:"message"`
	Msg     string `json:"msg"`
	Data    *struct {
		Text string `json:"text"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    code   `json:"code"`
	} `json:"error"`
}

func (r response) failure() *ProviderError {
	if r.Error != nil {
		c := string(r.Error.Code)
		if c == "" {
			c = r.Error.Type
		}
		return &ProviderError{Code: c, Message: r.Error.Message}
	}
	if r.Code != "" && r.Code != "0" && r.Code != "200" {
		msg := r.Message
		if msg == "" {
			msg = r.Msg
		}
		return &ProviderError{Code: string(r.Code), Message: msg}
	}
	return nil
}

func decodeTranscript(payload []byte) (string, error) {
	var r response
	if err := json.Unmarshal(payload, &r); err != nil {
		// plain-text response_format
		text := strings.TrimSpace(string(payload))
		if text == "" {
			return "", &ProviderError{Code: "empty_response"}
		}
		return text, nil
	}
	if perr := r.failure(); perr != nil {
		return "", perr
	}
	text := r.Text
	if text == "" && r.Data != nil {
		text = r.Data.Text
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", &ProviderError{Code: "empty_transcript", Message: "provider returned no text"}
	}
	return text, nil
}

func providerErrorFrom(payload []byte) *ProviderError {
	var r response
	if err := json.Unmarshal(payload, &r); err == nil {
		if perr := r.failure(); perr != nil {
			return perr
		}
	}
	msg := strings.TrimSpace(string(payload))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return &ProviderError{Message: msg}
}
