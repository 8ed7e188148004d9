package types

import "time"

// VideoInfo is resolved video metadata. It is created once per run after link
// resolution and treated as immutable afterwards.
type VideoInfo struct {
	VideoID               string `json:"videoId"`
	Title                 string `json:"title"`
	Author                string `json:"author"`
	DurationSeconds       int    `json:"durationSeconds"`
	CoverURL              string `json:"coverUrl,omitempty"`
	MediaURL              string `json:"mediaUrl"`
	ShareURL              string `json:"shareUrl,omitempty"`
	SupportsRangeRequests bool   `json:"supportsRangeRequests"`
	ContentLength         int64  `json:"contentLength,omitempty"`
}

// WithMedia returns a copy with probe results applied.
func (v VideoInfo) WithMedia(supportsRange bool, contentLength int64) VideoInfo {
	v.SupportsRangeRequests = supportsRange
	v.ContentLength = contentLength
	return v
}

// Comment is one top-level comment on a video.
type Comment struct {
	ID         string    `json:"id"`
	Text       string    `json:"text"`
	Author     string    `json:"author"`
	Likes      int64     `json:"likes"`
	ReplyCount int64     `json:"replyCount"`
	IPLabel    string    `json:"ipLabel,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}
