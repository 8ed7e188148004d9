// Package douyin resolves Douyin share text into video metadata and pages
// through a video's comments.
package douyin

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/famomatic/dyextract/internal/types"
)

// Input is what share text carries: a direct id, or a short link that still
// needs a redirect to reveal the id.
type Input struct {
	ID       string
	ShortURL string
}

var (
	awemeIDPattern   = regexp.MustCompile(`^\d{19}$`)
	bareIDPattern    = regexp.MustCompile(`(?:^|\D)(\d{19})(?:\D|$)`)
	shortLinkPattern = regexp.MustCompile(`https?://v\.douyin\.com/[0-9A-Za-z_-]+/?`)
	videoPathPattern = regexp.MustCompile(`(?:douyin\.com/(?:share/)?video|iesdouyin\.com/share/video|douyin\.com/note)/(\d{15,20})`)
	sharePathPattern = regexp.MustCompile(`^/(?:share/)?video/(\d{15,20})`)
	modalIDPattern   = regexp.MustCompile(`douyin\.com/[^\s]*[?&]modal_id=(\d{15,20})`)
	commentsKeywords   = []string{"评论", "comment", "留言", "弹幕"}
	transcriptKeywords = []string{"文案", "提取", "转录", "字幕", "transcript"}
)

// ParseInput finds the first recognizable link or aweme id in pasted share
// text such as "7.43 复制打开抖音，看看【...】 https://v.douyin.com/iRNBho6u/".
func ParseInput(text string) (Input, error) {
	s := strings.TrimSpace(text)
	if s == "" {
		return Input{}, types.ErrLinkResolution
	}
	if awemeIDPattern.MatchString(s) {
		return Input{ID: s}, nil
	}
	if m := videoPathPattern.FindStringSubmatch(s); len(m) == 2 {
		return Input{ID: m[1]}, nil
	}
	if m := modalIDPattern.FindStringSubmatch(s); len(m) == 2 {
		return Input{ID: m[1]}, nil
	}
	if m := shortLinkPattern.FindString(s); m != "" {
		return Input{ShortURL: m}, nil
	}
	if m := bareIDPattern.FindStringSubmatch(s); len(m) == 2 {
		return Input{ID: m[1]}, nil
	}
	return Input{}, types.ErrLinkResolution
}

// HasShareLink reports whether text carries anything ParseInput accepts.
func HasShareLink(text string) bool {
	_, err := ParseInput(text)
	return err == nil
}

// AsksForComments reports whether text names comments alongside a link.
func AsksForComments(text string) bool {
	return HasShareLink(text) && mentions(text, commentsKeywords)
}

// WantsTranscript reports whether text asks for the video's copy or
// transcript alongside a link.
func WantsTranscript(text string) bool {
	return HasShareLink(text) && mentions(text, transcriptKeywords)
}

func mentions(text string, keywords []string) bool {
	lower := strings.ToLower(text)
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// idFromURL reads an aweme id from a resolved page URL.
func idFromURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	if id := u.Query().Get("modal_id"); awemeIDPattern.MatchString(id) {
		return id
	}
	if m := sharePathPattern.FindStringSubmatch(u.Path); len(m) == 2 {
		return m[1]
	}
	return ""
}
