package downloader

import (
	"errors"
	"fmt"

	"github.com/famomatic/dyextract/internal/types"
)

var (
	errRangeNotSupported = errors.New("range not supported")
	errShortChunk        = errors.New("short chunk body")
)

// DownloadError reports the byte range that could not be fetched. End is -1
// for a single-shot download of the whole resource.
type DownloadError struct {
	Start int64
	End   int64
	Err   error
}

func (e *DownloadError) Error() string {
	if e.End < 0 {
		return fmt.Sprintf("download failed: %v", e.Err)
	}
	return fmt.Sprintf("download failed: bytes=%d-%d: %v", e.Start, e.End, e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }

func (e *DownloadError) Is(target error) bool { return target == types.ErrDownload }
