package downloader

import (
	"net/http"
	"slices"
)

const defaultMediaUserAgent = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1"

// Identity encoding keeps Range offsets aligned with the stored file.
var defaultMediaHeaders = http.Header{
	"User-Agent":      {defaultMediaUserAgent},
	"Accept":          {"*/*"},
	"Accept-Encoding": {"identity"},
}

// mediaHeaders layers configured over the defaults. Configured keys replace
// default ones rather than adding to them.
func mediaHeaders(configured http.Header) http.Header {
	out := make(http.Header, len(defaultMediaHeaders)+len(configured))
	for k, vals := range defaultMediaHeaders {
		out[k] = slices.Clone(vals)
	}
	for k, vals := range configured {
		if len(vals) == 0 {
			continue
		}
		out[http.CanonicalHeaderKey(k)] = slices.Clone(vals)
	}
	return out
}
