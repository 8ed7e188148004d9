package client

import (
	"net/http"

	"github.com/redis/go-redis/v9"

	"github.com/famomatic/dyextract/internal/asr"
	"github.com/famomatic/dyextract/internal/audio"
	"github.com/famomatic/dyextract/internal/config"
	"github.com/famomatic/dyextract/internal/llm"
)

// Config holds configuration for the extraction client.
type Config struct {
	// Settings are the loaded pipeline settings. The zero value is replaced
	// by config.Default().
	Settings config.Config

	// HTTPClient is used for every upstream request.
	// If nil, a client honoring ProxyURL is built.
	HTTPClient *http.Client

	// ProxyURL is the optional proxy URL to use for requests.
	// If HTTPClient is provided, this field is ignored.
	ProxyURL string

	// CookieJar is attached to a copy of HTTPClient. When nil and
	// Settings.CookiesFile is set, a jar is loaded from that file.
	CookieJar http.CookieJar

	// Logger receives retry notices. Defaults to a no-op logger.
	Logger Logger

	// Redis overrides the client built from Settings.Resolve.RedisAddr.
	Redis *redis.Client

	// Model, Transcriber and Extractor replace the default Gemini, HTTP ASR
	// and ffmpeg implementations.
	Model       llm.Model
	Transcriber asr.Transcriber
	Extractor   audio.Extractor
}
