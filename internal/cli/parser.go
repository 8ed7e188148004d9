package cli

import (
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/famomatic/dyextract/client"
	"github.com/famomatic/dyextract/internal/config"
)

// Mode forces a pipeline instead of strategy selection.
type Mode string

const (
	ModeAuto     Mode = "auto"
	ModeVideo    Mode = "video"
	ModeComments Mode = "comments"
)

// Options holds all command-line options.
type Options struct {
	// Input is the share text, joined from the positional arguments.
	Input string

	Help bool

	// Configuration
	ConfigPath  string // -config
	EnvFile     string // -env-file
	ProxyURL    string // -proxy
	CookiesFile string // -cookies
	FFmpegPath  string // -ffmpeg-location

	// Pipeline
	Mode        Mode  // -mode
	ChunkSize   int64 // -chunk-size
	Concurrency int   // -concurrency
	Retries     int   // -retries
	MaxComments int   // -max-comments

	// Output
	OutputPath   string // -o, -output
	PrintJSON    bool   // -print-json
	EstimateOnly bool   // -estimate
	NoProgress   bool   // -no-progress
	Verbose      bool

	// ServeAddr switches to the SSE server, e.g. ":8080".
	ServeAddr string // -serve
}

// ParseFlags parses args (without the program name) into Options.
func ParseFlags(args []string, stderr io.Writer) (Options, error) {
	opts := Options{}
	fs := flag.NewFlagSet("dyextract", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var outputShort, outputLong, mode string

	fs.StringVar(&outputShort, "o", "", "Write the markdown (or JSON) result to this file")
	fs.StringVar(&outputLong, "output", "", "Write the markdown (or JSON) result to this file")

	fs.StringVar(&opts.ConfigPath, "config", "", "YAML configuration file")
	fs.StringVar(&opts.EnvFile, "env-file", ".env", "dotenv file loaded before reading DYEXTRACT_* variables")
	fs.StringVar(&opts.ProxyURL, "proxy", "", "Use the specified HTTP/HTTPS/SOCKS proxy")
	fs.StringVar(&opts.CookiesFile, "cookies", "", "Netscape formatted cookies file")
	fs.StringVar(&opts.FFmpegPath, "ffmpeg-location", "", "Path to ffmpeg binary")

	fs.StringVar(&mode, "mode", string(ModeAuto), "Pipeline: auto, video or comments")
	fs.Int64Var(&opts.ChunkSize, "chunk-size", 0, "Download chunk size in bytes (0 keeps config)")
	fs.IntVar(&opts.Concurrency, "concurrency", 0, "Concurrent chunk downloads (0 keeps config)")
	fs.IntVar(&opts.Retries, "retries", -1, "Retry count override for every call site (-1 keeps config)")
	fs.IntVar(&opts.MaxComments, "max-comments", 0, "Comment collection bound (0 keeps config)")

	fs.BoolVar(&opts.PrintJSON, "print-json", false, "Print the full result as JSON instead of markdown")
	fs.BoolVar(&opts.EstimateOnly, "estimate", false, "Print the selected strategy and token estimate, then exit")
	fs.BoolVar(&opts.NoProgress, "no-progress", false, "Disable the progress bar")
	fs.BoolVar(&opts.Verbose, "verbose", false, "Print debug logging")
	fs.StringVar(&opts.ServeAddr, "serve", "", "Serve GET /extract?input=... as server-sent events on this address")

	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: dyextract [OPTIONS] SHARE_TEXT\n       dyextract -serve :8080\n\n")
		fmt.Fprintln(fs.Output(), "Options:")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			opts.Help = true
			return opts, nil
		}
		return opts, err
	}

	opts.OutputPath = pickValue(outputShort, outputLong, "")
	opts.Input = strings.TrimSpace(strings.Join(fs.Args(), " "))
	switch Mode(mode) {
	case ModeAuto, ModeVideo, ModeComments:
		opts.Mode = Mode(mode)
	default:
		return opts, fmt.Errorf("unknown -mode %q", mode)
	}
	if opts.Input == "" && opts.ServeAddr == "" {
		return opts, fmt.Errorf("missing share text")
	}
	return opts, nil
}

func pickValue(v1, v2, def string) string {
	if v1 != def {
		return v1
	}
	if v2 != def {
		return v2
	}
	return def
}

// Settings loads the configuration file and environment and applies flag
// overrides on top.
func Settings(opts Options) (config.Config, error) {
	s, err := config.Load(opts.ConfigPath)
	if err != nil {
		return s, err
	}
	if opts.ChunkSize > 0 {
		s.Download.ChunkSize = opts.ChunkSize
	}
	if opts.Concurrency > 0 {
		s.Download.Concurrency = opts.Concurrency
	}
	if opts.MaxComments > 0 {
		s.Comments.MaxComments = opts.MaxComments
	}
	if opts.Retries >= 0 {
		for _, p := range []*config.RetryPolicy{&s.Retry.Resolve, &s.Retry.Probe, &s.Retry.Chunk, &s.Retry.ASR, &s.Retry.LLM, &s.Retry.Comments} {
			p.MaxRetries = opts.Retries
		}
	}
	if opts.FFmpegPath != "" {
		s.FFmpegPath = opts.FFmpegPath
	}
	if opts.CookiesFile != "" {
		s.CookiesFile = opts.CookiesFile
	}
	return s, s.Validate()
}

// ToClientConfig converts Options to client.Config. The caller sets Logger.
func ToClientConfig(opts Options) (client.Config, error) {
	s, err := Settings(opts)
	if err != nil {
		return client.Config{}, err
	}
	return client.Config{
		Settings: s,
		ProxyURL: opts.ProxyURL,
	}, nil
}
