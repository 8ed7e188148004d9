package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/famomatic/dyextract/client"
	"github.com/famomatic/dyextract/internal/cli"
	"github.com/famomatic/dyextract/internal/pipeline"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	opts, err := cli.ParseFlags(args, stderr)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}
	if opts.Help {
		return 0
	}
	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			fmt.Fprintf(stderr, "warning: %s: %v\n", opts.EnvFile, err)
		}
	}

	logger := newLogger(opts.Verbose, opts.ServeAddr != "")
	defer func() { _ = logger.Sync() }()

	cfg, err := cli.ToClientConfig(opts)
	if err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return 2
	}
	cfg.Logger = logger.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := client.New(ctx, cfg)
	if err != nil {
		fmt.Fprintf(stderr, "init: %v\n", err)
		return 1
	}
	defer c.Close()

	if opts.ServeAddr != "" {
		if err := serve(ctx, c, opts.ServeAddr, logger); err != nil {
			logger.Error("server stopped", zap.Error(err))
			return 1
		}
		return 0
	}

	if opts.EstimateOnly {
		est, name, err := c.EstimateTokens(opts.Input)
		if err != nil {
			fmt.Fprintf(stderr, "error [%s]: %v\n", client.ClassifyError(err), err)
			return 1
		}
		fmt.Fprintf(stdout, "strategy: %s\nprompt tokens: %d\ncompletion tokens: %d\ntotal: %d\n",
			name, est.PromptTokens, est.CompletionTokens, est.Total())
		return 0
	}

	bar := newProgress(stderr, opts.NoProgress, logger)
	art, err := execute(ctx, c, opts, bar)
	bar.close()
	if err != nil {
		if errors.Is(err, client.ErrCancelled) {
			fmt.Fprintln(stderr, "cancelled")
			return 130
		}
		fmt.Fprintf(stderr, "error [%s]: %s\n", client.ClassifyError(err), client.FriendlyMessage(err))
		logger.Debug("run failed", zap.Error(err))
		return 1
	}
	if err := writeResult(stdout, opts, art); err != nil {
		fmt.Fprintf(stderr, "write: %v\n", err)
		return 1
	}
	return 0
}

// execute runs the pipeline chosen by -mode.
func execute(ctx context.Context, c *client.Client, opts cli.Options, sink pipeline.Sink) (pipeline.Artifact, error) {
	switch opts.Mode {
	case cli.ModeVideo:
		return c.ExtractVideo(ctx, opts.Input, sink)
	case cli.ModeComments:
		return c.AnalyzeComments(ctx, opts.Input, sink)
	default:
		res, err := c.Run(ctx, opts.Input, sink)
		if err != nil {
			return nil, err
		}
		return res.Artifact, nil
	}
}

func writeResult(stdout io.Writer, opts cli.Options, art pipeline.Artifact) error {
	var out []byte
	if opts.PrintJSON {
		b, err := json.MarshalIndent(art, "", "  ")
		if err != nil {
			return err
		}
		out = append(b, '\n')
	} else {
		out = []byte(art.Markdown())
	}
	if opts.OutputPath == "" {
		_, err := stdout.Write(out)
		return err
	}
	return os.WriteFile(opts.OutputPath, out, 0o644)
}

func newLogger(verbose, serving bool) *zap.Logger {
	cfg := zap.NewDevelopmentConfig()
	cfg.DisableStacktrace = true
	switch {
	case verbose:
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case serving:
		cfg = zap.NewProductionConfig()
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	}
	l, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return l
}
