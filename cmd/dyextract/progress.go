package main

import (
	"io"

	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"

	"github.com/famomatic/dyextract/internal/pipeline"
)

// progress renders pipeline events as a terminal progress bar.
type progress struct {
	bar    *progressbar.ProgressBar
	logger *zap.Logger
	stage  pipeline.Stage
}

func newProgress(w io.Writer, disabled bool, logger *zap.Logger) *progress {
	p := &progress{logger: logger}
	if disabled {
		return p
	}
	p.bar = progressbar.NewOptions(100,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("Starting..."),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowBytes(false),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
	return p
}

func (p *progress) Emit(ev pipeline.Event) {
	switch {
	case ev.Progress != nil:
		if p.bar == nil {
			if ev.Progress.Stage != p.stage {
				p.logger.Info(ev.Progress.Label, zap.String("run", ev.RunID))
			}
			p.stage = ev.Progress.Stage
			return
		}
		if ev.Progress.Stage != p.stage {
			p.bar.Describe("[cyan]" + ev.Progress.Label + "[reset]")
			p.stage = ev.Progress.Stage
		}
		_ = p.bar.Set(int(ev.Progress.Percentage))
	case ev.Partial != nil && ev.Partial.Key == pipeline.PartialWarn:
		p.logger.Warn(ev.Partial.Data, zap.String("run", ev.RunID))
	case ev.Error != nil:
		p.logger.Debug("stage failed",
			zap.String("step", string(ev.Error.Step)),
			zap.String("cause", ev.Error.Cause),
			zap.Bool("recoverable", ev.Error.Recoverable))
	}
}

func (p *progress) close() {
	if p.bar != nil {
		_ = p.bar.Clear()
	}
}
