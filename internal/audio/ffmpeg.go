// Package audio converts downloaded video into mono 16kHz audio for ASR.
package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/famomatic/dyextract/internal/types"
)

// Extractor turns container bytes into ASR-ready audio bytes.
type Extractor interface {
	Extract(ctx context.Context, video []byte) ([]byte, error)
}

type commandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) (commandResult, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) (commandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := commandResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		res.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
		}
		return res, err
	}
	return res, nil
}

// ExtractionError carries the tail of ffmpeg's stderr.
type ExtractionError struct {
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ExtractionError) Error() string {
	msg := fmt.Sprintf("audio extraction failed (exit %d)", e.ExitCode)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ExtractionError) Unwrap() error { return e.Err }

func (e *ExtractionError) Is(target error) bool { return target == types.ErrAudioExtraction }

// FFmpeg implements Extractor with the ffmpeg command line tool.
type FFmpeg struct {
	Path    string
	TempDir string

	runner commandRunner
}

// NewFFmpeg returns an FFmpeg extractor.
// If path is empty, it looks for "ffmpeg" in PATH.
func NewFFmpeg(path string) *FFmpeg {
	if path == "" {
		path = "ffmpeg"
	}
	return &FFmpeg{Path: path, runner: execRunner{}}
}

// Available checks if ffmpeg is executable.
func (f *FFmpeg) Available() bool {
	_, err := exec.LookPath(f.Path)
	return err == nil
}

// Extract writes video to a scratch directory, converts it to 16-bit PCM WAV
// and returns the WAV bytes. The scratch directory is always removed.
func (f *FFmpeg) Extract(ctx context.Context, video []byte) ([]byte, error) {
	if len(video) == 0 {
		return nil, &ExtractionError{ExitCode: -1, Err: errors.New("empty input")}
	}
	dir, err := os.MkdirTemp(f.TempDir, "dyextract-audio-*")
	if err != nil {
		return nil, &ExtractionError{ExitCode: -1, Err: err}
	}
	defer os.RemoveAll(dir)

	in := filepath.Join(dir, "input.mp4")
	out := filepath.Join(dir, "audio.wav")
	if err := os.WriteFile(in, video, 0o600); err != nil {
		return nil, &ExtractionError{ExitCode: -1, Err: err}
	}

	runner := f.runner
	if runner == nil {
		runner = execRunner{}
	}
	res, err := runner.Run(ctx, f.Path, buildArgs(in, out)...)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &ExtractionError{ExitCode: res.ExitCode, Stderr: tail(res.Stderr, 400), Err: err}
	}

	wav, err := os.ReadFile(out)
	if err != nil {
		return nil, &ExtractionError{ExitCode: res.ExitCode, Stderr: tail(res.Stderr, 400), Err: fmt.Errorf("output missing: %w", err)}
	}
	return wav, nil
}

// buildArgs produces mono 16k PCM WAV output.
func buildArgs(inputPath, outPath string) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", inputPath,
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		outPath,
	}
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
