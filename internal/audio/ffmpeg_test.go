package audio

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/famomatic/dyextract/internal/types"
)

type fakeRunner struct {
	run func(ctx context.Context, name string, args ...string) (commandResult, error)
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) (commandResult, error) {
	if f.run == nil {
		return commandResult{}, nil
	}
	return f.run(ctx, name, args...)
}

func TestExtractRunsFFmpegAndReadsOutput(t *testing.T) {
	tmp := t.TempDir()
	var gotArgs []string
	f := &FFmpeg{Path: "ffmpeg-test", TempDir: tmp, runner: &fakeRunner{
		run: func(ctx context.Context, name string, args ...string) (commandResult, error) {
			if name != "ffmpeg-test" {
				t.Fatalf("name=%q", name)
			}
			gotArgs = args
			in, err := os.ReadFile(args[4])
			if err != nil || string(in) != "video-bytes" {
				t.Fatalf("input=%q err=%v", in, err)
			}
			return commandResult{}, os.WriteFile(args[len(args)-1], []byte("RIFFwav"), 0o600)
		},
	}}

	wav, err := f.Extract(context.Background(), []byte("video-bytes"))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if !bytes.Equal(wav, []byte("RIFFwav")) {
		t.Fatalf("wav=%q", wav)
	}
	if len(gotArgs) == 0 || gotArgs[len(gotArgs)-3] != "pcm_s16le" {
		t.Fatalf("args=%v", gotArgs)
	}
	entries, _ := os.ReadDir(tmp)
	if len(entries) != 0 {
		t.Fatalf("scratch dir not removed: %v", entries)
	}
}

func TestExtractFailureIsTyped(t *testing.T) {
	f := &FFmpeg{Path: "ffmpeg", TempDir: t.TempDir(), runner: &fakeRunner{
		run: func(ctx context.Context, name string, args ...string) (commandResult, error) {
			return commandResult{Stderr: "Invalid data found when processing input", ExitCode: 1}, errors.New("exit status 1")
		},
	}}

	_, err := f.Extract(context.Background(), []byte("x"))
	if !errors.Is(err, types.ErrAudioExtraction) {
		t.Fatalf("error = %v, want ErrAudioExtraction", err)
	}
	var ext *ExtractionError
	if !errors.As(err, &ext) || ext.ExitCode != 1 || ext.Stderr == "" {
		t.Fatalf("extraction error = %#v", ext)
	}
}

func TestExtractMissingOutput(t *testing.T) {
	f := &FFmpeg{Path: "ffmpeg", TempDir: t.TempDir(), runner: &fakeRunner{}}
	if _, err := f.Extract(context.Background(), []byte("x")); !errors.Is(err, types.ErrAudioExtraction) {
		t.Fatalf("error = %v", err)
	}
}

func TestExtractEmptyInput(t *testing.T) {
	if _, err := NewFFmpeg("").Extract(context.Background(), nil); !errors.Is(err, types.ErrAudioExtraction) {
		t.Fatalf("error = %v", err)
	}
}

func TestBuildArgs(t *testing.T) {
	args := buildArgs(filepath.Join("a", "in.mp4"), "out.wav")
	want := []string{"-hide_banner", "-nostdin", "-y", "-i", filepath.Join("a", "in.mp4"), "-vn", "-ac", "1", "-ar", "16000", "-c:a", "pcm_s16le", "out.wav"}
	if len(args) != len(want) {
		t.Fatalf("args=%v", args)
	}
	for i := range want {
		if args[i] != want[i] {
			t.Fatalf("args[%d]=%q, want %q", i, args[i], want[i])
		}
	}
}
