package strategy

import (
	"github.com/famomatic/dyextract/internal/douyin"
	"github.com/famomatic/dyextract/internal/pipeline"
	"github.com/famomatic/dyextract/internal/tokens"
)

const (
	NameTranscript = "douyin-transcript"
	NameComments   = "douyin-comments"
	NameVideo      = "douyin-video"

	// expected characters flowing through the model for one run
	videoTranscriptChars = 6000
	commentChars         = 40
)

// Douyin builds the default table. An explicit ask for the video's copy wins
// over a mention of comments; a bare link falls through to video extraction.
func Douyin(video, comments pipeline.Runner, est tokens.Estimator, maxComments int) Table {
	if maxComments <= 0 {
		maxComments = douyin.DefaultMaxComments
	}
	videoBudget := func(string) tokens.Estimate {
		// optimize and format each pass the transcript once
		e := est.EstimateLength(videoTranscriptChars)
		return tokens.Estimate{PromptTokens: 2 * e.PromptTokens, CompletionTokens: 2 * e.CompletionTokens}
	}
	return MustTable(
		Strategy{
			Name:           NameTranscript,
			Priority:       10,
			EventPrefix:    string(pipeline.SourceVideo),
			Detect:         douyin.WantsTranscript,
			Pipeline:       video,
			EstimateTokens: videoBudget,
		},
		Strategy{
			Name:        NameComments,
			Priority:    20,
			EventPrefix: string(pipeline.SourceComments),
			Detect:      douyin.AsksForComments,
			Pipeline:    comments,
			EstimateTokens: func(string) tokens.Estimate {
				return est.EstimateLength(maxComments * commentChars)
			},
		},
		Strategy{
			Name:           NameVideo,
			Priority:       30,
			EventPrefix:    string(pipeline.SourceVideo),
			Detect:         douyin.HasShareLink,
			Pipeline:       video,
			EstimateTokens: videoBudget,
		},
	)
}
