package pipeline

// span is the percentage a stage starts at (active) and ends at (done).
type span struct {
	start float64
	end   float64
}

var videoStages = []Stage{
	StageResolving,
	StageFetchingInfo,
	StageDownloading,
	StageExtractingAudio,
	StageTranscribing,
	StageOptimizing,
	StageFormatting,
}

var videoSpans = map[Stage]span{
	StageResolving:       {0, 5},
	StageFetchingInfo:    {5, 10},
	StageDownloading:     {10, 40},
	StageExtractingAudio: {40, 45},
	StageTranscribing:    {45, 85},
	StageOptimizing:      {85, 90},
	StageFormatting:      {90, 95},
}

var commentStages = []Stage{
	StageResolving,
	StageFetchingComments,
	StageAggregatingStats,
	StageAnalyzingWithLLM,
	StageFormatting,
}

var commentSpans = map[Stage]span{
	StageResolving:        {0, 5},
	StageFetchingComments: {5, 40},
	StageAggregatingStats: {40, 50},
	StageAnalyzingWithLLM: {50, 85},
	StageFormatting:       {85, 95},
}

var stageLabels = map[Stage]string{
	StageResolving:        "Resolving share link",
	StageFetchingInfo:     "Fetching video info",
	StageDownloading:      "Downloading video",
	StageExtractingAudio:  "Extracting audio",
	StageTranscribing:     "Transcribing speech",
	StageOptimizing:       "Polishing transcript",
	StageFormatting:       "Formatting markdown",
	StageFetchingComments: "Fetching comments",
	StageAggregatingStats: "Aggregating statistics",
	StageAnalyzingWithLLM: "Analyzing comments",
	StageDone:             "Done",
}

// at interpolates a fraction in [0,1] across the span.
func (s span) at(fraction float64) float64 {
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	return s.start + (s.end-s.start)*fraction
}
