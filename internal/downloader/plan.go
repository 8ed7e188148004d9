package downloader

// Plan is the derived download decision.
type Plan struct {
	Strategy    Strategy
	ChunkSize   int64
	Concurrency int
	ChunkCount  int
}

// NewPlan chooses chunked only when the source accepts ranges and is larger
// than one chunk; everything else, including unknown length, is single-shot.
func NewPlan(info MediaInfo, opts Options) Plan {
	opts = normalizeOptions(opts)
	if info.SupportsRangeRequests && info.ContentLength > opts.ChunkSize {
		count := (info.ContentLength + opts.ChunkSize - 1) / opts.ChunkSize
		return Plan{
			Strategy:    StrategyChunked,
			ChunkSize:   opts.ChunkSize,
			Concurrency: opts.Concurrency,
			ChunkCount:  int(count),
		}
	}
	return Plan{
		Strategy:    StrategySingle,
		ChunkSize:   opts.ChunkSize,
		Concurrency: 1,
		ChunkCount:  1,
	}
}

type byteRange struct {
	start int64
	end   int64 // inclusive
}

func buildChunks(total, chunkSize int64) []byteRange {
	if total <= 0 {
		return nil
	}
	var chunks []byteRange
	for start := int64(0); start < total; start += chunkSize {
		end := start + chunkSize - 1
		if end >= total {
			end = total - 1
		}
		chunks = append(chunks, byteRange{start: start, end: end})
	}
	return chunks
}
