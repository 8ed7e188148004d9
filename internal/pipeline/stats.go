package pipeline

import (
	"fmt"
	"sort"
	"strings"

	"github.com/famomatic/dyextract/internal/types"
)

// Stats summarises a comment sample.
type Stats struct {
	Fetched       int             `json:"fetched"`
	ReportedTotal int64           `json:"reportedTotal"`
	TotalLikes    int64           `json:"totalLikes"`
	AverageLikes  float64         `json:"averageLikes"`
	TotalReplies  int64           `json:"totalReplies"`
	Top           []types.Comment `json:"top"`
	Locations     []LabelCount    `json:"locations"`
}

type LabelCount struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// aggregate is deterministic: ties keep fetch order for Top and sort by label
// for Locations.
func aggregate(comments []types.Comment, reportedTotal int64, topN int) Stats {
	s := Stats{Fetched: len(comments), ReportedTotal: reportedTotal}
	locations := map[string]int{}
	for _, c := range comments {
		s.TotalLikes += c.Likes
		s.TotalReplies += c.ReplyCount
		label := strings.TrimSpace(c.IPLabel)
		if label == "" {
			label = "unknown"
		}
		locations[label]++
	}
	if len(comments) > 0 {
		s.AverageLikes = float64(s.TotalLikes) / float64(len(comments))
	}

	top := append([]types.Comment(nil), comments...)
	sort.SliceStable(top, func(i, j int) bool { return top[i].Likes > top[j].Likes })
	if topN > 0 && len(top) > topN {
		top = top[:topN]
	}
	s.Top = top

	for label, n := range locations {
		s.Locations = append(s.Locations, LabelCount{Label: label, Count: n})
	}
	sort.Slice(s.Locations, func(i, j int) bool {
		if s.Locations[i].Count != s.Locations[j].Count {
			return s.Locations[i].Count > s.Locations[j].Count
		}
		return s.Locations[i].Label < s.Locations[j].Label
	})
	return s
}

// summary is the compact statistics block handed to the language model.
func (s Stats) summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "comments analyzed: %d\n", s.Fetched)
	if s.ReportedTotal > 0 {
		fmt.Fprintf(&b, "comments reported by platform: %d\n", s.ReportedTotal)
	}
	fmt.Fprintf(&b, "total likes: %d, average likes: %.1f, replies: %d\n", s.TotalLikes, s.AverageLikes, s.TotalReplies)
	if len(s.Locations) > 0 {
		parts := make([]string, 0, len(s.Locations))
		for i, l := range s.Locations {
			if i == 8 {
				break
			}
			parts = append(parts, fmt.Sprintf("%s %d", l.Label, l.Count))
		}
		fmt.Fprintf(&b, "locations: %s\n", strings.Join(parts, ", "))
	}
	return b.String()
}
