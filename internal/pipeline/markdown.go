package pipeline

import (
	"fmt"
	"strings"

	"github.com/famomatic/dyextract/internal/types"
)

// videoMarkdown is the document produced when no language model is configured.
func videoMarkdown(info types.VideoInfo, text string) string {
	var b strings.Builder
	title := strings.TrimSpace(info.Title)
	if title == "" {
		title = "Douyin video " + info.VideoID
	}
	fmt.Fprintf(&b, "# %s\n\n", title)
	if info.Author != "" {
		fmt.Fprintf(&b, "- Author: %s\n", info.Author)
	}
	if info.DurationSeconds > 0 {
		fmt.Fprintf(&b, "- Duration: %s\n", clock(info.DurationSeconds))
	}
	if info.ShareURL != "" {
		fmt.Fprintf(&b, "- Source: %s\n", info.ShareURL)
	}
	b.WriteString("\n## Transcript\n\n")
	for _, para := range strings.Split(strings.TrimSpace(text), "\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		b.WriteString(para)
		b.WriteString("\n\n")
	}
	return b.String()
}

func clock(seconds int) string {
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}

func commentsMarkdown(info types.VideoInfo, stats Stats, analysis string) string {
	var b strings.Builder
	title := strings.TrimSpace(info.Title)
	if title == "" {
		title = info.VideoID
	}
	fmt.Fprintf(&b, "# Comment report: %s\n\n", title)
	if info.Author != "" {
		fmt.Fprintf(&b, "Author: %s\n\n", info.Author)
	}

	b.WriteString("## Statistics\n\n")
	b.WriteString("| metric | value |\n|---|---|\n")
	fmt.Fprintf(&b, "| comments analyzed | %d |\n", stats.Fetched)
	if stats.ReportedTotal > 0 {
		fmt.Fprintf(&b, "| comments reported | %d |\n", stats.ReportedTotal)
	}
	fmt.Fprintf(&b, "| total likes | %d |\n", stats.TotalLikes)
	fmt.Fprintf(&b, "| average likes | %.1f |\n", stats.AverageLikes)
	fmt.Fprintf(&b, "| replies | %d |\n\n", stats.TotalReplies)

	if len(stats.Top) > 0 {
		b.WriteString("## Top comments\n\n")
		for i, c := range stats.Top {
			fmt.Fprintf(&b, "%d. %s (%d likes, %s)\n", i+1, oneLine(c.Text), c.Likes, c.Author)
		}
		b.WriteString("\n")
	}

	if len(stats.Locations) > 0 {
		b.WriteString("## Locations\n\n")
		for _, l := range stats.Locations {
			fmt.Fprintf(&b, "- %s: %d\n", l.Label, l.Count)
		}
		b.WriteString("\n")
	}

	if strings.TrimSpace(analysis) != "" {
		b.WriteString("## Analysis\n\n")
		b.WriteString(strings.TrimSpace(analysis))
		b.WriteString("\n")
	}
	return b.String()
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
