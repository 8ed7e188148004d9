package llm

import (
	"fmt"
	"strings"
)

// OptimizePrompt asks for punctuation and typo repair without rewording.
func OptimizePrompt(transcript string) string {
	return strings.Join([]string{
		"You are proofreading an automatic speech recognition transcript of a short Douyin video.",
		"Add punctuation, split it into paragraphs and fix obvious recognition mistakes.",
		"Keep the original language and wording. Do not summarize. Output only the corrected text.",
		"",
		"Transcript:",
		transcript,
	}, "\n")
}

// FormatPrompt asks for a markdown article built from the cleaned transcript.
func FormatPrompt(title, author, text string) string {
	return strings.Join([]string{
		"Turn the following video transcript into a well structured Markdown document.",
		fmt.Sprintf("Start with a level one heading using the video title %q and mention the author %q.", title, author),
		"Add a short summary, then section headings and bullet points for key ideas, then the full text.",
		"Keep the transcript language. Output Markdown only.",
		"",
		text,
	}, "\n")
}

// AnalyzePrompt asks for a qualitative reading of a comment sample.
func AnalyzePrompt(title string, stats string, comments []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Analyze the audience comments of the Douyin video %q.\n", title)
	b.WriteString("Describe overall sentiment, recurring topics, notable questions or complaints and what viewers liked most.\n")
	b.WriteString("Answer in Markdown with short sections. Keep the comments' language.\n\n")
	b.WriteString("Statistics:\n")
	b.WriteString(stats)
	b.WriteString("\n\nComments:\n")
	for i, c := range comments {
		fmt.Fprintf(&b, "%d. %s\n", i+1, c)
	}
	return b.String()
}
