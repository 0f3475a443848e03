package analysis

import (
	"fmt"
	"strings"

	"fission/internal/project"
)

const systemPrompt = "You are an expert content analyst. Identify key moments in video transcripts and answer with JSON only."

var categoryFocus = map[project.ContentCategory]string{
	project.CategoryTestimonial:  "a customer testimonial. Look for the customer's problem, the solution they found, measurable results, emotional peaks and any recommendation.",
	project.CategoryCaseStudy:    "a case study. Look for the business context, the challenge, the implementation, quantified outcomes and lessons learned.",
	project.CategoryFounderStory: "a founder story. Look for the origin, the struggle, the turning point, the mission and a call to action.",
}

func buildPrompt(transcript *project.Transcript, category project.ContentCategory) string {
	focus, ok := categoryFocus[category]
	if !ok {
		focus = categoryFocus[project.CategoryTestimonial]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Analyze this transcript of %s\n\n", focus)
	b.WriteString("Transcript (timestamps in seconds):\n")
	for _, seg := range transcript.Segments {
		fmt.Fprintf(&b, "[%.1f-%.1f] %s\n", seg.Start, seg.End, strings.TrimSpace(seg.Text))
	}
	fmt.Fprintf(&b, "\nThe video is %.1f seconds long. ", transcript.Duration())
	b.WriteString(`For each key moment provide start and end timestamps in seconds, a moment type (problem, solution, result, emotional_peak or cta), a one or two sentence summary, a sentiment score from -1.0 to 1.0, an importance score from 0.0 to 1.0, the most quotable line verbatim, and a quote quality score from 0.0 to 1.0.

Return a JSON object with this exact structure:
{"moments": [{"start_time": 0.0, "end_time": 15.5, "moment_type": "problem", "summary": "...", "sentiment_score": -0.5, "importance_score": 0.8, "quotable_text": "...", "quotable_score": 0.9}]}

Identify 5-8 key moments that tell a complete story. Prefer impactful, emotional and quotable segments.`)
	return b.String()
}
