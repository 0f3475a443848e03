package analysis

import (
	"math"
	"strings"

	"fission/internal/config"
	"fission/internal/project"
)

// FallbackPolicy segments a transcript into fixed windows when moment
// identification fails.
type FallbackPolicy struct {
	IntervalSeconds float64
	Importance      float64
	Quotability     float64
	Sentiment       float64
}

// DefaultFallbackPolicy returns 30 second windows scored 0.5.
func DefaultFallbackPolicy() FallbackPolicy {
	return FallbackPolicy{IntervalSeconds: 30, Importance: 0.5, Quotability: 0.5}
}

// FallbackFromConfig reads the [analysis] section.
func FallbackFromConfig(cfg *config.Config) FallbackPolicy {
	policy := DefaultFallbackPolicy()
	if cfg == nil {
		return policy
	}
	if cfg.Analysis.FallbackIntervalSeconds > 0 {
		policy.IntervalSeconds = cfg.Analysis.FallbackIntervalSeconds
	}
	policy.Importance = clamp(cfg.Analysis.FallbackImportance, 0, 1)
	policy.Quotability = clamp(cfg.Analysis.FallbackQuotability, 0, 1)
	return policy
}

// Segment splits transcript into consecutive windows of IntervalSeconds,
// including a shorter tail window. Windows in which no segment starts are
// skipped. Every moment is category general and marked Fallback.
func (f FallbackPolicy) Segment(transcript *project.Transcript) []project.Moment {
	duration := transcript.Duration()
	if duration <= 0 {
		return nil
	}
	interval := f.IntervalSeconds
	if interval <= 0 {
		interval = DefaultFallbackPolicy().IntervalSeconds
	}

	windows := int(math.Ceil(duration / interval))
	moments := make([]project.Moment, 0, windows)
	for i := range windows {
		start := float64(i) * interval
		end := math.Min(start+interval, duration)
		if end <= start {
			continue
		}
		var first string
		parts := make([]string, 0, 4)
		for _, seg := range transcript.Segments {
			if seg.Start < start || seg.Start >= end {
				continue
			}
			text := strings.TrimSpace(seg.Text)
			if text == "" {
				continue
			}
			if first == "" {
				first = text
			}
			parts = append(parts, text)
		}
		if len(parts) == 0 {
			continue
		}
		moments = append(moments, project.Moment{
			Start:       start,
			End:         end,
			Category:    project.MomentGeneral,
			Text:        strings.Join(parts, " "),
			Summary:     "Key moment from transcript",
			Sentiment:   f.Sentiment,
			Importance:  f.Importance,
			Quotable:    first,
			Quotability: f.Quotability,
			Fallback:    true,
		})
	}
	return moments
}
