package ffmpeg

import (
	"fmt"
	"math"
	"os"
	"strings"

	"fission/internal/project"
)

// SRT renders the segments overlapping [start, end) as a caption file with
// timestamps relative to start. It returns "" when nothing overlaps.
func SRT(segments []project.Segment, start, end float64) string {
	var b strings.Builder
	index := 1
	for _, seg := range segments {
		if seg.End <= start || seg.Start >= end {
			continue
		}
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		from := math.Max(seg.Start, start) - start
		to := math.Min(seg.End, end) - start
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n", index, srtTimestamp(from), srtTimestamp(to), text)
		index++
	}
	return b.String()
}

// WriteSRT writes SRT output to path, returning false when there was
// nothing to caption.
func WriteSRT(path string, segments []project.Segment, start, end float64) (bool, error) {
	body := SRT(segments, start, end)
	if body == "" {
		return false, nil
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		return false, fmt.Errorf("write captions: %w", err)
	}
	return true, nil
}

func srtTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int64(math.Round(seconds * 1000))
	ms := total % 1000
	s := (total / 1000) % 60
	m := (total / 60000) % 60
	h := total / 3600000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}
