package clips

import (
	"fmt"
	"math"
	"sort"

	"fission/internal/config"
	"fission/internal/media/ffmpeg"
	"fission/internal/project"
)

// Windowing holds the clip length rules.
type Windowing struct {
	MinSeconds     float64
	MaxSeconds     float64
	DefaultSeconds float64
	MicroSeconds   float64
}

// WindowingFrom reads the [clips] section.
func WindowingFrom(cfg *config.Config) Windowing {
	return Windowing{
		MinSeconds:     cfg.Clips.MinClipSeconds,
		MaxSeconds:     cfg.Clips.MaxClipSeconds,
		DefaultSeconds: cfg.Clips.DefaultClipSeconds,
		MicroSeconds:   cfg.Clips.MicroClipSeconds,
	}
}

// Window returns the [start, end) cut for variant. A moment whose length is
// within [MinSeconds, MaxSeconds] keeps it; otherwise DefaultSeconds is used.
// Micro clips are MicroSeconds long. The end is clamped to mediaDuration when
// it is known.
func (w Windowing) Window(m project.Moment, variant ffmpeg.Variant, mediaDuration float64) (float64, float64, error) {
	length := m.Duration()
	if variant == ffmpeg.VariantMicro {
		length = w.MicroSeconds
	} else if length < w.MinSeconds || length > w.MaxSeconds {
		length = w.DefaultSeconds
	}
	start := math.Max(m.Start, 0)
	end := start + length
	if mediaDuration > 0 {
		end = math.Min(end, mediaDuration)
	}
	if end <= start {
		return 0, 0, fmt.Errorf("moment %d starts at %.1fs, past the end of the media", m.Ordinal, m.Start)
	}
	return start, end, nil
}

// SelectMoments returns the top limit moments by importance, ties broken by
// ordinal. limit <= 0 selects all.
func SelectMoments(moments []project.Moment, limit int) []project.Moment {
	selected := append([]project.Moment(nil), moments...)
	sort.SliceStable(selected, func(i, j int) bool {
		if selected[i].Importance != selected[j].Importance {
			return selected[i].Importance > selected[j].Importance
		}
		return selected[i].Ordinal < selected[j].Ordinal
	})
	if limit > 0 && len(selected) > limit {
		selected = selected[:limit]
	}
	return selected
}

// ParseVariants maps configured names onto variants, skipping unknown names.
func ParseVariants(names []string) []ffmpeg.Variant {
	variants := make([]ffmpeg.Variant, 0, len(names))
	seen := make(map[ffmpeg.Variant]bool, len(names))
	for _, name := range names {
		v, ok := ffmpeg.ParseVariant(name)
		if !ok || seen[v] {
			continue
		}
		seen[v] = true
		variants = append(variants, v)
	}
	if len(variants) == 0 {
		variants = append(variants, ffmpeg.VariantHorizontal)
	}
	return variants
}

// AssetKind maps a variant to the asset kind it produces.
func AssetKind(v ffmpeg.Variant) project.AssetKind {
	switch v {
	case ffmpeg.VariantMicro:
		return project.AssetVideoMicro
	case ffmpeg.VariantVertical:
		return project.AssetVideoVertical
	default:
		return project.AssetVideoClip
	}
}

// AssetKey is the stable per-project key of a moment's variant asset.
func AssetKey(v ffmpeg.Variant, m project.Moment) string {
	return fmt.Sprintf("%s:%02d", AssetKind(v), m.Ordinal)
}

// UnitKey names the fan-out unit for a moment.
func UnitKey(m project.Moment) string {
	return fmt.Sprintf("moment-%02d", m.Ordinal)
}
