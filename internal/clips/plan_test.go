package clips

import (
	"testing"

	"fission/internal/media/ffmpeg"
	"fission/internal/project"
)

func TestWindow(t *testing.T) {
	w := Windowing{MinSeconds: 5, MaxSeconds: 30, DefaultSeconds: 15, MicroSeconds: 5}
	tests := []struct {
		name      string
		moment    project.Moment
		variant   ffmpeg.Variant
		media     float64
		wantStart float64
		wantEnd   float64
	}{
		{"in range keeps length", project.Moment{Start: 10, End: 22}, ffmpeg.VariantHorizontal, 100, 10, 22},
		{"too short uses default", project.Moment{Start: 10, End: 12}, ffmpeg.VariantHorizontal, 100, 10, 25},
		{"too long uses default", project.Moment{Start: 0, End: 60}, ffmpeg.VariantVertical, 100, 0, 15},
		{"micro is fixed", project.Moment{Start: 10, End: 22}, ffmpeg.VariantMicro, 100, 10, 15},
		{"clamped to media", project.Moment{Start: 90, End: 92}, ffmpeg.VariantHorizontal, 100, 90, 100},
		{"unknown media duration", project.Moment{Start: 90, End: 92}, ffmpeg.VariantHorizontal, 0, 90, 105},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			start, end, err := w.Window(tc.moment, tc.variant, tc.media)
			if err != nil {
				t.Fatalf("Window: %v", err)
			}
			if start != tc.wantStart || end != tc.wantEnd {
				t.Fatalf("window %v-%v, want %v-%v", start, end, tc.wantStart, tc.wantEnd)
			}
		})
	}

	if _, _, err := w.Window(project.Moment{Start: 100, End: 110}, ffmpeg.VariantHorizontal, 100); err == nil {
		t.Fatal("expected error for a moment past the media end")
	}
}

func TestSelectMoments(t *testing.T) {
	moments := []project.Moment{
		{Ordinal: 0, Importance: 0.2},
		{Ordinal: 1, Importance: 0.9},
		{Ordinal: 2, Importance: 0.5},
		{Ordinal: 3, Importance: 0.9},
	}
	got := SelectMoments(moments, 3)
	want := []int{1, 3, 2}
	for i, m := range got {
		if m.Ordinal != want[i] {
			t.Fatalf("position %d: ordinal %d, want %d", i, m.Ordinal, want[i])
		}
	}
	if len(SelectMoments(moments, 0)) != 4 {
		t.Fatal("limit 0 selects all")
	}
}

func TestParseVariantsAndKeys(t *testing.T) {
	variants := ParseVariants([]string{"vertical", "square", "Vertical", "micro"})
	if len(variants) != 2 || variants[0] != ffmpeg.VariantVertical || variants[1] != ffmpeg.VariantMicro {
		t.Fatalf("unexpected variants %v", variants)
	}
	if got := ParseVariants(nil); len(got) != 1 || got[0] != ffmpeg.VariantHorizontal {
		t.Fatalf("empty config should default to horizontal, got %v", got)
	}
	m := project.Moment{Ordinal: 3}
	if AssetKey(ffmpeg.VariantMicro, m) != "video_micro:03" || UnitKey(m) != "moment-03" {
		t.Fatalf("unexpected keys %q %q", AssetKey(ffmpeg.VariantMicro, m), UnitKey(m))
	}
}
