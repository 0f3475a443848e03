package ffmpeg

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"fission/internal/project"
	"fission/internal/services"
)

func TestBuildArgsPerVariant(t *testing.T) {
	horizontal := BuildArgs(Request{Source: "in.mp4", Output: "out.mp4", Start: 10, End: 25, Variant: VariantHorizontal})
	if !slices.Contains(horizontal, "scale=480:-2") || !slices.Contains(horizontal, "30") {
		t.Fatalf("horizontal args missing scale/crf: %v", horizontal)
	}
	idx := slices.Index(horizontal, "-t")
	if idx < 0 || horizontal[idx+1] != "15.000" {
		t.Fatalf("expected duration 15.000, got %v", horizontal)
	}
	if horizontal[len(horizontal)-1] != "out.mp4" {
		t.Fatalf("output must be last: %v", horizontal)
	}

	vertical := BuildArgs(Request{Source: "in.mp4", Output: "v.mp4", Start: 0, End: 5, Variant: VariantVertical, Captions: "/tmp/a:b.srt"})
	vf := vertical[slices.Index(vertical, "-vf")+1]
	if !strings.Contains(vf, "pad=720:1280") || !strings.Contains(vf, `subtitles='/tmp/a\:b.srt'`) {
		t.Fatalf("unexpected vertical filter %q", vf)
	}
}

func TestParseVariant(t *testing.T) {
	if v, ok := ParseVariant(" Vertical "); !ok || v != VariantVertical {
		t.Fatalf("ParseVariant = %q, %v", v, ok)
	}
	if _, ok := ParseVariant("square"); ok {
		t.Fatal("square is not a variant")
	}
	if w, h := VariantVertical.Dimensions(); w != 720 || h != 1280 {
		t.Fatalf("vertical dimensions %dx%d", w, h)
	}
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ffmpeg")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func TestExtractClipRunsBinary(t *testing.T) {
	// The stub writes to its last argument, which is the output path.
	stub := writeScript(t, `for last; do :; done; printf clip > "$last"`)
	out := filepath.Join(t.TempDir(), "nested", "clip.mp4")

	got, err := NewExtractor(stub).ExtractClip(context.Background(), Request{
		Source: "in.mp4", Output: out, Start: 1, End: 6, Variant: VariantMicro,
	})
	if err != nil {
		t.Fatalf("ExtractClip: %v", err)
	}
	if got != out {
		t.Fatalf("unexpected path %q", got)
	}
}

func TestExtractClipFailureIsEncodingFailed(t *testing.T) {
	stub := writeScript(t, `echo "Conversion failed!" >&2; exit 1`)
	_, err := NewExtractor(stub).ExtractClip(context.Background(), Request{
		Source: "in.mp4", Output: filepath.Join(t.TempDir(), "c.mp4"), Start: 0, End: 5, Variant: VariantHorizontal,
	})
	if !errors.Is(err, ErrEncodingFailed) {
		t.Fatalf("expected ErrEncodingFailed, got %v", err)
	}
	if services.Retryable(err) {
		t.Fatal("encoding failures must be terminal")
	}
	if !strings.HasPrefix(services.FailureReason(err), "EncodingFailed") {
		t.Fatalf("unexpected reason %q", services.FailureReason(err))
	}
}

func TestExtractClipEmptyOutput(t *testing.T) {
	stub := writeScript(t, `exit 0`)
	_, err := NewExtractor(stub).ExtractClip(context.Background(), Request{
		Source: "in.mp4", Output: filepath.Join(t.TempDir(), "c.mp4"), Start: 0, End: 5, Variant: VariantHorizontal,
	})
	if !errors.Is(err, ErrEncodingFailed) {
		t.Fatalf("expected ErrEncodingFailed, got %v", err)
	}
}

func TestExtractClipValidatesWindow(t *testing.T) {
	_, err := NewExtractor("ffmpeg").ExtractClip(context.Background(), Request{
		Source: "in.mp4", Output: "o.mp4", Start: 5, End: 5, Variant: VariantHorizontal,
	})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSRT(t *testing.T) {
	segments := []project.Segment{
		{Start: 0, End: 9, Text: "before"},
		{Start: 9, End: 12.5, Text: "first line"},
		{Start: 12.5, End: 70, Text: "second line"},
		{Start: 80, End: 90, Text: "after"},
	}
	got := SRT(segments, 10, 75)
	want := "1\n00:00:00,000 --> 00:00:02,500\nfirst line\n\n2\n00:00:02,500 --> 00:01:00,000\nsecond line\n\n"
	if got != want {
		t.Fatalf("unexpected srt:\n%q\nwant:\n%q", got, want)
	}
	if SRT(segments, 200, 210) != "" {
		t.Fatal("expected empty srt outside segments")
	}
}
