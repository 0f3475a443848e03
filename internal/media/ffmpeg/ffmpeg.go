package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"fission/internal/services"
)

// ErrEncodingFailed marks a clip ffmpeg could not produce. Retrying the same
// cut does not help, so it is terminal for the unit.
var ErrEncodingFailed = services.Code(services.ErrExternalTool, "EncodingFailed")

// Variant names a clip encoding recipe.
type Variant string

const (
	VariantHorizontal Variant = "horizontal"
	VariantMicro      Variant = "micro"
	VariantVertical   Variant = "vertical"
)

// ParseVariant returns the variant named by value.
func ParseVariant(value string) (Variant, bool) {
	switch Variant(strings.ToLower(strings.TrimSpace(value))) {
	case VariantHorizontal:
		return VariantHorizontal, true
	case VariantMicro:
		return VariantMicro, true
	case VariantVertical:
		return VariantVertical, true
	}
	return "", false
}

// Dimensions returns the nominal output size for the variant.
func (v Variant) Dimensions() (int, int) {
	if v == VariantVertical {
		return 720, 1280
	}
	return 480, 270
}

// Request describes one clip cut.
type Request struct {
	Source   string
	Output   string
	Start    float64
	End      float64
	Variant  Variant
	Captions string // optional SRT path burned into vertical clips
}

// Duration returns End - Start.
func (r Request) Duration() float64 {
	return r.End - r.Start
}

// Extractor runs ffmpeg.
type Extractor struct {
	binary string
}

// NewExtractor returns an Extractor using binary, defaulting to "ffmpeg".
func NewExtractor(binary string) *Extractor {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffmpeg"
	}
	return &Extractor{binary: binary}
}

// ExtractClip cuts req into req.Output and returns the output path.
func (e *Extractor) ExtractClip(ctx context.Context, req Request) (string, error) {
	if err := validate(req); err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(req.Output), 0o755); err != nil {
		return "", services.Wrap(ErrEncodingFailed, "ffmpeg", "create output dir", filepath.Dir(req.Output), err)
	}

	cmd := exec.CommandContext(ctx, e.binary, BuildArgs(req)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		_ = os.Remove(req.Output)
		return "", services.Wrap(ErrEncodingFailed, "ffmpeg", string(req.Variant), lastLines(stderr.String(), 3), err)
	}
	info, err := os.Stat(req.Output)
	if err != nil || info.Size() == 0 {
		return "", services.Wrap(ErrEncodingFailed, "ffmpeg", string(req.Variant), "ffmpeg produced no output", err)
	}
	return req.Output, nil
}

// BuildArgs renders the ffmpeg command line for req.
func BuildArgs(req Request) []string {
	args := []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-threads", "1",
		"-ss", formatSeconds(req.Start),
		"-i", req.Source,
		"-t", formatSeconds(req.Duration()),
	}
	switch req.Variant {
	case VariantVertical:
		filter := "scale=720:1280:force_original_aspect_ratio=decrease,pad=720:1280:(ow-iw)/2:(oh-ih)/2:black"
		if strings.TrimSpace(req.Captions) != "" {
			filter += ",subtitles=" + escapeFilterPath(req.Captions)
		}
		args = append(args, "-vf", filter, "-c:v", "libx264", "-preset", "ultrafast", "-crf", "28",
			"-pix_fmt", "yuv420p", "-c:a", "aac", "-b:a", "96k")
	default:
		args = append(args, "-vf", "scale=480:-2", "-c:v", "libx264", "-preset", "ultrafast", "-crf", "30",
			"-x264-params", "threads=1:lookahead-threads=1",
			"-pix_fmt", "yuv420p", "-c:a", "aac", "-b:a", "64k")
	}
	return append(args, "-movflags", "+faststart", req.Output)
}

func validate(req Request) error {
	switch {
	case strings.TrimSpace(req.Source) == "":
		return services.Wrap(services.ErrValidation, "ffmpeg", "extract clip", "source path is empty", nil)
	case strings.TrimSpace(req.Output) == "":
		return services.Wrap(services.ErrValidation, "ffmpeg", "extract clip", "output path is empty", nil)
	case req.Start < 0 || req.End <= req.Start:
		return services.Wrap(services.ErrValidation, "ffmpeg", "extract clip",
			fmt.Sprintf("invalid window %.2f-%.2f", req.Start, req.End), nil)
	}
	if _, ok := ParseVariant(string(req.Variant)); !ok {
		return services.Wrap(services.ErrValidation, "ffmpeg", "extract clip",
			fmt.Sprintf("unknown variant %q", req.Variant), nil)
	}
	return nil
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}

// escapeFilterPath quotes a path for use inside an ffmpeg filtergraph.
func escapeFilterPath(path string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `'`, `\'`, `:`, `\:`)
	return "'" + replacer.Replace(path) + "'"
}

func lastLines(output string, n int) string {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.TrimSpace(strings.Join(lines, " | "))
}
