package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"fission/internal/config"
	"fission/internal/language"
	"fission/internal/project"
	"fission/internal/services"
)

var (
	// ErrServiceUnavailable marks a transcription run that may succeed on retry.
	ErrServiceUnavailable = services.Code(services.ErrTransient, "ServiceUnavailable")
	// ErrUnintelligibleAudio marks audio with no recognisable speech.
	ErrUnintelligibleAudio = services.Code(services.ErrValidation, "UnintelligibleAudio")
	// ErrAudioExtraction marks a source whose audio track ffmpeg could not decode.
	ErrAudioExtraction = services.Code(services.ErrExternalTool, "AudioExtractionFailed")
)

// Provider turns a media handle into a timed transcript.
type Provider interface {
	Transcribe(ctx context.Context, mediaHandle string) (project.Transcript, error)
}

// WhisperOptions configures the whisper CLI provider.
type WhisperOptions struct {
	Binary   string
	FFmpeg   string
	Model    string
	Language string
	Timeout  time.Duration
	WorkDir  string
}

// OptionsFrom maps configuration onto WhisperOptions.
func OptionsFrom(cfg *config.Config) WhisperOptions {
	return WhisperOptions{
		Binary:   cfg.Transcription.Binary,
		FFmpeg:   cfg.FFmpegBinary(),
		Model:    cfg.Transcription.Model,
		Language: cfg.Transcription.Language,
		Timeout:  time.Duration(cfg.Transcription.TimeoutSeconds) * time.Second,
		WorkDir:  cfg.Paths.TempDir,
	}
}

// Whisper runs the whisper CLI.
type Whisper struct {
	opts WhisperOptions
}

// NewWhisper constructs the whisper provider.
func NewWhisper(opts WhisperOptions) *Whisper {
	if strings.TrimSpace(opts.Binary) == "" {
		opts.Binary = "whisper"
	}
	if strings.TrimSpace(opts.FFmpeg) == "" {
		opts.FFmpeg = "ffmpeg"
	}
	if strings.TrimSpace(opts.Model) == "" {
		opts.Model = "base"
	}
	return &Whisper{opts: opts}
}

// Binary returns the whisper executable.
func (w *Whisper) Binary() string {
	return w.opts.Binary
}

// Transcribe extracts audio from mediaHandle and transcribes it.
func (w *Whisper) Transcribe(ctx context.Context, mediaHandle string) (project.Transcript, error) {
	if err := os.MkdirAll(w.opts.WorkDir, 0o755); err != nil {
		return project.Transcript{}, services.Wrap(services.ErrConfiguration, "transcription", "create work dir", w.opts.WorkDir, err)
	}
	workDir, err := os.MkdirTemp(w.opts.WorkDir, "whisper-*")
	if err != nil {
		return project.Transcript{}, services.Wrap(services.ErrConfiguration, "transcription", "create work dir", w.opts.WorkDir, err)
	}
	defer os.RemoveAll(workDir)

	audioPath := filepath.Join(workDir, "audio.wav")
	if err := w.extractAudio(ctx, mediaHandle, audioPath); err != nil {
		return project.Transcript{}, err
	}

	runCtx := ctx
	if w.opts.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, w.opts.Timeout)
		defer cancel()
	}
	args := []string{audioPath, "--model", w.opts.Model, "--output_format", "json", "--output_dir", workDir, "--verbose", "False"}
	if lang := strings.TrimSpace(w.opts.Language); lang != "" {
		args = append(args, "--language", lang)
	}
	cmd := exec.CommandContext(runCtx, w.opts.Binary, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return project.Transcript{}, ctxErr
		}
		if errors.Is(err, exec.ErrNotFound) {
			return project.Transcript{}, services.Wrap(services.ErrConfiguration, "transcription", "run whisper", "whisper not found on PATH", err)
		}
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return project.Transcript{}, services.Wrap(ErrServiceUnavailable, "transcription", "run whisper",
				fmt.Sprintf("timed out after %s", w.opts.Timeout), nil)
		}
		return project.Transcript{}, services.Wrap(ErrServiceUnavailable, "transcription", "run whisper",
			tail(stderr.String()), err)
	}

	data, err := os.ReadFile(filepath.Join(workDir, "audio.json"))
	if err != nil {
		return project.Transcript{}, services.Wrap(ErrServiceUnavailable, "transcription", "read report", "whisper wrote no report", err)
	}
	return ParseReport(data)
}

func (w *Whisper) extractAudio(ctx context.Context, source, target string) error {
	cmd := exec.CommandContext(ctx, w.opts.FFmpeg, "-y", "-hide_banner", "-loglevel", "error",
		"-i", source, "-vn", "-acodec", "pcm_s16le", "-ar", "16000", "-ac", "1", target)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if errors.Is(err, exec.ErrNotFound) {
			return services.Wrap(services.ErrConfiguration, "transcription", "extract audio", "ffmpeg not found on PATH", err)
		}
		return services.Wrap(ErrAudioExtraction, "transcription", "extract audio", tail(stderr.String()), err)
	}
	return nil
}

type whisperReport struct {
	Text     string           `json:"text"`
	Language string           `json:"language"`
	Segments []whisperSegment `json:"segments"`
}

type whisperSegment struct {
	Start        float64 `json:"start"`
	End          float64 `json:"end"`
	Text         string  `json:"text"`
	NoSpeechProb float64 `json:"no_speech_prob"`
	Speaker      string  `json:"speaker"`
}

// noSpeechThreshold drops segments whisper itself flags as probable silence.
const noSpeechThreshold = 0.8

// ParseReport decodes a whisper JSON report into a transcript.
func ParseReport(data []byte) (project.Transcript, error) {
	var report whisperReport
	if err := json.Unmarshal(data, &report); err != nil {
		return project.Transcript{}, services.Wrap(ErrServiceUnavailable, "transcription", "parse report", "invalid whisper json", err)
	}

	transcript := project.Transcript{Language: language.Normalize(report.Language)}
	parts := make([]string, 0, len(report.Segments))
	for _, seg := range report.Segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" || seg.NoSpeechProb >= noSpeechThreshold || seg.End <= seg.Start {
			continue
		}
		transcript.Segments = append(transcript.Segments, project.Segment{
			Start:   seg.Start,
			End:     seg.End,
			Text:    text,
			Speaker: strings.TrimSpace(seg.Speaker),
		})
		parts = append(parts, text)
	}
	if len(transcript.Segments) == 0 {
		return project.Transcript{}, services.Wrap(ErrUnintelligibleAudio, "transcription", "parse report", "no speech recognised", nil)
	}
	transcript.FullText = strings.Join(parts, " ")
	return transcript, nil
}

func tail(output string) string {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	if len(lines) > 3 {
		lines = lines[len(lines)-3:]
	}
	return strings.TrimSpace(strings.Join(lines, " | "))
}
