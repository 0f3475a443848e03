package stage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"fission/internal/project"
	"fission/internal/services"
)

func TestRequireMedia(t *testing.T) {
	dir := t.TempDir()
	media := filepath.Join(dir, "source.mp4")
	if err := os.WriteFile(media, []byte("x"), 0o644); err != nil {
		t.Fatalf("write media: %v", err)
	}

	got, err := RequireMedia(&project.Project{MediaPath: media}, "transcribe")
	if err != nil || got != media {
		t.Fatalf("got %q err=%v", got, err)
	}

	_, err = RequireMedia(&project.Project{}, "transcribe")
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for missing media, got %v", err)
	}

	_, err = RequireMedia(&project.Project{MediaPath: filepath.Join(dir, "gone.mp4")}, "transcribe")
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for unreadable media, got %v", err)
	}
}

func TestResultConstructors(t *testing.T) {
	if r := PartialSuccess(Output{Produced: 2}, nil); r.Outcome != OutcomeSuccess {
		t.Fatalf("partial success without failures should collapse to success, got %s", r.Outcome)
	}
	r := PartialSuccess(Output{Produced: 3}, []UnitFailure{{Key: "moment-3", Reason: "EncodingFailed"}})
	if r.Outcome != OutcomePartialSuccess || !r.Continues() {
		t.Fatalf("unexpected partial result: %+v", r)
	}

	flaky := services.Code(services.ErrTransient, "ServiceUnavailable")
	hard := HardFailure(services.Wrap(flaky, "transcribe", "whisper", "connection refused", nil))
	if hard.Outcome != OutcomeHardFailure || hard.Continues() {
		t.Fatalf("unexpected hard result: %+v", hard)
	}
	if hard.Reason != "ServiceUnavailable: transcribe: whisper: connection refused" {
		t.Fatalf("unexpected reason %q", hard.Reason)
	}
	if Failed("  ").Reason != "stage failed" {
		t.Fatal("blank reason should get a default")
	}
}
