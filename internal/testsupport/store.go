package testsupport

import (
	"context"
	"testing"

	"fission/internal/config"
	"fission/internal/project"
)

// MustOpenStore opens a project.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *project.Store {
	t.Helper()

	store, err := project.Open(cfg)
	if err != nil {
		t.Fatalf("project.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewProject creates a pending project for tests using the provided store.
func NewProject(t testing.TB, store *project.Store, sourcePath string) *project.Project {
	t.Helper()

	p, err := store.Create(context.Background(), sourcePath, project.CategoryTestimonial)
	if err != nil {
		t.Fatalf("store.Create: %v", err)
	}
	return p
}

// SeedTranscript stores a transcript with evenly spaced segments of the given texts.
func SeedTranscript(t testing.TB, store *project.Store, projectID string, segmentSeconds float64, texts ...string) *project.Transcript {
	t.Helper()

	tr := &project.Transcript{ProjectID: projectID, Language: "en"}
	for i, text := range texts {
		start := float64(i) * segmentSeconds
		tr.Segments = append(tr.Segments, project.Segment{Start: start, End: start + segmentSeconds, Text: text})
		if tr.FullText != "" {
			tr.FullText += " "
		}
		tr.FullText += text
	}
	if err := store.SaveTranscript(context.Background(), tr); err != nil {
		t.Fatalf("store.SaveTranscript: %v", err)
	}
	return tr
}

// SeedMoments stores n consecutive moments of length seconds with descending
// importance and quotability, starting at 0.
func SeedMoments(t testing.TB, store *project.Store, projectID string, n int, length float64) []project.Moment {
	t.Helper()

	moments := make([]project.Moment, 0, n)
	for i := range n {
		start := float64(i) * length
		score := 0.9 - float64(i)*0.1
		moments = append(moments, project.Moment{
			Start:       start,
			End:         start + length,
			Category:    project.MomentResult,
			Text:        "moment text",
			Summary:     "Customer describes a result",
			Importance:  score,
			Quotable:    "This changed how we work.",
			Quotability: score,
		})
	}
	saved, err := store.ReplaceMoments(context.Background(), projectID, moments)
	if err != nil {
		t.Fatalf("store.ReplaceMoments: %v", err)
	}
	return saved
}
