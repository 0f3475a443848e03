package finalize

import (
	"encoding/json"
	"time"

	"fission/internal/language"
	"fission/internal/project"
)

// Manifest is the JSON document recorded on a finished project.
type Manifest struct {
	ProjectID       string          `json:"project_id"`
	Source          string          `json:"source"`
	Category        string          `json:"category"`
	DurationSeconds float64         `json:"duration_seconds"`
	Language        string          `json:"language,omitempty"`
	LanguageName    string          `json:"language_name,omitempty"`
	Segments        int             `json:"segments"`
	Moments         []ManifestEntry `json:"moments"`
	Assets          []ManifestAsset `json:"assets"`
	Counts          map[string]int  `json:"counts"`
	FallbackMoments bool            `json:"fallback_moments,omitempty"`
	GeneratedAt     time.Time       `json:"generated_at"`
}

// ManifestEntry summarises one moment.
type ManifestEntry struct {
	ID         string  `json:"id"`
	Ordinal    int     `json:"ordinal"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Category   string  `json:"category"`
	Importance float64 `json:"importance"`
}

// ManifestAsset summarises one asset row.
type ManifestAsset struct {
	Key      string `json:"key"`
	Kind     string `json:"kind"`
	Title    string `json:"title,omitempty"`
	Status   string `json:"status"`
	URL      string `json:"url,omitempty"`
	MomentID string `json:"moment_id,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Build assembles the manifest for p.
func Build(p *project.Project, transcript *project.Transcript, moments []project.Moment, assets []project.Asset, now time.Time) Manifest {
	m := Manifest{
		ProjectID:       p.ID,
		Source:          p.SourcePath,
		Category:        string(p.Category),
		DurationSeconds: p.DurationSeconds,
		Moments:         make([]ManifestEntry, 0, len(moments)),
		Assets:          make([]ManifestAsset, 0, len(assets)),
		Counts:          make(map[string]int),
		GeneratedAt:     now.UTC(),
	}
	if transcript != nil {
		if transcript.Language != "" {
			m.Language = language.Normalize(transcript.Language)
			m.LanguageName = language.DisplayName(m.Language)
		}
		m.Segments = len(transcript.Segments)
	}
	for _, moment := range moments {
		if moment.Fallback {
			m.FallbackMoments = true
		}
		m.Moments = append(m.Moments, ManifestEntry{
			ID:         moment.ID,
			Ordinal:    moment.Ordinal,
			Start:      moment.Start,
			End:        moment.End,
			Category:   string(moment.Category),
			Importance: moment.Importance,
		})
	}
	for _, a := range assets {
		m.Counts[string(a.Status)]++
		m.Assets = append(m.Assets, ManifestAsset{
			Key:      a.Key,
			Kind:     string(a.Kind),
			Title:    a.Title,
			Status:   string(a.Status),
			URL:      a.FileURL,
			MomentID: a.MomentID,
			Error:    a.ErrorMessage,
		})
	}
	return m
}

// Encode renders m as indented JSON.
func (m Manifest) Encode() (string, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
