package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/k0kubun/pp/v3"

	"fission/internal/project"
)

type projectView struct {
	ID              string  `json:"id"`
	Source          string  `json:"source"`
	Category        string  `json:"category"`
	Status          string  `json:"status"`
	Stage           string  `json:"stage,omitempty"`
	ProgressPercent int     `json:"progress_percent"`
	Error           string  `json:"error,omitempty"`
	CancelRequested bool    `json:"cancel_requested,omitempty"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
	UpdatedAt       string  `json:"updated_at"`
}

type assetView struct {
	Key    string `json:"key"`
	Kind   string `json:"kind"`
	Status string `json:"status"`
	Title  string `json:"title,omitempty"`
	URL    string `json:"url,omitempty"`
	Error  string `json:"error,omitempty"`
}

type projectDetail struct {
	projectView
	Assets   []assetView     `json:"assets"`
	Manifest json.RawMessage `json:"manifest,omitempty"`
}

func newProjectView(p *project.Project) projectView {
	return projectView{
		ID:              p.ID,
		Source:          p.SourcePath,
		Category:        string(p.Category),
		Status:          string(p.Status),
		Stage:           string(p.Stage),
		ProgressPercent: p.ProgressPercent,
		Error:           p.ErrorMessage,
		CancelRequested: p.CancelRequested,
		DurationSeconds: p.DurationSeconds,
		UpdatedAt:       p.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func projectViews(projects []*project.Project) []projectView {
	views := make([]projectView, 0, len(projects))
	for _, p := range projects {
		views = append(views, newProjectView(p))
	}
	return views
}

func newProjectDetail(p *project.Project, assets []project.Asset) projectDetail {
	detail := projectDetail{projectView: newProjectView(p), Assets: make([]assetView, 0, len(assets))}
	for _, a := range assets {
		detail.Assets = append(detail.Assets, assetView{
			Key:    a.Key,
			Kind:   string(a.Kind),
			Status: string(a.Status),
			Title:  a.Title,
			URL:    a.FileURL,
			Error:  a.ErrorMessage,
		})
	}
	if p.ManifestJSON != "" && json.Valid([]byte(p.ManifestJSON)) {
		detail.Manifest = json.RawMessage(p.ManifestJSON)
	}
	return detail
}

func renderProjectTable(projects []*project.Project) string {
	rows := make([][]string, 0, len(projects))
	for _, p := range projects {
		rows = append(rows, []string{
			p.ID,
			string(p.Status),
			stageDisplay(p.Stage),
			fmt.Sprintf("%d%%", p.ProgressPercent),
			string(p.Category),
			truncateMiddle(p.SourcePath, 40),
		})
	}
	return renderTable(
		[]string{"ID", "Status", "Stage", "Progress", "Category", "Source"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
	)
}

func renderProjectDetail(p *project.Project, assets []project.Asset) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Project:   %s\n", p.ID)
	fmt.Fprintf(&b, "Source:    %s\n", p.SourcePath)
	fmt.Fprintf(&b, "Category:  %s\n", p.Category)
	fmt.Fprintf(&b, "Status:    %s (%d%%)\n", p.Status, p.ProgressPercent)
	fmt.Fprintf(&b, "Stage:     %s\n", stageDisplay(p.Stage))
	if p.ErrorMessage != "" {
		fmt.Fprintf(&b, "Error:     %s\n", p.ErrorMessage)
	}
	if p.CancelRequested {
		fmt.Fprintf(&b, "Cancel:    %s\n", yesNo(true))
	}
	if p.DurationSeconds > 0 {
		fmt.Fprintf(&b, "Duration:  %.1fs\n", p.DurationSeconds)
	}
	fmt.Fprintf(&b, "Updated:   %s\n", p.UpdatedAt.Local().Format(time.DateTime))
	if len(assets) == 0 {
		return b.String()
	}

	rows := make([][]string, 0, len(assets))
	for _, a := range assets {
		detail := a.FileURL
		if a.Status == project.AssetFailed {
			detail = a.ErrorMessage
		}
		rows = append(rows, []string{a.Key, string(a.Status), truncateMiddle(a.Title, 32), truncateMiddle(detail, 48)})
	}
	b.WriteString("\n")
	b.WriteString(renderTable([]string{"Asset", "Status", "Title", "URL / Error"}, rows, nil))
	b.WriteString("\n")
	return b.String()
}

func dumpRaw(w io.Writer, colorize bool, p *project.Project, assets []project.Asset) error {
	printer := pp.New()
	printer.SetColoringEnabled(colorize)
	if _, err := printer.Fprintln(w, p); err != nil {
		return err
	}
	_, err := printer.Fprintln(w, assets)
	return err
}

func stageDisplay(stage project.Stage) string {
	if stage == project.StageNone {
		return "-"
	}
	return string(stage)
}

func truncateMiddle(value string, limit int) string {
	runes := []rune(value)
	if limit <= 3 || len(runes) <= limit {
		return value
	}
	head := (limit - 1) / 2
	tail := limit - 1 - head
	return string(runes[:head]) + "…" + string(runes[len(runes)-tail:])
}
