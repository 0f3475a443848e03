package project

import (
	"database/sql"
	"errors"
	"time"
)

const projectColumns = "id, source_path, category, status, stage, progress_percent, error_message, cancel_requested, media_path, duration_seconds, size_bytes, manifest_json, run_owner, last_heartbeat, created_at, updated_at"

const momentColumns = "id, project_id, ordinal, start_seconds, end_seconds, category, text, summary, sentiment, importance, quotable, quotability, fallback, created_at"

const assetColumns = "id, project_id, asset_key, unit_key, moment_id, kind, title, content, file_path, file_url, format, duration, width, height, status, error_message, created_at, updated_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(scanner rowScanner) (*Project, error) {
	var (
		id               string
		sourcePath       string
		category         string
		status           string
		stage            string
		percent          int
		errorMessage     sql.NullString
		cancelRequested  int
		mediaPath        sql.NullString
		duration         float64
		sizeBytes        int64
		manifest         sql.NullString
		runOwner         sql.NullString
		lastHeartbeatRaw sql.NullString
		createdRaw       string
		updatedRaw       string
	)
	if err := scanner.Scan(
		&id,
		&sourcePath,
		&category,
		&status,
		&stage,
		&percent,
		&errorMessage,
		&cancelRequested,
		&mediaPath,
		&duration,
		&sizeBytes,
		&manifest,
		&runOwner,
		&lastHeartbeatRaw,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	p := &Project{
		ID:              id,
		SourcePath:      sourcePath,
		Category:        ContentCategory(category),
		Status:          Status(status),
		Stage:           Stage(stage),
		ProgressPercent: percent,
		ErrorMessage:    errorMessage.String,
		CancelRequested: cancelRequested != 0,
		MediaPath:       mediaPath.String,
		DurationSeconds: duration,
		SizeBytes:       sizeBytes,
		ManifestJSON:    manifest.String,
		RunOwner:        runOwner.String,
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		p.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		p.UpdatedAt = updated
	}
	if lastHeartbeatRaw.Valid {
		if heartbeat, err := parseTimeString(lastHeartbeatRaw.String); err == nil {
			p.LastHeartbeat = &heartbeat
		}
	}
	return p, nil
}

func scanMoment(scanner rowScanner) (Moment, error) {
	var (
		m          Moment
		category   string
		text       sql.NullString
		summary    sql.NullString
		quotable   sql.NullString
		fallback   int
		createdRaw string
	)
	if err := scanner.Scan(
		&m.ID,
		&m.ProjectID,
		&m.Ordinal,
		&m.Start,
		&m.End,
		&category,
		&text,
		&summary,
		&m.Sentiment,
		&m.Importance,
		&quotable,
		&m.Quotability,
		&fallback,
		&createdRaw,
	); err != nil {
		return Moment{}, err
	}
	m.Category = MomentCategory(category)
	m.Text = text.String
	m.Summary = summary.String
	m.Quotable = quotable.String
	m.Fallback = fallback != 0
	if created, err := parseTimeString(createdRaw); err == nil {
		m.CreatedAt = created
	}
	return m, nil
}

func scanAsset(scanner rowScanner) (Asset, error) {
	var (
		a            Asset
		unitKey      sql.NullString
		momentID     sql.NullString
		kind         string
		title        sql.NullString
		content      sql.NullString
		filePath     sql.NullString
		fileURL      sql.NullString
		format       sql.NullString
		status       string
		errorMessage sql.NullString
		createdRaw   string
		updatedRaw   string
	)
	if err := scanner.Scan(
		&a.ID,
		&a.ProjectID,
		&a.Key,
		&unitKey,
		&momentID,
		&kind,
		&title,
		&content,
		&filePath,
		&fileURL,
		&format,
		&a.Duration,
		&a.Width,
		&a.Height,
		&status,
		&errorMessage,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return Asset{}, err
	}
	a.UnitKey = unitKey.String
	a.MomentID = momentID.String
	a.Kind = AssetKind(kind)
	a.Title = title.String
	a.Content = content.String
	a.FilePath = filePath.String
	a.FileURL = fileURL.String
	a.Format = format.String
	a.Status = AssetStatus(status)
	a.ErrorMessage = errorMessage.String
	if created, err := parseTimeString(createdRaw); err == nil {
		a.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		a.UpdatedAt = updated
	}
	return a, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

// timestampLayout keeps a fixed fraction width so stored timestamps compare
// correctly as strings.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
