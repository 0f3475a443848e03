package project

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SaveTranscript stores t, replacing any transcript already recorded for the project.
func (s *Store) SaveTranscript(ctx context.Context, t *Transcript) error {
	if t == nil {
		return errors.New("transcript is nil")
	}
	segments := t.Segments
	if segments == nil {
		segments = []Segment{}
	}
	segmentsJSON, err := json.Marshal(segments)
	if err != nil {
		return fmt.Errorf("marshal segments: %w", err)
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	if _, err := s.execWithRetry(
		ctx,
		`INSERT INTO transcripts (project_id, full_text, language, segments_json, created_at)
         VALUES (?, ?, ?, ?, ?)
         ON CONFLICT(project_id) DO UPDATE SET
             full_text = excluded.full_text,
             language = excluded.language,
             segments_json = excluded.segments_json,
             created_at = excluded.created_at`,
		t.ProjectID,
		t.FullText,
		nullableString(t.Language),
		string(segmentsJSON),
		formatTime(t.CreatedAt),
	); err != nil {
		return fmt.Errorf("save transcript: %w", err)
	}
	return nil
}

// GetTranscript loads the project's transcript. It returns nil, nil when none exists.
func (s *Store) GetTranscript(ctx context.Context, projectID string) (*Transcript, error) {
	var (
		t            Transcript
		language     sql.NullString
		segmentsJSON string
		createdRaw   string
	)
	err := s.db.QueryRowContext(
		ctx,
		`SELECT project_id, full_text, language, segments_json, created_at FROM transcripts WHERE project_id = ?`,
		projectID,
	).Scan(&t.ProjectID, &t.FullText, &language, &segmentsJSON, &createdRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get transcript: %w", err)
	}
	t.Language = language.String
	if err := json.Unmarshal([]byte(segmentsJSON), &t.Segments); err != nil {
		return nil, fmt.Errorf("decode segments: %w", err)
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		t.CreatedAt = created
	}
	return &t, nil
}

// ReplaceMoments deletes the project's moments (cascading to their assets) and
// inserts moments in order. IDs and ordinals are assigned here.
func (s *Store) ReplaceMoments(ctx context.Context, projectID string, moments []Moment) ([]Moment, error) {
	for i, m := range moments {
		if m.End < m.Start {
			return nil, fmt.Errorf("moment %d: end %.3f before start %.3f", i, m.End, m.Start)
		}
	}
	now := time.Now().UTC()
	stored := make([]Moment, len(moments))
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM moments WHERE project_id = ?`, projectID); err != nil {
			return fmt.Errorf("delete moments: %w", err)
		}
		for i, m := range moments {
			m.ID = uuid.NewString()
			m.ProjectID = projectID
			m.Ordinal = i
			m.CreatedAt = now
			if m.Category == "" {
				m.Category = MomentGeneral
			}
			if _, err := tx.ExecContext(
				ctx,
				`INSERT INTO moments (`+momentColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				m.ID,
				m.ProjectID,
				m.Ordinal,
				m.Start,
				m.End,
				string(m.Category),
				nullableString(m.Text),
				nullableString(m.Summary),
				m.Sentiment,
				m.Importance,
				nullableString(m.Quotable),
				m.Quotability,
				boolToInt(m.Fallback),
				formatTime(now),
			); err != nil {
				return fmt.Errorf("insert moment %d: %w", i, err)
			}
			stored[i] = m
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}

// ListMoments returns the project's moments by ordinal.
func (s *Store) ListMoments(ctx context.Context, projectID string) ([]Moment, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+momentColumns+` FROM moments WHERE project_id = ? ORDER BY ordinal`,
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("list moments: %w", err)
	}
	defer rows.Close()

	var moments []Moment
	for rows.Next() {
		m, err := scanMoment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan moment: %w", err)
		}
		moments = append(moments, m)
	}
	return moments, rows.Err()
}

// GetMoment loads a moment scoped to projectID. It returns nil, nil when the
// moment does not exist or belongs to another project.
func (s *Store) GetMoment(ctx context.Context, projectID, momentID string) (*Moment, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+momentColumns+` FROM moments WHERE project_id = ? AND id = ?`,
		projectID,
		momentID,
	)
	m, err := scanMoment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get moment: %w", err)
	}
	return &m, nil
}

// UpsertAsset inserts a or replaces the row sharing its project and key. The
// stored ID and timestamps are written back to a.
func (s *Store) UpsertAsset(ctx context.Context, a *Asset) error {
	if a == nil {
		return errors.New("asset is nil")
	}
	a.Key = strings.TrimSpace(a.Key)
	if a.Key == "" {
		return errors.New("asset key is required")
	}
	if a.Status == "" {
		a.Status = AssetPending
	}
	now := time.Now().UTC()
	if _, err := s.execWithRetry(
		ctx,
		`INSERT INTO assets (`+assetColumns+`)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(project_id, asset_key) DO UPDATE SET
             unit_key = excluded.unit_key,
             moment_id = excluded.moment_id,
             kind = excluded.kind,
             title = excluded.title,
             content = excluded.content,
             file_path = excluded.file_path,
             file_url = excluded.file_url,
             format = excluded.format,
             duration = excluded.duration,
             width = excluded.width,
             height = excluded.height,
             status = excluded.status,
             error_message = excluded.error_message,
             updated_at = excluded.updated_at`,
		uuid.NewString(),
		a.ProjectID,
		a.Key,
		nullableString(a.UnitKey),
		nullableString(a.MomentID),
		string(a.Kind),
		nullableString(a.Title),
		nullableString(a.Content),
		nullableString(a.FilePath),
		nullableString(a.FileURL),
		nullableString(a.Format),
		a.Duration,
		a.Width,
		a.Height,
		string(a.Status),
		nullableString(a.ErrorMessage),
		formatTime(now),
		formatTime(now),
	); err != nil {
		return fmt.Errorf("upsert asset %s: %w", a.Key, err)
	}

	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+assetColumns+` FROM assets WHERE project_id = ? AND asset_key = ?`,
		a.ProjectID,
		a.Key,
	)
	stored, err := scanAsset(row)
	if err != nil {
		return fmt.Errorf("reload asset %s: %w", a.Key, err)
	}
	*a = stored
	return nil
}

// ListAssets returns the project's assets ordered by key.
func (s *Store) ListAssets(ctx context.Context, projectID string) ([]Asset, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+assetColumns+` FROM assets WHERE project_id = ? ORDER BY asset_key`,
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}
	defer rows.Close()

	var assets []Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("scan asset: %w", err)
		}
		assets = append(assets, a)
	}
	return assets, rows.Err()
}

// AssetCounts returns the project's asset counts grouped by status.
func (s *Store) AssetCounts(ctx context.Context, projectID string) (map[AssetStatus]int, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT status, COUNT(1) FROM assets WHERE project_id = ? GROUP BY status`,
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("asset counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[AssetStatus]int)
	for rows.Next() {
		var status AssetStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}
